// Package diff compara dos snapshots tabulares por una columna clave y devuelve
// el delta a nivel de campo. Es puro y seguro para uso concurrente.
package diff

import (
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTolerance diferencia absoluta máxima para considerar iguales dos valores numéricos.
const DefaultTolerance = 1e-4

// Row es una fila de snapshot: columna -> valor.
type Row map[string]any

// FieldChange par (anterior, nuevo) de una columna modificada.
type FieldChange struct {
	Column string `json:"column" yaml:"column"`
	Old    any    `json:"old" yaml:"old"`
	New    any    `json:"new" yaml:"new"`
}

// RowChange fila presente en ambos snapshots con al menos una columna distinta.
type RowChange struct {
	Key     string        `json:"key" yaml:"key"`
	Changes []FieldChange `json:"changes" yaml:"changes"`
}

// Result delta entre dos snapshots.
// DuplicateKeys y Unkeyed reportan anomalías de datos; nunca hacen fallar la comparación.
type Result struct {
	Modified      []RowChange `json:"modified" yaml:"modified"`
	Added         []Row       `json:"added" yaml:"added"`
	Removed       []Row       `json:"removed" yaml:"removed"`
	DuplicateKeys []string    `json:"duplicate_keys,omitempty" yaml:"duplicate_keys,omitempty"`
	Unkeyed       int         `json:"unkeyed,omitempty" yaml:"unkeyed,omitempty"`
}

// IsEmpty indica que no hay filas modificadas, agregadas ni eliminadas.
func (r Result) IsEmpty() bool {
	return len(r.Modified) == 0 && len(r.Added) == 0 && len(r.Removed) == 0
}

// Options configura la comparación.
type Options struct {
	Tolerance decimal.Decimal
}

// Option modifica Options.
type Option func(*Options)

// WithTolerance fija la tolerancia numérica absoluta.
func WithTolerance(tol float64) Option {
	return func(o *Options) {
		if tol >= 0 {
			o.Tolerance = decimal.NewFromFloat(tol)
		}
	}
}

type indexed struct {
	keys  []string
	byKey map[string]Row
	dups  []string
	noKey int
}

// Compute compara oldRows contra newRows usando keyColumn como clave primaria.
// Las claves se normalizan (trim + mayúsculas). Ante claves duplicadas gana la primera
// aparición en el orden de entrada.
func Compute(oldRows, newRows []Row, keyColumn string, opts ...Option) Result {
	o := Options{Tolerance: decimal.NewFromFloat(DefaultTolerance)}
	for _, opt := range opts {
		opt(&o)
	}
	// cases.Caser tiene estado: uno por llamada
	upper := cases.Upper(language.Und)
	norm := func(v any) string { return upper.String(stringify(v)) }

	before := index(oldRows, keyColumn, norm)
	after := index(newRows, keyColumn, norm)

	res := Result{
		Modified: []RowChange{},
		Added:    []Row{},
		Removed:  []Row{},
		Unkeyed:  before.noKey + after.noKey,
	}
	res.DuplicateKeys = mergeDups(before.dups, after.dups)

	for _, k := range before.keys {
		oldRow := before.byKey[k]
		newRow, ok := after.byKey[k]
		if !ok {
			res.Removed = append(res.Removed, oldRow)
			continue
		}
		if changes := compareRows(oldRow, newRow, keyColumn, o.Tolerance); len(changes) > 0 {
			res.Modified = append(res.Modified, RowChange{Key: k, Changes: changes})
		}
	}
	for _, k := range after.keys {
		if _, ok := before.byKey[k]; !ok {
			res.Added = append(res.Added, after.byKey[k])
		}
	}
	return res
}

func index(rows []Row, keyColumn string, norm func(any) string) indexed {
	ix := indexed{byKey: make(map[string]Row, len(rows))}
	seenDup := map[string]bool{}
	for _, r := range rows {
		raw, ok := r[keyColumn]
		if !ok || raw == nil {
			ix.noKey++
			continue
		}
		k := norm(raw)
		if _, exists := ix.byKey[k]; exists {
			if !seenDup[k] {
				seenDup[k] = true
				ix.dups = append(ix.dups, k)
			}
			continue
		}
		ix.byKey[k] = r
		ix.keys = append(ix.keys, k)
	}
	return ix
}

// compareRows compara las columnas compartidas (excepto la clave) en orden alfabético.
func compareRows(oldRow, newRow Row, keyColumn string, tol decimal.Decimal) []FieldChange {
	cols := make([]string, 0, len(oldRow))
	for c := range oldRow {
		if c == keyColumn {
			continue
		}
		if _, ok := newRow[c]; ok {
			cols = append(cols, c)
		}
	}
	sort.Strings(cols)

	var changes []FieldChange
	for _, c := range cols {
		if !Equal(oldRow[c], newRow[c], tol) {
			changes = append(changes, FieldChange{Column: c, Old: oldRow[c], New: newRow[c]})
		}
	}
	return changes
}

func mergeDups(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, k := range append(append([]string{}, a...), b...) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
