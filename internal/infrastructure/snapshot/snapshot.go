// Package snapshot carga snapshots tabulares y archivos de movimientos desde CSV, JSON o YAML.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/diff"
)

// Format formato de archivo soportado.
type Format string

// Formatos.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat deduce el formato por extensión.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("formato de %s no soportado (csv|json|yaml): %w", path, domain.ErrInvalidInput)
}

// LoadRows lee un snapshot completo desde path.
func LoadRows(path string) ([]diff.Row, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer %s: %w", path, err)
	}
	rows, err := ParseRows(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ParseRows decodifica filas del formato dado. En CSV la primera fila es el encabezado y los
// valores quedan como texto; el diff compara numéricamente los textos que son números.
func ParseRows(r io.Reader, format Format) ([]diff.Row, error) {
	switch format {
	case FormatCSV:
		return parseCSV(r)
	case FormatJSON:
		return parseJSON(r)
	case FormatYAML:
		return parseYAML(r)
	}
	return nil, fmt.Errorf("formato %q: %w", format, domain.ErrInvalidInput)
}

func parseCSV(r io.Reader) ([]diff.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// filas cortas o largas no abortan la carga: faltantes quedan ausentes, sobrantes se ignoran
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []diff.Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv encabezado: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	rows := []diff.Row{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		row := make(diff.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseJSON(r io.Reader) ([]diff.Row, error) {
	dec := json.NewDecoder(r)
	// json.Number conserva la representación exacta de los números
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return []diff.Row{}, nil
		}
		return nil, fmt.Errorf("json: %w", err)
	}
	rows := make([]diff.Row, 0, len(raw))
	for _, m := range raw {
		rows = append(rows, diff.Row(m))
	}
	return rows, nil
}

func parseYAML(r io.Reader) ([]diff.Row, error) {
	var raw []map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return []diff.Row{}, nil
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	rows := make([]diff.Row, 0, len(raw))
	for _, m := range raw {
		rows = append(rows, diff.Row(m))
	}
	return rows, nil
}
