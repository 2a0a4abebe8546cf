package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/diff"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
)

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

// LoadMovements lee un archivo de movimientos con columnas
// sku, action, quantity, unit_cost, occurred_at, reference (unit_cost y reference opcionales).
// Los movimientos se devuelven validados y sin RecordID.
func LoadMovements(path string) ([]*entity.Movement, error) {
	rows, err := LoadRows(path)
	if err != nil {
		return nil, err
	}
	return MovementsFromRows(rows)
}

// MovementsFromRows convierte filas en movimientos; el error indica la fila (1 = primera de datos).
func MovementsFromRows(rows []diff.Row) ([]*entity.Movement, error) {
	out := make([]*entity.Movement, 0, len(rows))
	for i, row := range rows {
		m, err := movementFromRow(normalizeColumns(row))
		if err != nil {
			return nil, fmt.Errorf("fila %d: %w", i+1, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func normalizeColumns(row diff.Row) diff.Row {
	n := make(diff.Row, len(row))
	for k, v := range row {
		n[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return n
}

func movementFromRow(row diff.Row) (*entity.Movement, error) {
	action, err := entity.ParseAction(text(row["action"]))
	if err != nil {
		return nil, err
	}
	qty, err := strconv.ParseInt(text(row["quantity"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cantidad %q: %w", text(row["quantity"]), domain.ErrInvalidInput)
	}
	cost := decimal.Zero
	if s := text(row["unit_cost"]); s != "" {
		if cost, err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("costo unitario %q: %w", s, domain.ErrInvalidInput)
		}
	}
	at, err := parseTime(row["occurred_at"])
	if err != nil {
		return nil, err
	}

	m := &entity.Movement{
		SKU:        text(row["sku"]),
		Action:     action,
		Quantity:   qty,
		UnitCost:   cost,
		OccurredAt: at,
		Reference:  text(row["reference"]),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseTime(v any) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), nil
	}
	s := text(v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("fecha %q: %w", s, domain.ErrInvalidInput)
}

// text representa un valor escalar sin notación exponencial.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
