package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain"
)

// MovementAction tipo de movimiento de inventario.
type MovementAction string

// Acciones de movimiento.
const (
	ActionIn  MovementAction = "in"  // entrada: abre un lote
	ActionOut MovementAction = "out" // salida: se asigna contra lotes abiertos
)

// ParseAction normaliza la acción recibida desde ingestión ("IN", " out ", ...).
func ParseAction(s string) (MovementAction, error) {
	switch MovementAction(strings.ToLower(strings.TrimSpace(s))) {
	case ActionIn:
		return ActionIn, nil
	case ActionOut:
		return ActionOut, nil
	}
	return "", fmt.Errorf("acción %q: %w", s, domain.ErrInvalidInput)
}

// Movement es un registro inmutable del log de movimientos. Solo Processed cambia,
// una única vez, cuando el procesador incremental lo incorpora al ledger.
type Movement struct {
	RecordID   int64
	SKU        string
	Action     MovementAction
	Quantity   int64
	UnitCost   decimal.Decimal
	OccurredAt time.Time
	Reference  string
	Processed  bool
	CreatedAt  time.Time
}

// Validate comprueba los invariantes de un movimiento antes de persistirlo.
func (m *Movement) Validate() error {
	if strings.TrimSpace(m.SKU) == "" {
		return fmt.Errorf("sku vacío: %w", domain.ErrInvalidInput)
	}
	if m.Action != ActionIn && m.Action != ActionOut {
		return fmt.Errorf("acción %q: %w", m.Action, domain.ErrInvalidInput)
	}
	if m.Quantity <= 0 {
		return fmt.Errorf("cantidad %d debe ser positiva: %w", m.Quantity, domain.ErrInvalidInput)
	}
	if m.UnitCost.IsNegative() {
		return fmt.Errorf("costo unitario %s negativo: %w", m.UnitCost, domain.ErrInvalidInput)
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("fecha del movimiento vacía: %w", domain.ErrInvalidInput)
	}
	return nil
}

// IsInbound indica si el movimiento abre un lote.
func (m *Movement) IsInbound() bool { return m.Action == ActionIn }
