package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain"
)

// Lot es una capa de recepción a costo fijo.
// Invariante: 0 <= QuantityRemaining <= QuantityReceived. ClosedAt se fija una sola vez,
// cuando el remanente llega a cero, y nunca se borra.
type Lot struct {
	ID                int64
	SKU               string
	SourceMovementID  int64
	UnitCost          decimal.Decimal
	QuantityReceived  int64
	QuantityRemaining int64
	OpenedAt          time.Time
	ClosedAt          *time.Time
	Backfill          bool // lote sintético creado para cubrir un faltante (política backfill)
}

// NewLot construye un lote abierto a partir de un movimiento de entrada.
func NewLot(sku string, sourceMovementID int64, unitCost decimal.Decimal, quantity int64, openedAt time.Time) (*Lot, error) {
	if sku == "" || sourceMovementID <= 0 {
		return nil, domain.ErrInvalidInput
	}
	if quantity <= 0 || unitCost.IsNegative() {
		return nil, domain.ErrInvalidInput
	}
	return &Lot{
		SKU:               sku,
		SourceMovementID:  sourceMovementID,
		UnitCost:          unitCost,
		QuantityReceived:  quantity,
		QuantityRemaining: quantity,
		OpenedAt:          openedAt,
	}, nil
}

// IsOpen indica si el lote aún tiene cantidad disponible.
func (l *Lot) IsOpen() bool { return l.QuantityRemaining > 0 }

// Consume descuenta qty del remanente. Falla sin modificar el lote si qty excede lo disponible.
func (l *Lot) Consume(qty int64, at time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("consumir %d del lote %d: %w", qty, l.ID, domain.ErrInvalidInput)
	}
	if qty > l.QuantityRemaining {
		return &domain.InsufficientLotQuantityError{LotID: l.ID, Requested: qty, Remaining: l.QuantityRemaining}
	}
	l.QuantityRemaining -= qty
	if l.QuantityRemaining == 0 && l.ClosedAt == nil {
		closed := at
		l.ClosedAt = &closed
	}
	return nil
}

// Restore devuelve qty al remanente (reversa compensatoria). ClosedAt se conserva.
func (l *Lot) Restore(qty int64) error {
	if qty <= 0 || l.QuantityRemaining+qty > l.QuantityReceived {
		return fmt.Errorf("restaurar %d al lote %d (remanente %d de %d): %w",
			qty, l.ID, l.QuantityRemaining, l.QuantityReceived, domain.ErrConflict)
	}
	l.QuantityRemaining += qty
	return nil
}

// Value valoriza el remanente al costo del lote.
func (l *Lot) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.QuantityRemaining))
}
