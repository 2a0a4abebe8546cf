package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allocation registra cuánto de qué lote financió una salida. Es de solo inserción:
// una reversa se representa con otra fila de cantidad negativa que apunta a la original.
type Allocation struct {
	ID                int64
	OutMovementID     int64
	SKU               string
	LotID             int64
	QuantityAllocated int64
	UnitCost          decimal.Decimal // copia del costo del lote al momento de asignar
	CostAllocated     decimal.Decimal
	AllocatedAt       time.Time
	RunID             string
	ReversesAllocID   *int64
}

// NewAllocation construye la línea de asignación de qty unidades del lote para la salida.
func NewAllocation(out *Movement, lot *Lot, qty int64, at time.Time, runID string) *Allocation {
	return &Allocation{
		OutMovementID:     out.RecordID,
		SKU:               out.SKU,
		LotID:             lot.ID,
		QuantityAllocated: qty,
		UnitCost:          lot.UnitCost,
		CostAllocated:     lot.UnitCost.Mul(decimal.NewFromInt(qty)),
		AllocatedAt:       at,
		RunID:             runID,
	}
}

// Compensate devuelve la fila negativa que anula esta asignación.
func (a *Allocation) Compensate(at time.Time, runID string) *Allocation {
	orig := a.ID
	return &Allocation{
		OutMovementID:     a.OutMovementID,
		SKU:               a.SKU,
		LotID:             a.LotID,
		QuantityAllocated: -a.QuantityAllocated,
		UnitCost:          a.UnitCost,
		CostAllocated:     a.CostAllocated.Neg(),
		AllocatedAt:       at,
		RunID:             runID,
		ReversesAllocID:   &orig,
	}
}

// IsReversal indica si la fila es una compensación.
func (a *Allocation) IsReversal() bool { return a.ReversesAllocID != nil }
