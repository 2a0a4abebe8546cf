package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
)

// AllocationRepository define el puerto de persistencia de asignaciones (solo inserción).
type AllocationRepository interface {
	Create(ctx context.Context, a *entity.Allocation) error
	ListByMovement(ctx context.Context, outMovementID int64) ([]*entity.Allocation, error)
	ListBySKU(ctx context.Context, sku string) ([]*entity.Allocation, error)
	// SumByLot devuelve la cantidad neta asignada por lote del SKU (reversas incluidas).
	SumByLot(ctx context.Context, sku string) (map[int64]int64, error)
	// Totals devuelve cantidad y costo netos asignados del SKU.
	Totals(ctx context.Context, sku string) (int64, decimal.Decimal, error)
}
