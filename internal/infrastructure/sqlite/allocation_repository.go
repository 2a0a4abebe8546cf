package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

var _ repository.AllocationRepository = (*AllocationRepo)(nil)

// AllocationRepo implementa repository.AllocationRepository.
type AllocationRepo struct {
	q Querier
}

// NewAllocationRepository construye el repositorio sobre la base o una tx.
func NewAllocationRepository(q Querier) *AllocationRepo {
	return &AllocationRepo{q: q}
}

type allocationRow struct {
	ID                int64           `db:"alloc_id"`
	OutMovementID     int64           `db:"out_movement_id"`
	SKU               string          `db:"sku"`
	LotID             int64           `db:"lot_id"`
	QuantityAllocated int64           `db:"quantity_allocated"`
	UnitCost          decimal.Decimal `db:"unit_cost"`
	CostAllocated     decimal.Decimal `db:"cost_allocated"`
	AllocatedAt       int64           `db:"allocated_at"`
	RunID             string          `db:"run_id"`
	ReversesAllocID   sql.NullInt64   `db:"reverses_alloc_id"`
}

func (r allocationRow) toEntity() *entity.Allocation {
	a := &entity.Allocation{
		ID:                r.ID,
		OutMovementID:     r.OutMovementID,
		SKU:               r.SKU,
		LotID:             r.LotID,
		QuantityAllocated: r.QuantityAllocated,
		UnitCost:          r.UnitCost,
		CostAllocated:     r.CostAllocated,
		AllocatedAt:       fromNanos(r.AllocatedAt),
		RunID:             r.RunID,
	}
	if r.ReversesAllocID.Valid {
		id := r.ReversesAllocID.Int64
		a.ReversesAllocID = &id
	}
	return a
}

const allocationColumns = `alloc_id, out_movement_id, sku, lot_id, quantity_allocated, unit_cost, cost_allocated, allocated_at, run_id, reverses_alloc_id`

func (r *AllocationRepo) Create(ctx context.Context, a *entity.Allocation) error {
	var reverses sql.NullInt64
	if a.ReversesAllocID != nil {
		reverses = sql.NullInt64{Int64: *a.ReversesAllocID, Valid: true}
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO allocations (out_movement_id, sku, lot_id, quantity_allocated, unit_cost, cost_allocated, allocated_at, run_id, reverses_alloc_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.OutMovementID, a.SKU, a.LotID, a.QuantityAllocated, a.UnitCost.String(), a.CostAllocated.String(),
		toNanos(a.AllocatedAt), a.RunID, reverses,
	)
	if err != nil {
		if a.ReversesAllocID != nil && isUniqueViolation(err) {
			return fmt.Errorf("compensar asignación %d: %w", *a.ReversesAllocID, domain.ErrAlreadyReversed)
		}
		return fmt.Errorf("insert allocation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("allocation id: %w", err)
	}
	a.ID = id
	return nil
}

func (r *AllocationRepo) ListByMovement(ctx context.Context, outMovementID int64) ([]*entity.Allocation, error) {
	return r.selectAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE out_movement_id = ? ORDER BY alloc_id`, outMovementID)
}

func (r *AllocationRepo) ListBySKU(ctx context.Context, sku string) ([]*entity.Allocation, error) {
	return r.selectAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE sku = ? ORDER BY alloc_id`, sku)
}

func (r *AllocationRepo) SumByLot(ctx context.Context, sku string) (map[int64]int64, error) {
	var rows []struct {
		LotID int64 `db:"lot_id"`
		Total int64 `db:"total"`
	}
	err := r.q.SelectContext(ctx, &rows, `
		SELECT lot_id, COALESCE(SUM(quantity_allocated), 0) AS total
		FROM allocations WHERE sku = ? GROUP BY lot_id`, sku)
	if err != nil {
		return nil, fmt.Errorf("sum allocations: %w", err)
	}
	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.LotID] = row.Total
	}
	return out, nil
}

// Totals suma en Go: el costo se guarda como TEXT y SUM de SQLite lo pasaría a float.
func (r *AllocationRepo) Totals(ctx context.Context, sku string) (int64, decimal.Decimal, error) {
	list, err := r.ListBySKU(ctx, sku)
	if err != nil {
		return 0, decimal.Zero, err
	}
	var qty int64
	cost := decimal.Zero
	for _, a := range list {
		qty += a.QuantityAllocated
		cost = cost.Add(a.CostAllocated)
	}
	return qty, cost, nil
}

func (r *AllocationRepo) selectAllocations(ctx context.Context, query string, args ...interface{}) ([]*entity.Allocation, error) {
	var rows []allocationRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select allocations: %w", err)
	}
	list := make([]*entity.Allocation, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toEntity())
	}
	return list, nil
}
