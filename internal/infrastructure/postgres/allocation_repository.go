package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

var _ repository.AllocationRepository = (*AllocationRepo)(nil)

// AllocationRepo implementación de AllocationRepository sobre PostgreSQL (solo inserción).
type AllocationRepo struct {
	q Querier
}

// NewAllocationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAllocationRepository(q Querier) *AllocationRepo {
	return &AllocationRepo{q: q}
}

const allocationColumns = `alloc_id, out_movement_id, sku, lot_id, quantity_allocated, unit_cost, cost_allocated, allocated_at, run_id, reverses_alloc_id`

func scanAllocation(row pgx.Row) (*entity.Allocation, error) {
	var a entity.Allocation
	if err := row.Scan(&a.ID, &a.OutMovementID, &a.SKU, &a.LotID, &a.QuantityAllocated, &a.UnitCost,
		&a.CostAllocated, &a.AllocatedAt, &a.RunID, &a.ReversesAllocID); err != nil {
		return nil, err
	}
	a.AllocatedAt = a.AllocatedAt.UTC()
	return &a, nil
}

func (r *AllocationRepo) Create(ctx context.Context, a *entity.Allocation) error {
	query := `
		INSERT INTO allocations (out_movement_id, sku, lot_id, quantity_allocated, unit_cost, cost_allocated, allocated_at, run_id, reverses_alloc_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING alloc_id`
	err := r.q.QueryRow(ctx, query,
		a.OutMovementID, a.SKU, a.LotID, a.QuantityAllocated, a.UnitCost, a.CostAllocated,
		a.AllocatedAt, a.RunID, a.ReversesAllocID,
	).Scan(&a.ID)
	if err != nil {
		if a.ReversesAllocID != nil && isUniqueViolation(err) {
			return fmt.Errorf("compensar asignación %d: %w", *a.ReversesAllocID, domain.ErrAlreadyReversed)
		}
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

func (r *AllocationRepo) ListByMovement(ctx context.Context, outMovementID int64) ([]*entity.Allocation, error) {
	return r.queryAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE out_movement_id = $1 ORDER BY alloc_id`, outMovementID)
}

func (r *AllocationRepo) ListBySKU(ctx context.Context, sku string) ([]*entity.Allocation, error) {
	return r.queryAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE sku = $1 ORDER BY alloc_id`, sku)
}

func (r *AllocationRepo) SumByLot(ctx context.Context, sku string) (map[int64]int64, error) {
	rows, err := r.q.Query(ctx, `
		SELECT lot_id, COALESCE(SUM(quantity_allocated), 0)::bigint
		FROM allocations WHERE sku = $1 GROUP BY lot_id`, sku)
	if err != nil {
		return nil, fmt.Errorf("sum allocations: %w", err)
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var lotID, total int64
		if err := rows.Scan(&lotID, &total); err != nil {
			return nil, fmt.Errorf("scan allocation sum: %w", err)
		}
		out[lotID] = total
	}
	return out, rows.Err()
}

func (r *AllocationRepo) Totals(ctx context.Context, sku string) (int64, decimal.Decimal, error) {
	var qty int64
	var cost decimal.Decimal
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity_allocated), 0)::bigint, COALESCE(SUM(cost_allocated), 0)
		FROM allocations WHERE sku = $1`, sku).Scan(&qty, &cost)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("allocation totals: %w", err)
	}
	return qty, cost, nil
}

func (r *AllocationRepo) queryAllocations(ctx context.Context, query string, args ...any) ([]*entity.Allocation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()
	var list []*entity.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
