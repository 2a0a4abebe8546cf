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

var _ repository.LotRepository = (*LotRepo)(nil)

// LotRepo implementa repository.LotRepository.
type LotRepo struct {
	q Querier
}

// NewLotRepository construye el repositorio sobre la base o una tx.
func NewLotRepository(q Querier) *LotRepo {
	return &LotRepo{q: q}
}

type lotRow struct {
	ID                int64           `db:"lot_id"`
	SKU               string          `db:"sku"`
	SourceMovementID  int64           `db:"source_movement_id"`
	UnitCost          decimal.Decimal `db:"unit_cost"`
	QuantityReceived  int64           `db:"quantity_received"`
	QuantityRemaining int64           `db:"quantity_remaining"`
	OpenedAt          int64           `db:"opened_at"`
	ClosedAt          sql.NullInt64   `db:"closed_at"`
	Backfill          bool            `db:"backfill"`
}

func (r lotRow) toEntity() *entity.Lot {
	return &entity.Lot{
		ID:                r.ID,
		SKU:               r.SKU,
		SourceMovementID:  r.SourceMovementID,
		UnitCost:          r.UnitCost,
		QuantityReceived:  r.QuantityReceived,
		QuantityRemaining: r.QuantityRemaining,
		OpenedAt:          fromNanos(r.OpenedAt),
		ClosedAt:          timePtr(r.ClosedAt),
		Backfill:          r.Backfill,
	}
}

const lotColumns = `lot_id, sku, source_movement_id, unit_cost, quantity_received, quantity_remaining, opened_at, closed_at, backfill`

func (r *LotRepo) Create(ctx context.Context, lot *entity.Lot) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO lots (sku, source_movement_id, unit_cost, quantity_received, quantity_remaining, opened_at, closed_at, backfill)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_movement_id) DO NOTHING`,
		lot.SKU, lot.SourceMovementID, lot.UnitCost.String(), lot.QuantityReceived, lot.QuantityRemaining,
		toNanos(lot.OpenedAt), nullNanos(lot.ClosedAt), lot.Backfill,
	)
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	if n == 0 {
		return &domain.DuplicateLotError{SourceMovementID: lot.SourceMovementID}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("lot id: %w", err)
	}
	lot.ID = id
	return nil
}

func (r *LotRepo) GetByID(ctx context.Context, id int64) (*entity.Lot, error) {
	var row lotRow
	if err := r.q.GetContext(ctx, &row, `SELECT `+lotColumns+` FROM lots WHERE lot_id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return row.toEntity(), nil
}

func (r *LotRepo) GetForUpdate(ctx context.Context, id int64) (*entity.Lot, error) {
	return r.GetByID(ctx, id)
}

func (r *LotRepo) GetBySourceMovement(ctx context.Context, movementID int64) (*entity.Lot, error) {
	var row lotRow
	if err := r.q.GetContext(ctx, &row, `SELECT `+lotColumns+` FROM lots WHERE source_movement_id = ?`, movementID); err != nil {
		return nil, notFound(err)
	}
	return row.toEntity(), nil
}

func (r *LotRepo) ListOpen(ctx context.Context, sku string) ([]*entity.Lot, error) {
	return r.selectLots(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE sku = ? AND quantity_remaining > 0 ORDER BY opened_at, lot_id`, sku)
}

func (r *LotRepo) ListBySKU(ctx context.Context, sku string) ([]*entity.Lot, error) {
	return r.selectLots(ctx, `SELECT `+lotColumns+` FROM lots WHERE sku = ? ORDER BY opened_at, lot_id`, sku)
}

func (r *LotRepo) UpdateRemaining(ctx context.Context, lot *entity.Lot, expectedRemaining int64) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE lots SET quantity_remaining = ?, closed_at = ?
		WHERE lot_id = ? AND quantity_remaining = ?`,
		lot.QuantityRemaining, nullNanos(lot.ClosedAt), lot.ID, expectedRemaining,
	)
	if err != nil {
		return fmt.Errorf("update lot %d: %w", lot.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lot %d: %w", lot.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("lote %d cambió (remanente esperado %d): %w", lot.ID, expectedRemaining, domain.ErrConflict)
	}
	return nil
}

func (r *LotRepo) selectLots(ctx context.Context, query string, args ...interface{}) ([]*entity.Lot, error) {
	var rows []lotRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	list := make([]*entity.Lot, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toEntity())
	}
	return list, nil
}
