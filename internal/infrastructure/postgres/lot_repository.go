package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

var _ repository.LotRepository = (*LotRepo)(nil)

// LotRepo implementación de LotRepository sobre PostgreSQL (usable con pool o tx).
type LotRepo struct {
	q Querier
}

// NewLotRepository construye el adaptador. Pasar pool o tx (Querier).
func NewLotRepository(q Querier) *LotRepo {
	return &LotRepo{q: q}
}

const lotColumns = `lot_id, sku, source_movement_id, unit_cost, quantity_received, quantity_remaining, opened_at, closed_at, backfill`

func scanLot(row pgx.Row) (*entity.Lot, error) {
	var l entity.Lot
	if err := row.Scan(&l.ID, &l.SKU, &l.SourceMovementID, &l.UnitCost, &l.QuantityReceived,
		&l.QuantityRemaining, &l.OpenedAt, &l.ClosedAt, &l.Backfill); err != nil {
		return nil, err
	}
	l.OpenedAt = l.OpenedAt.UTC()
	if l.ClosedAt != nil {
		c := l.ClosedAt.UTC()
		l.ClosedAt = &c
	}
	return &l, nil
}

// Create inserta el lote. ON CONFLICT DO NOTHING evita abortar la transacción ante un duplicado.
func (r *LotRepo) Create(ctx context.Context, lot *entity.Lot) error {
	query := `
		INSERT INTO lots (sku, source_movement_id, unit_cost, quantity_received, quantity_remaining, opened_at, closed_at, backfill)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_movement_id) DO NOTHING
		RETURNING lot_id`
	err := r.q.QueryRow(ctx, query,
		lot.SKU, lot.SourceMovementID, lot.UnitCost, lot.QuantityReceived, lot.QuantityRemaining,
		lot.OpenedAt, lot.ClosedAt, lot.Backfill,
	).Scan(&lot.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.DuplicateLotError{SourceMovementID: lot.SourceMovementID}
		}
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

func (r *LotRepo) GetByID(ctx context.Context, id int64) (*entity.Lot, error) {
	l, err := scanLot(r.q.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE lot_id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

// GetForUpdate obtiene el lote y bloquea la fila (SELECT FOR UPDATE).
func (r *LotRepo) GetForUpdate(ctx context.Context, id int64) (*entity.Lot, error) {
	l, err := scanLot(r.q.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE lot_id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *LotRepo) GetBySourceMovement(ctx context.Context, movementID int64) (*entity.Lot, error) {
	l, err := scanLot(r.q.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE source_movement_id = $1`, movementID))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *LotRepo) ListOpen(ctx context.Context, sku string) ([]*entity.Lot, error) {
	return r.queryLots(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE sku = $1 AND quantity_remaining > 0 ORDER BY opened_at, lot_id`, sku)
}

func (r *LotRepo) ListBySKU(ctx context.Context, sku string) ([]*entity.Lot, error) {
	return r.queryLots(ctx, `SELECT `+lotColumns+` FROM lots WHERE sku = $1 ORDER BY opened_at, lot_id`, sku)
}

// UpdateRemaining compare-and-swap sobre quantity_remaining.
func (r *LotRepo) UpdateRemaining(ctx context.Context, lot *entity.Lot, expectedRemaining int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE lots SET quantity_remaining = $1, closed_at = $2
		WHERE lot_id = $3 AND quantity_remaining = $4`,
		lot.QuantityRemaining, lot.ClosedAt, lot.ID, expectedRemaining,
	)
	if err != nil {
		return fmt.Errorf("update lot %d: %w", lot.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lote %d cambió (remanente esperado %d): %w", lot.ID, expectedRemaining, domain.ErrConflict)
	}
	return nil
}

func (r *LotRepo) queryLots(ctx context.Context, query string, args ...any) ([]*entity.Lot, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()
	var list []*entity.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
