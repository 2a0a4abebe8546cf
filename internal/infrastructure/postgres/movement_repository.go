package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

// MovementRepo implementación de MovementRepository sobre PostgreSQL (usable con pool o tx).
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

const movementColumns = `record_id, sku, action, quantity, unit_cost, occurred_at, reference, processed, created_at`

func scanMovement(row pgx.Row) (*entity.Movement, error) {
	var m entity.Movement
	var action string
	if err := row.Scan(&m.RecordID, &m.SKU, &action, &m.Quantity, &m.UnitCost,
		&m.OccurredAt, &m.Reference, &m.Processed, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Action = entity.MovementAction(action)
	m.OccurredAt = m.OccurredAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

// Append inserta el movimiento; record_id lo asigna la secuencia.
func (r *MovementRepo) Append(ctx context.Context, m *entity.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO movements (sku, action, quantity, unit_cost, occurred_at, reference, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
		RETURNING record_id`
	err := r.q.QueryRow(ctx, query,
		m.SKU, string(m.Action), m.Quantity, m.UnitCost, m.OccurredAt, m.Reference, m.CreatedAt,
	).Scan(&m.RecordID)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	m.Processed = false
	return nil
}

func (r *MovementRepo) GetByID(ctx context.Context, id int64) (*entity.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE record_id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// GetForUpdate obtiene el movimiento y bloquea la fila (SELECT FOR UPDATE).
func (r *MovementRepo) GetForUpdate(ctx context.Context, id int64) (*entity.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE record_id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *MovementRepo) ListPending(ctx context.Context, sku *string, limit int) ([]*entity.Movement, error) {
	// LIMIT NULL equivale a sin límite
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	query := `SELECT ` + movementColumns + ` FROM movements
		WHERE processed = false AND ($1::text IS NULL OR sku = $1)
		ORDER BY occurred_at, record_id
		LIMIT $2`
	return r.queryMovements(ctx, query, sku, lim)
}

func (r *MovementRepo) ListPendingSKUs(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT DISTINCT sku FROM movements WHERE processed = false ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("list pending skus: %w", err)
	}
	skus, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list pending skus: %w", err)
	}
	return skus, nil
}

func (r *MovementRepo) ListBySKU(ctx context.Context, sku string) ([]*entity.Movement, error) {
	return r.queryMovements(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE sku = $1 ORDER BY occurred_at, record_id`, sku)
}

// MarkProcessed solo marca si seguía pendiente.
func (r *MovementRepo) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `UPDATE movements SET processed = true WHERE record_id = $1 AND processed = false`, id)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MovementRepo) queryMovements(ctx context.Context, query string, args ...any) ([]*entity.Movement, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()
	var list []*entity.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
