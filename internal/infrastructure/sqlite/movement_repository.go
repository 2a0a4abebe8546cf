package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

// MovementRepo implementa repository.MovementRepository.
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el repositorio sobre la base o una tx.
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

type movementRow struct {
	RecordID   int64           `db:"record_id"`
	SKU        string          `db:"sku"`
	Action     string          `db:"action"`
	Quantity   int64           `db:"quantity"`
	UnitCost   decimal.Decimal `db:"unit_cost"`
	OccurredAt int64           `db:"occurred_at"`
	Reference  string          `db:"reference"`
	Processed  bool            `db:"processed"`
	CreatedAt  int64           `db:"created_at"`
}

func (r movementRow) toEntity() *entity.Movement {
	return &entity.Movement{
		RecordID:   r.RecordID,
		SKU:        r.SKU,
		Action:     entity.MovementAction(r.Action),
		Quantity:   r.Quantity,
		UnitCost:   r.UnitCost,
		OccurredAt: fromNanos(r.OccurredAt),
		Reference:  r.Reference,
		Processed:  r.Processed,
		CreatedAt:  fromNanos(r.CreatedAt),
	}
}

const movementColumns = `record_id, sku, action, quantity, unit_cost, occurred_at, reference, processed, created_at`

func (r *MovementRepo) Append(ctx context.Context, m *entity.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO movements (sku, action, quantity, unit_cost, occurred_at, reference, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		m.SKU, string(m.Action), m.Quantity, m.UnitCost.String(), toNanos(m.OccurredAt), m.Reference, toNanos(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("movement id: %w", err)
	}
	m.RecordID = id
	m.Processed = false
	return nil
}

func (r *MovementRepo) GetByID(ctx context.Context, id int64) (*entity.Movement, error) {
	var row movementRow
	err := r.q.GetContext(ctx, &row, `SELECT `+movementColumns+` FROM movements WHERE record_id = ?`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toEntity(), nil
}

// GetForUpdate en SQLite equivale a GetByID: la conexión única ya serializa a los escritores.
func (r *MovementRepo) GetForUpdate(ctx context.Context, id int64) (*entity.Movement, error) {
	return r.GetByID(ctx, id)
}

func (r *MovementRepo) ListPending(ctx context.Context, sku *string, limit int) ([]*entity.Movement, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`SELECT ` + movementColumns + ` FROM movements WHERE processed = 0`)
	if sku != nil {
		sb.WriteString(` AND sku = ?`)
		args = append(args, *sku)
	}
	sb.WriteString(` ORDER BY occurred_at, record_id`)
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	return r.selectMovements(ctx, sb.String(), args...)
}

func (r *MovementRepo) ListPendingSKUs(ctx context.Context) ([]string, error) {
	var skus []string
	if err := r.q.SelectContext(ctx, &skus, `SELECT DISTINCT sku FROM movements WHERE processed = 0 ORDER BY sku`); err != nil {
		return nil, fmt.Errorf("list pending skus: %w", err)
	}
	return skus, nil
}

func (r *MovementRepo) ListBySKU(ctx context.Context, sku string) ([]*entity.Movement, error) {
	return r.selectMovements(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE sku = ? ORDER BY occurred_at, record_id`, sku)
}

func (r *MovementRepo) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE movements SET processed = 1 WHERE record_id = ? AND processed = 0`, id)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return n == 1, nil
}

func (r *MovementRepo) selectMovements(ctx context.Context, query string, args ...interface{}) ([]*entity.Movement, error) {
	var rows []movementRow
	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	list := make([]*entity.Movement, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.toEntity())
	}
	return list, nil
}
