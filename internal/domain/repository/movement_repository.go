package repository

import (
	"context"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
)

// MovementRepository define el puerto de persistencia del log de movimientos (solo inserción).
type MovementRepository interface {
	// Append persiste el movimiento y le asigna un RecordID monótono.
	Append(ctx context.Context, m *entity.Movement) error
	GetByID(ctx context.Context, id int64) (*entity.Movement, error)
	// GetForUpdate lee el movimiento bloqueando la fila cuando el motor lo soporta.
	GetForUpdate(ctx context.Context, id int64) (*entity.Movement, error)
	// ListPending devuelve movimientos con processed = false ordenados por fecha y luego RecordID.
	// sku nil = todos los SKUs. limit <= 0 = sin límite.
	ListPending(ctx context.Context, sku *string, limit int) ([]*entity.Movement, error)
	// ListPendingSKUs devuelve los SKUs con al menos un movimiento pendiente, ordenados.
	ListPendingSKUs(ctx context.Context) ([]string, error)
	ListBySKU(ctx context.Context, sku string) ([]*entity.Movement, error)
	// MarkProcessed marca el movimiento solo si seguía pendiente; false si otro proceso ya lo marcó.
	MarkProcessed(ctx context.Context, id int64) (bool, error)
}
