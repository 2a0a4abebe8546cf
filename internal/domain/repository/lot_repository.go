package repository

import (
	"context"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
)

// LotRepository define el puerto de persistencia de lotes (capas de recepción).
type LotRepository interface {
	// Create inserta el lote y le asigna ID. Devuelve *domain.DuplicateLotError si ya existe
	// un lote para el mismo movimiento de origen.
	Create(ctx context.Context, lot *entity.Lot) error
	GetByID(ctx context.Context, id int64) (*entity.Lot, error)
	// GetForUpdate lee el lote bloqueando la fila cuando el motor lo soporta.
	GetForUpdate(ctx context.Context, id int64) (*entity.Lot, error)
	GetBySourceMovement(ctx context.Context, movementID int64) (*entity.Lot, error)
	// ListOpen devuelve lotes con remanente > 0 ordenados por opened_at y luego ID.
	ListOpen(ctx context.Context, sku string) ([]*entity.Lot, error)
	ListBySKU(ctx context.Context, sku string) ([]*entity.Lot, error)
	// UpdateRemaining persiste remanente y cierre con compare-and-swap sobre el remanente previo.
	// Devuelve domain.ErrConflict si la fila cambió entre la lectura y la escritura.
	UpdateRemaining(ctx context.Context, lot *entity.Lot, expectedRemaining int64) error
}
