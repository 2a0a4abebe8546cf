package inventory

import (
	"context"

	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Es la frontera transaccional del motor: un movimiento = una transacción.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		movRepo repository.MovementRepository,
		lotRepo repository.LotRepository,
		allocRepo repository.AllocationRepository,
	) error) error
}

// SKULocker serializa el trabajo por SKU. Lock espera como máximo el timeout configurado y
// devuelve *domain.LockTimeoutError si no obtiene el bloqueo. unlock es idempotente.
type SKULocker interface {
	Lock(ctx context.Context, sku string) (unlock func(), err error)
}
