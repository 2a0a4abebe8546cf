package inventory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

// Reverser anula la asignación de una salida ya procesada (p. ej. pedido cancelado) con
// líneas compensatorias negativas que devuelven la cantidad a los lotes originales.
// Las asignaciones originales nunca se modifican ni se borran.
type Reverser struct {
	txRunner TxRunner
	movRepo  repository.MovementRepository
	locker   SKULocker
	log      zerolog.Logger
}

// NewReverser construye el caso de uso de reversa.
func NewReverser(txRunner TxRunner, movRepo repository.MovementRepository, locker SKULocker, log zerolog.Logger) *Reverser {
	return &Reverser{
		txRunner: txRunner,
		movRepo:  movRepo,
		locker:   locker,
		log:      log.With().Str("component", "reverser").Logger(),
	}
}

// ReverseMovement escribe una compensación por cada línea de la salida y restaura los lotes,
// todo en una transacción bajo el bloqueo del SKU.
func (r *Reverser) ReverseMovement(ctx context.Context, rc RunContext, outMovementID int64) ([]*entity.Allocation, error) {
	mov, err := r.movRepo.GetByID(ctx, outMovementID)
	if err != nil {
		return nil, err
	}
	if mov.Action != entity.ActionOut || !mov.Processed {
		return nil, fmt.Errorf("reversar movimiento %d (acción %s, procesado %t): %w",
			mov.RecordID, mov.Action, mov.Processed, domain.ErrInvalidInput)
	}

	unlock, err := r.locker.Lock(ctx, mov.SKU)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var comps []*entity.Allocation
	err = r.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		lotRepo repository.LotRepository,
		allocRepo repository.AllocationRepository,
	) error {
		lines, err := allocRepo.ListByMovement(ctx, outMovementID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("reversar movimiento %d: %w", outMovementID, domain.ErrNotAllocated)
		}
		for _, a := range lines {
			if a.IsReversal() {
				return fmt.Errorf("reversar movimiento %d: %w", outMovementID, domain.ErrAlreadyReversed)
			}
		}

		now := rc.now()
		for _, a := range lines {
			lot, err := lotRepo.GetForUpdate(ctx, a.LotID)
			if err != nil {
				return err
			}
			prev := lot.QuantityRemaining
			if err := lot.Restore(a.QuantityAllocated); err != nil {
				return err
			}
			if err := lotRepo.UpdateRemaining(ctx, lot, prev); err != nil {
				return fmt.Errorf("restaurar lote %d: %w", lot.ID, err)
			}
			c := a.Compensate(now, rc.RunID.String())
			if err := allocRepo.Create(ctx, c); err != nil {
				return err
			}
			comps = append(comps, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := rc.logger(r.log)
	log.Info().
		Str("sku", mov.SKU).
		Int64("movement_id", outMovementID).
		Int("lines", len(comps)).
		Msg("salida reversada")
	return comps, nil
}
