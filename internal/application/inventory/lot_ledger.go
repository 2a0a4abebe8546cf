package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/fifo"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

// LotLedger administra los lotes por SKU: apertura, consulta en orden FIFO y consumo.
type LotLedger struct {
	txRunner TxRunner
	lotRepo  repository.LotRepository
	log      zerolog.Logger
}

// NewLotLedger construye el ledger. lotRepo se usa para lecturas fuera de transacción.
func NewLotLedger(txRunner TxRunner, lotRepo repository.LotRepository, log zerolog.Logger) *LotLedger {
	return &LotLedger{
		txRunner: txRunner,
		lotRepo:  lotRepo,
		log:      log.With().Str("component", "lot_ledger").Logger(),
	}
}

// OpenLotInput datos para abrir un lote.
type OpenLotInput struct {
	SKU              string
	SourceMovementID int64
	UnitCost         decimal.Decimal
	Quantity         int64
	OpenedAt         time.Time
	Backfill         bool
}

// OpenLot abre un lote en su propia transacción. Devuelve *domain.DuplicateLotError si el
// movimiento de origen ya tiene lote.
func (l *LotLedger) OpenLot(ctx context.Context, in OpenLotInput) (*entity.Lot, error) {
	var lot *entity.Lot
	err := l.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		lotRepo repository.LotRepository,
		_ repository.AllocationRepository,
	) error {
		var err error
		lot, err = l.openLotInTx(ctx, lotRepo, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// ListOpenLots devuelve los lotes con remanente > 0 en orden de consumo.
func (l *LotLedger) ListOpenLots(ctx context.Context, sku string) ([]*entity.Lot, error) {
	return l.listOpenInTx(ctx, l.lotRepo, sku)
}

// Consume descuenta qty del lote en su propia transacción.
func (l *LotLedger) Consume(ctx context.Context, lotID, qty int64) error {
	return l.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		lotRepo repository.LotRepository,
		_ repository.AllocationRepository,
	) error {
		_, err := l.consumeInTx(ctx, lotRepo, lotID, qty, time.Now().UTC())
		return err
	})
}

func (l *LotLedger) openLotInTx(ctx context.Context, lotRepo repository.LotRepository, in OpenLotInput) (*entity.Lot, error) {
	lot, err := entity.NewLot(in.SKU, in.SourceMovementID, in.UnitCost, in.Quantity, in.OpenedAt)
	if err != nil {
		return nil, err
	}
	lot.Backfill = in.Backfill
	if err := lotRepo.Create(ctx, lot); err != nil {
		return nil, err
	}
	l.log.Debug().
		Str("sku", lot.SKU).
		Int64("lot_id", lot.ID).
		Int64("movement_id", lot.SourceMovementID).
		Int64("quantity", lot.QuantityReceived).
		Str("unit_cost", lot.UnitCost.String()).
		Bool("backfill", lot.Backfill).
		Msg("lote abierto")
	return lot, nil
}

func (l *LotLedger) listOpenInTx(ctx context.Context, lotRepo repository.LotRepository, sku string) ([]*entity.Lot, error) {
	lots, err := lotRepo.ListOpen(ctx, sku)
	if err != nil {
		return nil, err
	}
	fifo.SortLots(lots)
	return lots, nil
}

// consumeInTx bloquea la fila del lote, descuenta y persiste con compare-and-swap del remanente.
func (l *LotLedger) consumeInTx(ctx context.Context, lotRepo repository.LotRepository, lotID, qty int64, at time.Time) (*entity.Lot, error) {
	lot, err := lotRepo.GetForUpdate(ctx, lotID)
	if err != nil {
		return nil, err
	}
	prev := lot.QuantityRemaining
	if err := lot.Consume(qty, at); err != nil {
		return nil, err
	}
	if err := lotRepo.UpdateRemaining(ctx, lot, prev); err != nil {
		return nil, fmt.Errorf("consumir lote %d: %w", lotID, err)
	}
	if lot.ClosedAt != nil && prev > 0 && lot.QuantityRemaining == 0 {
		l.log.Debug().Str("sku", lot.SKU).Int64("lot_id", lot.ID).Msg("lote cerrado")
	}
	return lot, nil
}
