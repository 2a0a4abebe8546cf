package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/fifo"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

// OversoldPolicy decide qué hacer cuando los lotes abiertos no cubren una salida.
type OversoldPolicy string

// Políticas de sobreventa.
const (
	OversoldEscalate OversoldPolicy = "escalate" // devolver InsufficientInventoryError
	OversoldSkip     OversoldPolicy = "skip"     // no asignar y marcar la salida como procesada
	OversoldBackfill OversoldPolicy = "backfill" // cubrir el faltante con un lote sintético
)

// ParseOversoldPolicy convierte el valor de configuración en una política.
func ParseOversoldPolicy(s string) (OversoldPolicy, error) {
	switch p := OversoldPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OversoldEscalate, OversoldSkip, OversoldBackfill:
		return p, nil
	case "":
		return OversoldEscalate, nil
	}
	return "", fmt.Errorf("política de sobreventa %q: %w", s, domain.ErrInvalidInput)
}

// EngineConfig configuración del motor de asignación.
type EngineConfig struct {
	Policy           OversoldPolicy
	BackfillUnitCost decimal.Decimal
}

// AllocationResult resultado de asignar una salida.
type AllocationResult struct {
	MovementID  int64
	SKU         string
	Allocations []*entity.Allocation
	Shortfall   int64 // faltante detectado (0 si los lotes alcanzaron)
	Backfilled  int64 // unidades cubiertas con lote sintético
	Skipped     bool
}

// Quantity cantidad total asignada.
func (r *AllocationResult) Quantity() int64 {
	var q int64
	for _, a := range r.Allocations {
		q += a.QuantityAllocated
	}
	return q
}

// Cost costo total asignado.
func (r *AllocationResult) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Allocations {
		total = total.Add(a.CostAllocated)
	}
	return total
}

// AllocationEngine asigna salidas contra los lotes abiertos más antiguos (FIFO).
// Todo o nada por movimiento: o se confirman todas las líneas o ninguna.
type AllocationEngine struct {
	txRunner TxRunner
	ledger   *LotLedger
	cfg      EngineConfig
	log      zerolog.Logger
}

// NewAllocationEngine construye el motor.
func NewAllocationEngine(txRunner TxRunner, ledger *LotLedger, cfg EngineConfig, log zerolog.Logger) *AllocationEngine {
	if cfg.Policy == "" {
		cfg.Policy = OversoldEscalate
	}
	return &AllocationEngine{
		txRunner: txRunner,
		ledger:   ledger,
		cfg:      cfg,
		log:      log.With().Str("component", "allocation_engine").Logger(),
	}
}

// Policy devuelve la política de sobreventa configurada.
func (e *AllocationEngine) Policy() OversoldPolicy { return e.cfg.Policy }

// Allocate asigna la salida en su propia transacción. No marca el movimiento como procesado;
// el llamador debe tener el bloqueo del SKU para preservar el orden FIFO.
func (e *AllocationEngine) Allocate(ctx context.Context, rc RunContext, out *entity.Movement) (*AllocationResult, error) {
	var res *AllocationResult
	err := e.txRunner.Run(ctx, func(
		_ repository.MovementRepository,
		lotRepo repository.LotRepository,
		allocRepo repository.AllocationRepository,
	) error {
		var err error
		res, err = e.allocateInTx(ctx, rc, lotRepo, allocRepo, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *AllocationEngine) allocateInTx(
	ctx context.Context,
	rc RunContext,
	lotRepo repository.LotRepository,
	allocRepo repository.AllocationRepository,
	out *entity.Movement,
) (*AllocationResult, error) {
	if out.Action != entity.ActionOut || out.Quantity <= 0 {
		return nil, fmt.Errorf("asignar movimiento %d: %w", out.RecordID, domain.ErrInvalidInput)
	}
	log := rc.logger(e.log).With().Str("sku", out.SKU).Int64("movement_id", out.RecordID).Logger()

	lots, err := e.ledger.listOpenInTx(ctx, lotRepo, out.SKU)
	if err != nil {
		return nil, err
	}
	plan := fifo.PlanAllocation(lots, out.Quantity)
	res := &AllocationResult{MovementID: out.RecordID, SKU: out.SKU, Shortfall: plan.Shortfall}

	if plan.Shortfall > 0 {
		switch e.cfg.Policy {
		case OversoldSkip:
			log.Warn().Int64("shortfall", plan.Shortfall).Msg("salida sin inventario suficiente, omitida")
			res.Skipped = true
			return res, nil
		case OversoldBackfill:
			log.Warn().Int64("shortfall", plan.Shortfall).Msg("salida sin inventario suficiente, se cubre con lote sintético")
		default:
			return nil, &domain.InsufficientInventoryError{
				SKU:        out.SKU,
				MovementID: out.RecordID,
				Requested:  out.Quantity,
				Available:  plan.Covered,
				Shortfall:  plan.Shortfall,
			}
		}
	}

	now := rc.now()
	for _, d := range plan.Draws {
		a, err := e.draw(ctx, rc, lotRepo, allocRepo, out, d.LotID, d.Quantity)
		if err != nil {
			return nil, err
		}
		res.Allocations = append(res.Allocations, a)
	}

	if plan.Shortfall > 0 {
		lot, err := e.ledger.openLotInTx(ctx, lotRepo, OpenLotInput{
			SKU:              out.SKU,
			SourceMovementID: out.RecordID,
			UnitCost:         e.cfg.BackfillUnitCost,
			Quantity:         plan.Shortfall,
			OpenedAt:         out.OccurredAt,
			Backfill:         true,
		})
		if err != nil {
			return nil, err
		}
		a, err := e.draw(ctx, rc, lotRepo, allocRepo, out, lot.ID, plan.Shortfall)
		if err != nil {
			return nil, err
		}
		res.Allocations = append(res.Allocations, a)
		res.Backfilled = plan.Shortfall
	}

	log.Debug().
		Int("lines", len(res.Allocations)).
		Int64("quantity", res.Quantity()).
		Str("cost", res.Cost().String()).
		Time("at", now).
		Msg("salida asignada")
	return res, nil
}

// draw consume del lote y registra la línea con el costo del lote en ese instante.
func (e *AllocationEngine) draw(
	ctx context.Context,
	rc RunContext,
	lotRepo repository.LotRepository,
	allocRepo repository.AllocationRepository,
	out *entity.Movement,
	lotID, qty int64,
) (*entity.Allocation, error) {
	now := rc.now()
	lot, err := e.ledger.consumeInTx(ctx, lotRepo, lotID, qty, now)
	if err != nil {
		return nil, err
	}
	a := entity.NewAllocation(out, lot, qty, now, rc.RunID.String())
	if err := allocRepo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
