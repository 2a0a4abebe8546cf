package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/inventario-fifo/internal/domain"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

// ProcessorConfig configuración del procesador incremental.
type ProcessorConfig struct {
	BatchSize int // movimientos pendientes leídos por página
	Workers   int // SKUs procesados en paralelo en RunAll
}

// MovementFailure movimiento que no pudo procesarse. MovementID = 0 indica un fallo a nivel
// de SKU (p. ej. bloqueo no obtenido).
type MovementFailure struct {
	MovementID int64  `json:"movement_id"`
	SKU        string `json:"sku"`
	Error      string `json:"error"`
	Err        error  `json:"-"`
}

// BatchReport conteos por movimiento de una ejecución.
type BatchReport struct {
	RunID            string            `json:"run_id"`
	Processed        int               `json:"processed"`
	AlreadyProcessed int               `json:"already_processed"`
	Skipped          int               `json:"skipped"`
	Backfilled       int               `json:"backfilled"`
	Failed           int               `json:"failed"`
	NotAttempted     int               `json:"not_attempted"`
	LockTimeouts     int               `json:"lock_timeouts"`
	LotsOpened       int               `json:"lots_opened"`
	AllocationLines  int               `json:"allocation_lines"`
	Failures         []MovementFailure `json:"failures,omitempty"`
}

func newReport(rc RunContext) *BatchReport {
	return &BatchReport{RunID: rc.RunID.String()}
}

func (r *BatchReport) merge(o *BatchReport) {
	if o == nil {
		return
	}
	r.Processed += o.Processed
	r.AlreadyProcessed += o.AlreadyProcessed
	r.Skipped += o.Skipped
	r.Backfilled += o.Backfilled
	r.Failed += o.Failed
	r.NotAttempted += o.NotAttempted
	r.LockTimeouts += o.LockTimeouts
	r.LotsOpened += o.LotsOpened
	r.AllocationLines += o.AllocationLines
	r.Failures = append(r.Failures, o.Failures...)
}

// Committed cantidad de movimientos que esta ejecución dejó marcados como procesados.
func (r *BatchReport) Committed() int { return r.Processed + r.Skipped + r.Backfilled }

func (r *BatchReport) addFailure(m *entity.Movement, err error) {
	r.Failed++
	r.Failures = append(r.Failures, MovementFailure{MovementID: m.RecordID, SKU: m.SKU, Error: err.Error(), Err: err})
}

// addSKUFailure registra un fallo que no pertenece a un movimiento (p. ej. error al leer pendientes).
func (r *BatchReport) addSKUFailure(sku string, err error) {
	r.Failed++
	r.Failures = append(r.Failures, MovementFailure{SKU: sku, Error: err.Error(), Err: err})
}

// RunSummary resultado de RunAll: total y desglose por SKU.
type RunSummary struct {
	RunID string                  `json:"run_id"`
	Total *BatchReport            `json:"total"`
	BySKU map[string]*BatchReport `json:"by_sku"`
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeAlreadyProcessed
	outcomeSkipped
	outcomeBackfilled
)

// Processor lleva los movimientos pendientes por el ledger y el motor exactamente una vez.
// Cada movimiento se confirma en su propia transacción junto con su marca processed.
type Processor struct {
	txRunner TxRunner
	movRepo  repository.MovementRepository
	locker   SKULocker
	ledger   *LotLedger
	engine   *AllocationEngine
	cfg      ProcessorConfig
	log      zerolog.Logger
}

// NewProcessor construye el procesador incremental.
func NewProcessor(
	txRunner TxRunner,
	movRepo repository.MovementRepository,
	locker SKULocker,
	ledger *LotLedger,
	engine *AllocationEngine,
	cfg ProcessorConfig,
	log zerolog.Logger,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Processor{
		txRunner: txRunner,
		movRepo:  movRepo,
		locker:   locker,
		ledger:   ledger,
		engine:   engine,
		cfg:      cfg,
		log:      log.With().Str("component", "processor").Logger(),
	}
}

// SelectPending devuelve los movimientos no procesados (de un SKU o de todos) ordenados por
// fecha y RecordID.
func (p *Processor) SelectPending(ctx context.Context, sku *string) ([]*entity.Movement, error) {
	return p.movRepo.ListPending(ctx, sku, 0)
}

// RunBatch procesa los movimientos en el orden recibido. Los movimientos se agrupan por SKU y
// cada grupo corre bajo el bloqueo de su SKU. Ante un fallo en un movimiento, ese movimiento y
// los siguientes del mismo SKU quedan sin marcar; los anteriores ya están confirmados y los
// demás SKUs siguen su curso.
func (p *Processor) RunBatch(ctx context.Context, rc RunContext, movements []*entity.Movement) *BatchReport {
	report := newReport(rc)
	groups := map[string][]*entity.Movement{}
	var order []string
	for _, m := range movements {
		if _, ok := groups[m.SKU]; !ok {
			order = append(order, m.SKU)
		}
		groups[m.SKU] = append(groups[m.SKU], m)
	}

	for _, sku := range order {
		report.merge(p.runGroup(ctx, rc, sku, groups[sku]))
	}
	return report
}

func (p *Processor) runGroup(ctx context.Context, rc RunContext, sku string, group []*entity.Movement) *BatchReport {
	unlock, err := p.locker.Lock(ctx, sku)
	if err != nil {
		return p.lockFailure(rc, sku, len(group), err)
	}
	defer unlock()
	return p.runSequence(ctx, rc, group)
}

// Run procesa todos los pendientes de un SKU, página por página, bajo un único bloqueo.
func (p *Processor) Run(ctx context.Context, rc RunContext, sku string) (*BatchReport, error) {
	log := rc.logger(p.log).With().Str("sku", sku).Logger()
	unlock, err := p.locker.Lock(ctx, sku)
	if err != nil {
		return nil, err
	}
	defer unlock()

	report := newReport(rc)
	for {
		pending, err := p.movRepo.ListPending(ctx, &sku, p.cfg.BatchSize)
		if err != nil {
			err = fmt.Errorf("listar pendientes de %s: %w", sku, err)
			if ctx.Err() == nil {
				report.addSKUFailure(sku, err)
				log.Error().Err(err).Int("processed", report.Processed).Msg("lectura de pendientes interrumpida")
			}
			return report, err
		}
		if len(pending) == 0 {
			break
		}
		r := p.runSequence(ctx, rc, pending)
		report.merge(r)
		if r.Failed > 0 || ctx.Err() != nil || len(pending) < p.cfg.BatchSize || r.Committed() == 0 {
			break
		}
	}

	ev := log.Info()
	if report.Failed > 0 {
		ev = log.Error()
	}
	ev.Str("oversold_policy", string(p.engine.Policy())).
		Int("processed", report.Processed).
		Int("already_processed", report.AlreadyProcessed).
		Int("skipped", report.Skipped).
		Int("backfilled", report.Backfilled).
		Int("failed", report.Failed).
		Int("not_attempted", report.NotAttempted).
		Msg("lote de movimientos procesado")
	return report, ctx.Err()
}

// RunAll procesa todos los SKUs con pendientes en paralelo (hasta Workers a la vez).
// El fallo de un SKU nunca aborta a los demás.
func (p *Processor) RunAll(ctx context.Context, rc RunContext) (*RunSummary, error) {
	skus, err := p.movRepo.ListPendingSKUs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listar SKUs pendientes: %w", err)
	}
	sort.Strings(skus)

	summary := &RunSummary{RunID: rc.RunID.String(), Total: newReport(rc), BySKU: map[string]*BatchReport{}}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, sku := range skus {
		g.Go(func() error {
			// con err != nil y r != nil el fallo ya quedó registrado en r
			r, err := p.Run(ctx, rc, sku)
			if err != nil && r == nil {
				r = p.lockFailure(rc, sku, 0, err)
			}
			mu.Lock()
			defer mu.Unlock()
			summary.BySKU[sku] = r
			summary.Total.merge(r)
			return nil
		})
	}
	_ = g.Wait()
	return summary, ctx.Err()
}

func (p *Processor) lockFailure(rc RunContext, sku string, pending int, err error) *BatchReport {
	r := newReport(rc)
	r.NotAttempted = pending
	if errors.Is(err, domain.ErrLockTimeout) {
		r.LockTimeouts++
	}
	r.Failures = append(r.Failures, MovementFailure{SKU: sku, Error: err.Error(), Err: err})
	log := rc.logger(p.log)
	log.Error().Err(err).Str("sku", sku).Msg("no se obtuvo el bloqueo del SKU")
	return r
}

// runSequence procesa en orden y se detiene en el primer fallo.
func (p *Processor) runSequence(ctx context.Context, rc RunContext, movements []*entity.Movement) *BatchReport {
	r := newReport(rc)
	log := rc.logger(p.log)
	for i, m := range movements {
		if ctx.Err() != nil {
			r.NotAttempted += len(movements) - i
			break
		}
		out, lots, lines, err := p.processOne(ctx, rc, m)
		if err != nil {
			log.Error().Err(err).Str("sku", m.SKU).Int64("movement_id", m.RecordID).Msg("movimiento no procesado")
			r.addFailure(m, err)
			r.NotAttempted += len(movements) - i - 1
			break
		}
		r.LotsOpened += lots
		r.AllocationLines += lines
		switch out {
		case outcomeProcessed:
			r.Processed++
		case outcomeAlreadyProcessed:
			r.AlreadyProcessed++
		case outcomeSkipped:
			r.Skipped++
		case outcomeBackfilled:
			r.Backfilled++
			r.LotsOpened++
		}
	}
	return r
}

// processOne aplica un movimiento y lo marca como procesado en la misma transacción.
func (p *Processor) processOne(ctx context.Context, rc RunContext, m *entity.Movement) (outcome, int, int, error) {
	var (
		out   outcome
		lots  int
		lines int
	)
	err := p.txRunner.Run(ctx, func(
		movRepo repository.MovementRepository,
		lotRepo repository.LotRepository,
		allocRepo repository.AllocationRepository,
	) error {
		cur, err := movRepo.GetForUpdate(ctx, m.RecordID)
		if err != nil {
			return err
		}
		if cur.Processed {
			out = outcomeAlreadyProcessed
			return nil
		}

		switch cur.Action {
		case entity.ActionIn:
			_, err := p.ledger.openLotInTx(ctx, lotRepo, OpenLotInput{
				SKU:              cur.SKU,
				SourceMovementID: cur.RecordID,
				UnitCost:         cur.UnitCost,
				Quantity:         cur.Quantity,
				OpenedAt:         cur.OccurredAt,
			})
			switch {
			case errors.Is(err, domain.ErrDuplicateLot):
				// lote abierto en una ejecución interrumpida antes de marcar el movimiento
				p.log.Debug().Int64("movement_id", cur.RecordID).Msg("lote ya existente, se marca como procesado")
			case err != nil:
				return err
			default:
				lots = 1
			}
			out = outcomeProcessed
		case entity.ActionOut:
			res, err := p.engine.allocateInTx(ctx, rc, lotRepo, allocRepo, cur)
			if err != nil {
				return err
			}
			lines = len(res.Allocations)
			switch {
			case res.Skipped:
				out = outcomeSkipped
			case res.Backfilled > 0:
				out = outcomeBackfilled
			default:
				out = outcomeProcessed
			}
		default:
			return fmt.Errorf("movimiento %d con acción %q: %w", cur.RecordID, cur.Action, domain.ErrInvalidInput)
		}

		ok, err := movRepo.MarkProcessed(ctx, cur.RecordID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("marcar movimiento %d: %w", cur.RecordID, domain.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return out, 0, 0, err
	}
	return out, lots, lines, nil
}
