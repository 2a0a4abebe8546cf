// Package reconciliation detecta deriva entre el estado guardado de los lotes y el que se
// reconstruye a partir del log de movimientos y del ledger de asignaciones.
package reconciliation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/inventario-fifo/internal/domain/diff"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/fifo"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

// KeyColumn clave de los snapshots de lotes: el movimiento que abrió el lote.
// Así una entrada procesada sin lote aparece como fila agregada.
const KeyColumn = "source_movement_id"

// Config configuración del reconciliador.
type Config struct {
	Tolerance float64 // tolerancia numérica del diff
	Workers   int     // pares comparados en paralelo en DiffPairs
}

// DriftReport resultado de reconciliar un SKU.
type DriftReport struct {
	SKU       string      `json:"sku" yaml:"sku"`
	Diff      diff.Result `json:"diff" yaml:"diff"`
	Received  int64       `json:"received" yaml:"received"`
	Allocated int64       `json:"allocated" yaml:"allocated"`
	Remaining int64       `json:"remaining" yaml:"remaining"`
	Conserved bool        `json:"conserved" yaml:"conserved"`
}

// Clean indica que no hay deriva: se conserva la cantidad y el diff está vacío.
func (r *DriftReport) Clean() bool { return r.Conserved && r.Diff.IsEmpty() }

// SnapshotPair par de snapshots a comparar.
type SnapshotPair struct {
	Name string
	Old  []diff.Row
	New  []diff.Row
	Key  string
}

// PairResult diff de un SnapshotPair.
type PairResult struct {
	Name   string      `json:"name" yaml:"name"`
	Result diff.Result `json:"result" yaml:"result"`
}

// Reconciler compara lotes guardados contra lotes recalculados.
type Reconciler struct {
	movRepo   repository.MovementRepository
	lotRepo   repository.LotRepository
	allocRepo repository.AllocationRepository
	cfg       Config
	log       zerolog.Logger
}

// NewReconciler construye el reconciliador.
func NewReconciler(
	movRepo repository.MovementRepository,
	lotRepo repository.LotRepository,
	allocRepo repository.AllocationRepository,
	cfg Config,
	log zerolog.Logger,
) *Reconciler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = diff.DefaultTolerance
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Reconciler{
		movRepo:   movRepo,
		lotRepo:   lotRepo,
		allocRepo: allocRepo,
		cfg:       cfg,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// ReconcileSKU arma el snapshot guardado y el recalculado del SKU y los compara.
// closed_at no se compara: una reversa devuelve cantidad sin reabrir el lote.
func (r *Reconciler) ReconcileSKU(ctx context.Context, sku string) (*DriftReport, error) {
	lots, err := r.lotRepo.ListBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("listar lotes de %s: %w", sku, err)
	}
	movements, err := r.movRepo.ListBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("listar movimientos de %s: %w", sku, err)
	}
	sums, err := r.allocRepo.SumByLot(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("sumar asignaciones de %s: %w", sku, err)
	}

	stored := make([]diff.Row, 0, len(lots))
	lotBySource := make(map[int64]*entity.Lot, len(lots))
	for _, l := range lots {
		stored = append(stored, lotRow(l.SourceMovementID, l.QuantityReceived, l.QuantityRemaining, l))
		lotBySource[l.SourceMovementID] = l
	}

	recomputed := make([]diff.Row, 0, len(lots))
	var allocated int64
	for _, m := range movements {
		if !m.IsInbound() || !m.Processed {
			continue
		}
		l, ok := lotBySource[m.RecordID]
		if !ok {
			// entrada marcada como procesada sin lote
			recomputed = append(recomputed, diff.Row{
				KeyColumn:            m.RecordID,
				"quantity_received":  m.Quantity,
				"quantity_remaining": m.Quantity,
				"unit_cost":          m.UnitCost,
			})
			continue
		}
		used := sums[l.ID]
		allocated += used
		recomputed = append(recomputed, diff.Row{
			KeyColumn:            m.RecordID,
			"quantity_received":  m.Quantity,
			"quantity_remaining": m.Quantity - used,
			"unit_cost":          m.UnitCost,
		})
	}
	// los lotes sintéticos no tienen entrada de origen: se recalcula solo el remanente
	for _, l := range lots {
		if !l.Backfill {
			continue
		}
		used := sums[l.ID]
		allocated += used
		recomputed = append(recomputed, lotRow(l.SourceMovementID, l.QuantityReceived, l.QuantityReceived-used, l))
	}

	res := diff.Compute(stored, recomputed, KeyColumn, diff.WithTolerance(r.cfg.Tolerance))
	received, remaining, ok := fifo.Conservation(lots, allocated)
	report := &DriftReport{
		SKU:       sku,
		Diff:      res,
		Received:  received,
		Allocated: allocated,
		Remaining: remaining,
		Conserved: ok,
	}

	ev := r.log.Info()
	if !report.Clean() {
		ev = r.log.Warn()
	}
	ev.Str("sku", sku).
		Int("modified", len(res.Modified)).
		Int("added", len(res.Added)).
		Int("removed", len(res.Removed)).
		Bool("conserved", ok).
		Msg("reconciliación de lotes")
	return report, nil
}

func lotRow(key, received, remaining int64, l *entity.Lot) diff.Row {
	return diff.Row{
		KeyColumn:            key,
		"quantity_received":  received,
		"quantity_remaining": remaining,
		"unit_cost":          l.UnitCost,
	}
}

// DiffPairs compara varios pares en paralelo (hasta Workers a la vez). El orden del
// resultado es el de pairs.
func (r *Reconciler) DiffPairs(ctx context.Context, pairs []SnapshotPair) ([]PairResult, error) {
	out := make([]PairResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = PairResult{
				Name:   p.Name,
				Result: diff.Compute(p.Old, p.New, p.Key, diff.WithTolerance(r.cfg.Tolerance)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
