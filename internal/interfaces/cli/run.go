package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
)

// NewRunCommand crea el comando run.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var sku string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Procesa los movimientos pendientes",
		Long: `Lleva los movimientos pendientes por el ledger de lotes y el motor de asignación.
Cada movimiento se confirma en su propia transacción; reejecutar es seguro.

Ejemplo:
  fifo run
  fifo run --sku SKU-1 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			rc := inventory.NewRunContext(opts.Actor)
			out := newFormatter(cmd, opts)

			var (
				total  *inventory.BatchReport
				runErr error
			)
			if sku != "" {
				report, err := app.Processor.Run(ctx, rc, sku)
				if err != nil && report == nil {
					return commandError("procesar "+sku, err)
				}
				total, runErr = report, err
				if err := out.Success(report, func(w io.Writer) { renderReport(w, sku, report) }); err != nil {
					return err
				}
			} else {
				summary, err := app.Processor.RunAll(ctx, rc)
				if err != nil && summary == nil {
					return commandError("procesar pendientes", err)
				}
				total, runErr = summary.Total, err
				if err := out.Success(summary, func(w io.Writer) { renderSummary(w, summary) }); err != nil {
					return err
				}
			}
			// el reporte parcial ya se escribió; el error de acceso a datos define la salida
			if runErr != nil && ctx.Err() == nil {
				return commandError("procesar pendientes", runErr)
			}
			if ctx.Err() != nil {
				return WrapExitError(ExitFailure, "ejecución interrumpida", ctx.Err())
			}
			if total.Failed > 0 || total.LockTimeouts > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d movimientos fallaron, %d SKUs sin bloqueo", total.Failed, total.LockTimeouts))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sku, "sku", "", "procesar solo este SKU")
	return cmd
}

func renderReport(w io.Writer, label string, r *inventory.BatchReport) {
	fmt.Fprintf(w, "%s: procesados=%d ya_procesados=%d omitidos=%d backfill=%d fallidos=%d sin_intentar=%d lotes=%d lineas=%d\n",
		label, r.Processed, r.AlreadyProcessed, r.Skipped, r.Backfilled, r.Failed, r.NotAttempted, r.LotsOpened, r.AllocationLines)
	for _, f := range r.Failures {
		if f.MovementID == 0 {
			fmt.Fprintf(w, "  %s: %s\n", f.SKU, f.Error)
			continue
		}
		fmt.Fprintf(w, "  %s movimiento %d: %s\n", f.SKU, f.MovementID, f.Error)
	}
}

func renderSummary(w io.Writer, s *inventory.RunSummary) {
	skus := make([]string, 0, len(s.BySKU))
	for sku := range s.BySKU {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	for _, sku := range skus {
		renderReport(w, sku, s.BySKU[sku])
	}
	renderReport(w, "total", s.Total)
	fmt.Fprintf(w, "run_id %s\n", s.RunID)
}
