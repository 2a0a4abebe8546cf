package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-fifo/internal/application/reconciliation"
)

// NewReconcileCommand crea el comando reconcile.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	var skus []string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compara los lotes guardados con los recalculados desde el ledger",
		Long: `Reconstruye el estado de cada lote a partir del log de movimientos y de las asignaciones
y lo compara con lo guardado. Sale con código 1 si encuentra deriva.

Ejemplo:
  fifo reconcile --sku SKU-1 --sku SKU-2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			reports := make([]*reconciliation.DriftReport, 0, len(skus))
			drift := 0
			for _, sku := range skus {
				r, err := app.Reconciler.ReconcileSKU(cmd.Context(), sku)
				if err != nil {
					return commandError("reconciliar "+sku, err)
				}
				if !r.Clean() {
					drift++
				}
				reports = append(reports, r)
			}

			err = newFormatter(cmd, opts).Success(reports, func(w io.Writer) {
				for _, r := range reports {
					state := "ok"
					if !r.Clean() {
						state = "DERIVA"
					}
					fmt.Fprintf(w, "%s: %s recibido=%d asignado=%d remanente=%d conserva=%t\n",
						r.SKU, state, r.Received, r.Allocated, r.Remaining, r.Conserved)
					if !r.Diff.IsEmpty() {
						renderDiff(w, r.Diff)
					}
				}
			})
			if err != nil {
				return err
			}
			if drift > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d SKUs con deriva", drift))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&skus, "sku", nil, "SKU a reconciliar (repetible, requerido)")
	_ = cmd.MarkFlagRequired("sku")
	return cmd
}
