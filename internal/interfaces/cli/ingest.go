package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/snapshot"
)

// IngestResult movimientos agregados al log.
type IngestResult struct {
	File    string `json:"file"`
	Count   int    `json:"count"`
	FirstID int64  `json:"first_id,omitempty"`
	LastID  int64  `json:"last_id,omitempty"`
}

// NewIngestCommand crea el comando ingest.
func NewIngestCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Agrega movimientos desde un archivo CSV, JSON o YAML",
		Long: `Agrega movimientos al log. Columnas: sku, action (in|out), quantity, unit_cost,
occurred_at (RFC3339 o AAAA-MM-DD), reference. El archivo se valida completo y se inserta
en una sola transacción.

Ejemplo:
  fifo ingest --file movimientos.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			movements, err := snapshot.LoadMovements(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "leer movimientos", err)
			}
			app, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			err = app.TxRunner.Run(ctx, func(movRepo repository.MovementRepository, _ repository.LotRepository, _ repository.AllocationRepository) error {
				for _, m := range movements {
					if err := movRepo.Append(ctx, m); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return commandError("agregar movimientos", err)
			}

			res := IngestResult{File: file, Count: len(movements)}
			if len(movements) > 0 {
				res.FirstID = movements[0].RecordID
				res.LastID = movements[len(movements)-1].RecordID
			}
			app.Log.Info().Str("file", file).Int("count", res.Count).Msg("movimientos agregados")
			return newFormatter(cmd, opts).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%d movimientos agregados (ids %d..%d)\n", res.Count, res.FirstID, res.LastID)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "archivo de movimientos (requerido)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

