package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-fifo/internal/domain/diff"
	"github.com/jhoicas/inventario-fifo/internal/infrastructure/snapshot"
)

// NewDiffCommand crea el comando diff. No necesita almacén.
func NewDiffCommand(opts *RootOptions) *cobra.Command {
	var (
		oldPath, newPath, key string
		tolerance             float64
		failOnDiff            bool
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compara dos snapshots tabulares por una columna clave",
		Long: `Compara dos snapshots (CSV, JSON o YAML) fila por fila usando la columna clave.
Las claves se comparan sin espacios y en mayúsculas; los números con tolerancia absoluta.

Ejemplo:
  fifo diff --old antes.csv --new despues.json --key sku --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			oldRows, err := snapshot.LoadRows(oldPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "leer snapshot anterior", err)
			}
			newRows, err := snapshot.LoadRows(newPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "leer snapshot nuevo", err)
			}

			res := diff.Compute(oldRows, newRows, key, diff.WithTolerance(tolerance))
			if err := newFormatter(cmd, opts).Success(res, func(w io.Writer) { renderDiff(w, res) }); err != nil {
				return err
			}
			if failOnDiff && !res.IsEmpty() {
				return NewExitError(ExitFailure, "los snapshots difieren")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&oldPath, "old", "", "snapshot anterior (requerido)")
	cmd.Flags().StringVar(&newPath, "new", "", "snapshot nuevo (requerido)")
	cmd.Flags().StringVar(&key, "key", "", "columna clave (requerido)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", diff.DefaultTolerance, "tolerancia numérica absoluta")
	cmd.Flags().BoolVar(&failOnDiff, "fail-on-diff", false, "salir con código 1 si hay diferencias")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("new")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func renderDiff(w io.Writer, res diff.Result) {
	for _, m := range res.Modified {
		fmt.Fprintf(w, "~ %s\n", m.Key)
		for _, c := range m.Changes {
			fmt.Fprintf(w, "    %s: %v -> %v\n", c.Column, c.Old, c.New)
		}
	}
	for _, r := range res.Added {
		fmt.Fprintf(w, "+ %v\n", map[string]any(r))
	}
	for _, r := range res.Removed {
		fmt.Fprintf(w, "- %v\n", map[string]any(r))
	}
	if len(res.DuplicateKeys) > 0 {
		fmt.Fprintf(w, "claves duplicadas: %v\n", res.DuplicateKeys)
	}
	if res.Unkeyed > 0 {
		fmt.Fprintf(w, "filas sin clave: %d\n", res.Unkeyed)
	}
	fmt.Fprintf(w, "%d modificadas, %d agregadas, %d eliminadas\n", len(res.Modified), len(res.Added), len(res.Removed))
}
