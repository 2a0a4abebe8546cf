package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewMigrateCommand crea el comando migrate.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica el esquema del almacén configurado",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Migrate(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "migrar esquema", err)
			}
			driver := app.Config.Store.Driver
			return newFormatter(cmd, opts).Success(map[string]string{"driver": driver, "status": "migrated"}, func(w io.Writer) {
				fmt.Fprintf(w, "esquema al día (%s)\n", driver)
			})
		},
	}
}
