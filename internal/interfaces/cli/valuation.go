package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
)

// ValuationResult valorización y costo de ventas de un SKU.
type ValuationResult struct {
	Valuation *inventory.ValuationDTO `json:"valuation"`
	COGS      *inventory.COGSDTO      `json:"cogs"`
}

// NewValuationCommand crea el comando valuation.
func NewValuationCommand(opts *RootOptions) *cobra.Command {
	var sku string
	cmd := &cobra.Command{
		Use:   "valuation",
		Short: "Valoriza el inventario remanente y el costo de ventas de un SKU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			v, err := app.Valuation.Valuation(ctx, sku)
			if err != nil {
				return commandError("valorizar "+sku, err)
			}
			c, err := app.Valuation.COGS(ctx, sku)
			if err != nil {
				return commandError("costo de ventas de "+sku, err)
			}
			res := ValuationResult{Valuation: v, COGS: c}
			return newFormatter(cmd, opts).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s: existencia=%d valor=%s lotes_abiertos=%d costo_promedio=%s\n",
					sku, v.OnHand, v.Value.StringFixed(4), v.OpenLots, v.AvgUnitCost.StringFixed(4))
				fmt.Fprintf(w, "%s: vendidas=%d costo_de_ventas=%s\n", sku, c.Quantity, c.Cost.StringFixed(4))
			})
		},
	}
	cmd.Flags().StringVar(&sku, "sku", "", "SKU a valorizar (requerido)")
	_ = cmd.MarkFlagRequired("sku")
	return cmd
}
