package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
)

// NewReverseCommand crea el comando reverse.
func NewReverseCommand(opts *RootOptions) *cobra.Command {
	var movementID int64
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Reversa la asignación de una salida ya procesada",
		Long: `Escribe líneas compensatorias negativas por cada asignación de la salida y devuelve
la cantidad a los lotes de origen. Las asignaciones originales no se modifican.

Ejemplo:
  fifo reverse --movement 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			comps, err := app.Reverser.ReverseMovement(cmd.Context(), inventory.NewRunContext(opts.Actor), movementID)
			if err != nil {
				return commandError(fmt.Sprintf("reversar movimiento %d", movementID), err)
			}
			return newFormatter(cmd, opts).Success(allocationViews(comps), func(w io.Writer) {
				for _, c := range comps {
					fmt.Fprintf(w, "lote %d: %d unidades, costo %s\n", c.LotID, c.QuantityAllocated, c.CostAllocated.StringFixed(4))
				}
			})
		},
	}
	cmd.Flags().Int64Var(&movementID, "movement", 0, "record_id de la salida (requerido)")
	_ = cmd.MarkFlagRequired("movement")
	return cmd
}

// AllocationView línea de asignación para la salida de la CLI.
type AllocationView struct {
	ID              int64  `json:"alloc_id"`
	OutMovementID   int64  `json:"out_movement_id"`
	LotID           int64  `json:"lot_id"`
	Quantity        int64  `json:"quantity_allocated"`
	UnitCost        string `json:"unit_cost"`
	CostAllocated   string `json:"cost_allocated"`
	ReversesAllocID *int64 `json:"reverses_alloc_id,omitempty"`
}

func allocationViews(list []*entity.Allocation) []AllocationView {
	out := make([]AllocationView, 0, len(list))
	for _, a := range list {
		out = append(out, AllocationView{
			ID:              a.ID,
			OutMovementID:   a.OutMovementID,
			LotID:           a.LotID,
			Quantity:        a.QuantityAllocated,
			UnitCost:        a.UnitCost.String(),
			CostAllocated:   a.CostAllocated.String(),
			ReversesAllocID: a.ReversesAllocID,
		})
	}
	return out
}
