package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain"
)

func TestParseOversoldPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    inventory.OversoldPolicy
		wantErr bool
	}{
		{"", inventory.OversoldEscalate, false},
		{"escalate", inventory.OversoldEscalate, false},
		{" SKIP ", inventory.OversoldSkip, false},
		{"Backfill", inventory.OversoldBackfill, false},
		{"ignorar", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := inventory.ParseOversoldPolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Entradas 100 @ 2.00 y 50 @ 3.00, salida de 120: 100 del primer lote y 20 del segundo.
func TestAllocationEngine_SalidaCruzaDosLotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in1 := env.in(t, "SKU-1", 100, "2.00", 0)
	in2 := env.in(t, "SKU-1", 50, "3.00", 1)
	out := env.out(t, "SKU-1", 120, 2)

	report, err := env.proc.Run(ctx, testRunContext(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.LotsOpened)
	assert.Equal(t, 2, report.AllocationLines)

	lines := env.allocations(t, out.RecordID)
	require.Len(t, lines, 2)
	lot1, lot2 := env.lotOf(t, in1.RecordID), env.lotOf(t, in2.RecordID)

	assert.Equal(t, lot1.ID, lines[0].LotID)
	assert.Equal(t, int64(100), lines[0].QuantityAllocated)
	assert.True(t, lines[0].UnitCost.Equal(dec("2")))
	assert.True(t, lines[0].CostAllocated.Equal(dec("200")))

	assert.Equal(t, lot2.ID, lines[1].LotID)
	assert.Equal(t, int64(20), lines[1].QuantityAllocated)
	assert.True(t, lines[1].CostAllocated.Equal(dec("60")))

	assert.Equal(t, int64(0), lot1.QuantityRemaining)
	assert.NotNil(t, lot1.ClosedAt)
	assert.Equal(t, int64(30), lot2.QuantityRemaining)
	assert.Nil(t, lot2.ClosedAt)

	cogs, err := env.valuation.COGS(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), cogs.Quantity)
	assert.True(t, cogs.Cost.Equal(dec("260")), cogs.Cost.String())
	assert.True(t, env.movement(t, out.RecordID).Processed)
}

// Entrada 100, salida 150 con escalate: error con faltante 50 y nada confirmado.
func TestAllocationEngine_InventarioInsuficiente(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := env.in(t, "SKU-1", 100, "2.00", 0)
	out := env.out(t, "SKU-1", 150, 1)

	report, err := env.proc.Run(ctx, testRunContext(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, out.RecordID, report.Failures[0].MovementID)

	var insuf *domain.InsufficientInventoryError
	require.True(t, errors.As(report.Failures[0].Err, &insuf))
	assert.Equal(t, int64(150), insuf.Requested)
	assert.Equal(t, int64(100), insuf.Available)
	assert.Equal(t, int64(50), insuf.Shortfall)

	assert.Empty(t, env.allocations(t, out.RecordID))
	assert.Equal(t, int64(100), env.lotOf(t, in.RecordID).QuantityRemaining)
	assert.False(t, env.movement(t, out.RecordID).Processed)

	// Allocate directo devuelve el mismo error sin escribir nada
	_, err = env.engine.Allocate(ctx, testRunContext(), env.movement(t, out.RecordID))
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	assert.Empty(t, env.allocations(t, out.RecordID))
}

func TestAllocationEngine_PoliticaSkip(t *testing.T) {
	env := newTestEnv(t, withPolicy(inventory.OversoldSkip, "0"))
	ctx := context.Background()
	in := env.in(t, "SKU-1", 10, "2", 0)
	out := env.out(t, "SKU-1", 15, 1)

	report, err := env.proc.Run(ctx, testRunContext(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	assert.Empty(t, env.allocations(t, out.RecordID))
	assert.True(t, env.movement(t, out.RecordID).Processed)
	assert.Equal(t, int64(10), env.lotOf(t, in.RecordID).QuantityRemaining)
}

func TestAllocationEngine_PoliticaBackfill(t *testing.T) {
	env := newTestEnv(t, withPolicy(inventory.OversoldBackfill, "5"))
	ctx := context.Background()
	in := env.in(t, "SKU-1", 100, "2", 0)
	out := env.out(t, "SKU-1", 150, 1)

	report, err := env.proc.Run(ctx, testRunContext(), "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Backfilled)
	assert.Equal(t, 2, report.LotsOpened)

	lines := env.allocations(t, out.RecordID)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(100), lines[0].QuantityAllocated)
	assert.Equal(t, int64(50), lines[1].QuantityAllocated)
	assert.True(t, lines[1].CostAllocated.Equal(dec("250")))

	synthetic := env.lotOf(t, out.RecordID)
	assert.True(t, synthetic.Backfill)
	assert.Equal(t, int64(50), synthetic.QuantityReceived)
	assert.Equal(t, int64(0), synthetic.QuantityRemaining)
	assert.Equal(t, synthetic.ID, lines[1].LotID)
	assert.Equal(t, int64(0), env.lotOf(t, in.RecordID).QuantityRemaining)
}

func TestAllocationEngine_Allocate_RechazaEntradas(t *testing.T) {
	env := newTestEnv(t)
	in := env.in(t, "SKU-1", 10, "1", 0)
	_, err := env.engine.Allocate(context.Background(), testRunContext(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAllocationEngine_RunIDEnLineas(t *testing.T) {
	env := newTestEnv(t)
	env.in(t, "SKU-1", 10, "1", 0)
	out := env.out(t, "SKU-1", 4, 1)
	rc := testRunContext()

	_, err := env.proc.Run(context.Background(), rc, "SKU-1")
	require.NoError(t, err)
	lines := env.allocations(t, out.RecordID)
	require.Len(t, lines, 1)
	assert.Equal(t, rc.RunID.String(), lines[0].RunID)
	assert.True(t, lines[0].AllocatedAt.Equal(rc.Now()))
}
