package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-fifo/internal/application/inventory"
	"github.com/jhoicas/inventario-fifo/internal/domain"
)

func TestReverser_ReverseMovement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in1 := env.in(t, "SKU-1", 100, "2", 0)
	in2 := env.in(t, "SKU-1", 50, "3", 1)
	out := env.out(t, "SKU-1", 120, 2)
	_, err := env.proc.Run(ctx, testRunContext(), "SKU-1")
	require.NoError(t, err)
	closedAt := env.lotOf(t, in1.RecordID).ClosedAt
	require.NotNil(t, closedAt)

	rc := testRunContext()
	comps, err := env.reverser.ReverseMovement(ctx, rc, out.RecordID)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, int64(-100), comps[0].QuantityAllocated)
	assert.Equal(t, int64(-20), comps[1].QuantityAllocated)
	assert.True(t, comps[0].IsReversal())
	assert.Equal(t, rc.RunID.String(), comps[0].RunID)

	// Las líneas originales siguen ahí; las compensaciones apuntan a ellas
	lines := env.allocations(t, out.RecordID)
	require.Len(t, lines, 4)
	assert.Equal(t, lines[0].ID, *lines[2].ReversesAllocID)
	assert.Equal(t, lines[1].ID, *lines[3].ReversesAllocID)

	lot1 := env.lotOf(t, in1.RecordID)
	assert.Equal(t, int64(100), lot1.QuantityRemaining)
	assert.NotNil(t, lot1.ClosedAt, "closed_at no se borra")
	assert.Equal(t, int64(50), env.lotOf(t, in2.RecordID).QuantityRemaining)

	cogs, err := env.valuation.COGS(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cogs.Quantity)
	assert.True(t, cogs.Cost.IsZero())

	_, err = env.reverser.ReverseMovement(ctx, rc, out.RecordID)
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)
}

func TestReverser_Rechazos(t *testing.T) {
	env := newTestEnv(t, withPolicy(inventory.OversoldSkip, "0"))
	ctx := context.Background()
	in := env.in(t, "SKU-1", 10, "1", 0)
	skipped := env.out(t, "SKU-1", 50, 1)
	_, err := env.proc.Run(ctx, testRunContext(), "SKU-1")
	require.NoError(t, err)
	pending := env.out(t, "SKU-1", 1, 2)

	_, err = env.reverser.ReverseMovement(ctx, testRunContext(), in.RecordID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.reverser.ReverseMovement(ctx, testRunContext(), pending.RecordID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.reverser.ReverseMovement(ctx, testRunContext(), skipped.RecordID)
	assert.ErrorIs(t, err, domain.ErrNotAllocated)

	_, err = env.reverser.ReverseMovement(ctx, testRunContext(), 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
