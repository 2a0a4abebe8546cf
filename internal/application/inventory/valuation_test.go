package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuationUseCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.in(t, "SKU-1", 100, "2", 0)
	env.in(t, "SKU-1", 50, "3", 1)
	env.in(t, "SKU-1", 10, "4.5", 2)
	env.out(t, "SKU-1", 120, 3)
	_, err := env.proc.Run(ctx, testRunContext(), "SKU-1")
	require.NoError(t, err)

	v, err := env.valuation.Valuation(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), v.OnHand)
	assert.Equal(t, 2, v.OpenLots)
	assert.True(t, v.Value.Equal(dec("135")), v.Value.String())
	assert.True(t, v.AvgUnitCost.Equal(dec("3.375")), v.AvgUnitCost.String())

	cogs, err := env.valuation.COGS(ctx, "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), cogs.Quantity)
	assert.True(t, cogs.Cost.Equal(dec("260")))
}

func TestValuationUseCase_SKUSinLotes(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.valuation.Valuation(context.Background(), "NADA")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.OnHand)
	assert.True(t, v.Value.IsZero())
	assert.Equal(t, 0, v.OpenLots)
}
