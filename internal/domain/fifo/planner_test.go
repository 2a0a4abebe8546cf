package fifo_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
	"github.com/jhoicas/inventario-fifo/internal/domain/fifo"
)

var day1 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func lot(id int64, opened time.Time, cost string, received, remaining int64) *entity.Lot {
	return &entity.Lot{
		ID:                id,
		SKU:               "SKU-1",
		SourceMovementID:  id,
		UnitCost:          decimal.RequireFromString(cost),
		QuantityReceived:  received,
		QuantityRemaining: remaining,
		OpenedAt:          opened,
	}
}

// Escenario: lote A 100 @ 2 (día 1), lote B 50 @ 3 (día 2), salida de 120.
func TestPlanAllocation_ConsumeLoteMasAntiguoPrimero(t *testing.T) {
	lots := []*entity.Lot{
		lot(1, day1, "2", 100, 100),
		lot(2, day1.AddDate(0, 0, 1), "3", 50, 50),
	}

	plan := fifo.PlanAllocation(lots, 120)

	require.Len(t, plan.Draws, 2)
	assert.Equal(t, int64(1), plan.Draws[0].LotID)
	assert.Equal(t, int64(100), plan.Draws[0].Quantity)
	assert.True(t, plan.Draws[0].UnitCost.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int64(2), plan.Draws[1].LotID)
	assert.Equal(t, int64(20), plan.Draws[1].Quantity)
	assert.Equal(t, int64(0), plan.Shortfall)
	assert.True(t, plan.Cost().Equal(decimal.NewFromInt(260)), "costo %s", plan.Cost())
	// el plan no toca los lotes
	assert.Equal(t, int64(100), lots[0].QuantityRemaining)
}

func TestPlanAllocation_Faltante(t *testing.T) {
	lots := []*entity.Lot{
		lot(1, day1, "2", 100, 100),
		lot(2, day1.AddDate(0, 0, 1), "3", 50, 50),
	}

	plan := fifo.PlanAllocation(lots, 200)

	assert.Equal(t, int64(150), plan.Covered)
	assert.Equal(t, int64(50), plan.Shortfall)
}

func TestPlanAllocation_IgnoraLotesCerrados(t *testing.T) {
	lots := []*entity.Lot{
		lot(1, day1, "2", 100, 0),
		lot(2, day1.AddDate(0, 0, 1), "3", 50, 10),
	}

	plan := fifo.PlanAllocation(lots, 5)

	require.Len(t, plan.Draws, 1)
	assert.Equal(t, int64(2), plan.Draws[0].LotID)
}

func TestSortLots_EmpatePorID(t *testing.T) {
	lots := []*entity.Lot{
		lot(7, day1, "1", 1, 1),
		lot(3, day1, "1", 1, 1),
		lot(5, day1.Add(-time.Hour), "1", 1, 1),
	}

	fifo.SortLots(lots)

	ids := []int64{lots[0].ID, lots[1].ID, lots[2].ID}
	assert.Equal(t, []int64{5, 3, 7}, ids)
}

func TestValue(t *testing.T) {
	lots := []*entity.Lot{
		lot(1, day1, "2", 100, 0),
		lot(2, day1, "3", 50, 30),
		lot(3, day1, "4.5", 10, 10),
	}

	v := fifo.Value(lots)

	assert.Equal(t, int64(40), v.OnHand)
	assert.Equal(t, 2, v.OpenLots)
	assert.True(t, v.Value.Equal(decimal.NewFromInt(135)), "valor %s", v.Value)
	assert.True(t, v.AvgUnitCost.Equal(decimal.RequireFromString("3.375")), "promedio %s", v.AvgUnitCost)
}

func TestConservation(t *testing.T) {
	lots := []*entity.Lot{
		lot(1, day1, "2", 100, 0),
		lot(2, day1, "3", 50, 30),
	}

	received, remaining, ok := fifo.Conservation(lots, 120)
	assert.True(t, ok)
	assert.Equal(t, int64(150), received)
	assert.Equal(t, int64(30), remaining)

	_, _, ok = fifo.Conservation(lots, 119)
	assert.False(t, ok)
}
