package fifo

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
)

// Valuation resume el inventario remanente de un SKU.
type Valuation struct {
	OnHand      int64
	Value       decimal.Decimal
	OpenLots    int
	AvgUnitCost decimal.Decimal
}

// Value valoriza los lotes abiertos: Σ remanente × costo unitario.
func Value(lots []*entity.Lot) Valuation {
	v := Valuation{Value: decimal.Zero, AvgUnitCost: decimal.Zero}
	for _, l := range lots {
		if !l.IsOpen() {
			continue
		}
		v.OnHand += l.QuantityRemaining
		v.Value = v.Value.Add(l.Value())
		v.OpenLots++
	}
	if v.OnHand > 0 {
		v.AvgUnitCost = v.Value.Div(decimal.NewFromInt(v.OnHand))
	}
	return v
}

// Conservation verifica Σ recibido - Σ asignado = Σ remanente para un SKU.
func Conservation(lots []*entity.Lot, allocated int64) (received, remaining int64, ok bool) {
	for _, l := range lots {
		received += l.QuantityReceived
		remaining += l.QuantityRemaining
	}
	return received, remaining, received-allocated == remaining
}
