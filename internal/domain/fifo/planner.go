// Package fifo contiene la lógica pura de asignación FIFO (servicio de dominio, sin persistencia).
package fifo

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain/entity"
)

// Draw es una extracción planificada de un lote.
type Draw struct {
	LotID    int64
	Quantity int64
	UnitCost decimal.Decimal
}

// Plan es el resultado de planificar una salida contra los lotes abiertos.
type Plan struct {
	Draws     []Draw
	Requested int64
	Covered   int64
	Shortfall int64
}

// Cost devuelve el costo total de las extracciones planificadas.
func (p Plan) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Draws {
		total = total.Add(d.UnitCost.Mul(decimal.NewFromInt(d.Quantity)))
	}
	return total
}

// SortLots ordena en orden de consumo: opened_at ascendente y, ante empate, ID ascendente.
func SortLots(lots []*entity.Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if !a.OpenedAt.Equal(b.OpenedAt) {
			return a.OpenedAt.Before(b.OpenedAt)
		}
		return a.ID < b.ID
	})
}

// Available suma el remanente de los lotes abiertos.
func Available(lots []*entity.Lot) int64 {
	var total int64
	for _, l := range lots {
		if l.QuantityRemaining > 0 {
			total += l.QuantityRemaining
		}
	}
	return total
}

// PlanAllocation recorre los lotes (ya ordenados) y toma min(pendiente, remanente) de cada uno
// hasta cubrir qty. Si no alcanza, Shortfall > 0 y Draws contiene lo que sí cubren los lotes.
// No modifica los lotes.
func PlanAllocation(lots []*entity.Lot, qty int64) Plan {
	plan := Plan{Requested: qty}
	pending := qty
	for _, lot := range lots {
		if pending <= 0 {
			break
		}
		if lot.QuantityRemaining <= 0 {
			continue
		}
		take := pending
		if take > lot.QuantityRemaining {
			take = lot.QuantityRemaining
		}
		plan.Draws = append(plan.Draws, Draw{LotID: lot.ID, Quantity: take, UnitCost: lot.UnitCost})
		plan.Covered += take
		pending -= take
	}
	if pending > 0 {
		plan.Shortfall = pending
	}
	return plan
}
