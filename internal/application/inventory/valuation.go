package inventory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-fifo/internal/domain/fifo"
	"github.com/jhoicas/inventario-fifo/internal/domain/repository"
)

// ValuationDTO valorización del inventario remanente de un SKU.
type ValuationDTO struct {
	SKU         string          `json:"sku"`
	OnHand      int64           `json:"on_hand"`
	Value       decimal.Decimal `json:"value"`
	OpenLots    int             `json:"open_lots"`
	AvgUnitCost decimal.Decimal `json:"avg_unit_cost"`
}

// COGSDTO costo de ventas realizado de un SKU (neto de reversas).
type COGSDTO struct {
	SKU      string          `json:"sku"`
	Quantity int64           `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
}

// ValuationUseCase expone los datos que consume reportería: valorización y costo de ventas.
type ValuationUseCase struct {
	lotRepo   repository.LotRepository
	allocRepo repository.AllocationRepository
}

// NewValuationUseCase construye el caso de uso.
func NewValuationUseCase(lotRepo repository.LotRepository, allocRepo repository.AllocationRepository) *ValuationUseCase {
	return &ValuationUseCase{lotRepo: lotRepo, allocRepo: allocRepo}
}

// Valuation devuelve Σ remanente × costo unitario sobre los lotes abiertos del SKU.
func (uc *ValuationUseCase) Valuation(ctx context.Context, sku string) (*ValuationDTO, error) {
	lots, err := uc.lotRepo.ListOpen(ctx, sku)
	if err != nil {
		return nil, err
	}
	v := fifo.Value(lots)
	return &ValuationDTO{
		SKU:         sku,
		OnHand:      v.OnHand,
		Value:       v.Value,
		OpenLots:    v.OpenLots,
		AvgUnitCost: v.AvgUnitCost,
	}, nil
}

// COGS devuelve la cantidad y el costo netos asignados del SKU.
func (uc *ValuationUseCase) COGS(ctx context.Context, sku string) (*COGSDTO, error) {
	qty, cost, err := uc.allocRepo.Totals(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &COGSDTO{SKU: sku, Quantity: qty, Cost: cost}, nil
}
