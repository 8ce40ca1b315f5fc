package budget

import (
	"github.com/google/uuid"

	"github.com/noah-isme/backend-clinica/internal/catalog"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

// estimatedCostRatioBps is the fallback cost heuristic applied when the
// catalog does not carry an explicit estimated cost: 30% of the base price.
const estimatedCostRatioBps = 3000

// Item is one procedure instance inside a budget. The instance id is minted
// per addition, so the same catalog procedure can appear more than once.
// Region and Tooth locate the procedure anatomically and are mutually
// exclusive: at most one of them is ever set.
type Item struct {
	InstanceID  string        `json:"instanceId"`
	ProcedureID string        `json:"procedureId"`
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	UnitPrice   pricing.Money `json:"unitPrice"`
	Qty         int           `json:"qty"`
	UnitCost    pricing.Money `json:"unitCost"`
	Region      string        `json:"region,omitempty"`
	Tooth       int           `json:"tooth,omitempty"`
	Sold        bool          `json:"sold"`
	FinalValue  pricing.Money `json:"finalValue,omitempty"`
}

// newItem mints an Item from a catalog entry: quantity one, price and cost
// seeded from the catalog. The catalog entry itself is never mutated.
func newItem(p catalog.Procedure) Item {
	cost := p.EstimatedCost
	if cost <= 0 {
		cost = pricing.PercentBps(p.BasePrice, estimatedCostRatioBps)
	}
	return Item{
		InstanceID:  uuid.NewString(),
		ProcedureID: p.ID,
		Name:        p.Name,
		Category:    p.Category,
		UnitPrice:   pricing.Floor0(p.BasePrice),
		Qty:         1,
		UnitCost:    pricing.Floor0(cost),
	}
}

// ItemPatch describes an in-place edit to one item. Nil fields are left
// untouched. Setting Region clears Tooth and vice versa.
type ItemPatch struct {
	Qty       *int
	UnitPrice *pricing.Money
	UnitCost  *pricing.Money
	Region    *string
	Tooth     *int
}

func (it *Item) apply(patch ItemPatch) {
	if patch.Qty != nil {
		qty := *patch.Qty
		if qty < 1 {
			qty = 1
		}
		it.Qty = qty
	}
	if patch.UnitPrice != nil {
		it.UnitPrice = pricing.Floor0(*patch.UnitPrice)
	}
	if patch.UnitCost != nil {
		it.UnitCost = pricing.Floor0(*patch.UnitCost)
	}
	if patch.Region != nil {
		it.Region = *patch.Region
		if it.Region != "" {
			it.Tooth = 0
		}
	}
	if patch.Tooth != nil {
		tooth := *patch.Tooth
		if tooth < 0 {
			tooth = 0
		}
		it.Tooth = tooth
		if it.Tooth != 0 {
			it.Region = ""
		}
	}
}

// Subtotal is the item's revenue contribution.
func (it Item) Subtotal() pricing.Money {
	return it.UnitPrice * pricing.Money(it.Qty)
}

// CostTotal is the item's estimated cost contribution.
func (it Item) CostTotal() pricing.Money {
	return it.UnitCost * pricing.Money(it.Qty)
}
