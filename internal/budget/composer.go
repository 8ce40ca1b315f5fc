package budget

import (
	"sync"

	"github.com/noah-isme/backend-clinica/internal/catalog"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

// Financials aggregates a budget's line items. Margin classification here
// answers "how profitable is the deal" and is independent of the
// discount-depth tier the negotiation engine reports.
type Financials struct {
	Revenue   pricing.Money      `json:"revenue"`
	Cost      pricing.Money      `json:"cost"`
	Profit    pricing.Money      `json:"profit"`
	MarginPct float64            `json:"marginPct"`
	Status    pricing.MarginTier `json:"status"`
}

// Composer holds the line items of one budget being assembled. A single
// editing session owns it; the mutex only guards against racing HTTP
// handlers, not concurrent editors.
type Composer struct {
	mu    sync.Mutex
	items []Item
}

// NewComposer returns an empty composition session.
func NewComposer() *Composer {
	return &Composer{}
}

// Load replaces the session contents, used when editing a saved budget.
func (c *Composer) Load(items []Item) {
	c.mu.Lock()
	c.items = append([]Item(nil), items...)
	c.mu.Unlock()
}

// AddItem appends a new line item seeded from the catalog entry and returns
// it. The entry's identity is a fresh instance id, distinct from the
// catalog procedure id.
func (c *Composer) AddItem(p catalog.Procedure) Item {
	item := newItem(p)
	c.mu.Lock()
	c.items = append(c.items, item)
	c.mu.Unlock()
	return item
}

// RemoveItem deletes the matching item. Removing an unknown id is a no-op.
func (c *Composer) RemoveItem(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, it := range c.items {
		if it.InstanceID == instanceID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// UpdateItem mutates one item in place. It reports whether the item was
// found.
func (c *Composer) UpdateItem(instanceID string, patch ItemPatch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].InstanceID == instanceID {
			c.items[i].apply(patch)
			return true
		}
	}
	return false
}

// Items returns a copy of the current line items.
func (c *Composer) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.items...)
}

// Len reports the number of line items.
func (c *Composer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Financials recomputes the aggregate totals from the current items.
func (c *Composer) Financials() Financials {
	c.mu.Lock()
	items := append([]Item(nil), c.items...)
	c.mu.Unlock()
	return ComputeFinancials(items)
}

// ComputeFinancials derives totals for any item collection. Margin is zero
// when there is no revenue.
func ComputeFinancials(items []Item) Financials {
	var f Financials
	for _, it := range items {
		f.Revenue += it.Subtotal()
		f.Cost += it.CostTotal()
	}
	f.Profit = f.Revenue - f.Cost
	if f.Revenue > 0 {
		f.MarginPct = float64(f.Profit) / float64(f.Revenue) * 100
	}
	f.Status = pricing.ProfitMargin(f.MarginPct)
	return f
}
