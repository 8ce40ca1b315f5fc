package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-clinica/internal/catalog"
	"github.com/noah-isme/backend-clinica/internal/pricing"
)

func limpeza() catalog.Procedure {
	return catalog.Procedure{ID: "proc-1", Name: "Limpeza", Category: "Prevenção", BasePrice: 15000, EstimatedCost: 4500}
}

func TestAddThenRemoveRestoresTotals(t *testing.T) {
	c := NewComposer()
	c.AddItem(limpeza())
	before := c.Financials()

	added := c.AddItem(catalog.Procedure{ID: "proc-2", Name: "Clareamento", BasePrice: 80000, EstimatedCost: 20000})
	assert.EqualValues(t, before.Revenue+80000, c.Financials().Revenue)

	c.RemoveItem(added.InstanceID)
	assert.Equal(t, before, c.Financials())
	assert.Equal(t, 1, c.Len())
}

func TestAddItemMintsDistinctInstances(t *testing.T) {
	c := NewComposer()
	a := c.AddItem(limpeza())
	b := c.AddItem(limpeza())

	assert.NotEqual(t, a.InstanceID, b.InstanceID)
	assert.Equal(t, a.ProcedureID, b.ProcedureID)
	assert.EqualValues(t, 30000, c.Financials().Revenue)
}

func TestAddItemFallsBackToCostHeuristic(t *testing.T) {
	c := NewComposer()
	it := c.AddItem(catalog.Procedure{ID: "proc-3", Name: "Restauração", BasePrice: 20000})

	// 30% of base price when the catalog has no explicit cost.
	assert.EqualValues(t, 6000, it.UnitCost)
}

func TestRemoveUnknownItemIsNoOp(t *testing.T) {
	c := NewComposer()
	c.AddItem(limpeza())

	c.RemoveItem("missing")
	assert.Equal(t, 1, c.Len())
}

func TestUpdateItemRegionAndToothAreExclusive(t *testing.T) {
	c := NewComposer()
	it := c.AddItem(limpeza())

	tooth := 24
	require.True(t, c.UpdateItem(it.InstanceID, ItemPatch{Tooth: &tooth}))
	got := c.Items()[0]
	assert.Equal(t, 24, got.Tooth)
	assert.Empty(t, got.Region)

	region := "superior"
	require.True(t, c.UpdateItem(it.InstanceID, ItemPatch{Region: &region}))
	got = c.Items()[0]
	assert.Equal(t, "superior", got.Region)
	assert.Zero(t, got.Tooth)
}

func TestUpdateItemClampsQuantity(t *testing.T) {
	c := NewComposer()
	it := c.AddItem(limpeza())

	zero := 0
	require.True(t, c.UpdateItem(it.InstanceID, ItemPatch{Qty: &zero}))
	assert.Equal(t, 1, c.Items()[0].Qty)

	three := 3
	require.True(t, c.UpdateItem(it.InstanceID, ItemPatch{Qty: &three}))
	assert.EqualValues(t, 45000, c.Financials().Revenue)
}

func TestFinancialsClassifyMargin(t *testing.T) {
	c := NewComposer()
	c.Load([]Item{{InstanceID: "a", UnitPrice: 100000, Qty: 1, UnitCost: 65000}})

	f := c.Financials()
	assert.EqualValues(t, 35000, f.Profit)
	assert.InDelta(t, 35.0, f.MarginPct, 0.001)
	assert.Equal(t, pricing.MarginExcellent, f.Status)
}

func TestFinancialsEmptyCart(t *testing.T) {
	f := NewComposer().Financials()
	assert.Zero(t, f.Revenue)
	assert.Zero(t, f.MarginPct)
}
