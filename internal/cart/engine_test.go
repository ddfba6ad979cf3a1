package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItemInsertsWithQuantityOne(t *testing.T) {
	items := AddItem(nil, "PROD1", 5, 10.0, "Widget")

	require.Len(t, items, 1)
	assert.Equal(t, "PROD1", items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity, "requested quantity magnitude must be ignored on insert")
	assert.Equal(t, 10.0, items[0].UnitPrice)
	assert.Equal(t, 10.0, items[0].TotalPrice)
	assert.Equal(t, "Widget", items[0].Name)
}

func TestAddItemIncrementsExisting(t *testing.T) {
	items := []Item{{ProductID: "PROD1", Quantity: 1, UnitPrice: 10.0, TotalPrice: 10.0, Name: "Widget"}}

	items = AddItem(items, "PROD1", 1, 10.0, "Widget")

	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 20.0, items[0].TotalPrice)
}

func TestAddItemUsesSignOnly(t *testing.T) {
	items := []Item{{ProductID: "PROD1", Quantity: 2, UnitPrice: 5.0, TotalPrice: 10.0}}

	// A large positive quantity still steps by exactly one.
	items = AddItem(items, "PROD1", 100, 5.0, "")
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 15.0, items[0].TotalPrice)

	// A large negative quantity still steps down by exactly one.
	items = AddItem(items, "PROD1", -100, 5.0, "")
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 10.0, items[0].TotalPrice)
}

func TestAddItemZeroDecrements(t *testing.T) {
	items := []Item{{ProductID: "PROD1", Quantity: 3, UnitPrice: 4.0, TotalPrice: 12.0}}

	items = AddItem(items, "PROD1", 0, 4.0, "")

	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 8.0, items[0].TotalPrice)
}

func TestAddItemClampsAtOne(t *testing.T) {
	items := []Item{{ProductID: "PROD1", Quantity: 1, UnitPrice: 4.0, TotalPrice: 4.0}}

	items = AddItem(items, "PROD1", -1, 4.0, "")

	assert.Equal(t, 1, items[0].Quantity, "decrement below one must clamp, not remove")
	assert.Equal(t, 4.0, items[0].TotalPrice)
}

func TestAddItemIgnoresRequestUnitPriceForExisting(t *testing.T) {
	items := []Item{{ProductID: "PROD1", Quantity: 1, UnitPrice: 10.0, TotalPrice: 10.0}}

	items = AddItem(items, "PROD1", 1, 999.0, "")

	assert.Equal(t, 10.0, items[0].UnitPrice, "stored unit price wins over the request")
	assert.Equal(t, 20.0, items[0].TotalPrice)
}

func TestSetQuantityIsAbsolute(t *testing.T) {
	items := []Item{{ProductID: "PROD1", Quantity: 2, UnitPrice: 3.0, TotalPrice: 6.0}}

	updated, err := SetQuantity(items, "PROD1", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, updated[0].Quantity)
	assert.Equal(t, 21.0, updated[0].TotalPrice)

	// No clamping: zero and negative values are stored as given.
	updated, err = SetQuantity(updated, "PROD1", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, updated[0].Quantity)
	assert.Equal(t, 0.0, updated[0].TotalPrice)
}

func TestSetQuantityMissingItem(t *testing.T) {
	_, err := SetQuantity([]Item{{ProductID: "PROD1"}}, "PROD2", 3)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItemFilters(t *testing.T) {
	items := []Item{
		{ProductID: "PROD1", Quantity: 1},
		{ProductID: "PROD2", Quantity: 2},
	}

	items = RemoveItem(items, "PROD1")

	require.Len(t, items, 1)
	assert.Equal(t, "PROD2", items[0].ProductID)
}

func TestRemoveItemAbsentIsNoOp(t *testing.T) {
	items := []Item{{ProductID: "PROD1", Quantity: 1}}

	items = RemoveItem(items, "PROD9")

	require.Len(t, items, 1)
	assert.Equal(t, "PROD1", items[0].ProductID)
}

func TestTotalStaysConsistentAcrossOperations(t *testing.T) {
	items := AddItem(nil, "PROD1", 1, 12.5, "Lens")
	items = AddItem(items, "PROD1", 1, 12.5, "Lens")
	items = AddItem(items, "PROD1", 1, 12.5, "Lens")

	updated, err := SetQuantity(items, "PROD1", 10)
	require.NoError(t, err)

	for _, item := range updated {
		assert.Equal(t, item.UnitPrice*float64(item.Quantity), item.TotalPrice)
	}
}
