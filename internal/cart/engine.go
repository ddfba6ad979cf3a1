package cart

// AddItem merges an add request into the item list.
//
// When the product is already in the cart, the requested quantity's
// magnitude is ignored: only its sign is used. A positive quantity steps
// the stored quantity up by one, zero or negative steps it down by one,
// and the result is clamped to a minimum of 1. The line total is
// recomputed from the item's existing unit price.
//
// When the product is absent, a new line is inserted with quantity fixed
// at 1 regardless of the requested quantity, so its total equals the unit
// price.
func AddItem(items []Item, productID string, requestedQty int, unitPrice float64, name string) []Item {
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}

		if requestedQty > 0 {
			items[i].Quantity++
		} else {
			items[i].Quantity--
		}
		if items[i].Quantity < 1 {
			items[i].Quantity = 1
		}
		items[i].TotalPrice = items[i].UnitPrice * float64(items[i].Quantity)
		return items
	}

	return append(items, Item{
		ProductID:  productID,
		Quantity:   1,
		UnitPrice:  unitPrice,
		TotalPrice: unitPrice,
		Name:       name,
	})
}

// SetQuantity assigns the quantity directly, without clamping, and
// recomputes the line total. Unlike AddItem it can reach any value,
// including ones unreachable by the ±1 stepping.
func SetQuantity(items []Item, productID string, quantity int) ([]Item, error) {
	for i := range items {
		if items[i].ProductID != productID {
			continue
		}

		items[i].Quantity = quantity
		items[i].TotalPrice = items[i].UnitPrice * float64(quantity)
		return items, nil
	}

	return nil, ErrItemNotFound
}

// RemoveItem filters the product out of the list. Removing a product that
// is not in the cart is a no-op.
func RemoveItem(items []Item, productID string) []Item {
	filtered := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ProductID != productID {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
