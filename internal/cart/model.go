package cart

import "errors"

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// Item is one cart line. TotalPrice is derived: it is recomputed from
// UnitPrice and Quantity on every mutation and never trusted from input.
type Item struct {
	ProductID  string  `json:"productId"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unitPrice"`
	TotalPrice float64 `json:"totalPrice"`
	Name       string  `json:"name"`
}

// Cart holds at most one Item per ProductID, in insertion order.
type Cart struct {
	UserID string `json:"userId"`
	Items  []Item `json:"items"`
}
