package cart

import "storefront-cart/internal/product"

// Line is one distinct product held in the cart. Quantity is always >= 1.
type Line struct {
	Product  product.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Item is a cart entry as the cart service stores it.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateEmpty    State = "empty"
)
