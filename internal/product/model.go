package product

import "github.com/shopspring/decimal"

// Product is a point-in-time snapshot of a catalog record.
// Stock is nil when the catalog does not track inventory for the product.
type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Stock            *int            `json:"stock,omitempty"`
	PromotionPercent float64         `json:"promotion_percentage,omitempty"`
	ImageURL         *string         `json:"image_url,omitempty"`
}

// WithStock returns a copy of p whose stock is n.
func (p Product) WithStock(n int) Product {
	p.Stock = &n
	return p
}

// Allows reports whether qty units fit within the known stock.
// Unknown stock never blocks.
func (p Product) Allows(qty int) bool {
	return p.Stock == nil || qty <= *p.Stock
}

// FindByID returns the product with the given id from ps.
func FindByID(ps []Product, id string) (Product, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
