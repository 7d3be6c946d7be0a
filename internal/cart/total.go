package cart

import "github.com/shopspring/decimal"

// Total sums price * quantity over lines. Promotions are not applied.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}
