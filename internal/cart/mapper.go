package cart

import "storefront-cart/internal/product"

// mapLines joins server items with their resolved products. resolved[i] belongs to
// items[i]; a nil entry means the lookup failed and the item is dropped. Server order
// is kept, duplicates merge into the first line and non-positive quantities are skipped.
func mapLines(items []Item, resolved []*product.Product) []Line {
	lines := make([]Line, 0, len(items))
	index := make(map[string]int, len(items))

	for i, it := range items {
		if i >= len(resolved) || resolved[i] == nil || it.Quantity < 1 {
			continue
		}
		if at, ok := index[it.ProductID]; ok {
			lines[at].Quantity += it.Quantity
			continue
		}

		p := *resolved[i]
		// the server's id is authoritative even if the catalog echoes another form
		p.ID = it.ProductID
		index[it.ProductID] = len(lines)
		lines = append(lines, Line{Product: p, Quantity: it.Quantity})
	}

	return lines
}
