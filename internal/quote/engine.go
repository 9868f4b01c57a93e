package quote

// LineInput is the subset of an item the money engine needs.
type LineInput struct {
	Quantity  float64
	UnitPrice float64
	Discount  float64
}

// Totals aggregates the derived monetary fields of a quote.
type Totals struct {
	Subtotal float64
	Total    float64
}

// LineTotal computes one line's total: quantity x unit price, minus the
// per-line discount percentage.
func LineTotal(quantity, unitPrice, discount float64) float64 {
	return quantity * unitPrice * (1 - discount/100)
}

// ComputeTotals derives subtotal and total from the line items, the
// quote-level discount percentage, and the tax rate percentage. The
// quote discount is applied before tax. No rounding happens here; the
// caller's currency representation controls display rounding.
func ComputeTotals(items []LineInput, discountPct, taxPct float64) Totals {
	var subtotal float64
	for _, it := range items {
		subtotal += LineTotal(it.Quantity, it.UnitPrice, it.Discount)
	}
	taxable := subtotal - subtotal*(discountPct/100)
	total := taxable + taxable*(taxPct/100)
	return Totals{Subtotal: subtotal, Total: total}
}

// RawItem is a line item as supplied by the caller, before normalization.
type RawItem struct {
	ProductID   *string
	Description string
	Quantity    float64
	UnitPrice   float64
	Discount    *float64
}

// NormalizeItems converts raw line items into their persisted shape:
// position follows the input order, a missing discount defaults to zero,
// and the line total is computed with the same formula the money engine
// uses. Quantity and price bounds are the validation layer's job; values
// are never coerced here.
func NormalizeItems(raw []RawItem) []Item {
	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		discount := 0.0
		if r.Discount != nil {
			discount = *r.Discount
		}
		var productID *string
		if r.ProductID != nil && *r.ProductID != "" {
			id := *r.ProductID
			productID = &id
		}
		items = append(items, Item{
			ProductID:   productID,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			Discount:    discount,
			Total:       LineTotal(r.Quantity, r.UnitPrice, discount),
			Position:    i,
		})
	}
	return items
}

// lineInputs projects persisted items back into engine inputs, used when
// an update recomputes totals from the existing item set.
func lineInputs(items []Item) []LineInput {
	inputs := make([]LineInput, 0, len(items))
	for _, it := range items {
		inputs = append(inputs, LineInput{Quantity: it.Quantity, UnitPrice: it.UnitPrice, Discount: it.Discount})
	}
	return inputs
}
