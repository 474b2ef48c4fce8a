package rfq

import "github.com/shopspring/decimal"

// RoundMoney rounds a monetary amount to 2 decimals, half away from zero.
// Call it only when displaying or serializing.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// BestTotal returns the lowest total price quoted for the line by any active quote.
func BestTotal(r *RFQ, lineItemID int64) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, q := range r.Quotes {
		if !q.Status.Active() {
			continue
		}
		line, ok := q.line(lineItemID)
		if !ok {
			continue
		}
		if !found || line.TotalPrice.LessThan(best) {
			best = line.TotalPrice
			found = true
		}
	}
	return best, found
}

// LineSavings returns best total minus the selected total, unrounded. Positive
// means the allocation beat the best price; negative means the operator chose a
// costlier supplier. Zero when the line has no quotes or the selection is unknown.
func LineSavings(r *RFQ, lineItemID int64, sel Selection) decimal.Decimal {
	best, ok := BestTotal(r, lineItemID)
	if !ok {
		return decimal.Zero
	}
	q, ok := QuoteByID(r, sel.QuoteID)
	if !ok || q.SupplierID != sel.SupplierID {
		return decimal.Zero
	}
	line, ok := q.line(lineItemID)
	if !ok {
		return decimal.Zero
	}
	return best.Sub(line.TotalPrice)
}

// AggregateSavings sums per-line savings across lines that have a selection.
func AggregateSavings(r *RFQ, selections []Selection) decimal.Decimal {
	total := decimal.Zero
	for _, sel := range selections {
		total = total.Add(LineSavings(r, sel.LineItemID, sel))
	}
	return total
}

// RequiredLines returns, in material request order, the lines that have at
// least one responding quote and therefore require a decision.
func RequiredLines(r *RFQ) []int64 {
	var ids []int64
	for _, item := range r.LineItems {
		if _, ok := BestTotal(r, item.ID); ok {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// Completeness counts decided and undecided lines for an allocation.
type Completeness struct {
	Required int     `json:"required"`
	Assigned int     `json:"assigned"`
	Unquoted int     `json:"unquoted"`
	Missing  []int64 `json:"missing_line_item_ids"`
}

// Complete reports whether every required line has a selection.
func (c Completeness) Complete() bool {
	return len(c.Missing) == 0
}

// CheckCompleteness compares the selections with the lines requiring decision.
func CheckCompleteness(r *RFQ, selections []Selection) Completeness {
	chosen := make(map[int64]struct{}, len(selections))
	for _, sel := range selections {
		chosen[sel.LineItemID] = struct{}{}
	}
	required := RequiredLines(r)
	c := Completeness{Required: len(required), Unquoted: len(r.LineItems) - len(required)}
	for _, id := range required {
		if _, ok := chosen[id]; ok {
			c.Assigned++
			continue
		}
		c.Missing = append(c.Missing, id)
	}
	return c
}
