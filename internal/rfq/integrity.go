package rfq

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// priceTolerance is the largest accepted gap between total and unit × quantity.
var priceTolerance = decimal.New(1, -2)

// CheckIntegrity validates a hydrated RFQ before any comparison is computed.
// Every violation is collected into a single *DataIntegrityError; callers must
// refuse to show savings for an RFQ that fails.
func CheckIntegrity(r *RFQ) error {
	var problems []Problem
	add := func(quoteID, lineID int64, format string, args ...any) {
		problems = append(problems, Problem{QuoteID: quoteID, LineItemID: lineID, Message: fmt.Sprintf(format, args...)})
	}

	displayCurrency := r.Currency
	if displayCurrency != "" {
		if _, err := currency.ParseISO(displayCurrency); err != nil {
			add(0, 0, "rfq currency %q is not an ISO 4217 code", displayCurrency)
		}
	}

	seenSupplier := make(map[int64]int64)
	for _, q := range r.Quotes {
		if !q.Status.Active() {
			continue
		}
		if q.RFQID != r.ID {
			add(q.ID, 0, "quote belongs to rfq %d", q.RFQID)
		}
		if !r.Invited(q.SupplierID) {
			add(q.ID, 0, "supplier %d is not invited to this rfq", q.SupplierID)
		}
		if other, dup := seenSupplier[q.SupplierID]; dup {
			add(q.ID, 0, "supplier %d already has active quote %d", q.SupplierID, other)
		} else {
			seenSupplier[q.SupplierID] = q.ID
		}
		if _, err := currency.ParseISO(q.Currency); err != nil {
			add(q.ID, 0, "currency %q is not an ISO 4217 code", q.Currency)
		} else if displayCurrency == "" {
			displayCurrency = q.Currency
		} else if q.Currency != displayCurrency {
			add(q.ID, 0, "currency %s differs from display currency %s", q.Currency, displayCurrency)
		}

		seenLine := make(map[int64]struct{}, len(q.Lines))
		for _, line := range q.Lines {
			if _, ok := r.LineItem(line.MRLineItemID); !ok {
				add(q.ID, line.MRLineItemID, "references a line item outside this rfq")
				continue
			}
			if _, dup := seenLine[line.MRLineItemID]; dup {
				add(q.ID, line.MRLineItemID, "line quoted more than once")
			}
			seenLine[line.MRLineItemID] = struct{}{}
			expected := line.UnitPrice.Mul(line.Quantity)
			if line.TotalPrice.Sub(expected).Abs().GreaterThanOrEqual(priceTolerance) {
				add(q.ID, line.MRLineItemID, "total price %s does not equal unit price %s × quantity %s",
					line.TotalPrice.String(), line.UnitPrice.String(), line.Quantity.String())
			}
			if line.UnitPrice.IsNegative() || line.Quantity.IsNegative() {
				add(q.ID, line.MRLineItemID, "negative price or quantity")
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &DataIntegrityError{RFQID: r.ID, Problems: problems}
}

// QuantityWarnings lists quote lines whose quantity differs from the requested
// quantity. Whole-line awards assume they match, but a mismatch is not fatal.
func QuantityWarnings(r *RFQ) []Problem {
	var warnings []Problem
	for _, q := range r.Quotes {
		if !q.Status.Active() {
			continue
		}
		for _, line := range q.Lines {
			item, ok := r.LineItem(line.MRLineItemID)
			if !ok || item.Quantity.Equal(line.Quantity) {
				continue
			}
			warnings = append(warnings, Problem{
				QuoteID:    q.ID,
				LineItemID: line.MRLineItemID,
				Message:    fmt.Sprintf("quoted quantity %s differs from requested %s", line.Quantity.String(), item.Quantity.String()),
			})
		}
	}
	return warnings
}
