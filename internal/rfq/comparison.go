package rfq

import "github.com/shopspring/decimal"

// OfferView is one cell of the comparison matrix.
type OfferView struct {
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	QuoteID      int64           `json:"quote_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	LeadTimeDays int             `json:"lead_time_days"`
	Remarks      string          `json:"remarks,omitempty"`
	Best         bool            `json:"best"`
	Selected     bool            `json:"selected"`
}

// LineComparison is one row of the comparison matrix.
type LineComparison struct {
	LineItem  LineItem         `json:"line_item"`
	Offers    []OfferView      `json:"offers"`
	Selection *Selection       `json:"selection,omitempty"`
	BestTotal *decimal.Decimal `json:"best_total,omitempty"`
	Savings   decimal.Decimal  `json:"savings"`
}

// Quoted reports whether any supplier responded for the line.
func (l LineComparison) Quoted() bool {
	return len(l.Offers) > 0
}

// Comparison is the read model of an opened RFQ comparison. Money is rounded
// for display; totals are accumulated before rounding.
type Comparison struct {
	RFQID           int64             `json:"rfq_id"`
	RFQNumber       string            `json:"rfq_number"`
	MaterialRequest MaterialRequest   `json:"material_request"`
	Currency        string            `json:"currency"`
	TieBreak        TieBreakPolicy    `json:"tie_break"`
	Suppliers       []InvitedSupplier `json:"suppliers"`
	Lines           []LineComparison  `json:"lines"`
	TotalSelected   decimal.Decimal   `json:"total_selected"`
	TotalBest       decimal.Decimal   `json:"total_best"`
	TotalSavings    decimal.Decimal   `json:"total_savings"`
	Completeness    Completeness      `json:"completeness"`
	Changes         []Change          `json:"changes"`
	Warnings        []Problem         `json:"warnings,omitempty"`
}

// BuildComparison renders the matrix for the allocation's current state.
func BuildComparison(a *Allocation) Comparison {
	r := a.RFQ()
	selections := a.Selections()
	view := Comparison{
		RFQID:           r.ID,
		RFQNumber:       r.Number,
		MaterialRequest: r.MaterialRequest,
		Currency:        r.Currency,
		TieBreak:        a.resolver.Policy,
		Suppliers:       r.Suppliers,
		Completeness:    CheckCompleteness(r, selections),
		Changes:         a.Changes(),
		Warnings:        QuantityWarnings(r),
	}
	totalSelected, totalBest, totalSavings := decimal.Zero, decimal.Zero, decimal.Zero
	for _, item := range r.LineItems {
		row := LineComparison{LineItem: item, Offers: []OfferView{}, Savings: decimal.Zero}
		sel, hasSel := a.Selection(item.ID)
		if hasSel {
			s := sel
			row.Selection = &s
		}
		for i, offer := range a.resolver.Offers(r, item.ID) {
			row.Offers = append(row.Offers, OfferView{
				SupplierID:   offer.SupplierID,
				SupplierName: r.SupplierName(offer.SupplierID),
				QuoteID:      offer.QuoteID,
				UnitPrice:    RoundMoney(offer.Line.UnitPrice),
				Quantity:     offer.Line.Quantity,
				TotalPrice:   RoundMoney(offer.Line.TotalPrice),
				LeadTimeDays: offer.Line.LeadTimeDays,
				Remarks:      offer.Line.Remarks,
				Best:         i == 0,
				Selected:     hasSel && sel.QuoteID == offer.QuoteID,
			})
			if hasSel && sel.QuoteID == offer.QuoteID {
				totalSelected = totalSelected.Add(offer.Line.TotalPrice)
			}
		}
		if best, ok := BestTotal(r, item.ID); ok {
			rounded := RoundMoney(best)
			row.BestTotal = &rounded
			if hasSel {
				savings := LineSavings(r, item.ID, sel)
				totalBest = totalBest.Add(best)
				totalSavings = totalSavings.Add(savings)
				row.Savings = RoundMoney(savings)
			}
		}
		view.Lines = append(view.Lines, row)
	}
	view.TotalSelected = RoundMoney(totalSelected)
	view.TotalBest = RoundMoney(totalBest)
	view.TotalSavings = RoundMoney(totalSavings)
	return view
}
