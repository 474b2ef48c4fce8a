package rfq

// QuoteFor returns the active quote submitted by the supplier.
func QuoteFor(r *RFQ, supplierID int64) (Quote, bool) {
	for _, q := range r.Quotes {
		if q.SupplierID == supplierID && q.Status.Active() {
			return q, true
		}
	}
	return Quote{}, false
}

// QuoteByID returns the active quote with the given id.
func QuoteByID(r *RFQ, quoteID int64) (Quote, bool) {
	for _, q := range r.Quotes {
		if q.ID == quoteID && q.Status.Active() {
			return q, true
		}
	}
	return Quote{}, false
}

// FindQuoteLine locates the supplier's quoted line for a material request line.
// A supplier that never quoted the line is a normal partial response, not an error.
func FindQuoteLine(r *RFQ, lineItemID, supplierID int64) (QuoteLine, bool) {
	q, ok := QuoteFor(r, supplierID)
	if !ok {
		return QuoteLine{}, false
	}
	return q.line(lineItemID)
}

func (q Quote) line(lineItemID int64) (QuoteLine, bool) {
	for _, l := range q.Lines {
		if l.MRLineItemID == lineItemID {
			return l, true
		}
	}
	return QuoteLine{}, false
}
