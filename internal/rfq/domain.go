package rfq

import (
	"time"

	"github.com/shopspring/decimal"
)

// SupplierStatus tracks an invited supplier's response state.
type SupplierStatus string

const (
	SupplierPending   SupplierStatus = "pending"
	SupplierResponded SupplierStatus = "responded"
)

// QuoteStatus enumerates quote lifecycle values.
type QuoteStatus string

const (
	QuoteSubmitted QuoteStatus = "submitted"
	QuoteAccepted  QuoteStatus = "accepted"
	QuoteRejected  QuoteStatus = "rejected"
	QuoteRetracted QuoteStatus = "retracted"
)

// Active reports whether the quote takes part in comparison.
func (s QuoteStatus) Active() bool {
	return s != QuoteRetracted
}

// MaterialRequest identifies the request an RFQ was created from.
type MaterialRequest struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Title  string `json:"title,omitempty"`
}

// LineItem is one requested item within a material request.
type LineItem struct {
	ID          int64           `json:"id"`
	ItemCode    string          `json:"item_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UOM         string          `json:"uom"`
	Location    string          `json:"location,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	Serial      string          `json:"serial,omitempty"`
	ModelYear   string          `json:"model_year,omitempty"`
}

// Supplier is the snapshot of supplier master data taken at invite time.
type Supplier struct {
	ID     int64   `json:"id"`
	Code   string  `json:"code"`
	Name   string  `json:"name"`
	Email  string  `json:"email,omitempty"`
	Rating float64 `json:"rating,omitempty"`
}

// InvitedSupplier is a supplier invited to respond to the RFQ.
type InvitedSupplier struct {
	SupplierID int64          `json:"supplier_id"`
	Supplier   Supplier       `json:"supplier"`
	Status     SupplierStatus `json:"status"`
}

// Attachment references a file stored outside the comparison engine.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// QuoteLine is a supplier's price for exactly one material request line.
type QuoteLine struct {
	ID           int64           `json:"id"`
	MRLineItemID int64           `json:"mr_line_item_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	LeadTimeDays int             `json:"lead_time_days"`
	Remarks      string          `json:"remarks,omitempty"`
	Attachments  []Attachment    `json:"attachments,omitempty"`
}

// Quote is one supplier's full response to an RFQ.
type Quote struct {
	ID          int64           `json:"id"`
	RFQID       int64           `json:"rfq_id"`
	SupplierID  int64           `json:"supplier_id"`
	Supplier    Supplier        `json:"supplier"`
	Status      QuoteStatus     `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
	ValidUntil  time.Time       `json:"valid_until,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Terms       string          `json:"terms,omitempty"`
	Lines       []QuoteLine     `json:"lines"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

// RFQ aggregates the material request, invited suppliers and submitted quotes.
// It must be fully hydrated before comparison starts.
type RFQ struct {
	ID              int64             `json:"id"`
	Number          string            `json:"number"`
	MaterialRequest MaterialRequest   `json:"material_request"`
	LineItems       []LineItem        `json:"line_items"`
	Suppliers       []InvitedSupplier `json:"suppliers"`
	Quotes          []Quote           `json:"quotes"`
	Currency        string            `json:"currency"`
	CreatedAt       time.Time         `json:"created_at"`
}

// LineItem returns the material request line with the given id.
func (r *RFQ) LineItem(id int64) (LineItem, bool) {
	for _, item := range r.LineItems {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// Invited reports whether the supplier is on the RFQ supplier list.
func (r *RFQ) Invited(supplierID int64) bool {
	for _, s := range r.Suppliers {
		if s.SupplierID == supplierID {
			return true
		}
	}
	return false
}

// SupplierName resolves the display name of a supplier, preferring the quote snapshot.
func (r *RFQ) SupplierName(supplierID int64) string {
	for _, q := range r.Quotes {
		if q.SupplierID == supplierID && q.Supplier.Name != "" {
			return q.Supplier.Name
		}
	}
	for _, s := range r.Suppliers {
		if s.SupplierID == supplierID {
			return s.Supplier.Name
		}
	}
	return ""
}

// Selection is the chosen winning supplier/quote for one line item.
type Selection struct {
	LineItemID int64 `json:"line_item_id"`
	SupplierID int64 `json:"supplier_id"`
	QuoteID    int64 `json:"quote_id"`
}
