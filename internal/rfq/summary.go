package rfq

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// SummaryRow is the approved allocation for one line item.
type SummaryRow struct {
	LineItemID     int64           `json:"line_item_id"`
	ItemCode       string          `json:"item_code"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UOM            string          `json:"uom"`
	SupplierID     int64           `json:"supplier_id"`
	SupplierName   string          `json:"supplier_name"`
	QuoteID        int64           `json:"quote_id"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	BestTotalPrice decimal.Decimal `json:"best_total_price"`
	Savings        decimal.Decimal `json:"savings"`
	LeadTimeDays   int             `json:"lead_time_days"`
}

// Summary is the immutable record of all allocations for an RFQ at a point in
// time. It is the only artifact handed to PO generation and export. Never
// edit a Summary; build a new one instead.
type Summary struct {
	ID              uuid.UUID       `json:"id"`
	RFQID           int64           `json:"rfq_id"`
	RFQNumber       string          `json:"rfq_number"`
	MaterialRequest MaterialRequest `json:"material_request"`
	Currency        string          `json:"currency"`
	Rows            []SummaryRow    `json:"rows"`
	TotalSelected   decimal.Decimal `json:"total_selected"`
	TotalBest       decimal.Decimal `json:"total_best"`
	TotalSavings    decimal.Decimal `json:"total_savings"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Digest          string          `json:"digest"`
}

// Clone returns a deep copy so downstream consumers cannot alias the rows.
func (s Summary) Clone() Summary {
	s.Rows = append([]SummaryRow(nil), s.Rows...)
	return s
}

// Verify reports whether the digest still matches the summary content.
func (s Summary) Verify() bool {
	return s.Digest != "" && s.Digest == digest(s)
}

// Builder produces selection summaries.
type Builder struct {
	Now   func() time.Time
	NewID func() uuid.UUID
}

// NewBuilder returns a builder using the wall clock and random ids.
func NewBuilder() Builder {
	return Builder{Now: time.Now, NewID: uuid.New}
}

// Build snapshots the selections. Completeness is checked before anything is
// constructed: every line with at least one quote needs a selection, otherwise
// an *IncompleteSelectionError names exactly the missing lines. Lines without
// quotes are excluded from the summary.
func (b Builder) Build(r *RFQ, selections []Selection) (Summary, error) {
	if c := CheckCompleteness(r, selections); !c.Complete() {
		return Summary{}, &IncompleteSelectionError{LineItemIDs: c.Missing}
	}
	byLine := make(map[int64]Selection, len(selections))
	for _, sel := range selections {
		byLine[sel.LineItemID] = sel
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	newID := uuid.New
	if b.NewID != nil {
		newID = b.NewID
	}

	summary := Summary{
		ID:              newID(),
		RFQID:           r.ID,
		RFQNumber:       r.Number,
		MaterialRequest: r.MaterialRequest,
		Currency:        r.Currency,
		GeneratedAt:     now().UTC(),
	}
	totalSelected, totalBest, totalSavings := decimal.Zero, decimal.Zero, decimal.Zero
	for _, item := range r.LineItems {
		sel, ok := byLine[item.ID]
		if !ok {
			continue
		}
		q, ok := QuoteByID(r, sel.QuoteID)
		if !ok || q.SupplierID != sel.SupplierID {
			return Summary{}, &ValidationError{LineItemID: item.ID, SupplierID: sel.SupplierID, QuoteID: sel.QuoteID, Reason: "quote not found for supplier"}
		}
		line, ok := q.line(item.ID)
		if !ok {
			return Summary{}, &ValidationError{LineItemID: item.ID, SupplierID: sel.SupplierID, QuoteID: sel.QuoteID, Reason: "supplier did not quote this line"}
		}
		best, _ := BestTotal(r, item.ID)
		savings := best.Sub(line.TotalPrice)
		totalSelected = totalSelected.Add(line.TotalPrice)
		totalBest = totalBest.Add(best)
		totalSavings = totalSavings.Add(savings)

		summary.Rows = append(summary.Rows, SummaryRow{
			LineItemID:     item.ID,
			ItemCode:       item.ItemCode,
			Description:    item.Description,
			Quantity:       line.Quantity,
			UOM:            item.UOM,
			SupplierID:     sel.SupplierID,
			SupplierName:   r.SupplierName(sel.SupplierID),
			QuoteID:        sel.QuoteID,
			UnitPrice:      RoundMoney(line.UnitPrice),
			TotalPrice:     RoundMoney(line.TotalPrice),
			BestTotalPrice: RoundMoney(best),
			Savings:        RoundMoney(savings),
			LeadTimeDays:   line.LeadTimeDays,
		})
	}
	summary.TotalSelected = RoundMoney(totalSelected)
	summary.TotalBest = RoundMoney(totalBest)
	summary.TotalSavings = RoundMoney(totalSavings)
	summary.Digest = digest(summary)
	return summary, nil
}

// digest hashes the identity, the totals and every row field that purchase
// documents consume, with BLAKE2b-256.
func digest(s Summary) string {
	var b strings.Builder
	field := func(v string) {
		b.WriteString(strconv.Quote(v))
		b.WriteByte('|')
	}
	field(s.ID.String())
	field(strconv.FormatInt(s.RFQID, 10))
	field(s.RFQNumber)
	field(strconv.FormatInt(s.MaterialRequest.ID, 10))
	field(s.MaterialRequest.Number)
	field(s.Currency)
	field(s.GeneratedAt.UTC().Format(time.RFC3339Nano))
	field(s.TotalSelected.StringFixed(2))
	field(s.TotalBest.StringFixed(2))
	field(s.TotalSavings.StringFixed(2))
	for _, row := range s.Rows {
		b.WriteByte('\n')
		field(strconv.FormatInt(row.LineItemID, 10))
		field(row.ItemCode)
		field(row.Description)
		field(row.Quantity.String())
		field(row.UOM)
		field(strconv.FormatInt(row.SupplierID, 10))
		field(row.SupplierName)
		field(strconv.FormatInt(row.QuoteID, 10))
		field(row.UnitPrice.StringFixed(2))
		field(row.TotalPrice.StringFixed(2))
		field(row.BestTotalPrice.StringFixed(2))
		field(row.Savings.StringFixed(2))
		field(strconv.Itoa(row.LeadTimeDays))
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
