package procurement

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase request lifecycle statuses.
type PRStatus string

const (
	PRStatusDraft     PRStatus = "DRAFT"
	PRStatusSubmitted PRStatus = "SUBMITTED"
	PRStatusClosed    PRStatus = "CLOSED"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusApproval  POStatus = "APPROVAL"
	POStatusApproved  POStatus = "APPROVED"
	POStatusClosed    POStatus = "CLOSED"
	POStatusCancelled POStatus = "CANCELLED"
)

// Approval modules used for approval refs and idempotency scopes.
const (
	ModulePR = "procurement.pr"
	ModulePO = "procurement.po"
)

// PurchaseRequest is one supplier's share of a saved selection summary.
type PurchaseRequest struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	SummaryID    uuid.UUID       `json:"summary_id"`
	RFQID        int64           `json:"rfq_id"`
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	RequestBy    int64           `json:"request_by"`
	Status       PRStatus        `json:"status"`
	Currency     string          `json:"currency"`
	Total        decimal.Decimal `json:"total"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Lines        []Line          `json:"lines,omitempty"`
}

// PurchaseOrder is issued to one winning supplier.
type PurchaseOrder struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	SummaryID    uuid.UUID       `json:"summary_id"`
	RFQID        int64           `json:"rfq_id"`
	PRID         int64           `json:"pr_id,omitempty"`
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	Status       POStatus        `json:"status"`
	Currency     string          `json:"currency"`
	Total        decimal.Decimal `json:"total"`
	ExpectedDate time.Time       `json:"expected_date"`
	Note         string          `json:"note,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	ApprovedBy   int64           `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Lines        []Line          `json:"lines,omitempty"`
}

// Line carries one selected quote line into a PR or PO unchanged.
type Line struct {
	ID           int64           `json:"id"`
	DocumentID   int64           `json:"-"`
	LineItemID   int64           `json:"line_item_id"`
	QuoteID      int64           `json:"quote_id"`
	ItemCode     string          `json:"item_code"`
	Description  string          `json:"description"`
	Qty          decimal.Decimal `json:"qty"`
	UOM          string          `json:"uom"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	LeadTimeDays int             `json:"lead_time_days"`
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrSummaryTampered indicates the summary digest no longer matches its rows.
	ErrSummaryTampered = errors.New("procurement: selection summary digest mismatch")
	// ErrInProgress indicates another request is generating documents for the same summary.
	ErrInProgress = errors.New("procurement: generation already in progress")
)
