package rfq

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotFound indicates the RFQ or summary does not exist.
	ErrNotFound = errors.New("rfq: not found")
	// ErrNoComparison indicates no working allocation exists for the RFQ.
	ErrNoComparison = errors.New("rfq: comparison not opened")
)

// ValidationError rejects a supplier/quote combination that does not exist for a line.
type ValidationError struct {
	LineItemID int64
	SupplierID int64
	QuoteID    int64
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rfq: invalid selection for line %d (supplier %d, quote %d): %s", e.LineItemID, e.SupplierID, e.QuoteID, e.Reason)
}

// IncompleteSelectionError lists the lines with quotes that still lack a selection.
type IncompleteSelectionError struct {
	LineItemIDs []int64
}

func (e *IncompleteSelectionError) Error() string {
	return "rfq: selection incomplete, missing line items " + joinIDs(e.LineItemIDs)
}

// AuditSinkError wraps a failed event or summary delivery. It is never fatal.
type AuditSinkError struct {
	EventType  EventType
	StatusCode int
	Err        error
}

func (e *AuditSinkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("rfq: audit sink rejected %s event with status %d", e.EventType, e.StatusCode)
	}
	return fmt.Sprintf("rfq: audit sink %s event: %v", e.EventType, e.Err)
}

func (e *AuditSinkError) Unwrap() error {
	return e.Err
}

// Problem describes one data integrity violation on an RFQ.
type Problem struct {
	QuoteID    int64  `json:"quote_id,omitempty"`
	LineItemID int64  `json:"line_item_id,omitempty"`
	Message    string `json:"message"`
}

func (p Problem) String() string {
	var b strings.Builder
	if p.QuoteID != 0 {
		b.WriteString("quote ")
		b.WriteString(strconv.FormatInt(p.QuoteID, 10))
		b.WriteString(": ")
	}
	if p.LineItemID != 0 {
		b.WriteString("line ")
		b.WriteString(strconv.FormatInt(p.LineItemID, 10))
		b.WriteString(": ")
	}
	b.WriteString(p.Message)
	return b.String()
}

// DataIntegrityError makes an RFQ unusable for comparison.
type DataIntegrityError struct {
	RFQID    int64
	Problems []Problem
}

func (e *DataIntegrityError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("rfq: data integrity violation on rfq %d: %s", e.RFQID, strings.Join(parts, "; "))
}

// LineItemIDs returns the affected line ids, sorted and unique.
func (e *DataIntegrityError) LineItemIDs() []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, p := range e.Problems {
		if p.LineItemID == 0 {
			continue
		}
		if _, ok := seen[p.LineItemID]; ok {
			continue
		}
		seen[p.LineItemID] = struct{}{}
		ids = append(ids, p.LineItemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
