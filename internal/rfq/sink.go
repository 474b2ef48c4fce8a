package rfq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
)

// HTTPSink posts events as JSON to an external audit endpoint.
// Non-2xx responses become *AuditSinkError; nothing is retried.
type HTTPSink struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPSink constructs an HTTPSink with its own client timeout.
func NewHTTPSink(endpoint string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

// Deliver posts the event.
func (s *HTTPSink) Deliver(ctx context.Context, evt Event) error {
	if s == nil || s.Endpoint == "" {
		return &AuditSinkError{EventType: evt.Type, Err: fmt.Errorf("audit endpoint not configured")}
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return &AuditSinkError{EventType: evt.Type, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return &AuditSinkError{EventType: evt.Type, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", evt.ID.String())
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &AuditSinkError{EventType: evt.Type, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuditSinkError{EventType: evt.Type, StatusCode: resp.StatusCode}
	}
	return nil
}

// AuditPort persists audit log entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditLogSink writes events into the audit_logs table.
type AuditLogSink struct {
	audit AuditPort
}

// NewAuditLogSink wraps an audit logger.
func NewAuditLogSink(audit AuditPort) *AuditLogSink {
	return &AuditLogSink{audit: audit}
}

// Deliver records the event as an audit log entry.
func (s *AuditLogSink) Deliver(ctx context.Context, evt Event) error {
	if s == nil || s.audit == nil {
		return nil
	}
	meta := map[string]any{"event_id": evt.ID.String()}
	if evt.Payload != nil {
		meta["seq"] = evt.Payload.Seq
		meta["line_item_id"] = evt.Payload.LineItemID
		meta["supplier_id"] = evt.Payload.SupplierID
		meta["quote_id"] = evt.Payload.QuoteID
		meta["previous_supplier_id"] = evt.Payload.PreviousSupplierID
	}
	if evt.Summary != nil {
		meta["summary_id"] = evt.Summary.ID.String()
		meta["digest"] = evt.Summary.Digest
		meta["total_savings"] = evt.Summary.TotalSavings.StringFixed(2)
		meta["rows"] = len(evt.Summary.Rows)
	}
	if evt.Format != "" {
		meta["format"] = evt.Format
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  evt.ActorID,
		Action:   "RFQ_" + strings.ToUpper(string(evt.Type)),
		Entity:   "rfq_comparison",
		EntityID: strconv.FormatInt(evt.RFQID, 10),
		Meta:     meta,
		At:       evt.OccurredAt,
	})
	if err != nil {
		return &AuditSinkError{EventType: evt.Type, Err: err}
	}
	return nil
}
