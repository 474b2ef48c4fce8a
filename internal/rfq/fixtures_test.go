package rfq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quoteLine(lineID int64, unit, qty string, lead int) QuoteLine {
	return QuoteLine{
		ID:           lineID * 1000,
		MRLineItemID: lineID,
		UnitPrice:    dec(unit),
		Quantity:     dec(qty),
		TotalPrice:   dec(unit).Mul(dec(qty)),
		LeadTimeDays: lead,
	}
}

// twoSupplierRFQ: A quotes line 1 at 100 and line 2 at 50, B quotes line 1 at 90 only.
func twoSupplierRFQ() RFQ {
	return RFQ{
		ID:              1,
		Number:          "RFQ-0001",
		Currency:        "USD",
		MaterialRequest: MaterialRequest{ID: 10, Number: "MR-0010"},
		LineItems: []LineItem{
			{ID: 1, ItemCode: "PIPE", Description: "Steel pipe", Quantity: dec("1"), UOM: "m"},
			{ID: 2, ItemCode: "VALVE", Description: "Gate valve", Quantity: dec("1"), UOM: "pcs"},
		},
		Suppliers: []InvitedSupplier{
			{SupplierID: 100, Supplier: Supplier{ID: 100, Code: "A", Name: "Supplier A"}, Status: SupplierResponded},
			{SupplierID: 200, Supplier: Supplier{ID: 200, Code: "B", Name: "Supplier B"}, Status: SupplierResponded},
		},
		Quotes: []Quote{
			{
				ID: 501, RFQID: 1, SupplierID: 100, Supplier: Supplier{ID: 100, Name: "Supplier A"},
				Status: QuoteSubmitted, SubmittedAt: baseTime, Currency: "USD",
				Lines: []QuoteLine{quoteLine(1, "100", "1", 7), quoteLine(2, "50", "1", 7)},
			},
			{
				ID: 502, RFQID: 1, SupplierID: 200, Supplier: Supplier{ID: 200, Name: "Supplier B"},
				Status: QuoteSubmitted, SubmittedAt: baseTime.Add(time.Hour), Currency: "USD",
				Lines: []QuoteLine{quoteLine(1, "90", "1", 14)},
			},
		},
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type memoryRepo struct {
	mu        sync.Mutex
	rfqs      map[int64]RFQ
	summaries []Summary
	loads     int
	saveErr   error
}

func newMemoryRepo(rfqs ...RFQ) *memoryRepo {
	repo := &memoryRepo{rfqs: make(map[int64]RFQ)}
	for _, r := range rfqs {
		repo.rfqs[r.ID] = r
	}
	return repo
}

func (m *memoryRepo) LoadRFQ(ctx context.Context, id int64) (RFQ, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	r, ok := m.rfqs[id]
	if !ok {
		return RFQ{}, ErrNotFound
	}
	return r, nil
}

func (m *memoryRepo) SaveSummary(ctx context.Context, summary Summary, actorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.summaries = append(m.summaries, summary)
	return nil
}

func (m *memoryRepo) ListSummaries(ctx context.Context, rfqID int64) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Summary
	for i := len(m.summaries) - 1; i >= 0; i-- {
		if m.summaries[i].RFQID == rfqID {
			out = append(out, m.summaries[i])
		}
	}
	return out, nil
}

func (m *memoryRepo) GetSummary(ctx context.Context, id uuid.UUID) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.summaries {
		if s.ID == id {
			return s, nil
		}
	}
	return Summary{}, ErrNotFound
}
