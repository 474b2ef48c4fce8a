package rfq

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates audit events emitted by the comparison engine.
type EventType string

const (
	EventSelectionChanged EventType = "selection_changed"
	EventSelectionSaved   EventType = "selection_saved"
	EventExported         EventType = "exported"
)

// SelectionChange is the payload of a selection_changed event.
type SelectionChange struct {
	Seq                int    `json:"seq"`
	RFQID              int64  `json:"rfq_id"`
	LineItemID         int64  `json:"line_item_id"`
	SupplierID         int64  `json:"supplier_id"`
	QuoteID            int64  `json:"quote_id"`
	PreviousSupplierID *int64 `json:"previous_supplier_id"`
	ActorID            int64  `json:"actor_id,omitempty"`
}

// Event is the envelope posted to the audit sink.
type Event struct {
	ID         uuid.UUID        `json:"id"`
	Type       EventType        `json:"event"`
	RFQID      int64            `json:"rfq_id"`
	Payload    *SelectionChange `json:"payload,omitempty"`
	Summary    *Summary         `json:"summary,omitempty"`
	Format     string           `json:"format,omitempty"`
	ActorID    int64            `json:"actor_id,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewEvent stamps a new event envelope.
func NewEvent(typ EventType, rfqID int64, at time.Time) Event {
	return Event{ID: uuid.New(), Type: typ, RFQID: rfqID, OccurredAt: at.UTC()}
}

// Sink receives audit events. Implementations must not retry on their own.
type Sink interface {
	Deliver(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

// Deliver sends the event to each sink in order.
func (m MultiSink) Deliver(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(evt Event)
}

type discardEmitter struct{}

func (discardEmitter) Emit(Event) {}
