package rfq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const defaultOutboxBuffer = 256

// OutboxConfig tunes the audit outbox.
type OutboxConfig struct {
	Buffer   int
	Timeout  time.Duration
	Logger   *slog.Logger
	Recorder Recorder
	// OnWarning is called from the delivery goroutine for every event that
	// could not be delivered or was dropped.
	OnWarning func(evt Event, err error)
}

// ErrOutboxFull reports an event dropped because the buffer was full.
var ErrOutboxFull = errors.New("rfq: audit outbox full")

// Outbox delivers audit events to a sink in the order they were emitted.
// Emit never blocks: events are buffered and drained by a single goroutine.
// Failed deliveries are logged and reported, never retried.
type Outbox struct {
	sink     Sink
	events   chan Event
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
	warn     func(Event, error)

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewOutbox constructs an outbox; call Start to begin delivery.
func NewOutbox(sink Sink, cfg OutboxConfig) *Outbox {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultOutboxBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Outbox{
		sink:     sink,
		events:   make(chan Event, cfg.Buffer),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		warn:     cfg.OnWarning,
		done:     make(chan struct{}),
	}
}

// Start launches the delivery loop. It returns immediately.
func (o *Outbox) Start(ctx context.Context) {
	go o.run(ctx)
}

// Emit enqueues the event. It drops the event with a warning when the buffer
// is full or the outbox is closed.
func (o *Outbox) Emit(evt Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped(evt, errors.New("rfq: audit outbox closed"))
		return
	}
	select {
	case o.events <- evt:
	default:
		o.dropped(evt, ErrOutboxFull)
	}
}

// Close stops accepting events and waits until buffered events are delivered
// or ctx expires.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	o.mu.Unlock()
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) run(ctx context.Context) {
	defer close(o.done)
	for evt := range o.events {
		o.deliver(ctx, evt)
	}
}

func (o *Outbox) deliver(ctx context.Context, evt Event) {
	if o.sink == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	err := o.sink.Deliver(dctx, evt)
	o.recorder.AuditDelivered(evt.Type, err)
	if err == nil {
		return
	}
	var sinkErr *AuditSinkError
	if !errors.As(err, &sinkErr) {
		err = &AuditSinkError{EventType: evt.Type, Err: err}
	}
	o.logger.Warn("audit event not delivered",
		slog.String("event", string(evt.Type)),
		slog.Int64("rfq_id", evt.RFQID),
		slog.String("event_id", evt.ID.String()),
		slog.Any("error", err))
	if o.warn != nil {
		o.warn(evt, err)
	}
}

func (o *Outbox) dropped(evt Event, err error) {
	o.recorder.AuditDropped(evt.Type)
	o.logger.Warn("audit event dropped",
		slog.String("event", string(evt.Type)),
		slog.Int64("rfq_id", evt.RFQID),
		slog.Any("error", err))
	if o.warn != nil {
		o.warn(evt, &AuditSinkError{EventType: evt.Type, Err: err})
	}
}
