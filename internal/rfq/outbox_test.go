package rfq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxDeliversInEmitOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	sink := SinkFunc(func(ctx context.Context, evt Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, evt.Payload.Seq)
		return nil
	})
	outbox := NewOutbox(sink, OutboxConfig{Buffer: 64, Logger: quietLogger()})
	outbox.Start(context.Background())

	for i := 1; i <= 50; i++ {
		evt := NewEvent(EventSelectionChanged, 1, time.Now())
		evt.Payload = &SelectionChange{Seq: i}
		outbox.Emit(evt)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, outbox.Close(ctx))

	require.Len(t, seen, 50)
	for i, seq := range seen {
		require.Equal(t, i+1, seq)
	}
}

func TestOutboxEmitNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	sink := SinkFunc(func(ctx context.Context, evt Event) error {
		<-release
		return nil
	})
	var warnings atomic.Int32
	outbox := NewOutbox(sink, OutboxConfig{
		Buffer: 1,
		Logger: quietLogger(),
		OnWarning: func(evt Event, err error) {
			if errors.Is(err, ErrOutboxFull) {
				warnings.Add(1)
			}
		},
	})
	outbox.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			outbox.Emit(NewEvent(EventExported, 1, time.Now()))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a stalled sink")
	}
	require.GreaterOrEqual(t, warnings.Load(), int32(8))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, outbox.Close(ctx))
}

func TestOutboxReportsFailuresWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	sink := SinkFunc(func(ctx context.Context, evt Event) error {
		calls.Add(1)
		return &AuditSinkError{EventType: evt.Type, StatusCode: 503}
	})
	warned := make(chan error, 1)
	outbox := NewOutbox(sink, OutboxConfig{
		Logger:    quietLogger(),
		OnWarning: func(evt Event, err error) { warned <- err },
	})
	outbox.Start(context.Background())
	outbox.Emit(NewEvent(EventSelectionSaved, 3, time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, outbox.Close(ctx))

	require.Equal(t, int32(1), calls.Load())
	err := <-warned
	var sinkErr *AuditSinkError
	require.ErrorAs(t, err, &sinkErr)
	require.Equal(t, 503, sinkErr.StatusCode)
}

func TestOutboxDropsAfterClose(t *testing.T) {
	var calls atomic.Int32
	outbox := NewOutbox(SinkFunc(func(ctx context.Context, evt Event) error {
		calls.Add(1)
		return nil
	}), OutboxConfig{Logger: quietLogger()})
	outbox.Start(context.Background())
	require.NoError(t, outbox.Close(context.Background()))

	outbox.Emit(NewEvent(EventExported, 1, time.Now()))
	require.Zero(t, calls.Load())
}
