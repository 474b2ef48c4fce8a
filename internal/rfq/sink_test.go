package rfq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
)

func TestHTTPSinkPostsEnvelope(t *testing.T) {
	var got map[string]any
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		key = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	evt := NewEvent(EventSelectionChanged, 9, time.Now())
	evt.Payload = &SelectionChange{Seq: 1, RFQID: 9, LineItemID: 1, SupplierID: 2, QuoteID: 3}
	require.NoError(t, NewHTTPSink(srv.URL, time.Second).Deliver(context.Background(), evt))

	require.Equal(t, evt.ID.String(), key)
	require.Equal(t, "selection_changed", got["event"])
	require.Equal(t, float64(9), got["rfq_id"])
	payload := got["payload"].(map[string]any)
	require.Equal(t, float64(3), payload["quote_id"])
}

func TestHTTPSinkSurfacesNon2xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL, time.Second).Deliver(context.Background(), NewEvent(EventExported, 1, time.Now()))
	var sinkErr *AuditSinkError
	require.ErrorAs(t, err, &sinkErr)
	require.Equal(t, http.StatusBadGateway, sinkErr.StatusCode)
	require.Equal(t, EventExported, sinkErr.EventType)
	require.Equal(t, 1, calls)
}

type fakeAudit struct {
	logs []shared.AuditLog
	err  error
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

func TestAuditLogSinkRecordsEvent(t *testing.T) {
	audit := &fakeAudit{}
	sink := NewAuditLogSink(audit)
	evt := NewEvent(EventSelectionChanged, 5, time.Now())
	evt.ActorID = 8
	evt.Payload = &SelectionChange{Seq: 2, LineItemID: 1, SupplierID: 100, QuoteID: 501}

	require.NoError(t, sink.Deliver(context.Background(), evt))
	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	require.Equal(t, "RFQ_SELECTION_CHANGED", log.Action)
	require.Equal(t, "rfq_comparison", log.Entity)
	require.Equal(t, "5", log.EntityID)
	require.Equal(t, int64(8), log.ActorID)
	require.Equal(t, int64(501), log.Meta["quote_id"])

	audit.err = errors.New("db down")
	err := sink.Deliver(context.Background(), evt)
	var sinkErr *AuditSinkError
	require.ErrorAs(t, err, &sinkErr)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := 0
	sink := MultiSink{
		SinkFunc(func(ctx context.Context, evt Event) error { return errors.New("first") }),
		nil,
		SinkFunc(func(ctx context.Context, evt Event) error { ok++; return nil }),
	}
	err := sink.Deliver(context.Background(), NewEvent(EventExported, 1, time.Now()))
	require.EqualError(t, err, "first")
	require.Equal(t, 1, ok)
}
