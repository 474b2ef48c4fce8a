package rfq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	selections map[string]int
	summaries  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{selections: map[string]int{}, summaries: map[string]int{}}
}

func (c *countingRecorder) SelectionRecorded(source string) { c.selections[source]++ }
func (c *countingRecorder) SummaryBuilt(kind string) { c.summaries[kind]++ }
func (c *countingRecorder) AuditDelivered(EventType, error) {}
func (c *countingRecorder) AuditDropped(EventType) {}

func newTestService(repo RepositoryPort, emitter Emitter, rec Recorder) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(repo, store, emitter, ServiceConfig{
		Logger:   quietLogger(),
		Recorder: rec,
		Now:      func() time.Time { return baseTime.Add(24 * time.Hour) },
	})
	return svc, store
}

func TestServiceOpenSeedsAndResumes(t *testing.T) {
	repo := newMemoryRepo(twoSupplierRFQ())
	rec := newCountingRecorder()
	svc, store := newTestService(repo, nil, rec)
	ctx := context.Background()

	view, err := svc.Open(ctx, 1)
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	require.Equal(t, int64(200), view.Lines[0].Selection.SupplierID)
	require.True(t, view.Lines[0].Offers[0].Best)
	require.True(t, view.Lines[0].Offers[0].Selected)
	require.Equal(t, "0.00", view.TotalSavings.StringFixed(2))
	require.True(t, view.Completeness.Complete())
	require.Equal(t, 2, rec.selections["seed"])

	_, err = svc.Select(ctx, 7, 1, 1, 100, 501)
	require.NoError(t, err)

	state, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, state.Changes, 1)

	view, err = svc.Open(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(100), view.Lines[0].Selection.SupplierID)
	require.Equal(t, "-10.00", view.TotalSavings.StringFixed(2))
	require.Equal(t, "-10.00", view.Lines[0].Savings.StringFixed(2))
	require.Len(t, view.Changes, 1)
	require.Equal(t, 2, rec.selections["seed"], "resume does not reseed")
	require.Equal(t, 1, rec.selections["manual"])
}

func TestServiceSelectValidationLeavesStateUntouched(t *testing.T) {
	repo := newMemoryRepo(twoSupplierRFQ())
	emitter := &recordingEmitter{}
	svc, store := newTestService(repo, emitter, nil)
	ctx := context.Background()

	_, err := svc.Select(ctx, 7, 1, 2, 200, 502)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Empty(t, emitter.snapshot())

	state, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.Len(t, state.Selections, 2)
	require.Empty(t, state.Changes)
}

type flakyStore struct {
	*MemoryStore
	saveErr error
}

func (f *flakyStore) Save(ctx context.Context, state State) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.Save(ctx, state)
}

func TestServiceSelectEmitsOnlyAfterStateIsStored(t *testing.T) {
	repo := newMemoryRepo(twoSupplierRFQ())
	emitter := &recordingEmitter{}
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	svc := NewService(repo, store, emitter, ServiceConfig{Logger: quietLogger()})
	ctx := context.Background()

	_, err := svc.Open(ctx, 1)
	require.NoError(t, err)

	store.saveErr = errors.New("redis down")
	_, err = svc.Select(ctx, 7, 1, 1, 100, 501)
	require.EqualError(t, err, "redis down")
	require.Empty(t, emitter.snapshot())

	state, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(200), state.Selections[0].SupplierID)
	require.Empty(t, state.Changes)

	store.saveErr = nil
	_, err = svc.Select(ctx, 7, 1, 1, 100, 501)
	require.NoError(t, err)
	_, err = svc.Select(ctx, 7, 1, 1, 200, 502)
	require.NoError(t, err)

	events := emitter.snapshot()
	require.Len(t, events, 2)
	require.Equal(t, 1, events[0].Payload.Seq)
	require.Equal(t, int64(100), events[0].Payload.SupplierID)
	require.Equal(t, 2, events[1].Payload.Seq)
	require.Equal(t, int64(100), *events[1].Payload.PreviousSupplierID)
}

func TestServiceRejectsIntegrityViolation(t *testing.T) {
	r := twoSupplierRFQ()
	r.Quotes[1].Lines[0].TotalPrice = dec("91")
	svc, _ := newTestService(newMemoryRepo(r), nil, nil)

	_, err := svc.Open(context.Background(), 1)
	var integrity *DataIntegrityError
	require.ErrorAs(t, err, &integrity)
	require.Equal(t, []int64{1}, integrity.LineItemIDs())
}

func TestServiceOpenUnknownRFQ(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(), nil, nil)
	_, err := svc.Open(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceSaveEmitsSelectionSaved(t *testing.T) {
	repo := newMemoryRepo(twoSupplierRFQ())
	emitter := &recordingEmitter{}
	rec := newCountingRecorder()
	svc, _ := newTestService(repo, emitter, rec)
	ctx := context.Background()

	_, err := svc.Select(ctx, 7, 1, 1, 100, 501)
	require.NoError(t, err)
	summary, err := svc.Save(ctx, 7, 1)
	require.NoError(t, err)
	require.Equal(t, baseTime.Add(24*time.Hour), summary.GeneratedAt)
	require.True(t, summary.Verify())

	events := emitter.snapshot()
	require.Len(t, events, 2)
	require.Equal(t, EventSelectionChanged, events[0].Type)
	require.Equal(t, EventSelectionSaved, events[1].Type)
	require.Equal(t, summary.ID, events[1].Summary.ID)
	require.Equal(t, int64(7), events[1].ActorID)
	require.Equal(t, 1, rec.summaries["saved"])

	listed, err := svc.Summaries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	got, err := svc.Summary(ctx, summary.ID)
	require.NoError(t, err)
	require.Equal(t, summary.Digest, got.Digest)
}

func TestServiceSaveFailureKeepsWorkingState(t *testing.T) {
	repo := newMemoryRepo(twoSupplierRFQ())
	repo.saveErr = errors.New("connection reset")
	emitter := &recordingEmitter{}
	svc, store := newTestService(repo, emitter, nil)
	ctx := context.Background()

	_, err := svc.Select(ctx, 7, 1, 1, 100, 501)
	require.NoError(t, err)
	_, err = svc.Save(ctx, 7, 1)
	var sinkErr *AuditSinkError
	require.ErrorAs(t, err, &sinkErr)
	require.Equal(t, EventSelectionSaved, sinkErr.EventType)

	state, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(100), state.Selections[0].SupplierID)
	require.Len(t, emitter.snapshot(), 1)
}

func TestServiceExportEmitsExported(t *testing.T) {
	repo := newMemoryRepo(twoSupplierRFQ())
	emitter := &recordingEmitter{}
	svc, _ := newTestService(repo, emitter, nil)

	summary, err := svc.Export(context.Background(), 3, 1, "csv")
	require.NoError(t, err)
	require.Len(t, summary.Rows, 2)

	events := emitter.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, EventExported, events[0].Type)
	require.Equal(t, "csv", events[0].Format)
	require.NotNil(t, events[0].Summary)
	require.Equal(t, summary.ID, events[0].Summary.ID)
	require.Equal(t, summary.Digest, events[0].Summary.Digest)
	require.True(t, events[0].Summary.Verify())
	listed, _ := svc.Summaries(context.Background(), 1)
	require.Empty(t, listed, "exports are not stored")
}

func TestServiceResetReseeds(t *testing.T) {
	repo := newMemoryRepo(twoSupplierRFQ())
	svc, _ := newTestService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Select(ctx, 7, 1, 1, 100, 501)
	require.NoError(t, err)
	view, err := svc.Reset(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(200), view.Lines[0].Selection.SupplierID)
	require.Empty(t, view.Changes)
}

func TestServiceReseedsStaleState(t *testing.T) {
	r := twoSupplierRFQ()
	repo := newMemoryRepo(r)
	svc, _ := newTestService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Select(ctx, 7, 1, 1, 100, 501)
	require.NoError(t, err)

	// A withdraws after the operator picked them.
	r.Quotes[0].Status = QuoteRetracted
	repo.rfqs[1] = r

	view, err := svc.Open(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(200), view.Lines[0].Selection.SupplierID)
	require.Nil(t, view.Lines[1].Selection)
	require.False(t, view.Lines[1].Quoted())
	require.True(t, view.Completeness.Complete())
}
