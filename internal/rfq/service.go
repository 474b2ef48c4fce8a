package rfq

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	LoadRFQ(ctx context.Context, id int64) (RFQ, error)
	SaveSummary(ctx context.Context, summary Summary, actorID int64) error
	ListSummaries(ctx context.Context, rfqID int64) ([]Summary, error)
	GetSummary(ctx context.Context, id uuid.UUID) (Summary, error)
}

// ServiceConfig tunes the comparison service.
type ServiceConfig struct {
	TieBreak TieBreakPolicy
	// Currency is assumed for RFQs stored without one.
	Currency string
	Logger   *slog.Logger
	Recorder Recorder
	Now      func() time.Time
}

// Service orchestrates comparison flows.
type Service struct {
	repo     RepositoryPort
	state    StateStore
	emitter  Emitter
	resolver Resolver
	builder  Builder
	logger   *slog.Logger
	recorder Recorder
	currency string
	now      func() time.Time
	loads    singleflight.Group
}

// NewService constructs the comparison service. A nil emitter discards events.
func NewService(repo RepositoryPort, state StateStore, emitter Emitter, cfg ServiceConfig) *Service {
	if emitter == nil {
		emitter = discardEmitter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	builder := NewBuilder()
	builder.Now = cfg.Now
	return &Service{
		repo:     repo,
		state:    state,
		emitter:  emitter,
		resolver: NewResolver(cfg.TieBreak),
		builder:  builder,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		currency: cfg.Currency,
		now:      cfg.Now,
	}
}

// Open loads the RFQ and returns its comparison. The first open seeds every
// line with the best-price recommendation; later opens resume the stored state.
func (s *Service) Open(ctx context.Context, rfqID int64) (Comparison, error) {
	alloc, err := s.allocation(ctx, rfqID)
	if err != nil {
		return Comparison{}, err
	}
	return BuildComparison(alloc), nil
}

// Select overrides the winning supplier for one line. A failed save
// discards the change and emits nothing.
func (s *Service) Select(ctx context.Context, actorID, rfqID, lineItemID, supplierID, quoteID int64) (Comparison, error) {
	alloc, err := s.allocation(ctx, rfqID)
	if err != nil {
		return Comparison{}, err
	}
	// selection_changed goes out only once the new state is stored.
	pending := &pendingEmitter{}
	alloc.emitter = pending
	if _, err := alloc.SelectAs(actorID, lineItemID, supplierID, quoteID); err != nil {
		return Comparison{}, err
	}
	if err := s.persist(ctx, alloc); err != nil {
		return Comparison{}, err
	}
	pending.flush(s.emitter)
	alloc.emitter = s.emitter
	s.recorder.SelectionRecorded("manual")
	return BuildComparison(alloc), nil
}

// Reset discards operator overrides and reseeds the recommendation.
func (s *Service) Reset(ctx context.Context, rfqID int64) (Comparison, error) {
	r, err := s.load(ctx, rfqID)
	if err != nil {
		return Comparison{}, err
	}
	alloc := NewAllocation(&r, s.resolver, s.emitter)
	s.seed(alloc)
	if err := s.persist(ctx, alloc); err != nil {
		return Comparison{}, err
	}
	return BuildComparison(alloc), nil
}

// Save snapshots the allocation into an immutable summary, stores it and
// emits selection_saved. A storage failure is reported as *AuditSinkError.
func (s *Service) Save(ctx context.Context, actorID, rfqID int64) (Summary, error) {
	alloc, err := s.allocation(ctx, rfqID)
	if err != nil {
		return Summary{}, err
	}
	summary, err := s.builder.Build(alloc.RFQ(), alloc.Selections())
	if err != nil {
		return Summary{}, err
	}
	s.recorder.SummaryBuilt("saved")
	if err := s.repo.SaveSummary(ctx, summary, actorID); err != nil {
		return Summary{}, &AuditSinkError{EventType: EventSelectionSaved, Err: err}
	}
	evt := NewEvent(EventSelectionSaved, rfqID, summary.GeneratedAt)
	evt.ActorID = actorID
	snapshot := summary.Clone()
	evt.Summary = &snapshot
	s.emitter.Emit(evt)
	s.logger.Info("comparison saved",
		slog.Int64("rfq_id", rfqID),
		slog.String("summary_id", summary.ID.String()),
		slog.String("total_savings", summary.TotalSavings.StringFixed(2)))
	return summary, nil
}

// Export builds a summary of the current allocation for download and emits
// exported carrying that summary. The summary is not stored in the repository;
// the event is its record.
func (s *Service) Export(ctx context.Context, actorID, rfqID int64, format string) (Summary, error) {
	alloc, err := s.allocation(ctx, rfqID)
	if err != nil {
		return Summary{}, err
	}
	summary, err := s.builder.Build(alloc.RFQ(), alloc.Selections())
	if err != nil {
		return Summary{}, err
	}
	s.recorder.SummaryBuilt("export_" + format)
	evt := NewEvent(EventExported, rfqID, summary.GeneratedAt)
	evt.ActorID = actorID
	evt.Format = format
	snapshot := summary.Clone()
	evt.Summary = &snapshot
	s.emitter.Emit(evt)
	return summary, nil
}

// Summaries lists saved summaries for the RFQ, newest first.
func (s *Service) Summaries(ctx context.Context, rfqID int64) ([]Summary, error) {
	return s.repo.ListSummaries(ctx, rfqID)
}

// Summary fetches one saved summary.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (Summary, error) {
	return s.repo.GetSummary(ctx, id)
}

// load fetches and validates the RFQ. Concurrent loads of the same RFQ share
// one round trip.
func (s *Service) load(ctx context.Context, rfqID int64) (RFQ, error) {
	v, err, _ := s.loads.Do(strconv.FormatInt(rfqID, 10), func() (any, error) {
		r, err := s.repo.LoadRFQ(ctx, rfqID)
		if err != nil {
			return RFQ{}, err
		}
		if r.Currency == "" {
			r.Currency = s.currency
		}
		if err := CheckIntegrity(&r); err != nil {
			return RFQ{}, err
		}
		return r, nil
	})
	if err != nil {
		var integrity *DataIntegrityError
		if errors.As(err, &integrity) {
			s.logger.Error("rfq failed integrity check",
				slog.Int64("rfq_id", rfqID),
				slog.Any("line_item_ids", integrity.LineItemIDs()),
				slog.Any("error", err))
		}
		return RFQ{}, err
	}
	return v.(RFQ), nil
}

func (s *Service) allocation(ctx context.Context, rfqID int64) (*Allocation, error) {
	r, err := s.load(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	alloc := NewAllocation(&r, s.resolver, s.emitter)
	alloc.now = s.now
	state, err := s.state.Load(ctx, rfqID)
	switch {
	case errors.Is(err, ErrNoComparison):
		s.seed(alloc)
		if err := s.persist(ctx, alloc); err != nil {
			return nil, err
		}
		return alloc, nil
	case err != nil:
		return nil, err
	}
	if err := alloc.Restore(state.Selections, state.Changes); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		s.logger.Warn("stored comparison no longer matches rfq, reseeding",
			slog.Int64("rfq_id", rfqID),
			slog.Any("error", err))
		s.seed(alloc)
		if err := s.persist(ctx, alloc); err != nil {
			return nil, err
		}
	}
	return alloc, nil
}

func (s *Service) seed(alloc *Allocation) {
	for range alloc.Seed() {
		s.recorder.SelectionRecorded("seed")
	}
}

func (s *Service) persist(ctx context.Context, alloc *Allocation) error {
	return s.state.Save(ctx, State{
		RFQID:      alloc.RFQ().ID,
		Selections: alloc.Selections(),
		Changes:    alloc.Changes(),
		UpdatedAt:  s.now().UTC(),
	})
}

// pendingEmitter holds events until the state they describe is stored.
type pendingEmitter struct {
	events []Event
}

func (p *pendingEmitter) Emit(evt Event) {
	p.events = append(p.events, evt)
}

func (p *pendingEmitter) flush(to Emitter) {
	for _, evt := range p.events {
		to.Emit(evt)
	}
	p.events = nil
}
