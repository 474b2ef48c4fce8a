package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
)

type memoryProcRepo struct {
	prs     map[int64]PurchaseRequest
	pos     map[int64]PurchaseOrder
	nextID  int64
	failPOs bool
}

type memoryProcTx struct {
	repo *memoryProcRepo
}

func newMemoryProcRepo() *memoryProcRepo {
	return &memoryProcRepo{
		prs: make(map[int64]PurchaseRequest),
		pos: make(map[int64]PurchaseOrder),
	}
}

// WithTx applies writes to a staged copy and commits only on success.
func (r *memoryProcRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := &memoryProcRepo{prs: make(map[int64]PurchaseRequest), pos: make(map[int64]PurchaseOrder), nextID: r.nextID, failPOs: r.failPOs}
	for k, v := range r.prs {
		staged.prs[k] = v
	}
	for k, v := range r.pos {
		staged.pos[k] = v
	}
	if err := fn(ctx, &memoryProcTx{repo: staged}); err != nil {
		return err
	}
	r.prs, r.pos, r.nextID = staged.prs, staged.pos, staged.nextID
	return nil
}

func (r *memoryProcRepo) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	pr, ok := r.prs[id]
	if !ok {
		return PurchaseRequest{}, ErrNotFound
	}
	return pr, nil
}

func (r *memoryProcRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (r *memoryProcRepo) ListPRsBySummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseRequest, error) {
	var out []PurchaseRequest
	for id := int64(1); id <= r.nextID; id++ {
		if pr, ok := r.prs[id]; ok && pr.SummaryID == summaryID {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (r *memoryProcRepo) ListPOsBySummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for id := int64(1); id <= r.nextID; id++ {
		if po, ok := r.pos[id]; ok && po.SummaryID == summaryID {
			out = append(out, po)
		}
	}
	return out, nil
}

func (tx *memoryProcTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryProcTx) CreatePR(ctx context.Context, pr PurchaseRequest) (int64, error) {
	id := tx.nextID()
	pr.ID = id
	tx.repo.prs[id] = pr
	return id, nil
}

func (tx *memoryProcTx) InsertPRLine(ctx context.Context, line Line) error {
	pr := tx.repo.prs[line.DocumentID]
	line.ID = tx.nextID()
	pr.Lines = append(pr.Lines, line)
	tx.repo.prs[line.DocumentID] = pr
	return nil
}

func (tx *memoryProcTx) UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error {
	pr, ok := tx.repo.prs[id]
	if !ok {
		return ErrNotFound
	}
	pr.Status = status
	tx.repo.prs[id] = pr
	return nil
}

func (tx *memoryProcTx) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	if tx.repo.failPOs {
		return 0, errors.New("insert failed")
	}
	id := tx.nextID()
	po.ID = id
	tx.repo.pos[id] = po
	return id, nil
}

func (tx *memoryProcTx) InsertPOLine(ctx context.Context, line Line) error {
	po := tx.repo.pos[line.DocumentID]
	line.ID = tx.nextID()
	po.Lines = append(po.Lines, line)
	tx.repo.pos[line.DocumentID] = po
	return nil
}

func (tx *memoryProcTx) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	po, ok := tx.repo.pos[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	tx.repo.pos[id] = po
	return nil
}

func (tx *memoryProcTx) SetPOApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error {
	po := tx.repo.pos[id]
	po.ApprovedBy = approvedBy
	po.ApprovedAt = &approvedAt
	tx.repo.pos[id] = po
	return nil
}

type memorySummaries map[uuid.UUID]rfq.Summary

func (m memorySummaries) Summary(ctx context.Context, id uuid.UUID) (rfq.Summary, error) {
	s, ok := m[id]
	if !ok {
		return rfq.Summary{}, rfq.ErrNotFound
	}
	return s, nil
}

type memoryIdempotency struct {
	keys     map[string]string
	released int
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]string{}}
}

func (m *memoryIdempotency) Claim(ctx context.Context, key, scope string) error {
	if _, ok := m.keys[scope+"|"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[scope+"|"+key] = ""
	return nil
}

func (m *memoryIdempotency) Complete(ctx context.Context, key, scope, ref string) error {
	m.keys[scope+"|"+key] = ref
	return nil
}

func (m *memoryIdempotency) Release(ctx context.Context, key, scope string) error {
	delete(m.keys, scope+"|"+key)
	m.released++
	return nil
}

type recordingApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordingApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingApprovals) List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range r.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

func line(id, lineItemID int64, unit, qty string, lead int) rfq.QuoteLine {
	u, q := decimal.RequireFromString(unit), decimal.RequireFromString(qty)
	return rfq.QuoteLine{ID: id, MRLineItemID: lineItemID, UnitPrice: u, Quantity: q, TotalPrice: u.Mul(q), LeadTimeDays: lead}
}

// savedSummary: Bolt Co wins line 1, Acme wins lines 2 and 3.
func savedSummary(t *testing.T) rfq.Summary {
	t.Helper()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r := rfq.RFQ{
		ID:              1,
		Number:          "RFQ-2024-001",
		MaterialRequest: rfq.MaterialRequest{ID: 10, Number: "MR-0010"},
		Currency:        "USD",
		LineItems: []rfq.LineItem{
			{ID: 1, ItemCode: "BLT", Description: "Bolt", Quantity: decimal.NewFromInt(10), UOM: "pcs"},
			{ID: 2, ItemCode: "NUT", Description: "Nut", Quantity: decimal.NewFromInt(10), UOM: "pcs"},
			{ID: 3, ItemCode: "WSH", Description: "Washer", Quantity: decimal.NewFromInt(3), UOM: "pcs"},
		},
		Suppliers: []rfq.InvitedSupplier{{SupplierID: 100}, {SupplierID: 200}},
		Quotes: []rfq.Quote{
			{ID: 501, RFQID: 1, SupplierID: 100, Supplier: rfq.Supplier{Name: "Acme"}, Status: rfq.QuoteSubmitted, SubmittedAt: at, Currency: "USD",
				Lines: []rfq.QuoteLine{line(1, 1, "10", "10", 5), line(2, 2, "5", "10", 5), line(3, 3, "0.333", "3", 12)}},
			{ID: 502, RFQID: 1, SupplierID: 200, Supplier: rfq.Supplier{Name: "Bolt Co"}, Status: rfq.QuoteSubmitted, SubmittedAt: at.Add(time.Hour), Currency: "USD",
				Lines: []rfq.QuoteLine{line(4, 1, "9", "10", 3)}},
		},
	}
	alloc := rfq.NewAllocation(&r, rfq.NewResolver(rfq.DefaultTieBreak), nil)
	builder := rfq.NewBuilder()
	builder.Now = func() time.Time { return at.Add(48 * time.Hour) }
	summary, err := builder.Build(&r, alloc.Seed())
	require.NoError(t, err)
	return summary
}

func newTestService(t *testing.T) (*Service, *memoryProcRepo, rfq.Summary, *memoryIdempotency, *recordingApprovals) {
	t.Helper()
	summary := savedSummary(t)
	repo := newMemoryProcRepo()
	idem := newMemoryIdempotency()
	approvals := &recordingApprovals{}
	svc := NewService(repo, memorySummaries{summary.ID: summary}, approvals, nil, idem)
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) }
	return svc, repo, summary, idem, approvals
}

func TestGroupBySupplierKeepsRowOrder(t *testing.T) {
	awards := GroupBySupplier(savedSummary(t))
	require.Len(t, awards, 2)
	require.Equal(t, int64(200), awards[0].SupplierID)
	require.Equal(t, "90.00", awards[0].Total.StringFixed(2))
	require.Equal(t, int64(100), awards[1].SupplierID)
	require.Len(t, awards[1].Rows, 2)
	require.Equal(t, "51.00", awards[1].Total.StringFixed(2))
	require.Equal(t, 12, awards[1].LeadTimeDays)
}

func TestCreateRequisitionsCarriesSelectionsUnchanged(t *testing.T) {
	svc, _, summary, _, _ := newTestService(t)
	ctx := context.Background()

	prs, err := svc.CreateRequisitionsFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7})
	require.NoError(t, err)
	require.Len(t, prs, 2)

	var carried int
	for _, pr := range prs {
		require.Equal(t, PRStatusDraft, pr.Status)
		require.Equal(t, summary.ID, pr.SummaryID)
		require.Equal(t, int64(7), pr.RequestBy)
		for _, l := range pr.Lines {
			row := findRow(t, summary, l.LineItemID)
			require.Equal(t, row.SupplierID, pr.SupplierID)
			require.Equal(t, row.QuoteID, l.QuoteID)
			require.True(t, row.UnitPrice.Equal(l.UnitPrice))
			require.True(t, row.Quantity.Equal(l.Qty))
			require.True(t, row.TotalPrice.Equal(l.TotalPrice))
			carried++
		}
	}
	require.Equal(t, len(summary.Rows), carried)
}

func TestCreateRequisitionsIsIdempotentPerSummary(t *testing.T) {
	svc, repo, summary, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateRequisitionsFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7})
	require.NoError(t, err)
	second, err := svc.CreateRequisitionsFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 8})
	require.NoError(t, err)
	require.Equal(t, first[0].ID, second[0].ID)
	require.Len(t, repo.prs, 2)
}

func TestGenerationIgnoresCallerKeyForSameSummary(t *testing.T) {
	svc, repo, summary, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateRequisitionsFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7, IdempotencyKey: "a"})
	require.NoError(t, err)
	second, err := svc.CreateRequisitionsFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7, IdempotencyKey: "b"})
	require.NoError(t, err)
	require.Equal(t, first[0].ID, second[0].ID)
	require.Len(t, repo.prs, 2)

	_, err = svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7, IdempotencyKey: "c"})
	require.NoError(t, err)
	_, err = svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7, IdempotencyKey: "d"})
	require.NoError(t, err)
	require.Len(t, repo.pos, 2)
}

func TestGenerationWithoutIdempotencyStoreReturnsExisting(t *testing.T) {
	summary := savedSummary(t)
	repo := newMemoryProcRepo()
	svc := NewService(repo, memorySummaries{summary.ID: summary}, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID})
	require.NoError(t, err)
	again, err := svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID})
	require.NoError(t, err)
	require.Len(t, again, 2)
	require.Len(t, repo.pos, 2)
}

func TestCreateOrdersLinksAndClosesRequisitions(t *testing.T) {
	svc, repo, summary, _, _ := newTestService(t)
	ctx := context.Background()

	prs, err := svc.CreateRequisitionsFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7})
	require.NoError(t, err)
	pos, err := svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7})
	require.NoError(t, err)
	require.Len(t, pos, 2)

	for i, po := range pos {
		require.Equal(t, prs[i].ID, po.PRID)
		require.Equal(t, PRStatusClosed, repo.prs[prs[i].ID].Status)
	}
	require.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), pos[0].ExpectedDate)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), pos[1].ExpectedDate)
}

func TestCreateOrdersReleasesKeyOnFailure(t *testing.T) {
	svc, repo, summary, idem, _ := newTestService(t)
	repo.failPOs = true
	ctx := context.Background()

	_, err := svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID})
	require.Error(t, err)
	require.Equal(t, 1, idem.released)
	require.Empty(t, repo.pos)

	repo.failPOs = false
	pos, err := svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID})
	require.NoError(t, err)
	require.Len(t, pos, 2)
}

func TestGenerationRejectsTamperedSummary(t *testing.T) {
	summary := savedSummary(t)
	summary.Rows[0].UnitPrice = decimal.RequireFromString("1.00")
	svc := NewService(newMemoryProcRepo(), memorySummaries{summary.ID: summary}, nil, nil, nil)

	_, err := svc.CreateOrdersFromSummary(context.Background(), GenerateInput{SummaryID: summary.ID})
	require.ErrorIs(t, err, ErrSummaryTampered)
}

func TestGenerationUnknownSummary(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	_, err := svc.CreateRequisitionsFromSummary(context.Background(), GenerateInput{SummaryID: uuid.New()})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CreateRequisitionsFromSummary(context.Background(), GenerateInput{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPurchaseOrderApprovalFlow(t *testing.T) {
	svc, repo, summary, _, approvals := newTestService(t)
	ctx := context.Background()

	pos, err := svc.CreateOrdersFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7})
	require.NoError(t, err)
	poID := pos[0].ID

	require.ErrorIs(t, svc.ApprovePurchaseOrder(ctx, poID, 9), ErrInvalidState)
	require.NoError(t, svc.SubmitPurchaseOrder(ctx, poID, 7))
	require.ErrorIs(t, svc.SubmitPurchaseOrder(ctx, poID, 7), ErrInvalidState)
	require.NoError(t, svc.ApprovePurchaseOrder(ctx, poID, 9))

	po := repo.pos[poID]
	require.Equal(t, POStatusApproved, po.Status)
	require.Equal(t, int64(9), po.ApprovedBy)
	require.NotNil(t, po.ApprovedAt)

	require.Len(t, approvals.logs, 2)
	require.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
	require.Equal(t, shared.ApprovalApprove, approvals.logs[1].Action)
	require.Equal(t, shared.ApprovalRef(ModulePO, poID), approvals.logs[1].RefID)

	history, err := svc.ApprovalHistory(ctx, poID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, int64(9), history[1].ActorID)

	_, err = svc.ApprovalHistory(ctx, poID+100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitPurchaseRequest(t *testing.T) {
	svc, repo, summary, _, _ := newTestService(t)
	ctx := context.Background()
	prs, err := svc.CreateRequisitionsFromSummary(ctx, GenerateInput{SummaryID: summary.ID, ActorID: 7})
	require.NoError(t, err)

	require.NoError(t, svc.SubmitPurchaseRequest(ctx, prs[0].ID, 7))
	require.Equal(t, PRStatusSubmitted, repo.prs[prs[0].ID].Status)
	require.ErrorIs(t, svc.SubmitPurchaseRequest(ctx, 999, 7), ErrNotFound)
}

func findRow(t *testing.T, s rfq.Summary, lineItemID int64) rfq.SummaryRow {
	t.Helper()
	for _, row := range s.Rows {
		if row.LineItemID == lineItemID {
			return row
		}
	}
	t.Fatalf("line %d not in summary", lineItemID)
	return rfq.SummaryRow{}
}
