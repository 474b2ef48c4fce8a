package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPR(ctx context.Context, id int64) (PurchaseRequest, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPRsBySummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseRequest, error)
	ListPOsBySummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseOrder, error)
}

// SummarySource resolves saved selection summaries.
type SummarySource interface {
	Summary(ctx context.Context, id uuid.UUID) (rfq.Summary, error)
}

// IdempotencyPort guards document generation per summary.
type IdempotencyPort interface {
	Claim(ctx context.Context, key, scope string) error
	Complete(ctx context.Context, key, scope, ref string) error
	Release(ctx context.Context, key, scope string) error
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service turns saved selection summaries into purchase documents.
type Service struct {
	repo        RepositoryPort
	summaries   SummarySource
	approvals   ApprovalPort
	audit       AuditPort
	idempotency IdempotencyPort
	now         func() time.Time
}

// NewService constructs procurement service. approvals, audit and idem may be nil.
func NewService(repo RepositoryPort, summaries SummarySource, approvals ApprovalPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, summaries: summaries, approvals: approvals, audit: audit, idempotency: idem, now: time.Now}
}

// GenerateInput identifies the summary to convert.
type GenerateInput struct {
	SummaryID      uuid.UUID
	ActorID        int64
	IdempotencyKey string
	Note           string
}

// SupplierAward groups the summary rows won by one supplier.
type SupplierAward struct {
	SupplierID   int64
	SupplierName string
	Rows         []rfq.SummaryRow
	Total        decimal.Decimal
	LeadTimeDays int
}

// GroupBySupplier splits a summary into one award per supplier, in the order
// suppliers first appear in the summary rows.
func GroupBySupplier(summary rfq.Summary) []SupplierAward {
	index := make(map[int64]int)
	var awards []SupplierAward
	for _, row := range summary.Rows {
		i, ok := index[row.SupplierID]
		if !ok {
			i = len(awards)
			index[row.SupplierID] = i
			awards = append(awards, SupplierAward{SupplierID: row.SupplierID, SupplierName: row.SupplierName, Total: decimal.Zero})
		}
		award := &awards[i]
		award.Rows = append(award.Rows, row)
		award.Total = award.Total.Add(row.TotalPrice)
		if row.LeadTimeDays > award.LeadTimeDays {
			award.LeadTimeDays = row.LeadTimeDays
		}
	}
	return awards
}

// CreateRequisitionsFromSummary creates one draft PR per winning supplier.
// Repeating the call for the same summary returns the PRs created first.
func (s *Service) CreateRequisitionsFromSummary(ctx context.Context, input GenerateInput) ([]PurchaseRequest, error) {
	summary, err := s.summary(ctx, input.SummaryID)
	if err != nil {
		return nil, err
	}
	key := idempotencyKey(summary.ID)
	claimed, err := s.claim(ctx, key, ModulePR)
	if err != nil {
		return nil, err
	}
	if !claimed {
		existing, err := s.repo.ListPRsBySummary(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return nil, ErrInProgress
		}
		return existing, nil
	}
	if existing, err := s.repo.ListPRsBySummary(ctx, summary.ID); err != nil {
		s.release(ctx, key, ModulePR)
		return nil, err
	} else if len(existing) > 0 {
		s.complete(ctx, key, ModulePR, summary.ID)
		return existing, nil
	}

	var created []PurchaseRequest
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = created[:0]
		for i, award := range GroupBySupplier(summary) {
			pr := PurchaseRequest{
				Number:       documentNumber("PR", summary, i),
				SummaryID:    summary.ID,
				RFQID:        summary.RFQID,
				SupplierID:   award.SupplierID,
				SupplierName: award.SupplierName,
				RequestBy:    input.ActorID,
				Status:       PRStatusDraft,
				Currency:     summary.Currency,
				Total:        award.Total,
				Note:         input.Note,
				CreatedAt:    s.now().UTC(),
			}
			id, err := tx.CreatePR(ctx, pr)
			if err != nil {
				return err
			}
			pr.ID = id
			for _, row := range award.Rows {
				line := lineFromRow(id, row)
				if err := tx.InsertPRLine(ctx, line); err != nil {
					return err
				}
				pr.Lines = append(pr.Lines, line)
			}
			created = append(created, pr)
		}
		return nil
	})
	if err != nil {
		s.release(ctx, key, ModulePR)
		return nil, err
	}
	s.complete(ctx, key, ModulePR, summary.ID)
	for _, pr := range created {
		s.recordAudit(ctx, input.ActorID, "PR_CREATE", pr.ID, map[string]any{"number": pr.Number, "summary_id": summary.ID.String(), "supplier_id": pr.SupplierID, "idempotency_key": input.IdempotencyKey})
	}
	return created, nil
}

// CreateOrdersFromSummary creates one draft PO per winning supplier. Draft
// PRs generated from the same summary are linked and closed.
func (s *Service) CreateOrdersFromSummary(ctx context.Context, input GenerateInput) ([]PurchaseOrder, error) {
	summary, err := s.summary(ctx, input.SummaryID)
	if err != nil {
		return nil, err
	}
	key := idempotencyKey(summary.ID)
	claimed, err := s.claim(ctx, key, ModulePO)
	if err != nil {
		return nil, err
	}
	if !claimed {
		existing, err := s.repo.ListPOsBySummary(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return nil, ErrInProgress
		}
		return existing, nil
	}
	if existing, err := s.repo.ListPOsBySummary(ctx, summary.ID); err != nil {
		s.release(ctx, key, ModulePO)
		return nil, err
	} else if len(existing) > 0 {
		s.complete(ctx, key, ModulePO, summary.ID)
		return existing, nil
	}

	prs, err := s.repo.ListPRsBySummary(ctx, summary.ID)
	if err != nil {
		s.release(ctx, key, ModulePO)
		return nil, err
	}
	prBySupplier := make(map[int64]PurchaseRequest, len(prs))
	for _, pr := range prs {
		if pr.Status != PRStatusClosed {
			prBySupplier[pr.SupplierID] = pr
		}
	}

	var created []PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = created[:0]
		for i, award := range GroupBySupplier(summary) {
			po := PurchaseOrder{
				Number:       documentNumber("PO", summary, i),
				SummaryID:    summary.ID,
				RFQID:        summary.RFQID,
				SupplierID:   award.SupplierID,
				SupplierName: award.SupplierName,
				Status:       POStatusDraft,
				Currency:     summary.Currency,
				Total:        award.Total,
				ExpectedDate: summary.GeneratedAt.AddDate(0, 0, award.LeadTimeDays).Truncate(24 * time.Hour),
				Note:         input.Note,
				CreatedBy:    input.ActorID,
				CreatedAt:    s.now().UTC(),
			}
			if pr, ok := prBySupplier[award.SupplierID]; ok {
				po.PRID = pr.ID
				if err := tx.UpdatePRStatus(ctx, pr.ID, PRStatusClosed); err != nil {
					return err
				}
			}
			id, err := tx.CreatePO(ctx, po)
			if err != nil {
				return err
			}
			po.ID = id
			for _, row := range award.Rows {
				line := lineFromRow(id, row)
				if err := tx.InsertPOLine(ctx, line); err != nil {
					return err
				}
				po.Lines = append(po.Lines, line)
			}
			created = append(created, po)
		}
		return nil
	})
	if err != nil {
		s.release(ctx, key, ModulePO)
		return nil, err
	}
	s.complete(ctx, key, ModulePO, summary.ID)
	for _, po := range created {
		s.recordAudit(ctx, input.ActorID, "PO_CREATE", po.ID, map[string]any{"number": po.Number, "summary_id": summary.ID.String(), "from_pr": po.PRID, "idempotency_key": input.IdempotencyKey})
	}
	return created, nil
}

// OrdersForSummary lists the POs generated from a summary.
func (s *Service) OrdersForSummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseOrder, error) {
	return s.repo.ListPOsBySummary(ctx, summaryID)
}

// PurchaseOrder fetches one PO with its lines.
func (s *Service) PurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ApprovalHistory returns the submit/approve trail of a purchase order, oldest first.
func (s *Service) ApprovalHistory(ctx context.Context, poID int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.GetPO(ctx, poID); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, ModulePO, shared.ApprovalRef(ModulePO, poID))
}

// SubmitPurchaseRequest transitions PR to SUBMITTED.
func (s *Service) SubmitPurchaseRequest(ctx context.Context, prID int64, actorID int64) error {
	pr, err := s.repo.GetPR(ctx, prID)
	if err != nil {
		return err
	}
	if pr.Status != PRStatusDraft {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePRStatus(ctx, prID, PRStatusSubmitted)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, ModulePR, prID, actorID, shared.ApprovalSubmit, fmt.Sprintf("PR %s submitted", pr.Number))
	return nil
}

// SubmitPurchaseOrder requests approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	po, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusDraft {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, poID, POStatusApproval)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, ModulePO, poID, actorID, shared.ApprovalSubmit, fmt.Sprintf("PO %s submitted", po.Number))
	return nil
}

// ApprovePurchaseOrder marks PO as approved and logs approval.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	po, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusApproval {
		return ErrInvalidState
	}
	if actorID == 0 {
		return ErrValidation
	}
	now := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdatePOStatus(ctx, poID, POStatusApproved); err != nil {
			return err
		}
		return tx.SetPOApproval(ctx, poID, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, ModulePO, poID, actorID, shared.ApprovalApprove, fmt.Sprintf("PO %s approved", po.Number))
	s.recordAudit(ctx, actorID, "PO_APPROVE", poID, map[string]any{"number": po.Number})
	return nil
}

// summary loads the summary and refuses one whose digest no longer matches.
func (s *Service) summary(ctx context.Context, id uuid.UUID) (rfq.Summary, error) {
	if id == uuid.Nil {
		return rfq.Summary{}, ErrValidation
	}
	summary, err := s.summaries.Summary(ctx, id)
	if err != nil {
		if errors.Is(err, rfq.ErrNotFound) {
			return rfq.Summary{}, ErrNotFound
		}
		return rfq.Summary{}, err
	}
	if !summary.Verify() {
		return rfq.Summary{}, ErrSummaryTampered
	}
	if len(summary.Rows) == 0 {
		return rfq.Summary{}, ErrValidation
	}
	return summary, nil
}

func (s *Service) claim(ctx context.Context, key, scope string) (bool, error) {
	if s.idempotency == nil {
		return true, nil
	}
	err := s.idempotency.Claim(ctx, key, scope)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) complete(ctx context.Context, key, scope string, summaryID uuid.UUID) {
	if s.idempotency == nil {
		return
	}
	_ = s.idempotency.Complete(ctx, key, scope, summaryID.String())
}

func (s *Service) release(ctx context.Context, key, scope string) {
	if s.idempotency == nil {
		return
	}
	_ = s.idempotency.Release(ctx, key, scope)
}

func (s *Service) recordApproval(ctx context.Context, module string, id, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil || actorID == 0 {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: module, RefID: shared.ApprovalRef(module, id), ActorID: actorID, Action: action, Note: note, At: s.now().UTC()})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "procurement", EntityID: strconv.FormatInt(entityID, 10), Meta: meta})
}

// idempotencyKey scopes generation to the summary. The caller's
// Idempotency-Key header is only recorded in the audit trail.
func idempotencyKey(summaryID uuid.UUID) string {
	return "summary:" + summaryID.String()
}

func documentNumber(prefix string, summary rfq.Summary, index int) string {
	return fmt.Sprintf("%s-%s-%s-%02d", prefix, summary.RFQNumber, summary.ID.String()[:8], index+1)
}

func lineFromRow(documentID int64, row rfq.SummaryRow) Line {
	return Line{
		DocumentID:   documentID,
		LineItemID:   row.LineItemID,
		QuoteID:      row.QuoteID,
		ItemCode:     row.ItemCode,
		Description:  row.Description,
		Qty:          row.Quantity,
		UOM:          row.UOM,
		UnitPrice:    row.UnitPrice,
		TotalPrice:   row.TotalPrice,
		LeadTimeDays: row.LeadTimeDays,
	}
}
