package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
)

type procurementService interface {
	CreateRequisitionsFromSummary(ctx context.Context, input GenerateInput) ([]PurchaseRequest, error)
	CreateOrdersFromSummary(ctx context.Context, input GenerateInput) ([]PurchaseOrder, error)
	OrdersForSummary(ctx context.Context, summaryID uuid.UUID) ([]PurchaseOrder, error)
	PurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ApprovalHistory(ctx context.Context, poID int64) ([]shared.ApprovalLog, error)
	SubmitPurchaseRequest(ctx context.Context, prID int64, actorID int64) error
	SubmitPurchaseOrder(ctx context.Context, poID int64, actorID int64) error
	ApprovePurchaseOrder(ctx context.Context, poID int64, actorID int64) error
}

// Handler manages procurement endpoints.
type Handler struct {
	logger  *slog.Logger
	service procurementService
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service procurementService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summaries/{summaryID}/orders", h.listOrders)
	r.Get("/pos/{id}", h.getPO)
	r.Get("/pos/{id}/approvals", h.approvals)
	r.Group(func(r chi.Router) {
		r.Use(requireActor)
		r.Post("/summaries/{summaryID}/requisitions", h.createPRs)
		r.Post("/summaries/{summaryID}/orders", h.createPOs)
		r.Post("/prs/{id}/submit", h.submitPR)
		r.Post("/pos/{id}/submit", h.submitPO)
		r.Post("/pos/{id}/approve", h.approvePO)
	})
}

type generateRequest struct {
	Note string `json:"note"`
}

func (h *Handler) createPRs(w http.ResponseWriter, r *http.Request) {
	input, ok := h.generateInput(w, r)
	if !ok {
		return
	}
	prs, err := h.service.CreateRequisitionsFromSummary(r.Context(), input)
	if err != nil {
		h.respondError(w, "create PRs", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, prs)
}

func (h *Handler) createPOs(w http.ResponseWriter, r *http.Request) {
	input, ok := h.generateInput(w, r)
	if !ok {
		return
	}
	pos, err := h.service.CreateOrdersFromSummary(r.Context(), input)
	if err != nil {
		h.respondError(w, "create POs", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pos)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "summaryID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Summary", "summary id must be a UUID")
		return
	}
	pos, err := h.service.OrdersForSummary(r.Context(), id)
	if err != nil {
		h.respondError(w, "list POs", err)
		return
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.PurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get PO", err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		h.respondError(w, "approval history", err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) submitPR(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit PR", h.service.SubmitPurchaseRequest)
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit PO", h.service.SubmitPurchaseOrder)
}

func (h *Handler) approvePO(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve PO", h.service.ApprovePurchaseOrder)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64, int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, op, err, slog.Int64("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) generateInput(w http.ResponseWriter, r *http.Request) (GenerateInput, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "summaryID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Summary", "summary id must be a UUID")
		return GenerateInput{}, false
	}
	var req generateRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return GenerateInput{}, false
		}
	}
	return GenerateInput{
		SummaryID:      id,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		Note:           req.Note,
	}, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error, attrs ...any) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrSummaryTampered):
		httpx.Problem(w, http.StatusConflict, "Summary Tampered", err.Error())
	case errors.Is(err, ErrInProgress):
		httpx.Problem(w, http.StatusConflict, "In Progress", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, append(attrs, slog.Any("error", err))...)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.ActorFromContext(r.Context()) > 0 {
			next.ServeHTTP(w, r)
			return
		}
		id, err := shared.ActorFromRequest(r)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), id)))
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
