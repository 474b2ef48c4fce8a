package rfqhttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq/export"
	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	auditTrailLimit = 200
)

type comparisonService interface {
	Open(ctx context.Context, rfqID int64) (rfq.Comparison, error)
	Select(ctx context.Context, actorID, rfqID, lineItemID, supplierID, quoteID int64) (rfq.Comparison, error)
	Reset(ctx context.Context, rfqID int64) (rfq.Comparison, error)
	Save(ctx context.Context, actorID, rfqID int64) (rfq.Summary, error)
	Export(ctx context.Context, actorID, rfqID int64, format string) (rfq.Summary, error)
	Summaries(ctx context.Context, rfqID int64) ([]rfq.Summary, error)
	Summary(ctx context.Context, id uuid.UUID) (rfq.Summary, error)
}

// AuditTrail reads recorded comparison events back.
type AuditTrail interface {
	Trail(ctx context.Context, entity, entityID string, limit int) ([]shared.AuditLog, error)
}

// Handler serves the comparison API.
type Handler struct {
	logger    *slog.Logger
	service   comparisonService
	audit     AuditTrail
	validator *validator.Validate
}

// NewHandler builds Handler instance. audit may be nil.
func NewHandler(logger *slog.Logger, service comparisonService, audit AuditTrail) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: audit, validator: validator.New()}
}

// MountRoutes registers comparison routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/rfqs/{id}", func(r chi.Router) {
		r.Get("/comparison", h.open)
		r.Put("/comparison/lines/{lineID}", h.selectLine)
		r.Post("/comparison/reset", h.reset)
		r.Post("/comparison/save", h.save)
		r.Get("/comparison/export.csv", h.exportCSV)
		r.Get("/comparison/export.xlsx", h.exportXLSX)
		r.Get("/comparison/audit", h.trail)
		r.Get("/summaries", h.listSummaries)
	})
	r.Get("/summaries/{summaryID}", h.getSummary)
}

type selectRequest struct {
	SupplierID int64 `json:"supplier_id" validate:"required,gt=0"`
	QuoteID    int64 `json:"quote_id" validate:"required,gt=0"`
}

type summaryList struct {
	Items      []rfq.Summary     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	rfqID, ok := h.rfqID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Open(r.Context(), rfqID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) selectLine(w http.ResponseWriter, r *http.Request) {
	rfqID, ok := h.rfqID(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Line", "line id must be a positive integer")
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		httpx.ProblemWith(w, http.StatusBadRequest, "Validation Failed", "supplier_id and quote_id are required", map[string]any{"fields": fields})
		return
	}
	view, err := h.service.Select(r.Context(), actorID, rfqID, lineID, req.SupplierID, req.QuoteID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	rfqID, ok := h.rfqID(w, r)
	if !ok {
		return
	}
	if _, ok := h.actor(w, r); !ok {
		return
	}
	view, err := h.service.Reset(r.Context(), rfqID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	rfqID, ok := h.rfqID(w, r)
	if !ok {
		return
	}
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Save(r.Context(), actorID, rfqID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/summaries/"+summary.ID.String())
	httpx.JSON(w, http.StatusCreated, summary)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", contentTypeCSV, export.WriteCSV)
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", contentTypeXLSX, export.WriteXLSX)
}

// export renders into a buffer first so a failed render still yields a
// problem response instead of a truncated download.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, format, contentType string, write func(io.Writer, rfq.Summary) error) {
	rfqID, ok := h.rfqID(w, r)
	if !ok {
		return
	}
	actorID := shared.ActorFromContext(r.Context())
	if actorID == 0 {
		actorID, _ = shared.ActorFromRequest(r)
	}
	summary, err := h.service.Export(r.Context(), actorID, rfqID, format)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, summary); err != nil {
		h.logger.Error("render export", slog.String("format", format), slog.Int64("rfq_id", rfqID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", "")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(summary.RFQNumber, format)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) trail(w http.ResponseWriter, r *http.Request) {
	rfqID, ok := h.rfqID(w, r)
	if !ok {
		return
	}
	if h.audit == nil {
		httpx.JSON(w, http.StatusOK, []shared.AuditLog{})
		return
	}
	logs, err := h.audit.Trail(r.Context(), "rfq_comparison", strconv.FormatInt(rfqID, 10), auditTrailLimit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if logs == nil {
		logs = []shared.AuditLog{}
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	rfqID, ok := h.rfqID(w, r)
	if !ok {
		return
	}
	items, err := h.service.Summaries(r.Context(), rfqID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page := shared.PaginationFromRequest(r, len(items))
	start, end := page.Bounds()
	httpx.JSON(w, http.StatusOK, summaryList{Items: append([]rfq.Summary{}, items[start:end]...), Pagination: page})
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "summaryID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Summary", "summary id must be a UUID")
		return
	}
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) rfqID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid RFQ", "rfq id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if id := shared.ActorFromContext(r.Context()); id > 0 {
		return id, true
	}
	id, err := shared.ActorFromRequest(r)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
		return 0, false
	}
	return id, true
}
