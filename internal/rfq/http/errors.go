package rfqhttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-sourcing/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-sourcing/internal/rfq"
	"github.com/odyssey-erp/odyssey-sourcing/internal/shared"
)

// respondError maps comparison errors onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *rfq.ValidationError
		incomplete *rfq.IncompleteSelectionError
		integrity  *rfq.DataIntegrityError
		sink       *rfq.AuditSinkError
	)
	switch {
	case errors.As(err, &validation):
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Invalid Selection", validation.Reason, map[string]any{
			"line_item_id": validation.LineItemID,
			"supplier_id":  validation.SupplierID,
			"quote_id":     validation.QuoteID,
		})
	case errors.As(err, &incomplete):
		httpx.ProblemWith(w, http.StatusConflict, "Selection Incomplete", "every quoted line needs a selected supplier", map[string]any{
			"missing_line_item_ids": incomplete.LineItemIDs,
		})
	case errors.As(err, &integrity):
		httpx.ProblemWith(w, http.StatusConflict, "Data Integrity Violation", "rfq data cannot be compared", map[string]any{
			"line_item_ids": integrity.LineItemIDs(),
			"problems":      integrity.Problems,
		})
	case errors.As(err, &sink):
		h.logger.Warn("audit sink failure", slog.String("event", string(sink.EventType)), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Audit Sink Unavailable", "summary could not be recorded, selections are kept")
	case errors.Is(err, rfq.ErrNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("comparison request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
