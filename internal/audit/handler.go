package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// Handler serves the audit timeline of the active location.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers GET /audit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	capability, ok := shared.CapabilityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	filters := TimelineFilters{
		Location: capability.Location,
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		Page:     atoi(q.Get("page")),
		PageSize: atoi(q.Get("page_size")),
	}
	var err error
	if filters.From, err = parseTime(q.Get("from")); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "from must be RFC3339")
		return
	}
	if filters.To, err = parseTime(q.Get("to")); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "to must be RFC3339")
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func atoi(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
