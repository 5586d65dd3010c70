package reports

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// Handler exposes dashboards and monthly exports.
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

// MountRoutes registers report routes on an already authorised router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Get("/reports/monthly", h.monthly)
	r.Get("/reports/monthly.csv", h.monthlyCSV)
	r.Get("/reports/monthly.xlsx", h.monthlyXLSX)
	r.Get("/reports/monthly.pdf", h.monthlyPDF)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	loc, ok := location(w, r)
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(r.Context(), loc)
	if err != nil {
		h.logger.Error("build dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) monthly(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) monthlyCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	body, err := WriteCSV(report)
	if err != nil {
		h.logger.Error("monthly csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Attachment(w, "text/csv; charset=utf-8", report.Filename("csv"), body)
}

func (h *Handler) monthlyXLSX(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	body, err := WriteXLSX(report)
	if err != nil {
		h.logger.Error("monthly xlsx", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", report.Filename("xlsx"), body)
}

func (h *Handler) monthlyPDF(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	body, err := h.service.MonthlyPDF(r.Context(), report)
	if err != nil {
		h.logger.Error("monthly pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "PDF Unavailable", "pdf rendering failed")
		return
	}
	httpx.Attachment(w, "application/pdf", report.Filename("pdf"), body)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (MonthlyReport, bool) {
	loc, ok := location(w, r)
	if !ok {
		return MonthlyReport{}, false
	}
	period := h.service.CurrentPeriod()
	q := r.URL.Query()
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, ErrInvalidPeriod)
			return MonthlyReport{}, false
		}
		period.Year = year
	}
	if raw := q.Get("month"); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, ErrInvalidPeriod)
			return MonthlyReport{}, false
		}
		period.Month = month
	}
	report, err := h.service.Monthly(r.Context(), loc, period)
	if err != nil {
		h.logger.Warn("monthly report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return MonthlyReport{}, false
	}
	return report, true
}

func location(w http.ResponseWriter, r *http.Request) (shared.Location, bool) {
	capability, ok := shared.CapabilityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return "", false
	}
	return capability.Location, true
}
