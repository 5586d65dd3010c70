package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// LabelSource resolves the ids on ledger rows into display names.
type LabelSource interface {
	Directory(ctx context.Context, location shared.Location) (catalog.Directory, error)
}

// Handler exposes ledger batches over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	labels  LabelSource
}

// NewHandler constructs Handler. Without labels, history rows are labelled
// with their ids.
func NewHandler(logger *slog.Logger, service *Service, labels LabelSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, labels: labels}
}

// MountRoutes registers ledger routes on an already authorised router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/outflows", h.listOutflows)
	r.Post("/outflows", h.recordOutflow)
	r.Delete("/outflows/{batchID}", h.deleteOutflow)

	r.Get("/inflows", h.listInflows)
	r.Post("/inflows", h.recordInflow)
	r.Delete("/inflows/{batchID}", h.deleteInflow)

	r.Put("/products/{id}/stock", h.adjustStock)
}

type outflowRowView struct {
	OutflowEntry
	Product  string `json:"product"`
	Sector   string `json:"sector"`
	Operator string `json:"operator"`
}

type inflowRowView struct {
	InflowEntry
	Product  string `json:"product"`
	Operator string `json:"operator"`
}

type batchView[V any] struct {
	Key           string    `json:"key"`
	At            time.Time `json:"at"`
	Rows          []V       `json:"rows"`
	TotalQuantity int       `json:"total_quantity"`
}

func views[R Row, V any](batches []Batch[R], label func(R) V) []batchView[V] {
	out := make([]batchView[V], 0, len(batches))
	for _, b := range batches {
		rows := make([]V, 0, len(b.Rows))
		for _, row := range b.Rows {
			rows = append(rows, label(row))
		}
		out = append(out, batchView[V]{Key: b.Key, At: b.At, Rows: rows, TotalQuantity: b.TotalQuantity()})
	}
	return out
}

// directory falls back to an empty one, which labels every row by id, when
// the catalog cannot be read.
func (h *Handler) directory(ctx context.Context, loc shared.Location) catalog.Directory {
	if h.labels == nil {
		return catalog.Directory{}
	}
	dir, err := h.labels.Directory(ctx, loc)
	if err != nil {
		h.logger.Warn("history labels", slog.String("location", string(loc)), slog.Any("error", err))
		return catalog.Directory{}
	}
	return dir
}

func (h *Handler) listOutflows(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	batches, err := h.service.OutflowHistory(r.Context(), loc)
	if err != nil {
		h.fail(w, err, "list outflows")
		return
	}
	dir := h.directory(r.Context(), loc)
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": views(batches, func(e OutflowEntry) outflowRowView {
		return outflowRowView{
			OutflowEntry: e,
			Product:      dir.ProductName(e.ProductID),
			Sector:       dir.SectorName(e.SectorID),
			Operator:     dir.OperatorName(e.OperatorID),
		}
	})})
}

func (h *Handler) listInflows(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	batches, err := h.service.InflowHistory(r.Context(), loc)
	if err != nil {
		h.fail(w, err, "list inflows")
		return
	}
	dir := h.directory(r.Context(), loc)
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": views(batches, func(e InflowEntry) inflowRowView {
		return inflowRowView{
			InflowEntry: e,
			Product:     dir.ProductName(e.ProductID),
			Operator:    dir.OperatorName(e.OperatorID),
		}
	})})
}

func (h *Handler) recordOutflow(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	var input OutflowBatchInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Location = loc
	result, err := h.service.RecordOutflowBatch(r.Context(), input)
	if err != nil {
		h.fail(w, err, "record outflow batch")
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) recordInflow(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	var input InflowBatchInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Location = loc
	result, err := h.service.RecordInflowBatch(r.Context(), input)
	if err != nil {
		h.fail(w, err, "record inflow batch")
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) deleteOutflow(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	result, err := h.service.DeleteOutflowBatch(r.Context(), loc, chi.URLParam(r, "batchID"), actor(r))
	if err != nil {
		h.fail(w, err, "delete outflow batch")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deleteInflow(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	result, err := h.service.DeleteInflowBatch(r.Context(), loc, chi.URLParam(r, "batchID"), actor(r))
	if err != nil {
		h.fail(w, err, "delete inflow batch")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	var input AdjustInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Location = loc
	input.ProductID = chi.URLParam(r, "id")
	if strings.TrimSpace(input.Actor) == "" {
		input.Actor = actor(r)
	}
	change, err := h.service.ManualAdjust(r.Context(), input)
	if err != nil {
		h.fail(w, err, "adjust stock")
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

// actor names whoever asked for a destructive change: the optional actor
// query parameter, or the client address.
func actor(r *http.Request) string {
	if name := strings.TrimSpace(r.URL.Query().Get("actor")); name != "" {
		return name
	}
	return r.RemoteAddr
}

func (h *Handler) location(w http.ResponseWriter, r *http.Request) (shared.Location, bool) {
	capability, ok := shared.CapabilityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return "", false
	}
	return capability.Location, true
}

func (h *Handler) fail(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrValidation):
	case errors.Is(err, httpx.ErrConflict), errors.Is(err, httpx.ErrDuplicate):
		h.logger.Info(op, slog.Any("error", err))
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
