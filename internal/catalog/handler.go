package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// Handler exposes the catalog registers over JSON.
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

// MountRoutes registers catalog routes. Callers are expected to have checked
// the capability already.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/categories", h.listCategories)
	r.Get("/products/low-stock", h.listLowStock)
	r.Put("/products/{id}", h.updateProduct)
	r.Post("/products/{id}/archive", h.archiveProduct)
	r.Post("/products/{id}/restore", h.restoreProduct)

	r.Get("/sectors", h.listSectors)
	r.Post("/sectors", h.createSector)
	r.Post("/sectors/{id}/archive", h.archiveSector)

	r.Get("/operators", h.listOperators)
	r.Post("/operators", h.createOperator)
	r.Post("/operators/{id}/archive", h.archiveOperator)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	products, err := h.service.ListProducts(r.Context(), ProductFilter{
		Location:        loc,
		Search:          q.Get("search"),
		Category:        q.Get("category"),
		IncludeArchived: q.Get("archived") == "true",
	})
	if err != nil {
		h.fail(w, err, "list products")
		return
	}
	type item struct {
		Product
		LowStock bool `json:"low_stock"`
	}
	items := make([]item, 0, len(products))
	for _, p := range products {
		items = append(items, item{Product: p, LowStock: p.LowStock(h.service.LowStockThreshold())})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": items})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	var input ProductInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Location = loc
	product, err := h.service.RegisterProduct(r.Context(), input)
	if err != nil {
		h.fail(w, err, "register product")
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	var update ProductUpdate
	if err := httpx.DecodeJSON(w, r, &update); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), loc, chi.URLParam(r, "id"), update)
	if err != nil {
		h.fail(w, err, "update product")
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) archiveProduct(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	if err := h.service.ArchiveProduct(r.Context(), loc, chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "archive product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreProduct(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	if err := h.service.RestoreProduct(r.Context(), loc, chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "restore product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	categories, err := h.service.Categories(r.Context(), loc)
	if err != nil {
		h.fail(w, err, "list categories")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.location(w, r)
	if !ok {
		return
	}
	products, err := h.service.LowStock(r.Context(), loc)
	if err != nil {
		h.fail(w, err, "list low stock")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"threshold": h.service.LowStockThreshold(),
		"products":  products,
	})
}

func (h *Handler) listSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := h.service.ListSectors(r.Context(), r.URL.Query().Get("archived") == "true")
	if err != nil {
		h.fail(w, err, "list sectors")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sectors": sectors})
}

func (h *Handler) createSector(w http.ResponseWriter, r *http.Request) {
	var input SectorInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sector, err := h.service.RegisterSector(r.Context(), input)
	if err != nil {
		h.fail(w, err, "register sector")
		return
	}
	httpx.JSON(w, http.StatusCreated, sector)
}

func (h *Handler) archiveSector(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ArchiveSector(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "archive sector")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOperators(w http.ResponseWriter, r *http.Request) {
	operators, err := h.service.ListOperators(r.Context(), r.URL.Query().Get("archived") == "true")
	if err != nil {
		h.fail(w, err, "list operators")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"operators": operators})
}

func (h *Handler) createOperator(w http.ResponseWriter, r *http.Request) {
	var input OperatorInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	operator, err := h.service.RegisterOperator(r.Context(), input)
	if err != nil {
		h.fail(w, err, "register operator")
		return
	}
	httpx.JSON(w, http.StatusCreated, operator)
}

func (h *Handler) archiveOperator(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ArchiveOperator(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err, "archive operator")
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
