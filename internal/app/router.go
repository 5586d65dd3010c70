package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/assefaz/stockledger/internal/access"
	"github.com/assefaz/stockledger/internal/audit"
	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/observability"
	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/reports"
	"github.com/assefaz/stockledger/internal/shared"
	"github.com/assefaz/stockledger/jobs"
)

// HealthCheck probes one dependency for /healthz.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Access         *access.Service
	AccessHandler  *access.Handler
	CatalogHandler *catalog.Handler
	LedgerHandler  *ledger.Handler
	ReportsHandler *reports.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	HealthChecks   map[string]HealthCheck
}

// NewRouter constructs the chi.Router serving the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	mwConfig := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}
	for _, mw := range MiddlewareStack(mwConfig) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.HealthChecks, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		for _, mw := range SessionStack(mwConfig) {
			r.Use(mw)
		}
		if params.AccessHandler != nil {
			params.AccessHandler.MountRoutes(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(access.RequireCapability(params.Access))
			if params.CatalogHandler != nil {
				params.CatalogHandler.MountRoutes(r)
			}
			if params.LedgerHandler != nil {
				params.LedgerHandler.MountRoutes(r)
			}
			if params.ReportsHandler != nil {
				params.ReportsHandler.MountRoutes(r)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})
	return r
}

func healthz(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				result[name] = "down"
				result["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "up"
		}
		httpx.JSON(w, status, result)
	}
}
