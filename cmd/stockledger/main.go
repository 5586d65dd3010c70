package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/assefaz/stockledger/internal/access"
	"github.com/assefaz/stockledger/internal/app"
	"github.com/assefaz/stockledger/internal/audit"
	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/observability"
	"github.com/assefaz/stockledger/internal/platform/cache"
	"github.com/assefaz/stockledger/internal/platform/db"
	"github.com/assefaz/stockledger/internal/reports"
	"github.com/assefaz/stockledger/internal/shared"
	"github.com/assefaz/stockledger/jobs"
)

const sessionCookie = "stockledger_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := ledger.ParseStockPolicy(cfg.StockNegativePolicy)
	if err != nil {
		return err
	}
	tz := cfg.Location()

	sessions := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	accessService, err := access.NewService(cfg.AccessPasscodeHash)
	if err != nil {
		return err
	}

	dashboardCache := reports.NewCache(redisClient, cfg.DashboardCacheTTL)
	catalogService := catalog.NewService(catalog.NewRepository(pool), catalog.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
		Notifier:          dashboardCache,
		Logger:            logger,
	})
	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(
		ledgerRepo,
		shared.NewAuditLogger(pool),
		shared.NewIdempotencyStore(pool),
		dashboardCache,
		ledger.ServiceConfig{Policy: policy, TimeZone: tz, Logger: logger},
	)

	gotenberg := reports.NewGotenbergClient(cfg.GotenbergURL, 30*time.Second)
	if err := gotenberg.Ping(ctx); err != nil {
		logger.Warn("gotenberg unreachable, pdf export will fail until it is up", slog.Any("error", err))
	}
	reportsService := reports.NewService(ledgerRepo, catalogService, dashboardCache, gotenberg, reports.Config{
		Organization: cfg.ReportOrgName,
		TimeZone:     tz,
		Logger:       logger,
	})

	inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
	defer func() {
		_ = inspector.Close()
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Access:         accessService,
		AccessHandler:  access.NewHandler(logger, accessService, sessions, csrf),
		CatalogHandler: catalog.NewHandler(logger, catalogService),
		LedgerHandler:  ledger.NewHandler(logger, ledgerService, catalogService),
		ReportsHandler: reports.NewHandler(logger, reportsService),
		AuditHandler:   audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        observability.NewMetrics(),
		HealthChecks: map[string]app.HealthCheck{
			"postgres": pool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			slog.String("addr", cfg.AppAddr),
			slog.String("policy", string(policy)),
			slog.String("timezone", tz.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	return server.Shutdown(shutdownCtx)
}
