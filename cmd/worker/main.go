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

	"github.com/assefaz/stockledger/internal/app"
	"github.com/assefaz/stockledger/internal/catalog"
	jobmetrics "github.com/assefaz/stockledger/internal/jobs"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/observability"
	"github.com/assefaz/stockledger/internal/platform/cache"
	"github.com/assefaz/stockledger/internal/platform/db"
	"github.com/assefaz/stockledger/internal/reports"
	"github.com/assefaz/stockledger/internal/shared"
	"github.com/assefaz/stockledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
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
	locker := cache.NewLocker(redisClient)

	metrics := observability.NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())

	catalogService := catalog.NewService(catalog.NewRepository(pool), catalog.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
	})
	ledgerRepo := ledger.NewRepository(pool)
	reportsService := reports.NewService(
		ledgerRepo,
		catalogService,
		reports.NewCache(redisClient, cfg.DashboardCacheTTL),
		nil,
		reports.Config{Organization: cfg.ReportOrgName, TimeZone: cfg.Location(), Logger: logger},
	)

	integrity := jobs.NewIntegrityJob(ledgerRepo, locker, logger, jm)
	lowStock := jobs.NewLowStockJob(catalogService, logger, jm)
	warmup := jobs.NewDashboardWarmupJob(reportsService, locker, logger, jm)
	cleanup := jobs.NewCleanupJob(shared.NewIdempotencyStore(pool), logger, jm)

	schedule, err := jobs.DefaultSchedule()
	if err != nil {
		return err
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cache.QueueOpt(cfg.RedisAddr),
		Logger:    logger,
		TimeZone:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrity.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStock.Handle},
			{Type: jobs.TaskDashboardWarmup, Handler: warmup.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanup.Handle},
		},
		Cron: schedule,
	})
	if err != nil {
		return err
	}

	// The worker has no router; it only serves its own metrics.
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	return worker.Run(ctx)
}
