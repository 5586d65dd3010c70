package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/assefaz/stockledger/internal/jobs"
	"github.com/assefaz/stockledger/internal/shared"
)

const warmupLockTTL = 2 * time.Minute

// Warmer rebuilds cached dashboards.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// DashboardWarmupJob pre-populates the dashboard cache of both locations.
type DashboardWarmupJob struct {
	Reports Warmer
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(reports Warmer, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{Reports: reports, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDashboardWarmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskDashboardWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger()
	start := time.Now()
	err = shared.WithLock(ctx, j.Locker, shared.WarmupLockKey(), warmupLockTTL, func(ctx context.Context) error {
		scoped, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		return j.Reports.Warmup(scoped)
	})
	if errors.Is(err, shared.ErrLockHeld) {
		logger.Info("warmup already running")
		return nil
	}
	if err != nil {
		logger.Error("dashboard warmup", slog.Any("error", err))
		return err
	}
	logger.Info("dashboard warmup completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
