package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/assefaz/stockledger/internal/jobs"
)

// KeyCleaner purges idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob removes stale batch idempotency keys.
type CleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCleanupJob wires dependencies for the cleanup handler.
func NewCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	return &CleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = defaultCleanupRetention
	}

	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	logger := slog.Default()
	if j.Logger != nil {
		logger = j.Logger
	}
	logger.Info("idempotency cleanup completed",
		slog.String("job", TaskIdempotencyCleanup),
		slog.Duration("retention", retention),
		slog.Int64("removed", removed),
	)
	return nil
}

func (j *CleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
