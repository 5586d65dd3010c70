package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/assefaz/stockledger/internal/jobs"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const integrityLockTTL = 5 * time.Minute

// DriftSource computes the products whose stored stock differs from
// initial + inflows - outflows + adjustments.
type DriftSource interface {
	StockDrift(ctx context.Context, location shared.Location) ([]ledger.Drift, error)
}

// IntegrityJob reports ledger drift per location. Drift is expected after a
// clamped outflow, so it is logged and counted rather than repaired.
type IntegrityJob struct {
	Source  DriftSource
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob wires dependencies for the integrity handler.
func NewIntegrityJob(source DriftSource, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Source: source, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	locations := shared.Locations()
	if payload.Location != "" {
		if !payload.Location.Valid() {
			return fmt.Errorf("ledger integrity: %w: %w", shared.ErrUnknownLocation, asynq.SkipRetry)
		}
		locations = []shared.Location{payload.Location}
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	for _, location := range locations {
		if _, scanErr := j.Scan(ctx, location); scanErr != nil {
			if errors.Is(scanErr, shared.ErrLockHeld) {
				j.logger().Info("integrity scan already running", slog.String("location", string(location)))
				continue
			}
			return scanErr
		}
	}
	return nil
}

// Scan checks one location under its distributed lock and returns the drift found.
func (j *IntegrityJob) Scan(ctx context.Context, location shared.Location) ([]ledger.Drift, error) {
	logger := j.logger().With(slog.String("location", string(location)))
	var drift []ledger.Drift
	err := shared.WithLock(ctx, j.Locker, shared.IntegrityLockKey(string(location)), integrityLockTTL, func(ctx context.Context) error {
		start := time.Now()
		found, err := j.Source.StockDrift(ctx, location)
		if err != nil {
			return fmt.Errorf("ledger integrity %s: %w", location, err)
		}
		drift = found
		for _, d := range found {
			logger.Warn("stock drift",
				slog.String("product_id", d.ProductID),
				slog.String("product", d.Name),
				slog.Int("stock", d.Stock),
				slog.Int("expected", d.Expected),
				slog.Int("difference", d.Difference),
			)
		}
		j.metrics().AddDrift(string(location), len(found))
		logger.Info("integrity scan completed", slog.Int("drift", len(found)), slog.Duration("duration", time.Since(start)))
		return nil
	})
	return drift, err
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
