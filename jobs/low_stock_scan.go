package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/assefaz/stockledger/internal/catalog"
	jobmetrics "github.com/assefaz/stockledger/internal/jobs"
	"github.com/assefaz/stockledger/internal/shared"
)

// ProductLister is the catalog surface the low-stock scan needs.
type ProductLister interface {
	ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, error)
	LowStockThreshold() int
}

// LowStockJob publishes the products at or below the threshold.
type LowStockJob struct {
	Catalog ProductLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockJob wires dependencies for the low-stock handler.
func NewLowStockJob(lister ProductLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Catalog: lister, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Catalog == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	threshold := payload.Threshold
	if threshold <= 0 {
		threshold = j.Catalog.LowStockThreshold()
	}

	tracker := j.metrics().Track(TaskLowStockScan)
	defer func() {
		err = tracker.End(err)
	}()

	for _, location := range shared.Locations() {
		low, err := j.Scan(ctx, location, threshold)
		if err != nil {
			return err
		}
		j.metrics().SetLowStock(string(location), len(low))
	}
	return nil
}

// Scan returns the active products of location with stock <= threshold.
func (j *LowStockJob) Scan(ctx context.Context, location shared.Location, threshold int) ([]catalog.Product, error) {
	products, err := j.Catalog.ListProducts(ctx, catalog.ProductFilter{Location: location})
	if err != nil {
		return nil, err
	}
	logger := j.logger().With(slog.String("location", string(location)))
	low := make([]catalog.Product, 0)
	for _, p := range products {
		if p.Archived() || !p.LowStock(threshold) {
			continue
		}
		low = append(low, p)
		logger.Info("low stock", slog.String("product", p.Name), slog.Int("stock", p.Stock))
	}
	logger.Info("low stock scan completed", slog.Int("threshold", threshold), slog.Int("products", len(low)))
	return low, nil
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLowStockScan))
	}
	return slog.Default().With(slog.String("job", TaskLowStockScan))
}

func (j *LowStockJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
