package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/assefaz/stockledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskLedgerIntegrity     = "ledger:integrity"
	TaskLowStockScan        = "catalog:low_stock"
	TaskDashboardWarmup     = "reports:dashboard_warmup"
	TaskIdempotencyCleanup  = "maintenance:idempotency_cleanup"
	defaultCleanupRetention = 30 * 24 * time.Hour
)

// ErrUnknownTask is returned by NewTaskByName for names outside TaskNames.
var ErrUnknownTask = errors.New("jobs: unknown task")

// TaskNames lists every task type the worker handles.
func TaskNames() []string {
	return []string{TaskLedgerIntegrity, TaskLowStockScan, TaskDashboardWarmup, TaskIdempotencyCleanup}
}

// IntegrityPayload scopes an integrity scan. An empty location scans both.
type IntegrityPayload struct {
	Location shared.Location `json:"location,omitempty"`
}

// LowStockPayload overrides the configured threshold when positive.
type LowStockPayload struct {
	Threshold int `json:"threshold,omitempty"`
}

// CleanupPayload sets how long idempotency keys are retained.
type CleanupPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// NewIntegrityTask builds a ledger integrity task.
func NewIntegrityTask(location shared.Location) (*asynq.Task, error) {
	if location != "" && !location.Valid() {
		return nil, shared.ErrUnknownLocation
	}
	return newTask(TaskLedgerIntegrity, IntegrityPayload{Location: location})
}

// NewLowStockTask builds a low-stock scan task.
func NewLowStockTask(threshold int) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, LowStockPayload{Threshold: threshold})
}

// NewDashboardWarmupTask builds a dashboard warmup task.
func NewDashboardWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDashboardWarmup, nil)
}

// NewCleanupTask builds an idempotency cleanup task.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{Retention: retention})
}

// NewTaskByName builds a task with default arguments, used by the CLI.
func NewTaskByName(name string, location shared.Location) (*asynq.Task, error) {
	switch name {
	case TaskLedgerIntegrity:
		return NewIntegrityTask(location)
	case TaskLowStockScan:
		return NewLowStockTask(0)
	case TaskDashboardWarmup:
		return NewDashboardWarmupTask(), nil
	case TaskIdempotencyCleanup:
		return NewCleanupTask(0)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
}

// DefaultSchedule is the cron table installed by the worker.
func DefaultSchedule() ([]CronRegistration, error) {
	integrity, err := NewIntegrityTask("")
	if err != nil {
		return nil, err
	}
	lowStock, err := NewLowStockTask(0)
	if err != nil {
		return nil, err
	}
	cleanup, err := NewCleanupTask(0)
	if err != nil {
		return nil, err
	}
	retry := []asynq.Option{asynq.MaxRetry(3)}
	return []CronRegistration{
		{Spec: "0 2 * * *", Task: integrity, Options: retry},
		{Spec: "0 7 * * *", Task: lowStock, Options: retry},
		{Spec: "*/30 * * * *", Task: NewDashboardWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(1), asynq.Timeout(2 * time.Minute)}},
		{Spec: "30 3 * * *", Task: cleanup, Options: retry},
	}, nil
}

func newTask(name string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, data), nil
}

func decode(t *asynq.Task, v any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
