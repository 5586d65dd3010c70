package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/assefaz/stockledger/internal/shared"
)

// RepositoryPort abstracts ledger persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOutflows(ctx context.Context, location shared.Location) ([]OutflowEntry, error)
	ListInflows(ctx context.Context, location shared.Location) ([]InflowEntry, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims client-supplied batch ids.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// ChangeNotifier is told after every committed stock change.
type ChangeNotifier interface {
	Bump(ctx context.Context) error
}

const (
	moduleOutflow = "ledger.outflow"
	moduleInflow  = "ledger.inflow"
)

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Policy   StockPolicy
	TimeZone *time.Location
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service records and removes ledger batches.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	notifier    ChangeNotifier
	reconciler  *Reconciler
	validate    *validator.Validate
	tz          *time.Location
	logger      *slog.Logger
	clock       func() time.Time
}

// NewService builds Service. audit, idem and notifier may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, notifier ChangeNotifier, cfg ServiceConfig) *Service {
	tz := cfg.TimeZone
	if tz == nil {
		tz = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		notifier:    notifier,
		reconciler:  NewReconciler(cfg.Policy),
		validate:    validator.New(),
		tz:          tz,
		logger:      logger,
		clock:       clock,
	}
}

// Policy reports the negative stock policy.
func (s *Service) Policy() StockPolicy { return s.reconciler.Policy() }

// TimeZone reports the zone ledger stamps are written in.
func (s *Service) TimeZone() *time.Location { return s.tz }

// RecordOutflowBatch withdraws every item and appends one row per item, all
// in one transaction.
func (s *Service) RecordOutflowBatch(ctx context.Context, input OutflowBatchInput) (BatchResult, error) {
	if !input.Location.Valid() {
		return BatchResult{}, shared.ErrUnknownLocation
	}
	if err := ValidateOutflowItems(input.Items); err != nil {
		return BatchResult{}, err
	}
	input.BatchID = strings.TrimSpace(input.BatchID)
	if err := s.check(input); err != nil {
		return BatchResult{}, err
	}

	batchID, release, err := s.claim(ctx, input.BatchID, OutflowBatchPrefix, moduleOutflow)
	if err != nil {
		return BatchResult{}, err
	}

	now := s.clock()
	date, clock := FormatStamp(now, s.tz)
	rows := make([]OutflowEntry, 0, len(input.Items))
	for i, item := range input.Items {
		rows = append(rows, OutflowEntry{
			ID:                  uuid.NewString(),
			BatchID:             batchID,
			LineNo:              i + 1,
			Date:                date,
			Time:                clock,
			ProductID:           item.ProductID,
			Quantity:            item.Quantity,
			OperatorID:          input.OperatorID,
			SectorID:            input.SectorID,
			SignatureWithdrawer: input.Signatures.Withdrawer,
			SignatureDeliverer:  input.Signatures.Deliverer,
			Location:            input.Location,
			CreatedAt:           now,
		})
	}

	var changes []StockChange
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.OutflowBatch(ctx, input.Location, batchID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%s: %w", batchID, ErrDuplicateBatch)
		}
		changes, err = s.reconciler.ApplyOutflowBatch(ctx, tx, input.Location, input.Items)
		if err != nil {
			return err
		}
		return tx.InsertOutflowBatch(ctx, rows)
	})
	if err != nil {
		release()
		return BatchResult{}, err
	}

	s.logClamped(batchID, changes)
	s.changed(ctx)
	return BatchResult{BatchID: batchID, Rows: len(rows), Changes: changes}, nil
}

// RecordInflowBatch receives every item and appends one row per item.
func (s *Service) RecordInflowBatch(ctx context.Context, input InflowBatchInput) (BatchResult, error) {
	if !input.Location.Valid() {
		return BatchResult{}, shared.ErrUnknownLocation
	}
	if err := ValidateInflowItems(input.Items); err != nil {
		return BatchResult{}, err
	}
	input.BatchID = strings.TrimSpace(input.BatchID)
	if err := s.check(input); err != nil {
		return BatchResult{}, err
	}

	batchID, release, err := s.claim(ctx, input.BatchID, InflowBatchPrefix, moduleInflow)
	if err != nil {
		return BatchResult{}, err
	}

	now := s.clock()
	date, clock := FormatStamp(now, s.tz)
	rows := make([]InflowEntry, 0, len(input.Items))
	for i, item := range input.Items {
		rows = append(rows, InflowEntry{
			ID:         uuid.NewString(),
			BatchID:    batchID,
			LineNo:     i + 1,
			Date:       date,
			Time:       clock,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			OperatorID: input.OperatorID,
			Signature:  input.Signature,
			Location:   input.Location,
			CreatedAt:  now,
		})
	}

	var changes []StockChange
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.InflowBatch(ctx, input.Location, batchID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%s: %w", batchID, ErrDuplicateBatch)
		}
		changes, err = s.reconciler.ApplyInflowBatch(ctx, tx, input.Location, input.Items)
		if err != nil {
			return err
		}
		return tx.InsertInflowBatch(ctx, rows)
	})
	if err != nil {
		release()
		return BatchResult{}, err
	}

	s.changed(ctx)
	return BatchResult{BatchID: batchID, Rows: len(rows), Changes: changes}, nil
}

// DeleteOutflowBatch gives the stock of a withdrawal back and removes its rows.
func (s *Service) DeleteOutflowBatch(ctx context.Context, location shared.Location, batchID, actor string) (BatchResult, error) {
	if !location.Valid() {
		return BatchResult{}, shared.ErrUnknownLocation
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return BatchResult{}, ErrBatchNotFound
	}
	var result BatchResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.OutflowBatch(ctx, location, batchID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrBatchNotFound
		}
		changes, err := s.reconciler.ReverseOutflowBatch(ctx, tx, rows)
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteByBatchOrID(ctx, TableOutflows, location, batchID)
		if err != nil {
			return err
		}
		result = BatchResult{BatchID: batchID, Rows: int(deleted), Changes: changes}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	s.afterDelete(ctx, TableOutflows, location, actor, result)
	return result, nil
}

// DeleteInflowBatch takes the stock of a receipt back out and removes its rows.
func (s *Service) DeleteInflowBatch(ctx context.Context, location shared.Location, batchID, actor string) (BatchResult, error) {
	if !location.Valid() {
		return BatchResult{}, shared.ErrUnknownLocation
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return BatchResult{}, ErrBatchNotFound
	}
	var result BatchResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.InflowBatch(ctx, location, batchID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrBatchNotFound
		}
		changes, err := s.reconciler.ReverseInflowBatch(ctx, tx, rows)
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteByBatchOrID(ctx, TableInflows, location, batchID)
		if err != nil {
			return err
		}
		result = BatchResult{BatchID: batchID, Rows: int(deleted), Changes: changes}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	s.afterDelete(ctx, TableInflows, location, actor, result)
	return result, nil
}

// ManualAdjust overrides the stock of a product and leaves an adjustment
// record instead of a ledger row.
func (s *Service) ManualAdjust(ctx context.Context, input AdjustInput) (StockChange, error) {
	if !input.Location.Valid() {
		return StockChange{}, shared.ErrUnknownLocation
	}
	if input.NewStock < 0 || input.NewStock > MaxStock {
		return StockChange{}, ErrInvalidStock
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if err := s.check(input); err != nil {
		return StockChange{}, err
	}
	now := s.clock()
	var change StockChange
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		change, err = s.reconciler.ManualAdjust(ctx, tx, input.Location, input.ProductID, input.NewStock)
		if err != nil {
			return err
		}
		return tx.InsertAdjustment(ctx, Adjustment{
			ProductID: input.ProductID,
			Location:  input.Location,
			Previous:  change.Before,
			New:       change.After,
			Reason:    input.Reason,
			Actor:     input.Actor,
			At:        now,
		})
	})
	if err != nil {
		return StockChange{}, err
	}
	s.record(ctx, shared.AuditLog{
		Actor:    input.Actor,
		Location: string(input.Location),
		Action:   "stock:adjust",
		Entity:   "product",
		EntityID: input.ProductID,
		Meta: map[string]any{
			"previous": change.Before,
			"new":      change.After,
			"reason":   input.Reason,
		},
		At: now,
	})
	s.changed(ctx)
	return change, nil
}

// OutflowHistory returns the withdrawals of a location grouped by batch.
func (s *Service) OutflowHistory(ctx context.Context, location shared.Location) ([]Batch[OutflowEntry], error) {
	if !location.Valid() {
		return nil, shared.ErrUnknownLocation
	}
	rows, err := s.repo.ListOutflows(ctx, location)
	if err != nil {
		return nil, err
	}
	return GroupByBatch(rows, s.tz), nil
}

// InflowHistory returns the receipts of a location grouped by batch.
func (s *Service) InflowHistory(ctx context.Context, location shared.Location) ([]Batch[InflowEntry], error) {
	if !location.Valid() {
		return nil, shared.ErrUnknownLocation
	}
	rows, err := s.repo.ListInflows(ctx, location)
	if err != nil {
		return nil, err
	}
	return GroupByBatch(rows, s.tz), nil
}

// claim returns the batch id to use and a func that forgets it again when the
// transaction fails. Generated ids need no claim.
func (s *Service) claim(ctx context.Context, supplied, prefix, module string) (string, func(), error) {
	if supplied == "" {
		return prefix + uuid.NewString(), func() {}, nil
	}
	if s.idempotency == nil {
		return supplied, func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, supplied, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return "", nil, fmt.Errorf("%s: %w", supplied, ErrDuplicateBatch)
		}
		return "", nil, err
	}
	return supplied, func() {
		if err := s.idempotency.Release(context.WithoutCancel(ctx), supplied, module); err != nil {
			s.logger.Error("release batch id", slog.String("batch_id", supplied), slog.Any("error", err))
		}
	}, nil
}

func (s *Service) afterDelete(ctx context.Context, table Table, location shared.Location, actor string, result BatchResult) {
	skipped := 0
	for _, change := range result.Changes {
		if change.Skipped {
			skipped++
			s.logger.Warn("reversal skipped missing product",
				slog.String("table", string(table)),
				slog.String("batch_id", result.BatchID),
				slog.String("product_id", change.ProductID))
		}
	}
	s.record(ctx, shared.AuditLog{
		Actor:    actor,
		Location: string(location),
		Action:   "batch:delete",
		Entity:   string(table),
		EntityID: result.BatchID,
		Meta: map[string]any{
			"rows":    result.Rows,
			"skipped": skipped,
		},
		At: s.clock(),
	})
	s.changed(ctx)
}

func (s *Service) logClamped(batchID string, changes []StockChange) {
	for _, change := range changes {
		if change.Clamped {
			s.logger.Info("stock clamped at zero",
				slog.String("batch_id", batchID),
				slog.String("product_id", change.ProductID),
				slog.Int("before", change.Before),
				slog.Int("requested", -change.Requested),
				slog.Int("applied", -change.Delta))
		}
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Error("audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) changed(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Bump(ctx); err != nil {
		s.logger.Warn("notify stock change", slog.Any("error", err))
	}
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: %w", strings.ToLower(verrs[0].Field()), ErrMissingSelection)
		}
		return fmt.Errorf("%v: %w", err, ErrMissingSelection)
	}
	return nil
}
