package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/assefaz/stockledger/internal/shared"
)

// MaxStock bounds quantities and stock levels to the INTEGER columns.
const MaxStock = math.MaxInt32

// maxUnitPrice is the first value NUMERIC(12,2) cannot hold.
var maxUnitPrice = decimal.New(1, 10)

// StockStore is the part of a transaction the reconciler needs. LockProduct
// must hold the row until commit and return ErrProductMissing when it does not
// exist.
type StockStore interface {
	LockProduct(ctx context.Context, productID string) (StockLevel, error)
	UpdateProductStock(ctx context.Context, productID string, stock int) error
}

// Reconciler applies and reverses ledger movements on product stock.
type Reconciler struct {
	policy StockPolicy
}

// NewReconciler builds a Reconciler; an empty policy means clamp.
func NewReconciler(policy StockPolicy) *Reconciler {
	if policy == "" {
		policy = PolicyClamp
	}
	return &Reconciler{policy: policy}
}

// Policy reports the negative stock policy in force.
func (r *Reconciler) Policy() StockPolicy { return r.policy }

// ValidateOutflowItems checks lines before anything touches the store.
func ValidateOutflowItems(items []OutflowItem) error {
	if len(items) == 0 {
		return ErrEmptyBatch
	}
	for i, item := range items {
		if item.ProductID == "" {
			return fmt.Errorf("line %d: %w", i+1, ErrUnknownProduct)
		}
		if item.Quantity <= 0 || item.Quantity > MaxStock {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
	}
	return nil
}

// ValidateInflowItems checks lines before anything touches the store.
func ValidateInflowItems(items []InflowItem) error {
	if len(items) == 0 {
		return ErrEmptyBatch
	}
	for i, item := range items {
		if item.ProductID == "" {
			return fmt.Errorf("line %d: %w", i+1, ErrUnknownProduct)
		}
		if item.Quantity <= 0 || item.Quantity > MaxStock {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
		if item.UnitPrice.IsNegative() || item.UnitPrice.GreaterThanOrEqual(maxUnitPrice) ||
			!item.UnitPrice.Equal(item.UnitPrice.Truncate(2)) {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidUnitPrice)
		}
	}
	return nil
}

// ApplyOutflowBatch subtracts each line from its product.
func (r *Reconciler) ApplyOutflowBatch(ctx context.Context, store StockStore, location shared.Location, items []OutflowItem) ([]StockChange, error) {
	if err := ValidateOutflowItems(items); err != nil {
		return nil, err
	}
	changes := make([]StockChange, 0, len(items))
	for i, item := range items {
		level, err := r.lockForRecord(ctx, store, location, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		change, err := r.move(ctx, store, level, -item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// ApplyInflowBatch adds each line to its product.
func (r *Reconciler) ApplyInflowBatch(ctx context.Context, store StockStore, location shared.Location, items []InflowItem) ([]StockChange, error) {
	if err := ValidateInflowItems(items); err != nil {
		return nil, err
	}
	changes := make([]StockChange, 0, len(items))
	for i, item := range items {
		level, err := r.lockForRecord(ctx, store, location, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		change, err := r.move(ctx, store, level, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// ReverseOutflowBatch returns withdrawn quantities to stock. Rows whose product
// no longer exists are skipped and reported as such.
func (r *Reconciler) ReverseOutflowBatch(ctx context.Context, store StockStore, rows []OutflowEntry) ([]StockChange, error) {
	changes := make([]StockChange, 0, len(rows))
	for _, row := range rows {
		change, err := r.reverse(ctx, store, row.ProductID, row.Quantity)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", row.ID, err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// ReverseInflowBatch takes received quantities back out of stock.
func (r *Reconciler) ReverseInflowBatch(ctx context.Context, store StockStore, rows []InflowEntry) ([]StockChange, error) {
	changes := make([]StockChange, 0, len(rows))
	for _, row := range rows {
		change, err := r.reverse(ctx, store, row.ProductID, -row.Quantity)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", row.ID, err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// ManualAdjust overwrites the stock of one product.
func (r *Reconciler) ManualAdjust(ctx context.Context, store StockStore, location shared.Location, productID string, stock int) (StockChange, error) {
	if stock < 0 || stock > MaxStock {
		return StockChange{}, ErrInvalidStock
	}
	level, err := store.LockProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductMissing) {
			return StockChange{}, ErrUnknownProduct
		}
		return StockChange{}, err
	}
	if level.Location != location {
		return StockChange{}, ErrUnknownProduct
	}
	if err := store.UpdateProductStock(ctx, productID, stock); err != nil {
		return StockChange{}, err
	}
	delta := stock - level.Stock
	return StockChange{ProductID: productID, Before: level.Stock, After: stock, Requested: delta, Delta: delta}, nil
}

func (r *Reconciler) lockForRecord(ctx context.Context, store StockStore, location shared.Location, productID string) (StockLevel, error) {
	level, err := store.LockProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductMissing) {
			return StockLevel{}, ErrUnknownProduct
		}
		return StockLevel{}, err
	}
	if level.Archived || level.Location != location {
		return StockLevel{}, ErrUnknownProduct
	}
	return level, nil
}

func (r *Reconciler) reverse(ctx context.Context, store StockStore, productID string, delta int) (StockChange, error) {
	level, err := store.LockProduct(ctx, productID)
	if errors.Is(err, ErrProductMissing) {
		return StockChange{ProductID: productID, Skipped: true}, nil
	}
	if err != nil {
		return StockChange{}, err
	}
	return r.move(ctx, store, level, delta)
}

func (r *Reconciler) move(ctx context.Context, store StockStore, level StockLevel, delta int) (StockChange, error) {
	change := StockChange{ProductID: level.ProductID, Before: level.Stock, Requested: delta}
	if delta > 0 && level.Stock > MaxStock-delta {
		return StockChange{}, fmt.Errorf("product %s has %d, adding %d: %w", level.ProductID, level.Stock, delta, ErrStockOverflow)
	}
	next := level.Stock + delta
	if next < 0 {
		if r.policy == PolicyReject {
			return StockChange{}, fmt.Errorf("product %s has %d, needs %d: %w", level.ProductID, level.Stock, -delta, ErrNegativeStock)
		}
		next = 0
		change.Clamped = true
	}
	change.After = next
	change.Delta = next - level.Stock
	if err := store.UpdateProductStock(ctx, level.ProductID, next); err != nil {
		return StockChange{}, err
	}
	return change, nil
}
