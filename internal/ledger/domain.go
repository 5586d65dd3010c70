package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// StockPolicy decides what happens when a movement would take stock below
// zero.
type StockPolicy string

const (
	// PolicyClamp floors stock at zero and lets the movement through.
	PolicyClamp StockPolicy = "clamp"
	// PolicyReject fails the whole batch with ErrNegativeStock.
	PolicyReject StockPolicy = "reject"
)

// ParseStockPolicy validates a policy name; empty means clamp.
func ParseStockPolicy(raw string) (StockPolicy, error) {
	switch StockPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyClamp:
		return PolicyClamp, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("ledger: unknown stock policy %q", raw)
}

// Table names a ledger table.
type Table string

const (
	// TableOutflows holds withdrawals.
	TableOutflows Table = "outflow_entries"
	// TableInflows holds receipts.
	TableInflows Table = "inflow_entries"
)

// Batch id prefixes for generated ids.
const (
	OutflowBatchPrefix = "OUT-"
	InflowBatchPrefix  = "ENT-"
)

// OutflowEntry is one withdrawn line.
type OutflowEntry struct {
	ID                  string          `json:"id"`
	BatchID             string          `json:"batch_id,omitempty"`
	LineNo              int             `json:"line_no"`
	Date                string          `json:"date"`
	Time                string          `json:"time"`
	ProductID           string          `json:"product_id"`
	Quantity            int             `json:"quantity"`
	OperatorID          string          `json:"operator_id"`
	SectorID            string          `json:"sector_id"`
	SignatureWithdrawer string          `json:"signature_withdrawer,omitempty"`
	SignatureDeliverer  string          `json:"signature_deliverer,omitempty"`
	Location            shared.Location `json:"location"`
	CreatedAt           time.Time       `json:"created_at"`
}

// RowID implements Row.
func (e OutflowEntry) RowID() string { return e.ID }

// BatchKey implements Row.
func (e OutflowEntry) BatchKey() string { return e.BatchID }

// Stamp implements Row.
func (e OutflowEntry) Stamp() (string, string) { return e.Date, e.Time }

// Qty implements Row.
func (e OutflowEntry) Qty() int { return e.Quantity }

// InflowEntry is one received line.
type InflowEntry struct {
	ID         string          `json:"id"`
	BatchID    string          `json:"batch_id,omitempty"`
	LineNo     int             `json:"line_no"`
	Date       string          `json:"date"`
	Time       string          `json:"time"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	OperatorID string          `json:"operator_id"`
	Signature  string          `json:"signature,omitempty"`
	Location   shared.Location `json:"location"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RowID implements Row.
func (e InflowEntry) RowID() string { return e.ID }

// BatchKey implements Row.
func (e InflowEntry) BatchKey() string { return e.BatchID }

// Stamp implements Row.
func (e InflowEntry) Stamp() (string, string) { return e.Date, e.Time }

// Qty implements Row.
func (e InflowEntry) Qty() int { return e.Quantity }

// Value is quantity times unit price.
func (e InflowEntry) Value() decimal.Decimal {
	return e.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// OutflowItem is one requested withdrawal line.
type OutflowItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// InflowItem is one received line.
type InflowItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Signatures carries the two signature images of a withdrawal.
type Signatures struct {
	Withdrawer string `json:"withdrawer" validate:"required"`
	Deliverer  string `json:"deliverer" validate:"required"`
}

// OutflowBatchInput records a withdrawal. BatchID is optional; a client that
// supplies one can retry safely because duplicates are refused.
type OutflowBatchInput struct {
	BatchID    string          `json:"batch_id,omitempty" validate:"omitempty,max=64"`
	Location   shared.Location `json:"-"`
	SectorID   string          `json:"sector_id" validate:"required"`
	OperatorID string          `json:"operator_id" validate:"required"`
	Signatures Signatures      `json:"signatures"`
	Items      []OutflowItem   `json:"items"`
}

// InflowBatchInput records a receipt.
type InflowBatchInput struct {
	BatchID    string          `json:"batch_id,omitempty" validate:"omitempty,max=64"`
	Location   shared.Location `json:"-"`
	OperatorID string          `json:"operator_id" validate:"required"`
	Signature  string          `json:"signature" validate:"required"`
	Items      []InflowItem    `json:"items"`
}

// AdjustInput overrides the stock of one product after a physical count.
type AdjustInput struct {
	Location  shared.Location `json:"-"`
	ProductID string          `json:"-"`
	NewStock  int             `json:"stock"`
	Reason    string          `json:"reason" validate:"max=240"`
	Actor     string          `json:"actor" validate:"max=120"`
}

// StockLevel is a locked product row as seen by the reconciler.
type StockLevel struct {
	ProductID string
	Location  shared.Location
	Stock     int
	Archived  bool
}

// StockChange reports the effect of one line on one product. Requested is
// the signed quantity the line asked for; Delta is what was applied.
type StockChange struct {
	ProductID string `json:"product_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
	Requested int    `json:"requested"`
	Delta     int    `json:"delta"`
	Clamped   bool   `json:"clamped,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// Adjustment is the trail left by a manual override.
type Adjustment struct {
	ProductID string
	Location  shared.Location
	Previous  int
	New       int
	Reason    string
	Actor     string
	At        time.Time
}

// BatchResult summarises a recorded or deleted batch.
type BatchResult struct {
	BatchID string        `json:"batch_id"`
	Rows    int           `json:"rows"`
	Changes []StockChange `json:"changes"`
}

// Drift compares stored stock with the stock implied by the ledger.
type Drift struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Stock       int    `json:"stock"`
	Expected    int    `json:"expected"`
	Difference  int    `json:"difference"`
	Initial     int    `json:"initial"`
	Inflows     int    `json:"inflows"`
	Outflows    int    `json:"outflows"`
	Adjustments int    `json:"adjustments"`
}

var (
	// ErrEmptyBatch rejects batches without lines.
	ErrEmptyBatch = fmt.Errorf("ledger: batch has no items: %w", httpx.ErrValidation)
	// ErrInvalidQuantity rejects zero or negative quantities.
	ErrInvalidQuantity = fmt.Errorf("ledger: quantity must be a positive integer up to 2147483647: %w", httpx.ErrValidation)
	// ErrInvalidUnitPrice rejects negative prices, more than two decimals and
	// values NUMERIC(12,2) cannot store.
	ErrInvalidUnitPrice = fmt.Errorf("ledger: unit price must be between 0 and 9999999999.99 with at most two decimals: %w", httpx.ErrValidation)
	// ErrInvalidStock rejects manual stock values outside 0..MaxStock.
	ErrInvalidStock = fmt.Errorf("ledger: stock must be between 0 and 2147483647: %w", httpx.ErrValidation)
	// ErrStockOverflow is returned when an increase would exceed MaxStock.
	ErrStockOverflow = fmt.Errorf("ledger: stock would exceed 2147483647: %w", httpx.ErrValidation)
	// ErrMissingSelection is returned when a required reference or signature is absent.
	ErrMissingSelection = fmt.Errorf("ledger: missing required selection: %w", httpx.ErrValidation)
	// ErrUnknownProduct is returned when a line names a product that is
	// missing, archived or kept at another location.
	ErrUnknownProduct = fmt.Errorf("ledger: product not available at this location: %w", httpx.ErrValidation)
	// ErrUnknownReference is returned when the sector or operator does not exist.
	ErrUnknownReference = fmt.Errorf("ledger: unknown sector or operator: %w", httpx.ErrValidation)
	// ErrNegativeStock is returned under PolicyReject.
	ErrNegativeStock = fmt.Errorf("ledger: stock cannot go below zero: %w", httpx.ErrConflict)
	// ErrBatchNotFound is returned when no row matches a batch id.
	ErrBatchNotFound = fmt.Errorf("ledger: batch %w", httpx.ErrNotFound)
	// ErrDuplicateBatch is returned when a client-supplied batch id was used before.
	ErrDuplicateBatch = fmt.Errorf("ledger: batch already recorded: %w", httpx.ErrDuplicate)
	// ErrProductMissing is returned by stores when the product row is gone.
	ErrProductMissing = fmt.Errorf("ledger: product %w", httpx.ErrNotFound)
)
