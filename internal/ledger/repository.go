package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/assefaz/stockledger/internal/platform/db"
	"github.com/assefaz/stockledger/internal/shared"
)

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	StockStore
	InsertOutflowBatch(ctx context.Context, rows []OutflowEntry) error
	InsertInflowBatch(ctx context.Context, rows []InflowEntry) error
	OutflowBatch(ctx context.Context, location shared.Location, batchID string) ([]OutflowEntry, error)
	InflowBatch(ctx context.Context, location shared.Location, batchID string) ([]InflowEntry, error)
	DeleteByBatchOrID(ctx context.Context, table Table, location shared.Location, batchID string) (int64, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) error
}

// Repository persists ledger rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction, replaying
// it on serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const (
	outflowColumns = `id::text, COALESCE(batch_id, ''), line_no, date, time, product_id::text, quantity,
		operator_id::text, sector_id::text, signature_withdrawer, signature_deliverer, location, created_at`
	inflowColumns = `id::text, COALESCE(batch_id, ''), line_no, date, time, product_id::text, quantity,
		unit_price::text, operator_id::text, signature, location, created_at`
)

// ListOutflows returns every withdrawal of a location, newest first.
func (r *Repository) ListOutflows(ctx context.Context, location shared.Location) ([]OutflowEntry, error) {
	return queryOutflows(ctx, r.pool, `SELECT `+outflowColumns+` FROM outflow_entries
		WHERE location = $1 ORDER BY created_at DESC, batch_id, line_no`, string(location))
}

// ListInflows returns every receipt of a location, newest first.
func (r *Repository) ListInflows(ctx context.Context, location shared.Location) ([]InflowEntry, error) {
	return queryInflows(ctx, r.pool, `SELECT `+inflowColumns+` FROM inflow_entries
		WHERE location = $1 ORDER BY created_at DESC, batch_id, line_no`, string(location))
}

// StockDrift compares each product's stock with initial stock plus the net
// of its ledger rows and manual adjustments. Only mismatches are returned.
func (r *Repository) StockDrift(ctx context.Context, location shared.Location) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `
		WITH ins AS (
			SELECT product_id, SUM(quantity)::bigint AS qty FROM inflow_entries WHERE location = $1 GROUP BY product_id
		), outs AS (
			SELECT product_id, SUM(quantity)::bigint AS qty FROM outflow_entries WHERE location = $1 GROUP BY product_id
		), adj AS (
			SELECT product_id, SUM(new_stock - previous_stock)::bigint AS qty FROM stock_adjustments WHERE location = $1 GROUP BY product_id
		)
		SELECT p.id::text, p.name, p.stock, p.initial_stock,
			COALESCE(ins.qty, 0), COALESCE(outs.qty, 0), COALESCE(adj.qty, 0)
		FROM products p
		LEFT JOIN ins ON ins.product_id = p.id
		LEFT JOIN outs ON outs.product_id = p.id
		LEFT JOIN adj ON adj.product_id = p.id
		WHERE p.location = $1
		ORDER BY p.name`, string(location))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []Drift
	for rows.Next() {
		var d Drift
		var in, out, adj int64
		if err := rows.Scan(&d.ProductID, &d.Name, &d.Stock, &d.Initial, &in, &out, &adj); err != nil {
			return nil, err
		}
		d.Inflows, d.Outflows, d.Adjustments = int(in), int(out), int(adj)
		d.Expected = d.Initial + d.Inflows - d.Outflows + d.Adjustments
		d.Difference = d.Stock - d.Expected
		if d.Difference != 0 {
			drifts = append(drifts, d)
		}
	}
	return drifts, rows.Err()
}

func (r *txRepo) LockProduct(ctx context.Context, productID string) (StockLevel, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return StockLevel{}, ErrProductMissing
	}
	var level StockLevel
	var location string
	err := r.tx.QueryRow(ctx, `SELECT id::text, location, stock, archived_at IS NOT NULL
		FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&level.ProductID, &location, &level.Stock, &level.Archived)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, ErrProductMissing
		}
		return StockLevel{}, err
	}
	level.Location = shared.Location(location)
	return level, nil
}

func (r *txRepo) UpdateProductStock(ctx context.Context, productID string, stock int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, productID, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductMissing
	}
	return nil
}

func (r *txRepo) InsertOutflowBatch(ctx context.Context, rows []OutflowEntry) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO outflow_entries
			(id, batch_id, line_no, date, time, product_id, quantity, operator_id, sector_id,
			 signature_withdrawer, signature_deliverer, location, created_at)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			row.ID, row.BatchID, row.LineNo, row.Date, row.Time, row.ProductID, row.Quantity,
			row.OperatorID, row.SectorID, row.SignatureWithdrawer, row.SignatureDeliverer,
			string(row.Location), row.CreatedAt)
	}
	return referenceError(r.tx.SendBatch(ctx, batch).Close())
}

func (r *txRepo) InsertInflowBatch(ctx context.Context, rows []InflowEntry) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO inflow_entries
			(id, batch_id, line_no, date, time, product_id, quantity, unit_price, operator_id,
			 signature, location, created_at)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12)`,
			row.ID, row.BatchID, row.LineNo, row.Date, row.Time, row.ProductID, row.Quantity,
			row.UnitPrice.StringFixed(2), row.OperatorID, row.Signature,
			string(row.Location), row.CreatedAt)
	}
	return referenceError(r.tx.SendBatch(ctx, batch).Close())
}

const batchMatch = `location = $1 AND (batch_id = $2 OR (batch_id IS NULL AND id::text = $2))`

func (r *txRepo) OutflowBatch(ctx context.Context, location shared.Location, batchID string) ([]OutflowEntry, error) {
	return queryOutflows(ctx, r.tx, `SELECT `+outflowColumns+` FROM outflow_entries
		WHERE `+batchMatch+` ORDER BY line_no FOR UPDATE`, string(location), batchID)
}

func (r *txRepo) InflowBatch(ctx context.Context, location shared.Location, batchID string) ([]InflowEntry, error) {
	return queryInflows(ctx, r.tx, `SELECT `+inflowColumns+` FROM inflow_entries
		WHERE `+batchMatch+` ORDER BY line_no FOR UPDATE`, string(location), batchID)
}

func (r *txRepo) DeleteByBatchOrID(ctx context.Context, table Table, location shared.Location, batchID string) (int64, error) {
	switch table {
	case TableOutflows, TableInflows:
	default:
		return 0, fmt.Errorf("ledger: unknown table %q", table)
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM `+string(table)+` WHERE `+batchMatch, string(location), batchID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) InsertAdjustment(ctx context.Context, adj Adjustment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_adjustments
		(product_id, location, previous_stock, new_stock, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		adj.ProductID, string(adj.Location), adj.Previous, adj.New, adj.Reason, adj.Actor, adj.At)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryOutflows(ctx context.Context, q querier, sql string, args ...any) ([]OutflowEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OutflowEntry
	for rows.Next() {
		var e OutflowEntry
		var location string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.LineNo, &e.Date, &e.Time, &e.ProductID, &e.Quantity,
			&e.OperatorID, &e.SectorID, &e.SignatureWithdrawer, &e.SignatureDeliverer, &location, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Location = shared.Location(location)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func queryInflows(ctx context.Context, q querier, sql string, args ...any) ([]InflowEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []InflowEntry
	for rows.Next() {
		var e InflowEntry
		var location, price string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.LineNo, &e.Date, &e.Time, &e.ProductID, &e.Quantity,
			&price, &e.OperatorID, &e.Signature, &location, &e.CreatedAt); err != nil {
			return nil, err
		}
		unitPrice, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("ledger: unit price of %s: %w", e.ID, err)
		}
		e.UnitPrice = unitPrice
		e.Location = shared.Location(location)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func referenceError(err error) error {
	if db.HasCode(err, db.CodeUniqueViolation) {
		return fmt.Errorf("%w: %v", ErrDuplicateBatch, err)
	}
	if db.HasCode(err, db.CodeForeignKeyViolation) || db.HasCode(err, db.CodeInvalidText) {
		return fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}
	return err
}
