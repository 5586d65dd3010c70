package ledger

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/assefaz/stockledger/internal/shared"
)

type memoryState struct {
	products    map[string]StockLevel
	outflows    []OutflowEntry
	inflows     []InflowEntry
	adjustments []Adjustment
}

func (s memoryState) clone() memoryState {
	c := memoryState{products: make(map[string]StockLevel, len(s.products))}
	for k, v := range s.products {
		c.products[k] = v
	}
	c.outflows = append([]OutflowEntry(nil), s.outflows...)
	c.inflows = append([]InflowEntry(nil), s.inflows...)
	c.adjustments = append([]Adjustment(nil), s.adjustments...)
	return c
}

type memoryRepo struct {
	state   memoryState
	txCalls int
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{products: make(map[string]StockLevel)}}
}

func (r *memoryRepo) addProduct(id string, loc shared.Location, stock int) {
	r.state.products[id] = StockLevel{ProductID: id, Location: loc, Stock: stock}
}

func (r *memoryRepo) stock(id string) int {
	return r.state.products[id].Stock
}

// WithTx works on a copy and keeps it only when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txCalls++
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memoryRepo) ListOutflows(_ context.Context, loc shared.Location) ([]OutflowEntry, error) {
	var out []OutflowEntry
	for _, e := range r.state.outflows {
		if e.Location == loc {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListInflows(_ context.Context, loc shared.Location) ([]InflowEntry, error) {
	var out []InflowEntry
	for _, e := range r.state.inflows {
		if e.Location == loc {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) LockProduct(_ context.Context, id string) (StockLevel, error) {
	level, ok := tx.state.products[id]
	if !ok {
		return StockLevel{}, ErrProductMissing
	}
	return level, nil
}

func (tx *memoryTx) UpdateProductStock(_ context.Context, id string, stock int) error {
	level, ok := tx.state.products[id]
	if !ok {
		return ErrProductMissing
	}
	level.Stock = stock
	tx.state.products[id] = level
	return nil
}

func (tx *memoryTx) InsertOutflowBatch(_ context.Context, rows []OutflowEntry) error {
	tx.state.outflows = append(tx.state.outflows, rows...)
	return nil
}

func (tx *memoryTx) InsertInflowBatch(_ context.Context, rows []InflowEntry) error {
	tx.state.inflows = append(tx.state.inflows, rows...)
	return nil
}

func matches(loc shared.Location, batchID string, rowLoc shared.Location, rowBatch, rowID string) bool {
	if rowLoc != loc {
		return false
	}
	return rowBatch == batchID || (rowBatch == "" && rowID == batchID)
}

func (tx *memoryTx) OutflowBatch(_ context.Context, loc shared.Location, batchID string) ([]OutflowEntry, error) {
	var out []OutflowEntry
	for _, e := range tx.state.outflows {
		if matches(loc, batchID, e.Location, e.BatchID, e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) InflowBatch(_ context.Context, loc shared.Location, batchID string) ([]InflowEntry, error) {
	var out []InflowEntry
	for _, e := range tx.state.inflows {
		if matches(loc, batchID, e.Location, e.BatchID, e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) DeleteByBatchOrID(_ context.Context, table Table, loc shared.Location, batchID string) (int64, error) {
	var deleted int64
	switch table {
	case TableOutflows:
		kept := tx.state.outflows[:0:0]
		for _, e := range tx.state.outflows {
			if matches(loc, batchID, e.Location, e.BatchID, e.ID) {
				deleted++
				continue
			}
			kept = append(kept, e)
		}
		tx.state.outflows = kept
	case TableInflows:
		kept := tx.state.inflows[:0:0]
		for _, e := range tx.state.inflows {
			if matches(loc, batchID, e.Location, e.BatchID, e.ID) {
				deleted++
				continue
			}
			kept = append(kept, e)
		}
		tx.state.inflows = kept
	}
	return deleted, nil
}

func (tx *memoryTx) InsertAdjustment(_ context.Context, adj Adjustment) error {
	tx.state.adjustments = append(tx.state.adjustments, adj)
	return nil
}

type memoryIdempotency struct {
	keys  map[string]bool
	calls int
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.calls++
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = true
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key, module string) error {
	delete(m.keys, module+":"+key)
	return nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type countingNotifier struct{ bumps int }

func (n *countingNotifier) Bump(context.Context) error {
	n.bumps++
	return nil
}

var fixedNow = time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, policy StockPolicy) (*Service, *memoryIdempotency, *memoryAudit, *countingNotifier) {
	idem := &memoryIdempotency{}
	audit := &memoryAudit{}
	notifier := &countingNotifier{}
	svc := NewService(repo, audit, idem, notifier, ServiceConfig{
		Policy: policy,
		Clock:  func() time.Time { return fixedNow },
	})
	return svc, idem, audit, notifier
}

func outflowInput(items ...OutflowItem) OutflowBatchInput {
	return OutflowBatchInput{
		Location:   shared.LocationSede,
		SectorID:   "sector-1",
		OperatorID: "operator-1",
		Signatures: Signatures{Withdrawer: "data:image/png;base64,AAA", Deliverer: "data:image/png;base64,BBB"},
		Items:      items,
	}
}

func inflowInput(items ...InflowItem) InflowBatchInput {
	return InflowBatchInput{
		Location:   shared.LocationSede,
		OperatorID: "operator-1",
		Signature:  "data:image/png;base64,CCC",
		Items:      items,
	}
}

func TestOutflowThenInflow(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	svc, _, _, notifier := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	out, err := svc.RecordOutflowBatch(ctx, outflowInput(OutflowItem{ProductID: "p", Quantity: 4}))
	require.NoError(t, err)
	require.Equal(t, 6, repo.stock("p"))
	require.Contains(t, out.BatchID, OutflowBatchPrefix)
	require.Len(t, repo.state.outflows, 1)
	require.Equal(t, "05/03/2024", repo.state.outflows[0].Date)
	require.Equal(t, "14:30", repo.state.outflows[0].Time)

	in, err := svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: 20, UnitPrice: decimal.RequireFromString("2.50")}))
	require.NoError(t, err)
	require.Equal(t, 26, repo.stock("p"))
	require.Contains(t, in.BatchID, InflowBatchPrefix)
	require.True(t, decimal.RequireFromString("50").Equal(repo.state.inflows[0].Value()))
	require.Equal(t, 2, notifier.bumps)
}

func TestOutflowClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 3)
	svc, _, _, _ := newTestService(repo, PolicyClamp)

	result, err := svc.RecordOutflowBatch(context.Background(), outflowInput(OutflowItem{ProductID: "p", Quantity: 10}))
	require.NoError(t, err)
	require.Equal(t, 0, repo.stock("p"))
	require.True(t, result.Changes[0].Clamped)
	require.Equal(t, -10, result.Changes[0].Requested)
	require.Equal(t, -3, result.Changes[0].Delta)
	require.Equal(t, 10, repo.state.outflows[0].Quantity)
}

func TestOutflowRejectPolicyLeavesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 3)
	repo.addProduct("q", shared.LocationSede, 8)
	svc, _, _, notifier := newTestService(repo, PolicyReject)

	_, err := svc.RecordOutflowBatch(context.Background(), outflowInput(
		OutflowItem{ProductID: "q", Quantity: 2},
		OutflowItem{ProductID: "p", Quantity: 10},
	))
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Contains(t, err.Error(), "line 2")
	require.Equal(t, 3, repo.stock("p"))
	require.Equal(t, 8, repo.stock("q"))
	require.Empty(t, repo.state.outflows)
	require.Zero(t, notifier.bumps)
}

func TestDeleteOutflowBatchRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	repo.addProduct("q", shared.LocationSede, 10)
	svc, _, audit, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	input := outflowInput(OutflowItem{ProductID: "p", Quantity: 5}, OutflowItem{ProductID: "q", Quantity: 2})
	input.BatchID = "OUT-1"
	_, err := svc.RecordOutflowBatch(ctx, input)
	require.NoError(t, err)
	require.Equal(t, 5, repo.stock("p"))
	require.Equal(t, 8, repo.stock("q"))

	result, err := svc.DeleteOutflowBatch(ctx, shared.LocationSede, "OUT-1", "tester")
	require.NoError(t, err)
	require.Equal(t, 2, result.Rows)
	require.Equal(t, 10, repo.stock("p"))
	require.Equal(t, 10, repo.stock("q"))

	history, err := svc.OutflowHistory(ctx, shared.LocationSede)
	require.NoError(t, err)
	require.Empty(t, history)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "batch:delete", audit.logs[0].Action)
	require.Equal(t, "OUT-1", audit.logs[0].EntityID)
	require.Equal(t, "tester", audit.logs[0].Actor)
}

func TestInflowRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 4)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	result, err := svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: 6}))
	require.NoError(t, err)
	require.Equal(t, 10, repo.stock("p"))

	_, err = svc.DeleteInflowBatch(ctx, shared.LocationSede, result.BatchID, "tester")
	require.NoError(t, err)
	require.Equal(t, 4, repo.stock("p"))
	require.Empty(t, repo.state.inflows)
}

func TestDeleteInflowAfterConsumptionClamps(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 0)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	in, err := svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: 5}))
	require.NoError(t, err)
	_, err = svc.RecordOutflowBatch(ctx, outflowInput(OutflowItem{ProductID: "p", Quantity: 4}))
	require.NoError(t, err)

	result, err := svc.DeleteInflowBatch(ctx, shared.LocationSede, in.BatchID, "tester")
	require.NoError(t, err)
	require.Equal(t, 0, repo.stock("p"))
	require.True(t, result.Changes[0].Clamped)
}

func TestEmptyBatchTouchesNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc, idem, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	_, err := svc.RecordOutflowBatch(ctx, outflowInput())
	require.ErrorIs(t, err, ErrEmptyBatch)
	_, err = svc.RecordInflowBatch(ctx, inflowInput())
	require.ErrorIs(t, err, ErrEmptyBatch)
	require.Zero(t, repo.txCalls)
	require.Zero(t, idem.calls)
}

func TestInvalidQuantityNamesLine(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	svc, _, _, _ := newTestService(repo, PolicyClamp)

	_, err := svc.RecordOutflowBatch(context.Background(), outflowInput(
		OutflowItem{ProductID: "p", Quantity: 1},
		OutflowItem{ProductID: "p", Quantity: 0},
	))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Contains(t, err.Error(), "line 2")
	require.Zero(t, repo.txCalls)

	_, err = svc.RecordInflowBatch(context.Background(), inflowInput(
		InflowItem{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)},
	))
	require.ErrorIs(t, err, ErrInvalidUnitPrice)
}

func TestMissingSelectionRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	svc, _, _, _ := newTestService(repo, PolicyClamp)

	input := outflowInput(OutflowItem{ProductID: "p", Quantity: 1})
	input.Signatures.Deliverer = ""
	_, err := svc.RecordOutflowBatch(context.Background(), input)
	require.ErrorIs(t, err, ErrMissingSelection)
	require.Zero(t, repo.txCalls)
}

func TestUnknownProductRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	repo.addProduct("elsewhere", shared.Location506, 10)
	repo.addProduct("old", shared.LocationSede, 10)
	old := repo.state.products["old"]
	old.Archived = true
	repo.state.products["old"] = old
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	for _, id := range []string{"ghost", "elsewhere", "old"} {
		_, err := svc.RecordOutflowBatch(ctx, outflowInput(
			OutflowItem{ProductID: "p", Quantity: 1},
			OutflowItem{ProductID: id, Quantity: 1},
		))
		require.ErrorIs(t, err, ErrUnknownProduct, id)
	}
	require.Equal(t, 10, repo.stock("p"))
	require.Empty(t, repo.state.outflows)
}

func TestDuplicateBatchID(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	input := outflowInput(OutflowItem{ProductID: "p", Quantity: 1})
	input.BatchID = "OUT-client-7"
	_, err := svc.RecordOutflowBatch(ctx, input)
	require.NoError(t, err)

	_, err = svc.RecordOutflowBatch(ctx, input)
	require.ErrorIs(t, err, ErrDuplicateBatch)
	require.Equal(t, 9, repo.stock("p"))
}

func TestFailedBatchReleasesClientID(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 1)
	svc, idem, _, _ := newTestService(repo, PolicyReject)
	ctx := context.Background()

	input := outflowInput(OutflowItem{ProductID: "p", Quantity: 5})
	input.BatchID = "OUT-retry"
	_, err := svc.RecordOutflowBatch(ctx, input)
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Empty(t, idem.keys)

	input.Items[0].Quantity = 1
	_, err = svc.RecordOutflowBatch(ctx, input)
	require.NoError(t, err)
}

func TestReusedBatchIDAfterKeyPurgeRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	repo.addProduct("q", shared.LocationSede, 10)
	svc, idem, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	first := outflowInput(OutflowItem{ProductID: "p", Quantity: 2})
	first.BatchID = "OUT-1"
	_, err := svc.RecordOutflowBatch(ctx, first)
	require.NoError(t, err)

	idem.keys = nil
	second := outflowInput(OutflowItem{ProductID: "q", Quantity: 3})
	second.BatchID = "OUT-1"
	_, err = svc.RecordOutflowBatch(ctx, second)
	require.ErrorIs(t, err, ErrDuplicateBatch)
	require.Equal(t, 10, repo.stock("q"))
	require.Len(t, repo.state.outflows, 1)
	require.Empty(t, idem.keys)

	result, err := svc.DeleteOutflowBatch(ctx, shared.LocationSede, "OUT-1", "tester")
	require.NoError(t, err)
	require.Equal(t, 1, result.Rows)
	require.Equal(t, 10, repo.stock("p"))
}

func TestBatchIDMatchingLegacyRowRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	repo.state.inflows = append(repo.state.inflows, InflowEntry{ID: "legacy-row", ProductID: "p", Quantity: 1, Location: shared.LocationSede})
	svc, _, _, _ := newTestService(repo, PolicyClamp)

	input := inflowInput(InflowItem{ProductID: "p", Quantity: 4})
	input.BatchID = "legacy-row"
	_, err := svc.RecordInflowBatch(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateBatch)
	require.Equal(t, 10, repo.stock("p"))
	require.Len(t, repo.state.inflows, 1)
}

func TestQuantityAboveColumnRangeRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	_, err := svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: math.MaxInt}))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: 3_000_000_000}))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.RecordOutflowBatch(ctx, outflowInput(OutflowItem{ProductID: "p", Quantity: MaxStock + 1}))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Equal(t, 10, repo.stock("p"))
	require.Zero(t, repo.txCalls)

	_, err = svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: MaxStock}))
	require.ErrorIs(t, err, ErrStockOverflow)
	require.Equal(t, 10, repo.stock("p"))
	require.Empty(t, repo.state.inflows)

	_, err = svc.ManualAdjust(ctx, AdjustInput{Location: shared.LocationSede, ProductID: "p", NewStock: MaxStock + 1, Reason: "count"})
	require.ErrorIs(t, err, ErrInvalidStock)
}

func TestUnitPriceScaleAndRange(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 0)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	for _, raw := range []string{"2.505", "10000000000", "-1"} {
		_, err := svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: 1, UnitPrice: decimal.RequireFromString(raw)}))
		require.ErrorIs(t, err, ErrInvalidUnitPrice, raw)
	}
	_, err := svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: 1, UnitPrice: decimal.RequireFromString("9999999999.990")}))
	require.NoError(t, err)
	require.Equal(t, 1, repo.stock("p"))
}

func TestDeleteUnknownBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _, _ := newTestService(repo, PolicyClamp)

	_, err := svc.DeleteOutflowBatch(context.Background(), shared.LocationSede, "OUT-missing", "tester")
	require.ErrorIs(t, err, ErrBatchNotFound)
	_, err = svc.DeleteInflowBatch(context.Background(), shared.LocationSede, "  ", "tester")
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestDeleteOtherLocationBatchNotFound(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	result, err := svc.RecordOutflowBatch(ctx, outflowInput(OutflowItem{ProductID: "p", Quantity: 1}))
	require.NoError(t, err)

	_, err = svc.DeleteOutflowBatch(ctx, shared.Location506, result.BatchID, "tester")
	require.ErrorIs(t, err, ErrBatchNotFound)
	require.Equal(t, 9, repo.stock("p"))
}

func TestDeleteLegacyRowByID(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 1)
	repo.state.outflows = []OutflowEntry{
		{ID: "legacy-1", Date: "01/02/2024", Time: "09:00", ProductID: "p", Quantity: 3, Location: shared.LocationSede},
		{ID: "legacy-2", Date: "01/02/2024", Time: "09:05", ProductID: "p", Quantity: 2, Location: shared.LocationSede},
	}
	svc, _, _, _ := newTestService(repo, PolicyClamp)

	result, err := svc.DeleteOutflowBatch(context.Background(), shared.LocationSede, "legacy-1", "tester")
	require.NoError(t, err)
	require.Equal(t, 1, result.Rows)
	require.Equal(t, 4, repo.stock("p"))
	require.Len(t, repo.state.outflows, 1)
	require.Equal(t, "legacy-2", repo.state.outflows[0].ID)
}

func TestReversalSkipsMissingProduct(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 1)
	repo.state.outflows = []OutflowEntry{
		{ID: "r1", BatchID: "OUT-9", ProductID: "p", Quantity: 2, Location: shared.LocationSede},
		{ID: "r2", BatchID: "OUT-9", ProductID: "gone", Quantity: 4, Location: shared.LocationSede},
	}
	svc, _, audit, _ := newTestService(repo, PolicyClamp)

	result, err := svc.DeleteOutflowBatch(context.Background(), shared.LocationSede, "OUT-9", "tester")
	require.NoError(t, err)
	require.Equal(t, 3, repo.stock("p"))
	require.True(t, result.Changes[1].Skipped)
	require.Empty(t, repo.state.outflows)
	require.Equal(t, 1, audit.logs[0].Meta["skipped"])
}

func TestReversalOfArchivedProduct(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 10)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	result, err := svc.RecordOutflowBatch(ctx, outflowInput(OutflowItem{ProductID: "p", Quantity: 4}))
	require.NoError(t, err)

	p := repo.state.products["p"]
	p.Archived = true
	repo.state.products["p"] = p

	_, err = svc.DeleteOutflowBatch(ctx, shared.LocationSede, result.BatchID, "tester")
	require.NoError(t, err)
	require.Equal(t, 10, repo.stock("p"))
}

func TestManualAdjust(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 7)
	svc, _, audit, notifier := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	change, err := svc.ManualAdjust(ctx, AdjustInput{Location: shared.LocationSede, ProductID: "p", NewStock: 12, Reason: "contagem", Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, 7, change.Before)
	require.Equal(t, 12, change.After)
	require.Equal(t, 12, repo.stock("p"))
	require.Empty(t, repo.state.outflows)
	require.Empty(t, repo.state.inflows)
	require.Len(t, repo.state.adjustments, 1)
	require.Equal(t, 5, repo.state.adjustments[0].New-repo.state.adjustments[0].Previous)
	require.Equal(t, "stock:adjust", audit.logs[0].Action)
	require.Equal(t, 1, notifier.bumps)

	_, err = svc.ManualAdjust(ctx, AdjustInput{Location: shared.LocationSede, ProductID: "p", NewStock: -1})
	require.ErrorIs(t, err, ErrInvalidStock)

	_, err = svc.ManualAdjust(ctx, AdjustInput{Location: shared.Location506, ProductID: "p", NewStock: 1})
	require.ErrorIs(t, err, ErrUnknownProduct)
	require.Equal(t, 12, repo.stock("p"))
}

func TestReconciliationInvariant(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("p", shared.LocationSede, 20)
	svc, _, _, _ := newTestService(repo, PolicyClamp)
	ctx := context.Background()

	moves := []struct {
		out bool
		qty int
	}{{true, 3}, {false, 7}, {true, 5}, {true, 1}, {false, 2}}
	expected := 20
	for _, m := range moves {
		var err error
		if m.out {
			_, err = svc.RecordOutflowBatch(ctx, outflowInput(OutflowItem{ProductID: "p", Quantity: m.qty}))
			expected -= m.qty
		} else {
			_, err = svc.RecordInflowBatch(ctx, inflowInput(InflowItem{ProductID: "p", Quantity: m.qty}))
			expected += m.qty
		}
		require.NoError(t, err)
	}
	require.Equal(t, expected, repo.stock("p"))

	sum := 20
	for _, e := range repo.state.inflows {
		sum += e.Quantity
	}
	for _, e := range repo.state.outflows {
		sum -= e.Quantity
	}
	require.Equal(t, sum, repo.stock("p"))
}

func TestUnknownLocationRejected(t *testing.T) {
	svc, _, _, _ := newTestService(newMemoryRepo(), PolicyClamp)
	input := outflowInput(OutflowItem{ProductID: "p", Quantity: 1})
	input.Location = "filial"
	_, err := svc.RecordOutflowBatch(context.Background(), input)
	require.True(t, errors.Is(err, shared.ErrUnknownLocation))
}

func TestParseStockPolicy(t *testing.T) {
	p, err := ParseStockPolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyClamp, p)
	p, err = ParseStockPolicy(" Reject ")
	require.NoError(t, err)
	require.Equal(t, PolicyReject, p)
	_, err = ParseStockPolicy("ignore")
	require.Error(t, err)
}
