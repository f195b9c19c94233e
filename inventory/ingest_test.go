package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-sync/inventory"
	"github.com/warp/stock-sync/inventory/store"
	"github.com/warp/stock-sync/remote"
)

// stubRemote lists a fixed set of orders on every pull and never learns
// that they were ingested.
type stubRemote struct {
	mu        sync.Mutex
	available int64
	orders    []inventory.Order
	listErr   error
}

func (s *stubRemote) Available(context.Context, inventory.SKU) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available, nil
}

func (s *stubRemote) ApplyAdjustment(_ context.Context, _ inventory.SKU, delta int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available += delta
	return nil
}

func (s *stubRemote) ListPendingOrders(context.Context, inventory.SKU) ([]inventory.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]inventory.Order, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

func TestIngest_FoldsOrdersIntoBothBooks(t *testing.T) {
	ctx := context.Background()
	rem := remote.NewMemory()
	engine := inventory.NewEngine(store.NewMemory(), rem)

	_, err := engine.Record(ctx, "sku-1", inventory.CountChange{Quantity: 10})
	require.NoError(t, err)
	_, err = engine.Sync(ctx, "sku-1")
	require.NoError(t, err)

	first, err := rem.PlaceOrder(ctx, "sku-1", 1)
	require.NoError(t, err)
	second, err := rem.PlaceOrder(ctx, "sku-1", 2)
	require.NoError(t, err)

	res, err := engine.PullOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, int64(3), res.Consumed)
	assert.Equal(t, []inventory.OrderID{first, second}, res.OrderIDs)

	l := lookup(t, engine, "sku-1")
	assert.Equal(t, int64(7), l.Available())
	assert.Equal(t, int64(7), l.ShadowAvailable())
	assert.Equal(t, int64(7), remoteCount(t, rem, "sku-1"))

	assert.Len(t, l.Orders(), 2)

	pending, err := rem.ListPendingOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Empty(t, pending, "ingested orders are acknowledged")

	applied, err := engine.Sync(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), applied, "orders are never pushed back")
}

func TestIngest_PullingTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	stub := &stubRemote{orders: []inventory.Order{
		{ID: "o-1", SKU: "sku-1", Quantity: 2},
		{ID: "o-1", SKU: "sku-1", Quantity: 2},
		{ID: "o-2", Quantity: 1},
	}}
	engine := inventory.NewEngine(store.NewMemory(), stub)

	res, err := engine.PullOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 1, res.Duplicates, "repeated ID within one pull")
	assert.Equal(t, int64(3), res.Consumed)

	res, err = engine.PullOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ingested)
	assert.Equal(t, 3, res.Duplicates)

	l := lookup(t, engine, "sku-1")
	assert.Equal(t, int64(-3), l.Available())
	assert.Equal(t, int64(-3), l.ShadowAvailable())
	assert.Len(t, l.Entries(inventory.BookLocal), 2)
}

func TestIngest_RejectsMalformedOrders(t *testing.T) {
	ctx := context.Background()
	stub := &stubRemote{orders: []inventory.Order{
		{ID: "", Quantity: 1},
		{ID: "zero", Quantity: 0},
		{ID: "negative", Quantity: -1},
		{ID: "elsewhere", SKU: "sku-2", Quantity: 1},
		{ID: "ok", SKU: "sku-1", Quantity: 2},
	}}
	engine := inventory.NewEngine(nil, stub)

	res, err := engine.PullOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rejected)
	assert.Equal(t, 1, res.Ingested)
	assert.Equal(t, int64(2), res.Consumed)
	assert.Equal(t, int64(-2), lookup(t, engine, "sku-1").Available())
}

func TestIngest_PullFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	stub := &stubRemote{listErr: errors.New("connection reset")}
	engine := inventory.NewEngine(nil, stub)

	_, err := engine.Record(ctx, "sku-1", inventory.CountChange{Quantity: 4})
	require.NoError(t, err)

	_, err = engine.PullOrders(ctx, "sku-1")
	require.ErrorIs(t, err, inventory.ErrPullFailed)
	assert.True(t, inventory.IsRetryable(err))

	l := lookup(t, engine, "sku-1")
	assert.Equal(t, int64(4), l.Available())
	assert.Empty(t, l.Orders())
}

func TestIngest_FailedJournalIngestsNothing(t *testing.T) {
	ctx := context.Background()
	rem := remote.NewMemory()
	failing := &store.Failing{
		Store: store.NewMemory(),
		Fail: func(adjs []inventory.Adjustment) error {
			if adjs[0].Kind == inventory.KindOrder {
				return errJournal
			}
			return nil
		},
	}
	engine := inventory.NewEngine(failing, rem)

	_, err := rem.PlaceOrder(ctx, "sku-1", 2)
	require.NoError(t, err)

	_, err = engine.PullOrders(ctx, "sku-1")
	require.ErrorIs(t, err, errJournal)

	l := lookup(t, engine, "sku-1")
	assert.Equal(t, int64(0), l.Available())
	assert.Equal(t, int64(0), l.ShadowAvailable())

	pending, err := rem.ListPendingOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "the order is listed again on the next pull")
}

func TestIngest_ReListedOrderAfterRestartIsDuplicate(t *testing.T) {
	ctx := context.Background()
	journal := store.NewMemory()
	rem := remote.NewMemory()

	engine := inventory.NewEngine(journal, rem)
	_, err := engine.Record(ctx, "sku-1", inventory.CountChange{Quantity: 5})
	require.NoError(t, err)
	_, err = engine.Sync(ctx, "sku-1")
	require.NoError(t, err)
	_, err = rem.PlaceOrder(ctx, "sku-1", 2)
	require.NoError(t, err)

	rem.FailNext(remote.OpAck, 1)
	res, err := engine.PullOrders(ctx, "sku-1")
	require.NoError(t, err, "a failed acknowledgement is not an ingestion failure")
	assert.Equal(t, 1, res.Ingested)

	restarted := inventory.NewEngine(journal, rem)
	require.NoError(t, restarted.Open(ctx))

	res, err = restarted.PullOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ingested)
	assert.Equal(t, 1, res.Duplicates)

	l := lookup(t, restarted, "sku-1")
	assert.Equal(t, int64(3), l.Available())
	assert.Equal(t, int64(3), l.ShadowAvailable())
	assert.Len(t, l.Orders(), 1)
}

func TestIngest_JournalCatchesOrderIngestedElsewhere(t *testing.T) {
	ctx := context.Background()
	journal := store.NewMemory()
	rem := remote.NewMemory()

	first := inventory.NewEngine(journal, rem)
	second := inventory.NewEngine(journal, rem)
	_, err := first.Record(ctx, "sku-1", inventory.CountChange{Quantity: 5})
	require.NoError(t, err)
	_, err = second.Listing(ctx, "sku-1")
	require.NoError(t, err)

	_, err = rem.PlaceOrder(ctx, "sku-1", 1)
	require.NoError(t, err)
	rem.FailNext(remote.OpAck, 1)
	res, err := first.PullOrders(ctx, "sku-1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Ingested)

	res, err = second.PullOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Ingested)
	assert.Equal(t, 1, res.Duplicates)
}

func TestDuplicateOrderError(t *testing.T) {
	err := &inventory.DuplicateOrderError{SKU: "sku-1", OrderID: "o-1"}
	assert.ErrorIs(t, err, inventory.ErrDuplicateOrder)
	assert.Contains(t, err.Error(), "o-1")
	assert.False(t, inventory.IsRetryable(err))
}
