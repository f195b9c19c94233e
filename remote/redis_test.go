package remote

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-sync/inventory"
	"github.com/warp/stock-sync/inventory/store"
)

var (
	_ inventory.RemotePlatform    = (*Redis)(nil)
	_ inventory.OrderPlacer       = (*Redis)(nil)
	_ inventory.OrderAcknowledger = (*Redis)(nil)
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, "test"), mr
}

func TestRedis_AvailableDefaultsToZero(t *testing.T) {
	r, _ := newTestRedis(t)

	n, err := r.Available(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedis_ApplyAdjustmentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	require.NoError(t, r.ApplyAdjustment(ctx, "sku-1", 10, "push-1"))
	require.NoError(t, r.ApplyAdjustment(ctx, "sku-1", 10, "push-1"))
	require.NoError(t, r.ApplyAdjustment(ctx, "sku-1", -3, "push-2"))

	n, err := r.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.True(t, mr.Exists("test:applied:push-1"))

	require.NoError(t, r.ApplyAdjustment(ctx, "sku-1", 1, ""))
	require.NoError(t, r.ApplyAdjustment(ctx, "sku-1", 1, ""))
	n, err = r.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestRedis_OrdersAndAcknowledgement(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)
	require.NoError(t, r.ApplyAdjustment(ctx, "sku-1", 10, "k"))

	first, err := r.PlaceOrder(ctx, "sku-1", 4)
	require.NoError(t, err)
	second, err := r.PlaceOrder(ctx, "sku-1", 1)
	require.NoError(t, err)

	n, err := r.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	pending, err := r.ListPendingOrders(ctx, "sku-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)
	assert.Equal(t, int64(4), pending[0].Quantity)
	assert.False(t, pending[0].PlacedAt.IsZero())

	require.NoError(t, r.AcknowledgeOrders(ctx, "sku-1", []inventory.OrderID{first}))
	pending, err = r.ListPendingOrders(ctx, "sku-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)

	_, err = r.PlaceOrder(ctx, "sku-1", -1)
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestRedis_Unavailable(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)
	mr.Close()

	_, err := r.Available(ctx, "sku-1")
	assert.Error(t, err)
	assert.Error(t, r.ApplyAdjustment(ctx, "sku-1", 1, "k"))
}

// The engine converges against the redis remote exactly as against the
// in-process one.
func TestRedis_EngineScenario(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)
	engine := inventory.NewEngine(store.NewMemory(), r)

	_, err := engine.Record(ctx, "sku-1", inventory.CountChange{Quantity: 10})
	require.NoError(t, err)
	applied, err := engine.Sync(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), applied)

	_, err = r.PlaceOrder(ctx, "sku-1", 3)
	require.NoError(t, err)

	rep, err := engine.Reconcile(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.StateReconciled, rep.State)
	assert.Equal(t, 1, rep.Ingested.Ingested)
	assert.Equal(t, int64(7), rep.Local)
	assert.Equal(t, int64(7), rep.Remote)

	pending, err := r.ListPendingOrders(ctx, "sku-1")
	require.NoError(t, err)
	assert.Empty(t, pending, "ingested orders were acknowledged")
}
