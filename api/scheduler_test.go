package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-sync/inventory"
	"github.com/warp/stock-sync/inventory/store"
	"github.com/warp/stock-sync/remote"
)

func TestScheduler_RunNowConvergesAllSKUs(t *testing.T) {
	ctx := context.Background()
	rem := remote.NewMemory()
	engine := inventory.NewEngine(store.NewMemory(), rem)

	for i, sku := range []inventory.SKU{"a", "b", "c", "d", "e"} {
		_, err := engine.Record(ctx, sku, inventory.CountChange{Quantity: int64(10 + i)})
		require.NoError(t, err)
	}
	_, err := rem.PlaceOrder(ctx, "c", 2)
	require.NoError(t, err)

	rs := NewReconciliationScheduler(engine, nil)
	rs.Concurrency = 2
	summary := rs.RunNow(ctx)

	assert.Equal(t, 5, summary.SKUs)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 5, summary.ByState[inventory.StateReconciled])

	for _, sku := range engine.SKUs() {
		l, err := engine.Lookup(sku)
		require.NoError(t, err)
		remoteCount, err := rem.Available(ctx, sku)
		require.NoError(t, err)
		assert.Equal(t, l.Available(), remoteCount, "sku %s", sku)
		assert.Equal(t, l.Available(), l.ShadowAvailable(), "sku %s", sku)
	}

	c, err := engine.Lookup("c")
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.Available(), "12 received, 2 sold remotely")
}

func TestScheduler_FailingSKUDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	rem := remote.NewMemory()
	engine := inventory.NewEngine(store.NewMemory(), rem)

	for _, sku := range []inventory.SKU{"a", "b"} {
		_, err := engine.Record(ctx, sku, inventory.CountChange{Quantity: 5})
		require.NoError(t, err)
	}
	rem.FailNext(remote.OpApply, 1)

	rs := NewReconciliationScheduler(engine, nil)
	rs.Concurrency = 1
	summary := rs.RunNow(ctx)

	assert.Equal(t, 2, summary.SKUs)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.ByState[inventory.StateReconciled])

	summary = rs.RunNow(ctx)
	assert.Equal(t, 0, summary.Failed, "the pending push is retried on the next pass")
	assert.Equal(t, 2, summary.ByState[inventory.StateReconciled])
}

func TestScheduler_StartStop(t *testing.T) {
	ctx := context.Background()
	rem := remote.NewMemory()
	engine := inventory.NewEngine(store.NewMemory(), rem)
	_, err := engine.Record(ctx, "a", inventory.CountChange{Quantity: 3})
	require.NoError(t, err)

	rs := NewReconciliationScheduler(engine, nil)
	rs.CheckInterval = 10 * time.Millisecond
	rs.Start()
	defer rs.Stop()

	assert.Eventually(t, func() bool {
		n, err := rem.Available(ctx, "a")
		return err == nil && n == 3
	}, time.Second, 5*time.Millisecond)

	rs.Stop()
	rs.Stop()
}

func TestScheduler_Disabled(t *testing.T) {
	rs := NewReconciliationScheduler(inventory.NewEngine(nil, remote.NewMemory()), nil)
	rs.Enabled = false
	rs.Start()
	rs.Stop()
}
