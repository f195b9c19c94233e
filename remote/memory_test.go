package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-sync/inventory"
)

var (
	_ inventory.RemotePlatform    = (*Memory)(nil)
	_ inventory.OrderPlacer       = (*Memory)(nil)
	_ inventory.OrderAcknowledger = (*Memory)(nil)
)

func TestMemory_ApplyAdjustmentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", 10, "push-1"))
	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", 10, "push-1"))
	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", -2, "push-2"))

	n, err := m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
}

func TestMemory_EmptyKeyAlwaysApplies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", 1, ""))
	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", 1, ""))

	n, err := m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemory_FailNextHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.FailNext(OpApply, 2)

	for i := 0; i < 2; i++ {
		err := m.ApplyAdjustment(ctx, "sku-1", 5, "push-1")
		assert.ErrorIs(t, err, ErrInjected)
	}
	n, err := m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", 5, "push-1"))
	n, err = m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestMemory_LostConfirmationStillApplies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.LoseConfirmations(1)

	err := m.ApplyAdjustment(ctx, "sku-1", 5, "push-1")
	assert.ErrorIs(t, err, ErrInjected)

	n, err := m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", 5, "push-1"))
	n, err = m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n, "retry with the same key is a no-op")
}

func TestMemory_OrdersAndAcknowledgement(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.ApplyAdjustment(ctx, "sku-1", 10, "k"))

	first, err := m.PlaceOrder(ctx, "sku-1", 2)
	require.NoError(t, err)
	second, err := m.PlaceOrder(ctx, "sku-1", 3)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	n, err := m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	pending, err := m.ListPendingOrders(ctx, "sku-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)
	assert.Equal(t, int64(2), pending[0].Quantity)
	assert.Equal(t, inventory.SKU("sku-1"), pending[0].SKU)

	require.NoError(t, m.AcknowledgeOrders(ctx, "sku-1", []inventory.OrderID{first}))
	pending, err = m.ListPendingOrders(ctx, "sku-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)

	assert.Len(t, m.Orders("sku-1"), 2, "acknowledged orders stay on record")
}

func TestMemory_PlaceOrderRejectsNonPositive(t *testing.T) {
	_, err := NewMemory().PlaceOrder(context.Background(), "sku-1", 0)
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestMemory_AdjustOutOfBand(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Adjust("sku-1", 7)
	m.Adjust("sku-1", -2)

	n, err := m.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().Available(ctx, "sku-1")
	assert.ErrorIs(t, err, context.Canceled)
}
