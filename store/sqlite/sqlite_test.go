package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-sync/inventory"
	"github.com/warp/stock-sync/remote"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func adjustment(sku inventory.SKU, book inventory.Book, qty int64, key string) inventory.Adjustment {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return inventory.Adjustment{
		ID:             inventory.NewAdjustmentID(),
		SKU:            sku,
		Book:           book,
		Kind:           inventory.KindCount,
		Quantity:       qty,
		Status:         inventory.StatusApplied,
		IdempotencyKey: key,
		OccurredAt:     now,
		CreatedAt:      now,
	}
}

func TestStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := adjustment("sku-1", inventory.BookLocal, 10, "k1")
	first.Reason = "receipt"
	second := adjustment("sku-1", inventory.BookLocal, -3, "k2")
	second.ReferenceID = "order-7"
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, second))
	require.NoError(t, s.Append(ctx, adjustment("sku-1", inventory.BookShadow, 10, "k3")))

	local, err := s.Load(ctx, "sku-1", inventory.BookLocal)
	require.NoError(t, err)
	require.Len(t, local, 2)

	assert.Equal(t, first.ID, local[0].ID)
	assert.Equal(t, int64(10), local[0].Quantity)
	assert.Equal(t, "receipt", local[0].Reason)
	assert.True(t, first.OccurredAt.Equal(local[0].OccurredAt))
	assert.Equal(t, second.ID, local[1].ID, "same timestamp replays in insertion order")
	assert.Equal(t, "order-7", local[1].ReferenceID)

	shadow, err := s.Load(ctx, "sku-1", inventory.BookShadow)
	require.NoError(t, err)
	assert.Len(t, shadow, 1)
}

func TestStore_DuplicateIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, adjustment("sku-1", inventory.BookLocal, 1, "same")))
	err := s.Append(ctx, adjustment("sku-1", inventory.BookLocal, 1, "same"))
	assert.ErrorIs(t, err, inventory.ErrDuplicateIdempotencyKey)

	exists, err := s.Exists(ctx, "same")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(ctx, "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_EmptyKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, adjustment("sku-1", inventory.BookLocal, 1, "")))
	require.NoError(t, s.Append(ctx, adjustment("sku-1", inventory.BookLocal, 1, "")))
}

func TestStore_AppendBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, adjustment("sku-1", inventory.BookLocal, 5, "taken")))

	err := s.AppendBatch(ctx, []inventory.Adjustment{
		adjustment("sku-1", inventory.BookLocal, -1, "fresh"),
		adjustment("sku-1", inventory.BookShadow, -1, "taken"),
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicateIdempotencyKey)

	local, err := s.Load(ctx, "sku-1", inventory.BookLocal)
	require.NoError(t, err)
	assert.Len(t, local, 1, "first row of the failed batch was rolled back")

	err = s.AppendBatch(ctx, []inventory.Adjustment{
		adjustment("sku-1", inventory.BookLocal, -1, "twice"),
		adjustment("sku-1", inventory.BookShadow, -1, "twice"),
	})
	assert.ErrorIs(t, err, inventory.ErrDuplicateIdempotencyKey)
}

func TestStore_SKUs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, adjustment("b", inventory.BookLocal, 1, "")))
	require.NoError(t, s.Append(ctx, adjustment("a", inventory.BookOutbox, 1, "")))
	require.NoError(t, s.Append(ctx, adjustment("b", inventory.BookShadow, 1, "")))

	skus, err := s.SKUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []inventory.SKU{"a", "b"}, skus)
}

func TestStore_ReconciliationRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, state := range []inventory.ReconcileState{
		inventory.StateReconciled, inventory.StateCaution, inventory.StateManualReview,
	} {
		run := inventory.ReconciliationRun{
			ID:        string(inventory.NewAdjustmentID()),
			SKU:       "sku-1",
			State:     state,
			Local:     10,
			Remote:    int64(10 - i),
			Drift:     int64(i),
			CheckedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if state == inventory.StateManualReview {
			run.CautionSince = base
			run.Error = "drift 2 unresolved"
		}
		require.NoError(t, s.SaveReconciliationRun(ctx, run))
	}

	runs, err := s.ReconciliationRuns(ctx, "sku-1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, inventory.StateManualReview, runs[0].State)
	assert.True(t, base.Equal(runs[0].CautionSince))
	assert.Equal(t, "drift 2 unresolved", runs[0].Error)
	assert.Equal(t, inventory.StateCaution, runs[1].State)
	assert.True(t, runs[1].CautionSince.IsZero())

	all, err := s.ReconciliationRuns(ctx, "sku-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ReconciliationRuns(ctx, "sku-2", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, adjustment("sku-1", inventory.BookLocal, 1, "k")))
	require.NoError(t, s.Reset(ctx))

	skus, err := s.SKUs(ctx)
	require.NoError(t, err)
	assert.Empty(t, skus)
}

// A process restart rebuilds the listing from the journal, including a push
// that was sent but never confirmed.
func TestStore_EngineRestartResumesPendingPush(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "stock.db")
	rem := remote.NewMemory()

	s, err := New(path)
	require.NoError(t, err)
	engine := inventory.NewEngine(s, rem)

	_, err = engine.Record(ctx, "sku-1", inventory.CountChange{Quantity: 10})
	require.NoError(t, err)
	rem.LoseConfirmations(1)
	_, err = engine.Sync(ctx, "sku-1")
	require.ErrorIs(t, err, inventory.ErrPushFailed)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	engine = inventory.NewEngine(s, rem)
	require.NoError(t, engine.Open(ctx))

	l, err := engine.Lookup("sku-1")
	require.NoError(t, err)
	snap := l.Snapshot()
	assert.Equal(t, int64(10), snap.Local)
	assert.Equal(t, int64(0), snap.Shadow)
	require.NotNil(t, snap.PendingPush)
	assert.Equal(t, int64(10), snap.PendingPush.Delta)

	applied, err := engine.Sync(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), applied)

	remoteCount, err := rem.Available(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), remoteCount, "the lost confirmation was not applied twice")
	assert.Equal(t, int64(10), l.ShadowAvailable())
}
