/*
store.go - Persistence interface for the adjustment journal

PURPOSE:
  Defines the boundary between the engine and the database. In-memory
  ledgers are projections; the Store is the durable, append-only journal
  they are rebuilt from when a listing is opened.

APPEND-ONLY CONTRACT:
  - Append(): Single adjustment write
  - AppendBatch(): Atomic multi-adjustment write (an ingested order writes
    its local and shadow entries together)
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Adjustments carry idempotency keys. A second write with the same key is
  rejected with ErrDuplicateIdempotencyKey, which is how a re-listed remote
  order is caught even across process restarts.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - listing.go: Journal replay
*/
package inventory

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Append-only adjustment journal
// =============================================================================

type Store interface {
	// Append persists one adjustment. Fails if the idempotency key exists.
	Append(ctx context.Context, adj Adjustment) error

	// AppendBatch persists adjustments atomically. All or none.
	AppendBatch(ctx context.Context, adjs []Adjustment) error

	// Load returns one book of a SKU in append order.
	Load(ctx context.Context, sku SKU, book Book) ([]Adjustment, error)

	// Exists checks whether an idempotency key was already written.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// SKUs lists every SKU with at least one adjustment.
	SKUs(ctx context.Context) ([]SKU, error)
}

// =============================================================================
// RECONCILIATION RUNS - Optional audit of monitor checks
// =============================================================================

type ReconciliationRun struct {
	ID           string
	SKU          SKU
	State        ReconcileState
	Local        int64
	Remote       int64
	Drift        int64
	Correction   int64
	CautionSince time.Time
	Error        string
	CheckedAt    time.Time
}

// RunRecorder is implemented by stores that keep reconciliation history.
type RunRecorder interface {
	SaveReconciliationRun(ctx context.Context, run ReconciliationRun) error
	ReconciliationRuns(ctx context.Context, sku SKU, limit int) ([]ReconciliationRun, error)
}
