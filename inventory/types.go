/*
Package inventory provides the stock synchronization engine.

PURPOSE:
  Keeps a locally-owned inventory count (the local ledger) consistent with a
  remote sales platform that can consume stock on its own by accepting orders.
  There is no shared transaction between the two sides. Instead the engine
  pushes relative deltas, pulls remote orders back, and reconciles drift.

KEY CONCEPTS IN THIS FILE (types.go):
  - Adjustment: An immutable, signed change to one book of one SKU
  - Order: A remote consumption event with a stable identifier
  - PushAttempt: An outbox entry awaiting remote confirmation
  - Book/Kind/Status: Classification of adjustments

BOOKS:
  local:  The system of record. Changed by local counts and ingested orders.
  shadow: What the remote platform has been told (plus orders it reported).
  outbox: Push attempts. Confirmation is a shadow entry referencing the attempt.

DESIGN PRINCIPLES:
  1. Append-only: Adjustments are never modified or removed
  2. Derived totals: "available" is always recomputable from the log
  3. Relative pushes: The remote only ever receives deltas, never snapshots
  4. Stable identity: Orders and pushes carry IDs so retries are idempotent

SEE ALSO:
  - ledger.go: Append-only arena with running total
  - sync.go: Delta push discipline
  - ingest.go: Remote order ingestion
  - reconcile.go: Drift policy
*/
package inventory

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SKU string
type AdjustmentID string
type OrderID string

// NewAdjustmentID returns a random adjustment identifier.
func NewAdjustmentID() AdjustmentID {
	return AdjustmentID(uuid.NewString())
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Book names one of the logs kept per SKU.
type Book string

const (
	BookLocal  Book = "local"
	BookShadow Book = "shadow"
	BookOutbox Book = "outbox"
)

func (b Book) Valid() bool {
	switch b {
	case BookLocal, BookShadow, BookOutbox:
		return true
	}
	return false
}

// Kind says why an adjustment exists.
type Kind string

const (
	KindCount   Kind = "count"   // Local count change (receipt, shrinkage, correction)
	KindPush    Kind = "push"    // Confirmed push folded into the shadow
	KindOrder   Kind = "order"   // Ingested remote order (local and shadow)
	KindDrift   Kind = "drift"   // Unexplained remote drift folded into the shadow
	KindAttempt Kind = "attempt" // Outbox entry for an in-flight push
)

// Status distinguishes confirmed adjustments from in-flight ones.
type Status string

const (
	StatusApplied       Status = "applied"
	StatusIndeterminate Status = "indeterminate"
)

// =============================================================================
// ADJUSTMENT - Atomic change to one book
// =============================================================================

type Adjustment struct {
	ID             AdjustmentID
	SKU            SKU
	Book           Book
	Kind           Kind
	Quantity       int64
	Status         Status
	ReferenceID    string // Order ID or push attempt ID
	Reason         string
	IdempotencyKey string
	OccurredAt     time.Time
	CreatedAt      time.Time
}

// =============================================================================
// ORDER - Remote consumption event
// =============================================================================

type Order struct {
	ID       OrderID
	SKU      SKU
	Quantity int64
	PlacedAt time.Time
}

// =============================================================================
// PUSH ATTEMPT - Outbox entry
// =============================================================================

// PushAttempt is a delta sent (or about to be sent) to the remote platform.
// It stays pending until the remote confirms it; retries reuse the same
// IdempotencyKey and Delta.
type PushAttempt struct {
	ID             AdjustmentID
	SKU            SKU
	Delta          int64
	IdempotencyKey string
	CreatedAt      time.Time
}

func attemptFromAdjustment(adj Adjustment) *PushAttempt {
	return &PushAttempt{
		ID:             adj.ID,
		SKU:            adj.SKU,
		Delta:          adj.Quantity,
		IdempotencyKey: adj.IdempotencyKey,
		CreatedAt:      adj.CreatedAt,
	}
}

// =============================================================================
// SNAPSHOT - Read-only view of a listing
// =============================================================================

type Snapshot struct {
	SKU            SKU
	Local          int64
	Shadow         int64
	Outstanding    int64 // Local - Shadow, the unpushed delta
	OrdersIngested int
	PendingPush    *PushAttempt
	CautionSince   time.Time
	AsOf           time.Time
}
