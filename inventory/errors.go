/*
errors.go - Centralized error types for the sync engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Remote errors   - Push or pull did not confirm (retry with same input)
  2. Ingestion       - Duplicate orders (detected and skipped, never fatal)
  3. Anomalies       - Negative availability (reported, never auto-repaired)
  4. Divergence      - Positive drift outlived the debounce window
  5. Store errors    - Journal failures

PROPAGATION:
  Transient remote failures are returned to the caller with state untouched,
  so the same operation can be retried unchanged. Ledger anomalies are
  surfaced, not repaired: deciding between a real backorder and a bug needs
  business judgment.

SEE ALSO:
  - sync.go: PushError
  - ingest.go: DuplicateOrderError
  - reconcile.go: DivergenceError, NegativeAvailabilityError
*/
package inventory

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned by a Store when a key already
	// exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrPushFailed is returned when the remote did not confirm an adjustment.
	// The shadow model is untouched; retrying is safe.
	ErrPushFailed = errors.New("remote push not confirmed")

	// ErrPullFailed is returned when remote orders could not be listed.
	ErrPullFailed = errors.New("remote order pull failed")

	// ErrRemoteUnavailable is returned when the remote count cannot be read.
	ErrRemoteUnavailable = errors.New("remote platform unavailable")

	// ErrDuplicateOrder marks an order ID that was already ingested.
	ErrDuplicateOrder = errors.New("order already ingested")

	// ErrNegativeAvailability marks a count below zero.
	ErrNegativeAvailability = errors.New("negative availability")

	// ErrDivergenceTimeout is returned when positive drift persisted past the
	// debounce window and exceeds the auto-correct tolerance.
	ErrDivergenceTimeout = errors.New("drift persisted past debounce window")

	// ErrInvalidSKU is returned for an empty SKU.
	ErrInvalidSKU = errors.New("invalid sku")

	// ErrInvalidQuantity is returned for a zero adjustment or non-positive order.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrListingNotFound is returned when a SKU has never been seen.
	ErrListingNotFound = errors.New("listing not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PushError reports an unconfirmed push. Attempt stays pending.
type PushError struct {
	SKU     SKU
	Attempt PushAttempt
	Err     error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push %s for %s (delta %d) not confirmed: %v",
		e.Attempt.ID, e.SKU, e.Attempt.Delta, e.Err)
}

func (e *PushError) Unwrap() []error {
	return []error{ErrPushFailed, e.Err}
}

// DuplicateOrderError describes an order ID seen twice.
type DuplicateOrderError struct {
	SKU     SKU
	OrderID OrderID
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %s for %s already ingested", e.OrderID, e.SKU)
}

func (e *DuplicateOrderError) Unwrap() error {
	return ErrDuplicateOrder
}

// Side names which count went negative.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// NegativeAvailabilityError reports a count below zero.
type NegativeAvailabilityError struct {
	SKU       SKU
	Side      Side
	Available int64
}

func (e *NegativeAvailabilityError) Error() string {
	return fmt.Sprintf("%s availability for %s is %d", e.Side, e.SKU, e.Available)
}

func (e *NegativeAvailabilityError) Unwrap() error {
	return ErrNegativeAvailability
}

// DivergenceError reports positive drift that needs manual review.
type DivergenceError struct {
	SKU          SKU
	Drift        int64
	Local        int64
	Remote       int64
	CautionSince time.Time
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("drift %d for %s (local %d, remote %d) unresolved since %s",
		e.Drift, e.SKU, e.Local, e.Remote, e.CautionSince.Format(time.RFC3339))
}

func (e *DivergenceError) Unwrap() error {
	return ErrDivergenceTimeout
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if repeating the same call might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPushFailed) ||
		errors.Is(err, ErrPullFailed) ||
		errors.Is(err, ErrRemoteUnavailable)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSKU) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing listing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrListingNotFound)
}
