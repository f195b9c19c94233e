/*
ledger.go - Append-only adjustment log

PURPOSE:
  The Ledger is one system's view of a count: an ordered arena of immutable
  adjustments plus a running total. It backs the local system of record, the
  shadow model and the simulated remote platform's own bookkeeping.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No update, no delete.
  2. Available() is exactly the sum of the log. The running total is only
     ever changed together with an append, under the same lock.
  3. Readers never observe a half-applied append.

  Available() may be negative. That is a state to report, not to reject:
  the two sides can be out of step, and backorders are legitimate.

SEE ALSO:
  - shadow.go: Shadow model built on Ledger
  - store.go: Durable journal behind the in-memory ledgers
*/
package inventory

import (
	"sync"
	"time"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	mu      sync.RWMutex
	entries []Adjustment
	total   int64
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends a bare adjustment of quantity and returns it.
// No validation on sign or magnitude.
func (l *Ledger) Record(quantity int64) Adjustment {
	adj := Adjustment{
		ID:        NewAdjustmentID(),
		Kind:      KindCount,
		Quantity:  quantity,
		Status:    StatusApplied,
		CreatedAt: time.Now().UTC(),
	}
	l.Append(adj)
	return adj
}

// Append adds adj to the log and returns its offset.
func (l *Ledger) Append(adj Adjustment) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, adj)
	l.total += adj.Quantity
	return len(l.entries) - 1
}

// Available is the running total of the log.
func (l *Ledger) Available() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// At returns the adjustment at offset i.
func (l *Ledger) At(i int) (Adjustment, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.entries) {
		return Adjustment{}, false
	}
	return l.entries[i], true
}

// Entries returns a copy of the log, oldest first.
func (l *Ledger) Entries() []Adjustment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Adjustment, len(l.entries))
	copy(out, l.entries)
	return out
}

// Sum recomputes the total from the log. Used to audit the running total.
func (l *Ledger) Sum() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum int64
	for _, e := range l.entries {
		sum += e.Quantity
	}
	return sum
}
