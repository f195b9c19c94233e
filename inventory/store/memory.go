// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/stock-sync/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	books       map[key][]inventory.Adjustment
	idempotency map[string]bool
	runs        map[inventory.SKU][]inventory.ReconciliationRun
}

type key struct {
	SKU  inventory.SKU
	Book inventory.Book
}

func NewMemory() *Memory {
	return &Memory{
		books:       make(map[key][]inventory.Adjustment),
		idempotency: make(map[string]bool),
		runs:        make(map[inventory.SKU][]inventory.ReconciliationRun),
	}
}

// Append adds a single adjustment. Append-only.
func (m *Memory) Append(_ context.Context, adj inventory.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if adj.IdempotencyKey != "" && m.idempotency[adj.IdempotencyKey] {
		return inventory.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(adj)
	return nil
}

// AppendBatch adds multiple adjustments atomically.
func (m *Memory) AppendBatch(_ context.Context, adjs []inventory.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first, including within the batch
	seen := make(map[string]bool, len(adjs))
	for _, adj := range adjs {
		if adj.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[adj.IdempotencyKey] || seen[adj.IdempotencyKey] {
			return inventory.ErrDuplicateIdempotencyKey
		}
		seen[adj.IdempotencyKey] = true
	}

	for _, adj := range adjs {
		m.appendLocked(adj)
	}
	return nil
}

func (m *Memory) appendLocked(adj inventory.Adjustment) {
	k := key{SKU: adj.SKU, Book: adj.Book}
	m.books[k] = append(m.books[k], adj)
	if adj.IdempotencyKey != "" {
		m.idempotency[adj.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, sku inventory.SKU, book inventory.Book) ([]inventory.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{SKU: sku, Book: book}
	result := make([]inventory.Adjustment, len(m.books[k]))
	copy(result, m.books[k])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) SKUs(_ context.Context) ([]inventory.SKU, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[inventory.SKU]bool)
	var out []inventory.SKU
	for k := range m.books {
		if !seen[k.SKU] {
			seen[k.SKU] = true
			out = append(out, k.SKU)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// RECONCILIATION RUNS (inventory.RunRecorder)
// =============================================================================

func (m *Memory) SaveReconciliationRun(_ context.Context, run inventory.ReconciliationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.SKU] = append(m.runs[run.SKU], run)
	return nil
}

// ReconciliationRuns returns the newest runs first.
func (m *Memory) ReconciliationRuns(_ context.Context, sku inventory.SKU, limit int) ([]inventory.ReconciliationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.runs[sku]
	var out []inventory.ReconciliationRun
	for i := len(runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, runs[i])
	}
	return out, nil
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

// Failing wraps a Store and fails writes while Fail returns an error.
// Used to check that a failed journal write leaves listings unchanged.
type Failing struct {
	inventory.Store
	Fail func(adjs []inventory.Adjustment) error
}

func (f *Failing) Append(ctx context.Context, adj inventory.Adjustment) error {
	if f.Fail != nil {
		if err := f.Fail([]inventory.Adjustment{adj}); err != nil {
			return err
		}
	}
	return f.Store.Append(ctx, adj)
}

func (f *Failing) AppendBatch(ctx context.Context, adjs []inventory.Adjustment) error {
	if f.Fail != nil {
		if err := f.Fail(adjs); err != nil {
			return err
		}
	}
	return f.Store.AppendBatch(ctx, adjs)
}
