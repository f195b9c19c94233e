/*
listing.go - Per-SKU owner of the local ledger and shadow model

PURPOSE:
  A Listing is the single owner of everything the engine mutates for one SKU:
  the local ledger, the shadow model, the outbox, the index of ingested
  orders, the pending push and the caution timer. Sync, ingestion and
  reconciliation all take the listing's lock, so for one SKU they never
  interleave. Different SKUs have different listings and run in parallel.

JOURNAL FIRST:
  Every change is written to the Store before it is applied in memory. If
  the write fails, the in-memory state is untouched and the operation can be
  retried. A Listing without a Store is purely in-memory.

REPLAY:
  OpenListing rebuilds the projections from the journal:
    local  <- local book (orders re-indexed from KindOrder entries)
    shadow <- shadow book
    outbox <- outbox book; the newest attempt no shadow entry confirms
              becomes the pending push again

SEE ALSO:
  - sync.go, ingest.go, reconcile.go: Operations on a listing
  - engine.go: Registry of listings
*/
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// LISTING
// =============================================================================

type Listing struct {
	SKU SKU

	mu      sync.Mutex
	store   Store
	now     func() time.Time
	local   *Ledger
	shadow  *ShadowModel
	outbox  *Ledger
	orders  map[OrderID]Order
	pending *PushAttempt
	caution time.Time
}

// NewListing returns an empty in-memory listing.
func NewListing(sku SKU) *Listing {
	return newListing(sku, nil, nil)
}

func newListing(sku SKU, store Store, now func() time.Time) *Listing {
	if now == nil {
		now = time.Now
	}
	return &Listing{
		SKU:    sku,
		store:  store,
		now:    now,
		local:  NewLedger(),
		shadow: NewShadowModel(),
		outbox: NewLedger(),
		orders: make(map[OrderID]Order),
	}
}

// OpenListing rebuilds a listing from the store's journal.
func OpenListing(ctx context.Context, store Store, sku SKU) (*Listing, error) {
	return openListing(ctx, store, sku, nil)
}

func openListing(ctx context.Context, store Store, sku SKU, now func() time.Time) (*Listing, error) {
	if sku == "" {
		return nil, ErrInvalidSKU
	}
	l := newListing(sku, store, now)
	if store == nil {
		return l, nil
	}

	local, err := store.Load(ctx, sku, BookLocal)
	if err != nil {
		return nil, fmt.Errorf("load local book for %s: %w", sku, err)
	}
	for _, adj := range local {
		l.local.Append(adj)
		if adj.Kind == KindOrder {
			l.indexOrder(orderFromAdjustment(adj))
		}
	}

	shadow, err := store.Load(ctx, sku, BookShadow)
	if err != nil {
		return nil, fmt.Errorf("load shadow book for %s: %w", sku, err)
	}
	confirmed := make(map[string]bool)
	for _, adj := range shadow {
		l.shadow.fold(adj)
		if adj.Kind == KindPush {
			confirmed[adj.ReferenceID] = true
		}
	}

	outbox, err := store.Load(ctx, sku, BookOutbox)
	if err != nil {
		return nil, fmt.Errorf("load outbox for %s: %w", sku, err)
	}
	for _, adj := range outbox {
		l.outbox.Append(adj)
	}
	// A new attempt is only created once the previous one is confirmed,
	// so only the newest can still be pending.
	if n := len(outbox); n > 0 && !confirmed[string(outbox[n-1].ID)] {
		l.pending = attemptFromAdjustment(outbox[n-1])
	}

	return l, nil
}

// =============================================================================
// LOCAL COUNT CHANGES
// =============================================================================

// CountChange is a local change to the system of record: a receipt, a
// shrinkage, a cycle count correction. Quantity is signed.
type CountChange struct {
	Quantity       int64
	Reason         string
	IdempotencyKey string
	OccurredAt     time.Time
}

// Record appends a count change to the local ledger.
// A reused IdempotencyKey fails with ErrDuplicateIdempotencyKey.
func (l *Listing) Record(ctx context.Context, c CountChange) (Adjustment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	adj := Adjustment{
		ID:         NewAdjustmentID(),
		SKU:        l.SKU,
		Book:       BookLocal,
		Kind:       KindCount,
		Quantity:   c.Quantity,
		Status:     StatusApplied,
		Reason:     c.Reason,
		OccurredAt: c.OccurredAt,
		CreatedAt:  now,
	}
	if adj.OccurredAt.IsZero() {
		adj.OccurredAt = now
	}
	adj.IdempotencyKey = c.IdempotencyKey
	if adj.IdempotencyKey == "" {
		adj.IdempotencyKey = fmt.Sprintf("%s/count/%s", l.SKU, adj.ID)
	}

	if err := l.journal(ctx, adj); err != nil {
		return Adjustment{}, err
	}
	l.local.Append(adj)
	return adj, nil
}

// =============================================================================
// READ-ONLY VIEWS
// =============================================================================

// Available is the local count. Safe without the listing lock.
func (l *Listing) Available() int64 { return l.local.Available() }

// ShadowAvailable is the shadow count. Safe without the listing lock.
func (l *Listing) ShadowAvailable() int64 { return l.shadow.Available() }

// Snapshot returns a consistent view of the listing.
func (l *Listing) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

func (l *Listing) snapshot() Snapshot {
	local, shadow := l.local.Available(), l.shadow.Available()
	s := Snapshot{
		SKU:            l.SKU,
		Local:          local,
		Shadow:         shadow,
		Outstanding:    local - shadow,
		OrdersIngested: len(l.orders),
		CautionSince:   l.caution,
		AsOf:           l.now().UTC(),
	}
	if l.pending != nil {
		p := *l.pending
		s.PendingPush = &p
	}
	return s
}

// Entries returns a copy of one book.
func (l *Listing) Entries(book Book) []Adjustment {
	switch book {
	case BookLocal:
		return l.local.Entries()
	case BookShadow:
		return l.shadow.Entries()
	case BookOutbox:
		return l.outbox.Entries()
	}
	return nil
}

// Orders returns the ingested orders sorted by placement time.
func (l *Listing) Orders() []Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Order, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

// =============================================================================
// JOURNALED MUTATIONS (caller holds l.mu)
// =============================================================================

func (l *Listing) journal(ctx context.Context, adjs ...Adjustment) error {
	if l.store == nil {
		return nil
	}
	if len(adjs) == 1 {
		return l.store.Append(ctx, adjs[0])
	}
	return l.store.AppendBatch(ctx, adjs)
}

func (l *Listing) beginPush(ctx context.Context, delta int64) (PushAttempt, error) {
	now := l.now().UTC()
	id := NewAdjustmentID()
	adj := Adjustment{
		ID:             id,
		SKU:            l.SKU,
		Book:           BookOutbox,
		Kind:           KindAttempt,
		Quantity:       delta,
		Status:         StatusIndeterminate,
		IdempotencyKey: fmt.Sprintf("%s/push/%s", l.SKU, id),
		OccurredAt:     now,
		CreatedAt:      now,
	}
	if err := l.journal(ctx, adj); err != nil {
		return PushAttempt{}, fmt.Errorf("journal push attempt: %w", err)
	}
	l.outbox.Append(adj)
	l.pending = attemptFromAdjustment(adj)
	return *l.pending, nil
}

func (l *Listing) confirmPush(ctx context.Context, a PushAttempt) error {
	now := l.now().UTC()
	adj := Adjustment{
		ID:             NewAdjustmentID(),
		SKU:            l.SKU,
		Book:           BookShadow,
		Kind:           KindPush,
		Quantity:       a.Delta,
		Status:         StatusApplied,
		ReferenceID:    string(a.ID),
		IdempotencyKey: a.IdempotencyKey + "/confirm",
		OccurredAt:     now,
		CreatedAt:      now,
	}
	if err := l.journal(ctx, adj); err != nil {
		return fmt.Errorf("journal push confirmation: %w", err)
	}
	l.shadow.fold(adj)
	l.pending = nil
	return nil
}

func (l *Listing) ingestOrder(ctx context.Context, o Order) error {
	now := l.now().UTC()
	occurred := o.PlacedAt
	if occurred.IsZero() {
		occurred = now
	}
	base := Adjustment{
		SKU:         l.SKU,
		Kind:        KindOrder,
		Quantity:    -o.Quantity,
		Status:      StatusApplied,
		ReferenceID: string(o.ID),
		OccurredAt:  occurred,
		CreatedAt:   now,
	}
	local, shadow := base, base
	local.ID, local.Book = NewAdjustmentID(), BookLocal
	local.IdempotencyKey = fmt.Sprintf("%s/order/%s/local", l.SKU, o.ID)
	shadow.ID, shadow.Book = NewAdjustmentID(), BookShadow
	shadow.IdempotencyKey = fmt.Sprintf("%s/order/%s/shadow", l.SKU, o.ID)

	if err := l.journal(ctx, local, shadow); err != nil {
		return err
	}
	l.local.Append(local)
	l.shadow.fold(shadow)
	l.indexOrder(orderFromAdjustment(local))
	return nil
}

// observeDrift folds unexplained remote drift into the shadow so that the
// next push carries the correction.
func (l *Listing) observeDrift(ctx context.Context, drift int64) error {
	now := l.now().UTC()
	id := NewAdjustmentID()
	adj := Adjustment{
		ID:             id,
		SKU:            l.SKU,
		Book:           BookShadow,
		Kind:           KindDrift,
		Quantity:       drift,
		Status:         StatusApplied,
		Reason:         "remote drift observed during reconciliation",
		IdempotencyKey: fmt.Sprintf("%s/drift/%s", l.SKU, id),
		OccurredAt:     now,
		CreatedAt:      now,
	}
	if err := l.journal(ctx, adj); err != nil {
		return fmt.Errorf("journal observed drift: %w", err)
	}
	l.shadow.fold(adj)
	return nil
}

func (l *Listing) hasOrder(id OrderID) bool {
	_, ok := l.orders[id]
	return ok
}

func (l *Listing) indexOrder(o Order) {
	l.orders[o.ID] = o
}

func orderFromAdjustment(adj Adjustment) Order {
	return Order{
		ID:       OrderID(adj.ReferenceID),
		SKU:      adj.SKU,
		Quantity: -adj.Quantity,
		PlacedAt: adj.OccurredAt,
	}
}
