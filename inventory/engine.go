/*
engine.go - Registry of listings and entry point for callers

PURPOSE:
  Wires the SyncEngine, OrderIngester and ReconciliationMonitor to one Store
  and one RemotePlatform, and owns one Listing per SKU. Callers (HTTP API,
  scheduler, tests) go through the Engine and never hold a ledger directly.

CONCURRENCY:
  Operations on the same SKU serialize on that listing's lock. Operations on
  different SKUs are independent and may run in parallel.

USAGE:
  engine := inventory.NewEngine(store, remote,
      inventory.WithLogger(logger),
      inventory.WithPolicy(policy))
  engine.Record(ctx, "sku-1", inventory.CountChange{Quantity: 10})
  applied, err := engine.Sync(ctx, "sku-1")

SEE ALSO:
  - listing.go: Per-SKU state
  - api/scheduler.go: Periodic Cycle over all SKUs
*/
package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// OPTIONS
// =============================================================================

type engineConfig struct {
	logger   *zap.Logger
	recorder Recorder
	policy   ReconcilePolicy
	now      func() time.Time
}

type Option func(*engineConfig)

func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *engineConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithPolicy(p ReconcilePolicy) Option {
	return func(c *engineConfig) { c.policy = p }
}

// WithClock overrides time.Now for timestamps and the debounce window.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) { c.now = now }
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store    Store
	Remote   RemotePlatform
	Syncer   *SyncEngine
	Ingester *OrderIngester
	Monitor  *ReconciliationMonitor
	Logger   *zap.Logger

	now      func() time.Time
	mu       sync.Mutex
	listings map[SKU]*Listing
}

// NewEngine builds an engine. store may be nil for a purely in-memory engine.
func NewEngine(store Store, remote RemotePlatform, opts ...Option) *Engine {
	cfg := engineConfig{
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		policy:   DefaultReconcilePolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	syncEngine := &SyncEngine{Remote: remote, Logger: cfg.logger, Recorder: cfg.recorder}
	ingester := &OrderIngester{Remote: remote, Logger: cfg.logger, Recorder: cfg.recorder}
	monitor := &ReconciliationMonitor{
		Sync:     syncEngine,
		Ingester: ingester,
		Remote:   remote,
		Policy:   cfg.policy,
		Now:      cfg.now,
		Logger:   cfg.logger,
		Recorder: cfg.recorder,
	}
	if runs, ok := store.(RunRecorder); ok {
		monitor.Runs = runs
	}

	return &Engine{
		Store:    store,
		Remote:   remote,
		Syncer:   syncEngine,
		Ingester: ingester,
		Monitor:  monitor,
		Logger:   cfg.logger,
		now:      cfg.now,
		listings: make(map[SKU]*Listing),
	}
}

// Open loads every SKU known to the store. Call once at startup.
func (e *Engine) Open(ctx context.Context) error {
	if e.Store == nil {
		return nil
	}
	skus, err := e.Store.SKUs(ctx)
	if err != nil {
		return fmt.Errorf("list skus: %w", err)
	}
	for _, sku := range skus {
		if _, err := e.Listing(ctx, sku); err != nil {
			return err
		}
	}
	return nil
}

// Listing returns the listing for sku, opening it from the store if needed.
func (e *Engine) Listing(ctx context.Context, sku SKU) (*Listing, error) {
	if sku == "" {
		return nil, ErrInvalidSKU
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if l, ok := e.listings[sku]; ok {
		return l, nil
	}
	l, err := openListing(ctx, e.Store, sku, e.now)
	if err != nil {
		return nil, err
	}
	if p := l.pending; p != nil {
		e.Logger.Warn("resuming unconfirmed push",
			zap.String("sku", string(sku)),
			zap.String("attempt_id", string(p.ID)),
			zap.Int64("delta", p.Delta))
	}
	e.listings[sku] = l
	return l, nil
}

// Lookup returns an already-open listing.
func (e *Engine) Lookup(sku SKU) (*Listing, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.listings[sku]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, sku)
	}
	return l, nil
}

// SKUs returns the open listings' SKUs, sorted.
func (e *Engine) SKUs() []SKU {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SKU, 0, len(e.listings))
	for sku := range e.listings {
		out = append(out, sku)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// OPERATIONS
// =============================================================================

func (e *Engine) Record(ctx context.Context, sku SKU, c CountChange) (Adjustment, error) {
	l, err := e.Listing(ctx, sku)
	if err != nil {
		return Adjustment{}, err
	}
	return l.Record(ctx, c)
}

func (e *Engine) Sync(ctx context.Context, sku SKU) (int64, error) {
	l, err := e.Listing(ctx, sku)
	if err != nil {
		return 0, err
	}
	return e.Syncer.Sync(ctx, l)
}

func (e *Engine) PullOrders(ctx context.Context, sku SKU) (IngestResult, error) {
	l, err := e.Listing(ctx, sku)
	if err != nil {
		return IngestResult{}, err
	}
	return e.Ingester.PullOrders(ctx, l)
}

func (e *Engine) Reconcile(ctx context.Context, sku SKU) (Reconciliation, error) {
	l, err := e.Listing(ctx, sku)
	if err != nil {
		return Reconciliation{}, err
	}
	return e.Monitor.Check(ctx, l)
}

// CycleResult is the outcome of one scheduled pass over a SKU.
type CycleResult struct {
	SKU            SKU
	Pushed         int64
	Reconciliation Reconciliation
}

// Cycle runs sync, then a reconciliation check (which pulls orders and
// syncs again before comparing), holding the listing lock throughout.
func (e *Engine) Cycle(ctx context.Context, sku SKU) (CycleResult, error) {
	res := CycleResult{SKU: sku}
	l, err := e.Listing(ctx, sku)
	if err != nil {
		return res, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pushed, err := e.Syncer.sync(ctx, l)
	res.Pushed = pushed
	if err != nil {
		return res, err
	}
	rep, err := e.Monitor.check(ctx, l)
	e.Monitor.saveRun(ctx, rep, err)
	res.Reconciliation = rep
	return res, err
}
