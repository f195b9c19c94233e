/*
scheduler.go - Automated sync and reconciliation scheduler

PURPOSE:
  Periodically runs Engine.Cycle (sync, pull, sync, reconcile) for every
  open listing so the remote converges without anyone calling the API.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass covers every SKU the engine knows about
  - SKUs run in parallel, at most Concurrency at a time; one SKU's cycles
    never overlap because Cycle holds the listing lock
  - A failing SKU is logged and retried on the next pass

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 minute)
  - Concurrency:   Parallel SKUs per pass (default: 4)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - inventory/engine.go: Cycle
  - handlers.go: Reconcile endpoint (manual check)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/stock-sync/inventory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PassSummary counts the outcomes of one scheduler pass.
type PassSummary struct {
	SKUs     int
	Failed   int
	ByState  map[inventory.ReconcileState]int
	Duration time.Duration
}

// ReconciliationScheduler handles automated sync and reconciliation.
type ReconciliationScheduler struct {
	Engine        *inventory.Engine
	Logger        *zap.Logger
	CheckInterval time.Duration
	Concurrency   int
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(engine *inventory.Engine, logger *zap.Logger) *ReconciliationScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationScheduler{
		Engine:        engine,
		Logger:        logger.Named("scheduler"),
		CheckInterval: time.Minute,
		Concurrency:   4,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.Logger.Info("started", zap.Duration("interval", rs.CheckInterval), zap.Int("concurrency", rs.Concurrency))
}

// Stop stops the scheduler and waits for an in-flight pass to return.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.cancel()
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("stopped")
	}
}

func (rs *ReconciliationScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndProcess(ctx)
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReconciliationScheduler) checkAndProcess(ctx context.Context) PassSummary {
	start := time.Now()
	skus := rs.Engine.SKUs()
	summary := PassSummary{SKUs: len(skus), ByState: make(map[inventory.ReconcileState]int)}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(rs.Concurrency, 1))

	for _, sku := range skus {
		g.Go(func() error {
			res, err := rs.Engine.Cycle(ctx, sku)

			mu.Lock()
			defer mu.Unlock()
			if res.Reconciliation.State != "" {
				summary.ByState[res.Reconciliation.State]++
			}
			if err != nil && res.Reconciliation.State != inventory.StateManualReview {
				summary.Failed++
				rs.Logger.Warn("cycle failed",
					zap.String("sku", string(sku)),
					zap.Bool("retryable", inventory.IsRetryable(err)),
					zap.Error(err))
			}
			// A failing SKU must not cancel the others.
			return nil
		})
	}
	g.Wait()

	summary.Duration = time.Since(start)
	if summary.SKUs > 0 {
		rs.Logger.Info("pass completed",
			zap.Int("skus", summary.SKUs),
			zap.Int("failed", summary.Failed),
			zap.Int("reconciled", summary.ByState[inventory.StateReconciled]),
			zap.Int("caution", summary.ByState[inventory.StateCaution]),
			zap.Int("corrected", summary.ByState[inventory.StateCorrected]),
			zap.Int("manual_review", summary.ByState[inventory.StateManualReview]),
			zap.Duration("duration", summary.Duration),
			zap.Time("next_run", rs.GetNextRunTime()))
	}
	return summary
}

// RunNow runs one pass synchronously (for testing/admin).
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) PassSummary {
	return rs.checkAndProcess(ctx)
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *ReconciliationScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(rs.CheckInterval)
}
