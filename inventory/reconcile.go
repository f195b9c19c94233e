/*
reconcile.go - Drift detection and asymmetric correction

PURPOSE:
  Compares local and remote availability after known orders are pulled and
  the outstanding delta is pushed, and decides what to do with residual
  drift that neither explains.

STATE MACHINE (drift = local - remote):
  drift == 0  RECONCILED     Nothing to do. Caution timer cleared.
  drift <  0  CORRECTED      The remote overstates stock and can oversell.
                             Correct immediately.
  drift >  0  CAUTION        The remote may be reporting orders we have not
                             pulled yet. Start (or keep) the caution timer and
                             do nothing until DebounceWindow has passed.
              then:          Still positive after the window:
                             within tolerance -> CORRECTED
                             outside          -> MANUAL_REVIEW (DivergenceError)

  Overselling on the remote is worse than a stale read, so negative drift is
  corrected at once while positive drift waits.

HOW A CORRECTION WORKS:
  The observed drift (remote - shadow) is folded into the shadow as a
  KindDrift entry, so the shadow matches what the remote reports. The
  normal push discipline then sends local - shadow, which is exactly the
  correction, with the same idempotency and pending-retry guarantees.

ANOMALIES:
  A negative local or remote count is reported as NegativeAvailabilityError
  and never corrected: it may be a legitimate backorder.

SEE ALSO:
  - sync.go: Push discipline used for the correction
  - store.go: RunRecorder keeps a history of checks
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// POLICY
// =============================================================================

type ReconcileState string

const (
	StateReconciled        ReconcileState = "reconciled"
	StateCaution           ReconcileState = "caution"
	StateCorrected         ReconcileState = "corrected"
	StateCorrectionPending ReconcileState = "correction_pending"
	StateManualReview      ReconcileState = "manual_review"
)

// ReconcilePolicy configures the positive-drift side of the monitor.
type ReconcilePolicy struct {
	// DebounceWindow is how long positive drift may persist before it is
	// escalated.
	DebounceWindow time.Duration

	// AutoCorrectLimit caps the drift (in units) corrected without review.
	// Zero means no cap.
	AutoCorrectLimit int64

	// AutoCorrectRatio caps drift as a fraction of the local count,
	// e.g. 0.1 for 10%. Zero means no cap.
	AutoCorrectRatio decimal.Decimal
}

const DefaultDebounceWindow = 5 * time.Minute

func DefaultReconcilePolicy() ReconcilePolicy {
	return ReconcilePolicy{DebounceWindow: DefaultDebounceWindow}
}

// WithinTolerance reports whether drift may be corrected automatically.
func (p ReconcilePolicy) WithinTolerance(drift, local int64) bool {
	magnitude := abs(drift)
	if p.AutoCorrectLimit > 0 && magnitude > p.AutoCorrectLimit {
		return false
	}
	if p.AutoCorrectRatio.IsPositive() {
		base := abs(local)
		if base == 0 {
			base = 1
		}
		ratio := decimal.NewFromInt(magnitude).Div(decimal.NewFromInt(base))
		if ratio.GreaterThan(p.AutoCorrectRatio) {
			return false
		}
	}
	return true
}

// =============================================================================
// REPORT
// =============================================================================

type Reconciliation struct {
	SKU          SKU
	State        ReconcileState
	Local        int64
	Remote       int64
	Drift        int64
	Correction   int64
	CautionSince time.Time
	Ingested     IngestResult
	Pushed       int64
	Anomalies    []error
	CheckedAt    time.Time
}

// =============================================================================
// MONITOR
// =============================================================================

type ReconciliationMonitor struct {
	Sync     *SyncEngine
	Ingester *OrderIngester
	Remote   RemotePlatform
	Policy   ReconcilePolicy
	Runs     RunRecorder
	Now      func() time.Time
	Logger   *zap.Logger
	Recorder Recorder
}

// Check pulls orders, pushes the outstanding delta, then applies the drift
// policy. A manual-review outcome returns the report together with a
// *DivergenceError.
func (m *ReconciliationMonitor) Check(ctx context.Context, l *Listing) (Reconciliation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep, err := m.check(ctx, l)
	m.saveRun(ctx, rep, err)
	return rep, err
}

func (m *ReconciliationMonitor) check(ctx context.Context, l *Listing) (Reconciliation, error) {
	now := m.now()
	rep := Reconciliation{SKU: l.SKU, CheckedAt: now}
	log := m.logger().With(zap.String("sku", string(l.SKU)))

	ingested, err := m.Ingester.pull(ctx, l)
	rep.Ingested = ingested
	if err != nil {
		return rep, err
	}
	pushed, err := m.Sync.sync(ctx, l)
	rep.Pushed = pushed
	if err != nil {
		return rep, err
	}

	remote, err := m.Remote.Available(ctx, l.SKU)
	if err != nil {
		return rep, fmt.Errorf("%w: %s: %w", ErrRemoteUnavailable, l.SKU, err)
	}
	local := l.local.Available()
	rep.Local, rep.Remote, rep.Drift = local, remote, local-remote
	rep.Anomalies = m.anomalies(log, l.SKU, local, remote)
	m.recorder().Drift(l.SKU, rep.Drift)

	switch {
	case rep.Drift == 0:
		l.caution = time.Time{}
		rep.State = StateReconciled
		return rep, nil

	case rep.Drift < 0:
		l.caution = time.Time{}
		log.Warn("remote overstates availability, correcting",
			zap.Int64("local", local), zap.Int64("remote", remote))
		return m.correct(ctx, l, rep)
	}

	if l.caution.IsZero() {
		l.caution = now
	}
	rep.CautionSince = l.caution
	if now.Sub(l.caution) < m.Policy.DebounceWindow {
		rep.State = StateCaution
		log.Info("positive drift, waiting for in-flight orders",
			zap.Int64("drift", rep.Drift), zap.Time("caution_since", l.caution))
		return rep, nil
	}

	if !m.Policy.WithinTolerance(rep.Drift, local) {
		rep.State = StateManualReview
		m.recorder().ManualReview(l.SKU)
		err := &DivergenceError{
			SKU:          l.SKU,
			Drift:        rep.Drift,
			Local:        local,
			Remote:       remote,
			CautionSince: l.caution,
		}
		log.Error("drift outside auto-correct tolerance", zap.Error(err))
		return rep, err
	}

	log.Warn("positive drift outlived debounce window, correcting",
		zap.Int64("drift", rep.Drift), zap.Time("caution_since", l.caution))
	l.caution = time.Time{}
	return m.correct(ctx, l, rep)
}

func (m *ReconciliationMonitor) correct(ctx context.Context, l *Listing, rep Reconciliation) (Reconciliation, error) {
	if observed := rep.Remote - l.shadow.Available(); observed != 0 {
		if err := l.observeDrift(ctx, observed); err != nil {
			return rep, err
		}
	}

	applied, err := m.Sync.sync(ctx, l)
	rep.Correction = applied
	if err != nil {
		rep.State = StateCorrectionPending
		return rep, err
	}
	rep.State = StateCorrected
	m.recorder().Corrected(l.SKU, applied)
	return rep, nil
}

func (m *ReconciliationMonitor) anomalies(log *zap.Logger, sku SKU, local, remote int64) []error {
	var out []error
	if local < 0 {
		out = append(out, &NegativeAvailabilityError{SKU: sku, Side: SideLocal, Available: local})
		m.recorder().NegativeAvailability(sku, SideLocal)
	}
	if remote < 0 {
		out = append(out, &NegativeAvailabilityError{SKU: sku, Side: SideRemote, Available: remote})
		m.recorder().NegativeAvailability(sku, SideRemote)
	}
	for _, err := range out {
		log.Warn("negative availability", zap.Error(err))
	}
	return out
}

func (m *ReconciliationMonitor) saveRun(ctx context.Context, rep Reconciliation, checkErr error) {
	if m.Runs == nil {
		return
	}
	run := ReconciliationRun{
		ID:           uuid.NewString(),
		SKU:          rep.SKU,
		State:        rep.State,
		Local:        rep.Local,
		Remote:       rep.Remote,
		Drift:        rep.Drift,
		Correction:   rep.Correction,
		CautionSince: rep.CautionSince,
		CheckedAt:    rep.CheckedAt,
	}
	if checkErr != nil {
		run.Error = checkErr.Error()
	}
	if err := m.Runs.SaveReconciliationRun(ctx, run); err != nil {
		m.logger().Warn("failed to save reconciliation run",
			zap.String("sku", string(rep.SKU)), zap.Error(err))
	}
}

func (m *ReconciliationMonitor) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}

func (m *ReconciliationMonitor) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

func (m *ReconciliationMonitor) recorder() Recorder {
	if m.Recorder == nil {
		return nopRecorder{}
	}
	return m.Recorder
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
