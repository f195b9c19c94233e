/*
sync.go - Delta push from the local ledger to the remote platform

PURPOSE:
  Pushes exactly the outstanding delta (local - shadow) to the remote
  platform and folds it into the shadow model once the remote confirms.

WHY DELTAS?
  The remote platform consumes stock on its own by accepting orders. An
  absolute "you have 8" would overwrite those sales. A relative "-2" lets
  both sides' changes coexist.

PUSH DISCIPLINE:
  1. A pending attempt (sent earlier, never confirmed) is re-pushed first,
     with the SAME idempotency key and delta. The remote applies a key at
     most once, so a push that actually landed is not applied twice.
  2. delta = local - shadow. Zero is a no-op.
  3. A new attempt is journaled to the outbox, pushed, and folded into the
     shadow only on confirmation.

  The shadow model only ever moves on confirmed pushes. An unconfirmed push
  returns a PushError and leaves local and shadow exactly as they were.

EXAMPLE:
  applied, err := engine.Sync(ctx, listing)
  if errors.Is(err, inventory.ErrPushFailed) {
      // Safe to call Sync again later.
  }

SEE ALSO:
  - listing.go: beginPush / confirmPush journaling
  - reconcile.go: Corrections reuse this discipline
*/
package inventory

import (
	"context"

	"go.uber.org/zap"
)

// =============================================================================
// SYNC ENGINE
// =============================================================================

type SyncEngine struct {
	Remote   RemotePlatform
	Logger   *zap.Logger
	Recorder Recorder
}

// Sync pushes the outstanding delta for l and returns the amount the remote
// confirmed during this call (including a re-pushed pending attempt).
func (e *SyncEngine) Sync(ctx context.Context, l *Listing) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return e.sync(ctx, l)
}

func (e *SyncEngine) sync(ctx context.Context, l *Listing) (int64, error) {
	var applied int64

	if l.pending != nil {
		n, err := e.push(ctx, l, *l.pending)
		if err != nil {
			return 0, err
		}
		applied += n
	}

	delta := l.local.Available() - l.shadow.Available()
	if delta == 0 {
		return applied, nil
	}

	attempt, err := l.beginPush(ctx, delta)
	if err != nil {
		return applied, err
	}
	n, err := e.push(ctx, l, attempt)
	if err != nil {
		return applied, err
	}
	return applied + n, nil
}

func (e *SyncEngine) push(ctx context.Context, l *Listing, attempt PushAttempt) (int64, error) {
	log := e.logger().With(
		zap.String("sku", string(l.SKU)),
		zap.String("attempt_id", string(attempt.ID)),
		zap.Int64("delta", attempt.Delta),
	)

	err := e.Remote.ApplyAdjustment(ctx, l.SKU, attempt.Delta, attempt.IdempotencyKey)
	e.recorder().PushAttempted(l.SKU, attempt.Delta, err)
	if err != nil {
		log.Warn("push not confirmed, attempt left pending", zap.Error(err))
		return 0, &PushError{SKU: l.SKU, Attempt: attempt, Err: err}
	}

	// The remote has applied the key. If journaling the confirmation fails
	// the attempt stays pending and the retry is deduplicated remotely.
	if err := l.confirmPush(ctx, attempt); err != nil {
		log.Error("push confirmed remotely but not journaled", zap.Error(err))
		return 0, err
	}

	log.Info("push confirmed", zap.Int64("shadow", l.shadow.Available()))
	return attempt.Delta, nil
}

func (e *SyncEngine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *SyncEngine) recorder() Recorder {
	if e.Recorder == nil {
		return nopRecorder{}
	}
	return e.Recorder
}
