/*
ingest.go - Remote order ingestion

PURPOSE:
  Pulls orders the remote platform accepted and folds each one into the
  local ledger (-quantity) and the shadow model (-quantity). The remote
  count already reflects the order, so the shadow must track it without a
  second push.

IDEMPOTENCY:
  Orders carry stable IDs. An ID already ingested is skipped, counted as a
  duplicate and acknowledged again. The journal's idempotency keys
  (<sku>/order/<id>/local|shadow) catch the same case across restarts.
  Pulling the same set twice changes nothing the second time.

REJECTED ORDERS:
  Orders without an ID, with a non-positive quantity or for another SKU are
  skipped with a warning. They are not acknowledged.

SEE ALSO:
  - listing.go: ingestOrder journaling
  - remote.go: OrderAcknowledger
*/
package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// IngestResult summarizes one pull.
type IngestResult struct {
	Ingested   int
	Duplicates int
	Rejected   int
	Consumed   int64
	OrderIDs   []OrderID
}

type OrderIngester struct {
	Remote   RemotePlatform
	Logger   *zap.Logger
	Recorder Recorder
}

// PullOrders ingests every remote order not yet seen by l.
// A failed listing call leaves l untouched.
func (i *OrderIngester) PullOrders(ctx context.Context, l *Listing) (IngestResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return i.pull(ctx, l)
}

func (i *OrderIngester) pull(ctx context.Context, l *Listing) (IngestResult, error) {
	var res IngestResult
	log := i.logger().With(zap.String("sku", string(l.SKU)))

	orders, err := i.Remote.ListPendingOrders(ctx, l.SKU)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrPullFailed, l.SKU, err)
	}

	var ack []OrderID
	for _, o := range orders {
		if o.ID == "" || o.Quantity <= 0 || (o.SKU != "" && o.SKU != l.SKU) {
			res.Rejected++
			log.Warn("rejecting malformed remote order",
				zap.String("order_id", string(o.ID)),
				zap.String("order_sku", string(o.SKU)),
				zap.Int64("quantity", o.Quantity))
			continue
		}
		if l.hasOrder(o.ID) {
			i.duplicate(log, &res, l.SKU, o.ID)
			ack = append(ack, o.ID)
			continue
		}

		err := l.ingestOrder(ctx, o)
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			i.duplicate(log, &res, l.SKU, o.ID)
			ack = append(ack, o.ID)
			continue
		}
		if err != nil {
			i.recorder().OrdersIngested(l.SKU, res.Ingested, res.Duplicates, res.Consumed)
			return res, fmt.Errorf("ingest order %s: %w", o.ID, err)
		}

		res.Ingested++
		res.Consumed += o.Quantity
		res.OrderIDs = append(res.OrderIDs, o.ID)
		ack = append(ack, o.ID)
		log.Info("order ingested",
			zap.String("order_id", string(o.ID)),
			zap.Int64("quantity", o.Quantity),
			zap.Int64("local", l.local.Available()))
	}

	if acker, ok := i.Remote.(OrderAcknowledger); ok && len(ack) > 0 {
		if err := acker.AcknowledgeOrders(ctx, l.SKU, ack); err != nil {
			// Re-listed orders are skipped by ID, so this is only noise.
			log.Warn("order acknowledgement failed", zap.Int("orders", len(ack)), zap.Error(err))
		}
	}

	i.recorder().OrdersIngested(l.SKU, res.Ingested, res.Duplicates, res.Consumed)
	return res, nil
}

func (i *OrderIngester) duplicate(log *zap.Logger, res *IngestResult, sku SKU, id OrderID) {
	res.Duplicates++
	log.Debug("skipping duplicate order", zap.Error(&DuplicateOrderError{SKU: sku, OrderID: id}))
}

func (i *OrderIngester) logger() *zap.Logger {
	if i.Logger == nil {
		return zap.NewNop()
	}
	return i.Logger
}

func (i *OrderIngester) recorder() Recorder {
	if i.Recorder == nil {
		return nopRecorder{}
	}
	return i.Recorder
}
