package inventory

import "context"

// RemotePlatform is the remote system of record. Calls to it are the only
// suspension points of the engine and any of them may fail.
type RemotePlatform interface {
	// Available is the remote count, authoritative for the remote side.
	Available(ctx context.Context, sku SKU) (int64, error)

	// ApplyAdjustment applies a relative correction. Implementations must
	// apply a given idempotencyKey at most once.
	ApplyAdjustment(ctx context.Context, sku SKU, delta int64, idempotencyKey string) error

	// ListPendingOrders enumerates orders not yet acknowledged locally.
	ListPendingOrders(ctx context.Context, sku SKU) ([]Order, error)
}

// OrderPlacer is implemented by remotes that can simulate a sale.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, sku SKU, quantity int64) (OrderID, error)
}

// OrderAcknowledger is implemented by remotes that stop listing an order
// once the local side confirms it was ingested.
type OrderAcknowledger interface {
	AcknowledgeOrders(ctx context.Context, sku SKU, ids []OrderID) error
}
