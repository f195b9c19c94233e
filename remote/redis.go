package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/warp/stock-sync/inventory"
)

// =============================================================================
// REDIS PLATFORM - Shared sandbox
// =============================================================================
//
// Keys (prefix defaults to "remote"):
//   <prefix>:<sku>:available       integer count
//   <prefix>:<sku>:pending         list of unacknowledged order IDs
//   <prefix>:<sku>:order:<id>      hash {quantity, placed_at}
//   <prefix>:applied:<key>         idempotency marker
//
// ApplyAdjustment sets the marker and increments the count in one script,
// so a key is applied at most once even with concurrent callers.

const DefaultPrefix = "remote"

var applyScript = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX') then
	redis.call('INCRBY', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (r *Redis) availableKey(sku inventory.SKU) string {
	return fmt.Sprintf("%s:%s:available", r.prefix, sku)
}

func (r *Redis) pendingKey(sku inventory.SKU) string {
	return fmt.Sprintf("%s:%s:pending", r.prefix, sku)
}

func (r *Redis) orderKey(sku inventory.SKU, id inventory.OrderID) string {
	return fmt.Sprintf("%s:%s:order:%s", r.prefix, sku, id)
}

func (r *Redis) appliedKey(idempotencyKey string) string {
	return fmt.Sprintf("%s:applied:%s", r.prefix, idempotencyKey)
}

func (r *Redis) Available(ctx context.Context, sku inventory.SKU) (int64, error) {
	n, err := r.client.Get(ctx, r.availableKey(sku)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read available for %s: %w", sku, err)
	}
	return n, nil
}

func (r *Redis) ApplyAdjustment(ctx context.Context, sku inventory.SKU, delta int64, idempotencyKey string) error {
	if idempotencyKey == "" {
		return r.client.IncrBy(ctx, r.availableKey(sku), delta).Err()
	}
	keys := []string{r.appliedKey(idempotencyKey), r.availableKey(sku)}
	if err := applyScript.Run(ctx, r.client, keys, delta).Err(); err != nil {
		return fmt.Errorf("apply %d to %s: %w", delta, sku, err)
	}
	return nil
}

func (r *Redis) PlaceOrder(ctx context.Context, sku inventory.SKU, quantity int64) (inventory.OrderID, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: order quantity %d", inventory.ErrInvalidQuantity, quantity)
	}
	id := inventory.OrderID(uuid.NewString())
	placedAt := r.now().UTC().Format(time.RFC3339Nano)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.orderKey(sku, id), "quantity", quantity, "placed_at", placedAt)
		pipe.RPush(ctx, r.pendingKey(sku), string(id))
		pipe.DecrBy(ctx, r.availableKey(sku), quantity)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("place order for %s: %w", sku, err)
	}
	return id, nil
}

func (r *Redis) ListPendingOrders(ctx context.Context, sku inventory.SKU) ([]inventory.Order, error) {
	ids, err := r.client.LRange(ctx, r.pendingKey(sku), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending orders for %s: %w", sku, err)
	}

	out := make([]inventory.Order, 0, len(ids))
	for _, raw := range ids {
		id := inventory.OrderID(raw)
		fields, err := r.client.HGetAll(ctx, r.orderKey(sku, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("load order %s: %w", id, err)
		}
		qty, _ := strconv.ParseInt(fields["quantity"], 10, 64)
		placedAt, _ := time.Parse(time.RFC3339Nano, fields["placed_at"])
		out = append(out, inventory.Order{ID: id, SKU: sku, Quantity: qty, PlacedAt: placedAt})
	}
	return out, nil
}

func (r *Redis) AcknowledgeOrders(ctx context.Context, sku inventory.SKU, ids []inventory.OrderID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.LRem(ctx, r.pendingKey(sku), 0, string(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("acknowledge orders for %s: %w", sku, err)
	}
	return nil
}
