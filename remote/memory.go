/*
Package remote provides RemotePlatform implementations.

PURPOSE:
  The engine only needs four operations from the remote sales platform:
  read the count, apply a relative adjustment, list pending orders and
  (optionally) acknowledge them. This package implements them twice:

  Memory: In-process simulator. Keeps its own inventory.Ledger per SKU, so
          the remote's count is derived the same way as the local one.
          Supports fault injection for failure-path tests.
  Redis:  Shared sandbox backed by Redis, usable by several processes.

IDEMPOTENCY:
  ApplyAdjustment records each idempotency key. A key seen before is a
  successful no-op, which is what lets the engine retry a push that may or
  may not have landed.

SEE ALSO:
  - inventory/remote.go: Interfaces
  - redis.go: Redis-backed implementation
*/
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/stock-sync/inventory"
)

// ErrInjected is returned by injected faults.
var ErrInjected = errors.New("injected remote failure")

// Op names a remote operation for fault injection.
type Op string

const (
	OpAvailable Op = "available"
	OpApply     Op = "apply"
	OpList      Op = "list"
	OpAck       Op = "ack"
	OpPlace     Op = "place"
)

// =============================================================================
// MEMORY PLATFORM
// =============================================================================

type Memory struct {
	mu       sync.Mutex
	items    map[inventory.SKU]*item
	applied  map[string]bool
	failures map[Op]int
	lose     int
	now      func() time.Time
}

type item struct {
	ledger *inventory.Ledger
	orders []inventory.Order
	acked  map[inventory.OrderID]bool
}

func NewMemory() *Memory {
	return &Memory{
		items:    make(map[inventory.SKU]*item),
		applied:  make(map[string]bool),
		failures: make(map[Op]int),
		now:      time.Now,
	}
}

func (m *Memory) itemFor(sku inventory.SKU) *item {
	it, ok := m.items[sku]
	if !ok {
		it = &item{ledger: inventory.NewLedger(), acked: make(map[inventory.OrderID]bool)}
		m.items[sku] = it
	}
	return it
}

// FailNext makes the next n calls of op fail without side effects.
func (m *Memory) FailNext(op Op, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] += n
}

// LoseConfirmations makes the next n ApplyAdjustment calls apply the delta
// but return an error, as if the response was lost on the way back.
func (m *Memory) LoseConfirmations(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lose += n
}

func (m *Memory) injected(op Op) error {
	if m.failures[op] > 0 {
		m.failures[op]--
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

func (m *Memory) Available(ctx context.Context, sku inventory.SKU) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpAvailable); err != nil {
		return 0, err
	}
	return m.itemFor(sku).ledger.Available(), nil
}

func (m *Memory) ApplyAdjustment(ctx context.Context, sku inventory.SKU, delta int64, idempotencyKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpApply); err != nil {
		return err
	}

	if idempotencyKey == "" || !m.applied[idempotencyKey] {
		m.itemFor(sku).ledger.Append(inventory.Adjustment{
			ID:             inventory.NewAdjustmentID(),
			SKU:            sku,
			Kind:           inventory.KindPush,
			Quantity:       delta,
			Status:         inventory.StatusApplied,
			IdempotencyKey: idempotencyKey,
			CreatedAt:      m.now().UTC(),
		})
		if idempotencyKey != "" {
			m.applied[idempotencyKey] = true
		}
	}

	if m.lose > 0 {
		m.lose--
		return fmt.Errorf("apply confirmation lost: %w", ErrInjected)
	}
	return nil
}

// PlaceOrder accepts a sale on the remote side and decrements its count.
func (m *Memory) PlaceOrder(ctx context.Context, sku inventory.SKU, quantity int64) (inventory.OrderID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if quantity <= 0 {
		return "", fmt.Errorf("%w: order quantity %d", inventory.ErrInvalidQuantity, quantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpPlace); err != nil {
		return "", err
	}

	now := m.now().UTC()
	order := inventory.Order{
		ID:       inventory.OrderID(uuid.NewString()),
		SKU:      sku,
		Quantity: quantity,
		PlacedAt: now,
	}
	it := m.itemFor(sku)
	it.orders = append(it.orders, order)
	it.ledger.Append(inventory.Adjustment{
		ID:          inventory.NewAdjustmentID(),
		SKU:         sku,
		Kind:        inventory.KindOrder,
		Quantity:    -quantity,
		Status:      inventory.StatusApplied,
		ReferenceID: string(order.ID),
		OccurredAt:  now,
		CreatedAt:   now,
	})
	return order.ID, nil
}

func (m *Memory) ListPendingOrders(ctx context.Context, sku inventory.SKU) ([]inventory.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpList); err != nil {
		return nil, err
	}

	it := m.itemFor(sku)
	var out []inventory.Order
	for _, o := range it.orders {
		if !it.acked[o.ID] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) AcknowledgeOrders(ctx context.Context, sku inventory.SKU, ids []inventory.OrderID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(OpAck); err != nil {
		return err
	}

	it := m.itemFor(sku)
	for _, id := range ids {
		it.acked[id] = true
	}
	return nil
}

// Adjust changes the remote count out of band, e.g. a merchant editing
// stock in the platform's admin UI. Used to create drift.
func (m *Memory) Adjust(sku inventory.SKU, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemFor(sku).ledger.Append(inventory.Adjustment{
		ID:        inventory.NewAdjustmentID(),
		SKU:       sku,
		Kind:      inventory.KindCount,
		Quantity:  delta,
		Status:    inventory.StatusApplied,
		CreatedAt: m.now().UTC(),
	})
}

// Orders returns every order ever placed for sku, acknowledged or not.
func (m *Memory) Orders(sku inventory.SKU) []inventory.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.itemFor(sku)
	out := make([]inventory.Order, len(it.orders))
	copy(out, it.orders)
	return out
}
