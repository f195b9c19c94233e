/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Durable journal for the sync engine. Listings are in-memory projections
  rebuilt from this journal when the process starts.

INTERFACES IMPLEMENTED:
  inventory.Store:       Adjustment journal (local, shadow and outbox books)
  inventory.RunRecorder: Reconciliation run history

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the adjustments table
  - No DELETE statements on the adjustments table (Reset aside)
  - Corrections are new adjustments (KindDrift, KindPush)

KEY TABLES:
  adjustments:         Immutable journal of every book of every SKU
  reconciliation_runs: One row per monitor check

ORDERING:
  Replay order is insertion order. Every row gets an autoincrement seq and
  Load sorts by it, so two adjustments with the same timestamp replay in the
  order they were written.

IDEMPOTENCY:
  adjustments.idempotency_key is UNIQUE. A violation is reported as
  inventory.ErrDuplicateIdempotencyKey. AppendBatch runs in one SQL
  transaction, so an ingested order's local and shadow rows land together
  or not at all.

WAL MODE:
  Files are opened with WAL (Write-Ahead Logging): readers don't block the
  single writer. ":memory:" databases are pinned to one connection, since
  every new connection would otherwise see its own empty database.

USAGE:
  store, err := sqlite.New("./data/stocksync.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := inventory.NewEngine(store, remote)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - inventory/store.go: Interfaces
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/warp/stock-sync/inventory"
)

const timeLayout = time.RFC3339Nano

// Store implements inventory.Store and inventory.RunRecorder using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ inventory.Store       = (*Store)(nil)
	_ inventory.RunRecorder = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Adjustments (append-only journal)
	CREATE TABLE IF NOT EXISTS adjustments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		sku TEXT NOT NULL,
		book TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Replay path: one book of one SKU in insertion order
	CREATE INDEX IF NOT EXISTS idx_adjustments_sku_book
		ON adjustments(sku, book, seq);

	-- Order lookups by remote order ID
	CREATE INDEX IF NOT EXISTS idx_adjustments_reference
		ON adjustments(reference_id) WHERE reference_id IS NOT NULL;

	-- Reconciliation Runs (one row per monitor check)
	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		sku TEXT NOT NULL,
		state TEXT NOT NULL,
		local_available INTEGER NOT NULL,
		remote_available INTEGER NOT NULL,
		drift INTEGER NOT NULL,
		correction INTEGER NOT NULL,
		caution_since TEXT,
		error TEXT,
		checked_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_sku
		ON reconciliation_runs(sku, seq DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ADJUSTMENT JOURNAL (inventory.Store interface)
// =============================================================================

// Append adds an adjustment to the journal.
func (s *Store) Append(ctx context.Context, adj inventory.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendAdjustment(ctx, s.db, adj)
}

func (s *Store) appendAdjustment(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, adj inventory.Adjustment) error {
	query := `
		INSERT INTO adjustments
		(id, sku, book, kind, quantity, status, reference_id, reason,
		 idempotency_key, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := adj.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		string(adj.ID),
		string(adj.SKU),
		string(adj.Book),
		string(adj.Kind),
		adj.Quantity,
		string(adj.Status),
		nullString(adj.ReferenceID),
		nullString(adj.Reason),
		nullString(adj.IdempotencyKey),
		adj.OccurredAt.UTC().Format(timeLayout),
		createdAt.UTC().Format(timeLayout),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return inventory.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append adjustment: %w", err)
	}

	return nil
}

// AppendBatch adds multiple adjustments atomically.
func (s *Store) AppendBatch(ctx context.Context, adjs []inventory.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, adj := range adjs {
		if adj.IdempotencyKey != "" {
			if idempotencyKeys[adj.IdempotencyKey] {
				return inventory.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[adj.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, adj := range adjs {
		if err := s.appendAdjustment(ctx, sqlTx, adj); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns one book of a SKU in insertion order.
func (s *Store) Load(ctx context.Context, sku inventory.SKU, book inventory.Book) ([]inventory.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, sku, book, kind, quantity, status, reference_id, reason,
		       idempotency_key, occurred_at, created_at
		FROM adjustments
		WHERE sku = ? AND book = ?
		ORDER BY seq ASC
	`

	return s.queryAdjustments(ctx, query, string(sku), string(book))
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM adjustments WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// SKUs lists every SKU with at least one adjustment.
func (s *Store) SKUs(ctx context.Context) ([]inventory.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT sku FROM adjustments ORDER BY sku")
	if err != nil {
		return nil, fmt.Errorf("failed to list skus: %w", err)
	}
	defer rows.Close()

	var skus []inventory.SKU
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		skus = append(skus, inventory.SKU(sku))
	}
	return skus, rows.Err()
}

func (s *Store) queryAdjustments(ctx context.Context, query string, args ...any) ([]inventory.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []inventory.Adjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}

	return adjustments, rows.Err()
}

func scanAdjustment(rows *sql.Rows) (inventory.Adjustment, error) {
	var (
		adj            inventory.Adjustment
		id, sku        string
		book, kind     string
		status         string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		occurredAt     string
		createdAt      string
	)

	err := rows.Scan(
		&id, &sku, &book, &kind, &adj.Quantity, &status,
		&referenceID, &reason, &idempotencyKey, &occurredAt, &createdAt,
	)
	if err != nil {
		return adj, fmt.Errorf("failed to scan adjustment: %w", err)
	}

	adj.ID = inventory.AdjustmentID(id)
	adj.SKU = inventory.SKU(sku)
	adj.Book = inventory.Book(book)
	adj.Kind = inventory.Kind(kind)
	adj.Status = inventory.Status(status)
	adj.ReferenceID = referenceID.String
	adj.Reason = reason.String
	adj.IdempotencyKey = idempotencyKey.String
	adj.OccurredAt, _ = time.Parse(timeLayout, occurredAt)
	adj.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	return adj, nil
}

// =============================================================================
// RECONCILIATION RUNS (inventory.RunRecorder interface)
// =============================================================================

// SaveReconciliationRun appends a monitor check to the history.
func (s *Store) SaveReconciliationRun(ctx context.Context, r inventory.ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reconciliation_runs (id, sku, state, local_available, remote_available,
			drift, correction, caution_since, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var cautionSince *string
	if !r.CautionSince.IsZero() {
		s := r.CautionSince.UTC().Format(timeLayout)
		cautionSince = &s
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, string(r.SKU), string(r.State), r.Local, r.Remote,
		r.Drift, r.Correction, cautionSince, nullString(r.Error),
		r.CheckedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save reconciliation run: %w", err)
	}
	return nil
}

// ReconciliationRuns returns the newest runs for sku first. limit <= 0
// returns all of them.
func (s *Store) ReconciliationRuns(ctx context.Context, sku inventory.SKU, limit int) ([]inventory.ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, sku, state, local_available, remote_available, drift, correction,
			caution_since, error, checked_at
		FROM reconciliation_runs
		WHERE sku = ?
		ORDER BY seq DESC
	`
	args := []any{string(sku)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []inventory.ReconciliationRun
	for rows.Next() {
		var (
			r                    inventory.ReconciliationRun
			runSKU, state        string
			cautionSince, errMsg sql.NullString
			checkedAt            string
		)
		if err := rows.Scan(
			&r.ID, &runSKU, &state, &r.Local, &r.Remote, &r.Drift, &r.Correction,
			&cautionSince, &errMsg, &checkedAt,
		); err != nil {
			return nil, err
		}

		r.SKU = inventory.SKU(runSKU)
		r.State = inventory.ReconcileState(state)
		r.Error = errMsg.String
		r.CheckedAt, _ = time.Parse(timeLayout, checkedAt)
		if cautionSince.Valid {
			r.CautionSince, _ = time.Parse(timeLayout, cautionSince.String)
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"adjustments", "reconciliation_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
