package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository persists orders to SQLite as JSON documents, with the
// id, transaction id, and status kept in columns for lookup.
type SQLiteRepository struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteRepository opens or creates a SQLite database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			tx_id TEXT NOT NULL UNIQUE,
			number TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Create implements Repository.
func (r *SQLiteRepository) Create(ctx context.Context, o *Order) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRepositoryClosed
	}

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (id, tx_id, number, status, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.ID, o.TransactionID, o.Number, string(o.Status), now(), data)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && (se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Update implements Repository.
func (r *SQLiteRepository) Update(ctx context.Context, o *Order) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRepositoryClosed
	}

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?, data = ?
		WHERE id = ?
	`, string(o.Status), now(), data, o.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Get implements Repository.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Order, error) {
	return r.load(ctx, `SELECT data FROM orders WHERE id = ?`, id)
}

// GetByTransaction implements Repository.
func (r *SQLiteRepository) GetByTransaction(ctx context.Context, txID string) (*Order, error) {
	return r.load(ctx, `SELECT data FROM orders WHERE tx_id = ?`, txID)
}

func (r *SQLiteRepository) load(ctx context.Context, query, arg string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepositoryClosed
	}

	var data []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

// Close implements Repository.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Compile-time interface check.
var _ Repository = (*SQLiteRepository)(nil)
