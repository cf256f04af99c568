package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sqlSchema is shared by the SQLite and PostgreSQL backends.
var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS reservation_records (
		resource_key TEXT PRIMARY KEY,
		quantity_available INTEGER NOT NULL CHECK (quantity_available >= 0),
		version BIGINT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservation_movements (
		id TEXT PRIMARY KEY,
		resource_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		delta INTEGER NOT NULL,
		before_quantity INTEGER NOT NULL,
		after_quantity INTEGER NOT NULL,
		version BIGINT NOT NULL,
		reference TEXT NOT NULL,
		reservation_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (resource_key, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservation_movements_key
		ON reservation_movements(resource_key)`,
}

// sqlBackend implements Backend over database/sql. Queries are written
// with ? placeholders and rebound per dialect.
type sqlBackend struct {
	db          *sql.DB
	numbered    bool
	isDuplicate func(error) bool

	mu     sync.RWMutex
	closed bool
}

func newSQLBackend(ctx context.Context, db *sql.DB, numbered bool, isDuplicate func(error) bool) (*sqlBackend, error) {
	for _, stmt := range sqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &sqlBackend{db: db, numbered: numbered, isDuplicate: isDuplicate}, nil
}

// rebind rewrites ? placeholders as $1, $2, ... when the dialect needs it.
func (s *sqlBackend) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Seed implements Backend.
func (s *sqlBackend) Seed(ctx context.Context, key uuid.UUID, quantity int, at time.Time) (Record, error) {
	if quantity < 0 {
		return Record{}, ErrNegativeQuantity
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	at = at.UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO reservation_records (resource_key, quantity_available, version, updated_at)
		VALUES (?, ?, 1, ?)
	`), key.String(), quantity, formatTime(at))
	if err != nil {
		if s.isDuplicate(err) {
			return Record{}, ErrRecordExists
		}
		return Record{}, fmt.Errorf("seed record: %w", err)
	}

	return Record{ResourceKey: key, QuantityAvailable: quantity, Version: 1, UpdatedAt: at}, nil
}

// Load implements Backend.
func (s *sqlBackend) Load(ctx context.Context, key uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	rec := Record{ResourceKey: key}
	var updated string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT quantity_available, version, updated_at
		FROM reservation_records
		WHERE resource_key = ?
	`), key.String()).Scan(&rec.QuantityAvailable, &rec.Version, &updated)

	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

// Commit implements Backend. The record update and the ledger insert
// share one transaction.
func (s *sqlBackend) Commit(ctx context.Context, m Mutation) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	at := m.Movement.At.UTC()
	rec := Record{ResourceKey: m.ResourceKey, UpdatedAt: at}
	err = tx.QueryRowContext(ctx, s.rebind(`
		UPDATE reservation_records
		SET quantity_available = quantity_available + ?,
			version = version + 1,
			updated_at = ?
		WHERE resource_key = ? AND version = ? AND quantity_available + ? >= 0
		RETURNING quantity_available, version
	`), m.Delta, formatTime(at), m.ResourceKey.String(), m.ExpectedVersion, m.Delta).
		Scan(&rec.QuantityAvailable, &rec.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, s.classifyMiss(ctx, tx, m)
	}
	if err != nil {
		return Record{}, fmt.Errorf("update record: %w", err)
	}

	mv := m.Movement
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO reservation_movements (
			id, resource_key, kind, delta, before_quantity, after_quantity,
			version, reference, reservation_id, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), mv.ID, m.ResourceKey.String(), string(mv.Kind), m.Delta,
		rec.QuantityAvailable-m.Delta, rec.QuantityAvailable, rec.Version,
		mv.Reference, mv.ReservationID, mv.Reason, formatTime(at))
	if err != nil {
		if s.isDuplicate(err) {
			return Record{}, ErrStaleVersion
		}
		return Record{}, fmt.Errorf("insert movement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// classifyMiss explains why a conditional update touched no row.
func (s *sqlBackend) classifyMiss(ctx context.Context, tx *sql.Tx, m Mutation) error {
	var qty int
	var version int64
	err := tx.QueryRowContext(ctx, s.rebind(`
		SELECT quantity_available, version
		FROM reservation_records
		WHERE resource_key = ?
	`), m.ResourceKey.String()).Scan(&qty, &version)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrRecordNotFound
	case err != nil:
		return fmt.Errorf("load record: %w", err)
	case version != m.ExpectedVersion:
		return ErrStaleVersion
	default:
		return ErrNegativeQuantity
	}
}

// Movements implements Backend.
func (s *sqlBackend) Movements(ctx context.Context, key uuid.UUID) ([]Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, kind, delta, before_quantity, after_quantity, version,
			reference, reservation_id, reason, created_at
		FROM reservation_movements
		WHERE resource_key = ?
		ORDER BY version
	`), key.String())
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		mv := Movement{ResourceKey: key}
		var kind, created string
		if err := rows.Scan(&mv.ID, &kind, &mv.Delta, &mv.Before, &mv.After, &mv.Version,
			&mv.Reference, &mv.ReservationID, &mv.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		mv.Kind = MovementKind(kind)
		mv.At = parseTime(created)
		movements = append(movements, mv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}

// Close implements Backend.
func (s *sqlBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
