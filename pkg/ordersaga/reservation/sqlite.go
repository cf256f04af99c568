package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteBackend persists records to SQLite.
// It is suitable for single-process production use.
type SQLiteBackend struct {
	*sqlBackend
}

// NewSQLiteBackend opens or creates a SQLite database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	base, err := newSQLBackend(ctx, db, false, isSQLiteConstraint)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{sqlBackend: base}, nil
}

func isSQLiteConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

// Compile-time interface check.
var _ Backend = (*SQLiteBackend)(nil)
