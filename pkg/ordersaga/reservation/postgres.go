package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// PostgresBackend persists records to PostgreSQL through the pgx driver.
type PostgresBackend struct {
	*sqlBackend
}

// NewPostgresBackend connects to dsn, verifies the connection, and
// creates the tables if they are missing.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	base, err := newSQLBackend(ctx, db, true, isUniqueViolation)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresBackend{sqlBackend: base}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time interface check.
var _ Backend = (*PostgresBackend)(nil)
