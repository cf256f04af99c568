// Package reservation keeps per-resource quantity records under optimistic
// concurrency control.
//
// Every record carries a version starting at 1. A mutation names the
// version it read; the backend applies it only if that version is still
// current, bumping the version by exactly one. Otherwise the mutation is
// refused with ErrStaleVersion and nothing is written.
//
// Store layers the reserve/release rules over any Backend. Backends exist
// for memory, SQLite, PostgreSQL, and Redis.
package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record is the stored state of one resource.
type Record struct {
	ResourceKey       uuid.UUID `json:"resourceKey"`
	QuantityAvailable int       `json:"quantityAvailable"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// MovementKind labels a ledger entry.
type MovementKind string

const (
	MovementLock   MovementKind = "LOCK"
	MovementUnlock MovementKind = "UNLOCK"
)

// Movement is one ledger entry, written atomically with the record change.
type Movement struct {
	ID            string       `json:"id"`
	ResourceKey   uuid.UUID    `json:"resourceKey"`
	Kind          MovementKind `json:"kind"`
	Delta         int          `json:"delta"`
	Before        int          `json:"before"`
	After         int          `json:"after"`
	Version       int64        `json:"version"`
	Reference     string       `json:"reference,omitempty"`
	ReservationID string       `json:"reservationId,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	At            time.Time    `json:"at"`
}

// Mutation is a versioned change to one record. The backend fills in the
// movement's Before, After, and Version.
type Mutation struct {
	ResourceKey     uuid.UUID
	ExpectedVersion int64
	Delta           int
	Movement        Movement
}

// Backend persists records and the movement ledger.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Seed creates a record at version 1.
	// Returns ErrRecordExists if the key is already present.
	Seed(ctx context.Context, key uuid.UUID, quantity int, at time.Time) (Record, error)

	// Load returns the current record.
	// Returns ErrRecordNotFound if the key is absent.
	Load(ctx context.Context, key uuid.UUID) (Record, error)

	// Commit applies m atomically if the stored version equals
	// m.ExpectedVersion. Returns ErrStaleVersion otherwise, and
	// ErrNegativeQuantity if the result would drop below zero.
	Commit(ctx context.Context, m Mutation) (Record, error)

	// Movements returns the ledger for key, oldest first.
	Movements(ctx context.Context, key uuid.UUID) ([]Movement, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for backend operations.
var (
	// ErrRecordNotFound indicates the resource key has no record.
	ErrRecordNotFound = errors.New("reservation record not found")

	// ErrRecordExists indicates Seed found an existing record.
	ErrRecordExists = errors.New("reservation record already exists")

	// ErrStaleVersion indicates the record changed since it was read.
	ErrStaleVersion = errors.New("reservation record version is stale")

	// ErrNegativeQuantity indicates a mutation would drive the quantity below zero.
	ErrNegativeQuantity = errors.New("reservation quantity would become negative")

	// ErrStoreClosed indicates the backend has been closed.
	ErrStoreClosed = errors.New("reservation store closed")
)
