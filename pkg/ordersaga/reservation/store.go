package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/observability"
)

// DefaultReleaseAttempts bounds how often Release re-reads after a conflict.
const DefaultReleaseAttempts = 5

// Reservation is the outcome of a successful Reserve.
type Reservation struct {
	ID          string    `json:"id"`
	ResourceKey uuid.UUID `json:"resourceKey"`
	Quantity    int       `json:"quantity"`
	Version     int64     `json:"version"`
	Remaining   int       `json:"remaining"`
}

// Store applies reserve and release rules over a Backend.
type Store struct {
	backend         Backend
	logger          *slog.Logger
	metrics         observability.MetricsRecorder
	now             func() time.Time
	releaseAttempts int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) StoreOption {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source for movement timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReleaseAttempts sets how many times Release tries before giving up
// on a contended record. Values below 1 are ignored.
func WithReleaseAttempts(n int) StoreOption {
	return func(s *Store) {
		if n >= 1 {
			s.releaseAttempts = n
		}
	}
}

// NewStore wraps backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend:         backend,
		logger:          slog.Default(),
		metrics:         observability.NoopMetrics{},
		now:             time.Now,
		releaseAttempts: DefaultReleaseAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MutationOption annotates the ledger entry written by Reserve or Release.
type MutationOption func(*Movement)

// WithReference links the movement to an external id, usually the order id.
func WithReference(ref string) MutationOption {
	return func(m *Movement) { m.Reference = ref }
}

// WithReason records why the movement happened.
func WithReason(reason string) MutationOption {
	return func(m *Movement) { m.Reason = reason }
}

// WithReservationID ties a release to the reservation it undoes.
func WithReservationID(id string) MutationOption {
	return func(m *Movement) { m.ReservationID = id }
}

// Seed creates a record at version 1 holding quantity.
func (s *Store) Seed(ctx context.Context, key uuid.UUID, quantity int) (Record, error) {
	if quantity < 0 {
		return Record{}, ErrNegativeQuantity
	}
	return s.backend.Seed(ctx, key, quantity, s.now())
}

// Get returns the current record for key.
func (s *Store) Get(ctx context.Context, key uuid.UUID) (Record, error) {
	return s.backend.Load(ctx, key)
}

// Reserve takes quantity from key. It reads once and commits once: a
// concurrent writer makes it fail with *ConcurrencyConflictError, and a
// short record makes it fail with *InsufficientQuantityError. Neither
// writes anything.
func (s *Store) Reserve(ctx context.Context, key uuid.UUID, quantity int, opts ...MutationOption) (Reservation, error) {
	if quantity < 1 {
		return Reservation{}, ErrInvalidQuantity
	}

	rec, err := s.backend.Load(ctx, key)
	if err != nil {
		s.fail(ctx, "reserve", key, quantity, err)
		return Reservation{}, err
	}

	if rec.QuantityAvailable < quantity {
		err := &InsufficientQuantityError{ResourceKey: key, Requested: quantity, Available: rec.QuantityAvailable}
		s.fail(ctx, "reserve", key, quantity, err)
		return Reservation{}, err
	}

	resID := uuid.NewString()
	mv := s.movement(MovementLock, opts)
	mv.ReservationID = resID

	updated, err := s.backend.Commit(ctx, Mutation{
		ResourceKey:     key,
		ExpectedVersion: rec.Version,
		Delta:           -quantity,
		Movement:        mv,
	})
	if err != nil {
		err = s.commitError(key, rec, quantity, err)
		s.fail(ctx, "reserve", key, quantity, err)
		return Reservation{}, err
	}

	s.metrics.RecordReservation(ctx, observability.ReservationReserved)
	observability.LogReservation(s.logger, key.String(), quantity, updated.Version, resID)

	return Reservation{
		ID:          resID,
		ResourceKey: key,
		Quantity:    quantity,
		Version:     updated.Version,
		Remaining:   updated.QuantityAvailable,
	}, nil
}

// Release returns quantity to key. A version conflict re-reads the record
// and tries again, up to the configured attempt limit, after which the
// last *ConcurrencyConflictError is returned.
func (s *Store) Release(ctx context.Context, key uuid.UUID, quantity int, opts ...MutationOption) (Record, error) {
	if quantity < 1 {
		return Record{}, ErrInvalidQuantity
	}

	var lastErr error
	for attempt := 0; attempt < s.releaseAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		rec, err := s.backend.Load(ctx, key)
		if err != nil {
			s.fail(ctx, "release", key, quantity, err)
			return Record{}, err
		}

		updated, err := s.backend.Commit(ctx, Mutation{
			ResourceKey:     key,
			ExpectedVersion: rec.Version,
			Delta:           quantity,
			Movement:        s.movement(MovementUnlock, opts),
		})
		if err == nil {
			s.metrics.RecordReservation(ctx, observability.ReservationReleased)
			return updated, nil
		}

		lastErr = s.commitError(key, rec, quantity, err)
		if !errors.Is(err, ErrStaleVersion) {
			break
		}
	}

	s.fail(ctx, "release", key, quantity, lastErr)
	return Record{}, lastErr
}

// Movements returns the ledger for key, oldest first.
func (s *Store) Movements(ctx context.Context, key uuid.UUID) ([]Movement, error) {
	return s.backend.Movements(ctx, key)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) movement(kind MovementKind, opts []MutationOption) Movement {
	mv := Movement{
		ID:   uuid.NewString(),
		Kind: kind,
		At:   s.now().UTC(),
	}
	for _, opt := range opts {
		opt(&mv)
	}
	return mv
}

// commitError turns a backend commit failure into the store's typed errors.
func (s *Store) commitError(key uuid.UUID, rec Record, quantity int, err error) error {
	switch {
	case errors.Is(err, ErrStaleVersion):
		return &ConcurrencyConflictError{ResourceKey: key, ExpectedVersion: rec.Version}
	case errors.Is(err, ErrNegativeQuantity):
		return &InsufficientQuantityError{ResourceKey: key, Requested: quantity, Available: rec.QuantityAvailable}
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrStoreClosed):
		return err
	default:
		return fmt.Errorf("commit %s: %w", key, err)
	}
}

func (s *Store) fail(ctx context.Context, op string, key uuid.UUID, quantity int, err error) {
	var (
		insufficient *InsufficientQuantityError
		conflict     *ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &insufficient):
		s.metrics.RecordReservation(ctx, observability.ReservationInsufficient)
	case errors.As(err, &conflict):
		s.metrics.RecordReservation(ctx, observability.ReservationConflict)
	default:
		s.metrics.RecordReservation(ctx, observability.ReservationError)
	}
	observability.LogReservationFailure(s.logger, op, key.String(), quantity, err)
}
