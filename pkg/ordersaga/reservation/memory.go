package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend is an in-memory Backend.
// Data is lost when the process exits.
type MemoryBackend struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]Record
	movements map[uuid.UUID][]Movement
	closed    bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records:   make(map[uuid.UUID]Record),
		movements: make(map[uuid.UUID][]Movement),
	}
}

// Seed implements Backend.
func (m *MemoryBackend) Seed(_ context.Context, key uuid.UUID, quantity int, at time.Time) (Record, error) {
	if quantity < 0 {
		return Record{}, ErrNegativeQuantity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}
	if _, ok := m.records[key]; ok {
		return Record{}, ErrRecordExists
	}

	rec := Record{
		ResourceKey:       key,
		QuantityAvailable: quantity,
		Version:           1,
		UpdatedAt:         at.UTC(),
	}
	m.records[key] = rec
	return rec, nil
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context, key uuid.UUID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// Commit implements Backend.
func (m *MemoryBackend) Commit(_ context.Context, mut Mutation) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	rec, ok := m.records[mut.ResourceKey]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	if rec.Version != mut.ExpectedVersion {
		return Record{}, ErrStaleVersion
	}

	after := rec.QuantityAvailable + mut.Delta
	if after < 0 {
		return Record{}, ErrNegativeQuantity
	}

	mv := mut.Movement
	mv.ResourceKey = mut.ResourceKey
	mv.Delta = mut.Delta
	mv.Before = rec.QuantityAvailable
	mv.After = after
	mv.Version = rec.Version + 1

	rec.QuantityAvailable = after
	rec.Version++
	rec.UpdatedAt = mv.At.UTC()

	m.records[mut.ResourceKey] = rec
	m.movements[mut.ResourceKey] = append(m.movements[mut.ResourceKey], mv)
	return rec, nil
}

// Movements implements Backend.
func (m *MemoryBackend) Movements(_ context.Context, key uuid.UUID) ([]Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	src := m.movements[key]
	out := make([]Movement, len(src))
	copy(out, src)
	return out, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Compile-time interface check.
var _ Backend = (*MemoryBackend)(nil)
