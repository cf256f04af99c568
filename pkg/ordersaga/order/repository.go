package order

import (
	"context"
	"sync"
)

// Repository persists order aggregates. Implementations store and return
// copies, so callers may mutate what they hold.
type Repository interface {
	// Create stores a new order. Returns ErrOrderExists if the id or the
	// transaction id is taken.
	Create(ctx context.Context, o *Order) error

	// Update replaces a stored order. Returns ErrOrderNotFound if absent.
	Update(ctx context.Context, o *Order) error

	// Get returns the order with id.
	Get(ctx context.Context, id string) (*Order, error)

	// GetByTransaction returns the order created for a transaction id.
	GetByTransaction(ctx context.Context, txID string) (*Order, error)

	// Close releases resources.
	Close() error
}

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*Order
	byTx   map[string]string
	closed bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]*Order),
		byTx:   make(map[string]string),
	}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRepositoryClosed
	}
	if _, ok := r.orders[o.ID]; ok {
		return ErrOrderExists
	}
	if _, ok := r.byTx[o.TransactionID]; ok {
		return ErrOrderExists
	}

	r.orders[o.ID] = o.Clone()
	r.byTx[o.TransactionID] = o.ID
	return nil
}

// Update implements Repository.
func (r *MemoryRepository) Update(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRepositoryClosed
	}
	if _, ok := r.orders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepositoryClosed
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// GetByTransaction implements Repository.
func (r *MemoryRepository) GetByTransaction(_ context.Context, txID string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepositoryClosed
	}
	id, ok := r.byTx[txID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return r.orders[id].Clone(), nil
}

// Close implements Repository.
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Compile-time interface check.
var _ Repository = (*MemoryRepository)(nil)
