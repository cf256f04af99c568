package event

import (
	"context"
	"sync"
)

// InMemoryDLQ is an in-memory implementation of DeadLetterQueue.
type InMemoryDLQ struct {
	mu      sync.RWMutex
	entries []*FailedEvent
	cfg     DLQConfig
}

// DLQConfig configures the dead letter queue.
type DLQConfig struct {
	// MaxSize limits the number of stored entries.
	// Default: 10000
	MaxSize int

	// OnEnqueue is called after an entry is stored.
	OnEnqueue func(*FailedEvent)
}

// DefaultDLQConfig provides reasonable defaults.
var DefaultDLQConfig = DLQConfig{
	MaxSize: 10000,
}

// NewInMemoryDLQ creates a new in-memory dead letter queue.
func NewInMemoryDLQ(cfg DLQConfig) *InMemoryDLQ {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultDLQConfig.MaxSize
	}
	return &InMemoryDLQ{cfg: cfg}
}

// Enqueue adds a failed event.
func (d *InMemoryDLQ) Enqueue(_ context.Context, failed *FailedEvent) error {
	d.mu.Lock()
	if len(d.entries) >= d.cfg.MaxSize {
		d.mu.Unlock()
		return ErrDeadLettersFull
	}
	d.entries = append(d.entries, failed)
	d.mu.Unlock()

	if d.cfg.OnEnqueue != nil {
		d.cfg.OnEnqueue(failed)
	}
	return nil
}

// List returns up to limit entries, oldest first.
func (d *InMemoryDLQ) List(_ context.Context, limit int) ([]*FailedEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := len(d.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*FailedEvent, n)
	copy(out, d.entries[:n])
	return out, nil
}

// ListByTransaction returns entries recorded for transactionID.
func (d *InMemoryDLQ) ListByTransaction(_ context.Context, transactionID string) ([]*FailedEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*FailedEvent
	for _, f := range d.entries {
		if f.TransactionID == transactionID {
			out = append(out, f)
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (d *InMemoryDLQ) Len(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries), nil
}

var _ DeadLetterQueue = (*InMemoryDLQ)(nil)
