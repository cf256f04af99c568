// Package correlation lets a synchronous caller wait for the asynchronous
// terminal event of the flow it started.
//
// Each transaction id owns at most one single-use slot:
//
//	h, err := reg.Open(txID)            // Pending
//	// publish the initiating envelope
//	result, err := reg.Await(ctx, h, 5*time.Second)
//
// and elsewhere, when the terminal envelope arrives:
//
//	reg.Resolve(txID, result)           // or reg.Reject(txID, err)
//
// A slot leaves the registry in the same step that completes it, so two
// concurrent completions can never both see it pending. The loser gets an
// UnknownTransactionError.
package correlation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/registry"
)

// State is the lifecycle state of a slot.
type State int32

const (
	StatePending State = iota
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type slot[T any] struct {
	done  chan struct{}
	state atomic.Int32
	value T
	err   error
}

// complete must be called at most once, by whoever removed the slot.
func (s *slot[T]) complete(value T, err error) {
	s.value, s.err = value, err
	if err != nil {
		s.state.Store(int32(StateRejected))
	} else {
		s.state.Store(int32(StateResolved))
	}
	close(s.done)
}

// Handle refers to a slot opened by Open.
type Handle[T any] struct {
	transactionID string
	slot          *slot[T]
}

// TransactionID returns the id the slot was opened for.
func (h *Handle[T]) TransactionID() string {
	return h.transactionID
}

// State returns the slot's current state.
func (h *Handle[T]) State() State {
	return State(h.slot.state.Load())
}

// Registry maps pending transaction ids to completion slots.
type Registry[T any] struct {
	slots  *registry.Registry[string, *slot[T]]
	closed atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{slots: registry.New[string, *slot[T]]()}
}

// Open creates a pending slot for transactionID.
func (r *Registry[T]) Open(transactionID string) (*Handle[T], error) {
	if transactionID == "" {
		return nil, ErrEmptyTransactionID
	}
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}

	s := &slot[T]{done: make(chan struct{})}
	if !r.slots.Add(transactionID, s) {
		return nil, &DuplicateTransactionError{TransactionID: transactionID}
	}
	if r.closed.Load() {
		// Close drained before our Add landed.
		r.slots.TakeIf(transactionID, func(cur *slot[T]) bool { return cur == s })
		return nil, ErrRegistryClosed
	}
	return &Handle[T]{transactionID: transactionID, slot: s}, nil
}

// Await waits until the slot is completed, timeout elapses, or ctx is
// done. On timeout the slot is discarded and an AwaitTimeoutError is
// returned; a later Resolve or Reject for the same id then fails with
// UnknownTransactionError. A timeout <= 0 only checks whether the slot is
// already complete. If a completion wins the race against the timeout,
// its result is returned.
func (r *Registry[T]) Await(ctx context.Context, h *Handle[T], timeout time.Duration) (T, error) {
	select {
	case <-h.slot.done:
		return h.slot.value, h.slot.err
	default:
	}

	if timeout <= 0 {
		return r.abandon(h, &AwaitTimeoutError{TransactionID: h.transactionID, Timeout: timeout})
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.slot.done:
		return h.slot.value, h.slot.err
	case <-timer.C:
		return r.abandon(h, &AwaitTimeoutError{TransactionID: h.transactionID, Timeout: timeout})
	case <-ctx.Done():
		return r.abandon(h, ctx.Err())
	}
}

// abandon discards the handle's slot unless a completion already took it.
func (r *Registry[T]) abandon(h *Handle[T], cause error) (T, error) {
	_, took := r.slots.TakeIf(h.transactionID, func(s *slot[T]) bool { return s == h.slot })
	if took {
		var zero T
		h.slot.complete(zero, cause)
	}
	<-h.slot.done
	return h.slot.value, h.slot.err
}

// Resolve completes the pending slot with value.
func (r *Registry[T]) Resolve(transactionID string, value T) error {
	s, ok := r.slots.Take(transactionID)
	if !ok {
		return &UnknownTransactionError{TransactionID: transactionID}
	}
	s.complete(value, nil)
	return nil
}

// Reject completes the pending slot with err.
func (r *Registry[T]) Reject(transactionID string, err error) error {
	s, ok := r.slots.Take(transactionID)
	if !ok {
		return &UnknownTransactionError{TransactionID: transactionID}
	}
	if err == nil {
		err = ErrRejected
	}
	var zero T
	s.complete(zero, err)
	return nil
}

// IsPending reports whether transactionID has a pending slot.
func (r *Registry[T]) IsPending(transactionID string) bool {
	return r.slots.Has(transactionID)
}

// Pending returns the number of pending slots.
func (r *Registry[T]) Pending() int {
	return r.slots.Len()
}

// Close rejects every pending slot with ErrRegistryClosed. Open fails
// afterwards.
func (r *Registry[T]) Close() {
	r.closed.Store(true)
	var zero T
	for _, s := range r.slots.Drain() {
		s.complete(zero, ErrRegistryClosed)
	}
}
