package event

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusClosed is returned when publishing to a closed bus.
	ErrBusClosed = errors.New("event: bus closed")

	// ErrUnknownKind is returned for kinds outside the closed set.
	ErrUnknownKind = errors.New("event: unknown kind")

	// ErrDeadLettersFull is returned when the dead letter store is at capacity.
	ErrDeadLettersFull = errors.New("event: dead letters full")
)

// EventError represents an error during event processing.
type EventError struct {
	Event   Event  // The event that failed
	Handler string // Handler that failed (if known)
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements error interface.
func (e *EventError) Error() string {
	id := "<nil>"
	if e.Event != nil {
		id = e.Event.Header().EventID
	}
	if e.Err != nil {
		return fmt.Sprintf("event %s: %s: %v", id, e.Message, e.Err)
	}
	return fmt.Sprintf("event %s: %s", id, e.Message)
}

// Unwrap returns the underlying error.
func (e *EventError) Unwrap() error {
	return e.Err
}

// PanicError is reported when a handler panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// FailedEvent records an envelope whose handling went wrong.
type FailedEvent struct {
	EventID       string    `json:"event_id"`
	Kind          Kind      `json:"kind"`
	TransactionID string    `json:"transaction_id"`
	EventData     []byte    `json:"event_data"`
	Handler       string    `json:"handler,omitempty"`
	ErrorMessage  string    `json:"error_message"`
	FailedAt      time.Time `json:"failed_at"`
}

// NewFailedEvent creates a FailedEvent from an error.
func NewFailedEvent(evt Event, err error, handler string) *FailedEvent {
	h := evt.Header()
	return &FailedEvent{
		EventID:       h.EventID,
		Kind:          evt.Kind(),
		TransactionID: h.TransactionID,
		EventData:     evt.DataBytes(),
		Handler:       handler,
		ErrorMessage:  err.Error(),
		FailedAt:      time.Now().UTC(),
	}
}

// DeadLetterQueue stores envelopes that could not be handled. Entries are
// kept for operators; nothing is redelivered.
type DeadLetterQueue interface {
	// Enqueue records a failed envelope.
	Enqueue(ctx context.Context, failed *FailedEvent) error

	// List returns up to limit entries, oldest first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]*FailedEvent, error)

	// ListByTransaction returns entries for one transaction id.
	ListByTransaction(ctx context.Context, transactionID string) ([]*FailedEvent, error)

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}
