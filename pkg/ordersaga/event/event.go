package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the read-only view of an envelope handed to handlers.
type Event interface {
	// Header returns the envelope header.
	Header() Header

	// Kind returns the payload kind.
	Kind() Kind

	// Data returns a copy of the payload.
	Data() Payload

	// DataBytes returns the JSON encoding of the payload.
	DataBytes() []byte
}

// Header contains the metadata shared by every envelope in a flow.
type Header struct {
	EventID       string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	OriginUserID  string    `json:"originUserId"`
	IsError       bool      `json:"isError"`
	CreatedAt     time.Time `json:"createdAt"`
	CausationID   string    `json:"causationId,omitempty"`
}

// Envelope is an immutable header and payload pair.
type Envelope[T Payload] struct {
	header  Header
	payload T
}

// Header returns the envelope header.
func (e *Envelope[T]) Header() Header {
	return e.header
}

// Kind returns the payload kind.
func (e *Envelope[T]) Kind() Kind {
	return e.payload.Kind()
}

// Data returns a copy of the payload.
func (e *Envelope[T]) Data() Payload {
	return e.payload.clone()
}

// Payload returns a typed copy of the payload.
func (e *Envelope[T]) Payload() T {
	return e.payload.clone().(T)
}

// DataBytes returns the serialized payload.
func (e *Envelope[T]) DataBytes() []byte {
	// Payload types are plain data; encoding cannot fail.
	b, _ := json.Marshal(e.payload)
	return b
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Header  Header `json:"header"`
		Kind    Kind   `json:"kind"`
		Payload T      `json:"payload"`
	}{e.header, e.payload.Kind(), e.payload})
}

// EventOption configures envelope creation.
type EventOption func(*eventConfig)

type eventConfig struct {
	id          string
	causationID string
	timestamp   time.Time
	isError     bool
}

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) EventOption {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithCausationID sets the ID of the causing envelope.
func WithCausationID(id string) EventOption {
	return func(cfg *eventConfig) {
		cfg.causationID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) EventOption {
	return func(cfg *eventConfig) {
		cfg.timestamp = t
	}
}

// WithError flags the envelope as carrying an error outcome.
func WithError() EventOption {
	return func(cfg *eventConfig) {
		cfg.isError = true
	}
}

// New creates an envelope that starts a flow.
func New[T Payload](transactionID, originUserID string, payload T, opts ...EventOption) *Envelope[T] {
	cfg := &eventConfig{
		id:        uuid.NewString(),
		timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Envelope[T]{
		header: Header{
			EventID:       cfg.id,
			TransactionID: transactionID,
			OriginUserID:  originUserID,
			IsError:       cfg.isError,
			CreatedAt:     cfg.timestamp,
			CausationID:   cfg.causationID,
		},
		payload: payload.clone().(T),
	}
}

// NewFromParent creates an envelope caused by parent. The transaction id
// and origin user are inherited unchanged.
func NewFromParent[T Payload](parent Event, payload T, opts ...EventOption) *Envelope[T] {
	h := parent.Header()
	allOpts := append([]EventOption{WithCausationID(h.EventID)}, opts...)
	return New(h.TransactionID, h.OriginUserID, payload, allOpts...)
}

// Handler processes events and optionally returns derived events.
type Handler interface {
	// Handle processes an event and returns any derived events.
	Handle(ctx context.Context, evt Event) ([]Event, error)

	// Handles returns the kinds this handler processes.
	Handles() []Kind
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) ([]Event, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) ([]Event, error) {
	return f(ctx, evt)
}

// Handles returns nil; the kinds are given at subscription time.
func (f HandlerFunc) Handles() []Kind {
	return nil
}

// TypedHandler wraps a function handling a single payload type.
func TypedHandler[T Payload](fn func(ctx context.Context, h Header, payload T) ([]Event, error)) Handler {
	return &typedHandler[T]{fn: fn}
}

type typedHandler[T Payload] struct {
	fn func(ctx context.Context, h Header, payload T) ([]Event, error)
}

func (h *typedHandler[T]) Handle(ctx context.Context, evt Event) ([]Event, error) {
	payload, ok := evt.Data().(T)
	if !ok {
		return nil, &EventError{
			Event:   evt,
			Message: "unexpected payload type",
		}
	}
	return h.fn(ctx, evt.Header(), payload)
}

func (h *typedHandler[T]) Handles() []Kind {
	var zero T
	return []Kind{zero.Kind()}
}

// MiddlewareFunc wraps handlers to add cross-cutting concerns.
type MiddlewareFunc func(next Handler) Handler

// ChainMiddleware applies middleware in order, with first middleware outermost.
func ChainMiddleware(handler Handler, middleware ...MiddlewareFunc) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
