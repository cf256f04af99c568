package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Bus provides pub/sub event distribution with fan-out support.
type Bus interface {
	// Publish sends an event to all subscribers of its kind.
	Publish(ctx context.Context, evt Event) error

	// Subscribe creates a subscription for specific kinds. Empty kinds
	// falls back to handler.Handles().
	Subscribe(kinds []Kind, handler Handler) Subscription

	// Close shuts down the bus and waits for in-flight handlers.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// ID returns the subscription identifier.
	ID() string

	// Unsubscribe removes the subscription.
	Unsubscribe()

	// Pause temporarily stops delivery.
	Pause()

	// Resume continues delivery after pause.
	Resume()

	// IsPaused returns true if the subscription is paused.
	IsPaused() bool
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// MaxConcurrency bounds the handler invocations running at once.
	// Default: 64
	MaxConcurrency int

	// MaxSubscribers limits total subscriptions.
	// Default: 0 (unlimited)
	MaxSubscribers int

	// NonBlocking drops deliveries instead of queueing them when
	// MaxConcurrency invocations are already running.
	// Default: false (queue)
	NonBlocking bool

	// DeduplicateTTL suppresses envelopes whose event id was published
	// within the TTL.
	// Default: 0 (disabled)
	DeduplicateTTL time.Duration

	// Catalog validates envelopes before delivery (optional).
	Catalog *Catalog

	// OnDrop is called when a delivery is dropped (non-blocking mode).
	OnDrop func(evt Event, subscriberID string)

	// OnError is called when a handler fails, panics, or returns an
	// envelope the bus cannot publish.
	OnError func(evt Event, subscriberID string, err error)

	// OnPublish is called for every accepted envelope.
	OnPublish func(ctx context.Context, evt Event)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	MaxConcurrency: 64,
}

// LocalBus is an in-memory event bus implementation.
type LocalBus struct {
	config BusConfig

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	byKind        map[Kind]map[string]*subscription

	// Deduplication cache
	dedupeMu    sync.Mutex
	dedupeCache map[string]time.Time

	sem      chan struct{}
	inflight sync.WaitGroup
	nextID   atomic.Int64
	closed   bool
	closeCh  chan struct{}
}

// NewBus creates a new local event bus.
func NewBus(config BusConfig) *LocalBus {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultBusConfig.MaxConcurrency
	}

	bus := &LocalBus{
		config:        config,
		subscriptions: make(map[string]*subscription),
		byKind:        make(map[Kind]map[string]*subscription),
		sem:           make(chan struct{}, config.MaxConcurrency),
		closeCh:       make(chan struct{}),
	}

	if config.DeduplicateTTL > 0 {
		bus.dedupeCache = make(map[string]time.Time)
		go bus.cleanupDedupe()
	}

	return bus
}

// subscription is an internal subscription implementation.
type subscription struct {
	id      string
	kinds   []Kind
	handler Handler
	paused  atomic.Bool
	bus     *LocalBus
}

// Publish validates evt and schedules delivery to every matching
// subscriber. It does not wait for handlers to run.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if !evt.Kind().Valid() {
		return &EventError{Event: evt, Message: "cannot publish", Err: ErrUnknownKind}
	}
	if b.config.Catalog != nil {
		if err := b.config.Catalog.Validate(evt); err != nil {
			return &EventError{Event: evt, Message: "invalid envelope", Err: err}
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &EventError{Event: evt, Message: "cannot publish", Err: ErrBusClosed}
	}

	if b.config.DeduplicateTTL > 0 && !b.recordEvent(evt) {
		return nil // Silently skip duplicates
	}

	if b.config.OnPublish != nil {
		b.config.OnPublish(ctx, evt)
	}

	// Handlers outlive the publisher; only its values are carried over.
	deliverCtx := context.WithoutCancel(ctx)

	for _, sub := range b.byKind[evt.Kind()] {
		if sub.paused.Load() {
			continue
		}

		if b.config.NonBlocking {
			select {
			case b.sem <- struct{}{}:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
				continue
			}
			b.inflight.Add(1)
			go sub.deliver(deliverCtx, evt, true)
			continue
		}

		b.inflight.Add(1)
		go sub.deliver(deliverCtx, evt, false)
	}

	return nil
}

// Subscribe creates a subscription for specific kinds.
// It returns nil if the bus is closed, the subscriber limit is reached,
// or a kind is outside the closed set.
func (b *LocalBus) Subscribe(kinds []Kind, handler Handler) Subscription {
	if len(kinds) == 0 {
		kinds = handler.Handles()
	}
	if len(kinds) == 0 {
		return nil
	}
	for _, k := range kinds {
		if !k.Valid() {
			return nil
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	if b.config.MaxSubscribers > 0 && len(b.subscriptions) >= b.config.MaxSubscribers {
		return nil
	}

	sub := &subscription{
		id:      fmt.Sprintf("sub-%d", b.nextID.Add(1)),
		kinds:   kinds,
		handler: handler,
		bus:     b,
	}

	b.subscriptions[sub.id] = sub
	for _, k := range kinds {
		if b.byKind[k] == nil {
			b.byKind[k] = make(map[string]*subscription)
		}
		b.byKind[k][sub.id] = sub
	}

	return sub
}

// SubscribedKinds returns the kinds with at least one subscription.
func (b *LocalBus) SubscribedKinds() []Kind {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Kind
	for _, k := range allKinds {
		if len(b.byKind[k]) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// Close stops accepting envelopes and waits for running handlers.
// Envelopes derived by those handlers are rejected with ErrBusClosed.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.inflight.Wait()
	return nil
}

// deliver runs the handler once and publishes whatever it derives.
func (s *subscription) deliver(ctx context.Context, evt Event, acquired bool) {
	b := s.bus
	defer b.inflight.Done()

	if !acquired {
		b.sem <- struct{}{}
	}
	derived, err := s.invoke(ctx, evt)
	<-b.sem

	if err != nil {
		var eerr *EventError
		if !errors.As(err, &eerr) {
			err = &EventError{Event: evt, Handler: HandlerName(s.handler), Message: "handler failed", Err: err}
		}
		b.reportError(evt, s.id, err)
		return
	}

	for _, next := range derived {
		if next == nil {
			continue
		}
		if perr := b.Publish(ctx, next); perr != nil {
			b.reportError(next, s.id, perr)
		}
	}
}

func (s *subscription) invoke(ctx context.Context, evt Event) (derived []Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			derived = nil
			err = &EventError{
				Event:   evt,
				Handler: HandlerName(s.handler),
				Message: "handler panicked",
				Err:     &PanicError{Value: r},
			}
		}
	}()
	return s.handler.Handle(ctx, evt)
}

func (b *LocalBus) reportError(evt Event, subscriberID string, err error) {
	if b.config.OnError != nil {
		b.config.OnError(evt, subscriberID, err)
	}
}

// ID returns the subscription identifier.
func (s *subscription) ID() string {
	return s.id
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subscriptions, s.id)
	for _, k := range s.kinds {
		if subs, ok := s.bus.byKind[k]; ok {
			delete(subs, s.id)
		}
	}
}

// Pause temporarily stops delivery.
func (s *subscription) Pause() {
	s.paused.Store(true)
}

// Resume continues delivery after pause.
func (s *subscription) Resume() {
	s.paused.Store(false)
}

// IsPaused returns true if the subscription is paused.
func (s *subscription) IsPaused() bool {
	return s.paused.Load()
}

// recordEvent stores the event id and reports whether it was new.
func (b *LocalBus) recordEvent(evt Event) bool {
	b.dedupeMu.Lock()
	defer b.dedupeMu.Unlock()

	id := evt.Header().EventID
	if _, exists := b.dedupeCache[id]; exists {
		return false
	}
	b.dedupeCache[id] = time.Now()
	return true
}

func (b *LocalBus) cleanupDedupe() {
	interval := b.config.DeduplicateTTL / 2
	if interval <= 0 {
		interval = b.config.DeduplicateTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.dedupeMu.Lock()
			cutoff := time.Now().Add(-b.config.DeduplicateTTL)
			for id, ts := range b.dedupeCache {
				if ts.Before(cutoff) {
					delete(b.dedupeCache, id)
				}
			}
			b.dedupeMu.Unlock()

		case <-b.closeCh:
			return
		}
	}
}

var _ Bus = (*LocalBus)(nil)
