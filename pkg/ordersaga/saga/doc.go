// Package saga contains the choreography handlers for order placement.
//
// There is no orchestrator. Each handler subscribes to the envelopes it
// owns and returns the next envelope of the flow:
//
//	order.create                     -> OrderHandler.Create
//	inventory.reservation.requested  -> InventoryHandler.Reserve
//	inventory.reservation.succeeded  -> OrderHandler.Confirm
//	inventory.reservation.failed     -> OrderHandler.Cancel
//	order.completed                  (terminal, consumed by the boundary)
//
// The order handler owns the order aggregate and its status. The
// inventory handler owns reservations and undoes its own partial work
// before reporting a failed batch.
package saga

import (
	"errors"
	"log/slog"
	"time"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/order"
)

// ErrSubscribe is returned when the bus refuses a subscription.
var ErrSubscribe = errors.New("bus refused subscription")

// Option configures a handler.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	numbers    *order.NumberGenerator
	compensate bool
}

func defaultOptions() *options {
	return &options{
		logger:     slog.Default(),
		now:        time.Now,
		compensate: true,
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithNumberGenerator sets the order number source for OrderHandler.
func WithNumberGenerator(g *order.NumberGenerator) Option {
	return func(o *options) {
		o.numbers = g
	}
}

// WithCompensation controls whether InventoryHandler releases the items
// it did reserve when another item in the same batch fails. Default true.
func WithCompensation(enabled bool) Option {
	return func(o *options) {
		o.compensate = enabled
	}
}

// subscribe registers each handler on bus with mw applied.
func subscribe(bus event.Bus, handlers []event.Handler, mw []event.MiddlewareFunc) ([]event.Subscription, error) {
	subs := make([]event.Subscription, 0, len(handlers))
	for _, h := range handlers {
		sub := bus.Subscribe(nil, event.ChainMiddleware(h, mw...))
		if sub == nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return nil, ErrSubscribe
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
