package event

import (
	"context"
	"fmt"
	"time"
)

// HandlerName returns a name for a handler (for logging/metrics).
func HandlerName(h Handler) string {
	if n, ok := h.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

// wrapped keeps the name and kinds of the handler it decorates.
type wrapped struct {
	HandlerFunc
	name  string
	kinds []Kind
}

func (w *wrapped) Name() string    { return w.name }
func (w *wrapped) Handles() []Kind { return w.kinds }

func wrap(next Handler, fn HandlerFunc) Handler {
	return &wrapped{HandlerFunc: fn, name: HandlerName(next), kinds: next.Handles()}
}

// LoggingMiddleware reports each invocation to logFn.
func LoggingMiddleware(logFn func(evt Event, handlerName string, duration time.Duration, err error)) MiddlewareFunc {
	return func(next Handler) Handler {
		name := HandlerName(next)
		return wrap(next, func(ctx context.Context, evt Event) ([]Event, error) {
			start := time.Now()
			result, err := next.Handle(ctx, evt)
			logFn(evt, name, time.Since(start), err)
			return result, err
		})
	}
}

// RecoveryMiddleware converts handler panics into errors.
func RecoveryMiddleware() MiddlewareFunc {
	return func(next Handler) Handler {
		return wrap(next, func(ctx context.Context, evt Event) (result []Event, err error) {
			defer func() {
				if r := recover(); r != nil {
					result = nil
					err = &EventError{
						Event:   evt,
						Handler: HandlerName(next),
						Message: "handler panicked",
						Err:     &PanicError{Value: r},
					}
				}
			}()
			return next.Handle(ctx, evt)
		})
	}
}

// MetricsMiddleware records handler metrics.
func MetricsMiddleware(
	onStart func(kind Kind),
	onComplete func(kind Kind, duration time.Duration, err error),
) MiddlewareFunc {
	return func(next Handler) Handler {
		return wrap(next, func(ctx context.Context, evt Event) ([]Event, error) {
			if onStart != nil {
				onStart(evt.Kind())
			}
			start := time.Now()
			result, err := next.Handle(ctx, evt)
			if onComplete != nil {
				onComplete(evt.Kind(), time.Since(start), err)
			}
			return result, err
		})
	}
}

// CorrelationMiddleware rejects derived envelopes that left the flow of
// the envelope that caused them.
func CorrelationMiddleware() MiddlewareFunc {
	return func(next Handler) Handler {
		return wrap(next, func(ctx context.Context, evt Event) ([]Event, error) {
			result, err := next.Handle(ctx, evt)
			if err != nil {
				return nil, err
			}
			txID := evt.Header().TransactionID
			for _, derived := range result {
				if got := derived.Header().TransactionID; got != txID {
					return nil, &EventError{
						Event:   derived,
						Handler: HandlerName(next),
						Message: fmt.Sprintf("derived envelope changed transaction id %q to %q", txID, got),
					}
				}
			}
			return result, nil
		})
	}
}

// TracingMiddleware runs each invocation between start and the finish
// function start returns. start may replace the context, typically to
// carry a span.
func TracingMiddleware(start func(ctx context.Context, evt Event, handlerName string) (context.Context, func(error))) MiddlewareFunc {
	return func(next Handler) Handler {
		name := HandlerName(next)
		return wrap(next, func(ctx context.Context, evt Event) ([]Event, error) {
			ctx, finish := start(ctx, evt, name)
			result, err := next.Handle(ctx, evt)
			finish(err)
			return result, err
		})
	}
}

// Named gives h a stable name for logs, spans, and dead letters.
func Named(name string, h Handler) Handler {
	return &wrapped{HandlerFunc: h.Handle, name: name, kinds: h.Handles()}
}
