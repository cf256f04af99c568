package ordersaga

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/ordersaga/pkg/ordersaga/event"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/observability"
	"github.com/randalmurphal/ordersaga/pkg/ordersaga/order"
)

// serviceConfig holds Service configuration.
type serviceConfig struct {
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	awaitTimeout   time.Duration
	compensate     bool
	maxConcurrency int
	dedupeTTL      time.Duration
	orders         order.Repository
	deadLetters    event.DeadLetterQueue
	taps           []func(context.Context, event.Event)
	now            func() time.Time
}

func defaultServiceConfig() *serviceConfig {
	return &serviceConfig{
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		awaitTimeout:   5 * time.Second,
		compensate:     true,
		maxConcurrency: 64,
		now:            time.Now,
	}
}

// Option configures a Service.
type Option func(*serviceConfig)

// WithLogger sets the service logger. Handlers and the store log through it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables metrics recording.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *serviceConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables a span per flow and per handler invocation.
func WithTracing(sm observability.SpanManager) Option {
	return func(c *serviceConfig) {
		if sm != nil {
			c.spans = sm
		}
	}
}

// WithAwaitTimeout sets how long InitiateOrder waits for the terminal
// envelope. Zero polls once. Default: 5s.
func WithAwaitTimeout(d time.Duration) Option {
	return func(c *serviceConfig) {
		if d >= 0 {
			c.awaitTimeout = d
		}
	}
}

// WithCompensation controls whether a failed batch releases the items it
// did reserve. Default: true.
func WithCompensation(enabled bool) Option {
	return func(c *serviceConfig) {
		c.compensate = enabled
	}
}

// WithMaxConcurrency bounds concurrently running handler invocations.
func WithMaxConcurrency(n int) Option {
	return func(c *serviceConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithDedupeTTL drops envelopes whose id was published within ttl.
func WithDedupeTTL(ttl time.Duration) Option {
	return func(c *serviceConfig) {
		c.dedupeTTL = ttl
	}
}

// WithOrderRepository sets where orders are stored. Default: in memory.
func WithOrderRepository(repo order.Repository) Option {
	return func(c *serviceConfig) {
		c.orders = repo
	}
}

// WithDeadLetters sets where handler faults and orphaned terminal
// envelopes are recorded. Default: an in-memory queue.
func WithDeadLetters(dlq event.DeadLetterQueue) Option {
	return func(c *serviceConfig) {
		c.deadLetters = dlq
	}
}

// WithClock overrides the time source for orders and ledger entries.
func WithClock(now func() time.Time) Option {
	return func(c *serviceConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEventTap calls fn for every envelope the bus accepts, including
// derived ones. fn runs on the publishing goroutine and must not block.
func WithEventTap(fn func(ctx context.Context, evt event.Event)) Option {
	return func(c *serviceConfig) {
		if fn != nil {
			c.taps = append(c.taps, fn)
		}
	}
}
