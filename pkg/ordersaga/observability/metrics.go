package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Flow outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

// Reservation outcomes.
const (
	ReservationReserved     = "reserved"
	ReservationReleased     = "released"
	ReservationInsufficient = "insufficient"
	ReservationConflict     = "conflict"
	ReservationError        = "error"
)

// MetricsRecorder records order flow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordFlow records the outcome of one InitiateOrder call.
	RecordFlow(ctx context.Context, outcome string, duration time.Duration)

	// RecordReservation records one reserve or release attempt.
	RecordReservation(ctx context.Context, outcome string)

	// RecordHandler records a handler invocation.
	RecordHandler(ctx context.Context, kind string, duration time.Duration, err error)

	// RecordOrphanTerminal records a terminal envelope with no pending caller.
	RecordOrphanTerminal(ctx context.Context)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	flows          metric.Int64Counter
	flowLatency    metric.Float64Histogram
	reservations   metric.Int64Counter
	handlerCalls   metric.Int64Counter
	handlerLatency metric.Float64Histogram
	handlerFaults  metric.Int64Counter
	orphans        metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("ordersaga")

	flows, err := meter.Int64Counter("ordersaga.flow.count",
		metric.WithDescription("Number of order flows by outcome"),
	)
	if err != nil {
		return nil, err
	}

	flowLatency, err := meter.Float64Histogram("ordersaga.flow.latency_ms",
		metric.WithDescription("Order flow latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	reservations, err := meter.Int64Counter("ordersaga.reservation.count",
		metric.WithDescription("Number of reservation store mutations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	handlerCalls, err := meter.Int64Counter("ordersaga.handler.invocations",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("ordersaga.handler.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	handlerFaults, err := meter.Int64Counter("ordersaga.handler.faults",
		metric.WithDescription("Number of failed or panicking handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	orphans, err := meter.Int64Counter("ordersaga.terminal.orphans",
		metric.WithDescription("Terminal envelopes that found no pending caller"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		flows:          flows,
		flowLatency:    flowLatency,
		reservations:   reservations,
		handlerCalls:   handlerCalls,
		handlerLatency: handlerLatency,
		handlerFaults:  handlerFaults,
		orphans:        orphans,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordFlow records a flow outcome.
func (m *otelMetrics) RecordFlow(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.flows.Add(ctx, 1, attrs)
	m.flowLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordReservation records a reservation store mutation.
func (m *otelMetrics) RecordReservation(ctx context.Context, outcome string) {
	m.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordHandler records a handler invocation.
func (m *otelMetrics) RecordHandler(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.handlerCalls.Add(ctx, 1, attrs)
	m.handlerLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.handlerFaults.Add(ctx, 1, attrs)
	}
}

// RecordOrphanTerminal records an orphaned terminal envelope.
func (m *otelMetrics) RecordOrphanTerminal(ctx context.Context) {
	m.orphans.Add(ctx, 1)
}
