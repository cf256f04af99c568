package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordFlow does nothing.
func (NoopMetrics) RecordFlow(_ context.Context, _ string, _ time.Duration) {}

// RecordReservation does nothing.
func (NoopMetrics) RecordReservation(_ context.Context, _ string) {}

// RecordHandler does nothing.
func (NoopMetrics) RecordHandler(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordOrphanTerminal does nothing.
func (NoopMetrics) RecordOrphanTerminal(_ context.Context) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartFlowSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartFlowSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartHandlerSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartHandlerSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
