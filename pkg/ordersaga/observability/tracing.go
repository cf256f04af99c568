package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the ordersaga tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("ordersaga")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartFlowSpan starts a span covering one InitiateOrder call.
	StartFlowSpan(ctx context.Context, txID string) (context.Context, trace.Span)

	// StartHandlerSpan starts a span for one handler invocation.
	StartHandlerSpan(ctx context.Context, handler, kind, txID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartFlowSpan starts a span for an order flow.
func (m *otelSpanManager) StartFlowSpan(ctx context.Context, txID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ordersaga.flow",
		trace.WithAttributes(attribute.String("tx.id", txID)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartHandlerSpan starts a span for a handler invocation.
func (m *otelSpanManager) StartHandlerSpan(ctx context.Context, handler, kind, txID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ordersaga.handle."+kind,
		trace.WithAttributes(
			attribute.String("handler", handler),
			attribute.String("event.kind", kind),
			attribute.String("tx.id", txID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
