package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/courier"

// Tracer provides OpenTelemetry tracing for Courier.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Courier tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, endpointID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "courier.delivery",
		trace.WithAttributes(
			attribute.String("courier.delivery_id", deliveryID),
			attribute.String("courier.endpoint_id", endpointID),
			attribute.String("courier.event_type", eventType),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("courier.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("courier.error", err))
	}
	span.End()
}
