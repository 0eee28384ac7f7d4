// Package trace wires OpenTelemetry tracing for webhook handling, LLM calls
// and store writes.
package trace

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span the service creates.
const TracerName = "github.com/mrsingh-rishi/callcoach"

const (
	AttrCallID      = "call.id"
	AttrEventType   = "webhook.event_type"
	AttrLLMModel    = "llm.model"
	AttrStoreTable  = "store.table"
	AttrSegmentSize = "transcript.segment_size"
)

// Config holds the configuration for tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Exporter is "stdout" or "none".
	Exporter string
	// SamplingRate is the ratio of root spans sampled (0.0 to 1.0).
	SamplingRate float64
}

// DefaultConfig returns a configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "callcoach",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Exporter:       "none",
		SamplingRate:   1.0,
	}
}

// Initialize installs the global tracer provider and returns its shutdown func.
// With the "none" exporter the global no-op provider is left in place.
func Initialize(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
		if err != nil {
			return noop, errors.Wrap(err, "create stdout exporter")
		}
		exporter = exp
	default:
		return noop, errors.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return noop, errors.Wrap(err, "create resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a span from the service tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// End records err on span (if any) and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// WebhookAttrs describes one inbound provider event.
func WebhookAttrs(eventType, callID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEventType, eventType),
		attribute.String(AttrCallID, callID),
	}
}

// WithAttr is a span start option carrying one string attribute.
func WithAttr(key, value string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String(key, value))
}
