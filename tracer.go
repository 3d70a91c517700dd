package idtoken

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer is a minimal tracing interface for the validator.
type Tracer interface {
	StartSpan(operationName string) Span
}

// Span is one traced operation.
type Span interface {
	Finish()
	SetTag(key, value string)
}

// NoopTracer is the default tracer and records nothing.
type NoopTracer struct{}

func (t *NoopTracer) StartSpan(operationName string) Span { return &NoopSpan{} }

// NoopSpan is the span produced by NoopTracer.
type NoopSpan struct{}

func (s *NoopSpan) Finish()                  {}
func (s *NoopSpan) SetTag(key, value string) {}

// OpenTelemetryTracer implements Tracer on an OpenTelemetry tracer.
type OpenTelemetryTracer struct {
	tracer oteltrace.Tracer
}

// NewOpenTelemetryTracer wraps an OpenTelemetry tracer.
func NewOpenTelemetryTracer(tracer oteltrace.Tracer) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tracer}
}

func (t *OpenTelemetryTracer) StartSpan(operationName string) Span {
	_, span := t.tracer.Start(context.Background(), operationName)
	return &openTelemetrySpan{span: span}
}

type openTelemetrySpan struct {
	span oteltrace.Span
}

func (s *openTelemetrySpan) Finish() {
	s.span.End()
}

func (s *openTelemetrySpan) SetTag(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}
