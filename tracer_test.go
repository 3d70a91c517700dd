package idtoken

import (
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestOpenTelemetryTracer(t *testing.T) {
	tracer := NewOpenTelemetryTracer(noop.NewTracerProvider().Tracer("test"))

	span := tracer.StartSpan("idtoken.Check")
	span.SetTag("check.result", "ok")
	span.Finish()
}

func TestNoopTracer(t *testing.T) {
	var tracer Tracer = &NoopTracer{}
	span := tracer.StartSpan("idtoken.Check")
	span.SetTag("check.result", "ok")
	span.Finish()
}
