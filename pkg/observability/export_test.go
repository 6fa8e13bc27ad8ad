package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// BuildResource exposes buildResource for tests.
func BuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// RootSpanSampled reports whether a root span is sampled at the given ratio.
func RootSpanSampled(ratio float64) bool {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(batchSampler(ratio)))

	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "batch")
	defer span.End()

	return span.SpanContext().IsSampled()
}
