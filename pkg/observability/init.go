package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names both the tracer and the meter.
const instrumentationName = "scopestat"

// Providers holds the initialized observability providers.
type Providers struct {
	// Tracer creates the batch and per-file spans.
	Tracer trace.Tracer

	// Meter creates the batch and tool instruments.
	Meter metric.Meter

	// Logger is the context-aware structured logger.
	Logger *slog.Logger

	// Shutdown writes the metrics textfile when configured, flushes OTLP
	// exporters and releases resources. Call it once before process exit.
	Shutdown func(ctx context.Context) error
}

type shutdownFunc func(ctx context.Context) error

// Init builds the telemetry backends selected by cfg. An OTLP endpoint enables
// span and metric export; a metrics textfile enables the Prometheus snapshot.
// Whatever is not selected stays a no-op.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()

	res, err := buildResource(cfg)
	if err != nil {
		return Providers{}, err
	}

	var closers []shutdownFunc

	var tracerProvider trace.TracerProvider = nooptrace.NewTracerProvider()

	if cfg.OTLPEndpoint != "" {
		tp, tpErr := newOTLPTracerProvider(ctx, cfg, res)
		if tpErr != nil {
			return Providers{}, fmt.Errorf("build tracer provider: %w", tpErr)
		}

		tracerProvider = tp
		closers = append(closers, tp.Shutdown)
	}

	meterProvider, mpShutdown, err := buildMeterProvider(ctx, cfg, res)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("build meter provider: %w", err), closeAll(ctx, closers))
	}

	if mpShutdown != nil {
		// Meter provider closes first.
		closers = slices.Insert(closers, 0, mpShutdown)
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeoutSec * time.Second
	}

	return Providers{
		Tracer: tracerProvider.Tracer(instrumentationName),
		Meter:  meterProvider.Meter(instrumentationName),
		Logger: NewLogger(cfg, os.Stderr),
		Shutdown: func(shutdownCtx context.Context) error {
			deadlineCtx, cancel := context.WithTimeout(shutdownCtx, timeout)
			defer cancel()

			return closeAll(deadlineCtx, closers)
		},
	}, nil
}

func closeAll(ctx context.Context, closers []shutdownFunc) error {
	errs := make([]error, 0, len(closers))
	for _, closeFn := range closers {
		errs = append(errs, closeFn(ctx))
	}

	return errors.Join(errs...)
}

func buildResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("app.mode", string(cfg.Mode)))
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	return res, nil
}

func newOTLPTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}

	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(batchSampler(cfg.SampleRatio)),
	), nil
}

// batchSampler keeps every batch trace unless a ratio below one is configured.
// Per-file spans follow their batch span's decision.
func batchSampler(ratio float64) sdktrace.Sampler {
	if ratio > 0 && ratio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}

	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

// buildMeterProvider attaches an OTLP periodic reader and/or a Prometheus
// textfile reader. With neither configured the provider is a no-op and the
// returned shutdown is nil.
func buildMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (metric.MeterProvider, shutdownFunc, error) {
	if cfg.OTLPEndpoint == "" && cfg.MetricsTextfile == "" {
		return noopmetric.NewMeterProvider(), nil, nil
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}

		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}

		if len(cfg.OTLPHeaders) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
		}

		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create metric exporter: %w", err)
		}

		providerOpts = append(providerOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	var textfile *TextfileExporter

	if cfg.MetricsTextfile != "" {
		var err error

		textfile, err = NewTextfileExporter(cfg.MetricsTextfile)
		if err != nil {
			return nil, nil, err
		}

		providerOpts = append(providerOpts, sdkmetric.WithReader(textfile.Reader()))
	}

	mp := sdkmetric.NewMeterProvider(providerOpts...)

	return mp, func(shutdownCtx context.Context) error {
		var writeErr error

		if textfile != nil {
			writeErr = textfile.Write()
		}

		return errors.Join(writeErr, mp.Shutdown(shutdownCtx))
	}, nil
}

// ParseOTLPHeaders parses an OTLP headers string in "key=value,key=value"
// format. Returns nil for empty or invalid input.
func ParseOTLPHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}

	result := make(map[string]string)

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}

		result[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}
