// Package telemetry wires internal/tracing's span collector to an OTLP
// exporter, so the same per-turn spans persisted to sqlite for replay are
// also exported to a real backend (Jaeger, Tempo, Datadog, etc.) when
// config.TelemetryConfig.Enabled is set.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

const defaultServiceName = "goclaw-gateway"

// Shutdown flushes buffered spans and stops the tracer provider. Call it
// with a bounded context on process exit.
type Shutdown func(ctx context.Context) error

func noopShutdown(ctx context.Context) error { return nil }

// Init builds an OTLP exporter and tracer provider from cfg and registers it
// as the global provider. When cfg.Enabled is false, it returns the global
// no-op tracer and a no-op shutdown — callers don't need to branch on
// whether telemetry is on.
func Init(ctx context.Context, cfg config.TelemetryConfig) (oteltrace.Tracer, Shutdown, error) {
	if !cfg.Enabled {
		return otel.Tracer("goclaw"), noopShutdown, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer("goclaw"), tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}
