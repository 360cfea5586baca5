// Package observability wires optional distributed tracing and a metrics
// enablement flag for the session engine. Both are no-ops until Setup is
// called with a non-zero Config; the zero value disables everything.
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	oteltrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config selects what Setup enables. The zero value disables both tracing
// and metrics, matching a node run without an observability backend.
type Config struct {
	Service   string
	TraceAddr string // OTLP/gRPC collector endpoint; empty disables export
	LogAddr   string // reserved for a structured log sink
	Metrics   bool
}

var (
	mu             sync.Mutex
	enabled        bool
	metricsEnabled bool
	tracer         trace.Tracer
	provider       *oteltrace.TracerProvider
)

// Setup configures tracing (if TraceAddr is set) and records whether
// metrics are enabled. Call Shutdown to flush and release resources.
func Setup(ctx context.Context, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	metricsEnabled = cfg.Metrics

	service := cfg.Service
	if service == "" {
		service = "transfork"
	}

	if cfg.TraceAddr == "" {
		enabled = false
		tracer = otel.Tracer(service)
		return nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.TraceAddr),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("observability: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", service)))
	if err != nil {
		return fmt.Errorf("observability: build resource: %w", err)
	}

	tp := oteltrace.NewTracerProvider(oteltrace.WithBatcher(exporter), oteltrace.WithResource(res))
	otel.SetTracerProvider(tp)

	provider = tp
	tracer = tp.Tracer(service)
	enabled = true
	return nil
}

// Shutdown flushes and releases the tracer provider, if one was created.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	enabled = false
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Enabled reports whether tracing exports to a real backend.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// MetricsEnabled reports whether Config.Metrics was set. It gates the
// Recorder methods and the open-track gauge, not the /metrics endpoint.
func MetricsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return metricsEnabled
}

func currentTracer() trace.Tracer {
	mu.Lock()
	defer mu.Unlock()
	if tracer == nil {
		return otel.Tracer("transfork")
	}
	return tracer
}
