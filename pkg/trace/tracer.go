// Package trace wires an OpenTelemetry TracerProvider around the core's
// hook and workflow execution boundaries. Grounded on the teacher's
// pkg/observability/tracer.go (InitGlobalTracer/GetTracer over a
// sdktrace.TracerProvider, config-gated exporter construction), narrowed
// from the teacher's OTLP-over-gRPC exporter to the stdout exporter this
// module's go.mod actually carries — the core has no opinion on where
// traces ultimately land; cmd/llmspell's operator chooses the sink.
package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config gates and names the tracer provider, mirroring the teacher's
// TracerConfig shape narrowed to the stdout exporter's knobs.
type Config struct {
	Enabled      bool
	ServiceName  string
	SamplingRate float64 // fraction in [0,1]; 0 disables sampling beyond Enabled
}

// Shutdown releases the resources held by a provider built by Init.
type Shutdown func(context.Context) error

// Init builds and installs the process-global TracerProvider. When
// cfg.Enabled is false it installs nothing, leaving otel's default global
// provider (a no-op) in place, and returns a no-op Shutdown, so callers
// never need to branch on whether tracing is on.
func Init(ctx context.Context, cfg Config) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("build stdout trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SamplingRate > 0 && cfg.SamplingRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns a named tracer off the process-global provider, a thin
// wrapper kept so callers never import go.opentelemetry.io/otel directly.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
