// Package telemetry wraps OpenTelemetry tracing for the automation loop
// (C10) and tool executor (C9): one span per tick, one span per tool call.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Enabled gates whether traces are exported at all; spec §7's
	// trace_enabled opt-in ring buffer.
	Enabled bool
}

type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	Tracer         trace.Tracer
}

// Init builds a tracer provider writing to stdout. There is no collector in
// this deployment shape; an operator tails the process log for spans.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	sampler := sdktrace.NeverSample()
	var opts []sdktrace.TracerProviderOption
	opts = append(opts, sdktrace.WithResource(res))

	if cfg.Enabled {
		exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			return nil, fmt.Errorf("build stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		sampler = sdktrace.AlwaysSample()
	}
	opts = append(opts, sdktrace.WithSampler(sampler))

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{TracerProvider: tp, Tracer: tp.Tracer(cfg.ServiceName)}, nil
}

// StartTick opens a span for one automation loop tick (C10).
func (t *Telemetry) StartTick(ctx context.Context) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, "automation.tick")
}

// StartTool opens a span for one tool executor invocation (C9).
func (t *Telemetry) StartTool(ctx context.Context, tool string) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, "tool."+tool)
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return t.TracerProvider.Shutdown(shutdownCtx)
}
