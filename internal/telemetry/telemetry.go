// Package telemetry installs the OpenTelemetry tracer provider.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Options selects the OTLP collector.
type Options struct {
	Service  string
	Endpoint string
	Insecure bool
	// DeviceID is recorded as the service instance.
	DeviceID string
}

// Setup exports spans to the OTLP gRPC endpoint and returns the shutdown
// function. Without an endpoint tracing stays on the global no-op
// provider and shutdown does nothing.
func Setup(ctx context.Context, opts Options, log *logger.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		return noop
	}

	exportOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exportOpts = append(exportOpts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, exportOpts...)
	if err != nil {
		log.Error("otel exporter: %v", err)
		return noop
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(opts.Service))}
	if opts.DeviceID != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceID(opts.DeviceID)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		log.Warn("otel resource: %v", err)
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	log.Info("tracing to %s as %s", opts.Endpoint, opts.Service)

	return provider.Shutdown
}
