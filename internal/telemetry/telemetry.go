package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "github.com/irfndi/celebrum-arbwatch"
	ServiceVersion = "1.0.0"
)

// TelemetryConfig holds configuration for telemetry
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	OTLPEndpoint string
	ServiceName  string
	Environment  string
}

// Provider holds the tracer provider shutdown hook
type Provider struct {
	shutdown func(context.Context) error
}

// Shutdown flushes spans and stops the provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// InitTelemetry installs the global tracer provider. With telemetry disabled
// the global no-op provider stays in place.
func InitTelemetry(ctx context.Context, config TelemetryConfig) (*Provider, error) {
	if !config.Enabled {
		return &Provider{}, nil
	}

	exporter, err := newExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	name := config.ServiceName
	if name == "" {
		name = ServiceName
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{shutdown: tp.Shutdown}, nil
}

func newExporter(ctx context.Context, config TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(config.Exporter) {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	case "", "otlp":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", config.Exporter)
	}
}

// Tracer returns a named tracer from the global provider
func Tracer(name string) trace.Tracer {
	return otel.Tracer(ServiceName + "/" + name)
}

// GetHTTPTracer returns the tracer used for inbound HTTP requests
func GetHTTPTracer() trace.Tracer {
	return Tracer("http")
}
