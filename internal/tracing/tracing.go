// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

const ServiceName = "corporate-agent"

const defaultEndpoint = "localhost:4318"

type Config struct {
	Enabled bool
	// Endpoint is host:port or a URL; http:// URLs export without TLS.
	Endpoint    string
	Environment string
}

// Init installs an OTLP/HTTP tracer provider and returns its shutdown
// function. Tracing is off unless enabled; an exporter that cannot be built
// leaves tracing off with a warning.
func Init(ctx context.Context, cfg Config) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		logx.Debug().Msg("OpenTelemetry tracing is disabled")
		return noop
	}

	endpoint, insecure := exporterEndpoint(cfg.Endpoint)
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		logx.Warn().Err(err).Msg("Failed to create OTLP exporter; tracing disabled")
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	logx.Info().Str("endpoint", endpoint).Bool("insecure", insecure).Msg("OpenTelemetry tracer initialized")
	return tp.Shutdown
}

// exporterEndpoint reduces the configured endpoint to host:port. A bare
// host:port, or an http:// URL, is treated as plain HTTP.
func exporterEndpoint(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultEndpoint, true
	}
	if !strings.Contains(raw, "://") {
		return raw, true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, true
	}
	return u.Host, u.Scheme != "https"
}
