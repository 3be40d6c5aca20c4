package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// serviceName is reported as service.name on every span and metric.
const serviceName = "chalkboard"

// Telemetry owns the meter and tracer providers installed by [Init].
type Telemetry struct {
	meters  *sdkmetric.MeterProvider
	tracers *sdktrace.TracerProvider
}

// TelemetryOption tunes [Init].
type TelemetryOption func(*telemetryConfig)

type telemetryConfig struct {
	spans      sdktrace.SpanExporter
	registerer prometheus.Registerer
}

// WithSpanExporter exports finished spans synchronously to exp. Without it
// spans are created for log correlation but never leave the process.
func WithSpanExporter(exp sdktrace.SpanExporter) TelemetryOption {
	return func(c *telemetryConfig) { c.spans = exp }
}

// WithRegisterer registers the Prometheus collector with r instead of the
// default registerer that [MetricsHandler] serves.
func WithRegisterer(r prometheus.Registerer) TelemetryOption {
	return func(c *telemetryConfig) { c.registerer = r }
}

// Init installs global meter and tracer providers tagged with the chalkboard
// service name and version. Metrics are exposed through Prometheus. Call
// [Telemetry.Shutdown] before exit.
func Init(ctx context.Context, version string, opts ...TelemetryOption) (*Telemetry, error) {
	cfg := telemetryConfig{registerer: prometheus.DefaultRegisterer}
	for _, o := range opts {
		o(&cfg)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
		resource.WithProcessRuntimeVersion(),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reader, err := promexporter.New(promexporter.WithRegisterer(cfg.registerer))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.spans != nil {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(cfg.spans))
	}

	t := &Telemetry{
		meters:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)),
		tracers: sdktrace.NewTracerProvider(tpOpts...),
	}
	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	return t, nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracers.Shutdown(ctx), t.meters.Shutdown(ctx))
}
