package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// DefaultServiceName is reported as service.name on every metric
const DefaultServiceName = "docsync"

// Meter bundles a meter provider with the HTTP handler that exposes it.
type Meter struct {
	Provider metric.MeterProvider
	// Handler serves the Prometheus exposition format; nil when metrics are disabled.
	Handler  http.Handler
	shutdown func(context.Context) error
}

// NewMeter creates a Prometheus-backed meter provider. When enabled is false it
// returns a no-op provider and no handler.
func NewMeter(_ context.Context, enabled bool, serviceName string) (*Meter, error) {
	if !enabled {
		slog.Info("Metrics disabled, using no-op meter provider")
		return &Meter{
			Provider: noop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized", "service_name", serviceName)
	return &Meter{
		Provider: mp,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		shutdown: mp.Shutdown,
	}, nil
}

// Shutdown flushes and stops the provider.
func (m *Meter) Shutdown(ctx context.Context) error {
	if m == nil || m.shutdown == nil {
		return nil
	}
	return m.shutdown(ctx)
}
