// Package telemetry wires OpenTelemetry metrics to a Prometheus scrape
// endpoint and exposes the instruments the synthesis and recognition
// pipelines record into.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const instrumentationName = "github.com/example/go-speechkit"

// Provider owns the meter provider and its scrape handler.
type Provider struct {
	mp      *sdkmetric.MeterProvider
	handler http.Handler
	metrics *Metrics
}

// Setup builds a meter provider exporting to a private Prometheus registry.
func Setup(serviceName, version string) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	reg := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	metrics, err := NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}

	slog.Debug("telemetry initialized", "exporter", "prometheus", "service", serviceName)

	return &Provider{
		mp:      mp,
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		metrics: metrics,
	}, nil
}

func (p *Provider) Handler() http.Handler { return p.handler }

func (p *Provider) Metrics() *Metrics { return p.metrics }

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
