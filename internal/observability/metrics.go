package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// TelemetrySystem is the process-wide meter provider. Nil until
// InitTelemetry succeeds.
var TelemetrySystem *sdkmetric.MeterProvider

// PrometheusExporter bridges the meter provider into the Prometheus
// registry. Nil until InitTelemetry succeeds.
var PrometheusExporter *otelprom.Exporter

// Metrics holds the instruments the service records against.
type Metrics struct {
	JobsSubmitted metric.Int64Counter
	JobsCompleted metric.Int64Counter
	JobsActive    metric.Int64UpDownCounter
	JobDuration   metric.Float64Histogram

	HTTPRequests       metric.Int64Counter
	HTTPRequestSeconds metric.Float64Histogram
}

// InitTelemetry builds the meter provider, registers the instruments, and
// returns the handler serving the Prometheus scrape endpoint.
func InitTelemetry(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("holmes-agent")

	m := &Metrics{}
	if m.JobsSubmitted, err = meter.Int64Counter("jobs_submitted_total",
		metric.WithDescription("Jobs accepted at the submission boundary")); err != nil {
		return nil, nil, err
	}
	if m.JobsCompleted, err = meter.Int64Counter("jobs_completed_total",
		metric.WithDescription("Jobs that reached a terminal state")); err != nil {
		return nil, nil, err
	}
	if m.JobsActive, err = meter.Int64UpDownCounter("jobs_active",
		metric.WithDescription("Jobs currently in a non-terminal state")); err != nil {
		return nil, nil, err
	}
	if m.JobDuration, err = meter.Float64Histogram("job_duration_seconds",
		metric.WithDescription("Wall time from submission to terminal state")); err != nil {
		return nil, nil, err
	}
	if m.HTTPRequests, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("HTTP requests served")); err != nil {
		return nil, nil, err
	}
	if m.HTTPRequestSeconds, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency")); err != nil {
		return nil, nil, err
	}

	TelemetrySystem = provider
	PrometheusExporter = exporter

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// ShutdownTelemetry flushes and stops the meter provider.
func ShutdownTelemetry(ctx context.Context) error {
	if TelemetrySystem == nil {
		return nil
	}
	return TelemetrySystem.Shutdown(ctx)
}
