// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider wires an OpenTelemetry meter provider to a Prometheus exporter
// and owns the MetricsCollector the dispatcher reports through. There is no
// tracer here: this service's observability surface is metrics only.
type Provider struct {
	mp           *metric.MeterProvider
	promExporter *prometheus.Exporter
	collector    *MetricsCollector
}

// NewProvider builds a Provider for the given service identity. The returned
// Provider's Collector() structurally satisfies dispatch.Metrics.
func NewProvider(serviceName, version string) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)

	collector, err := NewMetricsCollector(mp)
	if err != nil {
		return nil, fmt.Errorf("creating metrics collector: %w", err)
	}

	return &Provider{
		mp:           mp,
		promExporter: promExporter,
		collector:    collector,
	}, nil
}

// Collector returns the MetricsCollector instruments are recorded through.
func (p *Provider) Collector() *MetricsCollector {
	return p.collector
}

// MetricsHandler returns an HTTP handler for the Prometheus metrics
// endpoint. The OTel Prometheus exporter registers with the default
// Prometheus registry, so promhttp.Handler is all that is needed.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Shutdown releases the meter provider's resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
