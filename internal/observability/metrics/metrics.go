// Package metrics provides Prometheus collectors for the CEC service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry
	CEC      *CECMetrics
	HTTP     *HTTPMetrics
}

// New creates a registry with the Go runtime and process collectors plus
// the CEC and HTTP metrics.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	cecMetrics, err := NewCECMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEC metrics: %w", err)
	}

	httpMetrics, err := NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		CEC:      cecMetrics,
		HTTP:     httpMetrics,
	}, nil
}

// Registry returns the registry to serve on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
