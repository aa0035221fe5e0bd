package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the REST API and WebSocket hub.
type HTTPMetrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	wsActiveConnections prometheus.Gauge
	wsMessagesSent      prometheus.Counter
}

// NewHTTPMetrics creates and registers new HTTP metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cec_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cec_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.wsActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cec_websocket_active_connections",
		Help: "Number of connected WebSocket clients",
	})

	m.wsMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cec_websocket_messages_sent_total",
		Help: "Total number of event messages queued to WebSocket clients",
	})
}

// Describe implements the Collector interface
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
	m.wsActiveConnections.Describe(ch)
	m.wsMessagesSent.Describe(ch)
}

// Collect implements the Collector interface
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
	m.wsActiveConnections.Collect(ch)
	m.wsMessagesSent.Collect(ch)
}

// RecordRequest records one completed HTTP request. route is the router
// pattern (e.g. /api/v1/devices/{id}), not the raw path.
func (m *HTTPMetrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// WebSocketConnected increments the active connection gauge.
func (m *HTTPMetrics) WebSocketConnected() { m.wsActiveConnections.Inc() }

// WebSocketDisconnected decrements the active connection gauge.
func (m *HTTPMetrics) WebSocketDisconnected() { m.wsActiveConnections.Dec() }

// WebSocketMessageSent counts a queued event message.
func (m *HTTPMetrics) WebSocketMessageSent() { m.wsMessagesSent.Inc() }
