package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// API/HTTP subsystem metrics
var (
	// HTTPRequestDuration tracks HTTP request latency
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsTotal tracks total HTTP requests by handler, method, status
	HTTPRequestsTotal *prometheus.CounterVec

	// EventClients tracks connected live event subscribers
	EventClients prometheus.Gauge
)

func initAPIMetrics() {
	HTTPRequestDuration = NewHistogramVec(
		"safedelete_api_request_duration_seconds",
		"HTTP request duration in seconds.",
		APIBuckets,
		[]string{"handler", "method", "status"},
	)

	HTTPRequestsTotal = NewCounterVec(
		"safedelete_api_requests_total",
		"Total HTTP requests processed by the dispatcher API.",
		[]string{"handler", "method", "status"},
	)

	EventClients = NewGauge(
		"safedelete_api_event_clients",
		"Number of connected WebSocket event subscribers.",
	)
}

func registerAPIMetrics() {
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(EventClients)
}
