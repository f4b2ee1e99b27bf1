package deletion

import (
	"time"

	"safe-delete/internal/metrics"
)

// Metrics receives deletion instrumentation.
type Metrics interface {
	WorkerStarted()
	WorkerFinished()
	ExecutionFault()
	InternalError()
	Observe(objectType, kind string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) WorkerStarted()                       {}
func (nopMetrics) WorkerFinished()                      {}
func (nopMetrics) ExecutionFault()                      {}
func (nopMetrics) InternalError()                       {}
func (nopMetrics) Observe(string, string, time.Duration) {}

// PrometheusMetrics forwards to the global collectors in package metrics.
// metrics.Init must have been called.
type PrometheusMetrics struct{}

func (PrometheusMetrics) WorkerStarted() {
	metrics.WorkersActive.Inc()
}

func (PrometheusMetrics) WorkerFinished() {
	metrics.WorkersActive.Dec()
}

func (PrometheusMetrics) ExecutionFault() {
	metrics.ExecutionFaultsTotal.Inc()
}

func (PrometheusMetrics) InternalError() {
	metrics.ErrorsTotal.Inc()
}

func (PrometheusMetrics) Observe(objectType, kind string, d time.Duration) {
	metrics.RecordDeletion(objectType, kind, d)
}
