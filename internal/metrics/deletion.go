package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Deletion subsystem metrics
var (
	// DeletionsTotal counts finished delete requests by object type and outcome kind
	DeletionsTotal *prometheus.CounterVec

	// DeletionDuration tracks time from worker spawn to outcome
	DeletionDuration *prometheus.HistogramVec

	// WorkersActive tracks isolated deletion workers currently running
	WorkersActive prometheus.Gauge

	// ExecutionFaultsTotal counts workers that terminated without returning a result
	ExecutionFaultsTotal prometheus.Counter

	// LastDeletionTimestamp records Unix timestamp of the last successful deletion
	LastDeletionTimestamp prometheus.Gauge
)

func initDeletionMetrics() {
	DeletionsTotal = NewCounterVec(
		"safedelete_deletions_total",
		"Total delete requests processed, by object type and outcome kind.",
		[]string{"object_type", "kind"},
	)

	DeletionDuration = NewHistogramVec(
		"safedelete_deletion_duration_seconds",
		"Duration of delete requests in seconds.",
		DeleteBuckets,
		[]string{"object_type"},
	)

	WorkersActive = NewGauge(
		"safedelete_workers_active",
		"Number of isolated deletion workers currently running.",
	)

	ExecutionFaultsTotal = NewCounter(
		"safedelete_execution_faults_total",
		"Total deletion workers that terminated abnormally.",
	)

	LastDeletionTimestamp = NewGauge(
		"safedelete_last_deletion_timestamp_seconds",
		"Timestamp of the last successful deletion (Unix epoch seconds).",
	)
}

func registerDeletionMetrics() {
	prometheus.MustRegister(DeletionsTotal)
	prometheus.MustRegister(DeletionDuration)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(ExecutionFaultsTotal)
	prometheus.MustRegister(LastDeletionTimestamp)
}

// RecordDeletion updates counters and the duration histogram for one finished request.
// kind is "none" for a successful deletion.
func RecordDeletion(objectType, kind string, d time.Duration) {
	DeletionsTotal.WithLabelValues(objectType, kind).Inc()
	DeletionDuration.WithLabelValues(objectType).Observe(d.Seconds())
	if kind == "none" {
		LastDeletionTimestamp.Set(float64(time.Now().Unix()))
	}
}
