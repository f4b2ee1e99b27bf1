package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// History retention and allowed-root capacity metrics
var (
	// HistoryPrunedTotal counts history records removed by retention
	HistoryPrunedTotal prometheus.Counter

	// RootFreeBytes tracks free space on the filesystem of each allowed root
	RootFreeBytes *prometheus.GaugeVec

	// RootUsedPercent tracks used space percentage per allowed root
	RootUsedPercent *prometheus.GaugeVec
)

func initStorageMetrics() {
	HistoryPrunedTotal = NewCounter(
		"safedelete_history_pruned_total",
		"Total deletion history records removed by retention.",
	)

	RootFreeBytes = NewGaugeVec(
		"safedelete_root_free_bytes",
		"Free bytes on the filesystem holding an allowed root.",
		[]string{"root"},
	)

	RootUsedPercent = NewGaugeVec(
		"safedelete_root_used_percent",
		"Used space percentage on the filesystem holding an allowed root.",
		[]string{"root"},
	)
}

func registerStorageMetrics() {
	prometheus.MustRegister(HistoryPrunedTotal)
	prometheus.MustRegister(RootFreeBytes)
	prometheus.MustRegister(RootUsedPercent)
}
