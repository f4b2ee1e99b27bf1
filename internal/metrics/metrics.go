package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce    sync.Once
	serverMutex sync.Mutex
	currentSrv  *http.Server

	globalHealthChecker *HealthChecker
	healthMutex         sync.RWMutex
)

// Init initializes all metrics subsystems and registers them with Prometheus
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initDeletionMetrics()
		initAPIMetrics()
		initHealthMetrics()
		initStorageMetrics()

		registerDeletionMetrics()
		registerAPIMetrics()
		registerHealthMetrics()
		registerStorageMetrics()

		// visible in /metrics before the first deletion
		LastDeletionTimestamp.Set(0)
		WorkersActive.Set(0)
	})
}

// HealthHandler reports the global health checker state as JSON.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	healthMutex.RLock()
	hc := globalHealthChecker
	healthMutex.RUnlock()

	body := map[string]interface{}{"status": "ok", "healthy": true}
	status := http.StatusOK
	if hc != nil {
		components := make(map[string]string)
		for name, err := range hc.Status() {
			if err != nil {
				components[name] = err.Error()
			} else {
				components[name] = "ok"
			}
		}
		body["components"] = components
		body["uptime_seconds"] = int64(hc.Uptime().Seconds())
		if !hc.IsHealthy() {
			body["status"] = "degraded"
			body["healthy"] = false
			status = http.StatusServiceUnavailable
		}
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// StartServer starts the metrics HTTP server on addr.
// Exposes /metrics (Prometheus) and /health.
func StartServer(addr string, logger *slog.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		logger.Info("metrics server already running", "addr", currentSrv.Addr)
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", HealthHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	currentSrv = srv

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
			ErrorsTotal.Inc()
		}
	}()
}

// Shutdown gracefully shuts down the metrics server and the health checker.
func Shutdown(ctx context.Context, logger *slog.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	healthMutex.Lock()
	if globalHealthChecker != nil {
		globalHealthChecker.Stop()
		globalHealthChecker = nil
	}
	healthMutex.Unlock()

	if currentSrv == nil {
		return
	}
	if err := currentSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
		ErrorsTotal.Inc()
	}
	currentSrv = nil
}

// SetHealthChecker sets the global health checker instance
func SetHealthChecker(hc *HealthChecker) {
	healthMutex.Lock()
	defer healthMutex.Unlock()
	globalHealthChecker = hc
}
