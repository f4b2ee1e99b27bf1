package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Service health metrics
var (
	// ServiceStartTime records daemon start timestamp
	ServiceStartTime prometheus.Gauge

	// ComponentHealthy tracks individual component health
	ComponentHealthy *prometheus.GaugeVec

	// HealthCheckDuration tracks health check execution time
	HealthCheckDuration *prometheus.HistogramVec

	// HealthCheckFailures counts consecutive failures per component
	HealthCheckFailures *prometheus.GaugeVec

	// ErrorsTotal tracks internal errors that did not change a deletion outcome
	// (history writes, event broadcast, failed health checks)
	ErrorsTotal prometheus.Counter
)

var errHealthCheckTimeout = errors.New("health check timeout")

func initHealthMetrics() {
	ServiceStartTime = NewGauge(
		"safedelete_start_timestamp_seconds",
		"Unix timestamp when the service started.",
	)

	ComponentHealthy = NewGaugeVec(
		"safedelete_component_healthy",
		"Component health status (1=healthy, 0=unhealthy).",
		[]string{"component"},
	)

	HealthCheckDuration = NewHistogramVec(
		"safedelete_health_check_duration_seconds",
		"Time taken to execute health checks.",
		CheckBuckets,
		[]string{"component"},
	)

	HealthCheckFailures = NewGaugeVec(
		"safedelete_health_check_failures_consecutive",
		"Consecutive health check failures per component.",
		[]string{"component"},
	)

	ErrorsTotal = NewCounter(
		"safedelete_internal_errors_total",
		"Total internal errors that did not affect a deletion outcome.",
	)
}

func registerHealthMetrics() {
	prometheus.MustRegister(ServiceStartTime)
	prometheus.MustRegister(ComponentHealthy)
	prometheus.MustRegister(HealthCheckDuration)
	prometheus.MustRegister(HealthCheckFailures)
	prometheus.MustRegister(ErrorsTotal)
}

// HealthChecker runs periodic checks for supporting components
// (history database, allowed roots). Deletion itself has no health state.
type HealthChecker struct {
	mu         sync.RWMutex
	startTime  time.Time
	components map[string]*componentHealth
	interval   time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	started    bool
}

type componentHealth struct {
	check        func() error
	timeout      time.Duration
	healthy      bool
	failureCount int
	lastErr      error
}

// NewHealthChecker creates a checker that runs every interval once started.
func NewHealthChecker(interval time.Duration) *HealthChecker {
	hc := &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]*componentHealth),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
	ServiceStartTime.Set(float64(hc.startTime.Unix()))
	return hc
}

// RegisterComponent adds a check. A zero timeout runs the check inline.
func (hc *HealthChecker) RegisterComponent(name string, check func() error, timeout time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = &componentHealth{check: check, timeout: timeout, healthy: true}
	ComponentHealthy.WithLabelValues(name).Set(1)
	HealthCheckFailures.WithLabelValues(name).Set(0)
}

// Start begins periodic checking. Safe to call more than once.
func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	if hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = true
	hc.mu.Unlock()

	hc.wg.Add(1)
	go hc.loop()
}

// Stop halts checking and waits for the loop to exit.
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = false
	hc.mu.Unlock()

	close(hc.stopCh)
	hc.wg.Wait()
}

func (hc *HealthChecker) loop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.RunChecks()
	for {
		select {
		case <-ticker.C:
			hc.RunChecks()
		case <-hc.stopCh:
			return
		}
	}
}

// RunChecks executes every registered check once.
func (hc *HealthChecker) RunChecks() {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	for name, comp := range hc.components {
		start := time.Now()
		err := runWithTimeout(comp.check, comp.timeout)
		HealthCheckDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		comp.lastErr = err
		if err != nil {
			comp.healthy = false
			comp.failureCount++
			ComponentHealthy.WithLabelValues(name).Set(0)
			HealthCheckFailures.WithLabelValues(name).Set(float64(comp.failureCount))
			ErrorsTotal.Inc()
			continue
		}
		comp.healthy = true
		comp.failureCount = 0
		ComponentHealthy.WithLabelValues(name).Set(1)
		HealthCheckFailures.WithLabelValues(name).Set(0)
	}
}

func runWithTimeout(fn func() error, timeout time.Duration) error {
	if timeout <= 0 {
		return fn()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return errHealthCheckTimeout
	}
}

// Status returns the last error per component (nil means healthy).
func (hc *HealthChecker) Status() map[string]error {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	out := make(map[string]error, len(hc.components))
	for name, comp := range hc.components {
		out[name] = comp.lastErr
	}
	return out
}

// IsHealthy returns true if all components are healthy
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	for _, comp := range hc.components {
		if !comp.healthy {
			return false
		}
	}
	return true
}

// Uptime returns time since the checker was created.
func (hc *HealthChecker) Uptime() time.Duration {
	return time.Since(hc.startTime)
}
