// Package scheduler runs periodic maintenance of the deletion history.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"safe-delete/internal/metrics"
)

// Pruner is implemented by the history database.
type Pruner interface {
	DeleteOldRecords(olderThanDays int) (int64, error)
	Vacuum() error
}

// RunOnce removes history records older than retentionDays and compacts the
// database when anything was removed.
func RunOnce(ctx context.Context, p Pruner, retentionDays int, logger *slog.Logger) error {
	if p == nil {
		return errors.New("nil pruner")
	}
	if retentionDays <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	start := time.Now()
	removed, err := p.DeleteOldRecords(retentionDays)
	if err != nil {
		if metrics.ErrorsTotal != nil {
			metrics.ErrorsTotal.Inc()
		}
		return err
	}
	if removed > 0 {
		if err := p.Vacuum(); err != nil {
			logger.Warn("history vacuum failed", "error", err)
		}
		if metrics.HistoryPrunedTotal != nil {
			metrics.HistoryPrunedTotal.Add(float64(removed))
		}
	}

	logger.Info("history retention complete",
		"removed", removed,
		"retention_days", retentionDays,
		"duration", time.Since(start),
	)
	return nil
}

// Run calls RunOnce immediately and then every interval until ctx is done.
// Errors of a single cycle are logged and do not stop the loop.
func Run(ctx context.Context, p Pruner, retentionDays int, interval time.Duration, logger *slog.Logger) error {
	if retentionDays <= 0 {
		return nil
	}
	if interval <= 0 {
		return errors.New("retention interval must be positive")
	}

	if err := RunOnce(ctx, p, retentionDays, logger); err != nil {
		logger.Error("history retention failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("retention scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := RunOnce(ctx, p, retentionDays, logger); err != nil {
				logger.Error("history retention failed", "error", err)
			}
		}
	}
}

// Start runs Run on its own goroutine. The returned stop cancels the loop and
// waits for an in-flight prune to finish, so the caller may close the
// database right after it returns. stop may be called more than once.
func Start(ctx context.Context, p Pruner, retentionDays int, interval time.Duration, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Run(ctx, p, retentionDays, interval, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("retention scheduler stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
