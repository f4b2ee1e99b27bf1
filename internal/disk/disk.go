// Package disk probes the filesystems that hold the allowed roots.
package disk

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"safe-delete/internal/metrics"
)

var errStale = errors.New("filesystem not responding (stale mount?)")

// GetDiskUsage returns the percentage of disk space used for a given path
func GetDiskUsage(path string) (usedPercent float64, freeBytes int64, totalBytes int64, err error) {
	var stat syscall.Statfs_t
	err = syscall.Statfs(path, &stat)
	if err != nil {
		return 0, 0, 0, err
	}

	totalBytes = int64(stat.Blocks) * int64(stat.Bsize)
	freeBytes = int64(stat.Bavail) * int64(stat.Bsize)
	usedBytes := totalBytes - freeBytes

	if totalBytes > 0 {
		usedPercent = (float64(usedBytes) / float64(totalBytes)) * 100.0
	}

	return usedPercent, freeBytes, totalBytes, nil
}

// IsStale reports whether path sits on an unresponsive mount: the stat does
// not return within timeout or fails with EIO, ESTALE or ENXIO.
func IsStale(path string, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		_, err := os.Stat(path)
		done <- err
	}()

	select {
	case err := <-done:
		return errors.Is(err, syscall.EIO) ||
			errors.Is(err, syscall.ESTALE) ||
			errors.Is(err, syscall.ENXIO) ||
			os.IsTimeout(err)
	case <-time.After(timeout):
		return true
	}
}

// RootCheck returns a health check for an allowed root. The check fails when
// the root is missing, not a directory or on a stale mount, and refreshes the
// root capacity gauges when metrics are initialized.
func RootCheck(root string, timeout time.Duration) func() error {
	return func() error {
		if IsStale(root, timeout) {
			return fmt.Errorf("%s: %w", root, errStale)
		}
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: not a directory", root)
		}

		used, free, _, err := GetDiskUsage(root)
		if err != nil {
			return fmt.Errorf("statfs %s: %w", root, err)
		}
		if metrics.RootFreeBytes != nil {
			metrics.RootFreeBytes.WithLabelValues(root).Set(float64(free))
			metrics.RootUsedPercent.WithLabelValues(root).Set(used)
		}
		return nil
	}
}
