package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"

	"safe-delete/internal/config"
)

const logFile = "safe-delete.log"

// NewWithConfig creates a logger writing to console and, when cfg names a log
// directory, to a rotated log file inside it. The returned closer releases the
// file and is never nil.
func NewWithConfig(cfg *config.Config, console io.Writer) (*slog.Logger, io.Closer) {
	level := parseLevel(cfg.Logging.Level)
	if cfg.Logging.Dir == "" {
		return newLogger(console, level), nopCloser{}
	}

	boot := newLogger(os.Stderr, level)
	if err := os.MkdirAll(cfg.Logging.Dir, 0o755); err != nil {
		boot.Warn("failed to ensure log directory", "dir", cfg.Logging.Dir, "error", err)
		return newLogger(console, level), nopCloser{}
	}

	filePath := filepath.Join(cfg.Logging.Dir, logFile)
	rotateLogsIfNeeded(filePath, cfg.Logging.RotationDays, boot)

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		boot.Warn("failed to open log file", "path", filePath, "error", err)
		return newLogger(console, level), nopCloser{}
	}

	return newLogger(io.MultiWriter(console, f), level), f
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return newLogger(io.Discard, charmlog.FatalLevel)
}

func newLogger(w io.Writer, level charmlog.Level) *slog.Logger {
	handler := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05.000Z07:00",
		Formatter:       charmlog.LogfmtFormatter,
	})
	return slog.New(handler)
}

func parseLevel(s string) charmlog.Level {
	level, err := charmlog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return charmlog.InfoLevel
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// rotateLogsIfNeeded renames the log file once it is older than rotationDays
// and prunes rotated files past the same age.
func rotateLogsIfNeeded(logPath string, rotationDays int, logger *slog.Logger) {
	info, err := os.Stat(logPath)
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -rotationDays)
	if !info.ModTime().Before(cutoff) {
		return
	}

	rotatedPath := logPath + "." + info.ModTime().Format("20060102-150405")
	if err := os.Rename(logPath, rotatedPath); err != nil {
		logger.Warn("failed to rotate log file", "path", logPath, "error", err)
		return
	}
	// rotated files age from the moment of rotation
	now := time.Now()
	_ = os.Chtimes(rotatedPath, now, now)

	cleanupOldLogs(logPath, cutoff, logger)
}

func cleanupOldLogs(logPath string, cutoff time.Time, logger *slog.Logger) {
	dir := filepath.Dir(logPath)
	prefix := filepath.Base(logPath) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		if err := os.Remove(full); err != nil {
			logger.Warn("failed to remove old log file", "path", full, "error", err)
		}
	}
}
