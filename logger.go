package chart

import (
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/chart/internal/logging"
)

// SetLogger configures the logger for chart, all its sub-packages, and the
// wgpu hal layer underneath. By default, chart produces no log output.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by chart:
//   - [slog.LevelDebug]: buffer sizes, pipeline creation, surface configuration
//   - [slog.LevelInfo]: backend and adapter selection
//   - [slog.LevelWarn]: acquire retries, failed frames, leaked buffers
//   - [slog.LevelError]: device loss
//
// Example:
//
//	chart.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
	hal.SetLogger(logging.Logger())
}

// Logger returns the current logger used by chart.
func Logger() *slog.Logger {
	return logging.Logger()
}
