package telemetry

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(slog.New(newConsoleHandler(os.Stderr, slog.LevelInfo)))
}

func newConsoleHandler(f *os.File, level slog.Level) slog.Handler {
	noColor := !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())

	var w io.Writer = f
	if !noColor {
		w = colorable.NewColorable(f)
	}

	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})
}

// Logger returns the logger used by every telemetry created afterwards.
func Logger() *slog.Logger {
	return defaultLogger.Load()
}

// SetLogLevel replaces the default console logger with one
// filtering at the given level.
func SetLogLevel(level slog.Level) {
	defaultLogger.Store(slog.New(newConsoleHandler(os.Stderr, level)))
}

// SetLogHandler replaces the default logger handler.
// Mostly useful in tests for silencing or capturing the output.
func SetLogHandler(handler slog.Handler) {
	defaultLogger.Store(slog.New(handler))
}

// UseOTelLogs routes the logs to the global OpenTelemetry logger provider.
func UseOTelLogs() {
	defaultLogger.Store(otelslog.NewLogger(instrumentationName))
}
