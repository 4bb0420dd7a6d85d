// Package logging configures the structured slog logger shared by the
// hostfeed commands.
//
// Logs are JSON on stderr and always carry the module and version
// attributes. Debug level adds source locations.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "LOG_LEVEL"

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewStructuredLogger returns a JSON logger writing to w.
func NewStructuredLogger(w io.Writer, module, version, level string) *slog.Logger {
	lvl := ParseLevel(level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: lvl <= slog.LevelDebug,
		Level:     lvl,
	})
	return slog.New(handler).With(
		slog.String("module", module),
		slog.String("version", version),
	)
}

// SetDefaultStructuredLoggerWithLevel installs a stderr JSON logger as the
// slog default. LOG_LEVEL wins over level when set.
func SetDefaultStructuredLoggerWithLevel(module, version, level string) *slog.Logger {
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}
	logger := NewStructuredLogger(os.Stderr, module, version, level)
	slog.SetDefault(logger)
	return logger
}

// OrDiscard returns logger, or a logger that drops everything when nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
