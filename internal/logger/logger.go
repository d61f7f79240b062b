// Package logger builds the structured slog.Logger shared by every component.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup returns a slog.Logger writing to w. format is "json" (default) or
// "text"; level is one of debug, info, warn, error.
func Setup(w io.Writer, level, format string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupDefault installs the logger as the slog default and returns it.
func SetupDefault(w io.Writer, level, format string) *slog.Logger {
	l := Setup(w, level, format)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a config string to a slog.Level, falling back to info.
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

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
