// Package logging builds the slog loggers used across the decode pipeline.
//
// Loggers emit snake_case event messages ("pipeline_started",
// "frame_dropped") with structured fields. Per-frame failure paths log
// through a Sampler so a misbehaving stream cannot flood the output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a logger writing to stderr. format is "json" or "text";
// level is one of "debug", "info", "warn", "error". verbose forces debug.
// Debug level also records source locations, which is worth the cost only
// when chasing per-frame scheduling problems.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}
	return slog.New(newHandler(os.Stderr, format, opts))
}

// NewLoggerWithWriter builds a logger on a caller-supplied writer, used by
// tests to capture output and by the TUI path to discard it.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(newHandler(w, format, opts))
}

// newHandler picks the handler for a format. Unknown formats fall back to
// JSON so log lines stay machine-parseable.
func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// parseLevel converts a string level to slog.Level. Unknown strings mean
// info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
