// Package logging builds the slog loggers used by sox-chain and turns sox's
// stderr into structured log events.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a stderr logger. format is "json" (default) or "text";
// level is debug, info, warn or error. verbose forces debug level with
// source locations.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if verbose {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	return slog.New(buildHandler(os.Stderr, format, "json", opts))
}

// NewLoggerWithWriter returns a logger on w, for tests and for callers that
// capture output. Unknown formats mean text.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(buildHandler(w, format, "text", &slog.HandlerOptions{Level: parseLevel(level)}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ForRun annotates logger with a run id.
func ForRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

func buildHandler(w io.Writer, format, fallback string, opts *slog.HandlerOptions) slog.Handler {
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}
	if fallback == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a level name to slog.Level; unknown names mean info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}
