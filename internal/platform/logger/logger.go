package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured JSON logger using slog. JSON output is the
// default so sandbox and scripted CLI runs stay machine-parseable.
func New() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// NewText returns a human-readable logger for interactive CLI use.
// Debug level is enabled when verbose is set.
func NewText(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used in tests and as the
// default for injected dependencies when the caller does not care.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
