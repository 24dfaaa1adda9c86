package logging

import (
	"io"
	"log/slog"
	"os"
	"sort"
)

// Logger is a thin wrapper over slog with field helpers used across the service
type Logger struct {
	*slog.Logger
}

// NewLogger writes text logs at debug level in development and JSON at info level otherwise
func NewLogger(isDev bool) *Logger {
	return New(os.Stdout, isDev)
}

func New(w io.Writer, isDev bool) *Logger {
	if isDev {
		return &Logger{slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return &Logger{slog.New(slog.DiscardHandler)}
}

// WithFields returns a child logger carrying the given fields in key order
func (l *Logger) WithFields(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return &Logger{l.Logger.With(args...)}
}
