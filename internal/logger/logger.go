// Package logger configures the structured logger the binaries share.
// Output is one JSON record per line tagged with the service name;
// business packages log through the standard log package with a
// "[component]" prefix and show up on the same stream.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds a JSON logger writing to w, with the service name attached
// to every record.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(
		slog.String("service", service),
	)
}

// Init builds the service logger on stdout and installs it as the
// process default, so package-level slog calls share the same output.
func Init(service string, level slog.Level) *slog.Logger {
	logger := New(os.Stdout, service, level)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a configured log level string to its slog value.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
