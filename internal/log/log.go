// Package log provides the logging infrastructure shared by all cairn
// components.
//
// Loggers are injected, never global: each component receives a log.Logger
// through its constructor and may derive a scoped logger via With(). The
// package only supplies factory functions and a Nop logger for tests.
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	store := catalog.NewStore(pool, logger.With("component", "catalog"))
//
//	// In tests, discard output or capture it in a buffer:
//	testLogger := log.NewNop()
//	var buf bytes.Buffer
//	testLogger = log.NewWithWriter(&buf, log.Config{})
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger. The standard library type is used
// directly so components keep full access to With() and the slog ecosystem
// without a wrapper interface.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo
	Level slog.Level

	// JSON enables JSON format output. Default: false (text format)
	JSON bool

	// AddSource adds source file information to log entries. Default: false
	AddSource bool
}

// New creates a new logger with the given configuration, writing to
// os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a new logger that writes to the specified writer.
// Useful for tests or custom output destinations.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards all output. Test-only: production
// code should always use New or NewWithWriter so logs are never silently
// dropped.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
