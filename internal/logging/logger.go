// Package logging configures structured runtime logging output.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Runtime bundles the configured logger with its output sink lifecycle.
type Runtime struct {
	Logger *slog.Logger
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a logger on stderr with the given level and format. Level is
// one of debug/info/warn/error; format is json or text. Unknown values fall
// back to info and json.
func New(level, format string) Runtime {
	return newRuntime(os.Stderr, level, format)
}

func newRuntime(w io.Writer, level, format string) Runtime {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return Runtime{Logger: slog.New(h)}
}

func parseLevel(level string) slog.Level {
	switch level {
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
