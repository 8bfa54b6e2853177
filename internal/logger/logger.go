// Package logger builds the JSON slog loggers used by the binaries.
package logger

import (
	"io"
	"os"

	"log/slog"
)

// New returns a stdout JSON logger tagged with the component name. Debug
// lowers the level threshold from Info to Debug.
func New(component string, debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, component, debug)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, component string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("component", component)
}
