// Package logutil keeps *slog.Logger plumbing nil-tolerant. Constructors
// across the module take an optional logger and normalize it through
// NoopIfNil, so callers that do not care about logging can pass nil.
package logutil

import (
	"io"
	"log/slog"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Noop returns the shared logger that drops every record.
func Noop() *slog.Logger { return discard }

// NoopIfNil replaces a nil logger with the discard logger and passes
// anything else through unchanged.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discard
	}
	return l
}
