// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Options controls logger construction.
type Options struct {
	Level  slog.Level
	Writer io.Writer
	Color  bool
}

// DefaultOptions returns sensible defaults for interactive CLI use.
func DefaultOptions() Options {
	return Options{
		Level:  slog.LevelInfo,
		Writer: os.Stderr,
		Color:  true,
	}
}

// New builds a slog.Logger backed by tint for colored, human-readable output.
func New(opts Options) *slog.Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	handler := tint.NewHandler(opts.Writer, &tint.Options{
		Level:      opts.Level,
		NoColor:    !opts.Color,
		TimeFormat: "15:04:05",
	})
	return slog.New(handler)
}

// With returns a logger scoped to a tenant, for attaching to per-tenant
// dispatcher and engine work.
func With(base *slog.Logger, tenantID string) *slog.Logger {
	return base.With("tenant_id", tenantID)
}
