package software

import (
	"context"
	"log/slog"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// Option configures a software device.
type Option func(*options)

type options struct {
	workers int
	name    string
	caps    *gpucore.Capabilities
	logger  *slog.Logger
}

func defaultOptions() options {
	return options{
		name:   "software",
		logger: slog.New(nopHandler{}),
	}
}

// WithWorkers sets the number of goroutines executing dispatches.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithName sets the device name reported by Capabilities.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithCapabilities overrides the default limits. Used by tests to provoke
// limit errors with small values.
func WithCapabilities(caps gpucore.Capabilities) Option {
	return func(o *options) {
		o.caps = &caps
	}
}

// WithLogger sets the logger. nil keeps logging disabled.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
