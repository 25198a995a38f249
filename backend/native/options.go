//go:build !nogpu

package native

import (
	"context"
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// InstanceFactory creates HAL instances. Registered HAL backends and
// hal/noop's API satisfy it.
type InstanceFactory interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Option configures a HAL device.
type Option func(*options)

type options struct {
	backend     gputypes.Backend
	factory     InstanceFactory
	preferred   []gputypes.DeviceType
	waitTimeout time.Duration
	caps        *gpucore.Capabilities
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		backend:     gputypes.BackendVulkan,
		preferred:   []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU},
		waitTimeout: 5 * time.Second,
		logger:      slog.New(nopHandler{}),
	}
}

// WithBackend selects a registered HAL backend. Default: Vulkan.
func WithBackend(b gputypes.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithInstanceFactory bypasses the backend registry. Tests pass
// &noop.API{} here.
func WithInstanceFactory(f InstanceFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithDeviceTypes sets the adapter preference order. The first adapter
// whose type matches wins; otherwise the first adapter is used.
func WithDeviceTypes(types ...gputypes.DeviceType) Option {
	return func(o *options) {
		o.preferred = types
	}
}

// WithWaitTimeout bounds a blocking Poll. Default: 5s.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithCapabilities overrides the reported limits.
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
