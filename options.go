package gpgpu

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// Adapter is the device contract a Framework drives. backend/native and
// backend/software provide implementations.
type Adapter = gpucore.Adapter

// Backend selects the device implementation opened by New.
type Backend int

const (
	// BackendAuto opens a native device and falls back to software.
	BackendAuto Backend = iota

	// BackendNative opens a device through gogpu/wgpu/hal.
	BackendNative

	// BackendSoftware runs kernels as Go host kernels in host memory.
	BackendSoftware
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendNative:
		return "native"
	case BackendSoftware:
		return "software"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend parses a backend name as used by GPGPU_BACKEND.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "auto":
		return BackendAuto, nil
	case "native", "gpu":
		return BackendNative, nil
	case "software", "cpu":
		return BackendSoftware, nil
	default:
		return BackendAuto, fmt.Errorf("gpgpu: unknown backend %q", s)
	}
}

// BackendEnv names the environment variable that overrides BackendAuto.
const BackendEnv = "GPGPU_BACKEND"

// DefaultPollInterval is the background poller period used by New.
const DefaultPollInterval = time.Millisecond

// Option configures a Framework during creation.
//
// Example:
//
//	fw, err := gpgpu.New(
//	    gpgpu.WithBackend(gpgpu.BackendSoftware),
//	    gpgpu.WithPollInterval(0), // caller drives Poll
//	)
type Option func(*options)

type options struct {
	backend      Backend
	adapter      Adapter
	pollInterval time.Duration
	logger       *slog.Logger
	label        string
	mapTimeout   time.Duration
	maxInFlight  int64
	workers      int
}

func defaultOptions() options {
	return options{
		backend:      BackendAuto,
		pollInterval: DefaultPollInterval,
		label:        "gpgpu",
		mapTimeout:   30 * time.Second,
	}
}

// WithBackend selects the device implementation. Default: BackendAuto,
// overridable by the GPGPU_BACKEND environment variable.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithAdapter uses an already opened device instead of opening one.
// The Framework takes ownership: Close destroys the adapter.
func WithAdapter(a Adapter) Option {
	return func(o *options) {
		o.adapter = a
	}
}

// WithPollInterval sets the period of the background poller that drives
// map callbacks for futures. Zero disables the poller; callers then drive
// progress with Poll, BlockingPoll or Future.Await.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.pollInterval = d
		}
	}
}

// WithLogger sets a Framework-specific logger. Without it the package
// logger from SetLogger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLabel sets the prefix of device object labels.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithMapTimeout bounds how long blocking reads and writes wait for a
// staging buffer map. Default: 30s.
func WithMapTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.mapTimeout = d
		}
	}
}

// WithMaxInFlight bounds the number of concurrent staged transfers.
// Zero or negative means unlimited.
func WithMaxInFlight(n int) Option {
	return func(o *options) {
		o.maxInFlight = int64(n)
	}
}

// WithWorkers sets the worker count of a software device opened by New.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}
