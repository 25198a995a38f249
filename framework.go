package gpgpu

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"golang.org/x/sync/semaphore"

	"github.com/gogpu/gpgpu/backend/software"
	"github.com/gogpu/gpgpu/internal/gpucore"
)

// Framework owns a device and every handle created on it.
//
// A Framework is safe for concurrent use. Handles created from it must not
// outlive it: Close releases every handle that is still alive.
type Framework struct {
	dev  Adapter
	caps gpucore.Capabilities
	opts options
	sem  *semaphore.Weighted

	mu      sync.Mutex
	closed  bool
	live    map[uint64]*resource
	nextKey uint64

	stop chan struct{}
	done chan struct{}
}

// New opens a device and returns a Framework over it.
//
// Backend selection: WithAdapter wins, then WithBackend, then the
// GPGPU_BACKEND environment variable. BackendAuto tries the native device
// first and falls back to the software device.
func New(opts ...Option) (*Framework, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.adapter != nil {
		return newFramework(o.adapter, o), nil
	}

	backend := o.backend
	if backend == BackendAuto {
		b, err := ParseBackend(os.Getenv(BackendEnv))
		if err != nil {
			return nil, err
		}
		backend = b
	}

	log := o.log()
	var dev Adapter
	switch backend {
	case BackendSoftware:
		dev = openSoftware(&o)
	case BackendNative:
		d, err := openNative(&o)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoAdapter, err)
		}
		dev = d
	default:
		d, err := openNative(&o)
		if err != nil {
			log.Warn("gpgpu: native device unavailable, using software device", "err", err)
			dev = openSoftware(&o)
		} else {
			dev = d
		}
	}
	return newFramework(dev, o), nil
}

// FromProvider returns a Framework over the device of a host application.
// The provider must expose its HAL device (gpucontext.HalProvider); the
// device stays owned by the host, Close only releases gpgpu's objects.
func FromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Framework, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrNoAdapter)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	dev, err := wrapProvider(provider, &o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAdapter, err)
	}
	return newFramework(dev, o), nil
}

func openSoftware(o *options) Adapter {
	return software.New(
		software.WithWorkers(o.workers),
		software.WithLogger(o.log()),
	)
}

func newFramework(dev Adapter, o options) *Framework {
	fw := &Framework{
		dev:  dev,
		caps: dev.Capabilities(),
		opts: o,
		live: make(map[uint64]*resource),
	}
	if o.maxInFlight > 0 {
		fw.sem = semaphore.NewWeighted(o.maxInFlight)
	}
	if o.pollInterval > 0 {
		fw.stop = make(chan struct{})
		fw.done = make(chan struct{})
		go fw.poller(o.pollInterval)
	}
	fw.logger().Info("gpgpu: framework ready",
		"device", fw.caps.Name,
		"backend", fw.caps.Backend,
		"poll", o.pollInterval)
	return fw
}

func (o *options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}

func (fw *Framework) logger() *slog.Logger {
	return fw.opts.log()
}

// poller pumps device progress so futures resolve without caller polling.
func (fw *Framework) poller(interval time.Duration) {
	defer close(fw.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-fw.stop:
			return
		case <-t.C:
			fw.dev.Poll(false)
		}
	}
}

// Capabilities returns the device limits.
func (fw *Framework) Capabilities() gpucore.Capabilities {
	return fw.caps
}

// Device returns the underlying device.
func (fw *Framework) Device() Adapter {
	return fw.dev
}

// Poll advances the device without blocking and fires ready callbacks.
// It reports whether the device is idle.
func (fw *Framework) Poll() bool {
	return fw.dev.Poll(false)
}

// BlockingPoll drives the device until all scheduled work has completed.
func (fw *Framework) BlockingPoll() {
	for !fw.dev.Poll(true) {
		if fw.isClosed() {
			return
		}
	}
}

// Close waits for outstanding work, releases every live handle and
// destroys the device. Close is idempotent.
func (fw *Framework) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	live := fw.live
	fw.live = nil
	fw.mu.Unlock()

	if fw.stop != nil {
		close(fw.stop)
		<-fw.done
	}
	fw.dev.Poll(true)
	for _, r := range live {
		r.release()
	}
	fw.dev.Destroy()
	fw.logger().Debug("gpgpu: framework closed", "released", len(live))
	return nil
}

func (fw *Framework) isClosed() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.closed
}

// track registers a live handle so Close can release it.
func (fw *Framework) track(r *resource) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.closed {
		return ErrClosed
	}
	fw.nextKey++
	r.key = fw.nextKey
	fw.live[r.key] = r
	return nil
}

func (fw *Framework) untrack(r *resource) {
	fw.mu.Lock()
	delete(fw.live, r.key)
	fw.mu.Unlock()
}

// Live returns the number of handles that have not been released.
func (fw *Framework) Live() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.live)
}

// acquire takes a transfer slot when WithMaxInFlight is set.
func (fw *Framework) acquire(ctx context.Context) error {
	if fw.sem == nil {
		return nil
	}
	return fw.sem.Acquire(ctx, 1)
}

func (fw *Framework) releaseSlot() {
	if fw.sem != nil {
		fw.sem.Release(1)
	}
}

func (fw *Framework) label(kind string) string {
	return fw.opts.label + "-" + kind
}
