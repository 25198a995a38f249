//go:build !nogpu

package native

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Open creates an instance, selects an adapter, and opens a device on it.
// The returned Adapter owns the device and instance.
func Open(opts ...Option) (*Adapter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	factory := o.factory
	if factory == nil {
		backend, ok := hal.GetBackend(o.backend)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrNoBackend, o.backend)
		}
		factory = backend
	}

	instance, err := factory.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	selected := selectAdapter(adapters, o.preferred)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	a := newAdapter(openDev.Device, openDev.Queue, &o)
	a.instance = instance
	a.owned = true
	a.caps.Name = selected.Info.Name
	a.caps.Backend = fmt.Sprint(o.backend)
	if o.factory != nil {
		a.caps.Backend = fmt.Sprintf("%T", o.factory)
	}

	a.log.Info("native: device opened",
		"adapter", selected.Info.Name,
		"type", deviceTypeName(selected.Info.DeviceType, o.preferred),
		"backend", a.caps.Backend)
	return a, nil
}

// selectAdapter returns the first adapter matching the preference order,
// or the first adapter.
func selectAdapter(adapters []hal.ExposedAdapter, preferred []gputypes.DeviceType) *hal.ExposedAdapter {
	for _, want := range preferred {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// Wrap creates an Adapter over a device owned by somebody else.
// Destroy releases the adapter's resources but not the device.
func Wrap(device hal.Device, queue hal.Queue, opts ...Option) *Adapter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a := newAdapter(device, queue, &o)
	a.caps.Name = "external"
	a.caps.Backend = "external"
	return a
}

// FromProvider wraps the HAL device of a host application's device
// provider. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func FromProvider(provider any, opts ...Option) (*Adapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNoHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNoHAL, hp.HalQueue())
	}
	return Wrap(device, queue, opts...), nil
}

// deviceTypeName is used in logs.
func deviceTypeName(t gputypes.DeviceType, preferred []gputypes.DeviceType) string {
	if slices.Contains(preferred, t) {
		return fmt.Sprintf("%v (preferred)", t)
	}
	return fmt.Sprint(t)
}
