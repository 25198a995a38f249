package native

import "errors"

// Package errors for the HAL device.
var (
	// ErrNoBackend is returned when the requested HAL backend is not registered.
	ErrNoBackend = errors.New("native: HAL backend not available")

	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNoHAL is returned when a device provider does not expose HAL types.
	ErrNoHAL = errors.New("native: provider does not expose HAL device and queue")

	// ErrDeviceDestroyed is returned for any call after Destroy.
	ErrDeviceDestroyed = errors.New("native: device destroyed")

	// ErrUnknownResource is returned when an ID does not name a live object.
	ErrUnknownResource = errors.New("native: unknown resource")

	// ErrNoShaderSource is returned for shader modules without WGSL or SPIR-V.
	ErrNoShaderSource = errors.New("native: shader module has no WGSL or SPIR-V source")

	// ErrBufferMapped is returned when a mapped or map-pending buffer is
	// mapped again.
	ErrBufferMapped = errors.New("native: buffer is mapped or has a pending map")

	// ErrBufferNotMapped is returned by MappedRange and Unmap on unmapped buffers.
	ErrBufferNotMapped = errors.New("native: buffer is not mapped")

	// ErrBufferDestroyed is delivered to map callbacks of destroyed buffers.
	ErrBufferDestroyed = errors.New("native: buffer destroyed before map completed")

	// ErrWaitTimeout is delivered to map callbacks when a blocking poll
	// gives up on a submission.
	ErrWaitTimeout = errors.New("native: timed out waiting for GPU")
)
