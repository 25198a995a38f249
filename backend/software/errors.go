package software

import "errors"

// Device errors.
var (
	// ErrDeviceDestroyed is returned for any call after Destroy.
	ErrDeviceDestroyed = errors.New("software: device destroyed")

	// ErrUnknownResource is returned when an ID does not name a live object.
	ErrUnknownResource = errors.New("software: unknown resource")

	// ErrInvalidSize is returned for zero or misaligned sizes.
	ErrInvalidSize = errors.New("software: invalid size")

	// ErrOutOfMemory is returned when an allocation exceeds device limits.
	ErrOutOfMemory = errors.New("software: allocation exceeds device limits")

	// ErrInvalidUsage is returned for illegal usage flag combinations or
	// for operations the resource was not created for.
	ErrInvalidUsage = errors.New("software: operation not allowed by resource usage")

	// ErrOutOfBounds is returned when a copy or write exceeds a resource.
	ErrOutOfBounds = errors.New("software: range out of bounds")

	// ErrMisaligned is returned when offsets, sizes or row pitches violate
	// copy alignment.
	ErrMisaligned = errors.New("software: misaligned copy")

	// ErrBufferMapped is returned when a mapped or map-pending buffer is
	// used by the queue or mapped again.
	ErrBufferMapped = errors.New("software: buffer is mapped or has a pending map")

	// ErrBufferNotMapped is returned by MappedRange and Unmap on unmapped buffers.
	ErrBufferNotMapped = errors.New("software: buffer is not mapped")

	// ErrBufferDestroyed is delivered to map callbacks of destroyed buffers.
	ErrBufferDestroyed = errors.New("software: buffer destroyed before map completed")

	// ErrNoHostKernel is returned when a pipeline entry point has no Go
	// implementation attached to its shader module.
	ErrNoHostKernel = errors.New("software: entry point has no host kernel")

	// ErrLayoutMismatch is returned when bind groups do not match the
	// layouts a pipeline was created with.
	ErrLayoutMismatch = errors.New("software: bind group does not match layout")

	// ErrLimitExceeded is returned when a layout or dispatch exceeds limits.
	ErrLimitExceeded = errors.New("software: device limit exceeded")
)
