package gpgpu

import (
	"errors"
	"fmt"
	"strings"
)

// Recoverable errors. Operations wrap them with context; test with errors.Is.
var (
	// ErrClosed is returned by operations on a closed Framework.
	ErrClosed = errors.New("gpgpu: framework closed")

	// ErrReleased is returned by operations on a released handle.
	ErrReleased = errors.New("gpgpu: handle released")

	// ErrAllocation is returned when the device cannot allocate a resource.
	ErrAllocation = errors.New("gpgpu: allocation failed")

	// ErrMapFailed is returned when a staging buffer cannot be mapped.
	ErrMapFailed = errors.New("gpgpu: buffer map failed")

	// ErrSubmit is returned when the device rejects a submission.
	ErrSubmit = errors.New("gpgpu: submit failed")

	// ErrPipeline is returned when pipeline creation fails on the device.
	ErrPipeline = errors.New("gpgpu: pipeline creation failed")

	// ErrShader is returned when shader source cannot be parsed or validated.
	ErrShader = errors.New("gpgpu: invalid shader")

	// ErrNotIntegerPixelNumber is returned by image writes whose length is
	// not a whole number of pixels.
	ErrNotIntegerPixelNumber = errors.New("gpgpu: data is not a whole number of pixels")

	// ErrNotIntegerRowNumber is returned by image writes whose length is
	// not a whole number of rows.
	ErrNotIntegerRowNumber = errors.New("gpgpu: data is not a whole number of rows")

	// ErrShapeMismatch is returned when an array shape does not match the
	// data or buffer it describes.
	ErrShapeMismatch = errors.New("gpgpu: shape mismatch")

	// ErrPixelFormat is returned by image interop for unsupported formats.
	ErrPixelFormat = errors.New("gpgpu: unsupported pixel format")

	// ErrNoAdapter is returned by New when no device could be opened.
	ErrNoAdapter = errors.New("gpgpu: no device available")
)

// LayoutMismatchError reports bindings that do not fit a layout.
// Kernel.Enqueue panics with it; CheckBindings and Reconcile return it.
type LayoutMismatchError struct {
	// Set is the bind group index; -1 when the number of sets differs.
	Set int

	// Position is the slot index of the first differing kind; -1 for
	// length mismatches.
	Position int

	Want BindingKind
	Got  BindingKind

	// WantLen and GotLen are the slot and binding counts (or set counts
	// when Set is -1).
	WantLen int
	GotLen  int
}

func (e *LayoutMismatchError) Error() string {
	switch {
	case e.Set < 0:
		return fmt.Sprintf("gpgpu: kernel expects %d binding sets, got %d", e.WantLen, e.GotLen)
	case e.Position < 0:
		return fmt.Sprintf("gpgpu: set %d: layout has %d slots, bindings have %d", e.Set, e.WantLen, e.GotLen)
	default:
		return fmt.Sprintf("gpgpu: set %d slot %d: layout wants %s, got %s", e.Set, e.Position, e.Want, e.Got)
	}
}

// EntryPointError reports an entry point that is not a compute entry point
// of the shader. NewKernel panics with it.
type EntryPointError struct {
	Shader     string
	EntryPoint string
	Available  []string
}

func (e *EntryPointError) Error() string {
	return fmt.Sprintf("gpgpu: shader %q has no compute entry point %q (have: %s)",
		e.Shader, e.EntryPoint, strings.Join(e.Available, ", "))
}

// LayoutLimitError reports layouts that exceed device limits. NewKernel
// panics with it.
type LayoutLimitError struct {
	// Set is the offending layout index; -1 when the set count is too high.
	Set   int
	Count uint32
	Limit uint32
}

func (e *LayoutLimitError) Error() string {
	if e.Set < 0 {
		return fmt.Sprintf("gpgpu: %d binding sets exceed device limit %d", e.Count, e.Limit)
	}
	return fmt.Sprintf("gpgpu: set %d has %d slots, device limit %d", e.Set, e.Count, e.Limit)
}
