// Package gpgpu is a thin typed layer for GPU compute.
//
// # Overview
//
// gpgpu exposes compute-shader resources and a kernel dispatch mechanism on
// top of the gogpu device abstraction (gogpu/wgpu HAL). It adds typed
// resource handles, a closed pixel format registry, binding descriptors
// that are reconciled against pipeline layouts at dispatch time, and a
// transfer engine that moves data through staging buffers.
//
// # Quick Start
//
//	fw, err := gpgpu.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Close()
//
//	a, _ := gpgpu.NewBufferFrom(fw, []uint32{1, 2, 3, 4})
//
//	shader, _ := gpgpu.ShaderFromWGSL("square", src)
//	layout := gpgpu.NewSetLayout().AddBuffer(gpgpu.ReadWrite)
//	kernel, _ := gpgpu.NewKernel(fw, shader, "main", layout)
//
//	_ = kernel.EnqueueElements(4, gpgpu.Bind().Buffer(a).Set())
//	out, _ := a.Read() // [1 4 9 16]
//
// # Devices
//
// New opens a native device through gogpu/wgpu HAL and falls back to the
// software device in backend/software, which runs host kernels attached
// with [Shader.WithHostKernel]. GPGPU_BACKEND=native|software forces one.
//
// # Ordering and Polling
//
// Writes, dispatches and reads are executed in call order. Blocking reads
// drive the device themselves. Futures returned by the Async methods
// resolve when the device is polled; the background poller started by New
// does this unless disabled with WithPollInterval(0).
//
// # Errors
//
// Recoverable failures are returned as errors wrapping the Err* sentinels.
// Programmer errors panic: bindings that do not match a layout
// (*LayoutMismatchError), unknown entry points (*EntryPointError), layouts
// over device limits (*LayoutLimitError), and element types that are not
// plain data.
package gpgpu

// Version is the library version.
const Version = "0.1.0"
