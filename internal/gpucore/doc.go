// Package gpucore defines the device capability contract used by gpgpu.
//
// The [Adapter] interface is the only thing the gpgpu package knows about a
// GPU. backend/native drives a real device through gogpu/wgpu HAL;
// backend/software emulates a device in host memory and runs Go host
// kernels instead of shader code.
//
//	              +-------------+
//	              |    gpgpu    |
//	              +------+------+
//	                     |
//	              +------v------+
//	              |   gpucore   |
//	              |  (Adapter)  |
//	              +------+------+
//	                     |
//	        +------------+------------+
//	        |                         |
//	+-------v--------+       +--------v-------+
//	| backend/native |       |backend/software|
//	|  (hal.Device)  |       | (host memory)  |
//	+----------------+       +----------------+
//
// # Resource Management
//
// Device objects are referenced by opaque IDs ([BufferID], [TextureID], ...).
// Adapters own the mapping between IDs and backend objects. IDs are never
// reused after destruction.
//
// # Queue Ordering
//
// WriteBuffer, WriteTexture and Submit are executed by the device in the
// order they were called. A map request completes only after every
// operation issued before it has finished, and only when the device is
// polled with [Adapter.Poll].
package gpucore
