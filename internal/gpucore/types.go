package gpucore

import "github.com/gogpu/gputypes"

// Resource IDs
//
// These opaque IDs represent device objects. Each adapter implementation
// maintains a mapping between IDs and actual backend objects.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// TextureID is an opaque handle to a 2D device texture.
type TextureID uint64

// SamplerID is an opaque handle to a sampler.
type SamplerID uint64

// ShaderModuleID is an opaque handle to a shader module.
type ShaderModuleID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label string

	// Size in bytes. Must be a multiple of CopyBufferAlignment.
	Size uint64

	Usage gputypes.BufferUsage
}

// TextureDesc describes a 2D texture with a single mip level.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat

	// PixelSize is the byte size of one texel of Format.
	PixelSize uint32

	Usage gputypes.TextureUsage
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Label       string
	AddressMode gputypes.AddressMode
	Filter      gputypes.FilterMode
}

// ShaderModuleDesc describes a shader module.
//
// Exactly one of WGSL or SPIRV is used by native devices. Host holds the
// Go implementations of the entry points for the software device.
type ShaderModuleDesc struct {
	Label string
	WGSL  string
	SPIRV []uint32
	Host  map[string]HostKernel
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	Label   string
	Entries []gputypes.BindGroupLayoutEntry
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label      string
	Layout     PipelineLayoutID
	Module     ShaderModuleID
	EntryPoint string

	// WorkgroupSize is the entry point's declared @workgroup_size.
	// Native devices read it from the shader; the software device needs it.
	WorkgroupSize [3]uint32
}

// BindGroupEntry binds one resource to a binding index.
// Exactly one of Buffer, Texture or Sampler is non-zero.
type BindGroupEntry struct {
	Binding uint32

	Buffer BufferID
	Offset uint64
	// Size of the bound range; 0 binds the whole buffer.
	Size uint64

	Texture TextureID
	Sampler SamplerID
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	Label   string
	Layout  BindGroupLayoutID
	Entries []BindGroupEntry
}

// ImageLayout describes how texel rows are laid out in a buffer.
type ImageLayout struct {
	Offset uint64

	// BytesPerRow must be a multiple of CopyBytesPerRowAlignment for
	// buffer/texture copies.
	BytesPerRow uint32

	RowsPerImage uint32
}

// MapMode selects the direction of a buffer mapping.
type MapMode uint8

const (
	// MapRead maps a buffer for host reads.
	MapRead MapMode = iota + 1

	// MapWrite maps a buffer for host writes.
	MapWrite
)

// String returns the map mode name.
func (m MapMode) String() string {
	switch m {
	case MapRead:
		return "Read"
	case MapWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// MapCallback is invoked once a map request resolves.
// It is called from inside [Adapter.Poll] without adapter locks held.
type MapCallback func(err error)

// SubmissionIndex identifies a queue submission. Indexes increase
// monotonically per adapter.
type SubmissionIndex uint64

// Capabilities describes device limits relevant to compute work.
type Capabilities struct {
	// Name is a human-readable device name.
	Name string

	// Backend names the implementation ("vulkan", "noop", "software").
	Backend string

	// CopyBytesPerRowAlignment is the row alignment for buffer/texture copies.
	CopyBytesPerRowAlignment uint32

	// CopyBufferAlignment is the required alignment of buffer copy offsets
	// and sizes, and of WriteBuffer offsets and sizes.
	CopyBufferAlignment uint64

	MaxBindGroups           uint32
	MaxBindingsPerBindGroup uint32
	MaxBufferSize           uint64
	MaxTextureDimension2D   uint32

	MaxComputeWorkgroupsPerDimension uint32
}

// DefaultCapabilities returns the WebGPU default limits.
func DefaultCapabilities() Capabilities {
	limits := gputypes.DefaultLimits()
	return Capabilities{
		CopyBytesPerRowAlignment:         256,
		CopyBufferAlignment:              4,
		MaxBindGroups:                    limits.MaxBindGroups,
		MaxBindingsPerBindGroup:          limits.MaxBindingsPerBindGroup,
		MaxBufferSize:                    limits.MaxBufferSize,
		MaxTextureDimension2D:            limits.MaxTextureDimension2D,
		MaxComputeWorkgroupsPerDimension: limits.MaxComputeWorkgroupsPerDimension,
	}
}
