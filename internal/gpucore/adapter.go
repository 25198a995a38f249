package gpucore

// Adapter abstracts over device implementations.
//
// Implementations must be safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while a submission uses it is undefined behavior
//   - IDs become invalid after destruction and are never reused
type Adapter interface {
	// Capabilities returns the device limits.
	Capabilities() Capabilities

	// === Resources ===

	// CreateBuffer allocates a zero-filled buffer.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer. Pending maps fail.
	DestroyBuffer(id BufferID)

	// CreateTexture allocates a zero-filled 2D texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// CreateSampler creates a sampler.
	CreateSampler(desc *SamplerDesc) (SamplerID, error)

	// DestroySampler releases a sampler.
	DestroySampler(id SamplerID)

	// === Pipelines ===

	// CreateShaderModule creates a shader module.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateBindGroupLayout creates a bind group layout.
	// Returns an error if the layout exceeds device limits.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout combines bind group layouts; layouts[i] is set i.
	CreatePipelineLayout(label string, layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	// Returns an error if the entry point does not exist in the module.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup binds resources to a layout.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Queue ===

	// WriteBuffer schedules an upload of data at offset. The data is copied
	// before WriteBuffer returns. Offset and len(data) must be multiples of
	// CopyBufferAlignment.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// WriteTexture schedules an upload of a width x height region at the
	// texture origin. The data is copied before WriteTexture returns.
	WriteTexture(id TextureID, data []byte, layout ImageLayout, width, height uint32) error

	// Submit schedules a command list after every previously scheduled
	// write and submission.
	Submit(list *CommandList) (SubmissionIndex, error)

	// === Mapping ===

	// MapBuffer requests host access to size bytes at offset. The callback
	// fires from Poll once all previously scheduled work has completed.
	MapBuffer(id BufferID, mode MapMode, offset, size uint64, callback MapCallback) error

	// MappedRange returns the mapped bytes of a buffer whose map callback
	// reported success. The slice is valid until Unmap.
	MappedRange(id BufferID) ([]byte, error)

	// Unmap releases host access. For MapWrite mappings the host writes
	// become visible to subsequent device work.
	Unmap(id BufferID) error

	// Poll advances the device. With wait set, Poll blocks until all
	// scheduled work has completed. Poll reports whether the device is
	// idle (no pending submissions or maps).
	Poll(wait bool) bool

	// Destroy releases the device and every remaining resource.
	Destroy()
}
