// Package software implements gpucore.Adapter in host memory.
//
// The device follows the same rules a real WebGPU device enforces (usage
// flags, copy alignment, 256-byte row pitch for buffer/texture copies,
// map state) so code that works here works on hardware. Shader entry points
// run as Go host kernels attached to the shader module.
//
// Queue work is deferred: WriteBuffer, WriteTexture and Submit only enqueue,
// and Poll executes the queue in order before resolving map requests. A map
// callback therefore never fires unless somebody polls.
package software

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpgpu/internal/gpucore"
	"github.com/gogpu/gpgpu/internal/parallel"
)

// mapState is the mapping state of a buffer.
type mapState int

const (
	unmapped mapState = iota
	mapPending
	mapped
)

// String returns the string representation of mapState.
func (s mapState) String() string {
	switch s {
	case unmapped:
		return "Unmapped"
	case mapPending:
		return "Pending"
	case mapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type buffer struct {
	label string
	usage gputypes.BufferUsage
	data  []byte

	state     mapState
	mapMode   gpucore.MapMode
	mapOffset uint64
	mapSize   uint64
}

type texture struct {
	desc gpucore.TextureDesc
	data []byte
}

func (t *texture) rowBytes() uint64 {
	return uint64(t.desc.Width) * uint64(t.desc.PixelSize)
}

type shaderModule struct {
	label string
	host  map[string]gpucore.HostKernel
}

type bindGroupLayout struct {
	entries []gputypes.BindGroupLayoutEntry
}

type pipeline struct {
	label     string
	layouts   []gpucore.BindGroupLayoutID
	kernel    gpucore.HostKernel
	workgroup [3]uint32
}

type bindGroup struct {
	layout  gpucore.BindGroupLayoutID
	entries []gpucore.BindGroupEntry
}

// pendingMap is a map request waiting for the queue to reach seq.
type pendingMap struct {
	buffer   gpucore.BufferID
	seq      uint64
	callback gpucore.MapCallback
	err      error
}

// Adapter is a host-memory device.
//
// Thread safety: Adapter is safe for concurrent use. Dispatches execute on
// an internal worker pool while the device lock is held, so host kernels
// must not call back into the adapter.
type Adapter struct {
	mu sync.Mutex

	caps   gpucore.Capabilities
	log    *slog.Logger
	pool   *parallel.Pool
	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	samplers         map[gpucore.SamplerID]gpucore.SamplerDesc
	shaderModules    map[gpucore.ShaderModuleID]*shaderModule
	bindGroupLayouts map[gpucore.BindGroupLayoutID]*bindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines        map[gpucore.ComputePipelineID]*pipeline
	bindGroups       map[gpucore.BindGroupID]*bindGroup

	// queue holds scheduled operations; executed counts completed ones.
	queue    []func()
	queued   uint64
	executed uint64
	maps     []pendingMap

	submissions gpucore.SubmissionIndex
	destroyed   bool
}

var _ gpucore.Adapter = (*Adapter)(nil)

// New creates a software device.
func New(opts ...Option) *Adapter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	caps := gpucore.DefaultCapabilities()
	if o.caps != nil {
		caps = *o.caps
	}
	caps.Name = o.name
	caps.Backend = "software"

	a := &Adapter{
		caps:             caps,
		log:              o.logger,
		pool:             parallel.NewPool(o.workers),
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		samplers:         make(map[gpucore.SamplerID]gpucore.SamplerDesc),
		shaderModules:    make(map[gpucore.ShaderModuleID]*shaderModule),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]*bindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines:        make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups:       make(map[gpucore.BindGroupID]*bindGroup),
	}
	a.log.Debug("software: device created", "workers", a.pool.Workers())
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1)
}

// Capabilities returns the device limits.
func (a *Adapter) Capabilities() gpucore.Capabilities {
	return a.caps
}

// === Buffers ===

// CreateBuffer allocates a zero-filled buffer.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 || desc.Size%a.caps.CopyBufferAlignment != 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer %q size %d", ErrInvalidSize, desc.Label, desc.Size)
	}
	if desc.Size > a.caps.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: buffer %q size %d > %d", ErrOutOfMemory, desc.Label, desc.Size, a.caps.MaxBufferSize)
	}
	if err := validateBufferUsage(desc.Usage); err != nil {
		return gpucore.InvalidID, fmt.Errorf("buffer %q: %w", desc.Label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}

	id := gpucore.BufferID(a.newID())
	a.buffers[id] = &buffer{
		label: desc.Label,
		usage: desc.Usage,
		data:  make([]byte, desc.Size),
	}
	return id, nil
}

// validateBufferUsage applies the WebGPU rule that mappable buffers may
// only be the matching end of a copy.
func validateBufferUsage(usage gputypes.BufferUsage) error {
	if usage == 0 {
		return fmt.Errorf("%w: empty usage", ErrInvalidUsage)
	}
	if usage&gputypes.BufferUsageMapRead != 0 && usage&^(gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst) != 0 {
		return fmt.Errorf("%w: MapRead combines only with CopyDst", ErrInvalidUsage)
	}
	if usage&gputypes.BufferUsageMapWrite != 0 && usage&^(gputypes.BufferUsageMapWrite|gputypes.BufferUsageCopySrc) != 0 {
		return fmt.Errorf("%w: MapWrite combines only with CopySrc", ErrInvalidUsage)
	}
	return nil
}

// DestroyBuffer releases a buffer. A pending map fails with ErrBufferDestroyed
// on the next Poll.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.buffers[id]; !ok {
		return
	}
	delete(a.buffers, id)
	for i := range a.maps {
		if a.maps[i].buffer == id && a.maps[i].err == nil {
			a.maps[i].err = ErrBufferDestroyed
		}
	}
}

// === Textures ===

// CreateTexture allocates a zero-filled 2D texture.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.PixelSize == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q %dx%d", ErrInvalidSize, desc.Label, desc.Width, desc.Height)
	}
	if desc.Width > a.caps.MaxTextureDimension2D || desc.Height > a.caps.MaxTextureDimension2D {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q %dx%d", ErrOutOfMemory, desc.Label, desc.Width, desc.Height)
	}
	if desc.Usage == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %q has empty usage", ErrInvalidUsage, desc.Label)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}

	id := gpucore.TextureID(a.newID())
	a.textures[id] = &texture{
		desc: *desc,
		data: make([]byte, uint64(desc.Width)*uint64(desc.Height)*uint64(desc.PixelSize)),
	}
	return id, nil
}

// DestroyTexture releases a texture.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// CreateSampler creates a sampler. Host kernels see it as a marker binding.
func (a *Adapter) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}
	id := gpucore.SamplerID(a.newID())
	a.samplers[id] = *desc
	return id, nil
}

// DestroySampler releases a sampler.
func (a *Adapter) DestroySampler(id gpucore.SamplerID) {
	a.mu.Lock()
	delete(a.samplers, id)
	a.mu.Unlock()
}

// === Pipelines ===

// CreateShaderModule records the module's host kernels. WGSL and SPIR-V
// sources are accepted but never executed.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.shaderModules[id] = &shaderModule{label: desc.Label, host: desc.Host}
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.shaderModules, id)
	a.mu.Unlock()
}

// CreateBindGroupLayout creates a bind group layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if uint32(len(desc.Entries)) > a.caps.MaxBindingsPerBindGroup {
		return gpucore.InvalidID, fmt.Errorf("%w: layout %q has %d bindings, max %d",
			ErrLimitExceeded, desc.Label, len(desc.Entries), a.caps.MaxBindingsPerBindGroup)
	}
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return gpucore.InvalidID, fmt.Errorf("%w: layout %q binding %d declared twice", ErrLayoutMismatch, desc.Label, e.Binding)
		}
		seen[e.Binding] = true
		if e.Buffer == nil && e.Texture == nil && e.StorageTexture == nil && e.Sampler == nil {
			return gpucore.InvalidID, fmt.Errorf("%w: layout %q binding %d has no resource type", ErrLayoutMismatch, desc.Label, e.Binding)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	a.bindGroupLayouts[id] = &bindGroupLayout{entries: append([]gputypes.BindGroupLayoutEntry(nil), desc.Entries...)}
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout combines bind group layouts.
func (a *Adapter) CreatePipelineLayout(label string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	if uint32(len(layouts)) > a.caps.MaxBindGroups {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %q has %d groups, max %d",
			ErrLimitExceeded, label, len(layouts), a.caps.MaxBindGroups)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}
	for _, l := range layouts {
		if _, ok := a.bindGroupLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, l)
		}
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline resolves the entry point to its host kernel.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	for _, n := range desc.WorkgroupSize {
		if n == 0 {
			return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q workgroup size %v", ErrInvalidSize, desc.Label, desc.WorkgroupSize)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}

	module, ok := a.shaderModules[desc.Module]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.Module)
	}
	layouts, ok := a.pipelineLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}
	kernel := module.host[desc.EntryPoint]
	if kernel == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %q in module %q", ErrNoHostKernel, desc.EntryPoint, module.label)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.pipelines[id] = &pipeline{
		label:     desc.Label,
		layouts:   layouts,
		kernel:    kernel,
		workgroup: desc.WorkgroupSize,
	}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.pipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup validates entries against the layout.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return gpucore.InvalidID, ErrDeviceDestroyed
	}

	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}
	if len(desc.Entries) != len(layout.entries) {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group %q has %d entries, layout has %d",
			ErrLayoutMismatch, desc.Label, len(desc.Entries), len(layout.entries))
	}
	for _, e := range desc.Entries {
		le := findLayoutEntry(layout.entries, e.Binding)
		if le == nil {
			return gpucore.InvalidID, fmt.Errorf("%w: bind group %q binding %d not in layout", ErrLayoutMismatch, desc.Label, e.Binding)
		}
		if err := a.checkEntry(le, e); err != nil {
			return gpucore.InvalidID, fmt.Errorf("bind group %q binding %d: %w", desc.Label, e.Binding, err)
		}
	}

	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = &bindGroup{
		layout:  desc.Layout,
		entries: append([]gpucore.BindGroupEntry(nil), desc.Entries...),
	}
	return id, nil
}

func findLayoutEntry(entries []gputypes.BindGroupLayoutEntry, binding uint32) *gputypes.BindGroupLayoutEntry {
	for i := range entries {
		if entries[i].Binding == binding {
			return &entries[i]
		}
	}
	return nil
}

// checkEntry verifies that a resource fits its layout slot.
// Must be called with mu held.
func (a *Adapter) checkEntry(le *gputypes.BindGroupLayoutEntry, e gpucore.BindGroupEntry) error {
	switch {
	case le.Buffer != nil:
		buf, ok := a.buffers[e.Buffer]
		if !ok {
			return fmt.Errorf("%w: buffer %d", ErrUnknownResource, e.Buffer)
		}
		need := gputypes.BufferUsageStorage
		if le.Buffer.Type == gputypes.BufferBindingTypeUniform {
			need = gputypes.BufferUsageUniform
		}
		if buf.usage&need == 0 {
			return fmt.Errorf("%w: buffer %q lacks binding usage", ErrInvalidUsage, buf.label)
		}
		if e.Offset+e.Size > uint64(len(buf.data)) {
			return fmt.Errorf("%w: buffer %q bound range", ErrOutOfBounds, buf.label)
		}
	case le.StorageTexture != nil:
		tex, ok := a.textures[e.Texture]
		if !ok {
			return fmt.Errorf("%w: texture %d", ErrUnknownResource, e.Texture)
		}
		if tex.desc.Usage&gputypes.TextureUsageStorageBinding == 0 {
			return fmt.Errorf("%w: texture %q is not a storage texture", ErrInvalidUsage, tex.desc.Label)
		}
		if tex.desc.Format != le.StorageTexture.Format {
			return fmt.Errorf("%w: texture %q format differs from layout", ErrLayoutMismatch, tex.desc.Label)
		}
	case le.Texture != nil:
		tex, ok := a.textures[e.Texture]
		if !ok {
			return fmt.Errorf("%w: texture %d", ErrUnknownResource, e.Texture)
		}
		if tex.desc.Usage&gputypes.TextureUsageTextureBinding == 0 {
			return fmt.Errorf("%w: texture %q is not sampleable", ErrInvalidUsage, tex.desc.Label)
		}
	case le.Sampler != nil:
		if _, ok := a.samplers[e.Sampler]; !ok {
			return fmt.Errorf("%w: sampler %d", ErrUnknownResource, e.Sampler)
		}
	}
	return nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// Destroy releases the device. Pending map callbacks fire with
// ErrDeviceDestroyed before Destroy returns.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	pending := a.maps
	a.maps = nil
	a.queue = nil
	clear(a.buffers)
	clear(a.textures)
	clear(a.samplers)
	clear(a.shaderModules)
	clear(a.bindGroupLayouts)
	clear(a.pipelineLayouts)
	clear(a.pipelines)
	clear(a.bindGroups)
	a.mu.Unlock()

	a.pool.Close()
	for _, m := range pending {
		m.callback(ErrDeviceDestroyed)
	}
	a.log.Debug("software: device destroyed", "failed_maps", len(pending))
}
