//go:build !nogpu

// Package native implements gpucore.Adapter on gogpu/wgpu HAL devices.
package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

type texture struct {
	tex  hal.Texture
	view hal.TextureView
	desc gpucore.TextureDesc
}

// buffer tracks a HAL buffer and its emulated map state. HAL queues read
// and write host-visible memory directly, so a mapping is a host shadow
// that is filled on completion (reads) or flushed on Unmap (writes).
type buffer struct {
	buf   hal.Buffer
	label string
	size  uint64

	state     mapState
	mapMode   gpucore.MapMode
	mapOffset uint64
	shadow    []byte
}

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

type pipeline struct {
	pipe hal.ComputePipeline
}

// submission is an in-flight queue submission.
type submission struct {
	index   gpucore.SubmissionIndex
	fence   hal.Fence
	cmd     hal.CommandBuffer
	uses    map[uint64]bool
	release []func()
}

// pendingMap waits for every submission up to index to complete.
type pendingMap struct {
	buffer   gpucore.BufferID
	index    gpucore.SubmissionIndex
	callback gpucore.MapCallback
	err      error
}

// Adapter implements gpucore.Adapter using gogpu/wgpu/hal directly.
//
// Thread Safety: Adapter is safe for concurrent use from multiple goroutines.
// Resource tables are protected by a mutex; Poll calls are serialized.
type Adapter struct {
	mu     sync.RWMutex
	pollMu sync.Mutex

	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool

	caps        gpucore.Capabilities
	waitTimeout time.Duration
	log         *slog.Logger

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	samplers         map[gpucore.SamplerID]hal.Sampler
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	pipelines        map[gpucore.ComputePipelineID]*pipeline
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	// bindGroupUses records the buffers and textures a bind group references,
	// so submissions can defer their destruction.
	bindGroupUses map[gpucore.BindGroupID][]uint64

	submitted gpucore.SubmissionIndex
	completed gpucore.SubmissionIndex
	inflight  []*submission
	maps      []pendingMap

	destroyed bool
}

var _ gpucore.Adapter = (*Adapter)(nil)

func newAdapter(device hal.Device, queue hal.Queue, o *options) *Adapter {
	caps := gpucore.DefaultCapabilities()
	if o.caps != nil {
		caps = *o.caps
	}
	return &Adapter{
		device:           device,
		queue:            queue,
		caps:             caps,
		waitTimeout:      o.waitTimeout,
		log:              o.logger,
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		samplers:         make(map[gpucore.SamplerID]hal.Sampler),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		pipelines:        make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
		bindGroupUses:    make(map[gpucore.BindGroupID][]uint64),
	}
}

// newID generates a unique resource ID. IDs are unique across resource kinds.
func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1)
}

// Capabilities returns the device limits.
func (a *Adapter) Capabilities() gpucore.Capabilities {
	return a.caps
}

// deferIfInUse queues fn on the newest in-flight submission that uses id.
// Returns false if no submission uses it. Must be called with mu held.
func (a *Adapter) deferIfInUse(id uint64, fn func()) bool {
	for i := len(a.inflight) - 1; i >= 0; i-- {
		if a.inflight[i].uses[id] {
			a.inflight[i].release = append(a.inflight[i].release, fn)
			return true
		}
	}
	return false
}

// === Buffers ===

// CreateBuffer creates a GPU buffer.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 || desc.Size%a.caps.CopyBufferAlignment != 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %q size %d is not a positive multiple of %d",
			desc.Label, desc.Size, a.caps.CopyBufferAlignment)
	}
	if desc.Size > a.caps.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %q size %d exceeds %d", desc.Label, desc.Size, a.caps.MaxBufferSize)
	}

	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}

	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{buf: buf, label: desc.Label, size: desc.Size}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer, after any submission using it.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buffers[id]
	if !ok {
		return
	}
	delete(a.buffers, id)
	for i := range a.maps {
		if a.maps[i].buffer == id && a.maps[i].err == nil {
			a.maps[i].err = ErrBufferDestroyed
		}
	}
	destroy := func() { a.device.DestroyBuffer(b.buf) }
	if !a.deferIfInUse(uint64(id), destroy) {
		destroy()
	}
}

// === Textures ===

// CreateTexture creates a 2D texture and a default view for binding.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: texture %q has empty size %dx%d", desc.Label, desc.Width, desc.Height)
	}

	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	view, err := a.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		a.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &texture{tex: tex, view: view, desc: *desc}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture and its view.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.textures[id]
	if !ok {
		return
	}
	delete(a.textures, id)
	destroy := func() {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.tex)
	}
	if !a.deferIfInUse(uint64(id), destroy) {
		destroy()
	}
}

// CreateSampler creates a sampler with the same address mode on all axes.
func (a *Adapter) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	s, err := a.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressMode,
		AddressModeV: desc.AddressMode,
		AddressModeW: desc.AddressMode,
		MagFilter:    desc.Filter,
		MinFilter:    desc.Filter,
		MipmapFilter: desc.Filter,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create sampler %q: %w", desc.Label, err)
	}

	id := gpucore.SamplerID(a.newID())
	a.mu.Lock()
	a.samplers[id] = s
	a.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler.
func (a *Adapter) DestroySampler(id gpucore.SamplerID) {
	a.mu.Lock()
	s, ok := a.samplers[id]
	delete(a.samplers, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroySampler(s)
	}
}

// === Pipelines ===

// CreateShaderModule creates a shader module from WGSL, or SPIR-V when no
// WGSL is given. Host kernels are ignored.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	var source hal.ShaderSource
	switch {
	case desc.WGSL != "":
		source.WGSL = desc.WGSL
	case len(desc.SPIRV) > 0:
		source.SPIRV = desc.SPIRV
	default:
		return gpucore.InvalidID, fmt.Errorf("%w: %q", ErrNoShaderSource, desc.Label)
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: source,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create shader module %q: %w", desc.Label, err)
	}

	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	m, ok := a.shaderModules[id]
	delete(a.shaderModules, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyShaderModule(m)
	}
}

// CreateBindGroupLayout creates a bind group layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if uint32(len(desc.Entries)) > a.caps.MaxBindingsPerBindGroup {
		return gpucore.InvalidID, fmt.Errorf("native: layout %q has %d bindings, max %d",
			desc.Label, len(desc.Entries), a.caps.MaxBindingsPerBindGroup)
	}

	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: desc.Entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group layout %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	l, ok := a.bindGroupLayouts[id]
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroupLayout(l)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (a *Adapter) CreatePipelineLayout(label string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	if uint32(len(layouts)) > a.caps.MaxBindGroups {
		return gpucore.InvalidID, fmt.Errorf("native: pipeline layout %q has %d groups, max %d", label, len(layouts), a.caps.MaxBindGroups)
	}

	a.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		l, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, id)
		}
		halLayouts[i] = l
	}
	a.mu.RUnlock()

	pl, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create pipeline layout %q: %w", label, err)
	}

	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = pl
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	l, ok := a.pipelineLayouts[id]
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyPipelineLayout(l)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	module, okModule := a.shaderModules[desc.Module]
	layout, okLayout := a.pipelineLayouts[desc.Layout]
	a.mu.RUnlock()
	if !okModule {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.Module)
	}
	if !okLayout {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}

	pipe, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create compute pipeline %q: %w", desc.Label, err)
	}

	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.pipelines[id] = &pipeline{pipe: pipe}
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pipelines[id]
	if !ok {
		return
	}
	delete(a.pipelines, id)
	destroy := func() { a.device.DestroyComputePipeline(p.pipe) }
	if !a.deferIfInUse(uint64(id), destroy) {
		destroy()
	}
}

// CreateBindGroup creates a bind group.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	uses := make([]uint64, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		converted, used, err := a.convertBindGroupEntry(e)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("bind group %q: %w", desc.Label, err)
		}
		entries = append(entries, converted)
		uses = append(uses, used)
	}
	a.mu.RUnlock()

	bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create bind group %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = bg
	a.bindGroupUses[id] = uses
	a.mu.Unlock()
	return id, nil
}

// convertBindGroupEntry converts a gpucore entry to a gputypes entry and
// reports the ID of the referenced resource. Must be called with mu held.
func (a *Adapter) convertBindGroupEntry(e gpucore.BindGroupEntry) (gputypes.BindGroupEntry, uint64, error) {
	result := gputypes.BindGroupEntry{Binding: e.Binding}

	switch {
	case e.Buffer != gpucore.InvalidID:
		b, ok := a.buffers[e.Buffer]
		if !ok {
			return result, 0, fmt.Errorf("%w: buffer %d", ErrUnknownResource, e.Buffer)
		}
		result.Resource = gputypes.BufferBinding{
			Buffer: b.buf.NativeHandle(),
			Offset: e.Offset,
			Size:   e.Size, // 0 = entire buffer
		}
		return result, uint64(e.Buffer), nil
	case e.Texture != gpucore.InvalidID:
		t, ok := a.textures[e.Texture]
		if !ok {
			return result, 0, fmt.Errorf("%w: texture %d", ErrUnknownResource, e.Texture)
		}
		result.Resource = gputypes.TextureViewBinding{
			TextureView: t.view.NativeHandle(),
		}
		return result, uint64(e.Texture), nil
	case e.Sampler != gpucore.InvalidID:
		s, ok := a.samplers[e.Sampler]
		if !ok {
			return result, 0, fmt.Errorf("%w: sampler %d", ErrUnknownResource, e.Sampler)
		}
		result.Resource = gputypes.SamplerBinding{
			Sampler: s.NativeHandle(),
		}
		return result, uint64(e.Sampler), nil
	default:
		return result, 0, fmt.Errorf("native: binding %d has no resource", e.Binding)
	}
}

// DestroyBindGroup releases a bind group, after any submission using it.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bg, ok := a.bindGroups[id]
	if !ok {
		return
	}
	delete(a.bindGroups, id)
	delete(a.bindGroupUses, id)
	destroy := func() { a.device.DestroyBindGroup(bg) }
	if !a.deferIfInUse(uint64(id), destroy) {
		destroy()
	}
}

// Destroy waits for in-flight work, releases every remaining resource,
// and closes the device if this adapter opened it.
func (a *Adapter) Destroy() {
	a.Poll(true)

	a.pollMu.Lock()
	defer a.pollMu.Unlock()
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	pending := a.maps
	a.maps = nil
	inflight := a.inflight
	a.inflight = nil

	for _, s := range inflight {
		a.retire(s)
	}
	for _, bg := range a.bindGroups {
		a.device.DestroyBindGroup(bg)
	}
	for _, p := range a.pipelines {
		a.device.DestroyComputePipeline(p.pipe)
	}
	for _, l := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(l)
	}
	for _, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
	}
	for _, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
	}
	for _, s := range a.samplers {
		a.device.DestroySampler(s)
	}
	for _, t := range a.textures {
		a.device.DestroyTextureView(t.view)
		a.device.DestroyTexture(t.tex)
	}
	for _, b := range a.buffers {
		a.device.DestroyBuffer(b.buf)
	}
	clear(a.bindGroups)
	clear(a.pipelines)
	clear(a.pipelineLayouts)
	clear(a.bindGroupLayouts)
	clear(a.shaderModules)
	clear(a.samplers)
	clear(a.textures)
	clear(a.buffers)

	if a.owned {
		a.device.Destroy()
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.mu.Unlock()

	for _, m := range pending {
		m.callback(ErrDeviceDestroyed)
	}
	a.log.Debug("native: device destroyed", "failed_maps", len(pending))
}
