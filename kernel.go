package gpgpu

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// Kernel is a compute pipeline: a shader entry point plus the layouts of
// the binding sets it is dispatched with. A Kernel is immutable and safe
// for concurrent Enqueue calls.
type Kernel struct {
	res      resource
	label    string
	entry    EntryPoint
	layouts  []*SetLayout
	groups   []gpucore.BindGroupLayoutID
	pipeline gpucore.ComputePipelineID
}

// NewKernel builds a pipeline for entryPoint of shader. layouts[i]
// describes bind group i.
//
// NewKernel panics with *EntryPointError if entryPoint is not a compute
// entry point of shader, and with *LayoutLimitError if the layouts exceed
// device limits. Device failures return an error wrapping ErrPipeline.
func NewKernel(fw *Framework, shader *Shader, entryPoint string, layouts ...*SetLayout) (*Kernel, error) {
	if fw.isClosed() {
		return nil, ErrClosed
	}
	ep, ok := shader.entries[entryPoint]
	if !ok {
		panic(&EntryPointError{Shader: shader.label, EntryPoint: entryPoint, Available: shader.EntryPointNames()})
	}
	caps := fw.caps
	if uint32(len(layouts)) > caps.MaxBindGroups {
		panic(&LayoutLimitError{Set: -1, Count: uint32(len(layouts)), Limit: caps.MaxBindGroups})
	}
	for i, l := range layouts {
		if uint32(l.Len()) > caps.MaxBindingsPerBindGroup {
			panic(&LayoutLimitError{Set: i, Count: uint32(l.Len()), Limit: caps.MaxBindingsPerBindGroup})
		}
	}

	log := fw.logger()
	label := shader.label + ":" + entryPoint
	for _, issue := range shader.checkLayouts(layouts) {
		log.Warn("gpgpu: layout disagrees with shader", "kernel", label, "binding", issue)
	}

	k := &Kernel{label: label, entry: ep}
	for _, l := range layouts {
		k.layouts = append(k.layouts, &SetLayout{slots: slices.Clone(l.slots)})
	}

	var cleanup []func()
	fail := func(what string, err error) (*Kernel, error) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		return nil, fmt.Errorf("%w: %s: %s: %w", ErrPipeline, label, what, err)
	}

	module, err := fw.dev.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label: shader.label,
		WGSL:  shader.wgsl,
		SPIRV: shader.spirv,
		Host:  shader.host,
	})
	if err != nil {
		return fail("shader module", err)
	}
	cleanup = append(cleanup, func() { fw.dev.DestroyShaderModule(module) })

	for i, l := range k.layouts {
		id, err := fw.dev.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
			Label:   fmt.Sprintf("%s:set%d", label, i),
			Entries: l.entries(),
		})
		if err != nil {
			return fail(fmt.Sprintf("bind group layout %d", i), err)
		}
		k.groups = append(k.groups, id)
		cleanup = append(cleanup, func() { fw.dev.DestroyBindGroupLayout(id) })
	}

	pipelineLayout, err := fw.dev.CreatePipelineLayout(label, k.groups)
	if err != nil {
		return fail("pipeline layout", err)
	}
	cleanup = append(cleanup, func() { fw.dev.DestroyPipelineLayout(pipelineLayout) })

	k.pipeline, err = fw.dev.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:         label,
		Layout:        pipelineLayout,
		Module:        module,
		EntryPoint:    entryPoint,
		WorkgroupSize: ep.WorkgroupSize,
	})
	if err != nil {
		return fail("compute pipeline", err)
	}
	pipeline := k.pipeline
	cleanup = append(cleanup, func() { fw.dev.DestroyComputePipeline(pipeline) })

	destroy := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}
	if err := k.res.register(fw, destroy); err != nil {
		destroy()
		return nil, err
	}

	log.Debug("gpgpu: kernel created",
		"kernel", label,
		"sets", len(layouts),
		"workgroup", ep.WorkgroupSize)
	return k, nil
}

// Label returns "shader:entry".
func (k *Kernel) Label() string { return k.label }

// WorkgroupSize returns the entry point's declared workgroup size.
func (k *Kernel) WorkgroupSize() [3]uint32 { return k.entry.WorkgroupSize }

// Release destroys the pipeline. Release is idempotent.
func (k *Kernel) Release() { k.res.Release() }

// WorkgroupCount returns the number of workgroups of size that cover n
// invocations.
func WorkgroupCount(n, size uint32) uint32 {
	if size == 0 {
		return 0
	}
	count := n / size
	if n%size != 0 {
		count++
	}
	return count
}

// CheckBindings reconciles sets with the kernel's layouts and returns
// the first mismatch as a *LayoutMismatchError.
func (k *Kernel) CheckBindings(sets ...*SetBindings) error {
	if len(sets) != len(k.layouts) {
		return &LayoutMismatchError{Set: -1, Position: -1, WantLen: len(k.layouts), GotLen: len(sets)}
	}
	for i, s := range sets {
		if err := reconcile(i, k.layouts[i], s); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue dispatches x*y*z workgroups with sets bound as bind groups
// 0..n-1. Bindings are matched against the layouts by kind only.
//
// Enqueue panics with *LayoutMismatchError when the bindings do not fit
// and when a binding refers to a released handle. Work is ordered after
// every write and dispatch issued before the call.
func (k *Kernel) Enqueue(x, y, z uint32, sets ...*SetBindings) error {
	if err := k.res.check(); err != nil {
		return err
	}
	if err := k.CheckBindings(sets...); err != nil {
		panic(err)
	}
	fw := k.res.fw

	groups := make([]gpucore.BindGroupID, 0, len(sets))
	defer func() {
		// Devices hold bind groups until the submission retires.
		for _, id := range groups {
			fw.dev.DestroyBindGroup(id)
		}
	}()
	for i, s := range sets {
		id, err := fw.dev.CreateBindGroup(&gpucore.BindGroupDesc{
			Label:   fmt.Sprintf("%s:set%d", k.label, i),
			Layout:  k.groups[i],
			Entries: groupEntries(fw, k.layouts[i], s),
		})
		if err != nil {
			return fmt.Errorf("%w: %s: bind group %d: %w", ErrSubmit, k.label, i, err)
		}
		groups = append(groups, id)
	}

	list := gpucore.NewCommandList(k.label)
	list.Dispatch(k.pipeline, groups, x, y, z)
	if _, err := fw.dev.Submit(list); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubmit, k.label, err)
	}
	return nil
}

// EnqueueElements dispatches enough workgroups along x to cover n
// invocations.
func (k *Kernel) EnqueueElements(n uint32, sets ...*SetBindings) error {
	return k.Enqueue(WorkgroupCount(n, k.entry.WorkgroupSize[0]), 1, 1, sets...)
}
