package gpgpu

import (
	"fmt"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// binding is one resource of a SetBindings. Only the kind is compared
// against a layout; the element type is erased.
type binding struct {
	kind BindingKind
	res  bindable
}

// SetBindings is the ordered list of resources for one bind group,
// matched positionally against a SetLayout at dispatch.
//
// The zero value is empty and ready to use.
type SetBindings struct {
	items []binding
}

// NewSetBindings returns an empty binding list.
func NewSetBindings() *SetBindings {
	return &SetBindings{}
}

func (s *SetBindings) add(kind BindingKind, r bindable) *SetBindings {
	if r == nil {
		panic(fmt.Sprintf("gpgpu: nil %s bound at slot %d", kind, len(s.items)))
	}
	s.items = append(s.items, binding{kind: kind, res: r})
	return s
}

// BufferHandle is any Buffer[T].
type BufferHandle interface {
	bindable
	isBuffer()
}

// UniformHandle is any UniformBuffer[T].
type UniformHandle interface {
	bindable
	isUniform()
}

// ImageHandle is any Image[P].
type ImageHandle interface {
	bindable
	isImage()
}

// ConstImageHandle is any ConstImage[P].
type ConstImageHandle interface {
	bindable
	isConstImage()
}

// AddBuffer appends a storage buffer.
func (s *SetBindings) AddBuffer(b BufferHandle) *SetBindings {
	return s.add(KindBuffer, b)
}

// AddUniformBuffer appends a uniform buffer.
func (s *SetBindings) AddUniformBuffer(u UniformHandle) *SetBindings {
	return s.add(KindUniformBuffer, u)
}

// AddImage appends a storage image.
func (s *SetBindings) AddImage(img ImageHandle) *SetBindings {
	return s.add(KindImage, img)
}

// AddConstImage appends a sampled image.
func (s *SetBindings) AddConstImage(img ConstImageHandle) *SetBindings {
	return s.add(KindConstImage, img)
}

// AddSampler appends a sampler.
func (s *SetBindings) AddSampler(smp *Sampler) *SetBindings {
	if smp == nil {
		return s.add(KindSampler, nil)
	}
	return s.add(KindSampler, smp)
}

// Len returns the number of bindings.
func (s *SetBindings) Len() int {
	return len(s.items)
}

// Kinds returns the kind of each binding in order.
func (s *SetBindings) Kinds() []BindingKind {
	out := make([]BindingKind, len(s.items))
	for i, b := range s.items {
		out[i] = b.kind
	}
	return out
}

// BindingsBuilder is a fluent front end over SetBindings.
//
//	set := gpgpu.Bind().Buffer(a).Buffer(b).Buffer(c).Set()
type BindingsBuilder struct {
	set SetBindings
}

// Bind starts a fluent binding list.
func Bind() *BindingsBuilder {
	return &BindingsBuilder{}
}

// Buffer appends a storage buffer.
func (b *BindingsBuilder) Buffer(h BufferHandle) *BindingsBuilder {
	b.set.AddBuffer(h)
	return b
}

// UniformBuffer appends a uniform buffer.
func (b *BindingsBuilder) UniformBuffer(h UniformHandle) *BindingsBuilder {
	b.set.AddUniformBuffer(h)
	return b
}

// Image appends a storage image.
func (b *BindingsBuilder) Image(h ImageHandle) *BindingsBuilder {
	b.set.AddImage(h)
	return b
}

// ConstImage appends a sampled, read-only image.
func (b *BindingsBuilder) ConstImage(h ConstImageHandle) *BindingsBuilder {
	b.set.AddConstImage(h)
	return b
}

// Sampler appends a sampler.
func (b *BindingsBuilder) Sampler(s *Sampler) *BindingsBuilder {
	b.set.AddSampler(s)
	return b
}

// Set returns the built bindings.
func (b *BindingsBuilder) Set() *SetBindings {
	out := b.set
	out.items = append([]binding(nil), b.set.items...)
	return &out
}

// Reconcile checks bindings against a layout: equal length, then equal
// kind at every position. It returns a *LayoutMismatchError with Set 0.
func Reconcile(layout *SetLayout, bindings *SetBindings) error {
	return reconcile(0, layout, bindings)
}

func reconcile(set int, layout *SetLayout, bindings *SetBindings) error {
	if len(layout.slots) != len(bindings.items) {
		return &LayoutMismatchError{
			Set:      set,
			Position: -1,
			WantLen:  len(layout.slots),
			GotLen:   len(bindings.items),
		}
	}
	for i, slot := range layout.slots {
		if got := bindings.items[i].kind; got != slot.Kind {
			return &LayoutMismatchError{
				Set:      set,
				Position: i,
				Want:     slot.Kind,
				Got:      got,
				WantLen:  len(layout.slots),
				GotLen:   len(bindings.items),
			}
		}
	}
	return nil
}

// groupEntries zips slot indices with resources. The bindings must have
// been reconciled with layout.
func groupEntries(fw *Framework, layout *SetLayout, bindings *SetBindings) []gpucore.BindGroupEntry {
	out := make([]gpucore.BindGroupEntry, len(layout.slots))
	for i, slot := range layout.slots {
		r := bindings.items[i].res
		if r.framework() != fw {
			panic(fmt.Sprintf("gpgpu: %s at slot %d belongs to another framework", slot.Kind, i))
		}
		if err := r.alive(); err != nil {
			panic(fmt.Sprintf("gpgpu: %s at slot %d: %v", slot.Kind, i, err))
		}
		out[i] = r.entry(slot.Index)
	}
	return out
}
