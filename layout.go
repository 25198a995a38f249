package gpgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BindingKind is the resource kind of a binding slot. Reconciliation
// compares kinds only.
type BindingKind uint8

const (
	KindBuffer BindingKind = iota + 1
	KindUniformBuffer
	KindImage
	KindConstImage
	KindSampler
)

// String returns the kind name.
func (k BindingKind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindUniformBuffer:
		return "UniformBuffer"
	case KindImage:
		return "Image"
	case KindConstImage:
		return "ConstImage"
	case KindSampler:
		return "Sampler"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Access is the shader access recorded on a buffer slot.
type Access uint8

const (
	ReadWrite Access = iota
	ReadOnly
	WriteOnly
)

// String returns the access name.
func (a Access) String() string {
	switch a {
	case ReadWrite:
		return "ReadWrite"
	case ReadOnly:
		return "ReadOnly"
	case WriteOnly:
		return "WriteOnly"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// BindingSlot describes one binding of a bind group.
type BindingSlot struct {
	Index  uint32
	Kind   BindingKind
	Access Access

	// Pixel is set for image slots.
	Pixel PixelFormat
}

// SetLayout is the ordered slot list of one bind group. Slots get
// consecutive binding indices in the order they are added.
//
// The zero value is an empty layout ready to use.
type SetLayout struct {
	slots []BindingSlot
}

// NewSetLayout returns an empty layout.
func NewSetLayout() *SetLayout {
	return &SetLayout{}
}

func (l *SetLayout) add(kind BindingKind, access Access, px PixelFormat) *SetLayout {
	l.slots = append(l.slots, BindingSlot{
		Index:  uint32(len(l.slots)),
		Kind:   kind,
		Access: access,
		Pixel:  px,
	})
	return l
}

// AddBuffer appends a storage buffer slot.
func (l *SetLayout) AddBuffer(access Access) *SetLayout {
	return l.add(KindBuffer, access, PixelFormat{})
}

// AddUniformBuffer appends a uniform buffer slot.
func (l *SetLayout) AddUniformBuffer() *SetLayout {
	return l.add(KindUniformBuffer, ReadOnly, PixelFormat{})
}

// AddImage appends a storage image slot.
func (l *SetLayout) AddImage(px PixelFormat) *SetLayout {
	return l.add(KindImage, ReadWrite, px)
}

// AddConstImage appends a sampled image slot.
func (l *SetLayout) AddConstImage(px PixelFormat) *SetLayout {
	return l.add(KindConstImage, ReadOnly, px)
}

// AddSampler appends a sampler slot.
func (l *SetLayout) AddSampler() *SetLayout {
	return l.add(KindSampler, ReadOnly, PixelFormat{})
}

// AddImageOf appends a storage image slot for pixel type P.
func AddImageOf[P Pixel](l *SetLayout) *SetLayout {
	return l.AddImage(FormatOf[P]())
}

// AddConstImageOf appends a sampled image slot for pixel type P.
func AddConstImageOf[P Pixel](l *SetLayout) *SetLayout {
	return l.AddConstImage(FormatOf[P]())
}

// Slots returns a copy of the slot list.
func (l *SetLayout) Slots() []BindingSlot {
	return append([]BindingSlot(nil), l.slots...)
}

// Len returns the number of slots.
func (l *SetLayout) Len() int {
	return len(l.slots)
}

// entries converts the layout to device layout entries.
func (l *SetLayout) entries() []gputypes.BindGroupLayoutEntry {
	out := make([]gputypes.BindGroupLayoutEntry, len(l.slots))
	for i, s := range l.slots {
		e := gputypes.BindGroupLayoutEntry{
			Binding:    s.Index,
			Visibility: gputypes.ShaderStageCompute,
		}
		switch s.Kind {
		case KindBuffer:
			typ := gputypes.BufferBindingTypeStorage
			if s.Access == ReadOnly {
				typ = gputypes.BufferBindingTypeReadOnlyStorage
			}
			e.Buffer = &gputypes.BufferBindingLayout{Type: typ}
		case KindUniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case KindImage:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        s.Pixel.Format,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case KindConstImage:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    s.Pixel.SampleType,
				ViewDimension: gputypes.TextureViewDimension2D,
			}
		case KindSampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeNonFiltering}
		}
		out[i] = e
	}
	return out
}
