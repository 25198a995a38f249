package gpgpu

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

// handles holds one resource of every binding kind.
type handles struct {
	buf     *Buffer[uint32]
	uniform *UniformBuffer[uint32]
	img     *Image[R32Uint]
	cimg    *ConstImage[R32Float]
	smp     *Sampler
}

func newHandles(t *testing.T, fw *Framework) handles {
	t.Helper()
	var (
		h   handles
		err error
	)
	if h.buf, err = NewBuffer[uint32](fw, 4); err != nil {
		t.Fatal(err)
	}
	if h.uniform, err = NewUniformBuffer[uint32](fw); err != nil {
		t.Fatal(err)
	}
	if h.img, err = NewImage[R32Uint](fw, 2, 2); err != nil {
		t.Fatal(err)
	}
	if h.cimg, err = NewConstImage[R32Float](fw, 2, 2); err != nil {
		t.Fatal(err)
	}
	if h.smp, err = NewSampler(fw, SamplerConfig{}); err != nil {
		t.Fatal(err)
	}
	return h
}

// add appends the handle of kind k to s.
func (h handles) add(s *SetBindings, k BindingKind) {
	switch k {
	case KindBuffer:
		s.AddBuffer(h.buf)
	case KindUniformBuffer:
		s.AddUniformBuffer(h.uniform)
	case KindImage:
		s.AddImage(h.img)
	case KindConstImage:
		s.AddConstImage(h.cimg)
	case KindSampler:
		s.AddSampler(h.smp)
	}
}

var allKinds = []BindingKind{KindBuffer, KindUniformBuffer, KindImage, KindConstImage, KindSampler}

func fullLayout() *SetLayout {
	l := NewSetLayout().AddBuffer(ReadWrite).AddUniformBuffer()
	l = AddImageOf[R32Uint](l)
	l = AddConstImageOf[R32Float](l)
	return l.AddSampler()
}

func TestReconcileMatches(t *testing.T) {
	fw := newTestFramework(t)
	h := newHandles(t, fw)

	s := NewSetBindings()
	for _, k := range allKinds {
		h.add(s, k)
	}
	if err := Reconcile(fullLayout(), s); err != nil {
		t.Fatalf("Reconcile() = %v", err)
	}
	if !slices.Equal(s.Kinds(), allKinds) {
		t.Errorf("Kinds() = %v, want %v", s.Kinds(), allKinds)
	}
}

// TestReconcileDetectsEveryKindChange replaces each position with every
// other kind and expects the mismatch to be reported at that position.
func TestReconcileDetectsEveryKindChange(t *testing.T) {
	fw := newTestFramework(t)
	h := newHandles(t, fw)
	layout := fullLayout()

	for pos, want := range allKinds {
		for _, got := range allKinds {
			if got == want {
				continue
			}
			t.Run(want.String()+"->"+got.String(), func(t *testing.T) {
				s := NewSetBindings()
				for i, k := range allKinds {
					if i == pos {
						k = got
					}
					h.add(s, k)
				}
				err := Reconcile(layout, s)
				var mismatch *LayoutMismatchError
				if !errors.As(err, &mismatch) {
					t.Fatalf("Reconcile() = %v, want *LayoutMismatchError", err)
				}
				if mismatch.Position != pos || mismatch.Want != want || mismatch.Got != got {
					t.Errorf("mismatch = %+v, want position %d %s/%s", mismatch, pos, want, got)
				}
			})
		}
	}
}

func TestReconcileLength(t *testing.T) {
	fw := newTestFramework(t)
	h := newHandles(t, fw)

	tests := []struct {
		name  string
		kinds []BindingKind
	}{
		{"empty", nil},
		{"short", allKinds[:3]},
		{"long", append(slices.Clone(allKinds), KindBuffer)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSetBindings()
			for _, k := range tt.kinds {
				h.add(s, k)
			}
			err := Reconcile(fullLayout(), s)
			var mismatch *LayoutMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("Reconcile() = %v", err)
			}
			if mismatch.Position != -1 || mismatch.WantLen != 5 || mismatch.GotLen != len(tt.kinds) {
				t.Errorf("mismatch = %+v", mismatch)
			}
			if !strings.Contains(err.Error(), "layout has 5 slots") {
				t.Errorf("Error() = %q", err.Error())
			}
		})
	}

	if err := Reconcile(NewSetLayout(), NewSetBindings()); err != nil {
		t.Errorf("empty layout and bindings: %v", err)
	}
}

// TestReconcileIgnoresElementTypes tests that buffers of any element type
// and images of any pixel type fit their slots.
func TestReconcileIgnoresElementTypes(t *testing.T) {
	fw := newTestFramework(t)

	f, err := NewBuffer[float32](fw, 3)
	if err != nil {
		t.Fatal(err)
	}
	img, err := NewImage[RGBA8Unorm](fw, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	layout := AddImageOf[R32Uint](NewSetLayout().AddBuffer(ReadOnly))
	if err := Reconcile(layout, Bind().Buffer(f).Image(img).Set()); err != nil {
		t.Errorf("Reconcile() = %v", err)
	}
}

func TestBuilderMatchesSetBindings(t *testing.T) {
	fw := newTestFramework(t)
	h := newHandles(t, fw)

	built := Bind().
		Buffer(h.buf).
		UniformBuffer(h.uniform).
		Image(h.img).
		ConstImage(h.cimg).
		Sampler(h.smp).
		Set()
	manual := NewSetBindings().
		AddBuffer(h.buf).
		AddUniformBuffer(h.uniform).
		AddImage(h.img).
		AddConstImage(h.cimg).
		AddSampler(h.smp)

	if !slices.Equal(built.Kinds(), manual.Kinds()) {
		t.Errorf("builder kinds %v, manual kinds %v", built.Kinds(), manual.Kinds())
	}
	if built.Len() != 5 {
		t.Errorf("Len() = %d, want 5", built.Len())
	}

	b := Bind().Buffer(h.buf)
	first := b.Set()
	b.Buffer(h.buf)
	if first.Len() != 1 {
		t.Errorf("Set() result changed after further building: Len() = %d", first.Len())
	}
}

func TestNilBindingPanics(t *testing.T) {
	for name, fn := range map[string]func(){
		"sampler": func() { NewSetBindings().AddSampler(nil) },
		"buffer":  func() { NewSetBindings().AddBuffer(nil) },
	} {
		v := expectPanic(t, fn)
		if msg, ok := v.(string); !ok || !strings.Contains(msg, "nil") {
			t.Errorf("%s: panic = %v", name, v)
		}
	}
}

func TestLayoutSlots(t *testing.T) {
	l := fullLayout()
	slots := l.Slots()
	if len(slots) != 5 || l.Len() != 5 {
		t.Fatalf("Len() = %d", l.Len())
	}
	for i, s := range slots {
		if s.Index != uint32(i) {
			t.Errorf("slot %d has index %d", i, s.Index)
		}
		if s.Kind != allKinds[i] {
			t.Errorf("slot %d kind %s, want %s", i, s.Kind, allKinds[i])
		}
	}
	if slots[2].Pixel != FormatOf[R32Uint]() || slots[3].Pixel != FormatOf[R32Float]() {
		t.Errorf("image slot formats = %s, %s", slots[2].Pixel, slots[3].Pixel)
	}

	slots[0].Kind = KindSampler
	if l.Slots()[0].Kind != KindBuffer {
		t.Error("Slots() exposes internal state")
	}

	entries := l.entries()
	if len(entries) != 5 {
		t.Fatalf("entries() = %d entries", len(entries))
	}
	if entries[0].Buffer == nil || entries[1].Buffer == nil || entries[2].StorageTexture == nil || entries[3].Texture == nil || entries[4].Sampler == nil {
		t.Errorf("entries() left binding types unset: %+v", entries)
	}
}

func TestKindStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{KindBuffer.String(), "Buffer"},
		{KindUniformBuffer.String(), "UniformBuffer"},
		{KindImage.String(), "Image"},
		{KindConstImage.String(), "ConstImage"},
		{KindSampler.String(), "Sampler"},
		{BindingKind(42).String(), "Kind(42)"},
		{ReadWrite.String(), "ReadWrite"},
		{ReadOnly.String(), "ReadOnly"},
		{WriteOnly.String(), "WriteOnly"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEnqueueMismatchPanics(t *testing.T) {
	fw := newTestFramework(t)
	k, err := NewKernel(fw, squareShader(t), "main", squareLayout())
	if err != nil {
		t.Fatal(err)
	}
	data := mustBuffer(t, fw, []uint32{1, 2, 3})
	params, err := NewUniformBufferFrom(fw, uint32(3))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		sets     []*SetBindings
		position int
		set      int
	}{
		{"swapped", []*SetBindings{Bind().UniformBuffer(params).Buffer(data).Set()}, 0, 0},
		{"missing", []*SetBindings{Bind().Buffer(data).Set()}, -1, 0},
		{"no sets", nil, -1, -1},
		{"extra set", []*SetBindings{Bind().Buffer(data).UniformBuffer(params).Set(), NewSetBindings()}, -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := k.CheckBindings(tt.sets...); err == nil {
				t.Error("CheckBindings() = nil")
			}
			v := expectPanic(t, func() { _ = k.Enqueue(1, 1, 1, tt.sets...) })
			mismatch, ok := v.(*LayoutMismatchError)
			if !ok {
				t.Fatalf("panic value %T %v", v, v)
			}
			if mismatch.Set != tt.set || mismatch.Position != tt.position {
				t.Errorf("mismatch = %+v, want set %d position %d", mismatch, tt.set, tt.position)
			}
		})
	}

	// A failed Enqueue must not have touched the data.
	if got := mustRead(t, data); !slices.Equal(got, []uint32{1, 2, 3}) {
		t.Errorf("data = %v after rejected dispatches", got)
	}
}

func TestEnqueueReleasedHandlePanics(t *testing.T) {
	fw := newTestFramework(t)
	k, err := NewKernel(fw, squareShader(t), "main", squareLayout())
	if err != nil {
		t.Fatal(err)
	}
	data := mustBuffer(t, fw, []uint32{1})
	params, err := NewUniformBufferFrom(fw, uint32(1))
	if err != nil {
		t.Fatal(err)
	}
	set := Bind().Buffer(data).UniformBuffer(params).Set()
	data.Release()

	v := expectPanic(t, func() { _ = k.Enqueue(1, 1, 1, set) })
	if msg, ok := v.(string); !ok || !strings.Contains(msg, "released") {
		t.Errorf("panic = %v", v)
	}
}

func TestEnqueueForeignHandlePanics(t *testing.T) {
	fw := newTestFramework(t)
	other := newTestFramework(t)
	k, err := NewKernel(fw, squareShader(t), "main", squareLayout())
	if err != nil {
		t.Fatal(err)
	}
	data := mustBuffer(t, other, []uint32{1})
	params, err := NewUniformBufferFrom(fw, uint32(1))
	if err != nil {
		t.Fatal(err)
	}

	v := expectPanic(t, func() { _ = k.Enqueue(1, 1, 1, Bind().Buffer(data).UniformBuffer(params).Set()) })
	if msg, ok := v.(string); !ok || !strings.Contains(msg, "another framework") {
		t.Errorf("panic = %v", v)
	}
}
