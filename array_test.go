package gpgpu

import (
	"errors"
	"slices"
	"testing"
)

func TestArrayIndexing(t *testing.T) {
	a, err := NewArray[int32](2, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 24 {
		t.Fatalf("Len() = %d, want 24", a.Len())
	}
	a.Set(7, 1, 2, 3)
	if a.Data[23] != 7 || a.At(1, 2, 3) != 7 {
		t.Errorf("Set/At did not use row-major order: %v", a.Data)
	}
	a.Set(-1, 0, 1, 0)
	if a.Data[4] != -1 {
		t.Errorf("Data[4] = %d, want -1", a.Data[4])
	}

	for _, idx := range [][]int{{2, 0, 0}, {0, 3, 0}, {0, 0, -1}, {0, 0}} {
		expectPanic(t, func() { a.At(idx...) })
	}
}

func TestArrayOfShape(t *testing.T) {
	if _, err := ArrayOf([]float32{1, 2, 3}, 2, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("ArrayOf(3 elements, 2x2) err = %v", err)
	}
	if _, err := NewArray[float32](2, -1); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("NewArray(negative) err = %v", err)
	}
	a, err := ArrayOf([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if a.At(1, 0) != 4 {
		t.Errorf("At(1, 0) = %v, want 4", a.At(1, 0))
	}
}

func TestArrayBufferRoundTrip(t *testing.T) {
	fw := newTestFramework(t)

	a, err := ArrayOf([]uint16{1, 2, 3, 4, 5, 6}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BufferFromArray(fw, a)
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadArray(2, 3)
	if err != nil {
		t.Fatalf("ReadArray() failed: %v", err)
	}
	if !slices.Equal(got.Shape, []int{2, 3}) || !slices.Equal(got.Data, a.Data) {
		t.Errorf("ReadArray() = %+v", got)
	}
	if _, err := b.ReadArray(4, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("ReadArray(4, 2) err = %v", err)
	}

	a.Shape = []int{5}
	if _, err := BufferFromArray(fw, a); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("BufferFromArray(bad shape) err = %v", err)
	}
}
