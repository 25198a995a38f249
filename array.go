package gpgpu

import (
	"context"
	"fmt"
	"slices"
)

// Array is a dense row-major n-dimensional array.
type Array[T any] struct {
	Shape []int
	Data  []T
}

// NewArray returns a zero-filled array of the given shape.
func NewArray[T any](shape ...int) (*Array[T], error) {
	n, err := shapeLen(shape)
	if err != nil {
		return nil, err
	}
	return &Array[T]{Shape: slices.Clone(shape), Data: make([]T, n)}, nil
}

// ArrayOf wraps data with a shape. The shape must cover data exactly.
func ArrayOf[T any](data []T, shape ...int) (*Array[T], error) {
	n, err := shapeLen(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v holds %d elements, data has %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Array[T]{Shape: slices.Clone(shape), Data: data}, nil
}

func shapeLen(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrShapeMismatch, shape)
		}
		n *= d
	}
	return n, nil
}

// Len returns the number of elements.
func (a *Array[T]) Len() int { return len(a.Data) }

// index returns the flat offset of idx, or -1.
func (a *Array[T]) index(idx []int) int {
	if len(idx) != len(a.Shape) {
		return -1
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= a.Shape[i] {
			return -1
		}
		off = off*a.Shape[i] + v
	}
	return off
}

// At returns the element at idx. It panics if idx is out of range.
func (a *Array[T]) At(idx ...int) T {
	off := a.index(idx)
	if off < 0 {
		panic(fmt.Sprintf("gpgpu: index %v out of range for shape %v", idx, a.Shape))
	}
	return a.Data[off]
}

// Set stores v at idx. It panics if idx is out of range.
func (a *Array[T]) Set(v T, idx ...int) {
	off := a.index(idx)
	if off < 0 {
		panic(fmt.Sprintf("gpgpu: index %v out of range for shape %v", idx, a.Shape))
	}
	a.Data[off] = v
}

// BufferFromArray allocates a buffer holding the array's elements.
func BufferFromArray[T any](fw *Framework, a *Array[T]) (*Buffer[T], error) {
	if n, err := shapeLen(a.Shape); err != nil || n != len(a.Data) {
		return nil, fmt.Errorf("%w: shape %v, %d elements", ErrShapeMismatch, a.Shape, len(a.Data))
	}
	return NewBufferFrom(fw, a.Data)
}

// ReadArray reads the buffer as an array of the given shape, which must
// hold exactly Len elements.
func (b *Buffer[T]) ReadArray(shape ...int) (*Array[T], error) {
	n, err := shapeLen(shape)
	if err != nil {
		return nil, err
	}
	if n != b.n {
		return nil, fmt.Errorf("%w: shape %v holds %d elements, buffer has %d", ErrShapeMismatch, shape, n, b.n)
	}
	data, err := b.ReadContext(context.Background())
	if err != nil {
		return nil, err
	}
	return &Array[T]{Shape: slices.Clone(shape), Data: data}, nil
}
