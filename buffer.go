package gpgpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// bufferUsage is the usage of every storage buffer handle.
const bufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// Buffer is a storage buffer of n elements of plain-data type T.
//
// The device allocation is padded to a multiple of 4 bytes; Len and Size
// report the logical extent. A zero-length buffer holds a 4-byte
// placeholder so it can still be bound.
type Buffer[T any] struct {
	res   resource
	id    gpucore.BufferID
	n     int
	size  uint64
	alloc uint64
}

// NewBuffer allocates a zero-filled buffer of n elements.
// It panics if T is not plain data.
func NewBuffer[T any](fw *Framework, n int) (*Buffer[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrAllocation, n)
	}
	size := uint64(n) * uint64(elemSize[T]())
	id, alloc, err := fw.createBuffer(fw.label("buffer"), size, bufferUsage)
	if err != nil {
		return nil, err
	}
	b := &Buffer[T]{id: id, n: n, size: size, alloc: alloc}
	if err := b.res.register(fw, func() { fw.dev.DestroyBuffer(id) }); err != nil {
		fw.dev.DestroyBuffer(id)
		return nil, err
	}
	return b, nil
}

// NewBufferFrom allocates a buffer holding a copy of data.
func NewBufferFrom[T any](fw *Framework, data []T) (*Buffer[T], error) {
	b, err := NewBuffer[T](fw, len(data))
	if err != nil {
		return nil, err
	}
	if _, err := b.Write(data); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// createBuffer allocates size bytes rounded up to the copy granularity,
// with a minimum of one word.
func (fw *Framework) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (gpucore.BufferID, uint64, error) {
	if fw.isClosed() {
		return gpucore.InvalidID, 0, ErrClosed
	}
	alloc := max(alignUp(size, copyAlignment), copyAlignment)
	id, err := fw.dev.CreateBuffer(&gpucore.BufferDesc{Label: label, Size: alloc, Usage: usage})
	if err != nil {
		return gpucore.InvalidID, 0, fmt.Errorf("%w: %s of %d bytes: %w", ErrAllocation, label, size, err)
	}
	return id, alloc, nil
}

// Len returns the number of elements.
func (b *Buffer[T]) Len() int { return b.n }

// Size returns the logical size in bytes.
func (b *Buffer[T]) Size() uint64 { return b.size }

// Capacity returns the most bytes a write stores; longer writes are
// truncated to it. The device allocation may be rounded up past it.
func (b *Buffer[T]) Capacity() uint64 { return b.size }

// IsEmpty reports whether the buffer has no elements.
func (b *Buffer[T]) IsEmpty() bool { return b.n == 0 }

// Release destroys the device buffer. Release is idempotent.
func (b *Buffer[T]) Release() { b.res.Release() }

// Read returns the whole buffer.
func (b *Buffer[T]) Read() ([]T, error) {
	return b.ReadContext(context.Background())
}

// ReadContext is Read with a context bounding the wait for the device.
func (b *Buffer[T]) ReadContext(ctx context.Context) ([]T, error) {
	raw, err := b.readBytes(ctx)
	if err != nil {
		return nil, err
	}
	return fromBytes[T](raw), nil
}

// ReadBytes returns the logical contents as raw bytes.
func (b *Buffer[T]) ReadBytes() ([]byte, error) {
	return b.readBytes(context.Background())
}

func (b *Buffer[T]) readBytes(ctx context.Context) ([]byte, error) {
	if err := b.res.check(); err != nil {
		return nil, err
	}
	if b.n == 0 {
		return []byte{}, nil
	}
	raw, err := b.res.fw.readBuffer(ctx, b.id, 0, b.alloc)
	if err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}
	return raw[:b.size], nil
}

// ReadAsync starts a download of the whole buffer.
func (b *Buffer[T]) ReadAsync() *Future[[]T] {
	fw := b.res.fw
	if err := b.res.check(); err != nil {
		return failedFuture[[]T](fw, err)
	}
	f := newFuture[[]T](fw)
	if b.n == 0 {
		f.resolve([]T{}, nil)
		return f
	}
	fw.downloadAsync(b.alloc, func(list *gpucore.CommandList, stage gpucore.BufferID) {
		list.CopyBuffer(b.id, 0, stage, 0, b.alloc)
	}, func(raw []byte, err error) {
		if err != nil {
			f.resolve(nil, fmt.Errorf("read buffer: %w", err))
			return
		}
		f.resolve(fromBytes[T](raw[:b.size]), nil)
	})
	return f
}

// Write copies data into the start of the buffer through the device
// queue. If data is longer than the buffer only the first Len elements
// are written; shorter data leaves the remainder untouched. Write returns
// the number of elements written.
//
// The write is ordered before any kernel enqueued after it returns.
func (b *Buffer[T]) Write(data []T) (int, error) {
	return b.write(context.Background(), data, false)
}

// WriteStaged is Write through a mapped staging buffer.
func (b *Buffer[T]) WriteStaged(data []T) (int, error) {
	return b.write(context.Background(), data, true)
}

// WriteAsync performs Write on another goroutine.
func (b *Buffer[T]) WriteAsync(data []T) *Future[int] {
	f := newFuture[int](b.res.fw)
	data = append([]T(nil), data...)
	go func() {
		f.resolve(b.Write(data))
	}()
	return f
}

func (b *Buffer[T]) write(ctx context.Context, data []T, staged bool) (int, error) {
	if err := b.res.check(); err != nil {
		return 0, err
	}
	n := min(len(data), b.n)
	if err := b.res.fw.writeBuffer(ctx, b.id, asBytes(data[:n]), staged); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Buffer[T]) isBuffer()                {}
func (b *Buffer[T]) bindingKind() BindingKind { return KindBuffer }
func (b *Buffer[T]) framework() *Framework    { return b.res.fw }
func (b *Buffer[T]) alive() error             { return b.res.check() }

func (b *Buffer[T]) entry(index uint32) gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{Binding: index, Buffer: b.id}
}
