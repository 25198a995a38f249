package gpgpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

const uniformUsage = gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc

// uniformAlignment is the size granularity of uniform bindings.
const uniformAlignment = 16

// UniformBuffer holds exactly one value of plain-data type T.
type UniformBuffer[T any] struct {
	res   resource
	id    gpucore.BufferID
	size  uint64
	alloc uint64
}

// NewUniformBuffer allocates a zero-filled uniform buffer.
// It panics if T is not plain data.
func NewUniformBuffer[T any](fw *Framework) (*UniformBuffer[T], error) {
	size := uint64(elemSize[T]())
	id, alloc, err := fw.createBuffer(fw.label("uniform"), alignUp(size, uniformAlignment), uniformUsage)
	if err != nil {
		return nil, err
	}
	u := &UniformBuffer[T]{id: id, size: size, alloc: alloc}
	if err := u.res.register(fw, func() { fw.dev.DestroyBuffer(id) }); err != nil {
		fw.dev.DestroyBuffer(id)
		return nil, err
	}
	return u, nil
}

// NewUniformBufferFrom allocates a uniform buffer holding v.
func NewUniformBufferFrom[T any](fw *Framework, v T) (*UniformBuffer[T], error) {
	u, err := NewUniformBuffer[T](fw)
	if err != nil {
		return nil, err
	}
	if err := u.Write(v); err != nil {
		u.Release()
		return nil, err
	}
	return u, nil
}

// Size returns sizeof(T).
func (u *UniformBuffer[T]) Size() uint64 { return u.size }

// Capacity returns Size. The device allocation is rounded up to 16 bytes.
func (u *UniformBuffer[T]) Capacity() uint64 { return u.size }

// Release destroys the device buffer. Release is idempotent.
func (u *UniformBuffer[T]) Release() { u.res.Release() }

// Read returns the current value.
func (u *UniformBuffer[T]) Read() (T, error) {
	var v T
	if err := u.res.check(); err != nil {
		return v, err
	}
	raw, err := u.res.fw.readBuffer(context.Background(), u.id, 0, u.alloc)
	if err != nil {
		return v, fmt.Errorf("read uniform: %w", err)
	}
	return fromBytes[T](raw[:u.size])[0], nil
}

// ReadAsync starts a download of the value.
func (u *UniformBuffer[T]) ReadAsync() *Future[T] {
	fw := u.res.fw
	if err := u.res.check(); err != nil {
		return failedFuture[T](fw, err)
	}
	f := newFuture[T](fw)
	fw.downloadAsync(u.alloc, func(list *gpucore.CommandList, stage gpucore.BufferID) {
		list.CopyBuffer(u.id, 0, stage, 0, u.alloc)
	}, func(raw []byte, err error) {
		if err != nil {
			var zero T
			f.resolve(zero, fmt.Errorf("read uniform: %w", err))
			return
		}
		f.resolve(fromBytes[T](raw[:u.size])[0], nil)
	})
	return f
}

// Write replaces the value.
func (u *UniformBuffer[T]) Write(v T) error {
	if err := u.res.check(); err != nil {
		return err
	}
	return u.res.fw.writeBuffer(context.Background(), u.id, asBytes([]T{v}), false)
}

func (u *UniformBuffer[T]) isUniform()               {}
func (u *UniformBuffer[T]) bindingKind() BindingKind { return KindUniformBuffer }
func (u *UniformBuffer[T]) framework() *Framework    { return u.res.fw }
func (u *UniformBuffer[T]) alive() error             { return u.res.check() }

func (u *UniformBuffer[T]) entry(index uint32) gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{Binding: index, Buffer: u.id}
}
