package software

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// enqueue schedules fn after all previously scheduled work.
// Must be called with mu held.
func (a *Adapter) enqueue(fn func()) {
	a.queue = append(a.queue, fn)
	a.queued++
}

// usableBuffer returns a live, unmapped buffer with the given usage.
// Must be called with mu held.
func (a *Adapter) usableBuffer(id gpucore.BufferID, need gputypes.BufferUsage) (*buffer, error) {
	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if buf.usage&need != need {
		return nil, fmt.Errorf("%w: buffer %q", ErrInvalidUsage, buf.label)
	}
	if buf.state != unmapped {
		return nil, fmt.Errorf("%w: buffer %q is %s", ErrBufferMapped, buf.label, buf.state)
	}
	return buf, nil
}

// WriteBuffer schedules an upload. data is copied before returning.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	align := a.caps.CopyBufferAlignment
	if offset%align != 0 || uint64(len(data))%align != 0 {
		return fmt.Errorf("%w: write offset %d size %d", ErrMisaligned, offset, len(data))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return ErrDeviceDestroyed
	}
	buf, err := a.usableBuffer(id, gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return fmt.Errorf("%w: write %d+%d into buffer %q of %d", ErrOutOfBounds, offset, len(data), buf.label, len(buf.data))
	}

	staged := append([]byte(nil), data...)
	a.enqueue(func() {
		copy(buf.data[offset:], staged)
	})
	return nil
}

// WriteTexture schedules a texture upload. Unlike buffer copies, the row
// pitch only needs to cover one row.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte, layout gpucore.ImageLayout, width, height uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return ErrDeviceDestroyed
	}

	tex, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	if tex.desc.Usage&gputypes.TextureUsageCopyDst == 0 {
		return fmt.Errorf("%w: texture %q", ErrInvalidUsage, tex.desc.Label)
	}
	if err := checkImageCopy(tex, uint64(len(data)), layout, width, height, 1); err != nil {
		return err
	}

	staged := append([]byte(nil), data...)
	a.enqueue(func() {
		copyRows(tex.data, uint64(tex.rowBytes()), 0, staged, uint64(layout.BytesPerRow), layout.Offset, width, height, tex.desc.PixelSize)
	})
	return nil
}

// checkImageCopy validates a buffer/texture copy region. bufLen is the
// size of the linear side.
func checkImageCopy(tex *texture, bufLen uint64, layout gpucore.ImageLayout, width, height, rowAlign uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: empty copy region", ErrInvalidSize)
	}
	if width > tex.desc.Width || height > tex.desc.Height {
		return fmt.Errorf("%w: region %dx%d in texture %q %dx%d",
			ErrOutOfBounds, width, height, tex.desc.Label, tex.desc.Width, tex.desc.Height)
	}
	row := uint64(width) * uint64(tex.desc.PixelSize)
	if layout.BytesPerRow%rowAlign != 0 {
		return fmt.Errorf("%w: bytes per row %d is not a multiple of %d", ErrMisaligned, layout.BytesPerRow, rowAlign)
	}
	if uint64(layout.BytesPerRow) < row {
		return fmt.Errorf("%w: bytes per row %d < row size %d", ErrOutOfBounds, layout.BytesPerRow, row)
	}
	need := layout.Offset + uint64(layout.BytesPerRow)*uint64(height-1) + row
	if need > bufLen {
		return fmt.Errorf("%w: copy needs %d bytes, buffer side has %d", ErrOutOfBounds, need, bufLen)
	}
	return nil
}

// copyRows copies height rows of width texels between two pitched layouts.
func copyRows(dst []byte, dstPitch, dstOffset uint64, src []byte, srcPitch, srcOffset uint64, width, height, pixelSize uint32) {
	row := uint64(width) * uint64(pixelSize)
	for y := range uint64(height) {
		d := dstOffset + y*dstPitch
		s := srcOffset + y*srcPitch
		copy(dst[d:d+row], src[s:s+row])
	}
}

// Submit validates the command list against current state and schedules it.
func (a *Adapter) Submit(list *gpucore.CommandList) (gpucore.SubmissionIndex, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return 0, ErrDeviceDestroyed
	}

	steps := make([]func(), 0, len(list.Commands))
	for i, cmd := range list.Commands {
		step, err := a.prepare(cmd)
		if err != nil {
			return 0, fmt.Errorf("submit %q command %d: %w", list.Label, i, err)
		}
		steps = append(steps, step)
	}

	a.submissions++
	a.enqueue(func() {
		for _, step := range steps {
			step()
		}
	})
	return a.submissions, nil
}

// prepare validates one command and returns its execution step.
// Must be called with mu held.
func (a *Adapter) prepare(cmd gpucore.Command) (func(), error) {
	align := a.caps.CopyBufferAlignment
	rowAlign := a.caps.CopyBytesPerRowAlignment

	switch c := cmd.(type) {
	case gpucore.CopyBufferToBuffer:
		src, err := a.usableBuffer(c.Src, gputypes.BufferUsageCopySrc)
		if err != nil {
			return nil, err
		}
		dst, err := a.usableBuffer(c.Dst, gputypes.BufferUsageCopyDst)
		if err != nil {
			return nil, err
		}
		if c.SrcOffset%align != 0 || c.DstOffset%align != 0 || c.Size%align != 0 {
			return nil, fmt.Errorf("%w: buffer copy %d->%d size %d", ErrMisaligned, c.SrcOffset, c.DstOffset, c.Size)
		}
		if c.SrcOffset+c.Size > uint64(len(src.data)) || c.DstOffset+c.Size > uint64(len(dst.data)) {
			return nil, fmt.Errorf("%w: buffer copy of %d bytes", ErrOutOfBounds, c.Size)
		}
		return func() {
			copy(dst.data[c.DstOffset:c.DstOffset+c.Size], src.data[c.SrcOffset:c.SrcOffset+c.Size])
		}, nil

	case gpucore.CopyTextureToBuffer:
		tex, ok := a.textures[c.Src]
		if !ok {
			return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, c.Src)
		}
		if tex.desc.Usage&gputypes.TextureUsageCopySrc == 0 {
			return nil, fmt.Errorf("%w: texture %q", ErrInvalidUsage, tex.desc.Label)
		}
		dst, err := a.usableBuffer(c.Dst, gputypes.BufferUsageCopyDst)
		if err != nil {
			return nil, err
		}
		if err := checkImageCopy(tex, uint64(len(dst.data)), c.Layout, c.Width, c.Height, rowAlign); err != nil {
			return nil, err
		}
		return func() {
			copyRows(dst.data, uint64(c.Layout.BytesPerRow), c.Layout.Offset, tex.data, tex.rowBytes(), 0, c.Width, c.Height, tex.desc.PixelSize)
		}, nil

	case gpucore.CopyBufferToTexture:
		tex, ok := a.textures[c.Dst]
		if !ok {
			return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, c.Dst)
		}
		if tex.desc.Usage&gputypes.TextureUsageCopyDst == 0 {
			return nil, fmt.Errorf("%w: texture %q", ErrInvalidUsage, tex.desc.Label)
		}
		src, err := a.usableBuffer(c.Src, gputypes.BufferUsageCopySrc)
		if err != nil {
			return nil, err
		}
		if err := checkImageCopy(tex, uint64(len(src.data)), c.Layout, c.Width, c.Height, rowAlign); err != nil {
			return nil, err
		}
		return func() {
			copyRows(tex.data, tex.rowBytes(), 0, src.data, uint64(c.Layout.BytesPerRow), c.Layout.Offset, c.Width, c.Height, tex.desc.PixelSize)
		}, nil

	case gpucore.Dispatch:
		return a.prepareDispatch(c)

	default:
		return nil, fmt.Errorf("software: unsupported command %T", cmd)
	}
}

// === Mapping ===

// MapBuffer requests host access. The callback fires from Poll after all
// previously scheduled work has executed.
func (a *Adapter) MapBuffer(id gpucore.BufferID, mode gpucore.MapMode, offset, size uint64, callback gpucore.MapCallback) error {
	if callback == nil {
		return fmt.Errorf("software: nil map callback")
	}
	if offset%8 != 0 || size%4 != 0 {
		return fmt.Errorf("%w: map offset %d size %d", ErrMisaligned, offset, size)
	}

	var need gputypes.BufferUsage
	switch mode {
	case gpucore.MapRead:
		need = gputypes.BufferUsageMapRead
	case gpucore.MapWrite:
		need = gputypes.BufferUsageMapWrite
	default:
		return fmt.Errorf("%w: map mode %s", ErrInvalidUsage, mode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return ErrDeviceDestroyed
	}
	buf, err := a.usableBuffer(id, need)
	if err != nil {
		return err
	}
	if size == 0 {
		size = uint64(len(buf.data)) - offset
	}
	if offset+size > uint64(len(buf.data)) {
		return fmt.Errorf("%w: map %d+%d of buffer %q", ErrOutOfBounds, offset, size, buf.label)
	}

	buf.state = mapPending
	buf.mapMode = mode
	buf.mapOffset = offset
	buf.mapSize = size
	a.maps = append(a.maps, pendingMap{buffer: id, seq: a.queued, callback: callback})
	return nil
}

// MappedRange returns the mapped bytes. Host memory is device memory here,
// so writes through the slice land directly in the buffer.
func (a *Adapter) MappedRange(id gpucore.BufferID) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if buf.state != mapped {
		return nil, fmt.Errorf("%w: buffer %q is %s", ErrBufferNotMapped, buf.label, buf.state)
	}
	return buf.data[buf.mapOffset : buf.mapOffset+buf.mapSize], nil
}

// Unmap releases host access.
func (a *Adapter) Unmap(id gpucore.BufferID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if buf.state != mapped {
		return fmt.Errorf("%w: buffer %q is %s", ErrBufferNotMapped, buf.label, buf.state)
	}
	buf.state = unmapped
	return nil
}

// Poll executes every scheduled operation, then fires the callbacks of
// map requests whose preceding work is complete. Software execution is
// synchronous, so wait makes no difference.
func (a *Adapter) Poll(wait bool) bool {
	_ = wait

	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return true
	}

	queue := a.queue
	a.queue = nil
	for _, op := range queue {
		op()
		a.executed++
	}

	var ready []pendingMap
	remaining := a.maps[:0]
	for _, m := range a.maps {
		if m.err == nil && m.seq > a.executed {
			remaining = append(remaining, m)
			continue
		}
		if m.err == nil {
			if buf, ok := a.buffers[m.buffer]; ok {
				buf.state = mapped
			}
		}
		ready = append(ready, m)
	}
	a.maps = remaining
	idle := len(a.queue) == 0 && len(a.maps) == 0
	a.mu.Unlock()

	for _, m := range ready {
		m.callback(m.err)
	}
	return idle
}
