//go:build !nogpu

package native

import (
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// WriteBuffer uploads data through the HAL queue.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	align := a.caps.CopyBufferAlignment
	if offset%align != 0 || uint64(len(data))%align != 0 {
		return fmt.Errorf("native: write offset %d size %d not aligned to %d", offset, len(data), align)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.destroyed {
		return ErrDeviceDestroyed
	}
	b, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("native: write %d+%d exceeds buffer %q of %d", offset, len(data), b.label, b.size)
	}
	a.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// WriteTexture uploads a region at the texture origin through the HAL queue.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte, layout gpucore.ImageLayout, width, height uint32) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.destroyed {
		return ErrDeviceDestroyed
	}
	t, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}

	a.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       layout.Offset,
			BytesPerRow:  layout.BytesPerRow,
			RowsPerImage: layout.RowsPerImage,
		},
		&hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
	)
	return nil
}

// Submit encodes the command list into one command buffer and submits it
// with its own fence.
func (a *Adapter) Submit(list *gpucore.CommandList) (gpucore.SubmissionIndex, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return 0, ErrDeviceDestroyed
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: list.Label})
	if err != nil {
		return 0, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(list.Label); err != nil {
		return 0, fmt.Errorf("begin encoding: %w", err)
	}

	uses := make(map[uint64]bool)
	for i, cmd := range list.Commands {
		if err := a.encode(encoder, cmd, uses); err != nil {
			encoder.DiscardEncoding()
			return 0, fmt.Errorf("submit %q command %d: %w", list.Label, i, err)
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return 0, fmt.Errorf("end encoding: %w", err)
	}
	fence, err := a.device.CreateFence()
	if err != nil {
		a.device.FreeCommandBuffer(cmdBuf)
		return 0, fmt.Errorf("create fence: %w", err)
	}
	if err := a.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		a.device.DestroyFence(fence)
		a.device.FreeCommandBuffer(cmdBuf)
		return 0, fmt.Errorf("submit: %w", err)
	}

	a.submitted++
	a.inflight = append(a.inflight, &submission{
		index: a.submitted,
		fence: fence,
		cmd:   cmdBuf,
		uses:  uses,
	})
	return a.submitted, nil
}

// encode records one command. Must be called with mu held.
func (a *Adapter) encode(encoder hal.CommandEncoder, cmd gpucore.Command, uses map[uint64]bool) error {
	switch c := cmd.(type) {
	case gpucore.CopyBufferToBuffer:
		src, dst, err := a.bufferPair(c.Src, c.Dst)
		if err != nil {
			return err
		}
		encoder.CopyBufferToBuffer(src, dst, []hal.BufferCopy{
			{SrcOffset: c.SrcOffset, DstOffset: c.DstOffset, Size: c.Size},
		})
		uses[uint64(c.Src)], uses[uint64(c.Dst)] = true, true

	case gpucore.CopyTextureToBuffer:
		t, ok := a.textures[c.Src]
		if !ok {
			return fmt.Errorf("%w: texture %d", ErrUnknownResource, c.Src)
		}
		b, ok := a.buffers[c.Dst]
		if !ok {
			return fmt.Errorf("%w: buffer %d", ErrUnknownResource, c.Dst)
		}
		encoder.CopyTextureToBuffer(t.tex, b.buf, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: c.Layout.Offset, BytesPerRow: c.Layout.BytesPerRow, RowsPerImage: c.Layout.RowsPerImage},
			TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
			Size:         hal.Extent3D{Width: c.Width, Height: c.Height, DepthOrArrayLayers: 1},
		}})
		uses[uint64(c.Src)], uses[uint64(c.Dst)] = true, true

	case gpucore.CopyBufferToTexture:
		b, ok := a.buffers[c.Src]
		if !ok {
			return fmt.Errorf("%w: buffer %d", ErrUnknownResource, c.Src)
		}
		t, ok := a.textures[c.Dst]
		if !ok {
			return fmt.Errorf("%w: texture %d", ErrUnknownResource, c.Dst)
		}
		encoder.CopyBufferToTexture(b.buf, t.tex, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: c.Layout.Offset, BytesPerRow: c.Layout.BytesPerRow, RowsPerImage: c.Layout.RowsPerImage},
			TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
			Size:         hal.Extent3D{Width: c.Width, Height: c.Height, DepthOrArrayLayers: 1},
		}})
		uses[uint64(c.Src)], uses[uint64(c.Dst)] = true, true

	case gpucore.Dispatch:
		p, ok := a.pipelines[c.Pipeline]
		if !ok {
			return fmt.Errorf("%w: pipeline %d", ErrUnknownResource, c.Pipeline)
		}
		groups := make([]hal.BindGroup, len(c.BindGroups))
		for i, id := range c.BindGroups {
			bg, ok := a.bindGroups[id]
			if !ok {
				return fmt.Errorf("%w: bind group %d", ErrUnknownResource, id)
			}
			groups[i] = bg
		}
		if c.X == 0 || c.Y == 0 || c.Z == 0 {
			return nil
		}

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: c.Label})
		pass.SetPipeline(p.pipe)
		for i, bg := range groups {
			pass.SetBindGroup(uint32(i), bg, nil)
		}
		pass.Dispatch(c.X, c.Y, c.Z)
		pass.End()

		uses[uint64(c.Pipeline)] = true
		for _, id := range c.BindGroups {
			uses[uint64(id)] = true
			for _, r := range a.bindGroupUses[id] {
				uses[r] = true
			}
		}

	default:
		return fmt.Errorf("native: unsupported command %T", cmd)
	}
	return nil
}

func (a *Adapter) bufferPair(src, dst gpucore.BufferID) (hal.Buffer, hal.Buffer, error) {
	s, ok := a.buffers[src]
	if !ok {
		return nil, nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, src)
	}
	d, ok := a.buffers[dst]
	if !ok {
		return nil, nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, dst)
	}
	return s.buf, d.buf, nil
}

// === Mapping ===

// MapBuffer requests host access once every submission issued so far has
// completed.
func (a *Adapter) MapBuffer(id gpucore.BufferID, mode gpucore.MapMode, offset, size uint64, callback gpucore.MapCallback) error {
	if callback == nil {
		return fmt.Errorf("native: nil map callback")
	}
	if mode != gpucore.MapRead && mode != gpucore.MapWrite {
		return fmt.Errorf("native: invalid map mode %s", mode)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return ErrDeviceDestroyed
	}
	b, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if b.state != unmapped {
		return fmt.Errorf("%w: buffer %q is %s", ErrBufferMapped, b.label, b.state)
	}
	if size == 0 {
		size = b.size - offset
	}
	if offset+size > b.size {
		return fmt.Errorf("native: map %d+%d exceeds buffer %q of %d", offset, size, b.label, b.size)
	}

	b.state = mapPending
	b.mapMode = mode
	b.mapOffset = offset
	b.shadow = make([]byte, size)
	a.maps = append(a.maps, pendingMap{buffer: id, index: a.submitted, callback: callback})
	return nil
}

// MappedRange returns the host shadow of a mapped buffer.
func (a *Adapter) MappedRange(id gpucore.BufferID) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if b.state != mapped {
		return nil, fmt.Errorf("%w: buffer %q is %s", ErrBufferNotMapped, b.label, b.state)
	}
	return b.shadow, nil
}

// Unmap releases host access, flushing the shadow of write mappings.
func (a *Adapter) Unmap(id gpucore.BufferID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if b.state != mapped {
		return fmt.Errorf("%w: buffer %q is %s", ErrBufferNotMapped, b.label, b.state)
	}
	if b.mapMode == gpucore.MapWrite {
		a.queue.WriteBuffer(b.buf, b.mapOffset, b.shadow)
	}
	b.state = unmapped
	b.shadow = nil
	return nil
}

// Poll checks in-flight fences in submission order, retires completed
// submissions, and resolves map requests whose submissions are done.
// With wait set it blocks up to the wait timeout per submission; map
// requests still pending after a timed-out wait fail with ErrWaitTimeout.
func (a *Adapter) Poll(wait bool) bool {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()

	a.mu.RLock()
	if a.destroyed {
		a.mu.RUnlock()
		return true
	}
	pending := slices.Clone(a.inflight)
	a.mu.RUnlock()

	var timeout time.Duration
	if wait {
		timeout = a.waitTimeout
	}

	done := 0
	var waitErr error
	for _, s := range pending {
		ok, err := a.device.Wait(s.fence, 1, timeout)
		if err != nil {
			waitErr = err
			a.log.Warn("native: fence wait failed", "submission", s.index, "err", err)
			break
		}
		if !ok {
			if wait {
				waitErr = ErrWaitTimeout
			}
			break
		}
		done++
	}

	a.mu.Lock()
	for _, s := range pending[:done] {
		a.retire(s)
		a.completed = s.index
	}
	a.inflight = a.inflight[done:]

	var ready []pendingMap
	remaining := a.maps[:0]
	for _, m := range a.maps {
		switch {
		case m.err != nil:
		case m.index <= a.completed:
			m.err = a.completeMap(m.buffer)
		case waitErr != nil:
			m.err = fmt.Errorf("%w: submission %d: %w", ErrWaitTimeout, m.index, waitErr)
			if b, ok := a.buffers[m.buffer]; ok {
				b.state = unmapped
				b.shadow = nil
			}
		default:
			remaining = append(remaining, m)
			continue
		}
		ready = append(ready, m)
	}
	a.maps = remaining
	idle := len(a.inflight) == 0 && len(a.maps) == 0
	a.mu.Unlock()

	for _, m := range ready {
		m.callback(m.err)
	}
	return idle
}

// completeMap fills the shadow of a read mapping and marks the buffer
// mapped. Must be called with mu held.
func (a *Adapter) completeMap(id gpucore.BufferID) error {
	b, ok := a.buffers[id]
	if !ok {
		return ErrBufferDestroyed
	}
	if b.mapMode == gpucore.MapRead {
		if err := a.queue.ReadBuffer(b.buf, b.mapOffset, b.shadow); err != nil {
			b.state = unmapped
			b.shadow = nil
			return fmt.Errorf("read buffer %q: %w", b.label, err)
		}
	}
	b.state = mapped
	return nil
}

// retire frees a completed submission and runs its deferred releases.
// Must be called with mu held.
func (a *Adapter) retire(s *submission) {
	a.device.DestroyFence(s.fence)
	a.device.FreeCommandBuffer(s.cmd)
	for _, fn := range s.release {
		fn()
	}
	s.release = nil
}
