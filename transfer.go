package gpgpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// Transfers between host and device go through scoped staging buffers:
//
//	download: src -> copy -> staging(MapRead|CopyDst) -> map -> host
//	upload:   host -> staging(MapWrite|CopySrc) -> unmap -> copy -> dst
//
// A staging buffer lives for one transfer and is destroyed on every exit
// path. Devices keep destroyed buffers alive until submissions using them
// retire, so destroying right after Submit is safe.

// copyAlignment is the granularity of buffer copies and queue writes.
const copyAlignment = 4

// mapPollInterval is how often a blocked transfer re-polls the device
// while another goroutine holds the poll.
const mapPollInterval = 100 * time.Microsecond

// RowPitch returns the bytes per row of a width-pixel row of px-byte
// pixels padded to align:
//
//	unpadded = width*px
//	padding  = (align - unpadded%align) % align
func RowPitch(width, px, align uint32) uint32 {
	unpadded := width * px
	if align == 0 {
		return unpadded
	}
	return unpadded + (align-unpadded%align)%align
}

// padRows copies tightly packed rows of src into dst at pitch intervals.
func padRows(dst, src []byte, rowBytes, pitch int) {
	if rowBytes == 0 {
		return
	}
	for y := 0; y*rowBytes < len(src); y++ {
		copy(dst[y*pitch:y*pitch+rowBytes], src[y*rowBytes:(y+1)*rowBytes])
	}
}

// unpadRows strips the row padding of src into tightly packed dst.
func unpadRows(dst, src []byte, rowBytes, pitch int) {
	if rowBytes == 0 {
		return
	}
	for y := 0; y*rowBytes < len(dst); y++ {
		copy(dst[y*rowBytes:(y+1)*rowBytes], src[y*pitch:y*pitch+rowBytes])
	}
}

func alignUp(n, a uint64) uint64 {
	return (n + a - 1) / a * a
}

// newStaging creates a transfer buffer for the given map direction.
func (fw *Framework) newStaging(size uint64, mode gpucore.MapMode) (gpucore.BufferID, error) {
	usage := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	label := fw.label("staging-download")
	if mode == gpucore.MapWrite {
		usage = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
		label = fw.label("staging-upload")
	}
	id, err := fw.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: label,
		Size:  alignUp(size, copyAlignment),
		Usage: usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: staging %d bytes: %w", ErrAllocation, size, err)
	}
	return id, nil
}

// mapSync maps a staging buffer and drives the device until the map
// resolves, ctx is done, or the map timeout expires.
func (fw *Framework) mapSync(ctx context.Context, id gpucore.BufferID, mode gpucore.MapMode, size uint64) error {
	done := make(chan error, 1)
	if err := fw.dev.MapBuffer(id, mode, 0, size, func(err error) { done <- err }); err != nil {
		return fmt.Errorf("%w: %w", ErrMapFailed, err)
	}

	timeout := time.NewTimer(fw.opts.mapTimeout)
	defer timeout.Stop()
	tick := time.NewTicker(mapPollInterval)
	defer tick.Stop()
	for {
		fw.dev.Poll(true)
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMapFailed, err)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("%w: timed out after %v", ErrMapFailed, fw.opts.mapTimeout)
		case <-tick.C:
		}
	}
}

// download records a copy into a staging buffer of size bytes, waits for
// it and returns the staged bytes.
func (fw *Framework) download(ctx context.Context, size uint64, record func(list *gpucore.CommandList, stage gpucore.BufferID)) ([]byte, error) {
	if err := fw.acquire(ctx); err != nil {
		return nil, err
	}
	defer fw.releaseSlot()

	stage, err := fw.newStaging(size, gpucore.MapRead)
	if err != nil {
		return nil, err
	}
	defer fw.dev.DestroyBuffer(stage)

	list := gpucore.NewCommandList(fw.label("download"))
	record(list, stage)
	if _, err := fw.dev.Submit(list); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	if err := fw.mapSync(ctx, stage, gpucore.MapRead, alignUp(size, copyAlignment)); err != nil {
		return nil, err
	}

	mapped, err := fw.dev.MappedRange(stage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapFailed, err)
	}
	out := make([]byte, size)
	copy(out, mapped)
	if err := fw.dev.Unmap(stage); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapFailed, err)
	}
	fw.logger().Debug("gpgpu: download", "bytes", size)
	return out, nil
}

// downloadAsync is download with completion delivered to done from the
// goroutine that polls the device. It never blocks the caller: when every
// transfer slot is taken the submission waits for one on its own
// goroutine, and slots free up as the device is polled.
func (fw *Framework) downloadAsync(size uint64, record func(list *gpucore.CommandList, stage gpucore.BufferID), done func([]byte, error)) {
	if fw.sem == nil || fw.sem.TryAcquire(1) {
		fw.submitDownload(size, record, done)
		return
	}
	go func() {
		if err := fw.sem.Acquire(context.Background(), 1); err != nil {
			done(nil, err)
			return
		}
		if fw.isClosed() {
			fw.releaseSlot()
			done(nil, ErrClosed)
			return
		}
		fw.submitDownload(size, record, done)
	}()
}

// submitDownload runs the async download once a slot is held.
func (fw *Framework) submitDownload(size uint64, record func(list *gpucore.CommandList, stage gpucore.BufferID), done func([]byte, error)) {
	stage, err := fw.newStaging(size, gpucore.MapRead)
	if err != nil {
		fw.releaseSlot()
		done(nil, err)
		return
	}
	finish := func(data []byte, err error) {
		fw.dev.DestroyBuffer(stage)
		fw.releaseSlot()
		done(data, err)
	}

	list := gpucore.NewCommandList(fw.label("download-async"))
	record(list, stage)
	if _, err := fw.dev.Submit(list); err != nil {
		finish(nil, fmt.Errorf("%w: %w", ErrSubmit, err))
		return
	}
	err = fw.dev.MapBuffer(stage, gpucore.MapRead, 0, alignUp(size, copyAlignment), func(err error) {
		if err != nil {
			finish(nil, fmt.Errorf("%w: %w", ErrMapFailed, err))
			return
		}
		mapped, err := fw.dev.MappedRange(stage)
		if err != nil {
			finish(nil, fmt.Errorf("%w: %w", ErrMapFailed, err))
			return
		}
		out := make([]byte, size)
		copy(out, mapped)
		if err := fw.dev.Unmap(stage); err != nil {
			finish(nil, fmt.Errorf("%w: %w", ErrMapFailed, err))
			return
		}
		finish(out, nil)
	})
	if err != nil {
		finish(nil, fmt.Errorf("%w: %w", ErrMapFailed, err))
	}
}

// upload fills a staging buffer with data and records a copy out of it.
func (fw *Framework) upload(ctx context.Context, data []byte, record func(list *gpucore.CommandList, stage gpucore.BufferID)) error {
	if err := fw.acquire(ctx); err != nil {
		return err
	}
	defer fw.releaseSlot()

	size := alignUp(uint64(len(data)), copyAlignment)
	stage, err := fw.newStaging(size, gpucore.MapWrite)
	if err != nil {
		return err
	}
	defer fw.dev.DestroyBuffer(stage)

	if err := fw.mapSync(ctx, stage, gpucore.MapWrite, size); err != nil {
		return err
	}
	mapped, err := fw.dev.MappedRange(stage)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMapFailed, err)
	}
	copy(mapped, data)
	if err := fw.dev.Unmap(stage); err != nil {
		return fmt.Errorf("%w: %w", ErrMapFailed, err)
	}

	list := gpucore.NewCommandList(fw.label("upload"))
	record(list, stage)
	if _, err := fw.dev.Submit(list); err != nil {
		return fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	fw.logger().Debug("gpgpu: staged upload", "bytes", len(data))
	return nil
}

// readBuffer downloads size bytes of a buffer starting at offset. Offset
// and the copied range are aligned to the copy granularity.
func (fw *Framework) readBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	span := alignUp(size, copyAlignment)
	return fw.download(ctx, span, func(list *gpucore.CommandList, stage gpucore.BufferID) {
		list.CopyBuffer(id, offset, stage, 0, span)
	})
}

// alignedPayload returns data extended to the copy granularity. A
// trailing partial word is merged with the buffer's current contents so
// bytes past len(data) keep their value.
func (fw *Framework) alignedPayload(ctx context.Context, id gpucore.BufferID, data []byte) ([]byte, error) {
	n := len(data)
	if n%copyAlignment == 0 {
		return data, nil
	}
	tail := n &^ (copyAlignment - 1)
	word, err := fw.readBuffer(ctx, id, uint64(tail), copyAlignment)
	if err != nil {
		return nil, fmt.Errorf("read trailing word: %w", err)
	}
	out := make([]byte, tail+copyAlignment)
	copy(out, data)
	copy(out[n:], word[n-tail:])
	return out, nil
}

// writeBuffer writes data at offset 0 through the queue (direct) or a
// staging buffer.
func (fw *Framework) writeBuffer(ctx context.Context, id gpucore.BufferID, data []byte, staged bool) error {
	if len(data) == 0 {
		return nil
	}
	payload, err := fw.alignedPayload(ctx, id, data)
	if err != nil {
		return err
	}
	if !staged {
		if err := fw.dev.WriteBuffer(id, 0, payload); err != nil {
			return fmt.Errorf("%w: write buffer: %w", ErrSubmit, err)
		}
		return nil
	}
	return fw.upload(ctx, payload, func(list *gpucore.CommandList, stage gpucore.BufferID) {
		list.CopyBuffer(stage, 0, id, 0, uint64(len(payload)))
	})
}

// readTexture downloads a whole texture and strips the row padding.
func (fw *Framework) readTexture(ctx context.Context, id gpucore.TextureID, w, h, px uint32) ([]byte, error) {
	pitch := RowPitch(w, px, fw.caps.CopyBytesPerRowAlignment)
	padded, err := fw.download(ctx, uint64(pitch)*uint64(h), func(list *gpucore.CommandList, stage gpucore.BufferID) {
		list.CopyTextureToBuffer(id, stage, gpucore.ImageLayout{BytesPerRow: pitch, RowsPerImage: h}, w, h)
	})
	if err != nil {
		return nil, err
	}
	out := make([]byte, int(w*px)*int(h))
	unpadRows(out, padded, int(w*px), int(pitch))
	return out, nil
}

// readTextureAsync is readTexture delivering to done.
func (fw *Framework) readTextureAsync(id gpucore.TextureID, w, h, px uint32, done func([]byte, error)) {
	pitch := RowPitch(w, px, fw.caps.CopyBytesPerRowAlignment)
	fw.downloadAsync(uint64(pitch)*uint64(h), func(list *gpucore.CommandList, stage gpucore.BufferID) {
		list.CopyTextureToBuffer(id, stage, gpucore.ImageLayout{BytesPerRow: pitch, RowsPerImage: h}, w, h)
	}, func(padded []byte, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		out := make([]byte, int(w*px)*int(h))
		unpadRows(out, padded, int(w*px), int(pitch))
		done(out, nil)
	})
}

// writeTexture uploads whole rows starting at the top of the texture.
// With staged unset the queue's texture write is used and no padding is
// needed.
func (fw *Framework) writeTexture(ctx context.Context, id gpucore.TextureID, data []byte, w, px uint32, staged bool) error {
	rowBytes := w * px
	rows := uint32(len(data)) / rowBytes
	if rows == 0 {
		return nil
	}
	if !staged {
		layout := gpucore.ImageLayout{BytesPerRow: rowBytes, RowsPerImage: rows}
		if err := fw.dev.WriteTexture(id, data, layout, w, rows); err != nil {
			return fmt.Errorf("%w: write texture: %w", ErrSubmit, err)
		}
		return nil
	}

	pitch := RowPitch(w, px, fw.caps.CopyBytesPerRowAlignment)
	padded := make([]byte, int(pitch)*int(rows))
	padRows(padded, data, int(rowBytes), int(pitch))
	return fw.upload(ctx, padded, func(list *gpucore.CommandList, stage gpucore.BufferID) {
		list.CopyBufferToTexture(stage, id, gpucore.ImageLayout{BytesPerRow: pitch, RowsPerImage: rows}, w, rows)
	})
}
