package gpgpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

const (
	imageUsage      = gputypes.TextureUsageStorageBinding | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	constImageUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
)

// imageCore is the pixel-type independent part of Image and ConstImage.
// Pixel data is exchanged as tightly packed rows: Width*PixelSize bytes
// per row, Height rows.
type imageCore struct {
	res    resource
	id     gpucore.TextureID
	width  uint32
	height uint32
	format PixelFormat
}

func (c *imageCore) init(fw *Framework, label string, w, h uint32, px PixelFormat, usage gputypes.TextureUsage) error {
	if fw.isClosed() {
		return ErrClosed
	}
	// Zero-area images keep a 1x1 texel so they stay bindable.
	id, err := fw.dev.CreateTexture(&gpucore.TextureDesc{
		Label:     label,
		Width:     max(w, 1),
		Height:    max(h, 1),
		Format:    px.Format,
		PixelSize: px.Size,
		Usage:     usage,
	})
	if err != nil {
		return fmt.Errorf("%w: %s %dx%d %s: %w", ErrAllocation, label, w, h, px, err)
	}
	c.id, c.width, c.height, c.format = id, w, h, px
	if err := c.res.register(fw, func() { fw.dev.DestroyTexture(id) }); err != nil {
		fw.dev.DestroyTexture(id)
		return err
	}
	return nil
}

// Width returns the width in pixels.
func (c *imageCore) Width() uint32 { return c.width }

// Height returns the height in pixels.
func (c *imageCore) Height() uint32 { return c.height }

// Format returns the pixel format.
func (c *imageCore) Format() PixelFormat { return c.format }

// Len returns the number of pixels.
func (c *imageCore) Len() int { return int(c.width) * int(c.height) }

// Size returns the logical size in bytes, without row padding.
func (c *imageCore) Size() uint64 {
	return uint64(c.width) * uint64(c.height) * uint64(c.format.Size)
}

// Capacity returns Size; images have no spare room.
func (c *imageCore) Capacity() uint64 { return c.Size() }

// IsEmpty reports whether the image has no pixels.
func (c *imageCore) IsEmpty() bool { return c.Len() == 0 }

// Release destroys the device texture. Release is idempotent.
func (c *imageCore) Release() { c.res.Release() }

// Read returns the pixels as tightly packed rows.
func (c *imageCore) Read() ([]byte, error) {
	return c.ReadContext(context.Background())
}

// ReadContext is Read with a context bounding the wait for the device.
func (c *imageCore) ReadContext(ctx context.Context) ([]byte, error) {
	if err := c.res.check(); err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return []byte{}, nil
	}
	out, err := c.res.fw.readTexture(ctx, c.id, c.width, c.height, c.format.Size)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return out, nil
}

// ReadAsync starts a download of the pixels.
func (c *imageCore) ReadAsync() *Future[[]byte] {
	fw := c.res.fw
	if err := c.res.check(); err != nil {
		return failedFuture[[]byte](fw, err)
	}
	f := newFuture[[]byte](fw)
	if c.IsEmpty() {
		f.resolve([]byte{}, nil)
		return f
	}
	fw.readTextureAsync(c.id, c.width, c.height, c.format.Size, func(data []byte, err error) {
		if err != nil {
			err = fmt.Errorf("read image: %w", err)
		}
		f.resolve(data, err)
	})
	return f
}

// checkWrite validates an image write and truncates data to the image.
func (c *imageCore) checkWrite(data []byte) ([]byte, error) {
	px := int(c.format.Size)
	if len(data)%px != 0 {
		return nil, fmt.Errorf("%w: %d bytes, pixel size %d", ErrNotIntegerPixelNumber, len(data), px)
	}
	if row := px * int(c.width); row > 0 && len(data)%row != 0 {
		return nil, fmt.Errorf("%w: %d bytes, row size %d", ErrNotIntegerRowNumber, len(data), row)
	}
	return data[:min(uint64(len(data)), c.Size())], nil
}

// Write uploads whole rows from the top of the image through a staging
// buffer with padded rows. Data longer than the image is truncated;
// shorter data leaves the remaining rows untouched. Write returns the
// number of bytes written.
func (c *imageCore) Write(data []byte) (int, error) {
	return c.write(data, true)
}

// WriteDirect is Write through the device queue's texture upload, which
// needs no row padding.
func (c *imageCore) WriteDirect(data []byte) (int, error) {
	return c.write(data, false)
}

// WriteAsync performs Write on another goroutine.
func (c *imageCore) WriteAsync(data []byte) *Future[int] {
	f := newFuture[int](c.res.fw)
	data = append([]byte(nil), data...)
	go func() {
		f.resolve(c.Write(data))
	}()
	return f
}

func (c *imageCore) write(data []byte, staged bool) (int, error) {
	if err := c.res.check(); err != nil {
		return 0, err
	}
	data, err := c.checkWrite(data)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	if err := c.res.fw.writeTexture(context.Background(), c.id, data, c.width, c.format.Size, staged); err != nil {
		return 0, fmt.Errorf("write image: %w", err)
	}
	return len(data), nil
}

func (c *imageCore) framework() *Framework { return c.res.fw }
func (c *imageCore) alive() error          { return c.res.check() }

func (c *imageCore) entry(index uint32) gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{Binding: index, Texture: c.id}
}

// Image is a read-write storage image of pixel type P.
type Image[P Pixel] struct {
	imageCore
}

// NewImage allocates a zero-filled w x h storage image.
func NewImage[P Pixel](fw *Framework, w, h uint32) (*Image[P], error) {
	img := &Image[P]{}
	if err := img.init(fw, fw.label("image"), w, h, FormatOf[P](), imageUsage); err != nil {
		return nil, err
	}
	return img, nil
}

// NewImageFrom allocates a storage image holding pixels, given as tightly
// packed rows.
func NewImageFrom[P Pixel](fw *Framework, w, h uint32, pixels []byte) (*Image[P], error) {
	img, err := NewImage[P](fw, w, h)
	if err != nil {
		return nil, err
	}
	if _, err := img.Write(pixels); err != nil {
		img.Release()
		return nil, err
	}
	return img, nil
}

func (*Image[P]) isImage()                 {}
func (*Image[P]) bindingKind() BindingKind { return KindImage }

// ConstImage is a sampled, shader read-only image of pixel type P.
type ConstImage[P Pixel] struct {
	imageCore
}

// NewConstImage allocates a zero-filled w x h sampled image.
func NewConstImage[P Pixel](fw *Framework, w, h uint32) (*ConstImage[P], error) {
	img := &ConstImage[P]{}
	if err := img.init(fw, fw.label("const-image"), w, h, FormatOf[P](), constImageUsage); err != nil {
		return nil, err
	}
	return img, nil
}

// NewConstImageFrom allocates a sampled image holding pixels.
func NewConstImageFrom[P Pixel](fw *Framework, w, h uint32, pixels []byte) (*ConstImage[P], error) {
	img, err := NewConstImage[P](fw, w, h)
	if err != nil {
		return nil, err
	}
	if _, err := img.Write(pixels); err != nil {
		img.Release()
		return nil, err
	}
	return img, nil
}

func (*ConstImage[P]) isConstImage()            {}
func (*ConstImage[P]) bindingKind() BindingKind { return KindConstImage }
