package gpgpu

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"
)

// PixelReader is the read side shared by Image and ConstImage.
type PixelReader interface {
	Read() ([]byte, error)
	Width() uint32
	Height() uint32
	Format() PixelFormat
}

// toNRGBA converts img to straight-alpha RGBA8 of size w x h, scaling
// with Catmull-Rom when the sizes differ. Zero w or h keeps the source
// size.
func toNRGBA(img image.Image, w, h uint32) *image.NRGBA {
	b := img.Bounds()
	if w == 0 || h == 0 {
		w, h = uint32(b.Dx()), uint32(b.Dy())
	}
	dst := image.NewNRGBA(image.Rect(0, 0, int(w), int(h)))
	if int(w) == b.Dx() && int(h) == b.Dy() {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	}
	return dst
}

// ImageFromGo uploads img as an RGBA8Unorm storage image of w x h pixels.
// Zero w or h keeps the source size.
func ImageFromGo(fw *Framework, img image.Image, w, h uint32) (*Image[RGBA8Unorm], error) {
	src := toNRGBA(img, w, h)
	b := src.Bounds()
	return NewImageFrom[RGBA8Unorm](fw, uint32(b.Dx()), uint32(b.Dy()), src.Pix)
}

// ConstImageFromGo uploads img as an RGBA8Unorm sampled image.
func ConstImageFromGo(fw *Framework, img image.Image, w, h uint32) (*ConstImage[RGBA8Unorm], error) {
	src := toNRGBA(img, w, h)
	b := src.Bounds()
	return NewConstImageFrom[RGBA8Unorm](fw, uint32(b.Dx()), uint32(b.Dy()), src.Pix)
}

// ToNRGBA downloads an RGBA8 image into an *image.NRGBA.
func ToNRGBA(img PixelReader) (*image.NRGBA, error) {
	switch img.Format().Name {
	case "RGBA8Unorm", "RGBA8Uint":
	default:
		return nil, fmt.Errorf("%w: %s to NRGBA", ErrPixelFormat, img.Format())
	}
	pix, err := img.Read()
	if err != nil {
		return nil, err
	}
	w, h := int(img.Width()), int(img.Height())
	return &image.NRGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}, nil
}

// ToGray downloads a one-byte-per-pixel image into an *image.Gray.
func ToGray(img PixelReader) (*image.Gray, error) {
	switch img.Format().Name {
	case "R8Unorm", "R8Uint":
	default:
		return nil, fmt.Errorf("%w: %s to Gray", ErrPixelFormat, img.Format())
	}
	pix, err := img.Read()
	if err != nil {
		return nil, err
	}
	w, h := int(img.Width()), int(img.Height())
	return &image.Gray{Pix: pix, Stride: w, Rect: image.Rect(0, 0, w, h)}, nil
}
