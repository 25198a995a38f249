package gpgpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

// pattern returns n bytes that differ between neighbouring pixels and rows.
func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7) ^ seed
	}
	return out
}

// newImageFor allocates a storage or sampled image of the given runtime
// format through the generic constructors.
func newImageFor(t *testing.T, fw *Framework, px PixelFormat, w, h uint32, constant bool) interface {
	PixelReader
	Write([]byte) (int, error)
	WriteDirect([]byte) (int, error)
} {
	t.Helper()
	var (
		img interface {
			PixelReader
			Write([]byte) (int, error)
			WriteDirect([]byte) (int, error)
		}
		err error
	)
	switch px.Name {
	case "R8Uint":
		img, err = pick[R8Uint](fw, w, h, constant)
	case "R8Unorm":
		img, err = pick[R8Unorm](fw, w, h, constant)
	case "RG8Uint":
		img, err = pick[RG8Uint](fw, w, h, constant)
	case "R16Uint":
		img, err = pick[R16Uint](fw, w, h, constant)
	case "RGBA8Uint":
		img, err = pick[RGBA8Uint](fw, w, h, constant)
	case "RGBA8Unorm":
		img, err = pick[RGBA8Unorm](fw, w, h, constant)
	case "RGBA8Sint":
		img, err = pick[RGBA8Sint](fw, w, h, constant)
	case "RGBA8Snorm":
		img, err = pick[RGBA8Snorm](fw, w, h, constant)
	case "R32Uint":
		img, err = pick[R32Uint](fw, w, h, constant)
	case "R32Float":
		img, err = pick[R32Float](fw, w, h, constant)
	case "RG32Float":
		img, err = pick[RG32Float](fw, w, h, constant)
	case "RGBA16Uint":
		img, err = pick[RGBA16Uint](fw, w, h, constant)
	case "RGBA16Float":
		img, err = pick[RGBA16Float](fw, w, h, constant)
	case "RGBA32Uint":
		img, err = pick[RGBA32Uint](fw, w, h, constant)
	case "RGBA32Float":
		img, err = pick[RGBA32Float](fw, w, h, constant)
	default:
		t.Fatalf("no constructor for %s", px)
	}
	if err != nil {
		t.Fatalf("new %s image %dx%d failed: %v", px, w, h, err)
	}
	return img
}

func pick[P Pixel](fw *Framework, w, h uint32, constant bool) (interface {
	PixelReader
	Write([]byte) (int, error)
	WriteDirect([]byte) (int, error)
}, error) {
	if constant {
		return NewConstImage[P](fw, w, h)
	}
	return NewImage[P](fw, w, h)
}

// TestImageRoundTrip writes and reads back every pixel format at widths
// whose rows need different amounts of padding.
func TestImageRoundTrip(t *testing.T) {
	fw := newTestFramework(t)

	const height = 3
	for _, px := range Formats() {
		for _, w := range []uint32{1, 3, 67, 300} {
			for _, constant := range []bool{false, true} {
				for _, direct := range []bool{false, true} {
					name := fmt.Sprintf("%s/w%d/const=%v/direct=%v", px, w, constant, direct)
					t.Run(name, func(t *testing.T) {
						img := newImageFor(t, fw, px, w, height, constant)
						want := pattern(int(w*px.Size)*height, byte(w))

						write := img.Write
						if direct {
							write = img.WriteDirect
						}
						n, err := write(want)
						if err != nil {
							t.Fatalf("write failed: %v", err)
						}
						if n != len(want) {
							t.Errorf("written = %d, want %d", n, len(want))
						}
						got, err := img.Read()
						if err != nil {
							t.Fatalf("Read() failed: %v", err)
						}
						if !bytes.Equal(got, want) {
							t.Errorf("round trip mismatch: got %d bytes, first diff at %d", len(got), firstDiff(got, want))
						}
					})
				}
			}
		}
	}
}

func firstDiff(a, b []byte) int {
	for i := range min(len(a), len(b)) {
		if a[i] != b[i] {
			return i
		}
	}
	return min(len(a), len(b))
}

func TestImageWriteErrors(t *testing.T) {
	fw := newTestFramework(t)

	img, err := NewImage[RGBA8Uint](fw, 5, 4)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		size int
		want error
	}{
		{"partial pixel", 4*5 + 3, ErrNotIntegerPixelNumber},
		{"partial row", 4 * 7, ErrNotIntegerRowNumber},
		{"one byte", 1, ErrNotIntegerPixelNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := img.Write(make([]byte, tt.size)); !errors.Is(err, tt.want) {
				t.Errorf("Write(%d bytes) err = %v, want %v", tt.size, err, tt.want)
			}
			if _, err := img.WriteDirect(make([]byte, tt.size)); !errors.Is(err, tt.want) {
				t.Errorf("WriteDirect(%d bytes) err = %v, want %v", tt.size, err, tt.want)
			}
		})
	}
}

func TestImagePartialAndOversizedWrites(t *testing.T) {
	fw := newTestFramework(t)

	const w, h = 67, 4
	row := w * 2
	full := pattern(row*h, 1)
	img, err := NewImageFrom[RG8Uint](fw, w, h, full)
	if err != nil {
		t.Fatal(err)
	}

	top := pattern(row, 99)
	n, err := img.Write(top)
	if err != nil || n != row {
		t.Fatalf("Write(one row) = %d, %v", n, err)
	}
	want := append(append([]byte(nil), top...), full[row:]...)
	got, err := img.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("rows past the write changed; first diff at %d", firstDiff(got, want))
	}

	over := pattern(row*(h+2), 5)
	n, err = img.WriteDirect(over)
	if err != nil {
		t.Fatalf("WriteDirect(oversized) failed: %v", err)
	}
	if n != row*h {
		t.Errorf("WriteDirect(oversized) = %d, want %d", n, row*h)
	}
	got, err = img.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, over[:row*h]) {
		t.Error("oversized write was not truncated to the image")
	}
}

func TestImageQueries(t *testing.T) {
	fw := newTestFramework(t)

	img, err := NewConstImage[RGBA32Float](fw, 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if img.Width() != 10 || img.Height() != 3 || img.Len() != 30 {
		t.Errorf("Width=%d Height=%d Len=%d", img.Width(), img.Height(), img.Len())
	}
	if img.Size() != 480 || img.Capacity() != 480 {
		t.Errorf("Size=%d Capacity=%d, want 480", img.Size(), img.Capacity())
	}
	if img.Format() != FormatOf[RGBA32Float]() {
		t.Errorf("Format() = %v", img.Format())
	}
	got, err := img.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, make([]byte, 480)) {
		t.Error("new image is not zero-filled")
	}
}

func TestZeroSizeImage(t *testing.T) {
	fw := newTestFramework(t)

	for _, dims := range [][2]uint32{{0, 0}, {0, 5}, {5, 0}} {
		t.Run(fmt.Sprintf("%dx%d", dims[0], dims[1]), func(t *testing.T) {
			img, err := NewImage[R32Uint](fw, dims[0], dims[1])
			if err != nil {
				t.Fatalf("NewImage failed: %v", err)
			}
			if !img.IsEmpty() || img.Size() != 0 {
				t.Errorf("IsEmpty=%v Size=%d", img.IsEmpty(), img.Size())
			}
			got, err := img.Read()
			if err != nil || len(got) != 0 {
				t.Errorf("Read() = %v, %v", got, err)
			}
			got, err = img.ReadAsync().Await(context.Background())
			if err != nil || len(got) != 0 {
				t.Errorf("ReadAsync() = %v, %v", got, err)
			}
			if n, err := img.Write(nil); err != nil || n != 0 {
				t.Errorf("Write(nil) = %d, %v", n, err)
			}
		})
	}
}

func TestImageAsync(t *testing.T) {
	fw := newTestFramework(t)

	want := pattern(9*9*4, 3)
	img, err := NewImage[RGBA8Unorm](fw, 9, 9)
	if err != nil {
		t.Fatal(err)
	}
	n, err := img.WriteAsync(want).Await(context.Background())
	if err != nil || n != len(want) {
		t.Fatalf("WriteAsync() = %d, %v", n, err)
	}
	got, err := img.ReadAsync().Await(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Error("ReadAsync() mismatch")
	}

	img.Release()
	if _, err := img.Read(); !errors.Is(err, ErrReleased) {
		t.Errorf("Read() after Release err = %v", err)
	}
}

func TestRowPitch(t *testing.T) {
	tests := []struct {
		width, px, align uint32
		want             uint32
	}{
		{1, 1, 256, 256},
		{1, 4, 256, 256},
		{64, 4, 256, 256},
		{65, 4, 256, 512},
		{67, 1, 256, 256},
		{300, 1, 256, 512},
		{300, 16, 256, 4864},
		{256, 1, 256, 256},
		{0, 4, 256, 0},
		{3, 4, 0, 12},
		{3, 2, 4, 8},
	}
	for _, tt := range tests {
		if got := RowPitch(tt.width, tt.px, tt.align); got != tt.want {
			t.Errorf("RowPitch(%d, %d, %d) = %d, want %d", tt.width, tt.px, tt.align, got, tt.want)
		}
	}
}

func TestPadUnpadRows(t *testing.T) {
	const rowBytes, pitch, rows = 6, 8, 3
	src := pattern(rowBytes*rows, 0)

	padded := bytes.Repeat([]byte{0xEE}, pitch*rows)
	padRows(padded, src, rowBytes, pitch)
	for y := range rows {
		if !bytes.Equal(padded[y*pitch:y*pitch+rowBytes], src[y*rowBytes:(y+1)*rowBytes]) {
			t.Errorf("row %d not copied", y)
		}
		if !bytes.Equal(padded[y*pitch+rowBytes:(y+1)*pitch], []byte{0xEE, 0xEE}) {
			t.Errorf("row %d padding overwritten", y)
		}
	}

	out := make([]byte, rowBytes*rows)
	unpadRows(out, padded, rowBytes, pitch)
	if !bytes.Equal(out, src) {
		t.Errorf("unpadRows() = %v, want %v", out, src)
	}
}

func TestFormats(t *testing.T) {
	seen := make(map[string]bool)
	for _, f := range Formats() {
		if seen[f.Name] {
			t.Errorf("duplicate format %s", f.Name)
		}
		seen[f.Name] = true
		if f.Size == 0 || f.Size > 16 {
			t.Errorf("%s: size %d", f.Name, f.Size)
		}
	}
	if len(seen) != 15 {
		t.Errorf("len(Formats()) = %d, want 15", len(seen))
	}

	tests := []struct {
		got  PixelFormat
		name string
		size uint32
	}{
		{FormatOf[R8Unorm](), "R8Unorm", 1},
		{FormatOf[R16Uint](), "R16Uint", 2},
		{FormatOf[RGBA8Snorm](), "RGBA8Snorm", 4},
		{FormatOf[RG32Float](), "RG32Float", 8},
		{FormatOf[RGBA32Uint](), "RGBA32Uint", 16},
	}
	for _, tt := range tests {
		if tt.got.Name != tt.name || tt.got.Size != tt.size {
			t.Errorf("FormatOf = %s/%d, want %s/%d", tt.got.Name, tt.got.Size, tt.name, tt.size)
		}
		if tt.got.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.got.String(), tt.name)
		}
	}
}
