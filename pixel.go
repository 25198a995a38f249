package gpgpu

import "github.com/gogpu/gputypes"

// PixelFormat is one row of the pixel registry.
type PixelFormat struct {
	Name string

	// Size is the byte size of one pixel. It always agrees with Format.
	Size uint32

	Format     gputypes.TextureFormat
	SampleType gputypes.TextureSampleType
}

// Pixel is implemented by the pixel marker types below. The set is
// closed: Pixel cannot be implemented outside this package.
type Pixel interface {
	pixelFormat() PixelFormat
}

// Pixel marker types. Each names one texture format.
type (
	R8Uint      struct{}
	R8Unorm     struct{}
	RG8Uint     struct{}
	R16Uint     struct{}
	RGBA8Uint   struct{}
	RGBA8Unorm  struct{}
	RGBA8Sint   struct{}
	RGBA8Snorm  struct{}
	R32Uint     struct{}
	R32Float    struct{}
	RG32Float   struct{}
	RGBA16Uint  struct{}
	RGBA16Float struct{}
	RGBA32Uint  struct{}
	RGBA32Float struct{}
)

var formats = [...]PixelFormat{
	{"R8Uint", 1, gputypes.TextureFormatR8Uint, gputypes.TextureSampleTypeUint},
	{"R8Unorm", 1, gputypes.TextureFormatR8Unorm, gputypes.TextureSampleTypeUnfilterableFloat},
	{"RG8Uint", 2, gputypes.TextureFormatRG8Uint, gputypes.TextureSampleTypeUint},
	{"R16Uint", 2, gputypes.TextureFormatR16Uint, gputypes.TextureSampleTypeUint},
	{"RGBA8Uint", 4, gputypes.TextureFormatRGBA8Uint, gputypes.TextureSampleTypeUint},
	{"RGBA8Unorm", 4, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureSampleTypeUnfilterableFloat},
	{"RGBA8Sint", 4, gputypes.TextureFormatRGBA8Sint, gputypes.TextureSampleTypeSint},
	{"RGBA8Snorm", 4, gputypes.TextureFormatRGBA8Snorm, gputypes.TextureSampleTypeUnfilterableFloat},
	{"R32Uint", 4, gputypes.TextureFormatR32Uint, gputypes.TextureSampleTypeUint},
	{"R32Float", 4, gputypes.TextureFormatR32Float, gputypes.TextureSampleTypeUnfilterableFloat},
	{"RG32Float", 8, gputypes.TextureFormatRG32Float, gputypes.TextureSampleTypeUnfilterableFloat},
	{"RGBA16Uint", 8, gputypes.TextureFormatRGBA16Uint, gputypes.TextureSampleTypeUint},
	{"RGBA16Float", 8, gputypes.TextureFormatRGBA16Float, gputypes.TextureSampleTypeUnfilterableFloat},
	{"RGBA32Uint", 16, gputypes.TextureFormatRGBA32Uint, gputypes.TextureSampleTypeUint},
	{"RGBA32Float", 16, gputypes.TextureFormatRGBA32Float, gputypes.TextureSampleTypeUnfilterableFloat},
}

func (R8Uint) pixelFormat() PixelFormat      { return formats[0] }
func (R8Unorm) pixelFormat() PixelFormat     { return formats[1] }
func (RG8Uint) pixelFormat() PixelFormat     { return formats[2] }
func (R16Uint) pixelFormat() PixelFormat     { return formats[3] }
func (RGBA8Uint) pixelFormat() PixelFormat   { return formats[4] }
func (RGBA8Unorm) pixelFormat() PixelFormat  { return formats[5] }
func (RGBA8Sint) pixelFormat() PixelFormat   { return formats[6] }
func (RGBA8Snorm) pixelFormat() PixelFormat  { return formats[7] }
func (R32Uint) pixelFormat() PixelFormat     { return formats[8] }
func (R32Float) pixelFormat() PixelFormat    { return formats[9] }
func (RG32Float) pixelFormat() PixelFormat   { return formats[10] }
func (RGBA16Uint) pixelFormat() PixelFormat  { return formats[11] }
func (RGBA16Float) pixelFormat() PixelFormat { return formats[12] }
func (RGBA32Uint) pixelFormat() PixelFormat  { return formats[13] }
func (RGBA32Float) pixelFormat() PixelFormat { return formats[14] }

// FormatOf returns the registry row of P.
func FormatOf[P Pixel]() PixelFormat {
	var p P
	return p.pixelFormat()
}

// Formats returns every registered pixel format.
func Formats() []PixelFormat {
	out := make([]PixelFormat, len(formats))
	copy(out, formats[:])
	return out
}

// String returns the format name.
func (f PixelFormat) String() string {
	return f.Name
}
