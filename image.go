package jpegxl

import (
	"fmt"
	"image"

	"github.com/mrjoshuak/go-jpegxl/internal/color"
	"github.com/mrjoshuak/go-jpegxl/internal/pngio"
	"github.com/mrjoshuak/go-jpegxl/internal/raster"
)

// Plane is one sample plane of a decoded image. Exactly one of Ints and
// Floats is set. Integer samples lie in [0, 2^bits-1] for the tagged bit
// depth of the plane; float samples are nominally in [0, 1].
type Plane = raster.Buffer

// Image is a decoded JPEG XL image at its stored precision.
type Image struct {
	// Width and Height are the image dimensions in pixels.
	Width, Height int

	// BitDepth is the tagged bit depth of the colour planes.
	BitDepth int

	// Gray reports a single colour plane.
	Gray bool

	// XYB reports that the codestream coded colour as XYB. The colour
	// planes then hold linear sRGB floats.
	XYB bool

	// HDR reports a PQ or HLG transfer function.
	HDR bool

	// AlphaIndex is the extra channel holding alpha, or -1.
	AlphaIndex int

	// Premultiplied reports colour premultiplied by alpha.
	Premultiplied bool

	// IntensityTarget is the luminance in nits of linear value 1.
	IntensityTarget float32

	// Orientation is the EXIF orientation, 1 to 8. It is reported, not
	// applied.
	Orientation int

	// ICCProfile describes the colour planes when set.
	ICCProfile []byte

	// Exif and XMP hold the container metadata payloads, if any.
	Exif, XMP []byte

	encoding  color.Encoding
	planes    []*Plane
	bitDepths []int
}

// Planes returns the colour planes followed by one plane per extra
// channel. It returns nil once the buffers were taken.
func (m *Image) Planes() []*Plane { return m.planes }

// BitDepths returns the tagged bit depth of every plane.
func (m *Image) BitDepths() []int { return m.bitDepths }

// NumColorPlanes returns 1 for gray images and 3 otherwise.
func (m *Image) NumColorPlanes() int {
	if m.Gray {
		return 1
	}
	return 3
}

// ColorEncoding describes the colour space of the colour planes.
func (m *Image) ColorEncoding() string {
	if m.ICCProfile != nil {
		return "ICC"
	}
	return m.encoding.String()
}

// TakeBuffers transfers ownership of the sample planes to the caller.
// It fails with ErrDecoderLogic if they were already taken.
func (m *Image) TakeBuffers() ([]*Plane, error) {
	if m.planes == nil {
		return nil, fmt.Errorf("jpegxl: image buffers already taken: %w", ErrDecoderLogic)
	}
	planes := m.planes
	m.planes = nil
	return planes, nil
}

// pngWriter stages the image for the PNG writer. With take set the writer
// owns the planes of m; otherwise it works on copies.
func (m *Image) pngWriter(take bool, opts pngio.Options) (*pngio.Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var planes []*Plane
	if take {
		var err error
		if planes, err = m.TakeBuffers(); err != nil {
			return nil, err
		}
	} else {
		if m.planes == nil {
			return nil, fmt.Errorf("jpegxl: image buffers already taken: %w", ErrDecoderLogic)
		}
		planes = make([]*Plane, len(m.planes))
		for i, p := range m.planes {
			planes[i] = p.Clone()
		}
	}
	return pngio.NewWriter(&pngio.Image{
		Width:           m.Width,
		Height:          m.Height,
		Encoding:        m.encoding,
		Buffers:         planes,
		BitDepths:       m.bitDepths,
		AlphaIndex:      m.AlphaIndex,
		Premultiplied:   m.Premultiplied,
		IntensityTarget: m.IntensityTarget,
		ICCProfile:      m.ICCProfile,
	}, opts)
}

func (m *Image) toImage(take bool) (image.Image, error) {
	pw, err := m.pngWriter(take, pngio.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return pw.ToImage()
}

// ToImage converts a copy of m to an sRGB image.Image: Gray or Gray16
// for gray images without alpha, NRGBA or NRGBA64 otherwise. Images with
// an ICC profile keep their samples unconverted.
func (m *Image) ToImage() (image.Image, error) {
	return m.toImage(false)
}

// ToARGB converts a copy of m to 8-bit sRGB pixels packed as ARGB, alpha
// in the top byte, in row-major order.
func (m *Image) ToARGB() ([]uint32, error) {
	pw, err := m.pngWriter(false, pngio.Options{BitDepth: 8, DeflateLevel: pngio.DefaultOptions().DeflateLevel})
	if err != nil {
		return nil, err
	}
	return pw.ToARGB()
}
