// Package jpegxl provides a pure Go decoder for JPEG XL (ISO/IEC 18181)
// images and a PNG writer for the decoded samples.
//
// The decoder reads bare codestreams and the box container. It handles
// modular frames with their inverse transforms, progressive passes, XYB
// and YCbCr colour and embedded ICC profiles. VarDCT frames are recognised
// and rejected with ErrUnsupported.
//
// Basic usage through the image package:
//
//	file, _ := os.Open("image.jxl")
//	img, err := jpegxl.Decode(file)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Converting to PNG at full precision:
//
//	m, err := jpegxl.DecodeImage(file, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, _ := os.Create("image.png")
//	err = jpegxl.EncodePNG(out, m, nil)
package jpegxl

import (
	"image"
	"image/color"
	"io"

	"github.com/sirupsen/logrus"

	jxlcolor "github.com/mrjoshuak/go-jpegxl/internal/color"
	"github.com/mrjoshuak/go-jpegxl/internal/pngio"
)

// DefaultMaxPixels is the default bound on image and frame area.
const DefaultMaxPixels = 1 << 28

// Config holds the decoding configuration.
type Config struct {
	// MaxPixels bounds the area of the image and of every frame. Larger
	// inputs fail with ErrOverflow before any sample buffer is allocated.
	// Zero means no limit.
	MaxPixels int64

	// Logger receives Debug messages while frames are decoded. Nil uses
	// logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// DefaultConfig returns the default decoding configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxPixels: DefaultMaxPixels,
		Logger:    logrus.StandardLogger(),
	}
}

// PeakDetect selects how HDR output finds the peak luminance.
type PeakDetect = jxlcolor.PeakDetect

// Peak detection modes.
const (
	PeakDetectAuto = jxlcolor.PeakDetectAuto
	PeakDetectOn   = jxlcolor.PeakDetectOn
	PeakDetectOff  = jxlcolor.PeakDetectOff
)

// ParsePeakDetect parses "auto", "on" or "off".
func ParsePeakDetect(s string) (PeakDetect, error) {
	return jxlcolor.ParsePeakDetect(s)
}

// PNGOptions holds the PNG writing options.
type PNGOptions struct {
	// BitDepth is 8 or 16. Zero picks 16 for HDR output or for samples
	// deeper than 8 bits, and 8 otherwise.
	BitDepth int

	// DeflateLevel is a zlib level from -2 (Huffman only) to 9.
	DeflateLevel int

	// HDR writes BT.2100 PQ samples with a matching ICC profile instead of
	// sRGB.
	HDR bool

	// PeakDetect controls tone mapping when HDR is set.
	PeakDetect PeakDetect
}

// DefaultPNGOptions returns the default PNG writing options.
func DefaultPNGOptions() *PNGOptions {
	d := pngio.DefaultOptions()
	return &PNGOptions{
		BitDepth:     d.BitDepth,
		DeflateLevel: d.DeflateLevel,
		HDR:          d.HDR,
		PeakDetect:   d.PeakDetect,
	}
}

// Decode reads a JPEG XL image from r and returns it as an image.Image
// in sRGB.
func Decode(r io.Reader) (image.Image, error) {
	return DecodeConfig(r, nil)
}

// DecodeConfig decodes a JPEG XL image with the specified configuration
// and returns it as an image.Image in sRGB.
func DecodeConfig(r io.Reader, cfg *Config) (image.Image, error) {
	m, err := DecodeImage(r, cfg)
	if err != nil {
		return nil, err
	}
	return m.toImage(true)
}

// DecodeImage decodes a JPEG XL image keeping its samples, colour
// encoding and bit depths as stored.
func DecodeImage(r io.Reader, cfg *Config) (*Image, error) {
	return newDecoder(r, cfg).decode()
}

// DecodeMetadata reads only the header information without decoding the
// image.
func DecodeMetadata(r io.Reader) (*Metadata, error) {
	return newDecoder(r, nil).readMetadata()
}

// EncodePNG writes m to w as a PNG file. It takes ownership of the sample
// buffers of m, which cannot be written again afterwards.
func EncodePNG(w io.Writer, m *Image, opts *PNGOptions) error {
	if opts == nil {
		opts = DefaultPNGOptions()
	}
	pw, err := m.pngWriter(true, pngio.Options{
		BitDepth:     opts.BitDepth,
		DeflateLevel: opts.DeflateLevel,
		HDR:          opts.HDR,
		PeakDetect:   opts.PeakDetect,
	})
	if err != nil {
		return err
	}
	_, err = pw.WriteTo(w)
	return err
}

// Metadata contains image metadata extracted from the JPEG XL file.
type Metadata struct {
	// Container reports a box container rather than a bare codestream.
	Container bool

	// Level is the codestream conformance level, 5 or 10.
	Level int

	// Width is the image width in pixels.
	Width int

	// Height is the image height in pixels.
	Height int

	// BitsPerSample is the bit depth of the colour channels.
	BitsPerSample int

	// FloatSamples reports floating point colour samples.
	FloatSamples bool

	// Gray reports a single colour channel.
	Gray bool

	// XYB reports that colour is coded in the XYB space.
	XYB bool

	// NumExtraChannels counts alpha, depth and other extra channels.
	NumExtraChannels int

	// HasAlpha reports an alpha extra channel.
	HasAlpha bool

	// AlphaPremultiplied reports alpha associated with colour.
	AlphaPremultiplied bool

	// Animated reports an animation header.
	Animated bool

	// Orientation is the EXIF orientation, 1 to 8.
	Orientation int

	// IntensityTarget is the peak luminance in nits.
	IntensityTarget float32

	// ColorEncoding describes the signalled colour encoding. It is empty
	// when the image carries an ICC profile.
	ColorEncoding string

	// ICCProfile is the embedded ICC colour profile, if any.
	ICCProfile []byte

	// Exif is the Exif payload of the container, if any.
	Exif []byte

	// XMP is the XMP payload of the container, if any.
	XMP []byte
}

// colorModel returns the model of the image Decode produces.
func (m *Metadata) colorModel() color.Model {
	deep := m.BitsPerSample > 8
	switch {
	case m.Gray && !m.XYB && !m.HasAlpha && deep:
		return color.Gray16Model
	case m.Gray && !m.XYB && !m.HasAlpha:
		return color.GrayModel
	case deep:
		return color.NRGBA64Model
	default:
		return color.NRGBAModel
	}
}

func decodeImageConfig(r io.Reader) (image.Config, error) {
	m, err := DecodeMetadata(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: m.colorModel(),
		Width:      m.Width,
		Height:     m.Height,
	}, nil
}

// init registers the JPEG XL format with the image package.
func init() {
	// Bare codestream
	image.RegisterFormat("jxl", "\xff\x0a", Decode, decodeImageConfig)

	// Box container
	image.RegisterFormat("jxl", "\x00\x00\x00\x0cJXL \r\n\x87\n", Decode, decodeImageConfig)
}
