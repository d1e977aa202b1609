// Package pngio writes decoded images as PNG files.
//
// The writer takes ownership of the sample buffers it is given: colour
// conversion, un-premultiplication and bit depth coercion all happen in
// place before any byte is written.
package pngio

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/samber/lo"

	"github.com/mrjoshuak/go-jpegxl/internal/color"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/raster"
)

// PNG colour types.
const (
	colorTypeGray      = 0
	colorTypeRGB       = 2
	colorTypeGrayAlpha = 4
	colorTypeRGBA      = 6
)

// Signature is the 8-byte PNG file signature.
var Signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// iccName names embedded profiles other than the HDR default.
const iccName = "jpegxl"

// renderingIntentRelative is the sRGB chunk payload.
const renderingIntentRelative = 1

// Image is a decoded image ready to be written.
type Image struct {
	Width, Height int

	// Encoding describes the colour planes. Only its Gray flag matters
	// when ICCProfile is set.
	Encoding color.Encoding

	// Buffers holds the colour planes, one if Encoding.Gray and three
	// otherwise, then one plane per extra channel.
	Buffers []*raster.Buffer

	// BitDepths holds the tagged bit depth of every buffer.
	BitDepths []int

	// AlphaIndex is the extra channel holding alpha, or -1.
	AlphaIndex    int
	Premultiplied bool

	// IntensityTarget is the luminance in nits of linear value 1.
	IntensityTarget float32

	ICCProfile []byte
}

// Options configures the writer.
type Options struct {
	// BitDepth is 8 or 16. Zero selects 16 for HDR output or sources deeper
	// than 8 bits, and 8 otherwise.
	BitDepth int

	// DeflateLevel is a zlib compression level.
	DeflateLevel int

	// HDR writes BT.2100 PQ samples with the matching ICC profile instead
	// of sRGB.
	HDR bool

	PeakDetect color.PeakDetect
}

// DefaultOptions returns the default writer options.
func DefaultOptions() Options {
	return Options{DeflateLevel: zlib.DefaultCompression}
}

// Validate checks the options that do not depend on the image.
func (o Options) Validate() error {
	if o.DeflateLevel < zlib.HuffmanOnly || o.DeflateLevel > zlib.BestCompression {
		return jxlerr.Unsupported("deflate level", o.DeflateLevel)
	}
	if o.BitDepth != 0 && o.BitDepth != 8 && o.BitDepth != 16 {
		return jxlerr.Unsupported("png bit depth", o.BitDepth)
	}
	return nil
}

// Writer serializes one image.
type Writer struct {
	width, height int
	bitDepth      int
	colorType     byte
	numColor      int
	alpha         int // buffer index, or -1
	level         int
	buffers       []*raster.Buffer

	icc           []byte
	iccCompressed bool
	iccName       string
}

// NewWriter prepares img for writing. It takes ownership of img.Buffers.
func NewWriter(img *Image, opts Options) (*Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	w := &Writer{
		width:  img.Width,
		height: img.Height,
		alpha:  -1,
		level:  opts.DeflateLevel,
	}
	if err := w.setLayout(img); err != nil {
		return nil, err
	}

	w.bitDepth = opts.BitDepth
	if w.bitDepth == 0 {
		w.bitDepth = 8
		if opts.HDR || lo.Max(img.BitDepths[:w.numColor]) > 8 {
			w.bitDepth = 16
		}
	}
	if w.bitDepth != 8 && w.bitDepth != 16 {
		return nil, jxlerr.Unsupported("png bit depth", w.bitDepth)
	}

	if img.ICCProfile != nil {
		w.icc, w.iccName = img.ICCProfile, iccName
	} else {
		if err := w.convert(img, opts); err != nil {
			return nil, err
		}
		if opts.HDR {
			profile, err := color.HDRProfileCompressed()
			if err != nil {
				return nil, err
			}
			w.icc, w.iccCompressed, w.iccName = profile, true, color.HDRProfileName
		}
	}
	w.coerce(img)
	return w, nil
}

// setLayout checks the buffers against the image shape and picks the PNG
// colour type.
func (w *Writer) setLayout(img *Image) error {
	if _, err := jxlerr.MulExact(img.Width, img.Height); err != nil {
		return err
	}
	if img.Width <= 0 || img.Height <= 0 || img.Width > 1<<31-1 || img.Height > 1<<31-1 {
		return jxlerr.Unsupported("png dimensions", fmt.Sprintf("%dx%d", img.Width, img.Height))
	}
	w.numColor = 3
	if img.Encoding.Gray {
		w.numColor = 1
	}
	if len(img.Buffers) < w.numColor || len(img.BitDepths) != len(img.Buffers) {
		return fmt.Errorf("pngio: %d buffers with %d bit depths for %d colour planes: %w",
			len(img.Buffers), len(img.BitDepths), w.numColor, jxlerr.ErrDecoderLogic)
	}
	for i, b := range img.Buffers {
		if b.Width != img.Width || b.Height != img.Height {
			return fmt.Errorf("pngio: buffer %d is %dx%d in a %dx%d image: %w",
				i, b.Width, b.Height, img.Width, img.Height, jxlerr.ErrDecoderLogic)
		}
	}
	if img.AlphaIndex >= 0 {
		if w.numColor+img.AlphaIndex >= len(img.Buffers) {
			return fmt.Errorf("pngio: alpha channel %d out of range: %w", img.AlphaIndex, jxlerr.ErrDecoderLogic)
		}
		w.alpha = w.numColor + img.AlphaIndex
	}
	w.buffers = img.Buffers

	switch {
	case w.numColor == 1 && w.alpha < 0:
		w.colorType = colorTypeGray
	case w.numColor == 1:
		w.colorType = colorTypeGrayAlpha
	case w.alpha < 0:
		w.colorType = colorTypeRGB
	default:
		w.colorType = colorTypeRGBA
	}
	return nil
}

// convert moves the colour planes to sRGB, or BT.2100 PQ for HDR output.
func (w *Writer) convert(img *Image, opts Options) error {
	target := color.SRGB
	if opts.HDR {
		target = color.BT2100PQ
	}
	target = target.WithGray(img.Encoding.Gray)
	if img.Encoding == target && opts.PeakDetect != color.PeakDetectOn {
		return nil
	}
	planes := make([][]float32, w.numColor)
	for c := range planes {
		w.buffers[c].CastToFloat(maxValue(img.BitDepths[c]))
		planes[c] = w.buffers[c].Floats
	}
	return color.Transform(planes, img.Encoding, target, color.Options{
		IntensityTarget: img.IntensityTarget,
		PeakDetect:      opts.PeakDetect,
	})
}

func maxValue(bitDepth int) int32 {
	return int32(uint32(1)<<bitDepth - 1)
}

// coerce brings every buffer to integers in [0, 2^bitDepth-1].
// Premultiplied colour is divided by alpha first.
func (w *Writer) coerce(img *Image) {
	toFloat := img.Premultiplied && w.alpha >= 0
	for c, b := range w.buffers {
		if !b.IsFloat() && img.BitDepths[c] != w.bitDepth {
			toFloat = true
		}
	}
	if toFloat {
		for c, b := range w.buffers {
			b.CastToFloat(maxValue(img.BitDepths[c]))
		}
	}
	if img.Premultiplied && w.alpha >= 0 {
		unpremultiply(w.buffers[:w.numColor], w.buffers[w.alpha])
	}

	m := maxValue(w.bitDepth)
	for c, b := range w.buffers {
		if !b.IsFloat() && img.BitDepths[c] == w.bitDepth {
			b.Clamp(m)
		} else {
			b.CastToInt(m)
		}
	}
}

// unpremultiply divides float colour planes by alpha. Fully transparent
// samples become 0.
func unpremultiply(planes []*raster.Buffer, alpha *raster.Buffer) {
	for _, p := range planes {
		for i, a := range alpha.Floats {
			if a == 0 {
				p.Floats[i] = 0
			} else {
				p.Floats[i] /= a
			}
		}
	}
}

// BitDepth returns the output bit depth.
func (w *Writer) BitDepth() int { return w.bitDepth }

// WriteTo writes the PNG file to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	cw := &chunkWriter{w: dst}
	cw.write(Signature)
	cw.chunk("IHDR", w.header())
	if w.icc != nil {
		payload, err := w.iccPayload()
		if err != nil {
			return cw.n, err
		}
		cw.chunk("iCCP", payload)
	} else {
		cw.chunk("sRGB", []byte{renderingIntentRelative})
	}
	if err := w.writePixels(cw); err != nil {
		return cw.n, err
	}
	cw.chunk("IEND", nil)
	return cw.n, cw.err
}

func (w *Writer) header() []byte {
	h := make([]byte, 13)
	binary.BigEndian.PutUint32(h[0:], uint32(w.width))
	binary.BigEndian.PutUint32(h[4:], uint32(w.height))
	h[8] = byte(w.bitDepth)
	h[9] = w.colorType
	// Compression, filter and interlace methods are all 0.
	return h
}

func (w *Writer) iccPayload() ([]byte, error) {
	payload := append([]byte(w.iccName), 0, 0)
	if w.iccCompressed {
		return append(payload, w.icc...), nil
	}
	buf := &appendWriter{b: payload}
	zw, err := zlib.NewWriterLevel(buf, w.level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(w.icc); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// samplesPerPixel returns the interleaved sample count of one pixel.
func (w *Writer) samplesPerPixel() int {
	if w.alpha >= 0 {
		return w.numColor + 1
	}
	return w.numColor
}

// writePixels writes the deflated scanlines, each led by filter type 0.
func (w *Writer) writePixels(cw *chunkWriter) error {
	planes := make([][]int32, 0, w.samplesPerPixel())
	for _, b := range w.buffers[:w.numColor] {
		planes = append(planes, b.Ints)
	}
	if w.alpha >= 0 {
		planes = append(planes, w.buffers[w.alpha].Ints)
	}
	bytesPerSample := w.bitDepth / 8
	row := make([]byte, 1+w.width*len(planes)*bytesPerSample)

	idat := &idatWriter{cw: cw}
	zw, err := zlib.NewWriterLevel(idat, w.level)
	if err != nil {
		return err
	}
	for y := 0; y < w.height; y++ {
		out := row[1:]
		for x := 0; x < w.width; x++ {
			i := y*w.width + x
			for _, p := range planes {
				if bytesPerSample == 1 {
					out[0] = byte(p[i])
				} else {
					binary.BigEndian.PutUint16(out, uint16(p[i]))
				}
				out = out[bytesPerSample:]
			}
		}
		if _, err := zw.Write(row); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return idat.flush()
}

// ToARGB packs the image into 8-bit ARGB pixels, alpha in the top byte.
func (w *Writer) ToARGB() ([]uint32, error) {
	n, err := jxlerr.MulExact(w.width, w.height)
	if err != nil {
		return nil, err
	}
	shift := uint(w.bitDepth - 8)
	sample := func(c, i int) uint32 { return uint32(w.buffers[c].Ints[i]>>shift) & 0xFF }

	out := make([]uint32, n)
	for i := range out {
		var argb uint32
		if w.numColor == 1 {
			g := sample(0, i)
			argb = g<<16 | g<<8 | g
		} else {
			argb = sample(0, i)<<16 | sample(1, i)<<8 | sample(2, i)
		}
		a := uint32(0xFF)
		if w.alpha >= 0 {
			a = sample(w.alpha, i)
		}
		out[i] = a<<24 | argb
	}
	return out, nil
}

// ToImage converts the image to Gray or Gray16 when it is gray without
// alpha, and to NRGBA or NRGBA64 otherwise.
func (w *Writer) ToImage() (image.Image, error) {
	n, err := jxlerr.MulExact(w.width, w.height)
	if err != nil {
		return nil, err
	}
	if _, err := jxlerr.MulExact(n, 8); err != nil {
		return nil, err
	}
	r := image.Rect(0, 0, w.width, w.height)
	if w.colorType == colorTypeGray {
		if w.bitDepth == 8 {
			img := image.NewGray(r)
			for i, v := range w.buffers[0].Ints {
				img.Pix[i] = byte(v)
			}
			return img, nil
		}
		img := image.NewGray16(r)
		for i, v := range w.buffers[0].Ints {
			binary.BigEndian.PutUint16(img.Pix[2*i:], uint16(v))
		}
		return img, nil
	}

	var (
		img image.Image
		pix []byte
	)
	if w.bitDepth == 8 {
		m := image.NewNRGBA(r)
		img, pix = m, m.Pix
	} else {
		m := image.NewNRGBA64(r)
		img, pix = m, m.Pix
	}
	var planes [4][]int32
	for c := 0; c < 3; c++ {
		planes[c] = w.buffers[min(c, w.numColor-1)].Ints
	}
	if w.alpha >= 0 {
		planes[3] = w.buffers[w.alpha].Ints
	}
	opaque := maxValue(w.bitDepth)
	bytesPerSample := w.bitDepth / 8
	for i := 0; i < n; i++ {
		for c, p := range planes {
			v := opaque
			if p != nil {
				v = p[i]
			}
			o := (4*i + c) * bytesPerSample
			if bytesPerSample == 1 {
				pix[o] = byte(v)
			} else {
				binary.BigEndian.PutUint16(pix[o:], uint16(v))
			}
		}
	}
	return img, nil
}
