package codestream

import (
	"fmt"
	"math/bits"
	"unicode/utf8"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// MaxDimension bounds each image dimension.
const MaxDimension = 1 << 30

// ImageHeader holds the size header and image metadata of a codestream.
type ImageHeader struct {
	Width  uint32
	Height uint32

	Orientation   int // 1-8, EXIF orientation
	IntrinsicSize *Size
	Preview       *Size
	Animation     *AnimationHeader

	BitDepth               BitDepth
	Modular16BitSufficient bool
	ExtraChannels          []ExtraChannelInfo
	XYBEncoded             bool
	ColorEncoding          ColorEncoding
	ToneMapping            ToneMapping
	Extensions             uint64

	OpsinInverseMatrix OpsinInverseMatrix
	UpsamplingMask     uint32 // Custom upsampling weights present for 2x, 4x, 8x

	// ICCProfile is the decoded embedded profile when ColorEncoding.WantICC.
	ICCProfile []byte
}

// Size is a pair of image dimensions.
type Size struct {
	Width  uint32
	Height uint32
}

// BitDepth describes the sample format of a channel.
type BitDepth struct {
	FloatSample      bool
	BitsPerSample    uint32
	ExpBitsPerSample uint32
}

// ExtraChannelInfo describes one extra channel.
type ExtraChannelInfo struct {
	Type            ExtraChannelType
	BitDepth        BitDepth
	DimShift        uint32
	Name            string
	AlphaAssociated bool
	SpotColor       [4]float32
	CFAChannel      uint32
}

// AnimationHeader holds the animation timing parameters.
type AnimationHeader struct {
	TicksPerSecondNumerator   uint32
	TicksPerSecondDenominator uint32
	NumLoops                  uint32
	HaveTimecodes             bool
}

// CIExy is a chromaticity coordinate.
type CIExy struct {
	X, Y float32
}

// ColorEncoding describes the colour interpretation of the decoded samples.
type ColorEncoding struct {
	WantICC          bool
	ColorSpace       ColorSpace
	WhitePoint       WhitePoint
	White            CIExy
	Primaries        Primaries
	Red, Green, Blue CIExy
	HaveGamma        bool
	Gamma            float32
	TransferFunction TransferFunction
	RenderingIntent  RenderingIntent
}

// SRGB is the default colour encoding.
var SRGB = ColorEncoding{
	ColorSpace:       ColorSpaceRGB,
	WhitePoint:       WhitePointD65,
	Primaries:        PrimariesSRGB,
	TransferFunction: TransferSRGB,
	RenderingIntent:  IntentRelative,
}

// ToneMapping holds the HDR luminance parameters.
type ToneMapping struct {
	IntensityTarget      float32
	MinNits              float32
	RelativeToMaxDisplay bool
	LinearBelow          float32
}

// OpsinInverseMatrix holds the XYB to linear RGB parameters.
type OpsinInverseMatrix struct {
	Matrix             [3][3]float32
	OpsinBias          [3]float32
	QuantBias          [3]float32
	QuantBiasNumerator float32
}

// DefaultOpsinInverseMatrix returns the parameters used when the bundle is
// all-default.
func DefaultOpsinInverseMatrix() OpsinInverseMatrix {
	return OpsinInverseMatrix{
		Matrix: [3][3]float32{
			{11.031566901960783, -9.866943921568629, -0.16462299647058826},
			{-3.254147380392157, 4.418770392156863, -0.16462299647058826},
			{-3.6588512862745097, 2.7129230470588235, 1.9459282392156863},
		},
		OpsinBias:          [3]float32{-0.0037930732552754493, -0.0037930732552754493, -0.0037930732552754493},
		QuantBias:          [3]float32{1 - 0.05465007330715401, 1 - 0.07005449891748593, 1 - 0.049935103337343655},
		QuantBiasNumerator: 0.145,
	}
}

// IsGray reports whether the image has a single colour channel.
func (h *ImageHeader) IsGray() bool {
	return h.ColorEncoding.ColorSpace == ColorSpaceGray
}

// NumColorChannels returns 1 for gray images and 3 otherwise.
func (h *ImageHeader) NumColorChannels() int {
	if h.IsGray() {
		return 1
	}
	return 3
}

// AlphaIndex returns the index of the first alpha extra channel, or -1.
func (h *ImageHeader) AlphaIndex() int {
	for i, ec := range h.ExtraChannels {
		if ec.Type == ExtraAlpha {
			return i
		}
	}
	return -1
}

// ratioWidth derives the width from the height for the seven fixed aspect
// ratios.
func ratioWidth(height uint32, ratio uint32) uint32 {
	h := uint64(height)
	switch ratio {
	case 1:
		return height
	case 2:
		return uint32(h * 12 / 10)
	case 3:
		return uint32(h * 4 / 3)
	case 4:
		return uint32(h * 3 / 2)
	case 5:
		return uint32(h * 16 / 9)
	case 6:
		return uint32(h * 5 / 4)
	default:
		return uint32(h * 2)
	}
}

func readSizeHeader(r *bio.Reader) (Size, error) {
	var s Size
	small, err := r.ReadBool()
	if err != nil {
		return s, err
	}
	readDim := func() (uint32, error) {
		if small {
			v, err := r.ReadBits(5)
			return (v + 1) * 8, err
		}
		return r.ReadU32(1, 9, 1, 13, 1, 18, 1, 30)
	}
	if s.Height, err = readDim(); err != nil {
		return s, err
	}
	ratio, err := r.ReadBits(3)
	if err != nil {
		return s, err
	}
	if ratio == 0 {
		if s.Width, err = readDim(); err != nil {
			return s, err
		}
	} else {
		s.Width = ratioWidth(s.Height, ratio)
	}
	return s, s.validate()
}

func readPreviewHeader(r *bio.Reader) (Size, error) {
	var s Size
	div8, err := r.ReadBool()
	if err != nil {
		return s, err
	}
	readDim := func() (uint32, error) {
		if div8 {
			v, err := r.ReadU32(16, 0, 32, 0, 1, 5, 33, 9)
			return v * 8, err
		}
		return r.ReadU32(1, 6, 65, 8, 321, 10, 1345, 12)
	}
	if s.Height, err = readDim(); err != nil {
		return s, err
	}
	ratio, err := r.ReadBits(3)
	if err != nil {
		return s, err
	}
	if ratio == 0 {
		if s.Width, err = readDim(); err != nil {
			return s, err
		}
	} else {
		s.Width = ratioWidth(s.Height, ratio)
	}
	return s, s.validate()
}

func (s Size) validate() error {
	if s.Width == 0 || s.Height == 0 {
		return jxlerr.Malformed("image size", fmt.Sprintf("%dx%d", s.Width, s.Height))
	}
	if s.Width > MaxDimension || s.Height > MaxDimension {
		return fmt.Errorf("%w: image size %dx%d", jxlerr.ErrOverflow, s.Width, s.Height)
	}
	if _, err := jxlerr.MulExact(int(s.Width), int(s.Height)); err != nil {
		return err
	}
	return nil
}

func readAnimationHeader(r *bio.Reader) (*AnimationHeader, error) {
	a := &AnimationHeader{}
	var err error
	if a.TicksPerSecondNumerator, err = r.ReadU32(100, 0, 1000, 0, 1, 10, 1, 30); err != nil {
		return nil, err
	}
	if a.TicksPerSecondDenominator, err = r.ReadU32(1, 0, 1001, 0, 1, 8, 1, 10); err != nil {
		return nil, err
	}
	if a.NumLoops, err = r.ReadU32(0, 0, 0, 3, 0, 16, 0, 32); err != nil {
		return nil, err
	}
	if a.HaveTimecodes, err = r.ReadBool(); err != nil {
		return nil, err
	}
	return a, nil
}

// ReadBitDepth reads a BitDepth bundle.
func ReadBitDepth(r *bio.Reader) (BitDepth, error) {
	var b BitDepth
	var err error
	if b.FloatSample, err = r.ReadBool(); err != nil {
		return b, err
	}
	if b.FloatSample {
		if b.BitsPerSample, err = r.ReadU32(32, 0, 16, 0, 24, 0, 1, 6); err != nil {
			return b, err
		}
		exp, err := r.ReadBits(4)
		if err != nil {
			return b, err
		}
		b.ExpBitsPerSample = exp + 1
		if b.ExpBitsPerSample < 2 || b.ExpBitsPerSample > 8 {
			return b, jxlerr.Malformed("exp_bits_per_sample", b.ExpBitsPerSample)
		}
		mantissa := int(b.BitsPerSample) - int(b.ExpBitsPerSample) - 1
		if mantissa < 2 || mantissa > 23 {
			return b, jxlerr.Malformed("float bits_per_sample", b.BitsPerSample)
		}
	} else {
		if b.BitsPerSample, err = r.ReadU32(8, 0, 10, 0, 12, 0, 1, 6); err != nil {
			return b, err
		}
		if b.BitsPerSample > 31 {
			return b, jxlerr.Malformed("bits_per_sample", b.BitsPerSample)
		}
	}
	return b, nil
}

func readExtraChannelInfo(r *bio.Reader) (ExtraChannelInfo, error) {
	e := ExtraChannelInfo{Type: ExtraAlpha, BitDepth: BitDepth{BitsPerSample: 8}}
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return e, err
	}
	t, err := r.ReadEnum()
	if err != nil {
		return e, err
	}
	e.Type = ExtraChannelType(t)
	if !e.Type.valid() {
		return e, jxlerr.Malformed("extra channel type", t)
	}
	if e.BitDepth, err = ReadBitDepth(r); err != nil {
		return e, err
	}
	if e.DimShift, err = r.ReadU32(0, 0, 3, 0, 4, 0, 1, 3); err != nil {
		return e, err
	}
	if e.Name, err = ReadName(r); err != nil {
		return e, err
	}
	switch e.Type {
	case ExtraAlpha:
		if e.AlphaAssociated, err = r.ReadBool(); err != nil {
			return e, err
		}
	case ExtraSpotColor:
		for i := range e.SpotColor {
			if e.SpotColor[i], err = r.ReadF16(); err != nil {
				return e, err
			}
		}
	case ExtraCFA:
		if e.CFAChannel, err = r.ReadU32(1, 0, 0, 2, 3, 4, 19, 8); err != nil {
			return e, err
		}
	}
	return e, nil
}

// ReadName reads a length-prefixed UTF-8 name.
func ReadName(r *bio.Reader) (string, error) {
	n, err := r.ReadU32(0, 0, 0, 4, 16, 5, 48, 10)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadBits(8)
		if err != nil {
			return "", err
		}
		buf[i] = byte(b)
	}
	if !utf8.Valid(buf) {
		return "", jxlerr.Malformed("name", "invalid UTF-8")
	}
	return string(buf), nil
}

func readCustomXY(r *bio.Reader) (CIExy, error) {
	var c CIExy
	x, err := r.ReadU32(0, 19, 0x80000, 19, 0x100000, 20, 0x200000, 21)
	if err != nil {
		return c, err
	}
	y, err := r.ReadU32(0, 19, 0x80000, 19, 0x100000, 20, 0x200000, 21)
	if err != nil {
		return c, err
	}
	c.X = float32(bio.UnpackSigned(x)) / 1e6
	c.Y = float32(bio.UnpackSigned(y)) / 1e6
	return c, nil
}

// ReadColorEncoding reads a ColorEncoding bundle.
func ReadColorEncoding(r *bio.Reader) (ColorEncoding, error) {
	c := SRGB
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return c, err
	}
	if c.WantICC, err = r.ReadBool(); err != nil {
		return c, err
	}
	cs, err := r.ReadEnum()
	if err != nil {
		return c, err
	}
	if cs > int(ColorSpaceUnknown) {
		return c, jxlerr.Malformed("color space", cs)
	}
	c.ColorSpace = ColorSpace(cs)
	if c.WantICC {
		return c, nil
	}

	if c.ColorSpace != ColorSpaceXYB {
		wp, err := r.ReadEnum()
		if err != nil {
			return c, err
		}
		c.WhitePoint = WhitePoint(wp)
		if !c.WhitePoint.valid() {
			return c, jxlerr.Malformed("white point", wp)
		}
		if c.WhitePoint == WhitePointCustom {
			if c.White, err = readCustomXY(r); err != nil {
				return c, err
			}
		}
	}
	if c.ColorSpace != ColorSpaceXYB && c.ColorSpace != ColorSpaceGray {
		p, err := r.ReadEnum()
		if err != nil {
			return c, err
		}
		c.Primaries = Primaries(p)
		if !c.Primaries.valid() {
			return c, jxlerr.Malformed("primaries", p)
		}
		if c.Primaries == PrimariesCustom {
			for _, xy := range []*CIExy{&c.Red, &c.Green, &c.Blue} {
				if *xy, err = readCustomXY(r); err != nil {
					return c, err
				}
			}
		}
	}
	if c.HaveGamma, err = r.ReadBool(); err != nil {
		return c, err
	}
	if c.HaveGamma {
		g, err := r.ReadBits(24)
		if err != nil {
			return c, err
		}
		if g == 0 || g > 10000000 {
			return c, jxlerr.Malformed("gamma", g)
		}
		c.Gamma = float32(g) / 1e7
	} else {
		tf, err := r.ReadEnum()
		if err != nil {
			return c, err
		}
		c.TransferFunction = TransferFunction(tf)
		if !c.TransferFunction.valid() {
			return c, jxlerr.Malformed("transfer function", tf)
		}
	}
	ri, err := r.ReadEnum()
	if err != nil {
		return c, err
	}
	if ri > int(IntentAbsolute) {
		return c, jxlerr.Malformed("rendering intent", ri)
	}
	c.RenderingIntent = RenderingIntent(ri)
	return c, nil
}

func readToneMapping(r *bio.Reader) (ToneMapping, error) {
	t := ToneMapping{IntensityTarget: 255}
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return t, err
	}
	if t.IntensityTarget, err = r.ReadF16(); err != nil {
		return t, err
	}
	if t.IntensityTarget <= 0 {
		return t, jxlerr.Malformed("intensity target", t.IntensityTarget)
	}
	if t.MinNits, err = r.ReadF16(); err != nil {
		return t, err
	}
	if t.MinNits < 0 || t.MinNits > t.IntensityTarget {
		return t, jxlerr.Malformed("min nits", t.MinNits)
	}
	if t.RelativeToMaxDisplay, err = r.ReadBool(); err != nil {
		return t, err
	}
	if t.LinearBelow, err = r.ReadF16(); err != nil {
		return t, err
	}
	return t, nil
}

// ReadExtensions reads an extensions bundle and skips the payload of every
// extension it announces.
func ReadExtensions(r *bio.Reader) (uint64, error) {
	ext, err := r.ReadU64()
	if err != nil || ext == 0 {
		return ext, err
	}
	var total uint64
	for i := 0; i < 64; i++ {
		if ext&(1<<i) == 0 {
			continue
		}
		n, err := r.ReadU64()
		if err != nil {
			return 0, err
		}
		sum, carry := bits.Add64(total, n, 0)
		if carry != 0 {
			return 0, jxlerr.Malformed("extension size", n)
		}
		total = sum
	}
	return ext, r.SkipBits(total)
}

func readOpsinInverseMatrix(r *bio.Reader) (OpsinInverseMatrix, error) {
	m := DefaultOpsinInverseMatrix()
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return m, err
	}
	for i := range m.Matrix {
		for j := range m.Matrix[i] {
			if m.Matrix[i][j], err = r.ReadF16(); err != nil {
				return m, err
			}
		}
	}
	for i := range m.OpsinBias {
		if m.OpsinBias[i], err = r.ReadF16(); err != nil {
			return m, err
		}
	}
	for i := range m.QuantBias {
		if m.QuantBias[i], err = r.ReadF16(); err != nil {
			return m, err
		}
	}
	if m.QuantBiasNumerator, err = r.ReadF16(); err != nil {
		return m, err
	}
	return m, nil
}

// upsamplingWeightCounts is the number of custom weights for 2x, 4x and 8x.
var upsamplingWeightCounts = [3]int{15, 55, 210}

// readImageMetadata reads the metadata bundle that follows the size header.
func readImageMetadata(r *bio.Reader, h *ImageHeader) error {
	h.Orientation = 1
	h.BitDepth = BitDepth{BitsPerSample: 8}
	h.Modular16BitSufficient = true
	h.XYBEncoded = true
	h.ColorEncoding = SRGB
	h.ToneMapping = ToneMapping{IntensityTarget: 255}
	h.OpsinInverseMatrix = DefaultOpsinInverseMatrix()

	allDefault, err := r.ReadBool()
	if err != nil {
		return err
	}
	if !allDefault {
		extraFields, err := r.ReadBool()
		if err != nil {
			return err
		}
		if extraFields {
			o, err := r.ReadBits(3)
			if err != nil {
				return err
			}
			h.Orientation = int(o) + 1
			have, err := r.ReadBool()
			if err != nil {
				return err
			}
			if have {
				s, err := readSizeHeader(r)
				if err != nil {
					return fmt.Errorf("intrinsic size: %w", err)
				}
				h.IntrinsicSize = &s
			}
			if have, err = r.ReadBool(); err != nil {
				return err
			}
			if have {
				s, err := readPreviewHeader(r)
				if err != nil {
					return fmt.Errorf("preview: %w", err)
				}
				h.Preview = &s
			}
			if have, err = r.ReadBool(); err != nil {
				return err
			}
			if have {
				if h.Animation, err = readAnimationHeader(r); err != nil {
					return fmt.Errorf("animation: %w", err)
				}
			}
		}
		if h.BitDepth, err = ReadBitDepth(r); err != nil {
			return fmt.Errorf("bit depth: %w", err)
		}
		if h.Modular16BitSufficient, err = r.ReadBool(); err != nil {
			return err
		}
		numEC, err := r.ReadU32(0, 0, 1, 0, 2, 4, 1, 12)
		if err != nil {
			return err
		}
		h.ExtraChannels = make([]ExtraChannelInfo, numEC)
		for i := range h.ExtraChannels {
			if h.ExtraChannels[i], err = readExtraChannelInfo(r); err != nil {
				return fmt.Errorf("extra channel %d: %w", i, err)
			}
		}
		if h.XYBEncoded, err = r.ReadBool(); err != nil {
			return err
		}
		if h.ColorEncoding, err = ReadColorEncoding(r); err != nil {
			return fmt.Errorf("color encoding: %w", err)
		}
		if extraFields {
			if h.ToneMapping, err = readToneMapping(r); err != nil {
				return fmt.Errorf("tone mapping: %w", err)
			}
		}
		if h.Extensions, err = ReadExtensions(r); err != nil {
			return fmt.Errorf("extensions: %w", err)
		}
	}

	defaultTransform, err := r.ReadBool()
	if err != nil {
		return err
	}
	if !defaultTransform && h.XYBEncoded {
		if h.OpsinInverseMatrix, err = readOpsinInverseMatrix(r); err != nil {
			return fmt.Errorf("opsin inverse matrix: %w", err)
		}
	}
	if !defaultTransform {
		if h.UpsamplingMask, err = r.ReadBits(3); err != nil {
			return err
		}
		for i, n := range upsamplingWeightCounts {
			if h.UpsamplingMask&(1<<i) == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				if _, err := r.ReadF16(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
