// Package color converts decoded samples between colour encodings: the
// XYB to linear sRGB step, primaries and white point changes and transfer
// functions. It also builds the ICC profile written for HDR output.
package color

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/mct"
)

// XY is a CIE 1931 chromaticity coordinate.
type XY struct {
	X, Y float64
}

// White points.
var (
	WhiteD65 = XY{0.3127, 0.3290}
	WhiteD50 = XY{0.3457, 0.3585}
	WhiteE   = XY{1.0 / 3, 1.0 / 3}
	WhiteDCI = XY{0.314, 0.351}
)

// Primaries are the chromaticities of the red, green and blue primaries.
type Primaries [3]XY

// Standard primaries.
var (
	PrimariesSRGB   = Primaries{{0.64, 0.33}, {0.30, 0.60}, {0.15, 0.06}}
	PrimariesBT2100 = Primaries{{0.708, 0.292}, {0.170, 0.797}, {0.131, 0.046}}
	PrimariesP3     = Primaries{{0.680, 0.320}, {0.265, 0.690}, {0.150, 0.060}}
)

// Encoding is a colour encoding samples can be converted between.
type Encoding struct {
	Gray      bool
	White     XY
	Primaries Primaries
	Transfer  Transfer
}

// Common encodings.
var (
	SRGB       = Encoding{White: WhiteD65, Primaries: PrimariesSRGB, Transfer: Transfer{Function: codestream.TransferSRGB}}
	LinearSRGB = Encoding{White: WhiteD65, Primaries: PrimariesSRGB, Transfer: Transfer{Function: codestream.TransferLinear}}
	BT2100PQ   = Encoding{White: WhiteD65, Primaries: PrimariesBT2100, Transfer: Transfer{Function: codestream.TransferPQ}}
)

// WithGray returns e with the gray flag set to gray.
func (e Encoding) WithGray(gray bool) Encoding {
	e.Gray = gray
	return e
}

// IsHDR reports whether e uses an HDR transfer function.
func (e Encoding) IsHDR() bool { return e.Transfer.IsHDR() }

// String returns a short description of the encoding.
func (e Encoding) String() string {
	kind := "RGB"
	if e.Gray {
		kind = "Gray"
	}
	return fmt.Sprintf("%s(white %v, primaries %v, %v)", kind, e.White, e.Primaries, e.Transfer)
}

func fromCIExy(c codestream.CIExy) XY {
	return XY{float64(c.X), float64(c.Y)}
}

// FromColorEncoding converts a signalled colour encoding. XYB and unknown
// colour spaces have no enumerated meaning and are rejected.
func FromColorEncoding(ce codestream.ColorEncoding) (Encoding, error) {
	var e Encoding
	switch ce.ColorSpace {
	case codestream.ColorSpaceRGB:
	case codestream.ColorSpaceGray:
		e.Gray = true
	default:
		return e, jxlerr.Unsupported("colour space", ce.ColorSpace)
	}

	switch ce.WhitePoint {
	case codestream.WhitePointD65:
		e.White = WhiteD65
	case codestream.WhitePointE:
		e.White = WhiteE
	case codestream.WhitePointDCI:
		e.White = WhiteDCI
	case codestream.WhitePointCustom:
		e.White = fromCIExy(ce.White)
	default:
		return e, jxlerr.Unsupported("white point", ce.WhitePoint)
	}

	switch {
	case e.Gray:
		e.Primaries = PrimariesSRGB
	case ce.Primaries == codestream.PrimariesSRGB:
		e.Primaries = PrimariesSRGB
	case ce.Primaries == codestream.PrimariesBT2100:
		e.Primaries = PrimariesBT2100
	case ce.Primaries == codestream.PrimariesP3:
		e.Primaries = PrimariesP3
	case ce.Primaries == codestream.PrimariesCustom:
		e.Primaries = Primaries{fromCIExy(ce.Red), fromCIExy(ce.Green), fromCIExy(ce.Blue)}
	default:
		return e, jxlerr.Unsupported("primaries", ce.Primaries)
	}

	if ce.HaveGamma {
		e.Transfer = Transfer{Gamma: float64(ce.Gamma)}
	} else {
		e.Transfer = Transfer{Function: ce.TransferFunction}
	}
	if !e.Transfer.known() {
		return e, jxlerr.Unsupported("transfer function", e.Transfer)
	}
	return e, nil
}

func xyz(c XY) [3]float64 {
	return [3]float64{c.X / c.Y, 1, (1 - c.X - c.Y) / c.Y}
}

// RGBToXYZ returns the matrix taking linear RGB with primaries p and white
// point w to CIE XYZ.
func RGBToXYZ(p Primaries, w XY) (mct.Matrix, error) {
	for _, c := range append(p[:], w) {
		if c.Y <= 0 || c.X < 0 || c.X+c.Y > 1 {
			return mct.Matrix{}, jxlerr.Malformed("chromaticity", c)
		}
	}
	var m mct.Matrix
	for col, c := range p {
		v := xyz(c)
		for row := range v {
			m[row][col] = v[row]
		}
	}
	inv, err := m.Inverse()
	if err != nil {
		return mct.Matrix{}, fmt.Errorf("primaries %v: %w", p, err)
	}
	s := inv.Apply(xyz(w))
	for row := range m {
		for col := range m[row] {
			m[row][col] *= s[col]
		}
	}
	return m, nil
}

var bradford = mct.Matrix{
	{0.8951, 0.2664, -0.1614},
	{-0.7502, 1.7135, 0.0367},
	{0.0389, -0.0685, 1.0296},
}

// Adapt returns the Bradford chromatic adaptation from white point src to
// white point dst, acting on XYZ.
func Adapt(src, dst XY) (mct.Matrix, error) {
	if src == dst {
		return mct.Identity, nil
	}
	inv, err := bradford.Inverse()
	if err != nil {
		return mct.Matrix{}, err
	}
	s := bradford.Apply(xyz(src))
	d := bradford.Apply(xyz(dst))
	var scale mct.Matrix
	for i := range scale {
		scale[i][i] = d[i] / s[i]
	}
	return inv.Mul(scale).Mul(bradford), nil
}

// ConversionMatrix returns the linear-light matrix from the gamut of src to
// the gamut of dst.
func ConversionMatrix(src, dst Encoding) (mct.Matrix, error) {
	if src.Primaries == dst.Primaries && src.White == dst.White {
		return mct.Identity, nil
	}
	toXYZ, err := RGBToXYZ(src.Primaries, src.White)
	if err != nil {
		return mct.Matrix{}, err
	}
	fromXYZ, err := RGBToXYZ(dst.Primaries, dst.White)
	if err != nil {
		return mct.Matrix{}, err
	}
	if fromXYZ, err = fromXYZ.Inverse(); err != nil {
		return mct.Matrix{}, err
	}
	adapt, err := Adapt(src.White, dst.White)
	if err != nil {
		return mct.Matrix{}, err
	}
	return fromXYZ.Mul(adapt).Mul(toXYZ), nil
}
