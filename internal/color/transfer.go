package color

import (
	"fmt"
	"math"

	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
)

// Transfer is a transfer function: an enumerated curve, or a pure power
// curve when Gamma is non-zero. Gamma is the encoding exponent, so
// encoded = linear^Gamma.
type Transfer struct {
	Function codestream.TransferFunction
	Gamma    float64
}

// PQ constants.
const (
	pqM1 = 2610.0 / 16384
	pqM2 = 2523.0 / 4096 * 128
	pqC1 = 3424.0 / 4096
	pqC2 = 2413.0 / 4096 * 32
	pqC3 = 2392.0 / 4096 * 32

	// PQMaxNits is the luminance of a PQ signal of 1.
	PQMaxNits = 10000
)

// HLG constants.
const (
	hlgA = 0.17883277
	hlgB = 1 - 4*hlgA
	hlgC = 0.55991072952956202016
)

func (t Transfer) known() bool {
	if t.Gamma != 0 {
		return t.Gamma > 0 && t.Gamma <= 1
	}
	switch t.Function {
	case codestream.TransferBT709, codestream.TransferLinear, codestream.TransferSRGB,
		codestream.TransferPQ, codestream.TransferDCI, codestream.TransferHLG:
		return true
	}
	return false
}

// IsHDR reports whether t is PQ or HLG.
func (t Transfer) IsHDR() bool {
	return t.Gamma == 0 && (t.Function == codestream.TransferPQ || t.Function == codestream.TransferHLG)
}

func (t Transfer) isPQ() bool {
	return t.Gamma == 0 && t.Function == codestream.TransferPQ
}

// IsLinear reports whether t is the identity.
func (t Transfer) IsLinear() bool {
	return t.Gamma == 1 || (t.Gamma == 0 && t.Function == codestream.TransferLinear)
}

// String returns the string representation of a transfer function.
func (t Transfer) String() string {
	if t.Gamma != 0 {
		return fmt.Sprintf("Gamma(%g)", t.Gamma)
	}
	return t.Function.String()
}

// mirror applies f to |v| and restores the sign, extending a curve defined
// on [0, 1] to negative values.
func mirror(v float64, f func(float64) float64) float64 {
	if v < 0 {
		return -f(-v)
	}
	return f(v)
}

// ToLinear decodes one sample. PQ yields luminance relative to PQMaxNits;
// HLG yields relative scene light.
func (t Transfer) ToLinear(v float64) float64 {
	if t.Gamma != 0 {
		return mirror(v, func(v float64) float64 { return math.Pow(v, 1/t.Gamma) })
	}
	switch t.Function {
	case codestream.TransferSRGB:
		return mirror(v, func(v float64) float64 {
			if v <= 0.04045 {
				return v / 12.92
			}
			return math.Pow((v+0.055)/1.055, 2.4)
		})
	case codestream.TransferBT709:
		return mirror(v, func(v float64) float64 {
			if v < 0.081 {
				return v / 4.5
			}
			return math.Pow((v+0.099)/1.099, 1/0.45)
		})
	case codestream.TransferDCI:
		return mirror(v, func(v float64) float64 { return math.Pow(v, 2.6) })
	case codestream.TransferPQ:
		return mirror(v, func(v float64) float64 {
			e := math.Pow(v, 1/pqM2)
			return math.Pow(max(e-pqC1, 0)/(pqC2-pqC3*e), 1/pqM1)
		})
	case codestream.TransferHLG:
		return mirror(v, func(v float64) float64 {
			if v <= 0.5 {
				return v * v / 3
			}
			return (math.Exp((v-hlgC)/hlgA) + hlgB) / 12
		})
	}
	return v
}

// FromLinear encodes one linear sample; it is the inverse of ToLinear.
func (t Transfer) FromLinear(v float64) float64 {
	if t.Gamma != 0 {
		return mirror(v, func(v float64) float64 { return math.Pow(v, t.Gamma) })
	}
	switch t.Function {
	case codestream.TransferSRGB:
		return mirror(v, func(v float64) float64 {
			if v <= 0.0031308 {
				return v * 12.92
			}
			return 1.055*math.Pow(v, 1/2.4) - 0.055
		})
	case codestream.TransferBT709:
		return mirror(v, func(v float64) float64 {
			if v < 0.018 {
				return v * 4.5
			}
			return 1.099*math.Pow(v, 0.45) - 0.099
		})
	case codestream.TransferDCI:
		return mirror(v, func(v float64) float64 { return math.Pow(v, 1/2.6) })
	case codestream.TransferPQ:
		return mirror(v, func(v float64) float64 {
			y := math.Pow(v, pqM1)
			return math.Pow((pqC1+pqC2*y)/(1+pqC3*y), pqM2)
		})
	case codestream.TransferHLG:
		return mirror(v, func(v float64) float64 {
			if v <= 1.0/12 {
				return math.Sqrt(3 * v)
			}
			return hlgA*math.Log(12*v-hlgB) + hlgC
		})
	}
	return v
}
