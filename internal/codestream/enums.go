// Package codestream handles JPEG XL codestream headers: the image size,
// image metadata bundles and the embedded ICC profile.
package codestream

import "fmt"

// Signature is the first 16 bits of a bare codestream, read LSB-first.
const Signature = 0x0AFF

// ColorSpace is the colour space of the encoded image.
type ColorSpace int

const (
	ColorSpaceRGB ColorSpace = iota
	ColorSpaceGray
	ColorSpaceXYB
	ColorSpaceUnknown
)

// String returns the string representation of a colour space.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceRGB:
		return "RGB"
	case ColorSpaceGray:
		return "Gray"
	case ColorSpaceXYB:
		return "XYB"
	case ColorSpaceUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("ColorSpace(%d)", int(c))
	}
}

// WhitePoint identifies a white point.
type WhitePoint int

const (
	WhitePointD65    WhitePoint = 1
	WhitePointCustom WhitePoint = 2
	WhitePointE      WhitePoint = 10
	WhitePointDCI    WhitePoint = 11
)

// String returns the string representation of a white point.
func (w WhitePoint) String() string {
	switch w {
	case WhitePointD65:
		return "D65"
	case WhitePointCustom:
		return "Custom"
	case WhitePointE:
		return "E"
	case WhitePointDCI:
		return "DCI"
	default:
		return fmt.Sprintf("WhitePoint(%d)", int(w))
	}
}

func (w WhitePoint) valid() bool {
	switch w {
	case WhitePointD65, WhitePointCustom, WhitePointE, WhitePointDCI:
		return true
	}
	return false
}

// Primaries identifies a set of RGB primaries.
type Primaries int

const (
	PrimariesSRGB   Primaries = 1
	PrimariesCustom Primaries = 2
	PrimariesBT2100 Primaries = 9
	PrimariesP3     Primaries = 11
)

// String returns the string representation of a set of primaries.
func (p Primaries) String() string {
	switch p {
	case PrimariesSRGB:
		return "sRGB"
	case PrimariesCustom:
		return "Custom"
	case PrimariesBT2100:
		return "BT.2100"
	case PrimariesP3:
		return "P3"
	default:
		return fmt.Sprintf("Primaries(%d)", int(p))
	}
}

func (p Primaries) valid() bool {
	switch p {
	case PrimariesSRGB, PrimariesCustom, PrimariesBT2100, PrimariesP3:
		return true
	}
	return false
}

// TransferFunction identifies an enumerated transfer function.
type TransferFunction int

const (
	TransferBT709   TransferFunction = 1
	TransferUnknown TransferFunction = 2
	TransferLinear  TransferFunction = 8
	TransferSRGB    TransferFunction = 13
	TransferPQ      TransferFunction = 16
	TransferDCI     TransferFunction = 17
	TransferHLG     TransferFunction = 18
)

// String returns the string representation of a transfer function.
func (t TransferFunction) String() string {
	switch t {
	case TransferBT709:
		return "BT.709"
	case TransferUnknown:
		return "Unknown"
	case TransferLinear:
		return "Linear"
	case TransferSRGB:
		return "sRGB"
	case TransferPQ:
		return "PQ"
	case TransferDCI:
		return "DCI"
	case TransferHLG:
		return "HLG"
	default:
		return fmt.Sprintf("TransferFunction(%d)", int(t))
	}
}

func (t TransferFunction) valid() bool {
	switch t {
	case TransferBT709, TransferUnknown, TransferLinear, TransferSRGB, TransferPQ, TransferDCI, TransferHLG:
		return true
	}
	return false
}

// RenderingIntent is the ICC rendering intent.
type RenderingIntent int

const (
	IntentPerceptual RenderingIntent = iota
	IntentRelative
	IntentSaturation
	IntentAbsolute
)

// ExtraChannelType is the meaning of an extra channel.
type ExtraChannelType int

const (
	ExtraAlpha         ExtraChannelType = 0
	ExtraDepth         ExtraChannelType = 1
	ExtraSpotColor     ExtraChannelType = 2
	ExtraSelectionMask ExtraChannelType = 3
	ExtraBlack         ExtraChannelType = 4
	ExtraCFA           ExtraChannelType = 5
	ExtraThermal       ExtraChannelType = 6
	ExtraNonOptional   ExtraChannelType = 15
	ExtraOptional      ExtraChannelType = 16
)

// String returns the string representation of an extra channel type.
func (e ExtraChannelType) String() string {
	switch e {
	case ExtraAlpha:
		return "Alpha"
	case ExtraDepth:
		return "Depth"
	case ExtraSpotColor:
		return "SpotColor"
	case ExtraSelectionMask:
		return "SelectionMask"
	case ExtraBlack:
		return "Black"
	case ExtraCFA:
		return "CFA"
	case ExtraThermal:
		return "Thermal"
	case ExtraNonOptional:
		return "NonOptional"
	case ExtraOptional:
		return "Optional"
	default:
		return fmt.Sprintf("ExtraChannelType(%d)", int(e))
	}
}

func (e ExtraChannelType) valid() bool {
	return (e >= ExtraAlpha && e <= ExtraThermal) || e == ExtraNonOptional || e == ExtraOptional
}
