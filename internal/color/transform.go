package color

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// PeakDetect controls rescaling of linear light that exceeds the target
// range.
type PeakDetect int

const (
	// PeakDetectAuto rescales only when an HDR source is converted to an
	// SDR target.
	PeakDetectAuto PeakDetect = iota
	PeakDetectOn
	PeakDetectOff
)

// String returns the string representation of a peak detection mode.
func (p PeakDetect) String() string {
	switch p {
	case PeakDetectAuto:
		return "auto"
	case PeakDetectOn:
		return "on"
	case PeakDetectOff:
		return "off"
	default:
		return fmt.Sprintf("PeakDetect(%d)", int(p))
	}
}

// ParsePeakDetect parses "auto", "on" or "off".
func ParsePeakDetect(s string) (PeakDetect, error) {
	for p := PeakDetectAuto; p <= PeakDetectOff; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown peak detection mode %q", s)
}

// Options configures Transform.
type Options struct {
	// IntensityTarget is the luminance in nits of linear value 1. Zero
	// means 255.
	IntensityTarget float32
	PeakDetect      PeakDetect
}

func (o Options) intensity() float64 {
	if o.IntensityTarget <= 0 {
		return 255
	}
	return float64(o.IntensityTarget)
}

// Transform converts colour planes from src to dst in place. Gray images
// have one plane and RGB images three.
func Transform(planes [][]float32, src, dst Encoding, opts Options) error {
	want := 3
	if src.Gray {
		want = 1
	}
	if len(planes) != want || src.Gray != dst.Gray {
		return fmt.Errorf("color: %d planes from %v to %v: %w", len(planes), src, dst, jxlerr.ErrDecoderLogic)
	}
	if src == dst && opts.PeakDetect != PeakDetectOn {
		return nil
	}

	nits := opts.intensity()
	if !src.Transfer.IsLinear() {
		scale := 1.0
		if src.Transfer.isPQ() {
			scale = PQMaxNits / nits
		}
		for _, p := range planes {
			for i, v := range p {
				p[i] = float32(src.Transfer.ToLinear(float64(v)) * scale)
			}
		}
	}

	if !src.Gray {
		m, err := ConversionMatrix(src, dst)
		if err != nil {
			return err
		}
		m.ApplyPlanes(planes[0], planes[1], planes[2])
	}

	if opts.PeakDetect == PeakDetectOn || (opts.PeakDetect == PeakDetectAuto && src.IsHDR() && !dst.IsHDR()) {
		var peak float32
		for _, p := range planes {
			for _, v := range p {
				peak = max(peak, v)
			}
		}
		if peak > 1 {
			for _, p := range planes {
				for i := range p {
					p[i] /= peak
				}
			}
		}
	}

	if !dst.Transfer.IsLinear() {
		scale := 1.0
		if dst.Transfer.isPQ() {
			scale = nits / PQMaxNits
		}
		for _, p := range planes {
			for i, v := range p {
				p[i] = float32(dst.Transfer.FromLinear(float64(v) * scale))
			}
		}
	}
	return nil
}
