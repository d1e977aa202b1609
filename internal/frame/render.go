package frame

import (
	"fmt"
	"math"

	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
	"github.com/mrjoshuak/go-jpegxl/internal/color"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/mct"
	"github.com/mrjoshuak/go-jpegxl/internal/modular"
	"github.com/mrjoshuak/go-jpegxl/internal/raster"
)

// Render converts a Complete frame into sample planes: the colour planes,
// then one per extra channel. XYB and YCbCr frames yield float colour
// planes, XYB ones in linear sRGB. Other planes keep their integer samples
// unless the bit depth declares float samples.
func (f *Frame) Render() ([]*raster.Buffer, error) {
	channels, err := f.Channels()
	if err != nil {
		return nil, err
	}
	numColor := len(channels) - len(f.image.ExtraChannels)
	if numColor != 1 && numColor != 3 {
		return nil, fmt.Errorf("frame %d: %d colour channels after inverse transforms: %w",
			f.Index, numColor, jxlerr.ErrDecoderLogic)
	}
	for _, ch := range channels {
		if err := ch.Alloc(); err != nil {
			return nil, err
		}
	}

	out := make([]*raster.Buffer, 0, len(channels))
	switch {
	case f.image.XYBEncoded:
		planes, err := f.renderXYB(channels[:3])
		if err != nil {
			return nil, err
		}
		out = append(out, planes...)
	case f.Header.DoYCbCr:
		planes, err := renderYCbCr(channels[:3], f.image.BitDepth)
		if err != nil {
			return nil, err
		}
		out = append(out, planes...)
	default:
		for _, ch := range channels[:numColor] {
			b, err := renderInt(ch, f.image.BitDepth)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	for i, ec := range f.image.ExtraChannels {
		b, err := renderInt(channels[numColor+i], ec.BitDepth)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// renderXYB dequantizes channels stored as (Y, X, B-Y) and converts them
// to linear sRGB.
func (f *Frame) renderXYB(channels []*modular.Channel) ([]*raster.Buffer, error) {
	w, h := channels[0].Width, channels[0].Height
	planes := make([]*raster.Buffer, 3)
	for c := range planes {
		var err error
		if planes[c], err = raster.NewFloat(w, h); err != nil {
			return nil, err
		}
	}
	dq := f.LFGlobal.LFDequant
	x, y, b := planes[0].Floats, planes[1].Floats, planes[2].Floats
	sy, sx, sb := channels[0].Buf, channels[1].Buf, channels[2].Buf
	for i := range y {
		x[i] = float32(sx[i]) * dq[0]
		y[i] = float32(sy[i]) * dq[1]
		b[i] = float32(sb[i]+sy[i]) * dq[2]
	}
	color.OpsinInverse(x, y, b, f.image.OpsinInverseMatrix, f.image.ToneMapping.IntensityTarget)
	return planes, nil
}

// renderYCbCr converts integer (Cb, Y, Cr) channels to float RGB.
func renderYCbCr(channels []*modular.Channel, depth codestream.BitDepth) ([]*raster.Buffer, error) {
	planes := make([]*raster.Buffer, 3)
	for c, ch := range channels {
		b, err := raster.FromInts(ch.Width, ch.Height, ch.Buf)
		if err != nil {
			return nil, err
		}
		b.CastToFloat(int32(1)<<depth.BitsPerSample - 1)
		planes[c] = b
	}
	mct.InverseYCbCr(planes[0].Floats, planes[1].Floats, planes[2].Floats)
	return planes, nil
}

// renderInt wraps an integer channel, decoding float bit patterns when the
// bit depth declares float samples.
func renderInt(ch *modular.Channel, depth codestream.BitDepth) (*raster.Buffer, error) {
	if !depth.FloatSample {
		return raster.FromInts(ch.Width, ch.Height, ch.Buf)
	}
	b, err := raster.NewFloat(ch.Width, ch.Height)
	if err != nil {
		return nil, err
	}
	for i, v := range ch.Buf {
		b.Floats[i] = floatFromBits(uint32(v), depth.BitsPerSample, depth.ExpBitsPerSample)
	}
	return b, nil
}

// floatFromBits interprets the low bits of v as a float with one sign bit,
// expBits exponent bits and the remaining bits of mantissa.
func floatFromBits(v, bits, expBits uint32) float32 {
	if bits == 32 && expBits == 8 {
		return math.Float32frombits(v)
	}
	mantBits := bits - expBits - 1
	sign := v >> (bits - 1) & 1
	exp := int(v>>mantBits) & (1<<expBits - 1)
	mant := float64(v & (1<<mantBits - 1))
	bias := 1<<(expBits-1) - 1

	var f float64
	switch exp {
	case 0:
		f = math.Ldexp(mant, 1-bias-int(mantBits))
	case 1<<expBits - 1:
		if mant != 0 {
			f = math.NaN()
		} else {
			f = math.Inf(1)
		}
	default:
		f = math.Ldexp(mant+float64(uint64(1)<<mantBits), exp-bias-int(mantBits))
	}
	if sign != 0 {
		f = -f
	}
	return float32(f)
}
