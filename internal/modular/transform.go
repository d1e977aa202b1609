package modular

import (
	"fmt"
	"slices"

	"github.com/mrjoshuak/go-jpegxl/internal/dwt"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/mct"
)

// maxFirstPreviewSize bounds the coarsest level of the default squeeze.
const maxFirstPreviewSize = 8

// maxShift bounds channel shifts produced by squeezing.
const maxShift = 30

// Implicit palette colours beyond the explicit entries.
const (
	smallCube       = 4
	smallCubeBits   = 2
	largeCube       = 5
	largeCubeOffset = smallCube * smallCube * smallCube
	cubeChannels    = 3
)

// image is the working channel list of a stream with its meta channel
// count.
type image struct {
	channels []*Channel
	nbMeta   int
}

func checkEqualChannels(img *image, first, last int) error {
	if first < 0 || last >= len(img.channels) || first > last {
		return jxlerr.Malformed("transform channel range", fmt.Sprintf("[%d, %d] of %d", first, last, len(img.channels)))
	}
	if first < img.nbMeta && last >= img.nbMeta {
		return jxlerr.Malformed("transform channel range", "mixes meta and image channels")
	}
	for c := first + 1; c <= last; c++ {
		if !sameShape(img.channels[first], img.channels[c]) {
			return jxlerr.Malformed("transform channel shapes", fmt.Sprintf("channel %d differs from %d", c, first))
		}
	}
	return nil
}

// defaultSqueezeParams returns the squeeze sequence used when a squeeze
// transform lists no steps.
func defaultSqueezeParams(img *image) []SqueezeParams {
	first := img.nbMeta
	nbChannels := len(img.channels) - first
	if nbChannels <= 0 {
		return nil
	}
	w, h := img.channels[first].Width, img.channels[first].Height
	var params []SqueezeParams
	if nbChannels > 2 {
		c := img.channels[first+1]
		if c.Width == w && c.Height == h {
			params = append(params,
				SqueezeParams{Horizontal: true, BeginC: first + 1, NumC: 2},
				SqueezeParams{Horizontal: false, BeginC: first + 1, NumC: 2})
		}
	}
	step := func(horizontal bool) {
		params = append(params, SqueezeParams{Horizontal: horizontal, InPlace: true, BeginC: first, NumC: nbChannels})
	}
	if w <= h && h > maxFirstPreviewSize {
		step(false)
		h = (h + 1) / 2
	}
	for w > maxFirstPreviewSize || h > maxFirstPreviewSize {
		if w > maxFirstPreviewSize {
			step(true)
			w = (w + 1) / 2
		}
		if h > maxFirstPreviewSize {
			step(false)
			h = (h + 1) / 2
		}
	}
	return params
}

// applyMeta updates the channel list for transform t as it is read; the
// samples are filled in later by decoding.
func applyMeta(img *image, t *Transform) error {
	switch t.ID {
	case TransformRCT:
		if t.BeginC < img.nbMeta {
			return jxlerr.Malformed("rct begin channel", t.BeginC)
		}
		return checkEqualChannels(img, t.BeginC, t.BeginC+2)

	case TransformPalette:
		if t.NumC < 1 {
			return jxlerr.Malformed("palette channels", t.NumC)
		}
		last := t.BeginC + t.NumC - 1
		if err := checkEqualChannels(img, t.BeginC, last); err != nil {
			return err
		}
		if t.BeginC < img.nbMeta {
			img.nbMeta += 2 - t.NumC
		} else {
			img.nbMeta++
		}
		img.channels = slices.Delete(img.channels, t.BeginC+1, last+1)
		img.channels = slices.Insert(img.channels, 0, NewChannel(t.NbColors+t.NbDeltas, t.NumC, -1, -1))
		return nil

	case TransformSqueeze:
		if len(t.Squeezes) == 0 {
			t.Squeezes = defaultSqueezeParams(img)
		}
		for _, sp := range t.Squeezes {
			if err := applySqueezeMeta(img, sp); err != nil {
				return err
			}
		}
		return nil
	}
	return jxlerr.Malformed("transform id", t.ID)
}

func applySqueezeMeta(img *image, sp SqueezeParams) error {
	first := sp.BeginC
	last := first + sp.NumC - 1
	if sp.NumC < 1 || last >= len(img.channels) {
		return jxlerr.Malformed("squeeze channel range", fmt.Sprintf("[%d, %d] of %d", first, last, len(img.channels)))
	}
	if first < img.nbMeta {
		return jxlerr.Unsupported("squeeze of meta channel", first)
	}
	offset := len(img.channels)
	if sp.InPlace {
		offset = last + 1
	}
	for c := first; c <= last; c++ {
		ch := img.channels[c]
		if ch.HShift > maxShift || ch.VShift > maxShift {
			return jxlerr.Malformed("squeeze shift", max(ch.HShift, ch.VShift))
		}
		if ch.Empty() {
			return jxlerr.Malformed("squeeze of empty channel", c)
		}
		res := NewChannel(ch.Width, ch.Height, ch.HShift, ch.VShift)
		if sp.Horizontal {
			ch.HShift++
			res.HShift++
			res.Width = ch.Width / 2
			ch.Width = (ch.Width + 1) / 2
		} else {
			ch.VShift++
			res.VShift++
			res.Height = ch.Height / 2
			ch.Height = (ch.Height + 1) / 2
		}
		img.channels = slices.Insert(img.channels, offset+c-first, res)
	}
	return nil
}

// inverse undoes transform t on the decoded channels.
func inverse(img *image, t *Transform, bitDepth int, wp WPParams) error {
	switch t.ID {
	case TransformRCT:
		c := img.channels[t.BeginC : t.BeginC+3]
		for _, ch := range c {
			if err := ch.Alloc(); err != nil {
				return err
			}
		}
		mct.InverseRCT([3][]int32{c[0].Buf, c[1].Buf, c[2].Buf}, t.RCTType)
		return nil
	case TransformPalette:
		return inversePalette(img, t, bitDepth, wp)
	case TransformSqueeze:
		for i := len(t.Squeezes) - 1; i >= 0; i-- {
			if err := inverseSqueeze(img, t.Squeezes[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return jxlerr.Malformed("transform id", t.ID)
}

func inverseSqueeze(img *image, sp SqueezeParams) error {
	first := sp.BeginC
	last := first + sp.NumC - 1
	offset := len(img.channels) - sp.NumC
	if sp.InPlace {
		offset = last + 1
	}
	if first < 0 || offset+sp.NumC > len(img.channels) {
		return fmt.Errorf("modular: squeeze residuals out of range: %w", jxlerr.ErrDecoderLogic)
	}
	for c := first; c <= last; c++ {
		avg := img.channels[c]
		res := img.channels[offset+c-first]
		if err := avg.Alloc(); err != nil {
			return err
		}
		if err := res.Alloc(); err != nil {
			return err
		}
		out := NewChannel(avg.Width, avg.Height, avg.HShift, avg.VShift)
		if sp.Horizontal {
			if res.Height != avg.Height || avg.Width-res.Width > 1 || avg.Width < res.Width {
				return jxlerr.Malformed("squeeze residual width", res.Width)
			}
			out.Width += res.Width
			out.HShift--
			if err := out.Alloc(); err != nil {
				return err
			}
			dwt.InverseHorizontal(out.Buf, avg.Buf, res.Buf, avg.Width, res.Width, avg.Height)
		} else {
			if res.Width != avg.Width || avg.Height-res.Height > 1 || avg.Height < res.Height {
				return jxlerr.Malformed("squeeze residual height", res.Height)
			}
			out.Height += res.Height
			out.VShift--
			if err := out.Alloc(); err != nil {
				return err
			}
			dwt.InverseVertical(out.Buf, avg.Buf, res.Buf, avg.Width, avg.Height, res.Height)
		}
		out.decoded = avg.decoded
		img.channels[c] = out
	}
	img.channels = slices.Delete(img.channels, offset, offset+sp.NumC)
	return nil
}

// deltaPalette holds the implicit deltas addressed by negative palette
// indices. Odd indices negate the entry.
var deltaPalette = [72][3]int64{
	{0, 0, 0}, {4, 4, 4}, {11, 0, 0}, {0, 0, -13},
	{0, -12, 0}, {-10, -10, -10}, {-18, -18, -18}, {-27, -27, -27},
	{-18, -18, 0}, {0, 0, -32}, {-32, 0, 0}, {-37, -37, -37},
	{0, -32, -32}, {24, 24, 45}, {50, 50, 50}, {-45, -24, -24},
	{-24, -45, -45}, {0, -24, -24}, {-34, -34, 0}, {-24, 0, -24},
	{-45, -45, -24}, {64, 64, 64}, {-32, 0, -32}, {0, -32, 0},
	{-32, 0, 32}, {-24, -45, -24}, {45, 24, 45}, {24, -24, -45},
	{-45, -24, 24}, {80, 80, 80}, {64, 0, 0}, {0, 0, -64},
	{0, -64, -64}, {-24, -24, 45}, {96, 96, 96}, {64, 64, 0},
	{45, -24, -24}, {34, -34, 0}, {112, 112, 112}, {24, -45, -45},
	{45, 45, -24}, {0, -32, 32}, {24, -24, 45}, {0, 96, 96},
	{45, -24, 24}, {24, -45, -24}, {-24, -45, 24}, {0, -64, 0},
	{96, 0, 0}, {128, 128, 128}, {64, 0, 64}, {144, 144, 144},
	{96, 96, 0}, {-36, -36, 36}, {45, -24, -45}, {45, -45, -24},
	{0, 0, -96}, {0, 128, 128}, {0, 96, 0}, {45, 24, -45},
	{-128, 0, 0}, {24, -45, 24}, {-45, 24, -45}, {64, 0, -64},
	{64, -64, -64}, {96, 0, 96}, {45, -24, 45}, {24, 45, -45},
	{64, 64, -64}, {128, 128, 0}, {0, 0, -128}, {-24, 45, -45},
}

// paletteValue returns component c of palette index idx.
func paletteValue(palette *Channel, idx int64, c, bitDepth int) int64 {
	size := int64(palette.Width)
	switch {
	case c >= cubeChannels && (idx < 0 || idx >= size):
		return 0
	case idx < 0:
		i := (-idx - 1) % (2*int64(len(deltaPalette)) - 1)
		v := deltaPalette[(i+1)>>1][c]
		if i&1 == 0 {
			v = -v
		}
		if bitDepth > 8 {
			v <<= bitDepth - 8
		}
		return v
	case idx < size:
		return int64(palette.Buf[c*palette.Width+int(idx)])
	case idx < size+largeCubeOffset:
		i := (idx - size) >> (c * smallCubeBits)
		return (i%smallCube)*((1<<bitDepth)-1)/smallCube + 1<<max(0, bitDepth-smallCubeBits-1)
	default:
		i := idx - size - largeCubeOffset
		for ; c > 0; c-- {
			i /= largeCube
		}
		return (i % largeCube) * ((1 << bitDepth) - 1) / (largeCube - 1)
	}
}

func inversePalette(img *image, t *Transform, bitDepth int, wp WPParams) error {
	bitDepth = min(bitDepth, 24)
	palette := img.channels[0]
	first := t.BeginC + 1
	if first >= len(img.channels) {
		return fmt.Errorf("modular: palette index channel missing: %w", jxlerr.ErrDecoderLogic)
	}
	index := img.channels[first]
	if err := palette.Alloc(); err != nil {
		return err
	}
	if err := index.Alloc(); err != nil {
		return err
	}

	outs := make([]*Channel, t.NumC)
	for c := range outs {
		out := index.Shape()
		out.decoded = index.decoded
		if err := out.Alloc(); err != nil {
			return err
		}
		outs[c] = out

		var wpState *weightedPredictor
		if t.DPred == PredictWeighted {
			wpState = newWeightedPredictor(wp, out.Width)
		}
		var nb neighbours
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				idx := int64(index.Get(x, y))
				v := paletteValue(palette, idx, c, bitDepth)
				if idx < int64(t.NbDeltas) {
					nb.load(out, x, y)
					var wpPred int64
					if wpState != nil {
						wpPred, _ = wpState.predict(x, y, &nb)
					}
					v += nb.predict(t.DPred, wpPred)
				}
				out.Set(x, y, int32(v))
				if wpState != nil {
					wpState.update(x, y, int64(int32(v)))
				}
			}
		}
	}

	img.channels = slices.Replace(img.channels, first, first+1, outs...)
	img.channels = img.channels[1:]
	if t.BeginC < img.nbMeta {
		img.nbMeta -= 2 - t.NumC
	} else {
		img.nbMeta--
	}
	return nil
}
