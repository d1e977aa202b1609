// Package raster holds decoded sample planes. A plane stores either
// integer samples with a known bit depth or float samples nominally in
// [0, 1].
package raster

import (
	"fmt"
	"math"

	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// Buffer is one sample plane in row-major order. Exactly one of Ints and
// Floats is in use.
type Buffer struct {
	Width  int
	Height int
	Ints   []int32
	Floats []float32
}

func newBuffer(width, height int, float bool) (*Buffer, error) {
	n, err := jxlerr.MulExact(width, height)
	if err != nil {
		return nil, err
	}
	b := &Buffer{Width: width, Height: height}
	if float {
		b.Floats = make([]float32, n)
	} else {
		b.Ints = make([]int32, n)
	}
	return b, nil
}

// NewInt allocates a zeroed integer plane.
func NewInt(width, height int) (*Buffer, error) {
	return newBuffer(width, height, false)
}

// NewFloat allocates a zeroed float plane.
func NewFloat(width, height int) (*Buffer, error) {
	return newBuffer(width, height, true)
}

// FromInts wraps samples as an integer plane. The slice is not copied.
func FromInts(width, height int, samples []int32) (*Buffer, error) {
	if len(samples) != width*height {
		return nil, fmt.Errorf("raster: %d samples for %dx%d: %w", len(samples), width, height, jxlerr.ErrDecoderLogic)
	}
	return &Buffer{Width: width, Height: height, Ints: samples}, nil
}

// IsFloat reports whether the plane holds float samples.
func (b *Buffer) IsFloat() bool { return b.Floats != nil }

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{Width: b.Width, Height: b.Height}
	if b.Floats != nil {
		c.Floats = append([]float32(nil), b.Floats...)
	}
	if b.Ints != nil {
		c.Ints = append([]int32(nil), b.Ints...)
	}
	return c
}

// CastToFloat converts integer samples to floats by dividing by maxValue.
// Float planes are left unchanged.
func (b *Buffer) CastToFloat(maxValue int32) {
	if b.IsFloat() {
		return
	}
	scale := 1 / float32(maxValue)
	b.Floats = make([]float32, len(b.Ints))
	for i, v := range b.Ints {
		b.Floats[i] = float32(v) * scale
	}
	b.Ints = nil
}

// CastToInt converts float samples to integers in [0, maxValue], rounding
// to nearest. Integer planes are left unchanged.
func (b *Buffer) CastToInt(maxValue int32) {
	if !b.IsFloat() {
		return
	}
	m := float32(maxValue)
	b.Ints = make([]int32, len(b.Floats))
	for i, v := range b.Floats {
		f := v*m + 0.5
		switch {
		case !(f >= 0): // also NaN
			b.Ints[i] = 0
		case f >= m:
			b.Ints[i] = maxValue
		default:
			b.Ints[i] = int32(f)
		}
	}
	b.Floats = nil
}

// Clamp limits integer samples to [0, maxValue] and float samples to
// [0, 1]. NaN becomes 0.
func (b *Buffer) Clamp(maxValue int32) {
	if b.IsFloat() {
		for i, v := range b.Floats {
			if !(v >= 0) {
				b.Floats[i] = 0
			} else if v > 1 {
				b.Floats[i] = 1
			}
		}
		return
	}
	for i, v := range b.Ints {
		b.Ints[i] = min(max(v, 0), maxValue)
	}
}

// Max returns the largest sample of a float plane, ignoring NaN, or the
// largest integer sample converted to float.
func (b *Buffer) Max() float32 {
	m := float32(math.Inf(-1))
	for _, v := range b.Floats {
		if v > m {
			m = v
		}
	}
	for _, v := range b.Ints {
		m = max(m, float32(v))
	}
	return m
}

// Paste copies src into b with its top-left corner at (x0, y0), clipping
// to b. Both planes must hold the same sample kind.
func (b *Buffer) Paste(src *Buffer, x0, y0 int) error {
	if src.IsFloat() != b.IsFloat() {
		return fmt.Errorf("raster: paste of float=%v into float=%v: %w", src.IsFloat(), b.IsFloat(), jxlerr.ErrDecoderLogic)
	}
	sx, sy := max(0, -x0), max(0, -y0)
	dx, dy := max(0, x0), max(0, y0)
	w := min(src.Width-sx, b.Width-dx)
	h := min(src.Height-sy, b.Height-dy)
	if w <= 0 || h <= 0 {
		return nil
	}
	for y := 0; y < h; y++ {
		so := (sy+y)*src.Width + sx
		do := (dy+y)*b.Width + dx
		if b.IsFloat() {
			copy(b.Floats[do:do+w], src.Floats[so:so+w])
		} else {
			copy(b.Ints[do:do+w], src.Ints[so:so+w])
		}
	}
	return nil
}
