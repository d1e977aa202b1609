package modular

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// Channel is one plane of a modular image. Meta channels (palettes) carry
// shifts of -1.
type Channel struct {
	Width  int
	Height int
	HShift int
	VShift int
	Buf    []int32

	decoded bool
}

// NewChannel returns an unallocated channel of the given shape.
func NewChannel(width, height, hshift, vshift int) *Channel {
	return &Channel{Width: width, Height: height, HShift: hshift, VShift: vshift}
}

// Shape returns a copy of c without samples or decode state.
func (c *Channel) Shape() *Channel {
	return NewChannel(c.Width, c.Height, c.HShift, c.VShift)
}

// IsMeta reports whether c is a meta channel.
func (c *Channel) IsMeta() bool { return c.HShift < 0 }

// Empty reports whether c has no samples.
func (c *Channel) Empty() bool { return c.Width == 0 || c.Height == 0 }

// Decoded reports whether MarkDecoded has been called.
func (c *Channel) Decoded() bool { return c.decoded }

// MarkDecoded records that c has received its samples. A channel is
// decoded exactly once; a second call is a decoder logic error.
func (c *Channel) MarkDecoded() error {
	if c.decoded {
		return fmt.Errorf("modular: channel %dx%d (shift %d,%d) decoded twice: %w",
			c.Width, c.Height, c.HShift, c.VShift, jxlerr.ErrDecoderLogic)
	}
	c.decoded = true
	return nil
}

// Alloc allocates the sample buffer if it is not allocated yet.
func (c *Channel) Alloc() error {
	if c.Buf != nil {
		return nil
	}
	n, err := jxlerr.MulExact(c.Width, c.Height)
	if err != nil {
		return err
	}
	c.Buf = make([]int32, n)
	return nil
}

// Row returns row y of the samples.
func (c *Channel) Row(y int) []int32 {
	return c.Buf[y*c.Width : (y+1)*c.Width]
}

// Get returns the sample at (x, y).
func (c *Channel) Get(x, y int) int32 {
	return c.Buf[y*c.Width+x]
}

// Set stores v at (x, y).
func (c *Channel) Set(x, y int, v int32) {
	c.Buf[y*c.Width+x] = v
}

// Paste copies src into c with its top-left corner at (x0, y0). src must
// fit inside c.
func (c *Channel) Paste(src *Channel, x0, y0 int) error {
	if x0 < 0 || y0 < 0 || x0+src.Width > c.Width || y0+src.Height > c.Height {
		return fmt.Errorf("modular: paste %dx%d at (%d,%d) into %dx%d: %w",
			src.Width, src.Height, x0, y0, c.Width, c.Height, jxlerr.ErrDecoderLogic)
	}
	if src.Empty() {
		return nil
	}
	if err := c.Alloc(); err != nil {
		return err
	}
	if err := src.Alloc(); err != nil {
		return err
	}
	for y := 0; y < src.Height; y++ {
		copy(c.Buf[(y0+y)*c.Width+x0:], src.Row(y))
	}
	return nil
}

// sameShape reports whether a and b have equal dimensions and shifts.
func sameShape(a, b *Channel) bool {
	return a.Width == b.Width && a.Height == b.Height && a.HShift == b.HShift && a.VShift == b.VShift
}
