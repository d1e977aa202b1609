package raster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

func TestNew_Overflow(t *testing.T) {
	_, err := NewInt(math.MaxInt/2, 3)
	require.ErrorIs(t, err, jxlerr.ErrOverflow)
	_, err = NewFloat(-1, 3)
	require.ErrorIs(t, err, jxlerr.ErrOverflow)
}

func TestFromInts_LengthMismatch(t *testing.T) {
	_, err := FromInts(2, 2, make([]int32, 3))
	require.ErrorIs(t, err, jxlerr.ErrDecoderLogic)
}

func TestCastRoundTrip(t *testing.T) {
	b, err := FromInts(4, 1, []int32{0, 1, 128, 255})
	require.NoError(t, err)
	b.CastToFloat(255)
	require.True(t, b.IsFloat())
	require.Nil(t, b.Ints)
	require.InDelta(t, 128.0/255, b.Floats[2], 1e-6)

	b.CastToInt(255)
	require.False(t, b.IsFloat())
	require.Equal(t, []int32{0, 1, 128, 255}, b.Ints)
}

func TestCastToInt_Rescale(t *testing.T) {
	b := &Buffer{Width: 5, Height: 1, Floats: []float32{-0.5, 0, 0.5, 1, 2}}
	b.CastToInt(65535)
	require.Equal(t, []int32{0, 0, 32768, 65535, 65535}, b.Ints)

	b = &Buffer{Width: 1, Height: 1, Floats: []float32{float32(math.NaN())}}
	b.CastToInt(255)
	require.Equal(t, []int32{0}, b.Ints)
}

func TestClamp(t *testing.T) {
	b := &Buffer{Width: 4, Height: 1, Ints: []int32{-3, 0, 200, 300}}
	b.Clamp(255)
	require.Equal(t, []int32{0, 0, 200, 255}, b.Ints)

	f := &Buffer{Width: 4, Height: 1, Floats: []float32{-1, 0.25, 7, float32(math.NaN())}}
	f.Clamp(255)
	require.Equal(t, []float32{0, 0.25, 1, 0}, f.Floats)
}

func TestPaste(t *testing.T) {
	tests := []struct {
		name   string
		x0, y0 int
		want   []int32
	}{
		{"inside", 1, 1, []int32{0, 0, 0, 0, 1, 2, 0, 3, 4}},
		{"clipped right", 2, 0, []int32{0, 0, 1, 0, 0, 3, 0, 0, 0}},
		{"negative origin", -1, -1, []int32{4, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"outside", 5, 5, make([]int32, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst, err := NewInt(3, 3)
			require.NoError(t, err)
			src, err := FromInts(2, 2, []int32{1, 2, 3, 4})
			require.NoError(t, err)
			require.NoError(t, dst.Paste(src, tt.x0, tt.y0))
			require.Equal(t, tt.want, dst.Ints)
		})
	}

	dst, _ := NewFloat(2, 2)
	src, _ := NewInt(1, 1)
	require.ErrorIs(t, dst.Paste(src, 0, 0), jxlerr.ErrDecoderLogic)
}

func TestCloneAndMax(t *testing.T) {
	b := &Buffer{Width: 3, Height: 1, Floats: []float32{0.5, 1.5, float32(math.NaN())}}
	c := b.Clone()
	c.Floats[0] = 9
	require.Equal(t, float32(0.5), b.Floats[0])
	require.Equal(t, float32(1.5), b.Max())
	require.Equal(t, float32(9), c.Max())
}
