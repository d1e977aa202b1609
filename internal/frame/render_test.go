package frame

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
	"github.com/mrjoshuak/go-jpegxl/internal/modular"
)

func TestFloatFromBits(t *testing.T) {
	tests := []struct {
		name    string
		v       uint32
		bits    uint32
		expBits uint32
		want    float64
	}{
		{"half one", 0x3C00, 16, 5, 1},
		{"half minus two", 0xC000, 16, 5, -2},
		{"half subnormal", 0x0001, 16, 5, math.Ldexp(1, -24)},
		{"half zero", 0x0000, 16, 5, 0},
		{"half infinity", 0x7C00, 16, 5, math.Inf(1)},
		{"single", math.Float32bits(1.5), 32, 8, 1.5},
		{"24 bit one", 0x3F8000, 24, 8, 1},
		{"24 bit quarter", 0x3E8000, 24, 8, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, float32(tt.want), floatFromBits(tt.v, tt.bits, tt.expBits))
		})
	}
	require.True(t, math.IsNaN(float64(floatFromBits(0x7E00, 16, 5))))
}

func channelWith(w, h int, samples ...int32) *modular.Channel {
	ch := modular.NewChannel(w, h, 0, 0)
	if err := ch.Alloc(); err != nil {
		panic(err)
	}
	copy(ch.Buf, samples)
	return ch
}

func TestRenderInt(t *testing.T) {
	b, err := renderInt(channelWith(2, 1, 7, 9), codestream.BitDepth{BitsPerSample: 8})
	require.NoError(t, err)
	require.Equal(t, []int32{7, 9}, b.Ints)

	half := codestream.BitDepth{FloatSample: true, BitsPerSample: 16, ExpBitsPerSample: 5}
	b, err = renderInt(channelWith(2, 1, 0x3C00, 0x3800), half)
	require.NoError(t, err)
	require.True(t, b.IsFloat())
	require.Equal(t, []float32{1, 0.5}, b.Floats)
}

func TestRenderYCbCr(t *testing.T) {
	channels := []*modular.Channel{
		channelWith(2, 1, 0, 0),
		channelWith(2, 1, 0, 127),
		channelWith(2, 1, 0, 0),
	}
	planes, err := renderYCbCr(channels, codestream.BitDepth{BitsPerSample: 8})
	require.NoError(t, err)
	for c := range planes {
		require.InDelta(t, 128.0/255, planes[c].Floats[0], 1e-6)
		require.InDelta(t, 1.0, planes[c].Floats[1], 1e-6)
	}
}

func TestRenderXYB_Neutral(t *testing.T) {
	img := rgbImage(1, 1)
	img.XYBEncoded = true
	img.OpsinInverseMatrix = codestream.DefaultOpsinInverseMatrix()
	f := &Frame{
		image:    img,
		LFGlobal: &LFGlobal{LFDequant: [3]float32{1, 0.8453, 0.8453}},
	}
	planes, err := f.renderXYB([]*modular.Channel{
		channelWith(1, 1, 1), // Y
		channelWith(1, 1, 0), // X
		channelWith(1, 1, 0), // B - Y
	})
	require.NoError(t, err)
	require.Len(t, planes, 3)
	for c := range planes {
		require.InDelta(t, 1.0, planes[c].Floats[0], 2e-3)
	}
}
