package modular

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// ============================================================================
// Neighbourhood and predictors
// ============================================================================

// grid returns a 4x3 channel:
//
//	 1  2  3  4
//	 5  6  7  8
//	 9 10 11 12
func grid() *Channel {
	ch := NewChannel(4, 3, 0, 0)
	ch.Buf = []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	return ch
}

func TestNeighbours_Load(t *testing.T) {
	tests := []struct {
		name string
		x, y int
		want neighbours
	}{
		{"origin", 0, 0, neighbours{}},
		{"first row", 2, 0, neighbours{w: 2, n: 2, nw: 2, ne: 2, nn: 2, nee: 2, ww: 1}},
		{"first column", 0, 1, neighbours{w: 1, n: 1, nw: 1, ne: 2, nn: 1, nee: 3, ww: 1}},
		{"interior", 2, 2, neighbours{w: 10, n: 7, nw: 6, ne: 8, nn: 3, nee: 8, ww: 9}},
		{"right edge", 3, 1, neighbours{w: 7, n: 4, nw: 3, ne: 4, nn: 4, nee: 4, ww: 6}},
	}

	ch := grid()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nb neighbours
			nb.load(ch, tt.x, tt.y)
			require.Equal(t, tt.want, nb)
		})
	}
}

func TestPredict(t *testing.T) {
	nb := neighbours{w: 10, n: 7, nw: 6, ne: 8, nn: 3, nee: 8, ww: 9}
	tests := []struct {
		pred Predictor
		want int64
	}{
		{PredictZero, 0},
		{PredictWest, 10},
		{PredictNorth, 7},
		{PredictAverageWN, 8},
		{PredictSelect, 7},
		{PredictGradient, 10},
		{PredictWeighted, 42},
		{PredictNorthEast, 8},
		{PredictNorthWest, 6},
		{PredictWestWest, 9},
		{PredictAverageWNW, 8},
		{PredictAverageNNW, 6},
		{PredictAverageNNE, 7},
		{PredictAverageAll, 9},
	}

	for _, tt := range tests {
		t.Run(tt.pred.String(), func(t *testing.T) {
			require.Equal(t, tt.want, nb.predict(tt.pred, 42))
		})
	}
}

func TestPredict_TruncatesTowardZero(t *testing.T) {
	nb := neighbours{w: -3, n: 0}
	require.Equal(t, int64(-1), nb.predict(PredictAverageWN, 0))
}

func TestClampedGradient(t *testing.T) {
	tests := []struct {
		w, n, nw int64
		want     int64
	}{
		{10, 7, 6, 10}, // nw below both: max
		{10, 7, 12, 7}, // nw above both: min
		{10, 7, 8, 9},  // in range: gradient
		{5, 5, 5, 5},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, clampedGradient(tt.w, tt.n, tt.nw), "clampedGradient(%d, %d, %d)", tt.w, tt.n, tt.nw)
	}
}

func TestPredictor_String(t *testing.T) {
	require.Equal(t, "Gradient", PredictGradient.String())
	require.Equal(t, "AverageAll", PredictAverageAll.String())
	require.Equal(t, "Predictor(?)", Predictor(99).String())
}

// ============================================================================
// Weighted predictor
// ============================================================================

func TestErrorWeight(t *testing.T) {
	require.Equal(t, uint32(4+13<<24), errorWeight(0, 13))
	require.Equal(t, uint32(3145732), errorWeight(63, 12))
	require.Equal(t, uint32(4), errorWeight(100, 0))
}

func TestWeightedAverage(t *testing.T) {
	p := [4]int64{8, 8, 8, 8}
	require.Equal(t, int64(8), weightedAverage(&p, [4]uint32{16, 16, 16, 16}))

	p = [4]int64{0, 0, 0, 160}
	require.Equal(t, int64(160), weightedAverage(&p, [4]uint32{4, 4, 4, 1 << 20}))
}

func TestWeightedPredictor_FirstPixels(t *testing.T) {
	ch := NewChannel(2, 1, 0, 0)
	require.NoError(t, ch.Alloc())
	wp := newWeightedPredictor(DefaultWPParams(), ch.Width)

	var nb neighbours
	nb.load(ch, 0, 0)
	pred, maxErr := wp.predict(0, 0, &nb)
	require.Equal(t, int64(0), pred)
	require.Equal(t, int64(0), maxErr)
	ch.Set(0, 0, 3)
	wp.update(0, 0, 3)

	nb.load(ch, 1, 0)
	pred, maxErr = wp.predict(1, 0, &nb)
	require.Equal(t, int64(3), pred)
	require.Equal(t, int64(-24), maxErr)
}

// ============================================================================
// Channels
// ============================================================================

func TestChannel_MarkDecodedTwice(t *testing.T) {
	ch := NewChannel(2, 2, 0, 0)
	require.False(t, ch.Decoded())
	require.NoError(t, ch.MarkDecoded())
	require.True(t, ch.Decoded())
	require.ErrorIs(t, ch.MarkDecoded(), jxlerr.ErrDecoderLogic)
}

func TestChannel_Paste(t *testing.T) {
	dst := NewChannel(4, 3, 0, 0)
	src := NewChannel(2, 2, 0, 0)
	src.Buf = []int32{1, 2, 3, 4}
	require.NoError(t, dst.Paste(src, 2, 1))
	require.Equal(t, []int32{
		0, 0, 0, 0,
		0, 0, 1, 2,
		0, 0, 3, 4,
	}, dst.Buf)

	require.ErrorIs(t, dst.Paste(src, 3, 0), jxlerr.ErrDecoderLogic)
}

func TestChannel_Shape(t *testing.T) {
	ch := NewChannel(5, 6, 1, 2)
	ch.Buf = make([]int32, 30)
	require.NoError(t, ch.MarkDecoded())
	s := ch.Shape()
	require.Equal(t, NewChannel(5, 6, 1, 2), s)
	require.True(t, sameShape(ch, s))
	require.False(t, s.IsMeta())
	require.True(t, NewChannel(3, 1, -1, -1).IsMeta())
}
