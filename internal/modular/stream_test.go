package modular

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// fourSymbolCode writes an entropy stream header for numDists contexts
// sharing one prefix code over four literal symbols of two bits each, and
// returns a function writing one of those symbols.
func fourSymbolCode(w *bio.Writer, numDists int, syms [4]uint32) func(v uint32) {
	w.WriteBool(false) // no lz77
	if numDists > 1 {
		w.WriteBool(true) // simple cluster map
		w.WriteBits(0, 2) // everything in cluster 0
	}
	w.WriteBool(true) // prefix codes
	w.WriteBits(4, 4) // split 4
	w.WriteBits(0, 3) // msb 0
	w.WriteBits(0, 3) // lsb 0
	w.WriteBool(true) // alphabet 1 + 8 + 7 = 16
	w.WriteBits(3, 4)
	w.WriteBits(7, 3)
	w.WriteBits(1, 2) // simple code
	w.WriteBits(3, 2) // four symbols
	for _, s := range syms {
		w.WriteBits(uint64(s), 4)
	}
	w.WriteBool(false) // equal lengths
	return symbolWriter(w, syms)
}

// symbolWriter returns a function writing symbols of a code built by
// fourSymbolCode. Canonical codes follow symbol order.
func symbolWriter(w *bio.Writer, syms [4]uint32) func(uint32) {
	sorted := syms
	slices.Sort(sorted[:])
	return func(v uint32) {
		i := slices.Index(sorted[:], v)
		if i < 0 {
			panic("symbol not in code")
		}
		w.WriteBits(uint64(i>>1), 1)
		w.WriteBits(uint64(i&1), 1)
	}
}

var defaultSyms = [4]uint32{0, 1, 2, 6}

// writeHeader writes a local-tree header with default weighted predictor
// parameters and n transforms, leaving the transforms to the caller.
func writeHeader(w *bio.Writer, n uint32) {
	w.WriteBool(false) // local tree
	w.WriteBool(true)  // default wp
	w.WriteU32(n, 0, 0, 1, 0, 2, 4, 18, 8)
}

// writeLeaf writes a leaf node with the given predictor and packed offset.
func writeLeaf(sym func(uint32), pred Predictor, offset uint32) {
	sym(0) // leaf
	sym(uint32(pred))
	sym(offset)
	sym(0) // mul log
	sym(0) // mul bits
}

// writeSingleLeafStream writes a tree with one leaf followed by the data
// code and the given residual symbols.
func writeSingleLeafStream(w *bio.Writer, pred Predictor, offset uint32, data []uint32) {
	tree := fourSymbolCode(w, numTreeContexts, defaultSyms)
	writeLeaf(tree, pred, offset)
	code := fourSymbolCode(w, 1, defaultSyms)
	for _, v := range data {
		code(v)
	}
}

func decodeStream(t *testing.T, data []byte, chans []*Channel, p Params) *Stream {
	t.Helper()
	r := bio.NewReaderBytes(data)
	s, err := NewStream(r, chans, p)
	require.NoError(t, err)
	require.NoError(t, s.Decode(r))
	return s
}

// ============================================================================
// Decode
// ============================================================================

func TestStream_SingleLeaf(t *testing.T) {
	tests := []struct {
		name   string
		pred   Predictor
		offset uint32
		data   []uint32
		width  int
		height int
		want   []int32
	}{
		{"west with offset", PredictWest, 6, make([]uint32, 6), 3, 2, []int32{3, 6, 9, 6, 9, 12}},
		{"north with offset", PredictNorth, 2, make([]uint32, 4), 2, 2, []int32{1, 2, 2, 3}},
		{"zero with residuals", PredictZero, 0, []uint32{0, 1, 2, 6}, 2, 2, []int32{0, -1, 1, 3}},
		{"weighted with offset", PredictWeighted, 6, make([]uint32, 2), 2, 1, []int32{3, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := bio.NewWriter()
			writeHeader(w, 0)
			writeSingleLeafStream(w, tt.pred, tt.offset, tt.data)
			s := decodeStream(t, w.Bytes(), []*Channel{NewChannel(tt.width, tt.height, 0, 0)}, Params{})
			ch := s.Channels()[0]
			require.Equal(t, tt.want, ch.Buf)
			require.True(t, ch.Decoded())
		})
	}
}

func TestStream_SplitOnChannel(t *testing.T) {
	w := bio.NewWriter()
	writeHeader(w, 0)
	tree := fourSymbolCode(w, numTreeContexts, defaultSyms)
	tree(1)                         // split on property 0 (channel)
	tree(0)                         // split value 0
	writeLeaf(tree, PredictZero, 6) // channel > 0
	writeLeaf(tree, PredictZero, 0) // channel 0
	code := fourSymbolCode(w, 2, defaultSyms)
	for _, v := range []uint32{0, 2, 0, 1} {
		code(v)
	}

	chans := []*Channel{NewChannel(2, 1, 0, 0), NewChannel(2, 1, 0, 0)}
	s := decodeStream(t, w.Bytes(), chans, Params{ID: 3})
	require.Equal(t, []int32{0, 1}, s.Channels()[0].Buf)
	require.Equal(t, []int32{3, 2}, s.Channels()[1].Buf)
}

func TestStream_NoChannels(t *testing.T) {
	r := bio.NewReaderBytes(nil)
	s, err := NewStream(r, nil, Params{})
	require.NoError(t, err)
	require.NoError(t, s.Decode(r))
	require.Zero(t, r.BitsRead())
}

func TestStream_EmptyChannelsSkipTree(t *testing.T) {
	w := bio.NewWriter()
	writeHeader(w, 0)
	r := bio.NewReaderBytes(w.Bytes())
	s, err := NewStream(r, []*Channel{NewChannel(0, 4, 0, 0)}, Params{})
	require.NoError(t, err)
	before := r.BitsRead()
	require.NoError(t, s.Decode(r))
	require.Equal(t, before, r.BitsRead())
	require.False(t, s.Channels()[0].Decoded())
}

func TestStream_MaxChanSize(t *testing.T) {
	w := bio.NewWriter()
	writeHeader(w, 0)
	writeSingleLeafStream(w, PredictZero, 2, make([]uint32, 4))

	chans := []*Channel{NewChannel(2, 2, 0, 0), NewChannel(4, 4, 0, 0)}
	s := decodeStream(t, w.Bytes(), chans, Params{MaxChanSize: 2})
	require.True(t, chans[0].Decoded())
	require.Equal(t, []int32{1, 1, 1, 1}, chans[0].Buf)
	require.False(t, chans[1].Decoded())
	require.Nil(t, s.Channels()[1].Buf)
}

func TestStream_GlobalTree(t *testing.T) {
	w := bio.NewWriter()
	tree := fourSymbolCode(w, numTreeContexts, defaultSyms)
	writeLeaf(tree, PredictWest, 2)
	fourSymbolCode(w, 1, defaultSyms)
	global, err := ReadTree(bio.NewReaderBytes(w.Bytes()), 1024)
	require.NoError(t, err)
	require.Equal(t, 1, global.NumLeaves())

	// Each stream sharing the tree starts from a fresh decode state.
	for _, id := range []int{1, 2} {
		w := bio.NewWriter()
		w.WriteBool(true) // global tree
		w.WriteBool(true) // default wp
		w.WriteU32(0, 0, 0, 1, 0, 2, 4, 18, 8)
		sym := symbolWriter(w, defaultSyms)
		sym(0)
		sym(0)
		s := decodeStream(t, w.Bytes(), []*Channel{NewChannel(2, 1, 0, 0)}, Params{ID: id, GlobalTree: global})
		require.Equal(t, []int32{1, 2}, s.Channels()[0].Buf)
	}
}


func TestStream_Errors(t *testing.T) {
	t.Run("global tree absent", func(t *testing.T) {
		w := bio.NewWriter()
		w.WriteBool(true)
		w.WriteBool(true)
		w.WriteU32(0, 0, 0, 1, 0, 2, 4, 18, 8)
		_, err := NewStream(bio.NewReaderBytes(w.Bytes()), []*Channel{NewChannel(1, 1, 0, 0)}, Params{})
		require.ErrorIs(t, err, jxlerr.ErrMalformed)
	})

	t.Run("truncated", func(t *testing.T) {
		w := bio.NewWriter()
		writeHeader(w, 0)
		writeSingleLeafStream(w, PredictWest, 6, make([]uint32, 64))
		data := w.Bytes()[:6]
		r := bio.NewReaderBytes(data)
		s, err := NewStream(r, []*Channel{NewChannel(8, 8, 0, 0)}, Params{})
		if err == nil {
			err = s.Decode(r)
		}
		require.True(t, errors.Is(err, bio.ErrEndOfStream), "got %v", err)
	})

	t.Run("invalid predictor", func(t *testing.T) {
		w := bio.NewWriter()
		writeHeader(w, 0)
		tree := fourSymbolCode(w, numTreeContexts, [4]uint32{0, 1, 2, 15})
		tree(0)
		tree(15)
		r := bio.NewReaderBytes(w.Bytes())
		s, err := NewStream(r, []*Channel{NewChannel(1, 1, 0, 0)}, Params{})
		require.NoError(t, err)
		require.ErrorIs(t, s.Decode(r), jxlerr.ErrMalformed)
	})

	t.Run("decoded twice", func(t *testing.T) {
		w := bio.NewWriter()
		writeHeader(w, 0)
		writeSingleLeafStream(w, PredictZero, 0, []uint32{0})
		writeSingleLeafStream(w, PredictZero, 0, []uint32{0})
		r := bio.NewReaderBytes(w.Bytes())
		s, err := NewStream(r, []*Channel{NewChannel(1, 1, 0, 0)}, Params{})
		require.NoError(t, err)
		require.NoError(t, s.Decode(r))
		require.ErrorIs(t, s.Decode(r), jxlerr.ErrDecoderLogic)
	})
}

// ============================================================================
// Transforms
// ============================================================================

func TestStream_RCT(t *testing.T) {
	w := bio.NewWriter()
	writeHeader(w, 1)
	w.WriteBits(uint64(TransformRCT), 2)
	w.WriteU32(0, 0, 3, 8, 6, 72, 10, 1096, 13) // begin 0
	w.WriteU32(1, 6, 0, 0, 2, 2, 4, 10, 6)      // type 1
	writeSingleLeafStream(w, PredictZero, 0, []uint32{2, 0, 0})

	chans := []*Channel{NewChannel(1, 1, 0, 0), NewChannel(1, 1, 0, 0), NewChannel(1, 1, 0, 0)}
	s := decodeStream(t, w.Bytes(), chans, Params{})
	require.NoError(t, s.InverseTransforms())
	got := []int32{s.Channels()[0].Buf[0], s.Channels()[1].Buf[0], s.Channels()[2].Buf[0]}
	require.Equal(t, []int32{1, 0, 1}, got)
}

func TestStream_Palette(t *testing.T) {
	w := bio.NewWriter()
	writeHeader(w, 1)
	w.WriteBits(uint64(TransformPalette), 2)
	w.WriteU32(0, 0, 3, 8, 6, 72, 10, 1096, 13)      // begin 0
	w.WriteU32(1, 1, 0, 3, 0, 4, 0, 1, 13)           // one channel
	w.WriteU32(2, 0, 8, 256, 10, 1280, 12, 5376, 16) // two colours
	w.WriteU32(0, 0, 0, 1, 8, 257, 10, 1281, 16)     // no deltas
	w.WriteBits(0, 4)                                // zero predictor

	syms := [4]uint32{0, 2, 4, 6}
	tree := fourSymbolCode(w, numTreeContexts, syms)
	writeLeaf(tree, PredictZero, 0)
	code := fourSymbolCode(w, 1, syms)
	for _, v := range []uint32{6, 2, 2, 4} { // palette 3, 1; indices 1, 2
		code(v)
	}

	r := bio.NewReaderBytes(w.Bytes())
	s, err := NewStream(r, []*Channel{NewChannel(2, 1, 0, 0)}, Params{BitDepth: 8})
	require.NoError(t, err)
	require.Len(t, s.Channels(), 2)
	require.Equal(t, 1, s.NumMeta())
	require.True(t, s.Channels()[0].IsMeta())
	require.NoError(t, s.Decode(r))
	require.NoError(t, s.InverseTransforms())
	require.Len(t, s.Channels(), 1)
	require.Equal(t, 0, s.NumMeta())
	require.Equal(t, []int32{1, 32}, s.Channels()[0].Buf)
}

func TestStream_Squeeze(t *testing.T) {
	w := bio.NewWriter()
	writeHeader(w, 1)
	w.WriteBits(uint64(TransformSqueeze), 2)
	w.WriteU32(1, 0, 0, 1, 4, 9, 6, 41, 8) // one step
	w.WriteBool(true)                      // horizontal
	w.WriteBool(true)                      // in place
	w.WriteU32(0, 0, 3, 8, 6, 72, 10, 1096, 13)
	w.WriteU32(1, 1, 0, 2, 0, 3, 0, 4, 4)
	writeSingleLeafStream(w, PredictZero, 0, []uint32{6, 2})

	r := bio.NewReaderBytes(w.Bytes())
	s, err := NewStream(r, []*Channel{NewChannel(2, 1, 0, 0)}, Params{})
	require.NoError(t, err)
	require.Len(t, s.Channels(), 2)
	require.Equal(t, 1, s.Channels()[0].HShift)
	require.NoError(t, s.Decode(r))
	require.NoError(t, s.InverseTransforms())
	ch := s.Channels()[0]
	require.Equal(t, 2, ch.Width)
	require.Equal(t, 0, ch.HShift)
	require.Equal(t, []int32{3, 2}, ch.Buf)
}

func TestReadHeader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *bio.Writer)
	}{
		{"transform id 3", func(w *bio.Writer) {
			writeHeader(w, 1)
			w.WriteBits(3, 2)
		}},
		{"rct type 42", func(w *bio.Writer) {
			writeHeader(w, 1)
			w.WriteBits(uint64(TransformRCT), 2)
			w.WriteU32(0, 0, 3, 8, 6, 72, 10, 1096, 13)
			w.WriteU32(42, 6, 0, 0, 2, 2, 4, 10, 6)
		}},
		{"palette predictor 14", func(w *bio.Writer) {
			writeHeader(w, 1)
			w.WriteBits(uint64(TransformPalette), 2)
			w.WriteU32(0, 0, 3, 8, 6, 72, 10, 1096, 13)
			w.WriteU32(1, 1, 0, 3, 0, 4, 0, 1, 13)
			w.WriteU32(2, 0, 8, 256, 10, 1280, 12, 5376, 16)
			w.WriteU32(0, 0, 0, 1, 8, 257, 10, 1281, 16)
			w.WriteBits(14, 4)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := bio.NewWriter()
			tt.build(w)
			_, err := ReadHeader(bio.NewReaderBytes(w.Bytes()))
			require.ErrorIs(t, err, jxlerr.ErrMalformed)
		})
	}
}

func TestReadHeader_CustomWP(t *testing.T) {
	w := bio.NewWriter()
	w.WriteBool(false)
	w.WriteBool(false)
	for _, v := range []uint64{1, 2, 3, 4, 5, 6, 7} {
		w.WriteBits(v, 5)
	}
	for _, v := range []uint64{8, 9, 10, 11} {
		w.WriteBits(v, 4)
	}
	w.WriteU32(0, 0, 0, 1, 0, 2, 4, 18, 8)

	h, err := ReadHeader(bio.NewReaderBytes(w.Bytes()))
	require.NoError(t, err)
	want := WPParams{P1: 1, P2: 2, P3: [5]int64{3, 4, 5, 6, 7}, W: [4]uint32{8, 9, 10, 11}}
	require.Equal(t, want, h.WP)
	require.Empty(t, h.Transforms)
}
