package frame

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/modular"
)

// numNoiseLUT is the number of noise intensity entries.
const numNoiseLUT = 8

// LFGlobal is the first section of a frame: global feature parameters, the
// shared MA tree and the global modular stream.
type LFGlobal struct {
	// Noise holds the noise intensity table, or nil if the frame has no
	// noise. It is parsed but not synthesized.
	Noise []float32

	// LFDequant holds the X, Y and B dequantization multipliers applied to
	// XYB samples.
	LFDequant [3]float32

	// Tree is the global MA tree, or nil.
	Tree *modular.Tree

	// Stream is the global modular stream holding every channel of the
	// frame.
	Stream *modular.Stream
}

func readNoise(r *bio.Reader) ([]float32, error) {
	lut := make([]float32, numNoiseLUT)
	for i := range lut {
		v, err := r.ReadBits(10)
		if err != nil {
			return nil, err
		}
		lut[i] = float32(v) / 1024
	}
	return lut, nil
}

func readLFDequant(r *bio.Reader) ([3]float32, error) {
	m := [3]float32{1.0 / 4096, 1.0 / 512, 1.0 / 256}
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return m, err
	}
	for i := range m {
		v, err := r.ReadF16()
		if err != nil {
			return m, err
		}
		m[i] = v / 128
	}
	return m, nil
}

// readLFGlobal reads the LF global section. channels is the frame's full
// channel list and treeLimit bounds the global tree.
func readLFGlobal(r *bio.Reader, h *Header, channels []*modular.Channel, treeLimit, bitDepth int) (*LFGlobal, error) {
	g := &LFGlobal{}
	var err error
	if h.Flags&FlagNoise != 0 {
		if g.Noise, err = readNoise(r); err != nil {
			return nil, fmt.Errorf("noise: %w", err)
		}
	}
	if g.LFDequant, err = readLFDequant(r); err != nil {
		return nil, fmt.Errorf("lf dequantization: %w", err)
	}

	hasTree, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasTree {
		if g.Tree, err = modular.ReadTree(r, treeLimit); err != nil {
			return nil, fmt.Errorf("global tree: %w", err)
		}
	}
	g.Stream, err = modular.NewStream(r, channels, modular.Params{
		ID:          0,
		GlobalTree:  g.Tree,
		MaxChanSize: h.GroupDim(),
		BitDepth:    bitDepth,
	})
	if err != nil {
		return nil, err
	}
	if err := g.Stream.Decode(r); err != nil {
		return nil, err
	}
	return g, nil
}
