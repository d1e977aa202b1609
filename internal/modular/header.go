package modular

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/mct"
)

// TransformID identifies a modular transform.
type TransformID int

const (
	TransformRCT TransformID = iota
	TransformPalette
	TransformSqueeze
)

// String returns the string representation of a transform id.
func (t TransformID) String() string {
	switch t {
	case TransformRCT:
		return "RCT"
	case TransformPalette:
		return "Palette"
	case TransformSqueeze:
		return "Squeeze"
	default:
		return fmt.Sprintf("TransformID(%d)", int(t))
	}
}

// SqueezeParams describes one squeeze step.
type SqueezeParams struct {
	Horizontal bool
	InPlace    bool
	BeginC     int
	NumC       int
}

// Transform is one entry of a stream's transform list.
type Transform struct {
	ID       TransformID
	BeginC   int
	RCTType  int
	NumC     int
	NbColors int
	NbDeltas int
	DPred    Predictor
	Squeezes []SqueezeParams
}

// WPParams holds the weighted predictor parameters.
type WPParams struct {
	P1, P2 int64
	P3     [5]int64
	W      [4]uint32
}

// DefaultWPParams returns the parameters used when the bundle is all-default.
func DefaultWPParams() WPParams {
	return WPParams{
		P1: 16,
		P2: 10,
		P3: [5]int64{7, 7, 7, 0, 0},
		W:  [4]uint32{13, 12, 12, 12},
	}
}

// Header is the per-stream modular header.
type Header struct {
	UseGlobalTree bool
	WP            WPParams
	Transforms    []Transform
}

func readBeginC(r *bio.Reader) (int, error) {
	v, err := r.ReadU32(0, 3, 8, 6, 72, 10, 1096, 13)
	return int(v), err
}

func readWPParams(r *bio.Reader) (WPParams, error) {
	p := DefaultWPParams()
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return p, err
	}
	fields := []*int64{&p.P1, &p.P2, &p.P3[0], &p.P3[1], &p.P3[2], &p.P3[3], &p.P3[4]}
	for _, f := range fields {
		v, err := r.ReadBits(5)
		if err != nil {
			return p, err
		}
		*f = int64(v)
	}
	for i := range p.W {
		v, err := r.ReadBits(4)
		if err != nil {
			return p, err
		}
		p.W[i] = v
	}
	return p, nil
}

func readSqueezeParams(r *bio.Reader) (SqueezeParams, error) {
	var sp SqueezeParams
	var err error
	if sp.Horizontal, err = r.ReadBool(); err != nil {
		return sp, err
	}
	if sp.InPlace, err = r.ReadBool(); err != nil {
		return sp, err
	}
	if sp.BeginC, err = readBeginC(r); err != nil {
		return sp, err
	}
	n, err := r.ReadU32(1, 0, 2, 0, 3, 0, 4, 4)
	sp.NumC = int(n)
	return sp, err
}

func readTransform(r *bio.Reader) (Transform, error) {
	var t Transform
	id, err := r.ReadBits(2)
	if err != nil {
		return t, err
	}
	t.ID = TransformID(id)
	switch t.ID {
	case TransformRCT:
		if t.BeginC, err = readBeginC(r); err != nil {
			return t, err
		}
		v, err := r.ReadU32(6, 0, 0, 2, 2, 4, 10, 6)
		if err != nil {
			return t, err
		}
		if v >= mct.NumRCTTypes {
			return t, jxlerr.Malformed("rct type", v)
		}
		t.RCTType = int(v)
	case TransformPalette:
		if t.BeginC, err = readBeginC(r); err != nil {
			return t, err
		}
		numC, err := r.ReadU32(1, 0, 3, 0, 4, 0, 1, 13)
		if err != nil {
			return t, err
		}
		nbColors, err := r.ReadU32(0, 8, 256, 10, 1280, 12, 5376, 16)
		if err != nil {
			return t, err
		}
		nbDeltas, err := r.ReadU32(0, 0, 1, 8, 257, 10, 1281, 16)
		if err != nil {
			return t, err
		}
		pred, err := r.ReadBits(4)
		if err != nil {
			return t, err
		}
		if pred >= NumPredictors {
			return t, jxlerr.Malformed("palette predictor", pred)
		}
		t.NumC, t.NbColors, t.NbDeltas, t.DPred = int(numC), int(nbColors), int(nbDeltas), Predictor(pred)
	case TransformSqueeze:
		n, err := r.ReadU32(0, 0, 1, 4, 9, 6, 41, 8)
		if err != nil {
			return t, err
		}
		t.Squeezes = make([]SqueezeParams, n)
		for i := range t.Squeezes {
			if t.Squeezes[i], err = readSqueezeParams(r); err != nil {
				return t, err
			}
		}
	default:
		return t, jxlerr.Malformed("transform id", id)
	}
	return t, nil
}

// ReadHeader reads a modular stream header.
func ReadHeader(r *bio.Reader) (Header, error) {
	var h Header
	var err error
	if h.UseGlobalTree, err = r.ReadBool(); err != nil {
		return h, err
	}
	if h.WP, err = readWPParams(r); err != nil {
		return h, err
	}
	n, err := r.ReadU32(0, 0, 1, 0, 2, 4, 18, 8)
	if err != nil {
		return h, err
	}
	h.Transforms = make([]Transform, n)
	for i := range h.Transforms {
		if h.Transforms[i], err = readTransform(r); err != nil {
			return h, fmt.Errorf("transform %d: %w", i, err)
		}
	}
	return h, nil
}
