package frame

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/modular"
)

// numQuantTables is the number of dequantization table stream ids that sit
// between the LF streams and the pass group streams.
const numQuantTables = 17

// lfShift is the smallest channel shift owned by LF groups.
const lfShift = 3

// Rect is a rectangle in pixel coordinates.
type Rect struct {
	X0, Y0        int
	Width, Height int
}

// LFGroup is one LF tile: the part of every coarse channel (shift >= 3)
// that falls inside it.
type LFGroup struct {
	Index int

	// Width and Height are the tile size in LF samples, an eighth of its
	// pixel size rounded down.
	Width, Height int

	Stream *modular.Stream
}

// Pass is one progressive pass. It owns the channels whose shift lies in
// [MinShift, MaxShift) and which earlier phases left undecoded.
type Pass struct {
	Index    int
	MinShift int
	MaxShift int
	Replaced []int
}

// claimed returns the undecoded, non-empty image channels whose minimum
// shift lies in [lo, hi).
func claimed(channels []*modular.Channel, lo, hi int) []int {
	var out []int
	for i, ch := range channels {
		if ch.Decoded() || ch.Empty() || ch.IsMeta() {
			continue
		}
		m := min(ch.HShift, ch.VShift)
		if lo <= m && m < hi {
			out = append(out, i)
		}
	}
	return out
}

// markDecoded moves the given channels to decoded, failing if any of them
// was already decoded.
func markDecoded(channels []*modular.Channel, indices []int) error {
	for _, i := range indices {
		if err := channels[i].MarkDecoded(); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return nil
}

// decodeGroup decodes the part of the claimed global channels that lies in
// rect, then copies the samples into the global channels. It returns the
// group stream.
func decodeGroup(r *bio.Reader, global []*modular.Channel, indices []int, rect Rect, p modular.Params) (*modular.Stream, error) {
	var (
		local   []*modular.Channel
		targets []int
		origins [][2]int
	)
	for _, i := range indices {
		g := global[i]
		x0, y0 := rect.X0>>g.HShift, rect.Y0>>g.VShift
		w := min(rect.Width>>g.HShift, g.Width-x0)
		h := min(rect.Height>>g.VShift, g.Height-y0)
		if w <= 0 || h <= 0 {
			continue
		}
		local = append(local, modular.NewChannel(w, h, g.HShift, g.VShift))
		targets = append(targets, i)
		origins = append(origins, [2]int{x0, y0})
	}

	s, err := modular.NewStream(r, local, p)
	if err != nil {
		return nil, err
	}
	if err := s.Decode(r); err != nil {
		return nil, err
	}
	if err := s.InverseTransforms(); err != nil {
		return nil, err
	}
	out := s.Channels()
	if len(out) != len(targets) {
		return nil, fmt.Errorf("frame: group stream %d ended with %d channels, want %d: %w",
			p.ID, len(out), len(targets), jxlerr.ErrDecoderLogic)
	}
	for k, ch := range out {
		if err := global[targets[k]].Paste(ch, origins[k][0], origins[k][1]); err != nil {
			return nil, err
		}
	}
	return s, nil
}
