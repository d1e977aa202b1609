// Package modular decodes modular image streams: lists of integer channels
// predicted sample by sample under a meta-adaptive context tree, followed by
// reversible transforms.
package modular

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/entropy"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// Params describe what a stream needs from the frame that owns it.
type Params struct {
	// ID is the stream index, visible to the tree as property 1.
	ID int

	// GlobalTree is the frame's shared tree, or nil if it has none.
	GlobalTree *Tree

	// MaxChanSize stops decoding at the first image channel wider or taller
	// than this. Zero decodes every channel.
	MaxChanSize int

	// BitDepth is the sample depth used by implicit palette colours.
	BitDepth int
}

// Stream is one modular stream: a header, the channel list it implies and
// the samples decoded into it.
type Stream struct {
	params Params
	header Header
	img    image
}

// NewStream reads the stream header and applies the transform metadata to
// channels, which the stream takes ownership of. A stream without channels
// has no header and reads nothing.
func NewStream(r *bio.Reader, channels []*Channel, p Params) (*Stream, error) {
	s := &Stream{params: p, img: image{channels: channels}}
	if len(channels) == 0 {
		return s, nil
	}
	var err error
	if s.header, err = ReadHeader(r); err != nil {
		return nil, fmt.Errorf("modular stream %d header: %w", p.ID, err)
	}
	if s.header.UseGlobalTree && p.GlobalTree == nil {
		return nil, jxlerr.Malformed("global tree", "absent")
	}
	for i := range s.header.Transforms {
		if err := applyMeta(&s.img, &s.header.Transforms[i]); err != nil {
			return nil, fmt.Errorf("modular stream %d transform %d (%v): %w",
				p.ID, i, s.header.Transforms[i].ID, err)
		}
	}
	return s, nil
}

// Header returns the stream header.
func (s *Stream) Header() *Header { return &s.header }

// Channels returns the current channel list, meta channels first.
func (s *Stream) Channels() []*Channel { return s.img.channels }

// NumMeta returns the number of meta channels.
func (s *Stream) NumMeta() int { return s.img.nbMeta }

// Decode reads the samples of every channel up to the size limit, skipping
// empty channels, and marks them decoded.
func (s *Stream) Decode(r *bio.Reader) error {
	var todo []int
	distMultiplier := 0
	treeLimit := 1024
	for i, ch := range s.img.channels {
		if i >= s.img.nbMeta && s.params.MaxChanSize > 0 &&
			(ch.Width > s.params.MaxChanSize || ch.Height > s.params.MaxChanSize) {
			break
		}
		if ch.Empty() {
			continue
		}
		todo = append(todo, i)
		distMultiplier = max(distMultiplier, ch.Width)
		if treeLimit < MaxTreeNodes {
			treeLimit += ch.Width * ch.Height
		}
	}
	if len(todo) == 0 {
		return nil
	}

	tree := s.params.GlobalTree
	if !s.header.UseGlobalTree {
		var err error
		if tree, err = ReadTree(r, treeLimit); err != nil {
			return fmt.Errorf("modular stream %d tree: %w", s.params.ID, err)
		}
	}
	code := tree.code.Fork()
	for _, i := range todo {
		if err := s.decodeChannel(r, tree, code, i, distMultiplier); err != nil {
			return fmt.Errorf("modular stream %d channel %d: %w", s.params.ID, i, err)
		}
		if err := s.img.channels[i].MarkDecoded(); err != nil {
			return err
		}
	}
	if err := code.ValidateFinalState(r); err != nil {
		return fmt.Errorf("modular stream %d: %w", s.params.ID, err)
	}
	return nil
}

// referenceChannels returns the earlier channels with the same shape as
// channel i, nearest first, up to the number the tree can address.
func (s *Stream) referenceChannels(tree *Tree, i int) []*Channel {
	n := (tree.numProperties() - numStaticProperties + 3) / 4
	if n == 0 {
		return nil
	}
	ch := s.img.channels[i]
	var refs []*Channel
	for j := i - 1; j >= 0 && len(refs) < n; j-- {
		if sameShape(s.img.channels[j], ch) {
			refs = append(refs, s.img.channels[j])
		}
	}
	return refs
}

func (s *Stream) decodeChannel(r *bio.Reader, tree *Tree, code *entropy.Stream, i, distMultiplier int) error {
	ch := s.img.channels[i]
	if err := ch.Alloc(); err != nil {
		return err
	}
	var wp *weightedPredictor
	if tree.usesWP {
		wp = newWeightedPredictor(s.header.WP, ch.Width)
	}
	refs := s.referenceChannels(tree, i)
	props := make([]int32, tree.numProperties()+4*len(refs))
	props[0] = int32(i)
	props[1] = int32(s.params.ID)
	single := tree.singleLeaf()

	var nb neighbours
	for y := 0; y < ch.Height; y++ {
		props[2] = int32(y)
		props[9] = 0
		row := ch.Row(y)
		for x := 0; x < ch.Width; x++ {
			nb.load(ch, x, y)
			var wpPred, maxErr int64
			if wp != nil {
				wpPred, maxErr = wp.predict(x, y, &nb)
			}
			leaf := &tree.nodes[0]
			if !single {
				fillProperties(props, &nb, x, maxErr)
				fillReferenceProperties(props[numStaticProperties:], refs, x, y)
				leaf = tree.leaf(props)
			}
			sym, err := code.ReadSymbolWithMultiplier(r, leaf.context, distMultiplier)
			if err != nil {
				return err
			}
			v := int32(nb.predict(leaf.predictor, wpPred) + leaf.offset + int64(bio.UnpackSigned(sym))*leaf.multiplier)
			row[x] = v
			if wp != nil {
				wp.update(x, y, int64(v))
			}
		}
	}
	return nil
}

// fillProperties sets the position and neighbourhood properties 3-15.
func fillProperties(props []int32, nb *neighbours, x int, maxErr int64) {
	props[3] = int32(x)
	props[4] = int32(abs64(nb.n))
	props[5] = int32(abs64(nb.w))
	props[6] = int32(nb.n)
	props[7] = int32(nb.w)
	props[8] = int32(nb.w - int64(props[9]))
	props[9] = int32(nb.w + nb.n - nb.nw)
	props[10] = int32(nb.w - nb.nw)
	props[11] = int32(nb.nw - nb.n)
	props[12] = int32(nb.n - nb.ne)
	props[13] = int32(nb.n - nb.nn)
	props[14] = int32(nb.w - nb.ww)
	props[propWPMaxError] = int32(maxErr)
}

// fillReferenceProperties sets four properties per reference channel from
// its sample at (x, y) and that sample's gradient residual.
func fillReferenceProperties(props []int32, refs []*Channel, x, y int) {
	for k, ref := range refs {
		v := int64(ref.Get(x, y))
		var left int64
		if x > 0 {
			left = int64(ref.Get(x-1, y))
		}
		top, topLeft := left, left
		if y > 0 {
			top = int64(ref.Get(x, y-1))
			if x > 0 {
				topLeft = int64(ref.Get(x-1, y-1))
			}
		}
		d := v - clampedGradient(left, top, topLeft)
		p := props[4*k:]
		p[0] = int32(abs64(v))
		p[1] = int32(v)
		p[2] = int32(abs64(d))
		p[3] = int32(d)
	}
}

// InverseTransforms undoes the stream's transforms in reverse order,
// leaving the channel list the stream was created with.
func (s *Stream) InverseTransforms() error {
	for i := len(s.header.Transforms) - 1; i >= 0; i-- {
		t := &s.header.Transforms[i]
		if err := inverse(&s.img, t, s.params.BitDepth, s.header.WP); err != nil {
			return fmt.Errorf("modular stream %d inverse %v: %w", s.params.ID, t.ID, err)
		}
	}
	return nil
}
