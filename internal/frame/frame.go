// Package frame decodes JPEG XL frames: the frame header, the table of
// contents and the walk over LF global data, LF groups and pass groups that
// fills the frame's modular channels.
//
// A frame moves through a fixed sequence of states:
//
//	HeaderRead -> LFGlobalDecoded -> LFGroupsDecoded -> PassesDecoded -> Complete
//
// Each step requires the previous one. Any error aborts the frame; nothing
// decoded so far is exposed.
package frame

import (
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/modular"
)

// State is the decode progress of a frame.
type State int

const (
	StateHeaderRead State = iota
	StateLFGlobalDecoded
	StateLFGroupsDecoded
	StatePassesDecoded
	StateComplete
)

// String returns the string representation of a frame state.
func (s State) String() string {
	switch s {
	case StateHeaderRead:
		return "HeaderRead"
	case StateLFGlobalDecoded:
		return "LFGlobalDecoded"
	case StateLFGroupsDecoded:
		return "LFGroupsDecoded"
	case StatePassesDecoded:
		return "PassesDecoded"
	case StateComplete:
		return "Complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures frame decoding.
type Options struct {
	// Logger receives Debug milestones. Nil discards them.
	Logger logrus.FieldLogger

	// MaxPixels bounds the frame area. Zero means no limit.
	MaxPixels int64
}

// Frame is one frame of a codestream and everything decoded from it.
type Frame struct {
	Index    int
	Header   *Header
	TOC      *TOC
	LFGlobal *LFGlobal
	LFGroups []*LFGroup
	Passes   []*Pass

	image *codestream.ImageHeader
	state State
	log   logrus.FieldLogger

	groupsX, groupsY     int
	lfGroupsX, lfGroupsY int
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// ReadFrame reads a frame header and its table of contents. The reader
// must be byte aligned; on success it is positioned at the first section.
func ReadFrame(r *bio.Reader, img *codestream.ImageHeader, index int, opts Options) (*Frame, error) {
	h, err := ReadHeader(r, img)
	if err != nil {
		return nil, fmt.Errorf("frame %d header: %w", index, err)
	}
	if err := h.checkSupported(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", index, err)
	}
	if opts.MaxPixels > 0 && int64(h.Width)*int64(h.Height) > opts.MaxPixels {
		return nil, fmt.Errorf("frame %d: %dx%d exceeds the pixel limit %d: %w",
			index, h.Width, h.Height, opts.MaxPixels, jxlerr.ErrOverflow)
	}

	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.Out = io.Discard
		log = discard
	}
	f := &Frame{
		Index:  index,
		Header: h,
		image:  img,
		log:    log.WithFields(logrus.Fields{"frame": index, "encoding": h.Encoding}),
	}
	w, hgt := int(h.Width), int(h.Height)
	f.groupsX, f.groupsY = ceilDiv(w, h.GroupDim()), ceilDiv(hgt, h.GroupDim())
	f.lfGroupsX, f.lfGroupsY = ceilDiv(w, h.LFGroupDim()), ceilDiv(hgt, h.LFGroupDim())

	if f.TOC, err = ReadTOC(r, f.numSections()); err != nil {
		return nil, fmt.Errorf("frame %d toc: %w", index, err)
	}
	f.log.WithFields(logrus.Fields{
		"type":      h.Type,
		"size":      fmt.Sprintf("%dx%d", w, hgt),
		"groups":    f.NumGroups(),
		"lf_groups": f.NumLFGroups(),
		"passes":    h.Passes.NumPasses,
		"sections":  len(f.TOC.Sizes),
	}).Debug("frame header read")
	return f, nil
}

// State returns the decode progress.
func (f *Frame) State() State { return f.state }

// NumGroups returns the number of pass groups.
func (f *Frame) NumGroups() int { return f.groupsX * f.groupsY }

// NumLFGroups returns the number of LF groups.
func (f *Frame) NumLFGroups() int { return f.lfGroupsX * f.lfGroupsY }

func (f *Frame) numSections() int {
	if f.NumGroups() == 1 && f.Header.Passes.NumPasses == 1 {
		return 1
	}
	return 2 + f.NumLFGroups() + f.NumGroups()*f.Header.Passes.NumPasses
}

// require fails unless the frame is in state s.
func (f *Frame) require(s State) error {
	if f.state != s {
		return fmt.Errorf("frame %d: in state %v, want %v: %w", f.Index, f.state, s, jxlerr.ErrDecoderLogic)
	}
	return nil
}

// advance moves from one state to the next.
func (f *Frame) advance(from, to State) error {
	if err := f.require(from); err != nil {
		return err
	}
	f.state = to
	return nil
}

// channelShapes returns the frame's channels before any transform: the
// colour channels, then one per extra channel.
func (f *Frame) channelShapes() ([]*modular.Channel, error) {
	w, h := int(f.Header.Width), int(f.Header.Height)
	numColor := 3
	if f.image.IsGray() && !f.image.XYBEncoded && !f.Header.DoYCbCr {
		numColor = 1
	}
	channels := make([]*modular.Channel, 0, numColor+len(f.image.ExtraChannels))
	for i := 0; i < numColor; i++ {
		channels = append(channels, modular.NewChannel(w, h, 0, 0))
	}
	for i, ec := range f.image.ExtraChannels {
		if ec.DimShift != 0 {
			return nil, jxlerr.Unsupported(fmt.Sprintf("extra channel %d dim shift", i), ec.DimShift)
		}
		channels = append(channels, modular.NewChannel(w, h, 0, 0))
	}
	return channels, nil
}

// treeLimit bounds the node count of the global tree.
func (f *Frame) treeLimit(numChannels int) int {
	area := int64(f.Header.Width) * int64(f.Header.Height) * int64(numChannels) / 16
	return int(min(int64(modular.MaxTreeNodes), 1024+area))
}

// sectionReaders returns the readers of every section in logical order and
// a function to call once decoding is done. A single-section frame is read
// straight from r; the function then skips whatever the decoder left.
func (f *Frame) sectionReaders(r *bio.Reader) ([]*bio.Reader, func() error, error) {
	if len(f.TOC.Sizes) > 1 {
		readers, err := f.TOC.sections(r)
		return readers, func() error { return nil }, err
	}
	start := r.BitsRead()
	end := start + uint64(f.TOC.Sizes[0])*8
	readers := make([]*bio.Reader, 2+f.NumLFGroups()+f.NumGroups()*f.Header.Passes.NumPasses)
	for i := range readers {
		readers[i] = r
	}
	finish := func() error {
		if pos := r.BitsRead(); pos > end {
			return jxlerr.Malformed("frame section overrun", fmt.Sprintf("%d bits", pos-end))
		}
		return r.SkipBits(end - r.BitsRead())
	}
	return readers, finish, nil
}

// Decode reads every section of the frame and runs the inverse modular
// transforms. On success the frame is Complete.
func (f *Frame) Decode(r *bio.Reader) error {
	sections, finish, err := f.sectionReaders(r)
	if err != nil {
		return fmt.Errorf("frame %d: %w", f.Index, err)
	}
	if err := f.decodeLFGlobal(sections[0]); err != nil {
		return fmt.Errorf("frame %d lf global: %w", f.Index, err)
	}
	if err := f.decodeLFGroups(sections[1 : 1+f.NumLFGroups()]); err != nil {
		return fmt.Errorf("frame %d: %w", f.Index, err)
	}
	// The HF global section is empty for modular frames.
	if err := f.decodePasses(sections[2+f.NumLFGroups():]); err != nil {
		return fmt.Errorf("frame %d: %w", f.Index, err)
	}
	if err := f.complete(); err != nil {
		return fmt.Errorf("frame %d: %w", f.Index, err)
	}
	return finish()
}

func (f *Frame) decodeLFGlobal(r *bio.Reader) error {
	if err := f.require(StateHeaderRead); err != nil {
		return err
	}
	channels, err := f.channelShapes()
	if err != nil {
		return err
	}
	g, err := readLFGlobal(r, f.Header, channels, f.treeLimit(len(channels)), int(f.image.BitDepth.BitsPerSample))
	if err != nil {
		return err
	}
	f.LFGlobal = g
	f.log.WithFields(logrus.Fields{
		"channels": len(g.Stream.Channels()),
		"meta":     g.Stream.NumMeta(),
	}).Debug("lf global decoded")
	return f.advance(StateHeaderRead, StateLFGlobalDecoded)
}

// streamParams returns the parameters of a group stream.
func (f *Frame) streamParams(id int) modular.Params {
	return modular.Params{
		ID:         id,
		GlobalTree: f.LFGlobal.Tree,
		BitDepth:   int(f.image.BitDepth.BitsPerSample),
	}
}

func (f *Frame) decodeLFGroups(sections []*bio.Reader) error {
	if err := f.require(StateLFGlobalDecoded); err != nil {
		return err
	}
	global := f.LFGlobal.Stream.Channels()
	replaced := claimed(global, lfShift, math.MaxInt)
	dim := f.Header.LFGroupDim()
	f.LFGroups = make([]*LFGroup, f.NumLFGroups())
	for i := range f.LFGroups {
		x0, y0 := (i%f.lfGroupsX)*dim, (i/f.lfGroupsX)*dim
		g := &LFGroup{
			Index:  i,
			Width:  min(dim, int(f.Header.Width)-x0) >> 3,
			Height: min(dim, int(f.Header.Height)-y0) >> 3,
		}
		var err error
		rect := Rect{X0: x0, Y0: y0, Width: dim, Height: dim}
		g.Stream, err = decodeGroup(sections[i], global, replaced, rect, f.streamParams(1+f.NumLFGroups()+i))
		if err != nil {
			return fmt.Errorf("lf group %d: %w", i, err)
		}
		f.LFGroups[i] = g
		f.log.WithField("lf_group", i).Debug("lf group decoded")
	}
	if err := markDecoded(global, replaced); err != nil {
		return err
	}
	return f.advance(StateLFGlobalDecoded, StateLFGroupsDecoded)
}

func (f *Frame) decodePasses(sections []*bio.Reader) error {
	if err := f.require(StateLFGroupsDecoded); err != nil {
		return err
	}
	global := f.LFGlobal.Stream.Channels()
	dim := f.Header.GroupDim()
	numGroups := f.NumGroups()
	f.Passes = make([]*Pass, f.Header.Passes.NumPasses)
	prevMin := 0
	for p := range f.Passes {
		lo, hi := f.Header.Passes.ShiftRange(p, prevMin)
		if lo > hi {
			return jxlerr.Malformed("pass shift range", fmt.Sprintf("pass %d: [%d, %d)", p, lo, hi))
		}
		pass := &Pass{Index: p, MinShift: lo, MaxShift: hi, Replaced: claimed(global, lo, hi)}
		for g := 0; g < numGroups; g++ {
			rect := Rect{X0: (g % f.groupsX) * dim, Y0: (g / f.groupsX) * dim, Width: dim, Height: dim}
			id := 1 + 3*f.NumLFGroups() + numQuantTables + numGroups*p + g
			if _, err := decodeGroup(sections[p*numGroups+g], global, pass.Replaced, rect, f.streamParams(id)); err != nil {
				return fmt.Errorf("pass %d group %d: %w", p, g, err)
			}
		}
		if err := markDecoded(global, pass.Replaced); err != nil {
			return fmt.Errorf("pass %d: %w", p, err)
		}
		f.Passes[p] = pass
		prevMin = lo
		f.log.WithFields(logrus.Fields{
			"pass":     p,
			"shift":    fmt.Sprintf("[%d, %d)", lo, hi),
			"replaced": len(pass.Replaced),
		}).Debug("pass decoded")
	}
	return f.advance(StateLFGroupsDecoded, StatePassesDecoded)
}

// complete checks that every channel was decoded and undoes the global
// transforms.
func (f *Frame) complete() error {
	if err := f.require(StatePassesDecoded); err != nil {
		return err
	}
	for i, ch := range f.LFGlobal.Stream.Channels() {
		if !ch.Decoded() && !ch.Empty() {
			return jxlerr.Malformed("channel never decoded", fmt.Sprintf("%d (%dx%d, shift %d,%d)",
				i, ch.Width, ch.Height, ch.HShift, ch.VShift))
		}
	}
	if err := f.LFGlobal.Stream.InverseTransforms(); err != nil {
		return err
	}
	return f.advance(StatePassesDecoded, StateComplete)
}

// Channels returns the frame's channels once it is Complete: the colour
// channels, then one per extra channel.
func (f *Frame) Channels() ([]*modular.Channel, error) {
	if f.state != StateComplete {
		return nil, fmt.Errorf("frame %d: channels requested in state %v: %w", f.Index, f.state, jxlerr.ErrDecoderLogic)
	}
	return f.LFGlobal.Stream.Channels(), nil
}
