// Package jxltest assembles small JPEG XL files bit by bit for tests.
// Every frame it writes is a modular frame whose channels share a single
// leaf of the MA tree, so the samples follow from the predictor and
// offset alone.
package jxltest

import (
	"bytes"
	"slices"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/box"
	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
	"github.com/mrjoshuak/go-jpegxl/internal/modular"
)

var testSyms = [4]uint32{0, 1, 2, 6}

// fourSymbolCode writes an entropy code for numDists contexts sharing one
// prefix code over four two-bit literal symbols and returns a function
// writing one of those symbols.
func fourSymbolCode(w *bio.Writer, numDists int, syms [4]uint32) func(uint32) {
	w.WriteBool(false) // no lz77
	if numDists > 1 {
		w.WriteBool(true) // simple cluster map
		w.WriteBits(0, 2) // everything in cluster 0
	}
	w.WriteBool(true) // prefix codes
	w.WriteBits(4, 4) // split 4
	w.WriteBits(0, 3)
	w.WriteBits(0, 3)
	w.WriteBool(true) // alphabet of 16
	w.WriteBits(3, 4)
	w.WriteBits(7, 3)
	w.WriteBits(1, 2) // simple code
	w.WriteBits(3, 2) // four symbols
	for _, s := range syms {
		w.WriteBits(uint64(s), 4)
	}
	w.WriteBool(false)

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

// writeLeafStream writes a modular stream whose tree is one leaf with the
// given predictor and packed offset, followed by n zero residuals.
func writeLeafStream(w *bio.Writer, pred modular.Predictor, offset uint32, n int) {
	w.WriteBool(false) // no global tree
	w.WriteBool(true)  // default weighted predictor
	w.WriteU32(0, 0, 0, 1, 0, 2, 4, 18, 8)
	tree := fourSymbolCode(w, 6, testSyms)
	tree(0) // leaf
	tree(uint32(pred))
	tree(offset)
	tree(0)
	tree(0)
	code := fourSymbolCode(w, 1, testSyms)
	for i := 0; i < n; i++ {
		code(0)
	}
}

func packSigned(v int32) uint32 {
	if v < 0 {
		return uint32(-2*v - 1)
	}
	return uint32(2 * v)
}

// ImageFields selects the image header written by WriteImageHeader.
type ImageFields struct {
	Width, Height uint32
	Gray, Alpha   bool
	Orientation   uint32
	Preview       bool // preview of the image size
	Animated      bool
}

// NumChannels counts colour and extra channels.
func (f ImageFields) NumChannels() int {
	n := 3
	if f.Gray {
		n = 1
	}
	if f.Alpha {
		n++
	}
	return n
}

// WriteImageHeader writes an 8-bit sRGB image header that is not XYB
// encoded, padded to the first frame.
func WriteImageHeader(w *bio.Writer, f ImageFields) {
	w.WriteBits(codestream.Signature, 16)
	w.WriteBool(false) // large size header
	w.WriteU32(f.Height, 1, 9, 1, 13, 1, 18, 1, 30)
	w.WriteBits(0, 3) // explicit width
	w.WriteU32(f.Width, 1, 9, 1, 13, 1, 18, 1, 30)

	w.WriteBool(false) // metadata not all default
	extra := f.Orientation > 1 || f.Preview || f.Animated
	w.WriteBool(extra)
	if extra {
		w.WriteBits(uint64(max(f.Orientation, 1)-1), 3)
		w.WriteBool(false) // no intrinsic size
		w.WriteBool(f.Preview)
		if f.Preview {
			w.WriteBool(false) // not a multiple of 8
			w.WriteU32(f.Height, 1, 6, 65, 8, 321, 10, 1345, 12)
			w.WriteBits(0, 3)
			w.WriteU32(f.Width, 1, 6, 65, 8, 321, 10, 1345, 12)
		}
		w.WriteBool(f.Animated)
		if f.Animated {
			w.WriteU32(100, 100, 0, 1000, 0, 1, 10, 1, 30)
			w.WriteU32(1, 1, 0, 1001, 0, 1, 8, 1, 10)
			w.WriteU32(0, 0, 0, 0, 3, 0, 16, 0, 32)
			w.WriteBool(false) // no timecodes
		}
	}
	w.WriteBool(false)                      // integer samples
	w.WriteU32(8, 8, 0, 10, 0, 12, 0, 1, 6) // 8 bits
	w.WriteBool(true)                       // modular 16 bit sufficient
	if f.Alpha {
		w.WriteU32(1, 0, 0, 1, 0, 2, 4, 1, 12)
		w.WriteBool(true) // default alpha
	} else {
		w.WriteU32(0, 0, 0, 1, 0, 2, 4, 1, 12)
	}
	w.WriteBool(false) // not XYB
	if f.Gray {
		w.WriteBool(false) // colour encoding not default
		w.WriteBool(false) // no ICC
		w.WriteEnum(int(codestream.ColorSpaceGray))
		w.WriteEnum(int(codestream.WhitePointD65))
		w.WriteBool(false) // no gamma
		w.WriteEnum(int(codestream.TransferSRGB))
		w.WriteEnum(int(codestream.IntentRelative))
	} else {
		w.WriteBool(true) // sRGB
	}
	if extra {
		w.WriteBool(true) // default tone mapping
	}
	w.WriteU64(0)     // extensions
	w.WriteBool(true) // default transform
	w.ZeroPadToByte()
}

// FrameFields selects the modular frame written by writeFrame. All
// channels of the frame share one leaf tree.
type FrameFields struct {
	RefOnly  bool
	X0, Y0   int32
	W, H     uint32 // zero for the full image
	NotLast  bool
	Duration uint32
	Pred     modular.Predictor
	Offset   uint32
	Gaborish bool
}

// WriteFrame writes a single-section frame of img.
func WriteFrame(w *bio.Writer, img ImageFields, f FrameFields) {
	fw, fh := img.Width, img.Height
	custom := f.W > 0
	if custom {
		fw, fh = f.W, f.H
	}
	s := bio.NewWriter()
	s.WriteBool(true) // default lf dequantization
	s.WriteBool(false)
	writeLeafStream(s, f.Pred, f.Offset, int(fw*fh)*img.NumChannels())
	section := s.Bytes()

	numEC := 0
	if img.Alpha {
		numEC = 1
	}
	w.WriteBool(false) // not all default
	if f.RefOnly {
		w.WriteU32(2, 0, 0, 1, 0, 2, 0, 3, 0)
	} else {
		w.WriteU32(0, 0, 0, 1, 0, 2, 0, 3, 0)
	}
	w.WriteU32(1, 0, 0, 1, 0, 2, 0, 3, 0) // modular
	w.WriteU64(0)                         // flags
	w.WriteBool(false)                    // no YCbCr
	for i, n := 0, 1+numEC; i < n; i++ {
		w.WriteU32(1, 1, 0, 2, 0, 4, 0, 8, 0) // upsampling
	}
	w.WriteBits(1, 2) // group shift
	if !f.RefOnly {
		w.WriteU32(1, 1, 0, 2, 0, 3, 0, 4, 3) // one pass
	}
	w.WriteBool(custom)
	if custom {
		if !f.RefOnly {
			w.WriteU32(packSigned(f.X0), 0, 8, 256, 11, 2304, 14, 18688, 30)
			w.WriteU32(packSigned(f.Y0), 0, 8, 256, 11, 2304, 14, 18688, 30)
		}
		w.WriteU32(f.W, 0, 8, 256, 11, 2304, 14, 18688, 30)
		w.WriteU32(f.H, 0, 8, 256, 11, 2304, 14, 18688, 30)
	}
	partial := custom && (f.X0 > 0 || f.Y0 > 0 ||
		int64(f.W)+int64(f.X0) < int64(img.Width) || int64(f.H)+int64(f.Y0) < int64(img.Height))
	isLast := !f.RefOnly && !f.NotLast
	if !f.RefOnly {
		for i, n := 0, 1+numEC; i < n; i++ {
			w.WriteU32(0, 0, 0, 1, 0, 2, 0, 3, 2) // replace
			if partial {
				w.WriteU32(0, 0, 0, 1, 0, 2, 0, 3, 0) // source
			}
		}
		if img.Animated {
			w.WriteU32(f.Duration, 0, 0, 1, 0, 0, 8, 0, 32)
		}
		w.WriteBool(isLast)
	}
	if !isLast {
		w.WriteBits(0, 2) // save as reference
	}
	if f.RefOnly || (!partial && !isLast && f.Duration == 0) {
		w.WriteBool(false) // save before colour transform
	}
	w.WriteU32(0, 0, 0, 0, 4, 16, 5, 48, 10) // no name
	w.WriteBool(false)                       // explicit restoration filter
	w.WriteBool(f.Gaborish)
	if f.Gaborish {
		w.WriteBool(false) // default weights
	}
	w.WriteBits(0, 2) // no epf
	w.WriteU64(0)     // restoration extensions
	w.WriteU64(0)     // extensions

	w.WriteBool(false) // toc not permuted
	w.ZeroPadToByte()
	w.WriteU32(uint32(len(section)), 0, 10, 1024, 14, 17408, 22, 4211712, 30)
	w.ZeroPadToByte()
	for _, b := range section {
		w.WriteBits(uint64(b), 8)
	}
}

// NorthFrame yields samples 1, 2 / 2, 3 on a 2x2 frame.
var NorthFrame = FrameFields{Pred: modular.PredictNorth, Offset: 2}

// Gray2x2 is a 2x2 gray image.
var Gray2x2 = ImageFields{Width: 2, Height: 2, Gray: true}

// Codestream returns an image header followed by frames.
func Codestream(img ImageFields, frames ...FrameFields) []byte {
	w := bio.NewWriter()
	WriteImageHeader(w, img)
	for _, f := range frames {
		WriteFrame(w, img, f)
	}
	return w.Bytes()
}

// Container wraps a codestream in a container with an ftyp box, then
// boxes, then one jxlc box.
func Container(cs []byte, boxes ...*box.Box) []byte {
	var buf bytes.Buffer
	w := box.NewWriter(&buf)
	w.WriteSignature()
	w.WriteBox(box.CreateFileTypeBox())
	for _, b := range boxes {
		w.WriteBox(b)
	}
	w.WriteBox(box.CreateCodestreamBox(cs))
	return buf.Bytes()
}

// PartialContainer wraps a codestream split across n jxlp boxes.
func PartialContainer(cs []byte, n int) []byte {
	var buf bytes.Buffer
	w := box.NewWriter(&buf)
	w.WriteSignature()
	w.WriteBox(box.CreateFileTypeBox())
	for _, b := range box.CreatePartialCodestreamBoxes(cs, n) {
		w.WriteBox(b)
	}
	return buf.Bytes()
}
