package frame

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// Type is the role of a frame.
type Type int

const (
	TypeRegular Type = iota
	TypeLF
	TypeReferenceOnly
	TypeSkipProgressive
)

// String returns the string representation of a frame type.
func (t Type) String() string {
	switch t {
	case TypeRegular:
		return "Regular"
	case TypeLF:
		return "LF"
	case TypeReferenceOnly:
		return "ReferenceOnly"
	case TypeSkipProgressive:
		return "SkipProgressive"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Encoding is the coding mode of a frame.
type Encoding int

const (
	EncodingVarDCT Encoding = iota
	EncodingModular
)

// String returns the string representation of a frame encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingVarDCT:
		return "VarDCT"
	case EncodingModular:
		return "Modular"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// Frame flags.
const (
	FlagNoise                   uint64 = 0x01
	FlagPatches                 uint64 = 0x02
	FlagSplines                 uint64 = 0x10
	FlagUseLFFrame              uint64 = 0x20
	FlagSkipAdaptiveLFSmoothing uint64 = 0x80
)

// BlendMode selects how a frame is combined with the canvas.
type BlendMode int

const (
	BlendReplace BlendMode = iota
	BlendAdd
	BlendBlend
	BlendAlphaWeightedAdd
	BlendMul
)

// String returns the string representation of a blend mode.
func (m BlendMode) String() string {
	switch m {
	case BlendReplace:
		return "Replace"
	case BlendAdd:
		return "Add"
	case BlendBlend:
		return "Blend"
	case BlendAlphaWeightedAdd:
		return "AlphaWeightedAdd"
	case BlendMul:
		return "Mul"
	default:
		return fmt.Sprintf("BlendMode(%d)", int(m))
	}
}

// BlendingInfo describes how one channel group is blended.
type BlendingInfo struct {
	Mode         BlendMode
	AlphaChannel uint32
	Clamp        bool
	Source       uint32
}

// RestorationFilter holds the loop filter parameters. Frames that enable
// gaborish or the edge preserving filter are rejected.
type RestorationFilter struct {
	Gab          bool
	GabWeights   [6]float32
	EPFIters     uint32
	EPFSharpLUT  [8]float32
	EPFChanScale [3]float32
	EPFSigmaMods [4]float32
	EPFModSigma  float32
	Extensions   uint64
}

// Header is the frame header bundle.
type Header struct {
	Type              Type
	Encoding          Encoding
	Flags             uint64
	DoYCbCr           bool
	ChromaSubsampling [3]uint32
	Upsampling        uint32
	ECUpsampling      []uint32
	GroupSizeShift    uint32
	XQMScale          uint32
	BQMScale          uint32
	Passes            PassesInfo
	LFLevel           uint32
	X0, Y0            int32
	Width, Height     uint32
	Blending          BlendingInfo
	ECBlending        []BlendingInfo
	Duration          uint32
	Timecode          uint32
	IsLast            bool
	SaveAsReference   uint32
	SaveBeforeCT      bool
	Name              string
	Restoration       RestorationFilter
	Extensions        uint64
}

// GroupDim returns the side length of a pass group in pixels.
func (h *Header) GroupDim() int { return 128 << h.GroupSizeShift }

// LFGroupDim returns the side length of an LF group in pixels.
func (h *Header) LFGroupDim() int { return h.GroupDim() << 3 }

func readBlendingInfo(r *bio.Reader, numEC int, partial bool) (BlendingInfo, error) {
	var b BlendingInfo
	mode, err := r.ReadU32(0, 0, 1, 0, 2, 0, 3, 2)
	if err != nil {
		return b, err
	}
	if mode > uint32(BlendMul) {
		return b, jxlerr.Malformed("blend mode", mode)
	}
	b.Mode = BlendMode(mode)
	if numEC > 0 && (b.Mode == BlendBlend || b.Mode == BlendAlphaWeightedAdd) {
		if b.AlphaChannel, err = r.ReadU32(0, 0, 1, 0, 2, 0, 3, 3); err != nil {
			return b, err
		}
		if b.AlphaChannel >= uint32(numEC) {
			return b, jxlerr.Malformed("blend alpha channel", b.AlphaChannel)
		}
	}
	if numEC > 0 && (b.Mode == BlendBlend || b.Mode == BlendAlphaWeightedAdd || b.Mode == BlendMul) {
		if b.Clamp, err = r.ReadBool(); err != nil {
			return b, err
		}
	}
	if b.Mode != BlendReplace || partial {
		if b.Source, err = r.ReadU32(0, 0, 1, 0, 2, 0, 3, 0); err != nil {
			return b, err
		}
	}
	return b, nil
}

func readF16s(r *bio.Reader, dst []float32) error {
	for i := range dst {
		v, err := r.ReadF16()
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func defaultRestorationFilter() RestorationFilter {
	f := RestorationFilter{
		Gab:          true,
		GabWeights:   [6]float32{0.115169525, 0.061248592, 0.115169525, 0.061248592, 0.115169525, 0.061248592},
		EPFIters:     1,
		EPFChanScale: [3]float32{40, 5, 3.5},
		EPFSigmaMods: [4]float32{0.46, 0.9, 6.5, 2.0 / 3},
		EPFModSigma:  1,
	}
	for i := range f.EPFSharpLUT {
		f.EPFSharpLUT[i] = float32(i) / 7
	}
	return f
}

func readRestorationFilter(r *bio.Reader, enc Encoding) (RestorationFilter, error) {
	f := defaultRestorationFilter()
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return f, err
	}
	if f.Gab, err = r.ReadBool(); err != nil {
		return f, err
	}
	if f.Gab {
		custom, err := r.ReadBool()
		if err != nil {
			return f, err
		}
		if custom {
			if err := readF16s(r, f.GabWeights[:]); err != nil {
				return f, err
			}
		}
	}
	if f.EPFIters, err = r.ReadBits(2); err != nil {
		return f, err
	}
	if f.EPFIters > 0 {
		if enc == EncodingVarDCT {
			custom, err := r.ReadBool()
			if err != nil {
				return f, err
			}
			if custom {
				if err := readF16s(r, f.EPFSharpLUT[:]); err != nil {
					return f, err
				}
			}
		}
		custom, err := r.ReadBool()
		if err != nil {
			return f, err
		}
		if custom {
			if err := readF16s(r, f.EPFChanScale[:]); err != nil {
				return f, err
			}
			// Two zero-flush thresholds follow; they only matter for VarDCT.
			if err := r.SkipBits(32); err != nil {
				return f, err
			}
		}
		if custom, err = r.ReadBool(); err != nil {
			return f, err
		}
		if custom {
			mods := f.EPFSigmaMods[:]
			if enc != EncodingVarDCT {
				mods = mods[1:]
			}
			if err := readF16s(r, mods); err != nil {
				return f, err
			}
		}
		if enc == EncodingModular {
			if f.EPFModSigma, err = r.ReadF16(); err != nil {
				return f, err
			}
		}
	}
	if f.Extensions, err = codestream.ReadExtensions(r); err != nil {
		return f, err
	}
	return f, nil
}

// upsamplingFactor reads U32(1, 2, 4, 8).
func upsamplingFactor(r *bio.Reader) (uint32, error) {
	return r.ReadU32(1, 0, 2, 0, 4, 0, 8, 0)
}

// frameCoord reads the crop origin and size field coding.
func frameCoord(r *bio.Reader) (uint32, error) {
	return r.ReadU32(0, 8, 256, 11, 2304, 14, 18688, 30)
}

// ReadHeader reads a frame header. The reader must be byte aligned.
func ReadHeader(r *bio.Reader, img *codestream.ImageHeader) (*Header, error) {
	numEC := len(img.ExtraChannels)
	h := &Header{
		Type:           TypeRegular,
		Encoding:       EncodingVarDCT,
		Upsampling:     1,
		ECUpsampling:   make([]uint32, numEC),
		GroupSizeShift: 1,
		XQMScale:       3,
		BQMScale:       2,
		Passes:         DefaultPassesInfo(),
		ECBlending:     make([]BlendingInfo, numEC),
		IsLast:         true,
		Width:          img.Width,
		Height:         img.Height,
		Restoration:    defaultRestorationFilter(),
	}
	for i := range h.ECUpsampling {
		h.ECUpsampling[i] = 1
	}

	allDefault, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if allDefault {
		return h, nil
	}

	t, err := r.ReadU32(0, 0, 1, 0, 2, 0, 3, 0)
	if err != nil {
		return nil, err
	}
	h.Type = Type(t)
	e, err := r.ReadU32(0, 0, 1, 0, 2, 0, 3, 0)
	if err != nil {
		return nil, err
	}
	if e > uint32(EncodingModular) {
		return nil, jxlerr.Malformed("frame encoding", e)
	}
	h.Encoding = Encoding(e)
	if h.Flags, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if !img.XYBEncoded {
		if h.DoYCbCr, err = r.ReadBool(); err != nil {
			return nil, err
		}
	}
	if h.Flags&FlagUseLFFrame == 0 {
		if h.DoYCbCr {
			for i := range h.ChromaSubsampling {
				if h.ChromaSubsampling[i], err = r.ReadBits(2); err != nil {
					return nil, err
				}
			}
		}
		if h.Upsampling, err = upsamplingFactor(r); err != nil {
			return nil, err
		}
		for i := range h.ECUpsampling {
			if h.ECUpsampling[i], err = upsamplingFactor(r); err != nil {
				return nil, err
			}
		}
	}
	if h.Encoding == EncodingModular {
		if h.GroupSizeShift, err = r.ReadBits(2); err != nil {
			return nil, err
		}
	}
	if h.Encoding == EncodingVarDCT && img.XYBEncoded {
		if h.XQMScale, err = r.ReadBits(3); err != nil {
			return nil, err
		}
		if h.BQMScale, err = r.ReadBits(3); err != nil {
			return nil, err
		}
	}
	if h.Type != TypeReferenceOnly {
		if h.Passes, err = ReadPassesInfo(r); err != nil {
			return nil, fmt.Errorf("passes: %w", err)
		}
	}
	if h.Type == TypeLF {
		if h.LFLevel, err = r.ReadU32(1, 0, 2, 0, 3, 0, 4, 0); err != nil {
			return nil, err
		}
	}

	custom, partial := false, false
	if h.Type != TypeLF {
		if custom, err = r.ReadBool(); err != nil {
			return nil, err
		}
	}
	if custom {
		if h.Type == TypeRegular || h.Type == TypeSkipProgressive {
			x0, err := frameCoord(r)
			if err != nil {
				return nil, err
			}
			y0, err := frameCoord(r)
			if err != nil {
				return nil, err
			}
			h.X0, h.Y0 = bio.UnpackSigned(x0), bio.UnpackSigned(y0)
		}
		if h.Width, err = frameCoord(r); err != nil {
			return nil, err
		}
		if h.Height, err = frameCoord(r); err != nil {
			return nil, err
		}
		if h.Width == 0 || h.Height == 0 || h.Width > codestream.MaxDimension || h.Height > codestream.MaxDimension {
			return nil, jxlerr.Malformed("frame size", fmt.Sprintf("%dx%d", h.Width, h.Height))
		}
	}

	if h.Type == TypeRegular || h.Type == TypeSkipProgressive {
		partial = custom && (h.X0 > 0 || h.Y0 > 0 ||
			int64(h.Width)+int64(h.X0) < int64(img.Width) ||
			int64(h.Height)+int64(h.Y0) < int64(img.Height))
		if h.Blending, err = readBlendingInfo(r, numEC, partial); err != nil {
			return nil, fmt.Errorf("blending: %w", err)
		}
		for i := range h.ECBlending {
			if h.ECBlending[i], err = readBlendingInfo(r, numEC, partial); err != nil {
				return nil, fmt.Errorf("extra channel %d blending: %w", i, err)
			}
		}
		if img.Animation != nil {
			if h.Duration, err = r.ReadU32(0, 0, 1, 0, 0, 8, 0, 32); err != nil {
				return nil, err
			}
			if img.Animation.HaveTimecodes {
				if h.Timecode, err = r.ReadBits(32); err != nil {
					return nil, err
				}
			}
		}
		if h.IsLast, err = r.ReadBool(); err != nil {
			return nil, err
		}
	} else {
		h.IsLast = false
	}

	if h.Type != TypeLF && !h.IsLast {
		if h.SaveAsReference, err = r.ReadBits(2); err != nil {
			return nil, err
		}
	}
	resetsCanvas := h.Blending.Mode == BlendReplace && !partial
	if h.Type == TypeReferenceOnly ||
		(resetsCanvas && !h.IsLast && (h.Duration == 0 || h.SaveAsReference != 0) && h.Type != TypeLF) {
		if h.SaveBeforeCT, err = r.ReadBool(); err != nil {
			return nil, err
		}
	}

	if h.Name, err = codestream.ReadName(r); err != nil {
		return nil, fmt.Errorf("frame name: %w", err)
	}
	if h.Restoration, err = readRestorationFilter(r, h.Encoding); err != nil {
		return nil, fmt.Errorf("restoration filter: %w", err)
	}
	if h.Extensions, err = codestream.ReadExtensions(r); err != nil {
		return nil, err
	}
	return h, nil
}

// checkSupported rejects the features this decoder does not reconstruct.
func (h *Header) checkSupported() error {
	switch {
	case h.Encoding == EncodingVarDCT:
		return jxlerr.Unsupported("frame encoding", h.Encoding)
	case h.Type == TypeLF:
		return jxlerr.Unsupported("frame type", h.Type)
	case h.Flags&FlagUseLFFrame != 0:
		return jxlerr.Unsupported("frame flags", "use lf frame")
	case h.Flags&FlagPatches != 0:
		return jxlerr.Unsupported("frame flags", "patches")
	case h.Flags&FlagSplines != 0:
		return jxlerr.Unsupported("frame flags", "splines")
	case h.Upsampling != 1:
		return jxlerr.Unsupported("upsampling", h.Upsampling)
	case h.Blending.Mode != BlendReplace:
		return jxlerr.Unsupported("blend mode", h.Blending.Mode)
	case h.Restoration.Gab:
		return jxlerr.Unsupported("restoration filter", "gaborish")
	case h.Restoration.EPFIters > 0:
		return jxlerr.Unsupported("epf iterations", h.Restoration.EPFIters)
	}
	for i, u := range h.ECUpsampling {
		if u != 1 {
			return jxlerr.Unsupported(fmt.Sprintf("extra channel %d upsampling", i), u)
		}
	}
	for i, b := range h.ECBlending {
		if b.Mode != BlendReplace {
			return jxlerr.Unsupported(fmt.Sprintf("extra channel %d blend mode", i), b.Mode)
		}
	}
	for _, s := range h.ChromaSubsampling {
		if s != 0 {
			return jxlerr.Unsupported("chroma subsampling", h.ChromaSubsampling)
		}
	}
	return nil
}
