package codestream

import (
	"encoding/binary"
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/entropy"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

const (
	numICCContexts = 41
	iccHeaderSize  = 128

	// maxICCSize bounds both the encoded and the reconstructed profile.
	maxICCSize = 1 << 28
)

// ICC tag and type keywords referenced by the command stream.
var (
	iccTagStrings = [17]string{
		"cprt", "wtpt", "bkpt", "rXYZ", "gXYZ", "bXYZ", "kXYZ", "rTRC", "gTRC",
		"bTRC", "kTRC", "chad", "desc", "chrm", "dmnd", "dmdd", "lumi",
	}
	iccTypeStrings = [8]string{"XYZ ", "desc", "text", "mluc", "para", "curv", "sf32", "gbd "}
)

const (
	iccCommandInsert   = 1
	iccCommandShuffle2 = 2
	iccCommandShuffle4 = 3
	iccCommandPredict  = 4
	iccCommandXYZ      = 10
	iccCommandTypeBase = 16

	iccTagUnknown    = 1
	iccTagTRC        = 2
	iccTagXYZ        = 3
	iccTagStringBase = 4

	iccFlagOffset = 64
	iccFlagSize   = 128
)

func byteKind1(b byte) int {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z':
		return 0
	case '0' <= b && b <= '9', b == '.', b == ',':
		return 1
	case b == 0:
		return 2
	case b == 1:
		return 3
	case b < 16:
		return 4
	case b == 255:
		return 6
	case b > 240:
		return 5
	default:
		return 7
	}
}

func byteKind2(b byte) int {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z':
		return 0
	case '0' <= b && b <= '9', b == '.', b == ',':
		return 1
	case b < 16:
		return 2
	case b > 240:
		return 3
	default:
		return 4
	}
}

func iccContext(i int, b1, b2 byte) int {
	if i <= 128 {
		return 0
	}
	return 1 + byteKind1(b1) + 8*byteKind2(b2)
}

// ReadICC reads the entropy-coded ICC stream and reconstructs the profile.
func ReadICC(r *bio.Reader) ([]byte, error) {
	encSize, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	if encSize == 0 || encSize > maxICCSize {
		return nil, jxlerr.Malformed("encoded icc size", encSize)
	}
	s, err := entropy.NewStream(r, numICCContexts)
	if err != nil {
		return nil, fmt.Errorf("icc stream: %w", err)
	}
	enc := make([]byte, encSize)
	for i := range enc {
		var b1, b2 byte
		if i > 0 {
			b1 = enc[i-1]
		}
		if i > 1 {
			b2 = enc[i-2]
		}
		v, err := s.ReadSymbol(r, iccContext(i, b1, b2))
		if err != nil {
			return nil, err
		}
		enc[i] = byte(v)
	}
	if err := s.ValidateFinalState(r); err != nil {
		return nil, fmt.Errorf("icc stream: %w", err)
	}
	return UnpredictICC(enc)
}

// iccStream is a cursor over the encoded profile.
type iccStream struct {
	data []byte
	pos  int
	end  int
}

func (s *iccStream) varint() (uint64, error) {
	var v uint64
	for i := 0; i < 10; i++ {
		if s.pos >= s.end {
			return 0, jxlerr.Malformed("icc varint", "out of bounds")
		}
		b := s.data[s.pos]
		s.pos++
		v |= uint64(b&127) << (7 * i)
		if b&128 == 0 {
			return v, nil
		}
	}
	return 0, jxlerr.Malformed("icc varint", "too long")
}

func (s *iccStream) byte() (byte, error) {
	if s.pos >= s.end {
		return 0, jxlerr.Malformed("icc command", "out of bounds")
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

func (s *iccStream) take(n uint64) ([]byte, error) {
	if n > uint64(s.end-s.pos) {
		return nil, jxlerr.Malformed("icc data", "out of bounds")
	}
	out := s.data[s.pos : s.pos+int(n)]
	s.pos += int(n)
	return out, nil
}

func initialICCHeader() []byte {
	h := make([]byte, iccHeaderSize)
	h[8] = 4
	copy(h[12:], "mntr")
	copy(h[16:], "RGB ")
	copy(h[20:], "XYZ ")
	copy(h[36:], "acsp")
	copy(h[68:], []byte{0, 0, 246, 214, 0, 1, 0, 0, 0, 0, 211, 45})
	return h
}

// predictICCHeader refines the header prediction for position pos using the
// bytes already reconstructed.
func predictICCHeader(icc, header []byte, pos int) {
	switch {
	case pos == 8 && len(icc) >= 8:
		copy(header[80:84], icc[4:8])
	case pos == 41 && len(icc) >= 41:
		switch icc[40] {
		case 'A':
			copy(header[41:44], "PPL")
		case 'M':
			copy(header[41:44], "SFT")
		}
	case pos == 42 && len(icc) >= 42:
		if icc[40] == 'S' && icc[41] == 'G' {
			copy(header[42:44], "I ")
		}
		if icc[40] == 'S' && icc[41] == 'U' {
			copy(header[42:44], "NW")
		}
	}
}

// shuffle transposes data viewed as width columns.
func shuffle(data []byte, width int) {
	out := make([]byte, len(data))
	height := (len(data) + width - 1) / width
	j := 0
	for i := range out {
		out[i] = data[j]
		j += height
		if j >= len(data) {
			j = j%height + 1
		}
	}
	copy(data, out)
}

func predictValue(p1, p2, p3 uint32, order int) uint32 {
	switch order {
	case 0:
		return p1
	case 1:
		return 2*p1 - p2
	default:
		return 3*p1 - 3*p2 + p3
	}
}

func linearPredictICCValue(data []byte, start, i, stride, width, order int) byte {
	pos := start + i
	switch width {
	case 1:
		return byte(predictValue(uint32(data[pos-stride]), uint32(data[pos-2*stride]), uint32(data[pos-3*stride]), order))
	case 2:
		p := start + i&^1
		u16 := func(at int) uint32 { return uint32(binary.BigEndian.Uint16(data[at:])) }
		pred := uint16(predictValue(u16(p-stride), u16(p-2*stride), u16(p-3*stride), order))
		if i&1 != 0 {
			return byte(pred)
		}
		return byte(pred >> 8)
	default:
		p := start + i&^3
		u32 := func(at int) uint32 { return binary.BigEndian.Uint32(data[at:]) }
		pred := predictValue(u32(p-stride), u32(p-2*stride), u32(p-3*stride), order)
		return byte(pred >> (8 * (3 - i&3)))
	}
}

func appendUint32(out []byte, v uint64) ([]byte, error) {
	if v > 0xFFFFFFFF {
		return nil, jxlerr.Malformed("icc field", v)
	}
	return binary.BigEndian.AppendUint32(out, uint32(v)), nil
}

// UnpredictICC reverses the ICC profile prediction: a size-prefixed command
// stream followed by the data stream the commands consume.
func UnpredictICC(enc []byte) ([]byte, error) {
	data := &iccStream{data: enc, end: len(enc)}
	osize, err := data.varint()
	if err != nil {
		return nil, err
	}
	if osize > maxICCSize {
		return nil, jxlerr.Malformed("icc size", osize)
	}
	csize, err := data.varint()
	if err != nil {
		return nil, err
	}
	if csize > uint64(len(enc)-data.pos) {
		return nil, jxlerr.Malformed("icc command size", csize)
	}
	cmd := &iccStream{data: enc, pos: data.pos, end: data.pos + int(csize)}
	data.pos = cmd.end

	out := make([]byte, 0, min(osize, uint64(len(enc))*4))
	header := initialICCHeader()
	binary.BigEndian.PutUint32(header, uint32(osize))
	for i := 0; i <= iccHeaderSize; i++ {
		if uint64(len(out)) == osize {
			if cmd.pos != cmd.end {
				return nil, jxlerr.Malformed("icc commands", "not all used")
			}
			if data.pos != data.end {
				return nil, jxlerr.Malformed("icc data", "not all used")
			}
			return out, nil
		}
		if i == iccHeaderSize {
			break
		}
		predictICCHeader(out, header, i)
		b, err := data.byte()
		if err != nil {
			return nil, err
		}
		out = append(out, b+header[i])
	}
	if cmd.pos >= cmd.end {
		return nil, jxlerr.Malformed("icc commands", "out of bounds")
	}

	if out, err = unpredictTagList(cmd, data, out, osize); err != nil {
		return nil, err
	}
	if out, err = unpredictContent(cmd, data, out, osize); err != nil {
		return nil, err
	}
	if data.pos != data.end {
		return nil, jxlerr.Malformed("icc data", "not all used")
	}
	if uint64(len(out)) != osize {
		return nil, jxlerr.Malformed("icc size", len(out))
	}
	return out, nil
}

func isXYZTag(tag string) bool {
	switch tag {
	case "rXYZ", "gXYZ", "bXYZ", "kXYZ", "wtpt", "bkpt", "lumi":
		return true
	}
	return false
}

func unpredictTagList(cmd, data *iccStream, out []byte, osize uint64) ([]byte, error) {
	numTags, err := cmd.varint()
	if err != nil {
		return nil, err
	}
	if numTags == 0 {
		return out, nil
	}
	numTags--
	if out, err = appendUint32(out, numTags); err != nil {
		return nil, err
	}
	prevStart := uint64(iccHeaderSize) + numTags*12
	prevSize := uint64(0)
	for {
		if uint64(len(out)) > osize {
			return nil, jxlerr.Malformed("icc size", len(out))
		}
		if cmd.pos == cmd.end {
			return out, nil
		}
		command, _ := cmd.byte()
		tagCode := int(command & 63)
		var tag string
		switch {
		case tagCode == 0:
			return out, nil
		case tagCode == iccTagUnknown:
			b, err := data.take(4)
			if err != nil {
				return nil, err
			}
			tag = string(b)
		case tagCode == iccTagTRC:
			tag = "rTRC"
		case tagCode == iccTagXYZ:
			tag = "rXYZ"
		case tagCode-iccTagStringBase < len(iccTagStrings):
			tag = iccTagStrings[tagCode-iccTagStringBase]
		default:
			return nil, jxlerr.Malformed("icc tag code", tagCode)
		}
		out = append(out, tag...)

		tagSize := prevSize
		if isXYZTag(tag) {
			tagSize = 20
		}
		var tagStart uint64
		if command&iccFlagOffset != 0 {
			if tagStart, err = cmd.varint(); err != nil {
				return nil, err
			}
		} else {
			tagStart = prevStart + prevSize
		}
		if out, err = appendUint32(out, tagStart); err != nil {
			return nil, err
		}
		if command&iccFlagSize != 0 {
			if tagSize, err = cmd.varint(); err != nil {
				return nil, err
			}
		}
		if out, err = appendUint32(out, tagSize); err != nil {
			return nil, err
		}
		prevStart, prevSize = tagStart, tagSize

		if tagCode == iccTagTRC || tagCode == iccTagXYZ {
			names := [2]string{"gTRC", "bTRC"}
			if tagCode == iccTagXYZ {
				names = [2]string{"gXYZ", "bXYZ"}
			}
			start := prevStart + prevSize
			for k, name := range names {
				out = append(out, name...)
				if out, err = appendUint32(out, start+uint64(k)*tagSize); err != nil {
					return nil, err
				}
				if out, err = appendUint32(out, tagSize); err != nil {
					return nil, err
				}
			}
			prevStart = start + tagSize
		}
	}
}

func unpredictContent(cmd, data *iccStream, out []byte, osize uint64) ([]byte, error) {
	for cmd.pos < cmd.end {
		if uint64(len(out)) > osize {
			return nil, jxlerr.Malformed("icc size", len(out))
		}
		command, _ := cmd.byte()
		switch {
		case command == iccCommandInsert:
			n, err := cmd.varint()
			if err != nil {
				return nil, err
			}
			b, err := data.take(n)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		case command == iccCommandShuffle2 || command == iccCommandShuffle4:
			n, err := cmd.varint()
			if err != nil {
				return nil, err
			}
			b, err := data.take(n)
			if err != nil {
				return nil, err
			}
			shuffled := append([]byte(nil), b...)
			width := 2
			if command == iccCommandShuffle4 {
				width = 4
			}
			shuffle(shuffled, width)
			out = append(out, shuffled...)
		case command == iccCommandPredict:
			var err error
			if out, err = unpredictLinear(cmd, data, out); err != nil {
				return nil, err
			}
		case command == iccCommandXYZ:
			out = append(out, "XYZ "...)
			out = append(out, 0, 0, 0, 0)
			b, err := data.take(12)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		case command >= iccCommandTypeBase && int(command) < iccCommandTypeBase+len(iccTypeStrings):
			out = append(out, iccTypeStrings[command-iccCommandTypeBase]...)
			out = append(out, 0, 0, 0, 0)
		default:
			return nil, jxlerr.Malformed("icc command", command)
		}
	}
	return out, nil
}

func unpredictLinear(cmd, data *iccStream, out []byte) ([]byte, error) {
	flags, err := cmd.byte()
	if err != nil {
		return nil, err
	}
	width := int(flags&3) + 1
	if width == 3 {
		return nil, jxlerr.Malformed("icc predict width", width)
	}
	order := int(flags&12) >> 2
	if order == 3 {
		return nil, jxlerr.Malformed("icc predict order", order)
	}
	stride := uint64(width)
	if flags&16 != 0 {
		if stride, err = cmd.varint(); err != nil {
			return nil, err
		}
		if stride < uint64(width) {
			return nil, jxlerr.Malformed("icc predict stride", stride)
		}
	}
	if stride*4 >= uint64(len(out)) {
		return nil, jxlerr.Malformed("icc predict stride", stride)
	}
	n, err := cmd.varint()
	if err != nil {
		return nil, err
	}
	b, err := data.take(n)
	if err != nil {
		return nil, err
	}
	shuffled := append([]byte(nil), b...)
	if width > 1 {
		shuffle(shuffled, width)
	}
	start := len(out)
	for i, v := range shuffled {
		out = append(out, linearPredictICCValue(out, start, i, int(stride), width, order)+v)
	}
	return out, nil
}
