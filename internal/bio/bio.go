// Package bio provides bit-level I/O for JPEG XL codestreams.
//
// JPEG XL packs bits least-significant first: the first bit of a field is
// bit 0 of the current byte.
package bio

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// ErrEndOfStream is returned when a read needs more bits than the source holds.
var ErrEndOfStream = errors.New("jpegxl: unexpected end of bitstream")

const bufSize = 4096

// Reader provides LSB-first bit reading from a byte source.
type Reader struct {
	r io.Reader

	buf    []byte
	bufPos int
	bufEnd int
	eof    bool

	cache     uint64 // Pending bits, next bit in bit 0
	cacheBits uint   // Number of valid bits in cache (0-63)
	bitsRead  uint64
}

// NewReader creates a bit reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, bufSize)}
}

// NewReaderBytes creates a bit reader over an in-memory buffer.
func NewReaderBytes(data []byte) *Reader {
	return &Reader{buf: data, bufEnd: len(data), eof: true}
}

// fill reloads the byte buffer from the underlying reader.
func (r *Reader) fill() error {
	if r.eof {
		return ErrEndOfStream
	}
	for {
		n, err := r.r.Read(r.buf)
		r.bufPos, r.bufEnd = 0, n
		if n > 0 {
			if err == io.EOF {
				r.eof = true
			}
			return nil
		}
		if err == io.EOF {
			r.eof = true
			return ErrEndOfStream
		}
		if err != nil {
			return err
		}
	}
}

// nextByte returns the next source byte.
func (r *Reader) nextByte() (byte, error) {
	if r.bufPos >= r.bufEnd {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	b := r.buf[r.bufPos]
	r.bufPos++
	return b, nil
}

// ensure makes at least n (<= 56) bits available in the cache.
func (r *Reader) ensure(n uint) error {
	for r.cacheBits < n {
		b, err := r.nextByte()
		if err != nil {
			return err
		}
		r.cache |= uint64(b) << r.cacheBits
		r.cacheBits += 8
	}
	return nil
}

// ReadBits reads n bits (0-32).
func (r *Reader) ReadBits(n uint) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if n > 32 {
		return 0, fmt.Errorf("bio: cannot read %d bits at once: %w", n, jxlerr.ErrDecoderLogic)
	}
	if err := r.ensure(n); err != nil {
		return 0, err
	}
	v := uint32(r.cache & (1<<n - 1))
	r.cache >>= n
	r.cacheBits -= n
	r.bitsRead += uint64(n)
	return v, nil
}

// ReadBool reads a single bit as a boolean.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadU32 reads a 2-bit selector, then returns c[sel] plus u[sel] raw bits.
// The arguments are the four (constant, extra bits) pairs of the field.
func (r *Reader) ReadU32(c0 uint32, u0 uint, c1 uint32, u1 uint, c2 uint32, u2 uint, c3 uint32, u3 uint) (uint32, error) {
	sel, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	var c uint32
	var u uint
	switch sel {
	case 0:
		c, u = c0, u0
	case 1:
		c, u = c1, u1
	case 2:
		c, u = c2, u2
	default:
		c, u = c3, u3
	}
	v, err := r.ReadBits(u)
	if err != nil {
		return 0, err
	}
	return c + v, nil
}

// ReadU64 reads the variable-length 64-bit integer coding.
func (r *Reader) ReadU64() (uint64, error) {
	sel, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	switch sel {
	case 0:
		return 0, nil
	case 1:
		v, err := r.ReadBits(4)
		return 1 + uint64(v), err
	case 2:
		v, err := r.ReadBits(8)
		return 17 + uint64(v), err
	}
	low, err := r.ReadBits(12)
	if err != nil {
		return 0, err
	}
	value := uint64(low)
	shift := uint(12)
	for {
		more, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		if !more {
			break
		}
		if shift == 60 {
			v, err := r.ReadBits(4)
			if err != nil {
				return 0, err
			}
			value |= uint64(v) << shift
			break
		}
		v, err := r.ReadBits(8)
		if err != nil {
			return 0, err
		}
		value |= uint64(v) << shift
		shift += 8
	}
	return value, nil
}

// ReadU8 reads the small variable-length integer used by histograms:
// 0, or 1<<n plus n extra bits for n in 0..7.
func (r *Reader) ReadU8() (int, error) {
	nonZero, err := r.ReadBool()
	if err != nil || !nonZero {
		return 0, err
	}
	n, err := r.ReadBits(3)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 1, nil
	}
	v, err := r.ReadBits(uint(n))
	if err != nil {
		return 0, err
	}
	return int(v) + 1<<n, nil
}

// ReadEnum reads an enumerated value. Values of 64 and above are malformed.
func (r *Reader) ReadEnum() (int, error) {
	v, err := r.ReadU32(0, 0, 1, 0, 2, 4, 18, 6)
	if err != nil {
		return 0, err
	}
	if v >= 64 {
		return 0, jxlerr.Malformed("enum", v)
	}
	return int(v), nil
}

// ReadF16 reads an IEEE 754 half precision value. Infinities and NaNs are
// malformed.
func (r *Reader) ReadF16() (float32, error) {
	v, err := r.ReadBits(16)
	if err != nil {
		return 0, err
	}
	mantissa := v & 0x3FF
	exp := (v >> 10) & 0x1F
	sign := v >> 15
	if exp == 31 {
		return 0, jxlerr.Malformed("f16", fmt.Sprintf("%#04x", v))
	}
	var f float32
	if exp == 0 {
		f = float32(mantissa) / (1 << 24)
	} else {
		f = float32(math.Ldexp(1+float64(mantissa)/1024, int(exp)-15))
	}
	if sign != 0 {
		f = -f
	}
	return f, nil
}

// ZeroPadToByte skips to the next byte boundary. The skipped bits must be
// zero.
func (r *Reader) ZeroPadToByte() error {
	pad := uint((8 - r.bitsRead%8) % 8)
	v, err := r.ReadBits(pad)
	if err != nil {
		return err
	}
	if v != 0 {
		return jxlerr.Malformed("zero padding", v)
	}
	return nil
}

// SkipBits discards n bits.
func (r *Reader) SkipBits(n uint64) error {
	for n > 0 {
		step := uint(32)
		if n < 32 {
			step = uint(n)
		}
		if _, err := r.ReadBits(step); err != nil {
			return err
		}
		n -= uint64(step)
	}
	return nil
}

// ReadFull reads len(p) bytes. The reader must be byte aligned.
func (r *Reader) ReadFull(p []byte) error {
	if r.bitsRead%8 != 0 {
		return fmt.Errorf("bio: unaligned byte read at bit %d: %w", r.bitsRead, jxlerr.ErrDecoderLogic)
	}
	i := 0
	for ; i < len(p) && r.cacheBits >= 8; i++ {
		p[i] = byte(r.cache)
		r.cache >>= 8
		r.cacheBits -= 8
	}
	for i < len(p) {
		if r.bufPos >= r.bufEnd {
			if err := r.fill(); err != nil {
				r.bitsRead += uint64(i) * 8
				return err
			}
		}
		n := copy(p[i:], r.buf[r.bufPos:r.bufEnd])
		r.bufPos += n
		i += n
	}
	r.bitsRead += uint64(len(p)) * 8
	return nil
}

// BitsRead returns the number of bits consumed so far.
func (r *Reader) BitsRead() uint64 {
	return r.bitsRead
}

// Writer assembles an LSB-first bitstream in memory.
type Writer struct {
	buf   []byte
	cache uint64
	cnt   uint // Number of valid bits in cache (0-7 between calls)
}

// NewWriter creates a new bit writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteBits writes the lowest n bits (0-56) of val.
func (w *Writer) WriteBits(val uint64, n uint) {
	if n == 0 {
		return
	}
	w.cache |= (val & (1<<n - 1)) << w.cnt
	w.cnt += n
	for w.cnt >= 8 {
		w.buf = append(w.buf, byte(w.cache))
		w.cache >>= 8
		w.cnt -= 8
	}
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteU32 writes v using the first of the four (constant, extra bits)
// pairs that can represent it, and reports whether one could.
func (w *Writer) WriteU32(v uint32, c0 uint32, u0 uint, c1 uint32, u1 uint, c2 uint32, u2 uint, c3 uint32, u3 uint) bool {
	cs := [4]uint32{c0, c1, c2, c3}
	us := [4]uint{u0, u1, u2, u3}
	for sel := range cs {
		if v >= cs[sel] && uint64(v-cs[sel]) < 1<<us[sel] {
			w.WriteBits(uint64(sel), 2)
			w.WriteBits(uint64(v-cs[sel]), us[sel])
			return true
		}
	}
	return false
}

// WriteU64 writes v with the variable-length 64-bit integer coding.
func (w *Writer) WriteU64(v uint64) {
	switch {
	case v == 0:
		w.WriteBits(0, 2)
	case v <= 16:
		w.WriteBits(1, 2)
		w.WriteBits(v-1, 4)
	case v <= 272:
		w.WriteBits(2, 2)
		w.WriteBits(v-17, 8)
	default:
		w.WriteBits(3, 2)
		w.WriteBits(v&0xFFF, 12)
		v >>= 12
		shift := uint(12)
		for v != 0 {
			w.WriteBool(true)
			if shift == 60 {
				w.WriteBits(v&0xF, 4)
				return
			}
			w.WriteBits(v&0xFF, 8)
			v >>= 8
			shift += 8
		}
		w.WriteBool(false)
	}
}

// WriteU8 writes v (0-255) with the small variable-length integer coding.
func (w *Writer) WriteU8(v int) {
	if v == 0 {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	n := uint(0)
	for v>>(n+1) != 0 {
		n++
	}
	w.WriteBits(uint64(n), 3)
	w.WriteBits(uint64(v-1<<n), n)
}

// WriteEnum writes an enumerated value below 64.
func (w *Writer) WriteEnum(v int) {
	w.WriteU32(uint32(v), 0, 0, 1, 0, 2, 4, 18, 6)
}

// ZeroPadToByte pads with zero bits to the next byte boundary.
func (w *Writer) ZeroPadToByte() {
	if w.cnt > 0 {
		w.WriteBits(0, 8-w.cnt)
	}
}

// Bytes pads to a byte boundary and returns the assembled stream.
func (w *Writer) Bytes() []byte {
	w.ZeroPadToByte()
	return w.buf
}

// BitsWritten returns the number of bits written so far.
func (w *Writer) BitsWritten() uint64 {
	return uint64(len(w.buf))*8 + uint64(w.cnt)
}

// UnpackSigned maps the zig-zag coded unsigned v back to a signed value.
func UnpackSigned(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}
