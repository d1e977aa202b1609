package color

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"

	"github.com/mrjoshuak/go-jpegxl/internal/mct"
)

// HDRProfileName is the profile name written with the HDR profile.
const HDRProfileName = "Rec2100PQ"

// hdrCurvePoints is the number of samples in the PQ tone curve.
const hdrCurvePoints = 4096

var iccD50 = [3]float64{0.9642, 1.0, 0.8249}

var hdrProfile struct {
	once       sync.Once
	raw        []byte
	compressed []byte
	err        error
}

func loadHDRProfile() {
	hdrProfile.raw, hdrProfile.err = buildHDRProfile()
	if hdrProfile.err != nil {
		return
	}
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		hdrProfile.err = err
		return
	}
	if _, err := zw.Write(hdrProfile.raw); err != nil {
		hdrProfile.err = err
		return
	}
	if hdrProfile.err = zw.Close(); hdrProfile.err == nil {
		hdrProfile.compressed = buf.Bytes()
	}
}

// HDRProfile returns the ICC profile describing BT.2100 primaries with the
// PQ transfer function. The slice must not be modified.
func HDRProfile() ([]byte, error) {
	hdrProfile.once.Do(loadHDRProfile)
	return hdrProfile.raw, hdrProfile.err
}

// HDRProfileCompressed returns HDRProfile as a zlib stream, ready for a
// PNG iCCP chunk. The slice must not be modified.
func HDRProfileCompressed() ([]byte, error) {
	hdrProfile.once.Do(loadHDRProfile)
	return hdrProfile.compressed, hdrProfile.err
}

// iccWriter assembles tag data with 4-byte alignment.
type iccWriter struct {
	tags []iccTag
	data bytes.Buffer
}

type iccTag struct {
	sig            string
	offset, length uint32
}

func s15Fixed16(v float64) uint32 {
	return uint32(int32(math.Round(v * 65536)))
}

// add appends a tag. A tag whose data equals the previous tag's shares it.
func (w *iccWriter) add(sig string, data []byte) {
	if n := len(w.tags); n > 0 {
		prev := w.tags[n-1]
		if bytes.Equal(w.data.Bytes()[prev.offset:prev.offset+prev.length], data) {
			w.tags = append(w.tags, iccTag{sig, prev.offset, prev.length})
			return
		}
	}
	for w.data.Len()%4 != 0 {
		w.data.WriteByte(0)
	}
	w.tags = append(w.tags, iccTag{sig, uint32(w.data.Len()), uint32(len(data))})
	w.data.Write(data)
}

func mluc(text string) []byte {
	units := utf16.Encode([]rune(text))
	b := []byte("mluc\x00\x00\x00\x00")
	b = binary.BigEndian.AppendUint32(b, 1)
	b = binary.BigEndian.AppendUint32(b, 12)
	b = append(b, "enUS"...)
	b = binary.BigEndian.AppendUint32(b, uint32(2*len(units)))
	b = binary.BigEndian.AppendUint32(b, 28)
	for _, u := range units {
		b = binary.BigEndian.AppendUint16(b, u)
	}
	return b
}

func xyzTag(v [3]float64) []byte {
	b := []byte("XYZ \x00\x00\x00\x00")
	for _, c := range v {
		b = binary.BigEndian.AppendUint32(b, s15Fixed16(c))
	}
	return b
}

func pqCurve() []byte {
	b := []byte("curv\x00\x00\x00\x00")
	b = binary.BigEndian.AppendUint32(b, hdrCurvePoints)
	pq := BT2100PQ.Transfer
	for i := 0; i < hdrCurvePoints; i++ {
		v := pq.ToLinear(float64(i) / (hdrCurvePoints - 1))
		b = binary.BigEndian.AppendUint16(b, uint16(math.Round(min(max(v, 0), 1)*65535)))
	}
	return b
}

// buildHDRProfile builds an ICC v4.4 display profile for BT.2100 PQ. The
// colorants are adapted to D50 and a cicp tag carries the enumerated
// encoding.
func buildHDRProfile() ([]byte, error) {
	toXYZ, err := RGBToXYZ(PrimariesBT2100, WhiteD65)
	if err != nil {
		return nil, err
	}
	chad, err := Adapt(WhiteD65, WhiteD50)
	if err != nil {
		return nil, err
	}
	colorants := chad.Mul(toXYZ)

	var w iccWriter
	w.add("desc", mluc("Rec. ITU-R BT.2100 PQ"))
	w.add("cprt", mluc("CC0"))
	w.add("wtpt", xyzTag(iccD50))
	sf32 := []byte("sf32\x00\x00\x00\x00")
	for _, row := range chad {
		for _, v := range row {
			sf32 = binary.BigEndian.AppendUint32(sf32, s15Fixed16(v))
		}
	}
	w.add("chad", sf32)
	for i, sig := range []string{"rXYZ", "gXYZ", "bXYZ"} {
		w.add(sig, xyzTag(column(colorants, i)))
	}
	curve := pqCurve()
	for _, sig := range []string{"rTRC", "gTRC", "bTRC"} {
		w.add(sig, curve)
	}
	w.add("cicp", []byte{'c', 'i', 'c', 'p', 0, 0, 0, 0, 9, 16, 0, 1})

	dataStart := 128 + 4 + 12*len(w.tags)
	size := dataStart + w.data.Len()

	out := make([]byte, 128, size)
	binary.BigEndian.PutUint32(out[0:], uint32(size))
	binary.BigEndian.PutUint32(out[8:], 0x04400000)
	copy(out[12:], "mntr")
	copy(out[16:], "RGB ")
	copy(out[20:], "XYZ ")
	for i, v := range []uint16{2024, 1, 1} {
		binary.BigEndian.PutUint16(out[24+2*i:], v)
	}
	copy(out[36:], "acsp")
	for i, v := range iccD50 {
		binary.BigEndian.PutUint32(out[68+4*i:], s15Fixed16(v))
	}

	out = binary.BigEndian.AppendUint32(out, uint32(len(w.tags)))
	for _, t := range w.tags {
		out = append(out, t.sig...)
		out = binary.BigEndian.AppendUint32(out, uint32(dataStart)+t.offset)
		out = binary.BigEndian.AppendUint32(out, t.length)
	}
	return append(out, w.data.Bytes()...), nil
}

func column(m mct.Matrix, c int) [3]float64 {
	return [3]float64{m[0][c], m[1][c], m[2][c]}
}
