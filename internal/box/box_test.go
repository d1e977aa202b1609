package box

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeSignature, "JXL "},
		{TypeFileType, "ftyp"},
		{TypeLevel, "jxll"},
		{TypeCodestream, "jxlc"},
		{TypePartial, "jxlp"},
		{TypeIndex, "jxli"},
		{TypeExif, "Exif"},
		{TypeXML, "xml "},
		{TypeJUMBF, "jumb"},
		{TypeBrotli, "brob"},
		{TypeJPEGRecon, "jbrd"},
		{BrandJXL, "jxl "},
	}

	for _, tt := range tests {
		got := tt.typ.String()
		if got != tt.want {
			t.Errorf("Type(%08X).String() = %q, want %q", uint32(tt.typ), got, tt.want)
		}
	}
}

func TestBox_Header(t *testing.T) {
	b := NewBox(TypeFileType, make([]byte, 12))
	header := b.Header()
	if len(header) != 8 {
		t.Errorf("Header length = %d, want 8", len(header))
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length != 20 {
		t.Errorf("Header length field = %d, want 20", length)
	}

	typ := Type(binary.BigEndian.Uint32(header[4:8]))
	if typ != TypeFileType {
		t.Errorf("Header type = %v, want %v", typ, TypeFileType)
	}
}

func TestBox_Header_Extended(t *testing.T) {
	b := &Box{
		Type:     TypeCodestream,
		Length:   0x100000001,
		Contents: make([]byte, 100),
	}
	header := b.Header()
	if len(header) != 16 {
		t.Fatalf("Extended header length = %d, want 16", len(header))
	}
	if got := binary.BigEndian.Uint32(header[0:4]); got != 1 {
		t.Errorf("Extended header length field = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint64(header[8:16]); got != 0x100000001 {
		t.Errorf("Extended length = %#x, want 0x100000001", got)
	}
}

func TestReader_ReadBox(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(12))
	binary.Write(&buf, binary.BigEndian, uint32(TypeCodestream))
	buf.Write([]byte{0xFF, 0x0A, 0x03, 0x04})

	r := NewReader(&buf)
	box, err := r.ReadBox()
	if err != nil {
		t.Fatalf("ReadBox() error: %v", err)
	}
	if box.Type != TypeCodestream {
		t.Errorf("Type = %v, want %v", box.Type, TypeCodestream)
	}
	if box.Length != 12 {
		t.Errorf("Length = %d, want 12", box.Length)
	}
	if !bytes.Equal(box.Contents, []byte{0xFF, 0x0A, 0x03, 0x04}) {
		t.Errorf("Contents = % x", box.Contents)
	}
	if r.Offset() != 12 {
		t.Errorf("Offset() = %d, want 12", r.Offset())
	}
	if _, err := r.ReadBox(); err != io.EOF {
		t.Errorf("second ReadBox() error = %v, want EOF", err)
	}
}

func TestReader_ReadBox_Extended(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(1))
	binary.Write(&buf, binary.BigEndian, uint32(TypeCodestream))
	binary.Write(&buf, binary.BigEndian, uint64(24))
	buf.Write([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	r := NewReader(&buf)
	box, err := r.ReadBox()
	if err != nil {
		t.Fatalf("ReadBox() error: %v", err)
	}
	if box.Length != 24 || len(box.Contents) != 8 {
		t.Errorf("Length = %d, contents = %d, want 24, 8", box.Length, len(box.Contents))
	}
	if r.Offset() != 24 {
		t.Errorf("Offset() = %d, want 24", r.Offset())
	}
}

func TestReader_ReadBox_ToEndOfFile(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(TypeCodestream))
	buf.Write([]byte{1, 2, 3, 4, 5})

	box, err := NewReader(&buf).ReadBox()
	if err != nil {
		t.Fatalf("ReadBox() error: %v", err)
	}
	if !bytes.Equal(box.Contents, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("Contents = % x", box.Contents)
	}
}

func TestReader_ReadBox_Errors(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		class error
	}{
		{"truncated header", []byte{0, 0, 0}, bio.ErrEndOfStream},
		{"length below header", []byte{0, 0, 0, 4, 'j', 'x', 'l', 'c'}, jxlerr.ErrMalformed},
		{"truncated extended length", []byte{0, 0, 0, 1, 'j', 'x', 'l', 'c', 0, 0}, bio.ErrEndOfStream},
		{
			"extended length below header",
			[]byte{0, 0, 0, 1, 'j', 'x', 'l', 'c', 0, 0, 0, 0, 0, 0, 0, 12},
			jxlerr.ErrMalformed,
		},
		{"truncated contents", []byte{0, 0, 0, 20, 'j', 'x', 'l', 'c', 1, 2}, bio.ErrEndOfStream},
		{
			"oversized",
			[]byte{0, 0, 0, 1, 'j', 'x', 'l', 'c', 0, 0, 0, 1, 0, 0, 0, 0},
			jxlerr.ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data)).ReadBox()
			if !errors.Is(err, tt.class) {
				t.Errorf("ReadBox() error = %v, want %v", err, tt.class)
			}
		})
	}
}

func TestWriter_WriteSignature(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteSignature(); err != nil {
		t.Fatalf("WriteSignature() error: %v", err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x0C, 'J', 'X', 'L', ' ', 0x0D, 0x0A, 0x87, 0x0A}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("signature = % x, want % x", buf.Bytes(), want)
	}
	if !IsContainer(buf.Bytes()) {
		t.Error("IsContainer(signature) = false")
	}
	if IsContainer([]byte{0xFF, 0x0A}) {
		t.Error("IsContainer(bare codestream) = true")
	}
}

func TestFileTypeBox_Roundtrip(t *testing.T) {
	b := CreateFileTypeBox()
	var ftyp FileTypeBox
	if err := ftyp.Parse(b.Contents); err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if ftyp.Brand != BrandJXL || ftyp.MinorVersion != 0 {
		t.Errorf("ftyp = %+v", ftyp)
	}
	if len(ftyp.Compatibility) != 1 || ftyp.Compatibility[0] != BrandJXL {
		t.Errorf("Compatibility = %v", ftyp.Compatibility)
	}
	if !bytes.Equal(ftyp.Bytes(), b.Contents) {
		t.Errorf("Bytes() = % x, want % x", ftyp.Bytes(), b.Contents)
	}
}

func TestFileTypeBox_Parse_Invalid(t *testing.T) {
	for _, n := range []int{0, 4, 7, 10} {
		var ftyp FileTypeBox
		if err := ftyp.Parse(make([]byte, n)); !errors.Is(err, jxlerr.ErrMalformed) {
			t.Errorf("Parse(%d bytes) error = %v, want ErrMalformed", n, err)
		}
	}
}

// ============================================================================
// Demux
// ============================================================================

func buildContainer(boxes ...*Box) []byte {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteSignature()
	for _, b := range boxes {
		w.WriteBox(b)
	}
	return buf.Bytes()
}

func TestDemux_Codestream(t *testing.T) {
	cs := []byte{0xFF, 0x0A, 0xFA, 0x7F, 0x01}
	exif := append([]byte{0, 0, 0, 2, 0xAA, 0xBB}, []byte("II*\x00")...)
	data := buildContainer(
		CreateFileTypeBox(),
		NewBox(TypeLevel, []byte{10}),
		NewBox(TypeExif, exif),
		NewBox(TypeXML, []byte("<x/>")),
		CreateCodestreamBox(cs),
	)

	c, err := Demux(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Demux() error: %v", err)
	}
	if !bytes.Equal(c.Codestream, cs) {
		t.Errorf("Codestream = % x, want % x", c.Codestream, cs)
	}
	if c.Level != 10 {
		t.Errorf("Level = %d, want 10", c.Level)
	}
	if string(c.Exif) != "II*\x00" {
		t.Errorf("Exif = %q", c.Exif)
	}
	if string(c.XMP) != "<x/>" {
		t.Errorf("XMP = %q", c.XMP)
	}
	want := []Type{TypeFileType, TypeLevel, TypeExif, TypeXML, TypeCodestream}
	if len(c.Boxes) != len(want) {
		t.Fatalf("Boxes = %v, want %v", c.Boxes, want)
	}
	for i := range want {
		if c.Boxes[i] != want[i] {
			t.Errorf("Boxes[%d] = %v, want %v", i, c.Boxes[i], want[i])
		}
	}
}

func TestDemux_PartialCodestream(t *testing.T) {
	cs := make([]byte, 50)
	for i := range cs {
		cs[i] = byte(i * 7)
	}
	for _, n := range []int{1, 2, 3, 7} {
		boxes := append([]*Box{CreateFileTypeBox()}, CreatePartialCodestreamBoxes(cs, n)...)
		c, err := Demux(bytes.NewReader(buildContainer(boxes...)))
		if err != nil {
			t.Fatalf("Demux(%d parts) error: %v", n, err)
		}
		if !bytes.Equal(c.Codestream, cs) {
			t.Errorf("Demux(%d parts) codestream mismatch", n)
		}
		if c.Level != 5 {
			t.Errorf("Level = %d, want 5", c.Level)
		}
	}
}

func TestDemux_Errors(t *testing.T) {
	cs := []byte{0xFF, 0x0A, 0x00}
	parts := CreatePartialCodestreamBoxes(cs, 3)

	tests := []struct {
		name  string
		data  []byte
		class error
	}{
		{"empty", nil, bio.ErrEndOfStream},
		{"bare codestream", []byte{0xFF, 0x0A, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, jxlerr.ErrMalformed},
		{"no boxes", buildContainer(), bio.ErrEndOfStream},
		{"ftyp not first", buildContainer(CreateCodestreamBox(cs), CreateFileTypeBox()), jxlerr.ErrMalformed},
		{"no codestream", buildContainer(CreateFileTypeBox()), bio.ErrEndOfStream},
		{"signature prefix", Signature[:7], bio.ErrEndOfStream},
		{"wrong brand", buildContainer(NewBox(TypeFileType, (&FileTypeBox{Brand: 0x6A703220}).Bytes()), CreateCodestreamBox(cs)), jxlerr.ErrMalformed},
		{"duplicate jxlc", buildContainer(CreateFileTypeBox(), CreateCodestreamBox(cs), CreateCodestreamBox(cs)), jxlerr.ErrMalformed},
		{"jxlp after jxlc", buildContainer(CreateFileTypeBox(), CreateCodestreamBox(cs), parts[0]), jxlerr.ErrMalformed},
		{"jxlp out of order", buildContainer(CreateFileTypeBox(), parts[1], parts[0]), jxlerr.ErrMalformed},
		{"jxlp after last", buildContainer(CreateFileTypeBox(), parts[0], parts[1], parts[2], parts[2]), jxlerr.ErrMalformed},
		{"missing last jxlp", buildContainer(CreateFileTypeBox(), parts[0], parts[1]), bio.ErrEndOfStream},
		{"bad level", buildContainer(CreateFileTypeBox(), NewBox(TypeLevel, []byte{7}), CreateCodestreamBox(cs)), jxlerr.ErrMalformed},
		{"short exif", buildContainer(CreateFileTypeBox(), NewBox(TypeExif, []byte{0, 0}), CreateCodestreamBox(cs)), jxlerr.ErrMalformed},
		{"exif offset past end", buildContainer(CreateFileTypeBox(), NewBox(TypeExif, []byte{0, 0, 0, 9, 1}), CreateCodestreamBox(cs)), jxlerr.ErrMalformed},
		{"truncated box", buildContainer(CreateFileTypeBox(), CreateCodestreamBox(cs))[:30], bio.ErrEndOfStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Demux(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.class) {
				t.Errorf("Demux() error = %v, want %v", err, tt.class)
			}
		})
	}
}

func TestDemux_TruncatedPrefixes(t *testing.T) {
	data := buildContainer(CreateFileTypeBox(), NewBox(TypeLevel, []byte{5}), CreateCodestreamBox([]byte{0xFF, 0x0A, 1, 2}))
	for n := 0; n < len(data); n++ {
		_, err := Demux(bytes.NewReader(data[:n]))
		if !errors.Is(err, bio.ErrEndOfStream) {
			t.Errorf("Demux(%d of %d bytes) error = %v, want ErrEndOfStream", n, len(data), err)
		}
	}
	if _, err := Demux(bytes.NewReader(data)); err != nil {
		t.Errorf("Demux() error = %v", err)
	}

	// The jxlc box starts after the signature, ftyp and jxll boxes.
	_, err := Demux(bytes.NewReader(data[:len(data)-1]))
	if err == nil || !strings.Contains(err.Error(), "box at byte 41") {
		t.Errorf("Demux() error = %v, want the jxlc box offset", err)
	}
}

// FuzzDemux tests container parsing with arbitrary input.
func FuzzDemux(f *testing.F) {
	f.Add(buildContainer(CreateFileTypeBox(), CreateCodestreamBox([]byte{0xFF, 0x0A})))
	f.Add(buildContainer(append([]*Box{CreateFileTypeBox()}, CreatePartialCodestreamBoxes([]byte{1, 2, 3}, 2)...)...))
	f.Add(Signature)
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Demux(bytes.NewReader(data))
	})
}
