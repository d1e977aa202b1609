// Package box implements the JPEG XL container: an ISO BMFF style sequence
// of boxes wrapping the codestream and its metadata.
//
// Each box has:
// - 4-byte length (1 for extended length, 0 for "to end of file")
// - 4-byte type code
// - Optional 8-byte extended length
// - Box contents
package box

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// Box type codes
const (
	TypeSignature  Type = 0x4A584C20 // "JXL " - Signature box
	TypeFileType   Type = 0x66747970 // "ftyp" - File type box
	TypeLevel      Type = 0x6A786C6C // "jxll" - Codestream level box
	TypeCodestream Type = 0x6A786C63 // "jxlc" - Whole codestream box
	TypePartial    Type = 0x6A786C70 // "jxlp" - Partial codestream box
	TypeIndex      Type = 0x6A786C69 // "jxli" - Frame index box
	TypeExif       Type = 0x45786966 // "Exif" - EXIF metadata box
	TypeXML        Type = 0x786D6C20 // "xml " - XMP metadata box
	TypeJUMBF      Type = 0x6A756D62 // "jumb" - JUMBF super-box
	TypeBrotli     Type = 0x62726F62 // "brob" - Brotli-compressed box
	TypeJPEGRecon  Type = 0x6A627264 // "jbrd" - JPEG reconstruction box

	// BrandJXL is the major brand and sole compatible brand of a JPEG XL file.
	BrandJXL Type = 0x6A786C20 // "jxl "
)

// Signature is the 12-byte signature box that starts every container.
var Signature = []byte{
	0x00, 0x00, 0x00, 0x0C, // Length = 12
	0x4A, 0x58, 0x4C, 0x20, // Type = "JXL "
	0x0D, 0x0A, 0x87, 0x0A, // Signature content
}

// maxBoxSize bounds the contents of a single box.
const maxBoxSize = 1 << 30

// Type represents a 4-byte box type code.
type Type uint32

// String returns the 4-character type code.
func (t Type) String() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(t))
	return string(b)
}

// Box represents a container box.
type Box struct {
	Type     Type
	Length   uint64 // Total box length including header
	Contents []byte // Box contents (excluding header)
}

// NewBox creates a box with its length derived from the contents.
func NewBox(t Type, contents []byte) *Box {
	length := uint64(8 + len(contents))
	if length > 0xFFFFFFFF {
		length += 8
	}
	return &Box{Type: t, Length: length, Contents: contents}
}

// Header returns the box header bytes.
func (b *Box) Header() []byte {
	if b.Length <= 0xFFFFFFFF {
		header := make([]byte, 8)
		binary.BigEndian.PutUint32(header[0:4], uint32(b.Length))
		binary.BigEndian.PutUint32(header[4:8], uint32(b.Type))
		return header
	}
	// Extended length
	header := make([]byte, 16)
	binary.BigEndian.PutUint32(header[0:4], 1)
	binary.BigEndian.PutUint32(header[4:8], uint32(b.Type))
	binary.BigEndian.PutUint64(header[8:16], b.Length)
	return header
}

// Bytes returns the complete box as bytes.
func (b *Box) Bytes() []byte {
	header := b.Header()
	result := make([]byte, len(header)+len(b.Contents))
	copy(result, header)
	copy(result[len(header):], b.Contents)
	return result
}

// Reader reads boxes from a stream.
type Reader struct {
	r      io.Reader
	offset int64
}

// NewReader creates a new box reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("box: reading %s: %w", what, bio.ErrEndOfStream)
	}
	return fmt.Errorf("box: reading %s: %w", what, err)
}

// ReadBox reads the next box from the stream. It returns io.EOF when the
// stream ends cleanly at a box boundary. A box with length 0 extends to
// the end of the stream.
func (r *Reader) ReadBox() (*Box, error) {
	header := make([]byte, 8)
	n, err := io.ReadFull(r.r, header)
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, io.EOF
		}
		return nil, truncated("box header", err)
	}
	r.offset += 8

	length := uint64(binary.BigEndian.Uint32(header[0:4]))
	boxType := Type(binary.BigEndian.Uint32(header[4:8]))

	headerLen := uint64(8)

	switch length {
	case 1:
		extLen := make([]byte, 8)
		if _, err := io.ReadFull(r.r, extLen); err != nil {
			return nil, truncated("extended length", err)
		}
		length = binary.BigEndian.Uint64(extLen)
		headerLen = 16
		r.offset += 8
	case 0:
		contents, err := io.ReadAll(io.LimitReader(r.r, maxBoxSize+1))
		if err != nil {
			return nil, truncated(boxType.String()+" contents", err)
		}
		if len(contents) > maxBoxSize {
			return nil, jxlerr.Malformed("box size", "exceeds limit")
		}
		r.offset += int64(len(contents))
		return &Box{Type: boxType, Length: 0, Contents: contents}, nil
	}

	if length < headerLen {
		return nil, jxlerr.Malformed("box length", length)
	}

	contentLen := length - headerLen
	if contentLen > maxBoxSize {
		return nil, jxlerr.Malformed(boxType.String()+" box size", contentLen)
	}

	contents := make([]byte, contentLen)
	if _, err := io.ReadFull(r.r, contents); err != nil {
		return nil, truncated(boxType.String()+" contents", err)
	}
	r.offset += int64(contentLen)

	return &Box{
		Type:     boxType,
		Length:   length,
		Contents: contents,
	}, nil
}

// Offset returns the current stream offset.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Writer writes boxes to a stream.
type Writer struct {
	w io.Writer
}

// NewWriter creates a new box writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteBox writes a box to the stream.
func (w *Writer) WriteBox(b *Box) error {
	_, err := w.w.Write(b.Bytes())
	return err
}

// WriteSignature writes the container signature box.
func (w *Writer) WriteSignature() error {
	_, err := w.w.Write(Signature)
	return err
}

// FileTypeBox represents the ftyp box.
type FileTypeBox struct {
	Brand         Type
	MinorVersion  uint32
	Compatibility []Type
}

// Parse parses the file type box.
func (b *FileTypeBox) Parse(data []byte) error {
	if len(data) < 8 || len(data)%4 != 0 {
		return jxlerr.Malformed("ftyp box length", len(data))
	}
	b.Brand = Type(binary.BigEndian.Uint32(data[0:4]))
	b.MinorVersion = binary.BigEndian.Uint32(data[4:8])

	numCompat := (len(data) - 8) / 4
	b.Compatibility = make([]Type, numCompat)
	for i := 0; i < numCompat; i++ {
		b.Compatibility[i] = Type(binary.BigEndian.Uint32(data[8+i*4:]))
	}
	return nil
}

// Bytes returns the box contents.
func (b *FileTypeBox) Bytes() []byte {
	data := make([]byte, 8+4*len(b.Compatibility))
	binary.BigEndian.PutUint32(data[0:4], uint32(b.Brand))
	binary.BigEndian.PutUint32(data[4:8], b.MinorVersion)
	for i, c := range b.Compatibility {
		binary.BigEndian.PutUint32(data[8+i*4:], uint32(c))
	}
	return data
}

// CreateFileTypeBox creates the ftyp box of a JPEG XL file.
func CreateFileTypeBox() *Box {
	ftyp := &FileTypeBox{
		Brand:         BrandJXL,
		MinorVersion:  0,
		Compatibility: []Type{BrandJXL},
	}
	return NewBox(TypeFileType, ftyp.Bytes())
}

// CreateCodestreamBox creates a jxlc box holding the whole codestream.
func CreateCodestreamBox(codestream []byte) *Box {
	return NewBox(TypeCodestream, codestream)
}

// CreatePartialCodestreamBoxes splits the codestream into n jxlp boxes.
func CreatePartialCodestreamBoxes(codestream []byte, n int) []*Box {
	if n < 1 {
		n = 1
	}
	boxes := make([]*Box, 0, n)
	chunk := (len(codestream) + n - 1) / n
	for i := 0; i < n; i++ {
		start := min(i*chunk, len(codestream))
		end := min(start+chunk, len(codestream))
		index := uint32(i)
		if i == n-1 {
			index |= partialLastFlag
		}
		contents := make([]byte, 4+end-start)
		binary.BigEndian.PutUint32(contents, index)
		copy(contents[4:], codestream[start:end])
		boxes = append(boxes, NewBox(TypePartial, contents))
	}
	return boxes
}

const partialLastFlag = 1 << 31

// Container holds the boxes of a JPEG XL file that the decoder consumes.
type Container struct {
	FileType   FileTypeBox
	Level      int // 5 unless a jxll box says otherwise
	Codestream []byte
	Exif       []byte
	XMP        []byte
	Boxes      []Type // Box types in file order
}

// IsContainer reports whether data starts with the container signature.
func IsContainer(data []byte) bool {
	return len(data) >= len(Signature) && bytes.Equal(data[:len(Signature)], Signature)
}

// Demux reads a whole container and reassembles its codestream, which is
// either one jxlc box or a sequence of jxlp boxes. A container that ends
// before its codestream is truncated.
func Demux(r io.Reader) (*Container, error) {
	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, truncated("signature", err)
	}
	if !bytes.Equal(sig, Signature) {
		return nil, jxlerr.Malformed("container signature", fmt.Sprintf("% x", sig))
	}

	c := &Container{Level: 5}
	br := NewReader(r)
	var (
		sawCodestream bool
		nextPartial   uint32
		partialDone   bool
	)
	for {
		start := int64(len(Signature)) + br.Offset()
		b, err := br.ReadBox()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("box at byte %d: %w", start, err)
		}
		if len(c.Boxes) == 0 && b.Type != TypeFileType {
			return nil, jxlerr.Malformed("first box", b.Type)
		}
		c.Boxes = append(c.Boxes, b.Type)

		switch b.Type {
		case TypeFileType:
			if len(c.Boxes) != 1 {
				return nil, jxlerr.Malformed("duplicate box", b.Type)
			}
			if err := c.FileType.Parse(b.Contents); err != nil {
				return nil, err
			}
			if c.FileType.Brand != BrandJXL {
				return nil, jxlerr.Malformed("ftyp brand", c.FileType.Brand)
			}
		case TypeLevel:
			if len(b.Contents) != 1 {
				return nil, jxlerr.Malformed("jxll box length", len(b.Contents))
			}
			c.Level = int(b.Contents[0])
			if c.Level != 5 && c.Level != 10 {
				return nil, jxlerr.Malformed("codestream level", c.Level)
			}
		case TypeCodestream:
			if sawCodestream {
				return nil, jxlerr.Malformed("duplicate box", b.Type)
			}
			sawCodestream = true
			c.Codestream = b.Contents
		case TypePartial:
			if len(b.Contents) < 4 {
				return nil, jxlerr.Malformed("jxlp box length", len(b.Contents))
			}
			if partialDone || (sawCodestream && nextPartial == 0) {
				return nil, jxlerr.Malformed("unexpected box", b.Type)
			}
			index := binary.BigEndian.Uint32(b.Contents)
			if index&^partialLastFlag != nextPartial {
				return nil, jxlerr.Malformed("jxlp index", index&^partialLastFlag)
			}
			sawCodestream = true
			nextPartial++
			partialDone = index&partialLastFlag != 0
			c.Codestream = append(c.Codestream, b.Contents[4:]...)
		case TypeExif:
			if len(b.Contents) < 4 {
				return nil, jxlerr.Malformed("Exif box length", len(b.Contents))
			}
			// The payload is preceded by the offset of the TIFF header.
			offset := binary.BigEndian.Uint32(b.Contents)
			if uint64(offset) > uint64(len(b.Contents)-4) {
				return nil, jxlerr.Malformed("Exif offset", offset)
			}
			c.Exif = b.Contents[4+offset:]
		case TypeXML:
			c.XMP = b.Contents
		}
	}

	if !sawCodestream {
		return nil, fmt.Errorf("box: no codestream box in %d boxes: %w", len(c.Boxes), bio.ErrEndOfStream)
	}
	if nextPartial > 0 && !partialDone {
		return nil, fmt.Errorf("box: last jxlp box missing: %w", bio.ErrEndOfStream)
	}
	return c, nil
}
