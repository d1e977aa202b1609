package pngio

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// idatChunkSize is the payload size at which pixel data is split into a
// new IDAT chunk.
const idatChunkSize = 1 << 20

// chunkWriter writes length-prefixed, CRC-terminated chunks and keeps the
// first write error.
type chunkWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *chunkWriter) write(p []byte) {
	if cw.err != nil {
		return
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
}

// chunk writes one chunk. The CRC covers the type and the payload.
func (cw *chunkWriter) chunk(typ string, payload []byte) {
	var head [8]byte
	binary.BigEndian.PutUint32(head[:4], uint32(len(payload)))
	copy(head[4:], typ)
	crc := crc32.NewIEEE()
	crc.Write(head[4:])
	crc.Write(payload)

	cw.write(head[:])
	cw.write(payload)
	cw.write(binary.BigEndian.AppendUint32(nil, crc.Sum32()))
}

// idatWriter splits a compressed stream into IDAT chunks.
type idatWriter struct {
	cw    *chunkWriter
	buf   []byte
	wrote bool
}

func (w *idatWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for len(w.buf) >= idatChunkSize {
		w.cw.chunk("IDAT", w.buf[:idatChunkSize])
		w.buf = append(w.buf[:0], w.buf[idatChunkSize:]...)
		w.wrote = true
	}
	if w.cw.err != nil {
		return 0, w.cw.err
	}
	return len(p), nil
}

// flush writes the remaining data. An image always has at least one IDAT
// chunk.
func (w *idatWriter) flush() error {
	if len(w.buf) > 0 || !w.wrote {
		w.cw.chunk("IDAT", w.buf)
		w.buf = w.buf[:0]
	}
	return w.cw.err
}

// appendWriter appends everything written to b.
type appendWriter struct {
	b []byte
}

func (w *appendWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}
