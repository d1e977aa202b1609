package frame

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/entropy"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// maxSectionSize bounds one TOC entry; the largest encodable entry is just
// above 1 GiB.
const maxSectionSize = 1<<30 + 4211712

// sectionChunk is the read granularity for section payloads, so a lying
// TOC cannot force a large allocation ahead of the data.
const sectionChunk = 1 << 20

// TOC is the table of contents of a frame: the byte size of every section
// and the order in which they are stored.
type TOC struct {
	// Sizes holds the section sizes in storage order.
	Sizes []uint32

	// Permutation maps a logical section index to its storage position,
	// or is nil when sections are stored in logical order.
	Permutation []int
}

// ReadTOC reads a table of contents with n entries and aligns the reader to
// the first section.
func ReadTOC(r *bio.Reader, n int) (*TOC, error) {
	t := &TOC{Sizes: make([]uint32, n)}
	permuted, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if permuted {
		s, err := entropy.NewStream(r, entropy.NumPermutationContexts)
		if err != nil {
			return nil, fmt.Errorf("toc permutation code: %w", err)
		}
		if t.Permutation, err = entropy.ReadPermutation(r, s, n, 0); err != nil {
			return nil, fmt.Errorf("toc permutation: %w", err)
		}
		if err := s.ValidateFinalState(r); err != nil {
			return nil, fmt.Errorf("toc permutation: %w", err)
		}
	}
	if err := r.ZeroPadToByte(); err != nil {
		return nil, err
	}
	for i := range t.Sizes {
		if t.Sizes[i], err = r.ReadU32(0, 10, 1024, 14, 17408, 22, 4211712, 30); err != nil {
			return nil, err
		}
	}
	if err := r.ZeroPadToByte(); err != nil {
		return nil, err
	}
	return t, nil
}

// Total returns the combined size of all sections in bytes.
func (t *TOC) Total() uint64 {
	var n uint64
	for _, s := range t.Sizes {
		n += uint64(s)
	}
	return n
}

// storage returns the storage position of logical section i.
func (t *TOC) storage(i int) int {
	if t.Permutation == nil {
		return i
	}
	return t.Permutation[i]
}

// readSection reads n payload bytes, growing the buffer as data arrives.
func readSection(r *bio.Reader, n uint32) ([]byte, error) {
	if n > maxSectionSize {
		return nil, jxlerr.Malformed("section size", n)
	}
	buf := make([]byte, 0, min(int(n), sectionChunk))
	for len(buf) < int(n) {
		k := min(int(n)-len(buf), sectionChunk)
		buf = append(buf, make([]byte, k)...)
		if err := r.ReadFull(buf[len(buf)-k:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// sections reads every section payload and returns one bit reader per
// section in logical order.
func (t *TOC) sections(r *bio.Reader) ([]*bio.Reader, error) {
	stored := make([][]byte, len(t.Sizes))
	for i, n := range t.Sizes {
		var err error
		if stored[i], err = readSection(r, n); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
	}
	readers := make([]*bio.Reader, len(stored))
	for i := range readers {
		readers[i] = bio.NewReaderBytes(stored[t.storage(i)])
	}
	return readers, nil
}
