package entropy

import (
	"testing"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
)

// FuzzStream tests stream setup and symbol decoding with arbitrary input.
// Run with: go test -fuzz=FuzzStream -fuzztime=60s
func FuzzStream(f *testing.F) {
	lz77 := bio.NewWriter()
	writeLZ77Stream(lz77)
	f.Add(lz77.Bytes(), uint8(2))
	f.Add([]byte{0x00}, uint8(1))
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF}, uint8(1))
	f.Add([]byte{}, uint8(8))

	f.Fuzz(func(t *testing.T, data []byte, numDists uint8) {
		r := bio.NewReaderBytes(data)
		s, err := NewStream(r, int(numDists)+1)
		if err != nil {
			return
		}
		for i := 0; i < 64; i++ {
			if _, err := s.ReadSymbol(r, i%s.NumDists()); err != nil {
				return
			}
		}
		_ = s.ValidateFinalState(r)
	})
}

// FuzzReadPermutation tests permutation decoding with arbitrary input.
func FuzzReadPermutation(f *testing.F) {
	f.Add([]byte{0x00, 0x00}, uint16(8), uint16(0))
	f.Add([]byte{0xFF, 0xFF, 0xFF}, uint16(300), uint16(2))

	f.Fuzz(func(t *testing.T, data []byte, size, skip uint16) {
		if skip > size {
			return
		}
		r := bio.NewReaderBytes(data)
		s, err := NewStream(r, NumPermutationContexts)
		if err != nil {
			return
		}
		perm, err := ReadPermutation(r, s, int(size), int(skip))
		if err != nil {
			return
		}
		seen := make([]bool, len(perm))
		for _, p := range perm {
			if p < 0 || p >= len(perm) || seen[p] {
				t.Fatalf("not a permutation: %v", perm)
			}
			seen[p] = true
		}
	})
}
