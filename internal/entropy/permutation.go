package entropy

import (
	"math/bits"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// NumPermutationContexts is the number of contexts a permutation stream needs.
const NumPermutationContexts = 8

func permutationContext(x uint32) int {
	return min(7, bits.Len32(x))
}

// ReadPermutation decodes a Lehmer-coded permutation of size elements whose
// first skip positions are fixed.
func ReadPermutation(r *bio.Reader, s *Stream, size, skip int) ([]int, error) {
	end, err := s.ReadSymbol(r, permutationContext(uint32(size)))
	if err != nil {
		return nil, err
	}
	if int(end) > size-skip {
		return nil, jxlerr.Malformed("permutation end", end)
	}
	lehmer := make([]int, size)
	prev := uint32(0)
	for i := skip; i < skip+int(end); i++ {
		v, err := s.ReadSymbol(r, permutationContext(prev))
		if err != nil {
			return nil, err
		}
		if int(v) >= size-i {
			return nil, jxlerr.Malformed("lehmer code", v)
		}
		lehmer[i] = int(v)
		prev = v
	}

	temp := make([]int, size)
	for i := range temp {
		temp[i] = i
	}
	perm := make([]int, size)
	for i, index := range lehmer {
		perm[i] = temp[index]
		temp = append(temp[:index], temp[index+1:]...)
	}
	return perm, nil
}
