package entropy

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

const (
	lz77WindowSize = 1 << 20
	lz77WindowMask = lz77WindowSize - 1
	maxClusterBits = 8
)

// specialDistances maps the first 120 LZ77 distance codes to (dx, dy)
// offsets in a two-dimensional image of width distMultiplier.
var specialDistances = [120][2]int{
	{0, 1}, {1, 0}, {1, 1}, {-1, 1}, {0, 2}, {2, 0}, {1, 2}, {-1, 2}, {2, 1}, {-2, 1},
	{2, 2}, {-2, 2}, {0, 3}, {3, 0}, {1, 3}, {-1, 3}, {3, 1}, {-3, 1}, {2, 3}, {-2, 3},
	{3, 2}, {-3, 2}, {0, 4}, {4, 0}, {1, 4}, {-1, 4}, {4, 1}, {-4, 1}, {3, 3}, {-3, 3},
	{2, 4}, {-2, 4}, {4, 2}, {-4, 2}, {0, 5}, {3, 4}, {-3, 4}, {4, 3}, {-4, 3}, {5, 0},
	{1, 5}, {-1, 5}, {5, 1}, {-5, 1}, {2, 5}, {-2, 5}, {5, 2}, {-5, 2}, {4, 4}, {-4, 4},
	{3, 5}, {-3, 5}, {5, 3}, {-5, 3}, {0, 6}, {6, 0}, {1, 6}, {-1, 6}, {6, 1}, {-6, 1},
	{2, 6}, {-2, 6}, {6, 2}, {-6, 2}, {4, 5}, {-4, 5}, {5, 4}, {-5, 4}, {3, 6}, {-3, 6},
	{6, 3}, {-6, 3}, {0, 7}, {7, 0}, {1, 7}, {-1, 7}, {5, 5}, {-5, 5}, {7, 1}, {-7, 1},
	{4, 6}, {-4, 6}, {6, 4}, {-6, 4}, {2, 7}, {-2, 7}, {7, 2}, {-7, 2}, {3, 7}, {-3, 7},
	{7, 3}, {-7, 3}, {5, 6}, {-5, 6}, {6, 5}, {-6, 5}, {8, 0}, {4, 7}, {-4, 7}, {7, 4},
	{-7, 4}, {8, 1}, {8, 2}, {6, 6}, {-6, 6}, {8, 3}, {5, 7}, {-5, 7}, {7, 5}, {-7, 5},
	{8, 4}, {6, 7}, {-6, 7}, {7, 6}, {-7, 6}, {8, 5}, {7, 7}, {-7, 7}, {8, 6}, {8, 7},
}

// LZ77Params holds the back-reference parameters of a stream.
type LZ77Params struct {
	Enabled      bool
	MinSymbol    int
	MinLength    int
	LengthConfig HybridIntegerConfig
}

// Stream is one entropy-coded segment: clustered distributions shared by a
// fixed number of contexts, plus the decode state they thread.
type Stream struct {
	numDists   int
	lz77       LZ77Params
	clusterMap []int
	dists      []SymbolDistribution
	usesPrefix bool
	state      State

	window     []uint32
	numToCopy  int
	copyPos    int
	numDecoded int
}

// NewStream reads the header of a stream with numDists contexts.
func NewStream(r *bio.Reader, numDists int) (*Stream, error) {
	return newStream(r, numDists, false)
}

func newStream(r *bio.Reader, numDists int, disallowLZ77 bool) (*Stream, error) {
	if numDists <= 0 {
		return nil, fmt.Errorf("entropy: stream with %d contexts: %w", numDists, jxlerr.ErrDecoderLogic)
	}
	s := &Stream{numDists: numDists}
	var err error
	if s.lz77.Enabled, err = r.ReadBool(); err != nil {
		return nil, err
	}
	if s.lz77.Enabled {
		if disallowLZ77 {
			return nil, jxlerr.Malformed("lz77 in nested stream", true)
		}
		minSymbol, err := r.ReadU32(224, 0, 512, 0, 4096, 0, 8, 15)
		if err != nil {
			return nil, err
		}
		minLength, err := r.ReadU32(3, 0, 4, 0, 5, 2, 9, 8)
		if err != nil {
			return nil, err
		}
		s.lz77.MinSymbol, s.lz77.MinLength = int(minSymbol), int(minLength)
		if s.lz77.LengthConfig, err = ReadHybridIntegerConfig(r, 8); err != nil {
			return nil, err
		}
		s.numDists++
	}

	s.clusterMap = make([]int, s.numDists)
	numClusters := 1
	if s.numDists > 1 {
		if numClusters, err = readClusterMap(r, s.clusterMap); err != nil {
			return nil, err
		}
	}

	if s.usesPrefix, err = r.ReadBool(); err != nil {
		return nil, err
	}
	logAlphabetSize := 15
	if !s.usesPrefix {
		v, err := r.ReadBits(2)
		if err != nil {
			return nil, err
		}
		logAlphabetSize = 5 + int(v)
	}

	configs := make([]HybridIntegerConfig, numClusters)
	for i := range configs {
		if configs[i], err = ReadHybridIntegerConfig(r, logAlphabetSize); err != nil {
			return nil, fmt.Errorf("entropy: cluster %d config: %w", i, err)
		}
	}

	s.dists = make([]SymbolDistribution, numClusters)
	if s.usesPrefix {
		alphabetSizes := make([]int, numClusters)
		for i := range alphabetSizes {
			nonTrivial, err := r.ReadBool()
			if err != nil {
				return nil, err
			}
			alphabetSizes[i] = 1
			if nonTrivial {
				n, err := r.ReadBits(4)
				if err != nil {
					return nil, err
				}
				extra, err := r.ReadBits(uint(n))
				if err != nil {
					return nil, err
				}
				alphabetSizes[i] = 1 + 1<<n + int(extra)
			}
			if alphabetSizes[i] > 1<<maxPrefixLength {
				return nil, jxlerr.Malformed("prefix alphabet size", alphabetSizes[i])
			}
		}
		for i := range s.dists {
			if s.dists[i], err = ReadPrefixDistribution(r, alphabetSizes[i], configs[i]); err != nil {
				return nil, fmt.Errorf("entropy: cluster %d prefix code: %w", i, err)
			}
		}
	} else {
		for i := range s.dists {
			if s.dists[i], err = ReadANSDistribution(r, logAlphabetSize, configs[i]); err != nil {
				return nil, fmt.Errorf("entropy: cluster %d histogram: %w", i, err)
			}
		}
	}
	return s, nil
}

// readClusterMap fills clusterMap and returns the number of clusters.
func readClusterMap(r *bio.Reader, clusterMap []int) (int, error) {
	simple, err := r.ReadBool()
	if err != nil {
		return 0, err
	}
	if simple {
		nbits, err := r.ReadBits(2)
		if err != nil {
			return 0, err
		}
		for i := range clusterMap {
			v, err := r.ReadBits(uint(nbits))
			if err != nil {
				return 0, err
			}
			clusterMap[i] = int(v)
		}
	} else {
		useMtf, err := r.ReadBool()
		if err != nil {
			return 0, err
		}
		nested, err := newStream(r, 1, len(clusterMap) <= 2)
		if err != nil {
			return 0, fmt.Errorf("entropy: cluster map stream: %w", err)
		}
		for i := range clusterMap {
			v, err := nested.ReadSymbol(r, 0)
			if err != nil {
				return 0, err
			}
			if v >= 1<<maxClusterBits {
				return 0, jxlerr.Malformed("cluster", v)
			}
			clusterMap[i] = int(v)
		}
		if err := nested.ValidateFinalState(r); err != nil {
			return 0, err
		}
		if useMtf {
			inverseMoveToFront(clusterMap)
		}
	}

	numClusters := lo.Max(clusterMap) + 1
	if numClusters > len(clusterMap) {
		return 0, jxlerr.Malformed("num clusters", numClusters)
	}
	used := lo.Uniq(clusterMap)
	if len(used) != numClusters {
		return 0, jxlerr.Malformed("unused cluster count", numClusters-len(used))
	}
	return numClusters, nil
}

func inverseMoveToFront(v []int) {
	var mtf [256]int
	for i := range mtf {
		mtf[i] = i
	}
	for i, index := range v {
		value := mtf[index]
		v[i] = value
		copy(mtf[1:index+1], mtf[:index])
		mtf[0] = value
	}
}

// NumDists returns the number of contexts, including the LZ77 distance context.
func (s *Stream) NumDists() int { return s.numDists }

// UsesLZ77 reports whether the stream carries back-references.
func (s *Stream) UsesLZ77() bool { return s.lz77.Enabled }

// Distribution returns the distribution of the cluster for ctx.
func (s *Stream) Distribution(ctx int) SymbolDistribution {
	return s.dists[s.clusterMap[ctx]]
}

// Fork returns a stream sharing the distributions of s with a fresh decode
// state and an empty LZ77 window.
func (s *Stream) Fork() *Stream {
	return &Stream{
		numDists:   s.numDists,
		lz77:       s.lz77,
		clusterMap: s.clusterMap,
		dists:      s.dists,
		usesPrefix: s.usesPrefix,
	}
}

// ReadSymbol decodes the next integer in context ctx.
func (s *Stream) ReadSymbol(r *bio.Reader, ctx int) (uint32, error) {
	return s.ReadSymbolWithMultiplier(r, ctx, 0)
}

// ReadSymbolWithMultiplier decodes the next integer in context ctx. A
// non-zero distMultiplier enables the two-dimensional LZ77 distances, with
// the multiplier as the row stride.
func (s *Stream) ReadSymbolWithMultiplier(r *bio.Reader, ctx int, distMultiplier int) (uint32, error) {
	if ctx < 0 || ctx >= s.numDists {
		return 0, fmt.Errorf("entropy: context %d of %d: %w", ctx, s.numDists, jxlerr.ErrDecoderLogic)
	}
	if s.numToCopy > 0 {
		v := s.window[s.copyPos&lz77WindowMask]
		s.copyPos++
		s.numToCopy--
		s.window[s.numDecoded&lz77WindowMask] = v
		s.numDecoded++
		return v, nil
	}

	dist := s.dists[s.clusterMap[ctx]]
	token, err := dist.ReadSymbol(r, &s.state)
	if err != nil {
		return 0, err
	}
	if s.lz77.Enabled && token >= s.lz77.MinSymbol {
		return s.readBackReference(r, token, ctx, distMultiplier)
	}
	v, err := dist.Config().ReadUint(r, token)
	if err != nil {
		return 0, err
	}
	if s.lz77.Enabled {
		if s.window == nil {
			s.window = make([]uint32, lz77WindowSize)
		}
		s.window[s.numDecoded&lz77WindowMask] = v
		s.numDecoded++
	}
	return v, nil
}

func (s *Stream) readBackReference(r *bio.Reader, token, ctx, distMultiplier int) (uint32, error) {
	length, err := s.lz77.LengthConfig.ReadUint(r, token-s.lz77.MinSymbol)
	if err != nil {
		return 0, err
	}
	s.numToCopy = int(length) + s.lz77.MinLength

	lz77Dist := s.dists[s.clusterMap[s.numDists-1]]
	distToken, err := lz77Dist.ReadSymbol(r, &s.state)
	if err != nil {
		return 0, err
	}
	d, err := lz77Dist.Config().ReadUint(r, distToken)
	if err != nil {
		return 0, err
	}
	distance := int(d)
	switch {
	case distMultiplier == 0:
		distance++
	case distance < len(specialDistances):
		sd := specialDistances[distance]
		distance = max(1, sd[0]+distMultiplier*sd[1])
	default:
		distance -= len(specialDistances) - 1
	}
	distance = min(distance, s.numDecoded, lz77WindowSize)
	s.copyPos = s.numDecoded - distance
	if s.window == nil {
		s.window = make([]uint32, lz77WindowSize)
	}
	return s.ReadSymbolWithMultiplier(r, ctx, distMultiplier)
}

// ValidateFinalState checks the ANS end-of-segment state. Prefix coded
// streams have no state to check.
func (s *Stream) ValidateFinalState(r *bio.Reader) error {
	if s.usesPrefix {
		return nil
	}
	if !s.state.HasValue {
		v, err := r.ReadBits(32)
		if err != nil {
			return err
		}
		s.state.Value, s.state.HasValue = v, true
	}
	if s.state.Value != ansFinalState {
		return jxlerr.Malformed("ans final state", fmt.Sprintf("%#x", s.state.Value))
	}
	return nil
}
