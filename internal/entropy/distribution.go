// Package entropy implements the JPEG XL entropy coding layer: hybrid
// integers, prefix and ANS symbol distributions, context clustering, LZ77
// and permutation coding.
package entropy

import (
	"github.com/mrjoshuak/go-jpegxl/internal/bio"
)

// State is the mutable ANS decoder state of one entropy-coded segment.
type State struct {
	Value    uint32
	HasValue bool
}

// SymbolDistribution decodes tokens of one cluster.
type SymbolDistribution interface {
	// ReadSymbol decodes the next token, updating state.
	ReadSymbol(r *bio.Reader, state *State) (int, error)
	// Config returns the hybrid integer config of the cluster.
	Config() HybridIntegerConfig
	AlphabetSize() int
	LogAlphabetSize() int
	LogBucketSize() int
}

// base carries the fields shared by both distribution kinds.
type base struct {
	config          HybridIntegerConfig
	logBucketSize   int
	alphabetSize    int
	logAlphabetSize int
}

func (b *base) Config() HybridIntegerConfig { return b.config }
func (b *base) AlphabetSize() int           { return b.alphabetSize }
func (b *base) LogAlphabetSize() int        { return b.logAlphabetSize }
func (b *base) LogBucketSize() int          { return b.logBucketSize }
