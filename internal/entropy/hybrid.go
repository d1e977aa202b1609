package entropy

import (
	"fmt"
	"math/bits"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// HybridIntegerConfig splits decoded integers into a token carrying the
// magnitude class plus raw extra bits.
type HybridIntegerConfig struct {
	SplitExponent int
	MsbInToken    int
	LsbInToken    int
}

// ReadHybridIntegerConfig reads a config for an alphabet of 1<<logAlphabetSize tokens.
func ReadHybridIntegerConfig(r *bio.Reader, logAlphabetSize int) (HybridIntegerConfig, error) {
	var c HybridIntegerConfig
	split, err := r.ReadBits(uint(bits.Len(uint(logAlphabetSize))))
	if err != nil {
		return c, err
	}
	c.SplitExponent = int(split)
	if c.SplitExponent > logAlphabetSize {
		return c, jxlerr.Malformed("split_exponent", c.SplitExponent)
	}
	if c.SplitExponent == logAlphabetSize {
		return c, nil
	}
	msb, err := r.ReadBits(uint(bits.Len(uint(c.SplitExponent))))
	if err != nil {
		return c, err
	}
	c.MsbInToken = int(msb)
	if c.MsbInToken > c.SplitExponent {
		return c, jxlerr.Malformed("msb_in_token", c.MsbInToken)
	}
	lsb, err := r.ReadBits(uint(bits.Len(uint(c.SplitExponent - c.MsbInToken))))
	if err != nil {
		return c, err
	}
	c.LsbInToken = int(lsb)
	if c.MsbInToken+c.LsbInToken > c.SplitExponent {
		return c, jxlerr.Malformed("lsb_in_token", c.LsbInToken)
	}
	return c, nil
}

// ReadUint reconstructs the integer for token, reading its extra bits.
func (c HybridIntegerConfig) ReadUint(r *bio.Reader, token int) (uint32, error) {
	split := 1 << c.SplitExponent
	if token < split {
		return uint32(token), nil
	}
	n := c.SplitExponent - (c.MsbInToken + c.LsbInToken) + (token-split)>>(c.MsbInToken+c.LsbInToken)
	if n+c.MsbInToken+c.LsbInToken >= 32 {
		return 0, fmt.Errorf("entropy: hybrid integer with %d extra bits: %w", n, jxlerr.ErrMalformed)
	}
	low := uint32(token) & (1<<c.LsbInToken - 1)
	t := uint32(token) >> c.LsbInToken
	high := t&(1<<c.MsbInToken-1) | 1<<c.MsbInToken
	extra, err := r.ReadBits(uint(n))
	if err != nil {
		return 0, err
	}
	return (high<<n|extra)<<c.LsbInToken | low, nil
}
