package entropy

import (
	"fmt"
	"math/bits"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

const maxPrefixLength = 15

// codeLengthOrder is the transmission order of the code length code lengths.
var codeLengthOrder = [18]int{1, 2, 3, 4, 0, 5, 17, 6, 16, 7, 8, 9, 10, 11, 12, 13, 14, 15}

// canonicalCode decodes a canonical prefix code one bit at a time, most
// significant code bit first.
type canonicalCode struct {
	minCode [maxPrefixLength + 1]int32
	maxCode [maxPrefixLength + 1]int32 // -1 when no code has this length
	valPtr  [maxPrefixLength + 1]int32
	values  []int
	maxLen  int
	single  int // Symbol of a zero-length code, or -1
}

// newCanonicalCode builds the decoder for per-symbol code lengths
// (0 = unused). A code with exactly one used symbol decodes without bits.
func newCanonicalCode(lengths []int) (*canonicalCode, error) {
	c := &canonicalCode{single: -1}
	var counts [maxPrefixLength + 1]int
	used := 0
	for sym, l := range lengths {
		if l < 0 || l > maxPrefixLength {
			return nil, jxlerr.Malformed("prefix code length", l)
		}
		if l > 0 {
			counts[l]++
			used++
			c.single = sym
			c.maxLen = max(c.maxLen, l)
		}
	}
	if used == 0 {
		return nil, jxlerr.Malformed("prefix code", "no symbols")
	}
	if used == 1 {
		return c, nil
	}
	c.single = -1

	c.values = make([]int, 0, used)
	for l := 1; l <= c.maxLen; l++ {
		for sym, sl := range lengths {
			if sl == l {
				c.values = append(c.values, sym)
			}
		}
	}

	code := int32(0)
	p := int32(0)
	for l := 1; l <= maxPrefixLength; l++ {
		if counts[l] == 0 {
			c.maxCode[l] = -1
		} else {
			c.valPtr[l] = p
			c.minCode[l] = code
			p += int32(counts[l])
			code += int32(counts[l])
			c.maxCode[l] = code - 1
		}
		code <<= 1
	}
	return c, nil
}

func (c *canonicalCode) decode(r *bio.Reader) (int, error) {
	if c.single >= 0 {
		return c.single, nil
	}
	code := int32(0)
	for l := 1; l <= c.maxLen; l++ {
		bit, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		code = code<<1 | int32(bit)
		if c.maxCode[l] >= 0 && code <= c.maxCode[l] && code >= c.minCode[l] {
			return c.values[c.valPtr[l]+code-c.minCode[l]], nil
		}
	}
	return 0, fmt.Errorf("entropy: invalid prefix code: %w", jxlerr.ErrMalformed)
}

// PrefixDistribution is a cluster coded with a canonical prefix code.
type PrefixDistribution struct {
	base
	code *canonicalCode
}

// ReadPrefixDistribution reads a prefix code over alphabetSize symbols.
func ReadPrefixDistribution(r *bio.Reader, alphabetSize int, config HybridIntegerConfig) (*PrefixDistribution, error) {
	d := &PrefixDistribution{base: base{
		config:          config,
		alphabetSize:    alphabetSize,
		logAlphabetSize: bits.Len(uint(alphabetSize - 1)),
	}}
	if alphabetSize == 1 {
		d.code = &canonicalCode{single: 0}
		return d, nil
	}
	hskip, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}
	var lengths []int
	if hskip == 1 {
		lengths, err = readSimplePrefixLengths(r, alphabetSize)
	} else {
		lengths, err = readComplexPrefixLengths(r, alphabetSize, int(hskip))
	}
	if err != nil {
		return nil, err
	}
	d.code, err = newCanonicalCode(lengths)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ReadSymbol implements SymbolDistribution. Prefix codes carry no state.
func (d *PrefixDistribution) ReadSymbol(r *bio.Reader, _ *State) (int, error) {
	return d.code.decode(r)
}

func readSimplePrefixLengths(r *bio.Reader, alphabetSize int) ([]int, error) {
	nsym, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}
	nsym++
	symBits := uint(bits.Len(uint(alphabetSize - 1)))
	symbols := make([]int, nsym)
	for i := range symbols {
		v, err := r.ReadBits(symBits)
		if err != nil {
			return nil, err
		}
		if int(v) >= alphabetSize {
			return nil, jxlerr.Malformed("prefix symbol", v)
		}
		for _, s := range symbols[:i] {
			if s == int(v) {
				return nil, jxlerr.Malformed("duplicate prefix symbol", v)
			}
		}
		symbols[i] = int(v)
	}

	var codeLens []int
	switch nsym {
	case 1:
		// Zero-length code.
		codeLens = []int{1}
	case 2:
		codeLens = []int{1, 1}
	case 3:
		codeLens = []int{1, 2, 2}
	default:
		treeSelect, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if treeSelect {
			codeLens = []int{1, 2, 3, 3}
		} else {
			codeLens = []int{2, 2, 2, 2}
		}
	}
	lengths := make([]int, alphabetSize)
	for i, s := range symbols {
		lengths[s] = codeLens[i]
	}
	return lengths, nil
}

// readCodeLengthCodeLength reads one entry of the fixed code over 0..5.
func readCodeLengthCodeLength(r *bio.Reader) (int, error) {
	v, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 4, nil
	case 2:
		return 3, nil
	}
	b, err := r.ReadBits(1)
	if err != nil || b == 0 {
		return 2, err
	}
	b, err = r.ReadBits(1)
	if err != nil {
		return 0, err
	}
	if b == 0 {
		return 1, nil
	}
	return 5, nil
}

func readComplexPrefixLengths(r *bio.Reader, alphabetSize, hskip int) ([]int, error) {
	var clLengths [18]int
	space := 32
	numCodes := 0
	for i := hskip; i < len(codeLengthOrder) && space > 0; i++ {
		l, err := readCodeLengthCodeLength(r)
		if err != nil {
			return nil, err
		}
		clLengths[codeLengthOrder[i]] = l
		if l != 0 {
			space -= 32 >> l
			numCodes++
		}
	}
	if numCodes != 1 && space != 0 {
		return nil, jxlerr.Malformed("code length code space", space)
	}
	clCode, err := newCanonicalCode(clLengths[:])
	if err != nil {
		return nil, err
	}

	lengths := make([]int, alphabetSize)
	symbol := 0
	prevLen := 8
	repeat := 0
	repeatLen := 0
	space = 1 << 15
	for symbol < alphabetSize && space > 0 {
		code, err := clCode.decode(r)
		if err != nil {
			return nil, err
		}
		if code < 16 {
			repeat = 0
			lengths[symbol] = code
			symbol++
			if code != 0 {
				prevLen = code
				space -= 32768 >> code
			}
			continue
		}
		extra := uint(3)
		newLen := 0
		if code == 16 {
			extra = 2
			newLen = prevLen
		}
		if repeatLen != newLen {
			repeat = 0
			repeatLen = newLen
		}
		oldRepeat := repeat
		if repeat > 0 {
			repeat = (repeat - 2) << extra
		}
		v, err := r.ReadBits(extra)
		if err != nil {
			return nil, err
		}
		repeat += int(v) + 3
		delta := repeat - oldRepeat
		if symbol+delta > alphabetSize {
			return nil, jxlerr.Malformed("prefix code repeat", delta)
		}
		for i := 0; i < delta; i++ {
			lengths[symbol] = repeatLen
			symbol++
		}
		if repeatLen != 0 {
			space -= delta * (32768 >> repeatLen)
		}
	}
	if space != 0 {
		return nil, jxlerr.Malformed("prefix code space", space)
	}
	return lengths, nil
}
