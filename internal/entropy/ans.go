package entropy

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

const (
	ansLogTabSize = 12
	ansTabSize    = 1 << ansLogTabSize

	// ansFinalState is the state every ANS segment must end in.
	ansFinalState = 0x130000
)

// Log-count prefix code, codes are LSB-first.
var (
	logCountLengths = [14]uint{5, 4, 4, 4, 4, 4, 3, 3, 3, 3, 3, 6, 7, 7}
	logCountCodes   = [14]uint32{17, 11, 15, 3, 9, 7, 4, 2, 5, 6, 0, 33, 1, 65}
)

// ANSDistribution is a cluster coded with rANS over a 12-bit alias table.
type ANSDistribution struct {
	base
	frequencies []int32
	symbols     []int32
	offsets     []int32
	cutoffs     []int32
}

// ReadANSDistribution reads a histogram and builds its alias table.
func ReadANSDistribution(r *bio.Reader, logAlphabetSize int, config HybridIntegerConfig) (*ANSDistribution, error) {
	d := &ANSDistribution{base: base{
		config:          config,
		logAlphabetSize: logAlphabetSize,
		logBucketSize:   ansLogTabSize - logAlphabetSize,
	}}
	tableSize := 1 << logAlphabetSize
	freq := make([]int32, tableSize)

	simple, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if simple {
		two, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		v1, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		if v1 >= tableSize {
			return nil, jxlerr.Malformed("ans symbol", v1)
		}
		if !two {
			freq[v1] = ansTabSize
			d.alphabetSize = v1 + 1
		} else {
			v2, err := r.ReadU8()
			if err != nil {
				return nil, err
			}
			if v2 >= tableSize || v2 == v1 {
				return nil, jxlerr.Malformed("ans symbol", v2)
			}
			f, err := r.ReadBits(ansLogTabSize)
			if err != nil {
				return nil, err
			}
			freq[v1] = int32(f)
			freq[v2] = ansTabSize - int32(f)
			d.alphabetSize = max(v1, v2) + 1
		}
	} else {
		flat, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if flat {
			n, err := r.ReadU8()
			if err != nil {
				return nil, err
			}
			d.alphabetSize = n + 1
			if d.alphabetSize > tableSize {
				return nil, jxlerr.Malformed("ans alphabet size", d.alphabetSize)
			}
			for i := 0; i < d.alphabetSize; i++ {
				freq[i] = int32(ansTabSize / d.alphabetSize)
				if i < ansTabSize%d.alphabetSize {
					freq[i]++
				}
			}
		} else if err := d.readLogCounts(r, freq); err != nil {
			return nil, err
		}
	}

	d.frequencies = freq
	d.buildAliasTable()
	return d, nil
}

func readLogCount(r *bio.Reader) (int, error) {
	code := uint32(0)
	for n := uint(1); n <= 7; n++ {
		b, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		code |= b << (n - 1)
		for i, l := range logCountLengths {
			if l == n && logCountCodes[i] == code {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("entropy: invalid log count code %d: %w", code, jxlerr.ErrDecoderLogic)
}

func (d *ANSDistribution) readLogCounts(r *bio.Reader, freq []int32) error {
	l := 0
	for l < 3 {
		more, err := r.ReadBool()
		if err != nil {
			return err
		}
		if !more {
			break
		}
		l++
	}
	sv, err := r.ReadBits(uint(l))
	if err != nil {
		return err
	}
	shift := int(sv|1<<l) - 1
	if shift > ansLogTabSize+1 {
		return jxlerr.Malformed("ans shift", shift)
	}
	n, err := r.ReadU8()
	if err != nil {
		return err
	}
	d.alphabetSize = n + 3
	if d.alphabetSize > len(freq) {
		return jxlerr.Malformed("ans alphabet size", d.alphabetSize)
	}

	logCounts := make([]int, d.alphabetSize)
	same := make([]int, d.alphabetSize)
	omitLog, omitPos := -1, -1
	for i := 0; i < d.alphabetSize; i++ {
		lc, err := readLogCount(r)
		if err != nil {
			return err
		}
		logCounts[i] = lc
		if lc == ansLogTabSize+1 {
			rle, err := r.ReadU8()
			if err != nil {
				return err
			}
			same[i] = rle + 5
			i += rle + 3
			continue
		}
		if lc > omitLog {
			omitLog, omitPos = lc, i
		}
	}
	if omitPos < 0 || omitPos+1 < d.alphabetSize && logCounts[omitPos+1] == ansLogTabSize+1 {
		return jxlerr.Malformed("ans omit position", omitPos)
	}

	total := int32(0)
	prev := int32(0)
	numSame := 0
	for i := 0; i < d.alphabetSize; i++ {
		if same[i] != 0 {
			numSame = same[i] - 1
			if i > 0 {
				prev = freq[i-1]
			} else {
				prev = 0
			}
		}
		if numSame > 0 {
			freq[i] = prev
			numSame--
		} else {
			code := logCounts[i]
			if i == omitPos || code == 0 {
				continue
			}
			logCount := code - 1
			bitCount := min(logCount, max(0, shift-((ansLogTabSize-logCount)>>1)))
			v, err := r.ReadBits(uint(bitCount))
			if err != nil {
				return err
			}
			freq[i] = int32(1<<logCount) + int32(v)<<(logCount-bitCount)
		}
		total += freq[i]
	}
	if total >= ansTabSize {
		return jxlerr.Malformed("ans histogram total", total)
	}
	freq[omitPos] = ansTabSize - total
	return nil
}

// buildAliasTable fills the alias mapping so that every bucket of the 12-bit
// state space holds at most two symbols.
func (d *ANSDistribution) buildAliasTable() {
	tableSize := len(d.frequencies)
	bucket := int32(1) << d.logBucketSize
	d.symbols = make([]int32, tableSize)
	d.offsets = make([]int32, tableSize)
	d.cutoffs = make([]int32, tableSize)

	for sym, f := range d.frequencies {
		if f == ansTabSize {
			for i := range d.symbols {
				d.symbols[i] = int32(sym)
				d.offsets[i] = int32(i) * bucket
				d.cutoffs[i] = 0
			}
			return
		}
	}

	var underfull, overfull []int
	for i, f := range d.frequencies {
		d.cutoffs[i] = f
		if f > bucket {
			overfull = append(overfull, i)
		} else if f < bucket {
			underfull = append(underfull, i)
		}
	}
	for len(overfull) > 0 {
		o := overfull[len(overfull)-1]
		overfull = overfull[:len(overfull)-1]
		u := underfull[len(underfull)-1]
		underfull = underfull[:len(underfull)-1]
		by := bucket - d.cutoffs[u]
		d.cutoffs[o] -= by
		d.symbols[u] = int32(o)
		d.offsets[u] = d.cutoffs[o]
		if d.cutoffs[o] < bucket {
			underfull = append(underfull, o)
		} else if d.cutoffs[o] > bucket {
			overfull = append(overfull, o)
		}
	}
	for i := range d.symbols {
		if d.cutoffs[i] == bucket {
			d.symbols[i] = int32(i)
			d.offsets[i] = 0
			d.cutoffs[i] = 0
		} else {
			d.offsets[i] -= d.cutoffs[i]
		}
	}
}

// ReadSymbol implements SymbolDistribution.
func (d *ANSDistribution) ReadSymbol(r *bio.Reader, state *State) (int, error) {
	if !state.HasValue {
		v, err := r.ReadBits(32)
		if err != nil {
			return 0, err
		}
		state.Value, state.HasValue = v, true
	}
	sym, offset := d.lookup(int32(state.Value & (ansTabSize - 1)))
	state.Value = uint32(d.frequencies[sym])*(state.Value>>ansLogTabSize) + uint32(offset)
	if state.Value < 1<<16 {
		v, err := r.ReadBits(16)
		if err != nil {
			return 0, err
		}
		state.Value = state.Value<<16 | v
	}
	return int(sym), nil
}

// lookup maps a 12-bit state slot to its symbol and the slot's offset within
// that symbol's frequency range.
func (d *ANSDistribution) lookup(index int32) (sym, offset int32) {
	i := index >> d.logBucketSize
	pos := index & (1<<d.logBucketSize - 1)
	if pos >= d.cutoffs[i] {
		return d.symbols[i], d.offsets[i] + pos
	}
	return i, pos
}
