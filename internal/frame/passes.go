package frame

import (
	"fmt"
	"math/bits"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// PassesInfo describes the progressive passes of a frame. DownSample and
// LastPass have NumDS+1 entries; the final entries are always 1 and
// NumPasses-1.
type PassesInfo struct {
	NumPasses  int
	NumDS      int
	Shift      []int
	DownSample []int
	LastPass   []int
}

// DefaultPassesInfo returns the single-pass layout.
func DefaultPassesInfo() PassesInfo {
	return PassesInfo{
		NumPasses:  1,
		Shift:      []int{0},
		DownSample: []int{1},
		LastPass:   []int{0},
	}
}

// ReadPassesInfo reads the passes bundle. A layout with as many downsample
// steps as passes is malformed.
func ReadPassesInfo(r *bio.Reader) (PassesInfo, error) {
	numPasses, err := r.ReadU32(1, 0, 2, 0, 3, 0, 4, 3)
	if err != nil {
		return PassesInfo{}, err
	}
	if numPasses == 1 {
		return DefaultPassesInfo(), nil
	}
	numDS, err := r.ReadU32(0, 0, 1, 0, 2, 0, 3, 1)
	if err != nil {
		return PassesInfo{}, err
	}
	if numDS >= numPasses {
		return PassesInfo{}, jxlerr.Malformed("num_ds", fmt.Sprintf("%d with %d passes", numDS, numPasses))
	}

	p := PassesInfo{
		NumPasses:  int(numPasses),
		NumDS:      int(numDS),
		Shift:      make([]int, numPasses),
		DownSample: make([]int, numDS+1),
		LastPass:   make([]int, numDS+1),
	}
	for i := 0; i < p.NumPasses-1; i++ {
		v, err := r.ReadBits(2)
		if err != nil {
			return PassesInfo{}, err
		}
		p.Shift[i] = int(v)
	}
	for i := 0; i < p.NumDS; i++ {
		v, err := r.ReadBits(2)
		if err != nil {
			return PassesInfo{}, err
		}
		p.DownSample[i] = 1 << v
	}
	for i := 0; i < p.NumDS; i++ {
		v, err := r.ReadU32(0, 0, 1, 0, 2, 0, 0, 3)
		if err != nil {
			return PassesInfo{}, err
		}
		if int(v) >= p.NumPasses {
			return PassesInfo{}, jxlerr.Malformed("last_pass", v)
		}
		p.LastPass[i] = int(v)
	}
	p.DownSample[p.NumDS] = 1
	p.LastPass[p.NumDS] = p.NumPasses - 1
	return p, nil
}

// ShiftRange returns the channel shifts [minShift, maxShift) that pass
// claims, given the minimum shift of the previous pass. Pass 0 starts at 3,
// the coarsest shift below the LF groups. A pass that completes no
// downsampling step claims nothing.
func (p *PassesInfo) ShiftRange(pass, prevMinShift int) (minShift, maxShift int) {
	maxShift = 3
	if pass > 0 {
		maxShift = prevMinShift
	}
	minShift = maxShift
	for n, last := range p.LastPass {
		if last == pass {
			minShift = bits.Len(uint(p.DownSample[n] - 1))
			break
		}
	}
	return minShift, maxShift
}
