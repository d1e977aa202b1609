package modular

import "math/bits"

const (
	wpExtraBits = 3
	wpRound     = (1<<wpExtraBits)>>1 - 1
)

var divLookup = func() [64]int64 {
	var t [64]int64
	for i := range t {
		t[i] = (1 << 24) / int64(i+1)
	}
	return t
}()

// weightedPredictor is the self-correcting predictor that blends four
// sub-predictions by their recent error. Errors are kept for two rows.
type weightedPredictor struct {
	params     WPParams
	width      int
	predErrors [4][]uint32
	errors     []int64
	preds      [4]int64
	pred       int64
}

func newWeightedPredictor(p WPParams, width int) *weightedPredictor {
	wp := &weightedPredictor{params: p, width: width}
	n := (width + 2) * 2
	for i := range wp.predErrors {
		wp.predErrors[i] = make([]uint32, n)
	}
	wp.errors = make([]int64, n)
	return wp
}

func (wp *weightedPredictor) rows(y int) (cur, prev int) {
	if y&1 != 0 {
		return 0, wp.width + 2
	}
	return wp.width + 2, 0
}

func errorWeight(x uint64, maxWeight uint32) uint32 {
	shift := bits.Len64(x+1) - 1 - 5
	if shift < 0 {
		shift = 0
	}
	return 4 + uint32((uint64(maxWeight)*uint64(divLookup[x>>shift]))>>shift)
}

func weightedAverage(p *[4]int64, w [4]uint32) int64 {
	var sum uint32
	for _, v := range w {
		sum += v
	}
	logWeight := bits.Len32(sum) - 1
	sum = 0
	for i := range w {
		w[i] >>= logWeight - 4
		sum += w[i]
	}
	acc := int64(sum>>1) - 1
	for i := range p {
		acc += p[i] * int64(w[i])
	}
	return (acc * divLookup[sum-1]) >> 24
}

// predict returns the prediction at (x, y) and the maximum-magnitude
// neighbouring error, which serves as a context property.
func (wp *weightedPredictor) predict(x, y int, nb *neighbours) (pred, maxErr int64) {
	cur, prev := wp.rows(y)
	posN := prev + x
	posNE, posNW := posN, posN
	if x < wp.width-1 {
		posNE++
	}
	if x > 0 {
		posNW--
	}

	var weights [4]uint32
	for i := range weights {
		pe := wp.predErrors[i]
		weights[i] = errorWeight(uint64(pe[posN])+uint64(pe[posNE])+uint64(pe[posNW]), wp.params.W[i])
	}

	n := nb.n << wpExtraBits
	w := nb.w << wpExtraBits
	ne := nb.ne << wpExtraBits
	nw := nb.nw << wpExtraBits
	nn := nb.nn << wpExtraBits

	var teW int64
	if x > 0 {
		teW = wp.errors[cur+x-1]
	}
	teN := wp.errors[posN]
	teNW := wp.errors[posNW]
	teNE := wp.errors[posNE]

	maxErr = teW
	for _, e := range [3]int64{teN, teNW, teNE} {
		if abs64(e) > abs64(maxErr) {
			maxErr = e
		}
	}

	p := &wp.params
	wp.preds[0] = w + ne - n
	wp.preds[1] = n - (((teW + teN + teNE) * p.P1) >> 5)
	wp.preds[2] = w - (((teW + teN + teNW) * p.P2) >> 5)
	wp.preds[3] = n - ((teNW*p.P3[0] + teN*p.P3[1] + teNE*p.P3[2] + (nn-n)*p.P3[3] + (nw-w)*p.P3[4]) >> 5)

	wp.pred = weightedAverage(&wp.preds, weights)
	if ((teN ^ teW) | (teN ^ teNW)) <= 0 {
		hi := max(w, ne, n)
		lo := min(w, ne, n)
		wp.pred = max(lo, min(hi, wp.pred))
	}
	return (wp.pred + wpRound) >> wpExtraBits, maxErr
}

// update records the decoded value at (x, y).
func (wp *weightedPredictor) update(x, y int, val int64) {
	cur, prev := wp.rows(y)
	val <<= wpExtraBits
	wp.errors[cur+x] = wp.pred - val
	for i := range wp.preds {
		err := uint32((abs64(wp.preds[i]-val) + wpRound) >> wpExtraBits)
		wp.predErrors[i][cur+x] = err
		wp.predErrors[i][prev+x+1] += err
	}
}
