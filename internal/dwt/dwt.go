// Package dwt implements the integer Haar-like lifting behind the modular
// squeeze transform.
//
// A squeezed signal is stored as two halves: averages of sample pairs and
// residuals relative to a smooth tendency predicted from the neighbouring
// averages. Reconstruction is exact.
package dwt

// SmoothTendency predicts the difference of a sample pair from the sample
// before it (b), the pair average (a) and the next average (n). It is zero
// unless the three are monotonic.
func SmoothTendency(b, a, n int64) int64 {
	var diff int64
	switch {
	case b >= a && a >= n:
		diff = (4*b - 3*n - a + 6) / 12
		if diff-(diff&1) > 2*(b-a) {
			diff = 2*(b-a) + 1
		}
		if diff+(diff&1) > 2*(a-n) {
			diff = 2 * (a - n)
		}
	case b <= a && a <= n:
		diff = (4*b - 3*n - a - 6) / 12
		if diff+(diff&1) < 2*(b-a) {
			diff = 2*(b-a) - 1
		}
		if diff-(diff&1) < 2*(a-n) {
			diff = 2 * (a - n)
		}
	}
	return diff
}

// unsqueeze returns the pair (A, B) with average avg and difference diff.
func unsqueeze(avg, diff int64) (int32, int32) {
	a := avg + diff/2
	return int32(a), int32(a - diff)
}

// InverseRow reconstructs len(avg)+len(res) samples into out. len(avg) must
// equal len(res) or exceed it by one.
func InverseRow(out, avg, res []int32) {
	if len(res) == 0 {
		copy(out, avg)
		return
	}
	out = out[:len(avg)+len(res)]
	for x := range res {
		a := int64(avg[x])
		next := a
		if x+1 < len(avg) {
			next = int64(avg[x+1])
		}
		left := a
		if x > 0 {
			left = int64(out[2*x-1])
		}
		out[2*x], out[2*x+1] = unsqueeze(a, int64(res[x])+SmoothTendency(left, a, next))
	}
	if len(out)&1 == 1 {
		out[len(out)-1] = avg[len(avg)-1]
	}
}

// InverseHorizontal reconstructs a plane of height rows whose columns were
// squeezed. avg is avgWidth wide and res is resWidth wide; the result is
// avgWidth+resWidth wide.
func InverseHorizontal(out, avg, res []int32, avgWidth, resWidth, height int) {
	w := avgWidth + resWidth
	for y := 0; y < height; y++ {
		InverseRow(out[y*w:(y+1)*w], avg[y*avgWidth:(y+1)*avgWidth], res[y*resWidth:(y+1)*resWidth])
	}
}

// InverseVertical reconstructs a plane of the given width whose rows were
// squeezed. avg holds avgHeight rows and res holds resHeight rows; the
// result holds avgHeight+resHeight rows.
func InverseVertical(out, avg, res []int32, width, avgHeight, resHeight int) {
	if resHeight == 0 {
		copy(out, avg[:width*avgHeight])
		return
	}
	for y := 0; y < resHeight; y++ {
		avgRow := avg[y*width : (y+1)*width]
		nextRow := avgRow
		if y+1 < avgHeight {
			nextRow = avg[(y+1)*width : (y+2)*width]
		}
		resRow := res[y*width : (y+1)*width]
		outA := out[2*y*width : (2*y+1)*width]
		outB := out[(2*y+1)*width : (2*y+2)*width]
		var topRow []int32
		if y > 0 {
			topRow = out[(2*y-1)*width : 2*y*width]
		}
		for x := 0; x < width; x++ {
			a := int64(avgRow[x])
			top := a
			if topRow != nil {
				top = int64(topRow[x])
			}
			outA[x], outB[x] = unsqueeze(a, int64(resRow[x])+SmoothTendency(top, a, int64(nextRow[x])))
		}
	}
	if h := avgHeight + resHeight; h&1 == 1 {
		copy(out[(h-1)*width:h*width], avg[(avgHeight-1)*width:avgHeight*width])
	}
}
