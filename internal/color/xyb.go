package color

import (
	"math"

	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
)

// OpsinInverse converts XYB planes to linear sRGB in place: x becomes red,
// y green and b blue. A linear value of 1 is intensityTarget nits.
func OpsinInverse(x, y, b []float32, m codestream.OpsinInverseMatrix, intensityTarget float32) {
	scale := float32(255)
	if intensityTarget > 0 {
		scale /= intensityTarget
	}
	var mat [3][3]float32
	for i := range mat {
		for j := range mat[i] {
			mat[i][j] = m.Matrix[i][j] * scale
		}
	}
	var cbrtBias [3]float32
	for i, v := range m.OpsinBias {
		cbrtBias[i] = float32(math.Cbrt(float64(v)))
	}
	bias := m.OpsinBias

	for i := range x {
		gr := y[i] + x[i] - cbrtBias[0]
		gg := y[i] - x[i] - cbrtBias[1]
		gb := b[i] - cbrtBias[2]
		mr := gr*gr*gr + bias[0]
		mg := gg*gg*gg + bias[1]
		mb := gb*gb*gb + bias[2]
		x[i] = mat[0][0]*mr + mat[0][1]*mg + mat[0][2]*mb
		y[i] = mat[1][0]*mr + mat[1][1]*mg + mat[1][2]*mb
		b[i] = mat[2][0]*mr + mat[2][1]*mg + mat[2][2]*mb
	}
}
