// Package mct implements the multi-component transforms applied to decoded
// channel triples.
//
// Three families are supported:
//   - RCT: the 42 reversible colour transforms of modular images (integer)
//   - YCbCr: the JPEG colour transform (float)
//   - Matrix: 3x3 linear maps used for opsin and primaries conversion (float)
package mct

import (
	"errors"
	"math"
)

// ErrSingular is returned when a matrix has no inverse.
var ErrSingular = errors.New("mct: singular matrix")

// NumRCTTypes is the number of reversible colour transforms: six channel
// permutations times seven decorrelation kinds.
const NumRCTTypes = 42

// Reversible colour transforms

// InverseRCT undoes reversible colour transform rctType on three planes in
// place. rctType/7 selects the output channel permutation and rctType%7 the
// decorrelation: 0 is none, 1-5 add the first channel to the others and 6 is
// YCoCg.
func InverseRCT(planes [3][]int32, rctType int) {
	perm := rctType / 7
	kind := rctType % 7
	o0 := perm % 3
	o1 := (perm + 1 + perm/3) % 3
	o2 := (perm + 2 - perm/3) % 3

	p0, p1, p2 := planes[0], planes[1], planes[2]
	for i := range p0 {
		a, b, c := p0[i], p1[i], p2[i]
		var d, e, f int32
		if kind == 6 {
			tmp := a - c>>1
			e = c + tmp
			f = tmp - b>>1
			d = f + b
		} else {
			if kind&1 != 0 {
				c += a
			}
			switch kind >> 1 {
			case 1:
				b += a
			case 2:
				b += (a + c) >> 1
			}
			d, e, f = a, b, c
		}
		planes[o0][i] = d
		planes[o1][i] = e
		planes[o2][i] = f
	}
}

// YCbCr

// InverseYCbCr converts planes stored as (Cb, Y, Cr) to (R, G, B) in place.
// Y is centred on zero; samples are nominally in [0, 1].
func InverseYCbCr(cb, y, cr []float32) {
	const center = 128.0 / 255.0
	for i := range y {
		yy := y[i] + center
		r := yy + 1.402*cr[i]
		g := yy - 0.344136*cb[i] - 0.714136*cr[i]
		b := yy + 1.772*cb[i]

		cb[i] = r
		y[i] = g
		cr[i] = b
	}
}

// Matrix transforms

// Matrix is a row-major 3x3 linear map.
type Matrix [3][3]float64

// Identity is the identity matrix.
var Identity = Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// Mul returns m*n.
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[i][k] * n[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Apply returns m*v.
func (m Matrix) Apply(v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Inverse returns the inverse of m.
func (m Matrix) Inverse() (Matrix, error) {
	a := m
	det := a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}

	invDet := 1.0 / det
	var inv Matrix
	inv[0][0] = (a[1][1]*a[2][2] - a[1][2]*a[2][1]) * invDet
	inv[0][1] = (a[0][2]*a[2][1] - a[0][1]*a[2][2]) * invDet
	inv[0][2] = (a[0][1]*a[1][2] - a[0][2]*a[1][1]) * invDet
	inv[1][0] = (a[1][2]*a[2][0] - a[1][0]*a[2][2]) * invDet
	inv[1][1] = (a[0][0]*a[2][2] - a[0][2]*a[2][0]) * invDet
	inv[1][2] = (a[0][2]*a[1][0] - a[0][0]*a[1][2]) * invDet
	inv[2][0] = (a[1][0]*a[2][1] - a[1][1]*a[2][0]) * invDet
	inv[2][1] = (a[0][1]*a[2][0] - a[0][0]*a[2][1]) * invDet
	inv[2][2] = (a[0][0]*a[1][1] - a[0][1]*a[1][0]) * invDet
	return inv, nil
}

// ApplyPlanes applies m to every sample triple of three planes in place.
func (m Matrix) ApplyPlanes(p0, p1, p2 []float32) {
	for i := range p0 {
		v := m.Apply([3]float64{float64(p0[i]), float64(p1[i]), float64(p2[i])})
		p0[i] = float32(v[0])
		p1[i] = float32(v[1])
		p2[i] = float32(v[2])
	}
}
