package mct

import (
	"errors"
	"math"
	"testing"
)

// forwardRCT is the encoder side of InverseRCT.
func forwardRCT(planes [3][]int32, rctType int) {
	perm := rctType / 7
	kind := rctType % 7
	o0 := perm % 3
	o1 := (perm + 1 + perm/3) % 3
	o2 := (perm + 2 - perm/3) % 3

	for i := range planes[0] {
		a, b, c := planes[o0][i], planes[o1][i], planes[o2][i]
		if kind == 6 {
			co := a - c
			tmp := c + co>>1
			cg := b - tmp
			a, b, c = tmp+cg>>1, co, cg
		} else {
			switch kind >> 1 {
			case 1:
				b -= a
			case 2:
				b -= (a + c) >> 1
			}
			if kind&1 != 0 {
				c -= a
			}
		}
		planes[0][i], planes[1][i], planes[2][i] = a, b, c
	}
}

// ============================================================================
// RCT
// ============================================================================

func TestInverseRCT_Roundtrip(t *testing.T) {
	r := []int32{100, 150, 200, 50, 0, 255, -7}
	g := []int32{110, 140, 190, 60, 255, 0, 3}
	b := []int32{120, 130, 180, 70, 128, 1, 1000}

	for rctType := 0; rctType < NumRCTTypes; rctType++ {
		planes := [3][]int32{
			append([]int32(nil), r...),
			append([]int32(nil), g...),
			append([]int32(nil), b...),
		}
		forwardRCT(planes, rctType)
		InverseRCT(planes, rctType)
		for i := range r {
			if planes[0][i] != r[i] || planes[1][i] != g[i] || planes[2][i] != b[i] {
				t.Errorf("type %d sample %d: got (%d,%d,%d), want (%d,%d,%d)",
					rctType, i, planes[0][i], planes[1][i], planes[2][i], r[i], g[i], b[i])
			}
		}
	}
}

func TestInverseRCT_KnownValues(t *testing.T) {
	tests := []struct {
		name    string
		rctType int
		in      [3]int32
		want    [3]int32
	}{
		{"identity", 0, [3]int32{1, 2, 3}, [3]int32{1, 2, 3}},
		{"add first to third", 1, [3]int32{10, 2, 3}, [3]int32{10, 2, 13}},
		{"add first to second", 2, [3]int32{10, 2, 3}, [3]int32{10, 12, 3}},
		{"add average to second", 4, [3]int32{10, 2, 4}, [3]int32{10, 9, 4}},
		{"ycocg", 6, [3]int32{100, 0, 0}, [3]int32{100, 100, 100}},
		{"permutation GBR", 7, [3]int32{1, 2, 3}, [3]int32{3, 1, 2}},
		{"permutation BGR", 35, [3]int32{1, 2, 3}, [3]int32{3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planes := [3][]int32{{tt.in[0]}, {tt.in[1]}, {tt.in[2]}}
			InverseRCT(planes, tt.rctType)
			got := [3]int32{planes[0][0], planes[1][0], planes[2][0]}
			if got != tt.want {
				t.Errorf("InverseRCT(%v, %d) = %v, want %v", tt.in, tt.rctType, got, tt.want)
			}
		})
	}
}

// ============================================================================
// YCbCr
// ============================================================================

func TestInverseYCbCr(t *testing.T) {
	tests := []struct {
		name      string
		cb, y, cr float32
		want      [3]float32
	}{
		{"mid gray", 0, 0, 0, [3]float32{128.0 / 255, 128.0 / 255, 128.0 / 255}},
		{"red chroma", 0, 0, 0.5, [3]float32{128.0/255 + 0.701, 128.0/255 - 0.357068, 128.0 / 255}},
		{"blue chroma", 0.5, 0, 0, [3]float32{128.0 / 255, 128.0/255 - 0.172068, 128.0/255 + 0.886}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, y, cr := []float32{tt.cb}, []float32{tt.y}, []float32{tt.cr}
			InverseYCbCr(cb, y, cr)
			got := [3]float32{cb[0], y[0], cr[0]}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-5 {
					t.Errorf("channel %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// ============================================================================
// Matrix
// ============================================================================

func TestMatrix_InverseRoundtrip(t *testing.T) {
	m := Matrix{
		{0.4124, 0.3576, 0.1805},
		{0.2126, 0.7152, 0.0722},
		{0.0193, 0.1192, 0.9505},
	}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	prod := m.Mul(inv)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(prod[i][j]-Identity[i][j]) > 1e-9 {
				t.Errorf("m*inv[%d][%d] = %v, want %v", i, j, prod[i][j], Identity[i][j])
			}
		}
	}
}

func TestMatrix_Singular(t *testing.T) {
	m := Matrix{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}
	if _, err := m.Inverse(); !errors.Is(err, ErrSingular) {
		t.Errorf("Inverse of singular matrix: got %v, want ErrSingular", err)
	}
}

func TestMatrix_ApplyPlanes(t *testing.T) {
	m := Matrix{{0, 1, 0}, {1, 0, 0}, {0.5, 0.5, 1}}
	p0 := []float32{1, 4}
	p1 := []float32{2, 6}
	p2 := []float32{3, 0}
	m.ApplyPlanes(p0, p1, p2)

	want := [][3]float32{{2, 1, 4.5}, {6, 4, 5}}
	for i, w := range want {
		got := [3]float32{p0[i], p1[i], p2[i]}
		if got != w {
			t.Errorf("sample %d: got %v, want %v", i, got, w)
		}
	}
}

func BenchmarkInverseRCT(b *testing.B) {
	n := 4096
	planes := [3][]int32{make([]int32, n), make([]int32, n), make([]int32, n)}
	for i := 0; i < n; i++ {
		planes[0][i] = int32(i % 256)
		planes[1][i] = int32((i * 3) % 256)
		planes[2][i] = int32((i * 7) % 256)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InverseRCT(planes, 6)
	}
}
