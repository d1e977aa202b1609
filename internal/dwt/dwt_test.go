package dwt

import (
	"math/rand"
	"testing"
)

// forwardRow squeezes in into averages and residuals, the encoder side of
// InverseRow.
func forwardRow(in []int32) (avg, res []int32) {
	n := len(in)
	avg = make([]int32, (n+1)/2)
	res = make([]int32, n/2)
	pairAvg := func(x int) int64 {
		a, b := int64(in[2*x]), int64(in[2*x+1])
		s := a + b
		if a > b {
			s++
		}
		return s >> 1
	}
	for x := range res {
		a := pairAvg(x)
		avg[x] = int32(a)
		next := a
		if x+1 < len(res) {
			next = pairAvg(x + 1)
		} else if n&1 == 1 {
			next = int64(in[2*x+2])
		}
		left := a
		if x > 0 {
			left = int64(in[2*x-1])
		}
		res[x] = int32(int64(in[2*x]) - int64(in[2*x+1]) - SmoothTendency(left, a, next))
	}
	if n&1 == 1 {
		avg[len(avg)-1] = in[n-1]
	}
	return avg, res
}

// ============================================================================
// SmoothTendency
// ============================================================================

func TestSmoothTendency(t *testing.T) {
	tests := []struct {
		name    string
		b, a, n int64
		want    int64
	}{
		{"flat", 5, 5, 5, 0},
		{"not monotonic", 1, 5, 2, 0},
		{"descending", 30, 20, 10, 6},
		{"ascending", 10, 20, 30, -6},
		{"descending clamped by left", 21, 20, 0, 3},
		{"descending clamped by next", 100, 20, 19, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SmoothTendency(tt.b, tt.a, tt.n); got != tt.want {
				t.Errorf("SmoothTendency(%d, %d, %d) = %d, want %d", tt.b, tt.a, tt.n, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Inverse squeeze
// ============================================================================

func TestInverseRow_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		data []int32
	}{
		{"single", []int32{42}},
		{"two", []int32{10, 20}},
		{"four", []int32{1, 2, 3, 4}},
		{"odd", []int32{1, 2, 3, 4, 5, 6, 7}},
		{"ramp", []int32{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}},
		{"constant", []int32{50, 50, 50, 50, 50, 50, 50, 50}},
		{"alternating", []int32{-10, 10, -10, 10, -10, 10, -10, 10}},
		{"steps", []int32{0, 0, 255, 255, 0, 0, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg, res := forwardRow(tt.data)
			out := make([]int32, len(tt.data))
			InverseRow(out, avg, res)
			for i := range tt.data {
				if out[i] != tt.data[i] {
					t.Errorf("position %d: got %d, want %d", i, out[i], tt.data[i])
				}
			}
		})
	}
}

func TestInverseRow_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 200; iter++ {
		data := make([]int32, 1+rng.Intn(40))
		for i := range data {
			data[i] = int32(rng.Intn(1<<16) - 1<<15)
		}
		avg, res := forwardRow(data)
		out := make([]int32, len(data))
		InverseRow(out, avg, res)
		for i := range data {
			if out[i] != data[i] {
				t.Fatalf("iteration %d position %d: got %d, want %d", iter, i, out[i], data[i])
			}
		}
	}
}

func TestInverseHorizontal(t *testing.T) {
	width, height := 5, 3
	plane := []int32{
		1, 2, 3, 4, 5,
		9, 7, 5, 3, 1,
		0, 100, 0, 100, 0,
	}
	avgW, resW := 3, 2
	avg := make([]int32, avgW*height)
	res := make([]int32, resW*height)
	for y := 0; y < height; y++ {
		a, r := forwardRow(plane[y*width : (y+1)*width])
		copy(avg[y*avgW:], a)
		copy(res[y*resW:], r)
	}
	out := make([]int32, width*height)
	InverseHorizontal(out, avg, res, avgW, resW, height)
	for i := range plane {
		if out[i] != plane[i] {
			t.Errorf("position %d: got %d, want %d", i, out[i], plane[i])
		}
	}
}

func TestInverseVertical(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"even", 3, 4},
		{"odd", 2, 5},
		{"single row", 4, 1},
	}

	rng := rand.New(rand.NewSource(7))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plane := make([]int32, tt.width*tt.height)
			for i := range plane {
				plane[i] = int32(rng.Intn(512) - 256)
			}
			avgH, resH := (tt.height+1)/2, tt.height/2
			avg := make([]int32, tt.width*avgH)
			res := make([]int32, tt.width*resH)
			col := make([]int32, tt.height)
			for x := 0; x < tt.width; x++ {
				for y := range col {
					col[y] = plane[y*tt.width+x]
				}
				a, r := forwardRow(col)
				for y, v := range a {
					avg[y*tt.width+x] = v
				}
				for y, v := range r {
					res[y*tt.width+x] = v
				}
			}
			out := make([]int32, len(plane))
			InverseVertical(out, avg, res, tt.width, avgH, resH)
			for i := range plane {
				if out[i] != plane[i] {
					t.Errorf("position %d: got %d, want %d", i, out[i], plane[i])
				}
			}
		})
	}
}

func BenchmarkInverseRow(b *testing.B) {
	data := make([]int32, 1024)
	for i := range data {
		data[i] = int32(i * 7 % 255)
	}
	avg, res := forwardRow(data)
	out := make([]int32, len(data))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InverseRow(out, avg, res)
	}
}
