package entropy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// writeCode writes a canonical code word most significant bit first.
func writeCode(w *bio.Writer, code string) {
	for _, c := range code {
		if c == '1' {
			w.WriteBits(1, 1)
		} else {
			w.WriteBits(0, 1)
		}
	}
}

func TestPrefixDistribution_Simple(t *testing.T) {
	tests := []struct {
		name       string
		alphabet   int
		build      func(w *bio.Writer)
		codes      map[int]string
		treeSelect bool
	}{
		{
			name:     "one symbol",
			alphabet: 8,
			build: func(w *bio.Writer) {
				w.WriteBits(1, 2) // hskip: simple
				w.WriteBits(0, 2) // nsym-1
				w.WriteBits(6, 3)
			},
			codes: map[int]string{6: ""},
		},
		{
			name:     "two symbols sorted",
			alphabet: 20,
			build: func(w *bio.Writer) {
				w.WriteBits(1, 2)
				w.WriteBits(1, 2)
				w.WriteBits(18, 5)
				w.WriteBits(3, 5)
			},
			codes: map[int]string{3: "0", 18: "1"},
		},
		{
			name:     "three symbols",
			alphabet: 16,
			build: func(w *bio.Writer) {
				w.WriteBits(1, 2)
				w.WriteBits(2, 2)
				w.WriteBits(9, 4)
				w.WriteBits(5, 4)
				w.WriteBits(2, 4)
			},
			codes: map[int]string{9: "0", 2: "10", 5: "11"},
		},
		{
			name:     "four symbols flat",
			alphabet: 5,
			build: func(w *bio.Writer) {
				w.WriteBits(1, 2)
				w.WriteBits(3, 2)
				for _, s := range []uint64{3, 0, 4, 1} {
					w.WriteBits(s, 3)
				}
				w.WriteBool(false)
			},
			codes: map[int]string{0: "00", 1: "01", 3: "10", 4: "11"},
		},
		{
			name:     "four symbols tree select",
			alphabet: 5,
			build: func(w *bio.Writer) {
				w.WriteBits(1, 2)
				w.WriteBits(3, 2)
				for _, s := range []uint64{2, 4, 3, 0} {
					w.WriteBits(s, 3)
				}
				w.WriteBool(true)
			},
			codes: map[int]string{2: "0", 4: "10", 0: "110", 3: "111"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for sym, code := range tt.codes {
				w := bio.NewWriter()
				tt.build(w)
				writeCode(w, code)
				r := bio.NewReaderBytes(w.Bytes())
				d, err := ReadPrefixDistribution(r, tt.alphabet, HybridIntegerConfig{SplitExponent: 15})
				require.NoError(t, err)
				got, err := d.ReadSymbol(r, nil)
				require.NoError(t, err)
				require.Equal(t, sym, got, "code %q", code)
			}
		})
	}
}

func TestPrefixDistribution_Complex(t *testing.T) {
	w := bio.NewWriter()
	w.WriteBits(0, 2) // hskip 0
	// Code length code lengths for symbols 1, 2, 3: 1, 2, 2.
	w.WriteBits(3, 2)
	w.WriteBits(1, 1)
	w.WriteBits(0, 1)
	w.WriteBits(3, 2)
	w.WriteBits(0, 1)
	w.WriteBits(3, 2)
	w.WriteBits(0, 1)
	// Symbol lengths 1, 2, 3, 3 with code length codes "0", "10", "11".
	writeCode(w, "0")
	writeCode(w, "10")
	writeCode(w, "11")
	writeCode(w, "11")
	// Payload: 3, 0, 2, 1.
	writeCode(w, "111")
	writeCode(w, "0")
	writeCode(w, "110")
	writeCode(w, "10")

	r := bio.NewReaderBytes(w.Bytes())
	d, err := ReadPrefixDistribution(r, 4, HybridIntegerConfig{SplitExponent: 15})
	require.NoError(t, err)
	require.Equal(t, 4, d.AlphabetSize())
	for _, want := range []int{3, 0, 2, 1} {
		got, err := d.ReadSymbol(r, nil)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestPrefixDistribution_RepeatCodes(t *testing.T) {
	// Lengths: 2, then code 16 repeating 2 for 3 more symbols, so four symbols
	// of length 2 in an alphabet of 6 with two trailing zero lengths.
	w := bio.NewWriter()
	w.WriteBits(0, 2)
	// Code length code lengths in order 1, 2, 3, 4, 0, 5, 17, 6, 16:
	// symbol 2 -> 1, symbol 16 -> 1, everything else 0.
	w.WriteBits(0, 2) // 1
	w.WriteBits(3, 2) // 2: value 1
	w.WriteBits(1, 1)
	w.WriteBits(0, 1)
	w.WriteBits(0, 2) // 3
	w.WriteBits(0, 2) // 4
	w.WriteBits(0, 2) // 0
	w.WriteBits(0, 2) // 5
	w.WriteBits(0, 2) // 17
	w.WriteBits(0, 2) // 6
	w.WriteBits(3, 2) // 16: value 1
	w.WriteBits(1, 1)
	w.WriteBits(0, 1)
	writeCode(w, "0") // symbol 0: length 2
	writeCode(w, "1") // repeat previous length
	w.WriteBits(0, 2) // 3 times
	writeCode(w, "01")
	writeCode(w, "11")

	r := bio.NewReaderBytes(w.Bytes())
	d, err := ReadPrefixDistribution(r, 6, HybridIntegerConfig{SplitExponent: 15})
	require.NoError(t, err)
	for _, want := range []int{1, 3} {
		got, err := d.ReadSymbol(r, nil)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestPrefixDistribution_Errors(t *testing.T) {
	tests := []struct {
		name     string
		alphabet int
		build    func(w *bio.Writer)
	}{
		{
			name:     "duplicate simple symbol",
			alphabet: 8,
			build: func(w *bio.Writer) {
				w.WriteBits(1, 2)
				w.WriteBits(1, 2)
				w.WriteBits(5, 3)
				w.WriteBits(5, 3)
			},
		},
		{
			name:     "simple symbol out of range",
			alphabet: 5,
			build: func(w *bio.Writer) {
				w.WriteBits(1, 2)
				w.WriteBits(0, 2)
				w.WriteBits(7, 3)
			},
		},
		{
			name:     "incomplete code length code",
			alphabet: 8,
			build: func(w *bio.Writer) {
				w.WriteBits(0, 2)
				w.WriteBits(1, 2) // symbol 1 -> 4
				w.WriteBits(1, 2) // symbol 2 -> 4
				for i := 0; i < 16; i++ {
					w.WriteBits(0, 2)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := bio.NewWriter()
			tt.build(w)
			w.WriteBits(0, 32)
			_, err := ReadPrefixDistribution(bio.NewReaderBytes(w.Bytes()), tt.alphabet, HybridIntegerConfig{})
			if !errors.Is(err, jxlerr.ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestPrefixDistribution_SingleSymbolAlphabet(t *testing.T) {
	r := bio.NewReaderBytes(nil)
	d, err := ReadPrefixDistribution(r, 1, HybridIntegerConfig{})
	require.NoError(t, err)
	got, err := d.ReadSymbol(r, nil)
	require.NoError(t, err)
	require.Equal(t, 0, got)
	require.Zero(t, r.BitsRead())
}
