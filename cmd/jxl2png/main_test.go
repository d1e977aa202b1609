package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/xfmoulet/qoi"

	"github.com/mrjoshuak/go-jpegxl/internal/jxltest"
)

// run executes the command with args and a discarding logger.
func run(t *testing.T, args ...string) (*logtest.Hook, error) {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	cmd := newRootCmd(log)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return hook, cmd.Execute()
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := jxltest.Codestream(jxltest.Gray2x2, jxltest.NorthFrame)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// ============================================================================
// Flags
// ============================================================================

func TestRootCmd_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no inputs", nil},
		{"bit depth", []string{"--bit-depth", "12", "a.jxl"}},
		{"deflate level", []string{"--deflate-level", "10", "a.jxl"}},
		{"format", []string{"--format", "webp", "a.jxl"}},
		{"jobs", []string{"--jobs", "0", "a.jxl"}},
		{"peak detect", []string{"--peak-detect", "maybe", "a.jxl"}},
		{"max pixels", []string{"--max-pixels", "-1", "a.jxl"}},
		{"unknown flag", []string{"--quality", "90", "a.jxl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestRootCmd_Defaults(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cmd := newRootCmd(log)
	require.NoError(t, cmd.ParseFlags([]string{"-j", "3", "-f", "qoi", "--hdr"}))

	jobs, err := cmd.Flags().GetInt("jobs")
	require.NoError(t, err)
	require.Equal(t, 3, jobs)
	format, err := cmd.Flags().GetString("format")
	require.NoError(t, err)
	require.Equal(t, formatQOI, format)
	level, err := cmd.Flags().GetInt("deflate-level")
	require.NoError(t, err)
	require.Equal(t, -1, level)
	peak, err := cmd.Flags().GetString("peak-detect")
	require.NoError(t, err)
	require.Equal(t, "auto", peak)
}

func TestOptions_OutputPath(t *testing.T) {
	o := &options{format: formatPNG}
	require.Equal(t, filepath.Join("in", "cat.png"), o.outputPath(filepath.Join("in", "cat.jxl")))

	o = &options{format: formatQOI, outDir: "out"}
	require.Equal(t, filepath.Join("out", "cat.qoi"), o.outputPath(filepath.Join("in", "cat.jxl")))
	require.Equal(t, filepath.Join("out", "noext.qoi"), o.outputPath("noext"))
}

// ============================================================================
// Conversion
// ============================================================================

func TestConvert_PNG(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.jxl")
	b := writeInput(t, dir, "b.jxl")
	out := filepath.Join(dir, "out")

	hook, err := run(t, "--out-dir", out, "--jobs", "2", a, b)
	require.NoError(t, err)
	require.Len(t, hook.AllEntries(), 2)

	for _, name := range []string{"a.png", "b.png"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		g, ok := img.(*image.Gray)
		require.True(t, ok, "%s decoded as %T", name, img)
		require.Equal(t, []byte{1, 2, 2, 3}, g.Pix)
	}
}

func TestConvert_SixteenBitPNG(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "deep.jxl")
	_, err := run(t, "--bit-depth", "16", in)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "deep.png"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	_, ok := img.(*image.Gray16)
	require.True(t, ok, "decoded as %T", img)
}

func TestConvert_QOI(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "a.jxl")
	_, err := run(t, "--format", "qoi", in)
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "a.qoi"))
	require.NoError(t, err)
	defer f.Close()
	img, err := qoi.Decode(f)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	r, _, _, a := img.At(1, 1).RGBA()
	require.Equal(t, uint32(3*0x101), r)
	require.Equal(t, uint32(0xFFFF), a)
}

func TestConvert_FailureReported(t *testing.T) {
	dir := t.TempDir()
	good := writeInput(t, dir, "good.jxl")
	bad := filepath.Join(dir, "bad.jxl")
	require.NoError(t, os.WriteFile(bad, []byte("not a jxl file"), 0o644))

	hook, err := run(t, "--verbose", good, bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.jxl")

	_, err = os.Stat(filepath.Join(dir, "good.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "bad.png"))
	require.True(t, os.IsNotExist(err), "partial output left behind")

	var failed int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failed++
			require.Equal(t, bad, e.Data["file"])
		}
	}
	require.Equal(t, 1, failed)
}

func TestConvert_MissingInput(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.jxl"))
	require.Error(t, err)
}
