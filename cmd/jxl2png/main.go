// Command jxl2png converts JPEG XL files to PNG or QOI.
//
//	jxl2png [flags] files...
//
// Each input is written next to itself, or into --out-dir, with its
// extension replaced. Files are converted concurrently.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/xfmoulet/qoi"
	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/go-jpegxl"
)

// Output formats.
const (
	formatPNG = "png"
	formatQOI = "qoi"
)

type options struct {
	outDir       string
	bitDepth     int
	hdr          bool
	deflateLevel int
	peakDetect   string
	format       string
	jobs         int
	maxPixels    int64
	verbose      bool
}

func main() {
	if err := newRootCmd(logrus.StandardLogger()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(log *logrus.Logger) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "jxl2png [flags] files...",
		Short: "Convert JPEG XL images to PNG",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return o.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return convertAll(log, o, args)
		},
		SilenceUsage: true,
	}
	f := cmd.Flags()
	f.StringVarP(&o.outDir, "out-dir", "o", "", "write outputs into this directory instead of next to the inputs")
	f.IntVar(&o.bitDepth, "bit-depth", 0, "PNG bit depth, 8 or 16 (0 picks from the source)")
	f.BoolVar(&o.hdr, "hdr", false, "write BT.2100 PQ with an HDR ICC profile instead of sRGB")
	f.IntVar(&o.deflateLevel, "deflate-level", zlib.DefaultCompression, "zlib level from -2 (Huffman only) to 9")
	f.StringVar(&o.peakDetect, "peak-detect", "auto", "HDR peak detection: auto, on or off")
	f.StringVarP(&o.format, "format", "f", formatPNG, "output format: png or qoi")
	f.IntVarP(&o.jobs, "jobs", "j", runtime.NumCPU(), "files converted in parallel")
	f.Int64Var(&o.maxPixels, "max-pixels", jpegxl.DefaultMaxPixels, "reject images with more pixels (0 for no limit)")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log decoding progress")
	return cmd
}

func (o *options) validate() error {
	switch {
	case o.bitDepth != 0 && o.bitDepth != 8 && o.bitDepth != 16:
		return fmt.Errorf("--bit-depth must be 0, 8 or 16, got %d", o.bitDepth)
	case o.deflateLevel < zlib.HuffmanOnly || o.deflateLevel > zlib.BestCompression:
		return fmt.Errorf("--deflate-level must be in [%d, %d], got %d",
			zlib.HuffmanOnly, zlib.BestCompression, o.deflateLevel)
	case o.format != formatPNG && o.format != formatQOI:
		return fmt.Errorf("--format must be png or qoi, got %q", o.format)
	case o.jobs < 1:
		return fmt.Errorf("--jobs must be at least 1, got %d", o.jobs)
	case o.maxPixels < 0:
		return fmt.Errorf("--max-pixels must not be negative, got %d", o.maxPixels)
	}
	if _, err := jpegxl.ParsePeakDetect(o.peakDetect); err != nil {
		return fmt.Errorf("--peak-detect: %w", err)
	}
	return nil
}

// outputPath returns where the conversion of in is written.
func (o *options) outputPath(in string) string {
	name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + "." + o.format
	dir := o.outDir
	if dir == "" {
		dir = filepath.Dir(in)
	}
	return filepath.Join(dir, name)
}

// convertAll converts every input, at most o.jobs at a time. Every failure
// is logged; the first one is returned.
func convertAll(log *logrus.Logger, o *options, inputs []string) error {
	if o.outDir != "" {
		if err := os.MkdirAll(o.outDir, 0o755); err != nil {
			return err
		}
	}
	var g errgroup.Group
	g.SetLimit(o.jobs)
	for _, in := range inputs {
		in := in
		g.Go(func() error {
			entry := log.WithField("file", in)
			out := o.outputPath(in)
			if err := convert(entry, o, in, out); err != nil {
				entry.WithError(err).Error("conversion failed")
				return fmt.Errorf("%s: %w", in, err)
			}
			entry.WithField("out", out).Info("converted")
			return nil
		})
	}
	return g.Wait()
}

func convert(log logrus.FieldLogger, o *options, in, out string) (err error) {
	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	img, err := jpegxl.DecodeImage(src, &jpegxl.Config{MaxPixels: o.maxPixels, Logger: log})
	if err != nil {
		return err
	}

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
		}
	}()

	if o.format == formatQOI {
		m, err := img.ToImage()
		if err != nil {
			return err
		}
		return qoi.Encode(dst, m)
	}
	peak, _ := jpegxl.ParsePeakDetect(o.peakDetect)
	return jpegxl.EncodePNG(dst, img, &jpegxl.PNGOptions{
		BitDepth:     o.bitDepth,
		DeflateLevel: o.deflateLevel,
		HDR:          o.hdr,
		PeakDetect:   peak,
	})
}
