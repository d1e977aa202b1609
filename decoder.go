package jpegxl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/box"
	"github.com/mrjoshuak/go-jpegxl/internal/codestream"
	"github.com/mrjoshuak/go-jpegxl/internal/color"
	"github.com/mrjoshuak/go-jpegxl/internal/frame"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
	"github.com/mrjoshuak/go-jpegxl/internal/raster"
)

// decoder handles JPEG XL decoding.
type decoder struct {
	r         *bufio.Reader
	cfg       *Config
	log       logrus.FieldLogger
	container *box.Container
	bits      *bio.Reader
	header    *codestream.ImageHeader
}

// newDecoder creates a new decoder.
func newDecoder(r io.Reader, cfg *Config) *decoder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &decoder{
		r:   bufio.NewReader(r),
		cfg: cfg,
		log: log,
	}
}

// decode decodes the image.
func (d *decoder) decode() (*Image, error) {
	if err := d.readFormat(); err != nil {
		return nil, fmt.Errorf("reading format: %w", err)
	}
	if err := d.readHeader(); err != nil {
		return nil, fmt.Errorf("reading image header: %w", err)
	}
	planes, err := d.decodeFrames()
	if err != nil {
		return nil, fmt.Errorf("decoding frames: %w", err)
	}
	img, err := d.newImage(planes)
	if err != nil {
		return nil, err
	}
	d.log.WithFields(logrus.Fields{
		"size":     fmt.Sprintf("%dx%d", img.Width, img.Height),
		"planes":   len(planes),
		"encoding": img.ColorEncoding(),
	}).Debug("image decoded")
	return img, nil
}

// readMetadata reads only the metadata without decoding.
func (d *decoder) readMetadata() (*Metadata, error) {
	if err := d.readFormat(); err != nil {
		return nil, err
	}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	h := d.header
	m := &Metadata{
		Container:        d.container != nil,
		Level:            5,
		Width:            int(h.Width),
		Height:           int(h.Height),
		BitsPerSample:    int(h.BitDepth.BitsPerSample),
		FloatSamples:     h.BitDepth.FloatSample,
		Gray:             h.IsGray(),
		XYB:              h.XYBEncoded,
		NumExtraChannels: len(h.ExtraChannels),
		Animated:         h.Animation != nil,
		Orientation:      h.Orientation,
		IntensityTarget:  h.ToneMapping.IntensityTarget,
		ICCProfile:       h.ICCProfile,
	}
	if a := h.AlphaIndex(); a >= 0 {
		m.HasAlpha = true
		m.AlphaPremultiplied = h.ExtraChannels[a].AlphaAssociated
	}
	if !h.ColorEncoding.WantICC {
		if enc, err := color.FromColorEncoding(h.ColorEncoding); err == nil {
			m.ColorEncoding = enc.String()
		}
	}
	if c := d.container; c != nil {
		m.Level, m.Exif, m.XMP = c.Level, c.Exif, c.XMP
	}
	return m, nil
}

// readFormat detects a bare codestream or a container and sets up the bit
// reader at the codestream signature.
func (d *decoder) readFormat() error {
	magic, _ := d.r.Peek(len(box.Signature))
	if len(magic) < 2 {
		return fmt.Errorf("reading signature: %w", ErrTruncated)
	}
	if magic[0] == 0xFF && magic[1] == 0x0A {
		d.bits = bio.NewReader(d.r)
		return nil
	}
	if !box.IsContainer(magic) {
		if len(magic) < len(box.Signature) && bytes.HasPrefix(box.Signature, magic) {
			return fmt.Errorf("reading container signature: %w", ErrTruncated)
		}
		return jxlerr.Malformed("signature", fmt.Sprintf("% x", magic))
	}

	c, err := box.Demux(d.r)
	if err != nil {
		return err
	}
	d.container = c
	d.bits = bio.NewReaderBytes(c.Codestream)
	d.log.WithFields(logrus.Fields{
		"level": c.Level,
		"boxes": len(c.Boxes),
		"bytes": len(c.Codestream),
	}).Debug("container read")
	return nil
}

// readHeader parses the image header and checks the image area.
func (d *decoder) readHeader() error {
	h, err := codestream.NewParser(d.bits).ReadHeader()
	if err != nil {
		return err
	}
	if d.cfg.MaxPixels > 0 && int64(h.Width)*int64(h.Height) > d.cfg.MaxPixels {
		return fmt.Errorf("image %dx%d exceeds the pixel limit %d: %w",
			h.Width, h.Height, d.cfg.MaxPixels, ErrOverflow)
	}
	d.header = h
	d.log.WithFields(logrus.Fields{
		"size":           fmt.Sprintf("%dx%d", h.Width, h.Height),
		"bits":           h.BitDepth.BitsPerSample,
		"xyb":            h.XYBEncoded,
		"extra_channels": len(h.ExtraChannels),
		"icc":            h.ColorEncoding.WantICC,
	}).Debug("image header read")
	return nil
}

// decodeFrames decodes every frame up to the last one and returns the
// composed canvas. An animation stops at its first displayed frame.
func (d *decoder) decodeFrames() ([]*raster.Buffer, error) {
	opts := frame.Options{Logger: d.log, MaxPixels: d.cfg.MaxPixels}

	if p := d.header.Preview; p != nil {
		preview := *d.header
		preview.Width, preview.Height = p.Width, p.Height
		preview.Animation = nil
		f, err := frame.ReadFrame(d.bits, &preview, 0, opts)
		if err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}
		if err := f.Decode(d.bits); err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}
		d.log.Debug("preview frame skipped")
	}

	var canvas []*raster.Buffer
	for i := 0; ; i++ {
		f, err := frame.ReadFrame(d.bits, d.header, i, opts)
		if err != nil {
			return nil, err
		}
		if err := f.Decode(d.bits); err != nil {
			return nil, err
		}
		h := f.Header
		if h.Type == frame.TypeReferenceOnly {
			d.log.WithField("frame", i).Debug("reference frame discarded")
		} else {
			planes, err := f.Render()
			if err != nil {
				return nil, err
			}
			if canvas, err = d.compose(canvas, planes, h); err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
		}
		if h.IsLast {
			break
		}
		if d.header.Animation != nil && h.Duration > 0 && canvas != nil {
			d.log.WithField("frame", i).Debug("first animation frame complete")
			break
		}
	}
	if canvas == nil {
		return nil, jxlerr.Malformed("displayed frames", 0)
	}
	return canvas, nil
}

// compose replaces the region of the canvas covered by a frame. A frame
// covering the whole image becomes the canvas.
func (d *decoder) compose(canvas, planes []*raster.Buffer, h *frame.Header) ([]*raster.Buffer, error) {
	w, ht := int(d.header.Width), int(d.header.Height)
	if h.X0 == 0 && h.Y0 == 0 && int(h.Width) == w && int(h.Height) == ht {
		return planes, nil
	}
	depths := d.bitDepths()
	if canvas == nil {
		canvas = make([]*raster.Buffer, len(planes))
		for c, p := range planes {
			var err error
			if p.IsFloat() {
				canvas[c], err = raster.NewFloat(w, ht)
			} else {
				canvas[c], err = raster.NewInt(w, ht)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	for c, p := range planes {
		if p.IsFloat() != canvas[c].IsFloat() {
			m := maxSample(depths[c])
			p.CastToFloat(m)
			canvas[c].CastToFloat(m)
		}
		if err := canvas[c].Paste(p, int(h.X0), int(h.Y0)); err != nil {
			return nil, err
		}
	}
	return canvas, nil
}

func maxSample(bits int) int32 {
	return int32(uint32(1)<<bits - 1)
}

// bitDepths returns the tagged bit depth of the colour planes followed by
// that of each extra channel.
func (d *decoder) bitDepths() []int {
	h := d.header
	numColor := 3
	if h.IsGray() && !h.XYBEncoded {
		numColor = 1
	}
	depths := make([]int, 0, numColor+len(h.ExtraChannels))
	for i := 0; i < numColor; i++ {
		depths = append(depths, int(h.BitDepth.BitsPerSample))
	}
	for _, ec := range h.ExtraChannels {
		depths = append(depths, int(ec.BitDepth.BitsPerSample))
	}
	return depths
}

// newImage wraps the canvas with its colour interpretation.
func (d *decoder) newImage(planes []*raster.Buffer) (*Image, error) {
	h := d.header
	depths := d.bitDepths()
	if len(depths) != len(planes) {
		return nil, fmt.Errorf("jpegxl: %d planes for %d bit depths: %w", len(planes), len(depths), ErrDecoderLogic)
	}
	numColor := len(planes) - len(h.ExtraChannels)
	m := &Image{
		Width:           int(h.Width),
		Height:          int(h.Height),
		BitDepth:        int(h.BitDepth.BitsPerSample),
		Gray:            numColor == 1,
		XYB:             h.XYBEncoded,
		AlphaIndex:      h.AlphaIndex(),
		IntensityTarget: h.ToneMapping.IntensityTarget,
		Orientation:     h.Orientation,
		planes:          planes,
		bitDepths:       depths,
	}
	if m.AlphaIndex >= 0 {
		m.Premultiplied = h.ExtraChannels[m.AlphaIndex].AlphaAssociated
	}

	switch {
	case h.XYBEncoded:
		m.encoding = color.LinearSRGB
	case h.ColorEncoding.WantICC:
		m.ICCProfile = h.ICCProfile
		m.encoding = color.SRGB.WithGray(m.Gray)
	default:
		enc, err := color.FromColorEncoding(h.ColorEncoding)
		if err != nil {
			return nil, err
		}
		m.encoding = enc.WithGray(m.Gray)
		m.HDR = enc.IsHDR()
	}
	if c := d.container; c != nil {
		m.Exif, m.XMP = c.Exif, c.XMP
	}
	return m, nil
}
