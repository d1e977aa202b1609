package codestream

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// Parser reads the image header of a JPEG XL codestream.
type Parser struct {
	r      *bio.Reader
	header *ImageHeader
	state  parserState
}

// parserState tracks the parser state machine.
type parserState int

const (
	stateInit parserState = iota
	stateSignature
	stateImageHeader
	stateICC
	stateFrames
)

// NewParser creates a new codestream parser.
func NewParser(r *bio.Reader) *Parser {
	return &Parser{
		r:      r,
		header: &ImageHeader{},
		state:  stateInit,
	}
}

// ReadHeader reads the signature, size header, image metadata and the
// optional ICC profile. On return the reader is byte aligned at the first
// frame header.
func (p *Parser) ReadHeader() (*ImageHeader, error) {
	if p.state != stateInit {
		return nil, fmt.Errorf("codestream: header already read: %w", jxlerr.ErrDecoderLogic)
	}

	sig, err := p.r.ReadBits(16)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	if sig != Signature {
		return nil, jxlerr.Malformed("codestream signature", fmt.Sprintf("%#04x", sig))
	}
	p.state = stateSignature

	size, err := readSizeHeader(p.r)
	if err != nil {
		return nil, fmt.Errorf("failed to read size header: %w", err)
	}
	p.header.Width, p.header.Height = size.Width, size.Height

	if err := readImageMetadata(p.r, p.header); err != nil {
		return nil, fmt.Errorf("failed to read image metadata: %w", err)
	}
	p.state = stateImageHeader

	if p.header.ColorEncoding.WantICC {
		icc, err := ReadICC(p.r)
		if err != nil {
			return nil, fmt.Errorf("failed to read ICC profile: %w", err)
		}
		p.header.ICCProfile = icc
	}
	p.state = stateICC

	if err := p.r.ZeroPadToByte(); err != nil {
		return nil, fmt.Errorf("failed to align to first frame: %w", err)
	}
	p.state = stateFrames
	return p.header, nil
}

// Header returns the parsed header, or nil before ReadHeader succeeds.
func (p *Parser) Header() *ImageHeader {
	if p.state != stateFrames {
		return nil
	}
	return p.header
}
