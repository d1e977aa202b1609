// Package jxlerr holds the error classes shared by the decoder packages.
package jxlerr

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed reports a bitstream that violates a structural constraint.
	ErrMalformed = errors.New("jpegxl: malformed bitstream")

	// ErrUnsupported reports a valid bitstream feature this decoder does not implement.
	ErrUnsupported = errors.New("jpegxl: unsupported feature")

	// ErrDecoderLogic reports a broken internal invariant, independent of the input.
	ErrDecoderLogic = errors.New("jpegxl: decoder invariant violated")

	// ErrOverflow reports dimensions whose product does not fit the address space.
	ErrOverflow = errors.New("jpegxl: dimension overflow")
)

// Malformed wraps ErrMalformed with the offending field and value.
func Malformed(field string, value any) error {
	return fmt.Errorf("%w: %s = %v", ErrMalformed, field, value)
}

// Unsupported wraps ErrUnsupported with the offending field and value.
func Unsupported(field string, value any) error {
	return fmt.Errorf("%w: %s = %v", ErrUnsupported, field, value)
}

// MulExact returns a*b, failing with ErrOverflow when the product does not
// fit an int or either factor is negative.
func MulExact(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: negative factor %d x %d", ErrOverflow, a, b)
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a || p < 0 {
		return 0, fmt.Errorf("%w: %d x %d", ErrOverflow, a, b)
	}
	return p, nil
}
