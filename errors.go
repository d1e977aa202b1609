package jpegxl

import (
	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// Error classes. Every decode failure wraps exactly one of these, or an
// I/O error from the source, so errors.Is can tell them apart. The
// message carries the field and value that failed.
var (
	// ErrTruncated reports that the input ended inside a structure.
	ErrTruncated = bio.ErrEndOfStream

	// ErrMalformed reports a value the format does not allow.
	ErrMalformed = jxlerr.ErrMalformed

	// ErrUnsupported reports a valid feature this decoder does not
	// implement, such as VarDCT frames.
	ErrUnsupported = jxlerr.ErrUnsupported

	// ErrOverflow reports a size beyond the configured limits or one that
	// does not fit in memory.
	ErrOverflow = jxlerr.ErrOverflow

	// ErrDecoderLogic reports misuse of the API or an internal
	// inconsistency.
	ErrDecoderLogic = jxlerr.ErrDecoderLogic
)
