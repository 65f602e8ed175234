package convert

import (
	"errors"
	"fmt"

	"pixelbatch/internal/format"
)

// Failure stages of the conversion algorithm.
const (
	OpDecode  = "decode"
	OpSurface = "surface"
	OpEncode  = "encode"
)

// ConversionError is the only error kind the conversion core raises. It
// carries the file name and target format for diagnostics.
type ConversionError struct {
	FileName string
	Format   format.Format
	Op       string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s to %s: %s failed: %v", e.FileName, e.Format, e.Op, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// AsConversionError unwraps err into a *ConversionError if it is one.
func AsConversionError(err error) (*ConversionError, bool) {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
