package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrHeaderTooLarge    = errors.New("header exceeds maximum size")
	ErrInvalidOffsets    = errors.New("invalid tensor offsets")
	ErrUnsupportedDType  = errors.New("unsupported dtype")
	ErrInvalidTensorName = errors.New("invalid tensor name")
	ErrTooManyTensors    = errors.New("too many tensors in file")
	ErrChecksumMismatch  = errors.New("checksum mismatch: file may be corrupted")
	ErrTruncated         = errors.New("file truncated")
)

// ValidationError provides detailed information about validation failures.
//
// It unwraps to one of the sentinel errors above, so callers can use
// errors.Is without parsing messages.
type ValidationError struct {
	Err     error  // Sentinel describing the failure class
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%v: tensors %q and %q: %s", e.Err, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%v: tensor %q: %s", e.Err, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Details)
}

// Unwrap returns the sentinel error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
