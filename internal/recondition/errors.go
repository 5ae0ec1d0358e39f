package recondition

import (
	"errors"
	"fmt"
)

var (
	ErrUsage            = errors.New("usage")
	ErrShapeMismatch    = errors.New("source shape mismatch")
	ErrIOFailure        = errors.New("I/O failure")
	ErrInvalidStepSize  = errors.New("invalid step size")
	ErrInvalidPolicy    = errors.New("invalid policy")
	ErrUnsupportedDType = errors.New("unsupported element type")
)

// ioFailure wraps err as an ErrIOFailure while keeping err itself
// reachable through errors.Is and errors.As.
func ioFailure(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, what, err)
}

func invalidPolicy(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidPolicy, fmt.Sprintf(format, args...))
}

func usageError(msg string) error {
	return fmt.Errorf("%w: %s", ErrUsage, msg)
}
