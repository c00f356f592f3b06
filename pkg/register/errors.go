package register

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	ErrInvalidConfig          = errors.New("invalid register config")
	ErrUnknownFamily          = errors.New("unknown register family")
	ErrUnsupported            = errors.New("register access not supported")
	ErrTransitionsUnsupported = errors.New("transition filters not supported")
	ErrMaskOutOfRange         = errors.New("mask out of range")
	ErrMismatch               = errors.New("read-back mismatch")
)

// MismatchError reports a read-back that disagrees with the value written.
// The engine's cache holds the read-back value.
type MismatchError struct {
	Family   Family
	Field    Field
	Written  uint16
	ReadBack uint16
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s %s: wrote 0x%04X, read back 0x%04X", e.Family, e.Field, e.Written, e.ReadBack)
}

// Is reports whether target is ErrMismatch.
func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}
