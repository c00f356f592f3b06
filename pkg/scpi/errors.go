package scpi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDevice is matched by every *DeviceError via errors.Is.
var ErrDevice = errors.New("device error")

// DeviceError is an error the instrument itself reported through its error
// bit and error queue.
type DeviceError struct {
	// Code is the device's error number; 0 means no error.
	Code int

	// Message is the device's error text.
	Message string

	// StatusByte is the status byte that flagged the error, if known.
	StatusByte uint8

	// More holds further entries drained from the queue after this one.
	More []DeviceError
}

// Error implements error.
func (e *DeviceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "device error %d", e.Code)
	if e.Message != "" {
		fmt.Fprintf(&b, ", %q", e.Message)
	}
	if e.StatusByte != 0 {
		fmt.Fprintf(&b, " (status byte 0x%02X)", e.StatusByte)
	}
	if n := len(e.More); n > 0 {
		fmt.Fprintf(&b, " and %d more", n)
	}
	return b.String()
}

// Is reports ErrDevice as the kind of every DeviceError.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}

// IsNoError reports whether the entry is the "0, No error" sentinel.
func (e *DeviceError) IsNoError() bool {
	return e == nil || e.Code == 0
}
