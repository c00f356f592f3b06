package session

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	ErrAlreadyOpen       = errors.New("session already open")
	ErrNotOpen           = errors.New("session not open")
	ErrSessionClosed     = errors.New("session closed")
	ErrOperationFailed   = errors.New("operation failed")
	ErrOperationCanceled = errors.New("operation canceled")
	ErrInvalidConfig     = errors.New("invalid session configuration")
	ErrTimeoutStack      = errors.New("timeout stack empty")
)

// State is the lifecycle state of a Manager.
type State uint8

const (
	// StateUnopened - created, never opened.
	StateUnopened State = iota

	// StateOpening - open in progress.
	StateOpening

	// StateOpen - open and initialized.
	StateOpen

	// StateClosing - close in progress.
	StateClosing

	// StateClosed - closed. Terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnopened:
		return "UNOPENED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Steps named in an OperationError.
const (
	StepBeforeOpening   = "handling before opening actions"
	StepOpenChannel     = "opening"
	StepOpening         = "handling opening actions"
	StepSequence        = "initializing device"
	StepNotification    = "starting service requests"
	StepInitializing    = "handling initializing actions"
	StepInitialized     = "handling initialized actions"
	StepCloseChannel    = "closing"
	StepServiceRequests = "stopping service requests"
)

// OperationError reports the step at which Open or Close failed.
type OperationError struct {
	Step     string
	Err      error
	Canceled bool
}

func (e *OperationError) Error() string {
	if e.Canceled {
		if e.Err != nil {
			return fmt.Sprintf("%s canceled: %v", e.Step, e.Err)
		}
		return e.Step + " canceled"
	}
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

// Unwrap returns the sentinel for the outcome and the cause.
func (e *OperationError) Unwrap() []error {
	kind := ErrOperationFailed
	if e.Canceled {
		kind = ErrOperationCanceled
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

// Provenance says where a device fact came from.
type Provenance uint8

const (
	// ProvenanceUnknown - no value.
	ProvenanceUnknown Provenance = iota

	// ProvenanceAssumed - a profile default, not read from the device.
	ProvenanceAssumed

	// ProvenanceMeasured - read from the device since the last reset.
	ProvenanceMeasured
)

// String returns the provenance name.
func (p Provenance) String() string {
	switch p {
	case ProvenanceUnknown:
		return "UNKNOWN"
	case ProvenanceAssumed:
		return "ASSUMED"
	case ProvenanceMeasured:
		return "MEASURED"
	default:
		return "INVALID"
	}
}

// Fact is a device value together with its provenance.
type Fact struct {
	Value      float64
	Provenance Provenance
}

// Known reports whether the fact has a value, assumed or measured.
func (f Fact) Known() bool {
	return f.Provenance != ProvenanceUnknown
}

func (f Fact) String() string {
	if !f.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%g (%s)", f.Value, f.Provenance)
}
