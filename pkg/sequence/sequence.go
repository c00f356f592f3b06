// Package sequence drives the reset/clear/initialize protocol every session
// completes before higher-level subsystems may trust the instrument.
//
// The protocol has four steps, always run in this order:
//
//	CLEAR_ACTIVE_STATE     selective device clear
//	RESET_KNOWN_STATE      drop register caches, reset, re-read device facts
//	CLEAR_EXECUTION_STATE  clear status, preset and program steady-state masks
//	INIT_KNOWN_STATE       discard stale output, read identity, define labels
//
// Each step ends with a settle delay followed by a status byte check; an
// error bit set at that point fails the step with a *scpi.DeviceError
// carrying the device's error queue.
package sequence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sequencing errors are contract violations, never retried.
var (
	ErrSequencing              = errors.New("sequencing error")
	ErrNotInitialized          = fmt.Errorf("%w: instrument not initialized", ErrSequencing)
	ErrStatusSubsystemRequired = fmt.Errorf("%w: status-only mode requires a status subsystem", ErrSequencing)
	ErrInvalidConfig           = errors.New("invalid sequencer config")
)

// SupportMode selects which parts of the sequence run.
type SupportMode uint8

const (
	// SupportFull runs every step with subsystem hooks.
	SupportFull SupportMode = iota

	// SupportStatusOnly runs steps 2-4 for the status subsystem only.
	SupportStatusOnly

	// SupportNative skips steps 2-4; the instrument manages its own state.
	SupportNative
)

// String returns the mode name.
func (m SupportMode) String() string {
	switch m {
	case SupportFull:
		return "FULL"
	case SupportStatusOnly:
		return "STATUS_ONLY"
	case SupportNative:
		return "NATIVE"
	default:
		return "UNKNOWN"
	}
}

// ParseSupportMode parses "full", "status-only" or "native".
func ParseSupportMode(s string) (SupportMode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")) {
	case "", "full":
		return SupportFull, nil
	case "status-only", "status":
		return SupportStatusOnly, nil
	case "native":
		return SupportNative, nil
	}
	return SupportFull, fmt.Errorf("%w: unknown support mode %q", ErrInvalidConfig, s)
}

// Step identifies one step of the sequence.
type Step uint8

const (
	StepClearActiveState Step = iota
	StepResetKnownState
	StepClearExecutionState
	StepInitKnownState
)

// Steps lists the steps in execution order.
var Steps = []Step{
	StepClearActiveState,
	StepResetKnownState,
	StepClearExecutionState,
	StepInitKnownState,
}

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepClearActiveState:
		return "CLEAR_ACTIVE_STATE"
	case StepResetKnownState:
		return "RESET_KNOWN_STATE"
	case StepClearExecutionState:
		return "CLEAR_EXECUTION_STATE"
	case StepInitKnownState:
		return "INIT_KNOWN_STATE"
	default:
		return "UNKNOWN"
	}
}

// Phase is the progress of a step.
type Phase uint8

const (
	PhaseStarted Phase = iota
	PhaseCompleted
	PhaseFailed
	PhaseSkipped
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "STARTED"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseFailed:
		return "FAILED"
	case PhaseSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// StepEvent reports step progress to OnStep subscribers.
type StepEvent struct {
	Step     Step
	Phase    Phase
	Duration time.Duration
	Err      error
}
