package srq

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// Dispatcher errors.
var (
	ErrInvalidConfig   = errors.New("invalid dispatcher config")
	ErrNotSupported    = errors.New("service request not supported by channel")
	ErrStopped         = errors.New("dispatcher stopped")
	ErrErrorAvailable  = errors.New("device reported an error")
	ErrPollingDisabled = errors.New("polling disabled")
)

// Mode selects how service requests are delivered.
type Mode uint8

const (
	// ModeNone disables background delivery. Callers poll explicitly.
	ModeNone Mode = iota

	// ModeEventDriven attaches a handler to the channel's hardware SRQ.
	ModeEventDriven

	// ModePolled reads the status byte on a repeating timer.
	ModePolled
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModeEventDriven:
		return "EVENT_DRIVEN"
	case ModePolled:
		return "POLLED"
	default:
		return "UNKNOWN"
	}
}

// ParseMode parses "none", "srq"/"event_driven" or "poll"/"polled".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "srq", "event", "event_driven", "event-driven":
		return ModeEventDriven, nil
	case "poll", "polled":
		return ModePolled, nil
	}
	return ModeNone, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

// Source identifies where a status byte came from.
type Source uint8

const (
	SourcePoll Source = iota
	SourceServiceRequest
	SourceForeground
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourcePoll:
		return "POLL"
	case SourceServiceRequest:
		return "SRQ"
	case SourceForeground:
		return "FOREGROUND"
	default:
		return "UNKNOWN"
	}
}

// Bits selects the status byte bits the dispatcher interprets.
type Bits struct {
	MessageAvailable  byte
	ErrorAvailable    byte
	OperationEvent    byte
	QuestionableEvent byte
	StandardEvent     byte
}

// DefaultBits returns the IEEE-488.2/SCPI assignments.
func DefaultBits() Bits {
	return Bits{
		MessageAvailable:  scpi.StatusMessageAvailable,
		ErrorAvailable:    scpi.StatusErrorAvailable,
		OperationEvent:    scpi.StatusOperationSummary,
		QuestionableEvent: scpi.StatusQuestionableSummary,
		StandardEvent:     scpi.StatusEventSummary,
	}
}

// State is the last status byte snapshot and its derived flags.
type State struct {
	StatusByte byte
	Known      bool
	Source     Source
	At         time.Time

	MessageAvailable         bool
	ErrorAvailable           bool
	OperationEventPending    bool
	QuestionableEventPending bool
	StandardEventPending     bool

	// HardwareActive and PollActive are never both true.
	HardwareActive bool
	PollActive     bool
}

func (b Bits) derive(stb byte, src Source, at time.Time) State {
	return State{
		StatusByte:               stb,
		Known:                    true,
		Source:                   src,
		At:                       at,
		MessageAvailable:         b.MessageAvailable != 0 && stb&b.MessageAvailable != 0,
		ErrorAvailable:           b.ErrorAvailable != 0 && stb&b.ErrorAvailable != 0,
		OperationEventPending:    b.OperationEvent != 0 && stb&b.OperationEvent != 0,
		QuestionableEventPending: b.QuestionableEvent != 0 && stb&b.QuestionableEvent != 0,
		StandardEventPending:     b.StandardEvent != 0 && stb&b.StandardEvent != 0,
	}
}

// Notification is the normalized service request signal delivered to
// subscribers regardless of mode.
type Notification struct {
	State
	Reading    string
	HasReading bool
}

// Diagnostics is the session context attached to handler failures.
type Diagnostics struct {
	LastAction   string
	LastSent     string
	LastReceived string
}

// HandlerError is a failure inside the service request process hook,
// tagged with the context needed to diagnose it. It is reported, never
// returned to the session.
type HandlerError struct {
	Err          error
	StatusByte   byte
	Description  string
	LastAction   string
	LastSent     string
	LastReceived string
}

func (e *HandlerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "service request handler failed: %v (status byte 0x%02X", e.Err, e.StatusByte)
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	b.WriteString(")")
	if e.LastAction != "" {
		fmt.Fprintf(&b, "; last action %q", e.LastAction)
	}
	if e.LastSent != "" {
		fmt.Fprintf(&b, "; last sent %q", e.LastSent)
	}
	if e.LastReceived != "" {
		fmt.Fprintf(&b, "; last received %q", e.LastReceived)
	}
	return b.String()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// DescribeStatusByte names the set bits of a status byte.
func DescribeStatusByte(stb byte) string {
	var names []string
	for bit := 0; bit < 8; bit++ {
		if stb&(1<<bit) == 0 {
			continue
		}
		if l, ok := scpi.StatusByteLabels[bit]; ok {
			names = append(names, l)
		} else {
			names = append(names, fmt.Sprintf("bit %d", bit))
		}
	}
	return strings.Join(names, ", ")
}
