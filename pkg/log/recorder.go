package log

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// Recorder stamps events with a session ID, resource and timestamp before
// passing them to a Logger. A nil *Recorder records nothing.
type Recorder struct {
	logger    Logger
	sessionID string
	now       func() time.Time

	mu       sync.RWMutex
	resource string
	model    string
}

// NewRecorder creates a Recorder with a fresh session ID. A nil logger
// yields a nil Recorder.
func NewRecorder(logger Logger) *Recorder {
	if logger == nil {
		return nil
	}
	return &Recorder{
		logger:    logger,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// SessionID returns the session ID, or "" for a nil Recorder.
func (r *Recorder) SessionID() string {
	if r == nil {
		return ""
	}
	return r.sessionID
}

// SetResource sets the resource name and model stamped on later events.
func (r *Recorder) SetResource(resource, model string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.resource, r.model = resource, model
	r.mu.Unlock()
}

// Record stamps and logs an event.
func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	r.mu.RLock()
	event.Resource, event.Model = r.resource, r.model
	r.mu.RUnlock()
	event.SessionID = r.sessionID
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	r.logger.Log(event)
}

// Sent records a command or query written to the instrument.
func (r *Recorder) Sent(text string) {
	typ := MessageTypeCommand
	if scpi.IsQuery(text) {
		typ = MessageTypeQuery
	}
	r.Record(Event{
		Direction: DirectionOut,
		Layer:     LayerChannel,
		Category:  CategoryMessage,
		Message:   &MessageEvent{Type: typ, Text: text},
	})
}

// Received records a response line. A positive latency is included.
func (r *Recorder) Received(text string, latency time.Duration) {
	msg := &MessageEvent{Type: MessageTypeResponse, Text: text}
	if latency > 0 {
		msg.Latency = &latency
	}
	r.Record(Event{
		Direction: DirectionIn,
		Layer:     LayerChannel,
		Category:  CategoryMessage,
		Message:   msg,
	})
}

// Cleared records a device clear.
func (r *Recorder) Cleared() {
	r.Record(Event{
		Direction: DirectionOut,
		Layer:     LayerChannel,
		Category:  CategoryMessage,
		Message:   &MessageEvent{Type: MessageTypeClear},
	})
}

// Status records a status byte observation.
func (r *Recorder) Status(stb uint8, source StatusSource, description string) {
	r.Record(Event{
		Direction: DirectionIn,
		Layer:     LayerChannel,
		Category:  CategoryStatus,
		Status:    &StatusEvent{StatusByte: stb, Source: source, Description: description},
	})
}

// ServiceRequest records a dispatched notification.
func (r *Recorder) ServiceRequest(stb uint8, source StatusSource, description, reading string) {
	r.Record(Event{
		Direction: DirectionIn,
		Layer:     LayerSession,
		Category:  CategoryServiceRequest,
		Status: &StatusEvent{
			StatusByte:  stb,
			Source:      source,
			Description: description,
			Reading:     reading,
		},
	})
}

// State records a lifecycle transition.
func (r *Recorder) State(entity StateEntity, oldState, newState, reason string) {
	r.Record(Event{
		Layer:    LayerSession,
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// Register records a change of a cached register value; nil is unknown.
func (r *Recorder) Register(family, field string, oldValue, newValue *uint16) {
	r.Record(Event{
		Layer:    LayerRegister,
		Category: CategoryRegister,
		Register: &RegisterEvent{Family: family, Field: field, Old: oldValue, New: newValue},
	})
}

// Error records a failure. Instrument error codes are extracted from
// *scpi.DeviceError.
func (r *Recorder) Error(layer Layer, err error, context string) {
	if r == nil || err == nil {
		return
	}
	data := &ErrorEventData{Layer: layer, Message: err.Error(), Context: context}
	var de *scpi.DeviceError
	if errors.As(err, &de) {
		code := de.Code
		data.Code = &code
	}
	r.Record(Event{
		Layer:    layer,
		Category: CategoryError,
		Error:    data,
	})
}
