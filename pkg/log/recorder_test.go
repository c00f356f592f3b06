package log

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benchlink/benchlink-go/pkg/scpi"
)

func TestRecorder(t *testing.T) {
	capture := &captureLogger{}
	r := NewRecorder(capture)
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	if _, err := uuid.Parse(r.SessionID()); err != nil {
		t.Fatalf("session ID is not a UUID: %v", err)
	}

	r.SetResource("TCPIP0::dmm::INSTR", "dmm")
	r.Sent("*ESE 1")
	r.Sent("*ESR?")
	r.Received("32", 3*time.Millisecond)
	r.Cleared()
	r.Status(0x24, StatusSourceSequencer, "Error Available, Event Summary")
	r.ServiceRequest(0x50, StatusSourceServiceRequest, "Message Available", "+1.0E+00")
	r.State(StateEntitySession, "OPENING", "OPEN", "")
	v := uint16(0x10)
	r.Register("OPERATION", "ENABLE", nil, &v)
	r.Error(LayerSession, fmt.Errorf("step: %w", &scpi.DeviceError{Code: -222, Message: "Data out of range"}), "RESET_KNOWN_STATE")
	r.Error(LayerChannel, errors.New("link down"), "write")
	r.Error(LayerChannel, nil, "ignored")

	events := capture.Events()
	if len(events) != 10 {
		t.Fatalf("got %d events, want 10", len(events))
	}
	for _, e := range events {
		if e.SessionID != r.SessionID() || e.Resource != "TCPIP0::dmm::INSTR" || e.Model != "dmm" {
			t.Errorf("event not stamped: %+v", e)
		}
		if !e.Timestamp.Equal(fixed) {
			t.Errorf("timestamp: got %v", e.Timestamp)
		}
	}

	if events[0].Message.Type != MessageTypeCommand || events[1].Message.Type != MessageTypeQuery {
		t.Error("commands and queries not distinguished")
	}
	if events[2].Direction != DirectionIn || *events[2].Message.Latency != 3*time.Millisecond {
		t.Errorf("response: %+v", events[2].Message)
	}
	if events[3].Message.Type != MessageTypeClear {
		t.Error("clear not recorded")
	}
	if events[5].Category != CategoryServiceRequest || events[5].Status.Reading != "+1.0E+00" {
		t.Errorf("service request: %+v", events[5])
	}
	if events[7].Register.Old != nil || *events[7].Register.New != 0x10 {
		t.Errorf("register: %+v", events[7].Register)
	}
	if events[8].Error.Code == nil || *events[8].Error.Code != -222 {
		t.Errorf("device error code not extracted: %+v", events[8].Error)
	}
	if events[9].Error.Code != nil {
		t.Errorf("unexpected code for plain error")
	}
}

func TestNilRecorder(t *testing.T) {
	r := NewRecorder(nil)
	if r != nil {
		t.Fatal("expected nil recorder")
	}
	r.SetResource("x", "y")
	r.Sent("*RST")
	r.Received("1", 0)
	r.Status(0, StatusSourcePoll, "")
	r.Error(LayerSession, errors.New("x"), "")
	if r.SessionID() != "" {
		t.Error("nil recorder has a session ID")
	}
}
