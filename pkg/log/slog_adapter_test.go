package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func logJSON(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	adapter.Log(event)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapter(t *testing.T) {
	t.Run("Message", func(t *testing.T) {
		latency := 2 * time.Millisecond
		entry := logJSON(t, Event{
			SessionID: "0123456789abcdef", Resource: "dmm", Direction: DirectionIn,
			Layer: LayerChannel, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeResponse, Text: "+1.0E+00", Latency: &latency},
		})
		if entry["msg"] != "trace" || entry["level"] != "DEBUG" {
			t.Errorf("header: %v", entry)
		}
		if entry["session"] != "01234567" {
			t.Errorf("session: got %v", entry["session"])
		}
		if entry["type"] != "RESPONSE" || entry["text"] != "+1.0E+00" || entry["resource"] != "dmm" {
			t.Errorf("message attrs: %v", entry)
		}
	})

	t.Run("Status", func(t *testing.T) {
		entry := logJSON(t, Event{
			Category: CategoryStatus,
			Status:   &StatusEvent{StatusByte: 0x44, Source: StatusSourcePoll, Description: "Error Available"},
		})
		if entry["stb"] != float64(0x44) || entry["source"] != "POLL" || entry["bits"] != "Error Available" {
			t.Errorf("status attrs: %v", entry)
		}
	})

	t.Run("Register", func(t *testing.T) {
		v := uint16(0x0200)
		entry := logJSON(t, Event{
			Category: CategoryRegister,
			Register: &RegisterEvent{Family: "MEASUREMENT", Field: "EVENT", New: &v},
		})
		if entry["old"] != "unknown" || entry["new"] != "0x0200" {
			t.Errorf("register attrs: %v", entry)
		}
	})

	t.Run("Error", func(t *testing.T) {
		code := -350
		entry := logJSON(t, Event{
			Category: CategoryError,
			Error:    &ErrorEventData{Layer: LayerSession, Message: "Queue overflow", Code: &code, Context: "poll"},
		})
		if entry["error_code"] != float64(-350) || entry["error_context"] != "poll" {
			t.Errorf("error attrs: %v", entry)
		}
	})
}
