package log

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeTrace(t *testing.T, events ...Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session"+FileExtension)
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range events {
		fl.Log(e)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	defer r.Close()
	var out []Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, e)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := writeTrace(t, Event{SessionID: "a"})

	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	fl.Log(Event{SessionID: "b"})
	fl.Close()
	fl.Log(Event{SessionID: "ignored"})
	if err := fl.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	events := readAll(t, r)
	if len(events) != 2 || events[0].SessionID != "a" || events[1].SessionID != "b" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestFileLoggerCountsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "count"+FileExtension)
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	fl.Log(Event{Message: &MessageEvent{Text: "*IDN?"}})
	fl.Log(Event{StateChange: &StateChangeEvent{Entity: StateEntitySession, OldState: "CLOSING", NewState: SessionClosedState}})
	if n := fl.Events(); n != 2 {
		t.Errorf("Events() = %d, want 2", n)
	}
	if err := fl.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestFileLoggerStopsOnWriteError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken"+FileExtension)
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	fl.Log(Event{SessionID: "a"})
	fl.file.Close()

	fl.Log(Event{SessionID: "b"})
	fl.Log(Event{SessionID: "c"})

	if fl.Err() == nil {
		t.Fatal("expected write error")
	}
	if n := fl.Events(); n != 1 {
		t.Errorf("Events() = %d, want 1", n)
	}
	if err := fl.Close(); err == nil {
		t.Error("Close should report the write error")
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent"+FileExtension)
	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				fl.Log(Event{Message: &MessageEvent{Text: "*STB?"}})
			}
		}()
	}
	wg.Wait()
	fl.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(readAll(t, r)); n != 200 {
		t.Errorf("got %d events, want 200", n)
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	path := writeTrace(t,
		Event{Timestamp: base, SessionID: "s1", Resource: "dmm", Direction: DirectionOut, Layer: LayerChannel, Category: CategoryMessage},
		Event{Timestamp: base.Add(time.Second), SessionID: "s1", Resource: "dmm", Direction: DirectionIn, Layer: LayerChannel, Category: CategoryStatus},
		Event{Timestamp: base.Add(2 * time.Second), SessionID: "s2", Resource: "psu", Layer: LayerSession, Category: CategoryState},
		Event{Timestamp: base.Add(3 * time.Second), SessionID: "s2", Resource: "psu", Layer: LayerRegister, Category: CategoryRegister},
	)

	in := DirectionIn
	session := LayerSession
	status := CategoryStatus
	start, end := base.Add(time.Second), base.Add(3*time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"All", Filter{}, 4},
		{"Session", Filter{SessionID: "s2"}, 2},
		{"Resource", Filter{Resource: "dmm"}, 2},
		{"Direction", Filter{Direction: &in}, 1},
		{"Layer", Filter{Layer: &session}, 1},
		{"Category", Filter{Category: &status}, 1},
		{"TimeWindow", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"Combined", Filter{SessionID: "s1", Category: &status}, 1},
		{"None", Filter{SessionID: "s3"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing"+FileExtension)); err == nil {
		t.Error("expected error for missing file")
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestMultiLogger(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b, NoopLogger{})

	m.Log(Event{SessionID: "x"})
	m.Log(Event{SessionID: "y"})

	if len(a.Events()) != 2 || len(b.Events()) != 2 {
		t.Errorf("fan-out: a=%d b=%d", len(a.Events()), len(b.Events()))
	}
}
