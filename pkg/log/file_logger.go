package log

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileExtension is the conventional suffix of trace files.
const FileExtension = ".btrace"

// SessionClosedState is the state name a session reports when it closes.
const SessionClosedState = "CLOSED"

// FileLogger appends CBOR-encoded events to a file.
//
// The file is synced whenever a session reaches SessionClosedState, so the
// trace of every finished session is on disk. The first write error stops
// the logger; it is reported by Err and by Close.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	events  int
	err     error
	closed  bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

// Log appends the event.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.err != nil {
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.err = fmt.Errorf("trace %s: %w", l.file.Name(), err)
		return
	}
	l.events++

	if closesSession(event) {
		if err := l.file.Sync(); err != nil {
			l.err = fmt.Errorf("trace %s: %w", l.file.Name(), err)
		}
	}
}

// Events returns the number of events written.
func (l *FileLogger) Events() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

// Err returns the error that stopped the logger, if any.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the file and returns any write error seen before. Later
// events are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.err, l.file.Close())
}

func closesSession(event Event) bool {
	sc := event.StateChange
	return sc != nil && sc.Entity == StateEntitySession && sc.NewState == SessionClosedState
}

var _ Logger = (*FileLogger)(nil)
