package session

import (
	"context"
	"time"

	"github.com/benchlink/benchlink-go/pkg/channel"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

// Foreground I/O goes through the same serializer as poll ticks and
// service request callbacks, so the three never interleave on the wire.

// Write sends one command.
func (m *Manager) Write(ctx context.Context, command string) error {
	s, err := m.channel()
	if err != nil {
		return err
	}
	m.noteSent("write", command)
	return s.Write(ctx, command)
}

// Query sends a query and returns its response line.
func (m *Manager) Query(ctx context.Context, query string) (string, error) {
	s, err := m.channel()
	if err != nil {
		return "", err
	}
	m.noteSent("query", query)
	resp, err := s.Query(ctx, query)
	if err != nil {
		return "", err
	}
	m.noteReceived(resp)
	return resp, nil
}

// ReadLine reads one response line.
func (m *Manager) ReadLine(ctx context.Context) (string, error) {
	s, err := m.channel()
	if err != nil {
		return "", err
	}
	m.setAction("read")
	line, err := s.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	m.noteReceived(line)
	return line, nil
}

// ReadStatusByte performs a serial poll. The result is not handed to the
// dispatcher; use Poll for that.
func (m *Manager) ReadStatusByte(ctx context.Context) (byte, error) {
	s, err := m.channel()
	if err != nil {
		return 0, err
	}
	m.setAction("read status byte")
	return s.ReadStatusByte(ctx)
}

// Poll reads the status byte and handles it like a service request:
// subscribers are notified and a pending message is read.
func (m *Manager) Poll(ctx context.Context) (srq.State, error) {
	if _, err := m.channel(); err != nil {
		return srq.State{}, err
	}
	m.setAction("poll")
	return m.Dispatcher().Poll(ctx)
}

// DiscardUnreadData drains pending output from the instrument.
func (m *Manager) DiscardUnreadData(ctx context.Context) error {
	s, err := m.channel()
	if err != nil {
		return err
	}
	m.setAction("discard unread data")
	return s.DiscardUnreadData(ctx)
}

// Exclusive runs fn without interleaving other exchanges. Session calls
// made with the context passed to fn do not wait again.
func (m *Manager) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	s, err := m.channel()
	if err != nil {
		return err
	}
	return s.Do(ctx, fn)
}

// Timeout returns the current communication timeout.
func (m *Manager) Timeout() (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.raw == nil {
		return 0, m.notOpenLocked()
	}
	return m.raw.Timeout(), nil
}

// PushTimeout saves the current communication timeout and sets d.
func (m *Manager) PushTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return m.notOpenLocked()
	}
	m.timeouts = append(m.timeouts, m.raw.Timeout())
	m.raw.SetTimeout(d)
	return nil
}

// PopTimeout restores the timeout saved by the matching PushTimeout.
func (m *Manager) PopTimeout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return m.notOpenLocked()
	}
	n := len(m.timeouts)
	if n == 0 {
		return ErrTimeoutStack
	}
	m.raw.SetTimeout(m.timeouts[n-1])
	m.timeouts = m.timeouts[:n-1]
	return nil
}

// WithTimeout runs fn with communication timeout d. The previous timeout
// is restored when fn returns or panics.
func (m *Manager) WithTimeout(d time.Duration, fn func() error) error {
	if err := m.PushTimeout(d); err != nil {
		return err
	}
	defer func() { _ = m.PopTimeout() }()
	return fn()
}

func (m *Manager) channel() (*channel.Serialized, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.serial == nil {
		return nil, m.notOpenLocked()
	}
	return m.serial, nil
}

// notOpenLocked returns the error for I/O without a channel. Caller holds m.mu.
func (m *Manager) notOpenLocked() error {
	if m.state == StateClosed {
		return ErrSessionClosed
	}
	return ErrNotOpen
}

func (m *Manager) noteSent(action, text string) {
	m.mu.Lock()
	m.lastAction = action + " " + text
	m.lastSent = text
	m.mu.Unlock()
}

func (m *Manager) noteReceived(text string) {
	m.mu.Lock()
	m.lastReceived = text
	m.mu.Unlock()
}
