package channel

import (
	"context"
	"sync"
	"time"

	"github.com/benchlink/benchlink-go/pkg/log"
)

// Traced wraps a Channel and records every exchange to a trace recorder.
type Traced struct {
	ch  Channel
	rec *log.Recorder

	mu       sync.Mutex
	lastSent time.Time
}

// NewTraced wraps ch. A nil recorder returns ch unchanged.
func NewTraced(ch Channel, rec *log.Recorder) Channel {
	if rec == nil {
		return ch
	}
	return &Traced{ch: ch, rec: rec}
}

// Write implements Channel.
func (t *Traced) Write(ctx context.Context, command string) error {
	t.rec.Sent(command)
	t.mu.Lock()
	t.lastSent = time.Now()
	t.mu.Unlock()

	err := t.ch.Write(ctx, command)
	if err != nil {
		t.rec.Error(log.LayerChannel, err, command)
	}
	return err
}

// ReadLine implements Channel.
func (t *Traced) ReadLine(ctx context.Context) (string, error) {
	line, err := t.ch.ReadLine(ctx)
	if err != nil {
		t.rec.Error(log.LayerChannel, err, "read")
		return line, err
	}

	t.mu.Lock()
	latency := time.Since(t.lastSent)
	t.mu.Unlock()
	t.rec.Received(line, latency)
	return line, nil
}

// ReadStatusByte implements Channel.
func (t *Traced) ReadStatusByte(ctx context.Context) (byte, error) {
	stb, err := t.ch.ReadStatusByte(ctx)
	if err != nil {
		t.rec.Error(log.LayerChannel, err, "serial poll")
		return stb, err
	}
	t.rec.Status(stb, log.StatusSourceRead, "")
	return stb, nil
}

// Clear implements Channel.
func (t *Traced) Clear(ctx context.Context) error {
	t.rec.Cleared()
	err := t.ch.Clear(ctx)
	if err != nil {
		t.rec.Error(log.LayerChannel, err, "device clear")
	}
	return err
}

// SetTimeout implements Channel.
func (t *Traced) SetTimeout(d time.Duration) { t.ch.SetTimeout(d) }

// Timeout implements Channel.
func (t *Traced) Timeout() time.Duration { return t.ch.Timeout() }

// Close implements Channel.
func (t *Traced) Close() error { return t.ch.Close() }

// Emulated implements Emulated by asking the wrapped channel.
func (t *Traced) Emulated() bool { return IsEmulated(t.ch) }

var _ Channel = (*Traced)(nil)
