package channel

import (
	"context"
	"time"

	"github.com/benchlink/benchlink-go/pkg/scpi"
)

type serialKey struct{}

// Serialized wraps a Channel so that exchanges issued from different
// goroutines (foreground calls, poll ticks, SRQ callbacks) never interleave.
//
// Do runs a function with exclusive access. It is reentrant through the
// context it passes on: calls made with that context from inside fn do not
// wait again.
type Serialized struct {
	ch    Channel
	token chan struct{}
}

// NewSerialized wraps ch.
func NewSerialized(ch Channel) *Serialized {
	return &Serialized{
		ch:    ch,
		token: make(chan struct{}, 1),
	}
}

// Channel returns the wrapped channel.
func (s *Serialized) Channel() Channel {
	return s.ch
}

// Do runs fn with exclusive access to the channel.
func (s *Serialized) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(serialKey{}) == s {
		return fn(ctx)
	}

	select {
	case s.token <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.token }()

	return fn(context.WithValue(ctx, serialKey{}, s))
}

// Exclusive is Do; it lets Serialized satisfy interfaces that group
// several exchanges into one uninterrupted unit.
func (s *Serialized) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Do(ctx, fn)
}

// Write implements Channel.
func (s *Serialized) Write(ctx context.Context, command string) error {
	return s.Do(ctx, func(ctx context.Context) error {
		return s.ch.Write(ctx, command)
	})
}

// ReadLine implements Channel.
func (s *Serialized) ReadLine(ctx context.Context) (string, error) {
	var line string
	err := s.Do(ctx, func(ctx context.Context) error {
		var err error
		line, err = s.ch.ReadLine(ctx)
		return err
	})
	return line, err
}

// Query writes a query and reads its response as one exchange.
func (s *Serialized) Query(ctx context.Context, query string) (string, error) {
	var resp string
	err := s.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = Query(ctx, s.ch, query)
		return err
	})
	return resp, err
}

// ReadStatusByte implements Channel.
func (s *Serialized) ReadStatusByte(ctx context.Context) (byte, error) {
	var stb byte
	err := s.Do(ctx, func(ctx context.Context) error {
		var err error
		stb, err = s.ch.ReadStatusByte(ctx)
		return err
	})
	return stb, err
}

// Clear implements Channel.
func (s *Serialized) Clear(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context) error {
		return s.ch.Clear(ctx)
	})
}

// DiscardUnreadData reads and drops pending output while the status byte
// reports a message available. Reading an empty output queue would raise a
// query error on the device, so the status byte is checked before each read.
func (s *Serialized) DiscardUnreadData(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context) error {
		for i := 0; i < scpi.MaxErrorQueueIterations; i++ {
			stb, err := s.ch.ReadStatusByte(ctx)
			if err != nil {
				return err
			}
			if stb&scpi.StatusMessageAvailable == 0 {
				return nil
			}
			if _, err := s.ch.ReadLine(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetTimeout implements Channel.
func (s *Serialized) SetTimeout(d time.Duration) { s.ch.SetTimeout(d) }

// Timeout implements Channel.
func (s *Serialized) Timeout() time.Duration { return s.ch.Timeout() }

// Close implements Channel. It does not wait for a running exchange.
func (s *Serialized) Close() error { return s.ch.Close() }

// Emulated implements Emulated by asking the wrapped channel.
func (s *Serialized) Emulated() bool { return IsEmulated(s.ch) }

var _ Channel = (*Serialized)(nil)
