// Package clock provides the time source and cooperative waits used by the
// session core.
//
// Every delay in the core (settle delays between sequence steps, the preset
// refractory period, spin-waits for readings) goes through a Clock so tests
// can record or shorten them. All waits honor context cancellation and are
// bounded; nothing in the core blocks indefinitely.
package clock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Poll when the condition did not become true in
// time.
var ErrTimeout = errors.New("wait timed out")

// Clock is a time source with a cancelable sleep.
type Clock interface {
	Now() time.Time

	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Sleep implements Clock.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OrReal returns c, or the wall clock if c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}

// Poll checks cond until it returns true, timeout elapses, or ctx is done.
// Between checks it yields for a delay that grows from b's initial to its
// maximum interval. A nil b uses DefaultPollBackoff.
func Poll(ctx context.Context, c Clock, timeout time.Duration, b *Backoff, cond func() bool) error {
	c = OrReal(c)
	if b == nil {
		b = NewBackoffWithConfig(DefaultPollBackoff)
	}

	limit := c.Now().Add(timeout)
	for {
		if cond() {
			return nil
		}
		remaining := limit.Sub(c.Now())
		if remaining <= 0 {
			return ErrTimeout
		}
		d := b.Next()
		if d > remaining {
			d = remaining
		}
		if err := c.Sleep(ctx, d); err != nil {
			return err
		}
	}
}
