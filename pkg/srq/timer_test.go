package srq

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idleDevice struct {
	reads atomic.Int32
}

func (d *idleDevice) ReadStatusByte(context.Context) (byte, error) {
	d.reads.Add(1)
	return 0, nil
}

func (d *idleDevice) ReadLine(context.Context) (string, error) {
	return "", nil
}

func startPolled(t *testing.T) (*Dispatcher, *idleDevice) {
	t.Helper()
	dev := &idleDevice{}
	cfg := DefaultConfig()
	cfg.Mode = ModePolled
	cfg.PollPeriod = time.Hour

	d, err := New(dev, nil, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d, dev
}

func TestPollTimerGeneration(t *testing.T) {
	t.Run("StaleTickKeepsRearmedTimer", func(t *testing.T) {
		d, dev := startPolled(t)

		d.mu.Lock()
		stale := d.timerGen
		d.mu.Unlock()

		d.DisablePolling()
		require.NoError(t, d.EnablePolling())

		d.mu.Lock()
		current := d.timer
		d.mu.Unlock()
		require.NotNil(t, current)

		d.tick(stale)

		d.mu.Lock()
		assert.Same(t, current, d.timer)
		d.mu.Unlock()
		assert.Zero(t, dev.reads.Load())
		assert.Zero(t, d.Ticks())
	})

	t.Run("TickRearmsOnce", func(t *testing.T) {
		d, dev := startPolled(t)

		d.mu.Lock()
		gen := d.timerGen
		d.timer.Stop()
		d.mu.Unlock()

		d.tick(gen)

		d.mu.Lock()
		assert.NotNil(t, d.timer)
		assert.Equal(t, gen+1, d.timerGen)
		assert.False(t, d.ticking)
		d.mu.Unlock()
		assert.Equal(t, int32(1), dev.reads.Load())
		assert.Equal(t, 1, d.Ticks())
	})

	t.Run("DisabledDuringTickDoesNotRearm", func(t *testing.T) {
		d, _ := startPolled(t)

		d.mu.Lock()
		gen := d.timerGen
		d.timer.Stop()
		d.mu.Unlock()

		d.DisablePolling()
		d.tick(gen)

		d.mu.Lock()
		assert.Nil(t, d.timer)
		d.mu.Unlock()
		assert.Zero(t, d.Ticks())
	})
}
