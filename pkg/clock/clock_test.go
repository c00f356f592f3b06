package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	t.Run("GrowsToMax", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Millisecond, Max: 4 * time.Millisecond, Multiplier: 2})

		var got []time.Duration
		for i := 0; i < 5; i++ {
			got = append(got, b.Next())
		}
		assert.Equal(t, []time.Duration{
			1 * time.Millisecond,
			2 * time.Millisecond,
			4 * time.Millisecond,
			4 * time.Millisecond,
			4 * time.Millisecond,
		}, got)
		assert.Equal(t, 5, b.Attempts())
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoffWithConfig(DefaultPollBackoff)
		b.Next()
		b.Next()
		b.Reset()
		assert.Equal(t, 0, b.Attempts())
		assert.Equal(t, InitialPollInterval, b.Next())
	})

	t.Run("JitterBounded", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: 10 * time.Millisecond, Max: 10 * time.Millisecond, Jitter: 0.5})
		for i := 0; i < 20; i++ {
			d := b.Next()
			assert.GreaterOrEqual(t, d, 10*time.Millisecond)
			assert.LessOrEqual(t, d, 15*time.Millisecond)
		}
	})
}

func TestPoll(t *testing.T) {
	ctx := context.Background()

	t.Run("ImmediatelyTrue", func(t *testing.T) {
		err := Poll(ctx, nil, time.Second, nil, func() bool { return true })
		assert.NoError(t, err)
	})

	t.Run("BecomesTrue", func(t *testing.T) {
		var n atomic.Int32
		err := Poll(ctx, Real{}, time.Second, nil, func() bool { return n.Add(1) >= 3 })
		require.NoError(t, err)
		assert.Equal(t, int32(3), n.Load())
	})

	t.Run("TimesOut", func(t *testing.T) {
		start := time.Now()
		err := Poll(ctx, Real{}, 30*time.Millisecond, nil, func() bool { return false })
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("Canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Poll(cctx, Real{}, time.Second, nil, func() bool { return false })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRealSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, Real{}.Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
