package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialized(t *testing.T) {
	ctx := context.Background()

	t.Run("Reentrant", func(t *testing.T) {
		s := NewSerialized(NewEmulator(DefaultEmulatorConfig()))

		var identity string
		err := s.Do(ctx, func(ctx context.Context) error {
			var err error
			identity, err = s.Query(ctx, "*IDN?")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, "BENCHLINK,EMULATOR,0,1.0", identity)
	})

	t.Run("NoInterleaving", func(t *testing.T) {
		s := NewSerialized(NewEmulator(DefaultEmulatorConfig()))

		var mu sync.Mutex
		inside := 0
		maxInside := 0

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Do(ctx, func(ctx context.Context) error {
					mu.Lock()
					inside++
					if inside > maxInside {
						maxInside = inside
					}
					mu.Unlock()

					time.Sleep(time.Millisecond)
					_, err := s.Query(ctx, "*STB?")

					mu.Lock()
					inside--
					mu.Unlock()
					return err
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxInside)
	})

	t.Run("WaitHonorsContext", func(t *testing.T) {
		s := NewSerialized(NewEmulator(DefaultEmulatorConfig()))

		release := make(chan struct{})
		started := make(chan struct{})
		go func() {
			_ = s.Do(ctx, func(context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := s.Write(cctx, "*CLS")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		close(release)
	})

	t.Run("DiscardUnreadData", func(t *testing.T) {
		emu := NewEmulator(DefaultEmulatorConfig())
		s := NewSerialized(emu)

		require.NoError(t, s.Write(ctx, "*IDN?;*IDN?"))
		require.NoError(t, s.DiscardUnreadData(ctx))

		assert.Zero(t, emu.StatusByte()&EmulatorMAV)
		assert.Zero(t, emu.StatusByte()&EmulatorEAV)
	})
}
