package channel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlink/benchlink-go/pkg/log"
)

type traceSink struct {
	mu     sync.Mutex
	events []log.Event
}

func (s *traceSink) Log(e log.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func TestTraced(t *testing.T) {
	ctx := context.Background()

	t.Run("NilRecorder", func(t *testing.T) {
		emu := NewEmulator(DefaultEmulatorConfig())
		assert.Same(t, Channel(emu), NewTraced(emu, nil))
	})

	t.Run("RecordsExchanges", func(t *testing.T) {
		sink := &traceSink{}
		emu := NewEmulator(DefaultEmulatorConfig())
		ch := NewTraced(emu, log.NewRecorder(sink))
		assert.True(t, IsEmulated(ch))

		resp, err := Query(ctx, ch, "*IDN?")
		require.NoError(t, err)
		assert.Equal(t, "BENCHLINK,EMULATOR,0,1.0", resp)

		require.NoError(t, ch.Write(ctx, "*CLS"))
		_, err = ch.ReadStatusByte(ctx)
		require.NoError(t, err)
		require.NoError(t, ch.Clear(ctx))

		require.Len(t, sink.events, 5)
		assert.Equal(t, log.MessageTypeQuery, sink.events[0].Message.Type)
		assert.Equal(t, log.DirectionOut, sink.events[0].Direction)
		assert.Equal(t, log.MessageTypeResponse, sink.events[1].Message.Type)
		assert.NotNil(t, sink.events[1].Message.Latency)
		assert.Equal(t, log.MessageTypeCommand, sink.events[2].Message.Type)
		assert.Equal(t, log.StatusSourceRead, sink.events[3].Status.Source)
		assert.Equal(t, log.MessageTypeClear, sink.events[4].Message.Type)
	})

	t.Run("RecordsErrors", func(t *testing.T) {
		sink := &traceSink{}
		emu := NewEmulator(DefaultEmulatorConfig())
		emu.FailOn("MEAS", errors.New("link down"))
		ch := NewTraced(emu, log.NewRecorder(sink))

		assert.Error(t, ch.Write(ctx, "MEAS:VOLT?"))
		_, err := ch.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrTimeout)

		var errs []string
		for _, e := range sink.events {
			if e.Error != nil {
				errs = append(errs, e.Error.Context)
			}
		}
		assert.Equal(t, []string{"MEAS:VOLT?", "read"}, errs)
	})
}
