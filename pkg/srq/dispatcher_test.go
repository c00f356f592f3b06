package srq_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benchlink/benchlink-go/pkg/channel"
	"github.com/benchlink/benchlink-go/pkg/channel/mocks"
	"github.com/benchlink/benchlink-go/pkg/scpi"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

// scriptedDevice returns status bytes from a script, repeating the last one.
type scriptedDevice struct {
	mu     sync.Mutex
	script []byte
	reads  int
	lines  []string
}

func (d *scriptedDevice) ReadStatusByte(ctx context.Context) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.reads
	d.reads++
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	return d.script[i], nil
}

func (d *scriptedDevice) ReadLine(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.lines) == 0 {
		return "", channel.ErrTimeout
	}
	line := d.lines[0]
	d.lines = d.lines[1:]
	return line, nil
}

func (d *scriptedDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func TestPolledErrorDisablesPolling(t *testing.T) {
	dev := &scriptedDevice{script: []byte{0x00, 0x00, scpi.StatusErrorAvailable}}

	cfg := srq.DefaultConfig()
	cfg.Mode = srq.ModePolled
	cfg.PollPeriod = 50 * time.Millisecond

	d, err := srq.New(dev, nil, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	assert.True(t, d.PollEnabled())
	assert.Eventually(t, func() bool { return !d.PollEnabled() }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 3, dev.Reads())
	assert.Equal(t, 3, d.Ticks())
	assert.False(t, d.PollEnabled())
	assert.True(t, d.State().ErrorAvailable)

	_, err = d.AwaitReading(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, srq.ErrErrorAvailable)
}

func TestModesAreExclusive(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.DefaultEmulatorConfig())

	cfg := srq.DefaultConfig()
	cfg.PollPeriod = 10 * time.Millisecond
	d, err := srq.New(channel.NewSerialized(emu), emu, cfg)
	require.NoError(t, err)
	defer d.Stop(ctx)

	check := func() {
		st := d.State()
		assert.False(t, st.HardwareActive && st.PollActive)
	}

	require.NoError(t, d.SetMode(ctx, srq.ModePolled))
	check()
	assert.True(t, d.PollEnabled())
	assert.False(t, d.HardwareActive())

	require.NoError(t, d.SetMode(ctx, srq.ModeEventDriven))
	check()
	assert.False(t, d.PollEnabled())
	assert.True(t, d.HardwareActive())

	ticks := d.Ticks()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, ticks, d.Ticks())

	require.NoError(t, d.SetMode(ctx, srq.ModePolled))
	check()
	assert.Eventually(t, func() bool { return d.Ticks() > ticks }, time.Second, 5*time.Millisecond)

	require.NoError(t, d.SetMode(ctx, srq.ModeNone))
	assert.False(t, d.PollEnabled())
	assert.False(t, d.HardwareActive())
}

func TestEventDrivenRequiresHardware(t *testing.T) {
	d, err := srq.New(&scriptedDevice{script: []byte{0}}, nil, srq.DefaultConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, d.SetMode(context.Background(), srq.ModeEventDriven), srq.ErrNotSupported)
}

func TestEventDrivenOperationComplete(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.EmulatorConfig{OperationCompleteDelay: 20 * time.Millisecond})
	dev := channel.NewSerialized(emu)

	cfg := srq.DefaultConfig()
	cfg.Mode = srq.ModeEventDriven

	var notified atomic.Int32
	d, err := srq.New(dev, emu, cfg)
	require.NoError(t, err)
	d.OnServiceRequest(func(n srq.Notification) {
		if n.Source == srq.SourceServiceRequest {
			notified.Add(1)
		}
	})
	require.NoError(t, d.Start(ctx))
	defer d.Stop(ctx)

	require.NoError(t, dev.Write(ctx, "*ESE 1;*SRE 32"))
	d.ResetCompletion()
	require.NoError(t, dev.Write(ctx, "*OPC"))

	require.NoError(t, d.AwaitOperationComplete(ctx, time.Second))
	assert.Eventually(t, func() bool { return notified.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.State().StandardEventPending)
}

func TestAutoReadOnPoll(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
	dev := channel.NewSerialized(emu)

	cfg := srq.DefaultConfig()
	cfg.Mode = srq.ModePolled
	cfg.PollPeriod = 10 * time.Millisecond
	cfg.AutoReadOnPoll = true

	d, err := srq.New(dev, emu, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	defer d.Stop(ctx)

	emu.QueueReading(4.25)
	require.NoError(t, dev.Write(ctx, "READ?"))

	reading, err := d.AwaitReading(ctx, time.Second)
	require.NoError(t, err)
	v, err := scpi.ParseFloat(reading)
	require.NoError(t, err)
	assert.Equal(t, 4.25, v)
}

func TestAwaitReadingTimesOut(t *testing.T) {
	d, err := srq.New(&scriptedDevice{script: []byte{0}}, nil, srq.DefaultConfig())
	require.NoError(t, err)

	start := time.Now()
	_, err = d.AwaitReading(context.Background(), 30*time.Millisecond)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotificationsAreDeduplicated(t *testing.T) {
	ctx := context.Background()
	dev := &scriptedDevice{script: []byte{0x00, 0x80, 0x80, 0x80, 0x00, 0x80}}

	d, err := srq.New(dev, nil, srq.DefaultConfig())
	require.NoError(t, err)

	var got []byte
	d.OnServiceRequest(func(n srq.Notification) { got = append(got, n.StatusByte) })

	for i := 0; i < 6; i++ {
		_, err := d.Poll(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, []byte{0x80, 0x80}, got)
}

func TestHandlerFailureIsReported(t *testing.T) {
	ctx := context.Background()

	t.Run("Error", func(t *testing.T) {
		var reported []*srq.HandlerError
		cfg := srq.DefaultConfig()
		cfg.Process = func(context.Context, srq.Notification) error { return errors.New("parse failed") }
		cfg.Diagnostics = func() srq.Diagnostics {
			return srq.Diagnostics{LastAction: "measure", LastSent: "READ?", LastReceived: "garbage"}
		}
		cfg.OnHandlerError = func(he *srq.HandlerError) { reported = append(reported, he) }

		d, err := srq.New(&scriptedDevice{script: []byte{0x80}}, nil, cfg)
		require.NoError(t, err)

		_, err = d.Poll(ctx)
		require.NoError(t, err)

		require.Len(t, reported, 1)
		he := reported[0]
		assert.Equal(t, byte(0x80), he.StatusByte)
		assert.Equal(t, "Operation Summary", he.Description)
		assert.Equal(t, "measure", he.LastAction)
		assert.Equal(t, "READ?", he.LastSent)
		assert.Equal(t, "garbage", he.LastReceived)
		assert.Contains(t, he.Error(), "parse failed")
	})

	t.Run("Panic", func(t *testing.T) {
		var reported atomic.Int32
		cfg := srq.DefaultConfig()
		cfg.Process = func(context.Context, srq.Notification) error { panic("boom") }
		cfg.OnHandlerError = func(*srq.HandlerError) { reported.Add(1) }

		d, err := srq.New(&scriptedDevice{script: []byte{0x80}}, nil, cfg)
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			_, err = d.Poll(ctx)
		})
		assert.NoError(t, err)
		assert.Equal(t, int32(1), reported.Load())
	})

	t.Run("DeviceErrorIsFailure", func(t *testing.T) {
		var reported atomic.Int32
		cfg := srq.DefaultConfig()
		cfg.Process = func(context.Context, srq.Notification) error {
			return &scpi.DeviceError{Code: -222, Message: "Data out of range"}
		}
		cfg.OnHandlerError = func(*srq.HandlerError) { reported.Add(1) }

		d, err := srq.New(&scriptedDevice{script: []byte{0x80}}, nil, cfg)
		require.NoError(t, err)

		_, err = d.AwaitReading(ctx, 100*time.Millisecond)
		assert.ErrorIs(t, err, scpi.ErrDevice)
		assert.Zero(t, reported.Load())
	})
}

func TestStop(t *testing.T) {
	ctx := context.Background()
	hw := mocks.NewMockServiceRequester(t)

	hw.EXPECT().SetServiceRequestHandler(mock.Anything).Return().Twice()
	hw.EXPECT().EnableServiceRequest(mock.Anything).Return(nil).Once()
	hw.EXPECT().DisableServiceRequest(mock.Anything).Return(nil).Once()

	cfg := srq.DefaultConfig()
	cfg.Mode = srq.ModeEventDriven
	d, err := srq.New(&scriptedDevice{script: []byte{0}}, hw, cfg)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))

	require.NoError(t, d.Stop(ctx))
	require.NoError(t, d.Stop(ctx))

	assert.ErrorIs(t, d.SetMode(ctx, srq.ModePolled), srq.ErrStopped)
	assert.False(t, d.HardwareActive())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]srq.Mode{
		"none": srq.ModeNone, "srq": srq.ModeEventDriven, "poll": srq.ModePolled, "POLLED": srq.ModePolled,
	} {
		got, err := srq.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := srq.ParseMode("interrupt")
	assert.ErrorIs(t, err, srq.ErrInvalidConfig)
}
