package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benchlink/benchlink-go/pkg/channel"
	chmocks "github.com/benchlink/benchlink-go/pkg/channel/mocks"
	"github.com/benchlink/benchlink-go/pkg/log"
	"github.com/benchlink/benchlink-go/pkg/profile"
	"github.com/benchlink/benchlink-go/pkg/resource"
	resmocks "github.com/benchlink/benchlink-go/pkg/resource/mocks"
	"github.com/benchlink/benchlink-go/pkg/scpi"
	"github.com/benchlink/benchlink-go/pkg/sequence"
	"github.com/benchlink/benchlink-go/pkg/session"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

const instr = "TCPIP0::10.0.0.5::INSTR"

// hookLog records lifecycle hook invocations in order.
type hookLog struct {
	mu    sync.Mutex
	calls []string
}

func (h *hookLog) hook(name string, fn func(ev *session.HookEvent) error) session.Hook {
	return func(ctx context.Context, ev *session.HookEvent) error {
		h.mu.Lock()
		h.calls = append(h.calls, name)
		h.mu.Unlock()
		if fn != nil {
			return fn(ev)
		}
		return nil
	}
}

func (h *hookLog) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *hookLog) Count(name string) int {
	n := 0
	for _, c := range h.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (h *hookLog) hooks() session.Hooks {
	return session.Hooks{
		BeforeOpening: h.hook("before", nil),
		Opening:       h.hook("opening", nil),
		Initializing:  h.hook("initializing", nil),
		Initialized:   h.hook("initialized", nil),
		Closing:       h.hook("closing", nil),
		Closed:        h.hook("closed", nil),
	}
}

// bogusSubsystem sends an undefined header during the reset step.
type bogusSubsystem struct {
	emu *channel.Emulator
}

func (b *bogusSubsystem) DefineKnownResetState(ctx context.Context) error {
	return b.emu.Write(ctx, "BOGUS:CMD")
}

func (b *bogusSubsystem) DefineClearExecutionState(ctx context.Context) error { return nil }
func (b *bogusSubsystem) InitKnownState(ctx context.Context) error            { return nil }
func (b *bogusSubsystem) PresetKnownState(ctx context.Context) error          { return nil }

func newManager(t *testing.T, emu *channel.Emulator, mutate func(*session.Config)) *session.Manager {
	t.Helper()
	cfg := session.Config{Opener: emu}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := session.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func parseProfile(t *testing.T, doc string) *profile.Profile {
	t.Helper()
	p, err := profile.Parse([]byte(doc))
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	t.Run("DefaultProfile", func(t *testing.T) {
		m, err := session.New(session.Config{})
		require.NoError(t, err)
		assert.Equal(t, profile.Default, m.Profile().Name)
		assert.Equal(t, session.StateUnopened, m.State())
	})

	t.Run("InvalidProfile", func(t *testing.T) {
		p, err := profile.Builtin("scpi")
		require.NoError(t, err)
		p.Commands.Reset = ""
		_, err = session.New(session.Config{Profile: p})
		assert.ErrorIs(t, err, session.ErrInvalidConfig)
		assert.ErrorIs(t, err, profile.ErrInvalid)
	})
}

func TestOpenFullSequence(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
	hooks := &hookLog{}
	m := newManager(t, emu, func(c *session.Config) { c.Hooks = hooks.hooks() })

	var steps []sequence.Step
	m.OnStep(func(ev sequence.StepEvent) {
		if ev.Phase == sequence.PhaseCompleted {
			steps = append(steps, ev.Step)
		}
	})
	var opened []bool
	m.OnOpenChanged(func(open bool) { opened = append(opened, open) })

	require.NoError(t, m.Open(ctx, instr, "ModelX"))

	assert.True(t, m.IsOpen())
	assert.True(t, m.IsInitialized())
	assert.Equal(t, sequence.Steps, steps)
	assert.Equal(t, []string{"before", "opening", "initializing", "initialized"}, hooks.Calls())
	assert.Equal(t, []bool{true}, opened)

	assert.Equal(t, resource.MustParse(instr), m.Resource())
	assert.Equal(t, "ModelX", m.Model())
	assert.True(t, m.Owned())
	assert.False(t, m.Enabled())
	assert.Equal(t, "BENCHLINK", m.Identity().Manufacturer)
	assert.Equal(t, session.Fact{Value: 50, Provenance: session.ProvenanceMeasured}, m.LineFrequency())

	timeout, err := m.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, timeout)

	t.Run("PolledByDefault", func(t *testing.T) {
		d := m.Dispatcher()
		assert.Equal(t, srq.ModePolled, d.Mode())
		assert.True(t, d.PollEnabled())
		assert.False(t, m.ServiceRequestAttached())
	})

	t.Run("OpenTwice", func(t *testing.T) {
		assert.ErrorIs(t, m.Open(ctx, instr, "ModelX"), session.ErrAlreadyOpen)
	})
}

func TestOpenDeviceErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
	hooks := &hookLog{}
	m := newManager(t, emu, func(c *session.Config) {
		c.Hooks = hooks.hooks()
		c.Subsystems = []sequence.Presettable{&bogusSubsystem{emu: emu}}
	})
	var opened []bool
	m.OnOpenChanged(func(open bool) { opened = append(opened, open) })

	err := m.Open(ctx, instr, "ModelX")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrOperationFailed)
	assert.ErrorIs(t, err, scpi.ErrDevice)
	assert.Contains(t, err.Error(), session.StepSequence)
	assert.Contains(t, err.Error(), sequence.StepResetKnownState.String())

	var oe *session.OperationError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, session.StepSequence, oe.Step)
	assert.False(t, oe.Canceled)

	assert.False(t, m.IsOpen())
	assert.False(t, m.IsInitialized())
	assert.Equal(t, session.StateClosed, m.State())
	assert.Equal(t, 1, emu.CloseCalls())
	assert.Equal(t, 1, hooks.Count("closing"))
	assert.Equal(t, 1, hooks.Count("closed"))
	assert.Zero(t, hooks.Count("initializing"))
	assert.Empty(t, opened)

	assert.ErrorIs(t, m.Open(ctx, instr, "ModelX"), session.ErrSessionClosed)
}

func TestOpenIsAtomic(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("fixture not ready")

	tests := []struct {
		name     string
		hooks    func(h *hookLog) session.Hooks
		step     string
		canceled bool
	}{
		{"BeforeOpeningFails", func(h *hookLog) session.Hooks {
			return session.Hooks{BeforeOpening: h.hook("before", func(*session.HookEvent) error { return boom })}
		}, session.StepBeforeOpening, false},
		{"OpeningCanceled", func(h *hookLog) session.Hooks {
			return session.Hooks{Opening: h.hook("opening", func(ev *session.HookEvent) error {
				ev.Cancel("operator abort")
				return nil
			})}
		}, session.StepOpening, true},
		{"InitializingCanceled", func(h *hookLog) session.Hooks {
			return session.Hooks{Initializing: h.hook("initializing", func(ev *session.HookEvent) error {
				ev.Cancel("")
				return nil
			})}
		}, session.StepInitializing, true},
		{"InitializedFails", func(h *hookLog) session.Hooks {
			return session.Hooks{Initialized: h.hook("initialized", func(*session.HookEvent) error { return boom })}
		}, session.StepInitialized, false},
		{"InitializedCannotCancel", func(h *hookLog) session.Hooks {
			return session.Hooks{Initialized: h.hook("initialized", func(ev *session.HookEvent) error {
				assert.False(t, ev.Cancelable())
				ev.Cancel("ignored")
				return nil
			})}
		}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
			m := newManager(t, emu, func(c *session.Config) { c.Hooks = tt.hooks(&hookLog{}) })

			err := m.Open(ctx, instr, "")
			if tt.step == "" {
				require.NoError(t, err)
				assert.True(t, m.IsOpen())
				assert.True(t, m.IsInitialized())
				return
			}

			var oe *session.OperationError
			require.True(t, errors.As(err, &oe))
			assert.Equal(t, tt.step, oe.Step)
			assert.Equal(t, tt.canceled, oe.Canceled)
			if tt.canceled {
				assert.ErrorIs(t, err, session.ErrOperationCanceled)
			} else {
				assert.ErrorIs(t, err, session.ErrOperationFailed)
				assert.ErrorIs(t, err, boom)
			}
			assert.Contains(t, err.Error(), tt.step)

			assert.False(t, m.IsOpen())
			assert.False(t, m.IsInitialized())
			assert.Equal(t, session.StateClosed, m.State())
		})
	}

	t.Run("CanceledBeforeSequenceWritesNothing", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		m := newManager(t, emu, func(c *session.Config) {
			c.Hooks.Opening = func(ctx context.Context, ev *session.HookEvent) error {
				ev.Cancel("operator abort")
				return nil
			}
		})
		err := m.Open(ctx, instr, "")
		assert.ErrorIs(t, err, session.ErrOperationCanceled)
		assert.Contains(t, err.Error(), "operator abort")
		assert.NotContains(t, emu.Written(), "*RST")
		assert.Equal(t, 1, emu.CloseCalls())
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		cctx, cancel := context.WithCancel(ctx)
		m := newManager(t, emu, func(c *session.Config) {
			c.Hooks.Opening = func(context.Context, *session.HookEvent) error {
				cancel()
				return nil
			}
		})
		err := m.Open(cctx, instr, "")
		assert.ErrorIs(t, err, session.ErrOperationCanceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, emu.CloseCalls())
	})
}

func TestOpenChannelFailure(t *testing.T) {
	ctx := context.Background()
	opener := chmocks.NewMockOpener(t)
	linkDown := errors.New("connection refused")
	opener.EXPECT().Open(mock.Anything, resource.MustParse(instr)).Return(nil, linkDown).Once()

	m, err := session.New(session.Config{Opener: opener})
	require.NoError(t, err)

	err = m.Open(ctx, instr, "")
	assert.ErrorIs(t, err, linkDown)
	assert.ErrorIs(t, err, session.ErrOperationFailed)

	var oe *session.OperationError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, session.StepOpenChannel, oe.Step)
	assert.Equal(t, session.StateClosed, m.State())
	assert.NoError(t, m.Close(ctx))
}

func TestOpenInvalidName(t *testing.T) {
	m, err := session.New(session.Config{Opener: chmocks.NewMockOpener(t)})
	require.NoError(t, err)

	assert.Error(t, m.Open(context.Background(), "not a resource", ""))
	assert.Equal(t, session.StateUnopened, m.State())
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("NeverOpened", func(t *testing.T) {
		ch := chmocks.NewMockChannel(t)
		m, err := session.New(session.Config{Channel: ch, Opener: chmocks.NewMockOpener(t)})
		require.NoError(t, err)

		assert.NoError(t, m.Close(ctx))
		assert.Equal(t, session.StateUnopened, m.State())
		ok, msg := m.TryClose(ctx)
		assert.True(t, ok)
		assert.Empty(t, msg)
	})

	t.Run("Idempotent", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		hooks := &hookLog{}
		m := newManager(t, emu, func(c *session.Config) { c.Hooks = hooks.hooks() })
		var opened []bool
		m.OnOpenChanged(func(open bool) { opened = append(opened, open) })

		require.NoError(t, m.Open(ctx, instr, ""))
		require.NoError(t, m.Close(ctx))
		written := len(emu.Written())

		require.NoError(t, m.Close(ctx))
		assert.Equal(t, session.StateClosed, m.State())
		assert.Equal(t, 1, emu.CloseCalls())
		assert.Len(t, emu.Written(), written)
		assert.Equal(t, 1, hooks.Count("closing"))
		assert.Equal(t, []bool{true, false}, opened)
		assert.False(t, m.Dispatcher().PollEnabled())
	})

	t.Run("CancelIsIgnored", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		m := newManager(t, emu, func(c *session.Config) {
			c.Hooks.Closing = func(ctx context.Context, ev *session.HookEvent) error {
				assert.True(t, ev.Cancelable())
				ev.Cancel("still measuring")
				return errors.New("also failing")
			}
		})
		require.NoError(t, m.Open(ctx, instr, ""))
		assert.NoError(t, m.Close(ctx))
		assert.Equal(t, session.StateClosed, m.State())
		assert.Equal(t, 1, emu.CloseCalls())
	})

	t.Run("ChannelCloseErrorStillCloses", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		reset := errors.New("connection reset")
		opener := channel.OpenerFunc(func(ctx context.Context, name resource.Name) (channel.Channel, error) {
			return &failingClose{Emulator: emu, err: reset}, nil
		})
		m, err := session.New(session.Config{Opener: opener})
		require.NoError(t, err)
		require.NoError(t, m.Open(ctx, instr, ""))

		ok, msg := m.TryClose(ctx)
		assert.False(t, ok)
		assert.Contains(t, msg, session.StepCloseChannel)

		err = m.Close(ctx)
		assert.NoError(t, err, "second close is a no-op")
		assert.Equal(t, session.StateClosed, m.State())
	})

	t.Run("BorrowedChannelIsNotClosed", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		emu.SetTimeout(7 * time.Second)
		m := newManager(t, emu, func(c *session.Config) { c.Channel = emu })

		require.NoError(t, m.Open(ctx, instr, ""))
		assert.False(t, m.Owned())
		assert.Equal(t, 2*time.Second, emu.Timeout())

		require.NoError(t, m.Close(ctx))
		assert.Zero(t, emu.CloseCalls())
		assert.True(t, emu.IsOpen())
		assert.Equal(t, 7*time.Second, emu.Timeout())
	})
}

// failingClose is an emulator whose Close fails.
type failingClose struct {
	*channel.Emulator
	err error
}

func (f *failingClose) Close() error {
	_ = f.Emulator.Close()
	return f.err
}

func TestTryOpen(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
	emu.FailOn("*RST", errors.New("bus error"))
	m := newManager(t, emu, nil)

	ok, msg := m.TryOpen(ctx, instr, "")
	assert.False(t, ok)
	assert.Contains(t, msg, session.StepSequence)
	assert.Contains(t, msg, "bus error")
	assert.Equal(t, 1, emu.CloseCalls())
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	probe := resmocks.NewMockProbe(t)
	m, err := session.New(session.Config{Probe: probe, Opener: chmocks.NewMockOpener(t)})
	require.NoError(t, err)

	probe.EXPECT().Probe(mock.Anything, resource.MustParse(instr)).Return(nil).Once()
	require.NoError(t, m.Validate(ctx, instr))
	require.NoError(t, m.Validate(ctx, "tcpip0::10.0.0.5::inst0::INSTR"), "same resource, memoized")

	other := "TCPIP0::10.0.0.6::INSTR"
	probe.EXPECT().Probe(mock.Anything, resource.MustParse(other)).Return(resource.ErrNotFound).Twice()
	assert.ErrorIs(t, m.Validate(ctx, other), resource.ErrNotFound)
	assert.ErrorIs(t, m.Validate(ctx, other), resource.ErrNotFound)

	assert.Error(t, m.Validate(ctx, "::"))
	assert.Equal(t, session.StateUnopened, m.State())
}

func TestServiceRequests(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
	m := newManager(t, emu, func(c *session.Config) {
		c.Profile = parseProfile(t, "base: scpi\nnotification: srq\n")
	})

	got := make(chan srq.Notification, 4)
	m.OnServiceRequest(func(n srq.Notification) { got <- n })

	require.NoError(t, m.Open(ctx, instr, ""))
	assert.True(t, m.ServiceRequestAttached())
	assert.False(t, m.Dispatcher().PollEnabled())

	require.NoError(t, m.Write(ctx, "*OPC"))
	select {
	case n := <-got:
		assert.Equal(t, srq.SourceServiceRequest, n.Source)
		assert.True(t, n.StandardEventPending)
	case <-time.After(2 * time.Second):
		t.Fatal("no service request")
	}

	require.NoError(t, m.Close(ctx))
	assert.False(t, m.ServiceRequestAttached())
}

func TestTrace(t *testing.T) {
	ctx := context.Background()
	emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
	trace := &captureLogger{}
	m := newManager(t, emu, func(c *session.Config) { c.Trace = trace })

	require.NoError(t, m.Open(ctx, instr, "ModelX"))
	require.NoError(t, m.Close(ctx))

	events := trace.Events()
	require.NotEmpty(t, events)
	require.NotEmpty(t, m.SessionID())

	var states []string
	var sent bool
	for _, ev := range events {
		assert.Equal(t, m.SessionID(), ev.SessionID)
		assert.Equal(t, resource.MustParse(instr).String(), ev.Resource)
		assert.Equal(t, "ModelX", ev.Model)
		if ev.StateChange != nil && ev.StateChange.Entity == log.StateEntitySession {
			states = append(states, ev.StateChange.NewState)
		}
		if ev.Message != nil && ev.Message.Text == "*RST" {
			sent = true
		}
	}
	assert.Equal(t, []string{"OPENING", "OPEN", "CLOSING", "CLOSED"}, states)
	assert.True(t, sent)
}

func TestLineFrequencyProvenance(t *testing.T) {
	ctx := context.Background()

	t.Run("AssumedInNativeMode", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		m := newManager(t, emu, func(c *session.Config) {
			c.Profile = parseProfile(t, "base: scpi\nsupport_mode: native\n")
		})
		require.NoError(t, m.Open(ctx, instr, ""))
		assert.Equal(t, session.Fact{Value: 60, Provenance: session.ProvenanceAssumed}, m.LineFrequency())
		assert.True(t, m.IsInitialized())
	})

	t.Run("UnknownWithoutAssumption", func(t *testing.T) {
		emu := channel.NewEmulator(channel.DefaultEmulatorConfig())
		m := newManager(t, emu, func(c *session.Config) {
			c.Profile = parseProfile(t, "base: scpi\nsupport_mode: native\nline_frequency: 0\n")
		})
		require.NoError(t, m.Open(ctx, instr, ""))
		f := m.LineFrequency()
		assert.False(t, f.Known())
		assert.Equal(t, "unknown", f.String())
	})
}

// captureLogger collects trace events.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) Events() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]log.Event(nil), c.events...)
}
