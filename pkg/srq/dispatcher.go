package srq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benchlink/benchlink-go/pkg/channel"
	"github.com/benchlink/benchlink-go/pkg/clock"
	"github.com/benchlink/benchlink-go/pkg/metrics"
	"github.com/benchlink/benchlink-go/pkg/observer"
	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// DefaultPollPeriod is the default status byte poll period.
const DefaultPollPeriod = 1000 * time.Millisecond

// Device is the session-side access the dispatcher needs. Implementations
// serialize these calls with foreground I/O.
type Device interface {
	ReadStatusByte(ctx context.Context) (byte, error)
	ReadLine(ctx context.Context) (string, error)
}

// ProcessFunc is the subsystem hook run for every status byte the
// dispatcher handles. Returning an error that wraps scpi.ErrDevice marks
// the device as failed for waiters; any other error or panic is reported
// as a *HandlerError.
type ProcessFunc func(ctx context.Context, n Notification) error

// Config configures a Dispatcher.
type Config struct {
	Mode       Mode
	PollPeriod time.Duration
	Bits       Bits

	// AutoReadOnPoll reads the pending message when a poll sees the
	// message-available bit.
	AutoReadOnPoll bool

	// AutoReadOnSRQ does the same for hardware service requests.
	AutoReadOnSRQ bool

	Process ProcessFunc

	// Diagnostics supplies session context for handler failures.
	Diagnostics func() Diagnostics

	// OnHandlerError receives every reported handler failure.
	OnHandlerError func(*HandlerError)

	// Resource labels logs and metrics.
	Resource string
	Metrics  *metrics.Metrics
	Clock    clock.Clock
	Logger   *slog.Logger
}

// DefaultConfig returns a configuration with polling and auto-read off.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeNone,
		PollPeriod: DefaultPollPeriod,
		Bits:       DefaultBits(),
	}
}

type handlerKey struct{}

// Dispatcher delivers service requests for one session, either from the
// channel's hardware SRQ or from a poll timer. At most one of the two is
// active at any time.
type Dispatcher struct {
	mu sync.Mutex

	dev    Device
	hw     channel.ServiceRequester
	config Config
	clock  clock.Clock
	logger *slog.Logger

	mode           Mode
	hardwareActive bool
	pollEnabled    bool
	timer          *time.Timer
	timerGen       uint64
	ticking        bool
	stopped        bool

	state       State
	lastStatus  byte
	seenStatus  bool
	reading     string
	hasReading  bool
	opcComplete bool
	failure     error

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	ticks    atomic.Int64

	notifications observer.List[Notification]
}

// New creates a dispatcher. hw may be nil if the channel has no hardware
// service request line; ModeEventDriven is then unavailable.
func New(dev Device, hw channel.ServiceRequester, config Config) (*Dispatcher, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidConfig)
	}
	if config.PollPeriod <= 0 {
		config.PollPeriod = DefaultPollPeriod
	}
	if config.Bits == (Bits{}) {
		config.Bits = DefaultBits()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		dev:    dev,
		hw:     hw,
		config: config,
		clock:  clock.OrReal(config.Clock),
		logger: config.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start activates the configured mode.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.SetMode(ctx, d.config.Mode)
}

// SetMode switches delivery mode. The old path is shut down before the new
// one is enabled.
func (d *Dispatcher) SetMode(ctx context.Context, mode Mode) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	if mode == ModeEventDriven && d.hw == nil {
		d.mu.Unlock()
		return ErrNotSupported
	}
	d.stopPollLocked()
	wasHardware := d.hardwareActive
	d.hardwareActive = false
	d.mode = ModeNone
	d.mu.Unlock()

	if wasHardware && mode != ModeEventDriven {
		d.hw.SetServiceRequestHandler(nil)
		if err := d.hw.DisableServiceRequest(ctx); err != nil {
			d.warn("disable service request failed", "error", err)
		}
	}

	switch mode {
	case ModeEventDriven:
		d.hw.SetServiceRequestHandler(d.onServiceRequest)
		if err := d.hw.EnableServiceRequest(ctx); err != nil {
			d.hw.SetServiceRequestHandler(nil)
			return fmt.Errorf("enable service request: %w", err)
		}
		d.mu.Lock()
		d.mode = ModeEventDriven
		d.hardwareActive = true
		d.mu.Unlock()

	case ModePolled:
		d.mu.Lock()
		d.mode = ModePolled
		d.pollEnabled = true
		d.armLocked()
		d.mu.Unlock()
	}

	d.debug("service request mode set", "mode", mode)
	return nil
}

// Mode returns the current delivery mode.
func (d *Dispatcher) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// PollEnabled reports whether the poll timer will keep ticking.
func (d *Dispatcher) PollEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pollEnabled
}

// HardwareActive reports whether the hardware handler is attached.
func (d *Dispatcher) HardwareActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hardwareActive
}

// EnablePolling resumes polling after it was disabled by an error. It is a
// no-op unless the dispatcher is in ModePolled.
func (d *Dispatcher) EnablePolling() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	if d.mode != ModePolled {
		return fmt.Errorf("%w: mode %s", ErrPollingDisabled, d.mode)
	}
	if !d.pollEnabled {
		d.pollEnabled = true
		d.armLocked()
	}
	return nil
}

// DisablePolling stops the poll timer after the current tick.
func (d *Dispatcher) DisablePolling() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopPollLocked()
}

// Ticks returns the number of poll ticks that read the status byte.
func (d *Dispatcher) Ticks() int {
	return int(d.ticks.Load())
}

// State returns the last status byte snapshot.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state
	st.HardwareActive = d.hardwareActive
	st.PollActive = d.pollEnabled
	return st
}

// OnServiceRequest subscribes to normalized notifications.
func (d *Dispatcher) OnServiceRequest(fn func(Notification)) observer.ID {
	return d.notifications.Subscribe(fn)
}

// RemoveHandler removes a subscription made with OnServiceRequest.
func (d *Dispatcher) RemoveHandler(id observer.ID) {
	d.notifications.Unsubscribe(id)
}

// Poll reads the status byte once from the foreground and handles it like
// a tick, without affecting the timer. A pending message is always read.
func (d *Dispatcher) Poll(ctx context.Context) (State, error) {
	stb, err := d.dev.ReadStatusByte(ctx)
	if err != nil {
		return State{}, err
	}
	return d.handle(ctx, stb, SourceForeground).State, nil
}

// ResetCompletion forgets pending readings, operation-complete events and
// failures so a following Await sees only new ones.
func (d *Dispatcher) ResetCompletion() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reading, d.hasReading = "", false
	d.opcComplete = false
	d.failure = nil
}

// AwaitReading waits at most timeout for an auto-read reading or a
// failure. In ModeNone it polls the status byte itself.
func (d *Dispatcher) AwaitReading(ctx context.Context, timeout time.Duration) (string, error) {
	var reading string
	var failure error
	err := d.await(ctx, timeout, func() bool {
		if d.hasReading {
			reading, d.reading, d.hasReading = d.reading, "", false
			return true
		}
		if d.failure != nil {
			failure, d.failure = d.failure, nil
			return true
		}
		return false
	})
	if err != nil {
		return "", err
	}
	return reading, failure
}

// AwaitOperationComplete waits at most timeout for the standard event
// summary bit, which reports operation completion once *ESE enables it.
func (d *Dispatcher) AwaitOperationComplete(ctx context.Context, timeout time.Duration) error {
	var failure error
	err := d.await(ctx, timeout, func() bool {
		if d.opcComplete {
			d.opcComplete = false
			return true
		}
		if d.failure != nil {
			failure, d.failure = d.failure, nil
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	return failure
}

// await spin-waits on done, which runs with d.mu held.
func (d *Dispatcher) await(ctx context.Context, timeout time.Duration, done func() bool) error {
	var pollErr error
	err := clock.Poll(ctx, d.clock, timeout, nil, func() bool {
		if d.Mode() == ModeNone {
			if _, err := d.Poll(ctx); err != nil {
				pollErr = err
				return true
			}
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		return done()
	})
	if err != nil {
		return err
	}
	return pollErr
}

// Stop detaches the hardware handler, disables hardware service requests,
// stops the timer and waits for in-flight handlers. It is idempotent.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.stopPollLocked()
	wasHardware := d.hardwareActive
	d.hardwareActive = false
	d.mode = ModeNone
	d.mu.Unlock()

	var err error
	if wasHardware {
		d.hw.SetServiceRequestHandler(nil)
		if derr := d.hw.DisableServiceRequest(ctx); derr != nil {
			err = fmt.Errorf("disable service request: %w", derr)
		}
	}

	d.cancel()
	if ctx.Value(handlerKey{}) != d {
		d.inflight.Wait()
	}
	d.notifications.Clear()
	return err
}

// armLocked schedules the next tick. A running tick re-arms when it
// finishes. Caller holds d.mu.
func (d *Dispatcher) armLocked() {
	if d.stopped || !d.pollEnabled || d.hardwareActive || d.timer != nil || d.ticking {
		return
	}
	d.timerGen++
	gen := d.timerGen
	d.timer = time.AfterFunc(d.config.PollPeriod, func() { d.tick(gen) })
}

// stopPollLocked disables polling. A tick that already fired for the
// stopped timer becomes stale. Caller holds d.mu.
func (d *Dispatcher) stopPollLocked() {
	d.pollEnabled = false
	d.timerGen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Dispatcher) tick(gen uint64) {
	d.mu.Lock()
	if gen != d.timerGen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	if d.stopped || !d.pollEnabled || d.hardwareActive {
		d.mu.Unlock()
		return
	}
	d.ticking = true
	d.inflight.Add(1)
	ctx := context.WithValue(d.ctx, handlerKey{}, d)
	d.mu.Unlock()
	defer d.inflight.Done()

	d.ticks.Add(1)
	d.config.Metrics.PollTick(d.config.Resource)

	stb, err := d.dev.ReadStatusByte(ctx)
	if err != nil {
		d.warn("status byte poll failed, polling disabled", "error", err)
		d.mu.Lock()
		d.stopPollLocked()
		d.failure = fmt.Errorf("poll status byte: %w", err)
		d.mu.Unlock()
	} else {
		d.handle(ctx, stb, SourcePoll)
	}

	d.mu.Lock()
	d.ticking = false
	d.armLocked()
	d.mu.Unlock()
}

func (d *Dispatcher) onServiceRequest(stb byte) {
	d.mu.Lock()
	if d.stopped || !d.hardwareActive {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	ctx := context.WithValue(d.ctx, handlerKey{}, d)
	d.mu.Unlock()
	defer d.inflight.Done()

	d.handle(ctx, stb, SourceServiceRequest)
}

func (d *Dispatcher) handle(ctx context.Context, stb byte, src Source) Notification {
	st := d.config.Bits.derive(stb, src, d.clock.Now())

	d.mu.Lock()
	d.state = st
	changed := !d.seenStatus || d.lastStatus != stb
	d.lastStatus, d.seenStatus = stb, true
	if st.StandardEventPending {
		d.opcComplete = true
	}
	if st.ErrorAvailable {
		if src == SourcePoll {
			d.stopPollLocked()
		}
		d.failure = fmt.Errorf("%w: status byte 0x%02X", ErrErrorAvailable, stb)
	}
	d.mu.Unlock()

	if st.ErrorAvailable && src == SourcePoll {
		d.info("error bit set, polling disabled", "statusByte", stb)
	}

	n := Notification{State: st}
	if !st.ErrorAvailable && st.MessageAvailable && d.autoRead(src) {
		reading, err := d.dev.ReadLine(ctx)
		d.mu.Lock()
		if err != nil {
			d.failure = fmt.Errorf("auto-read: %w", err)
		} else {
			n.Reading, n.HasReading = reading, true
			d.reading, d.hasReading = reading, true
		}
		d.mu.Unlock()
	}

	if err := d.process(ctx, n); err != nil {
		if errors.Is(err, scpi.ErrDevice) {
			d.mu.Lock()
			d.failure = err
			d.mu.Unlock()
			d.config.Metrics.DeviceError(d.config.Resource)
		} else {
			d.report(err, stb)
		}
	}

	if src == SourceServiceRequest || n.HasReading || (changed && stb&^scpi.StatusRequestService != 0) {
		d.config.Metrics.ServiceRequest(d.config.Resource, src.String())
		d.notifications.Emit(n)
	}
	return n
}

func (d *Dispatcher) autoRead(src Source) bool {
	switch src {
	case SourceServiceRequest:
		return d.config.AutoReadOnSRQ
	case SourcePoll:
		return d.config.AutoReadOnPoll
	default:
		return true
	}
}

func (d *Dispatcher) process(ctx context.Context, n Notification) (err error) {
	if d.config.Process == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.config.Process(ctx, n)
}

func (d *Dispatcher) report(err error, stb byte) {
	he := &HandlerError{
		Err:         err,
		StatusByte:  stb,
		Description: DescribeStatusByte(stb),
	}
	if d.config.Diagnostics != nil {
		diag := d.config.Diagnostics()
		he.LastAction = diag.LastAction
		he.LastSent = diag.LastSent
		he.LastReceived = diag.LastReceived
	}

	d.warn("service request handler failed", "error", he)
	d.config.Metrics.HandlerFailure(d.config.Resource)
	if d.config.OnHandlerError != nil {
		d.config.OnHandlerError(he)
	}
}

func (d *Dispatcher) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, append(args, "resource", d.config.Resource)...)
	}
}

func (d *Dispatcher) info(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, append(args, "resource", d.config.Resource)...)
	}
}

func (d *Dispatcher) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, append(args, "resource", d.config.Resource)...)
	}
}
