package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benchlink/benchlink-go/pkg/channel"
	"github.com/benchlink/benchlink-go/pkg/clock"
	"github.com/benchlink/benchlink-go/pkg/log"
	"github.com/benchlink/benchlink-go/pkg/observer"
	"github.com/benchlink/benchlink-go/pkg/profile"
	"github.com/benchlink/benchlink-go/pkg/register"
	"github.com/benchlink/benchlink-go/pkg/resource"
	"github.com/benchlink/benchlink-go/pkg/scpi"
	"github.com/benchlink/benchlink-go/pkg/sequence"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

// Manager owns the lifecycle of one instrument session. A Manager is used
// for a single open/close cycle; once closed it cannot be reopened.
type Manager struct {
	// opMu serializes Open and Close.
	opMu sync.Mutex

	config  Config
	profile *profile.Profile
	opener  channel.Opener
	probe   resource.Probe
	clock   clock.Clock
	logger  *slog.Logger
	rec     *log.Recorder

	mu        sync.RWMutex
	state     State
	name      resource.Name
	model     string
	raw       channel.Channel
	serial    *channel.Serialized
	owned     bool
	announced bool
	engine    *register.Engine
	seq       *sequence.Sequencer
	disp      *srq.Dispatcher

	// borrowedTimeout is restored on a borrowed channel at close.
	borrowedTimeout time.Duration
	timeouts        []time.Duration

	lastAction   string
	lastSent     string
	lastReceived string

	validMu   sync.Mutex
	validated string

	openChanged observer.List[bool]
	requests    observer.List[srq.Notification]
	changes     observer.List[register.Change]
	steps       observer.List[sequence.StepEvent]
}

// New creates a Manager. The profile is validated here so a bad profile
// fails before any instrument is touched.
func New(config Config) (*Manager, error) {
	p := config.Profile
	if p == nil {
		var err error
		if p, err = profile.Load(""); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	opener := config.Opener
	if opener == nil {
		opener = channel.NewDialer(config.Logger)
	}
	probe := config.Probe
	if probe == nil {
		probe = resource.Default()
	}

	return &Manager{
		config:  config,
		profile: p,
		opener:  opener,
		probe:   probe,
		clock:   clock.OrReal(config.Clock),
		logger:  config.Logger,
		rec:     log.NewRecorder(config.Trace),
	}, nil
}

// Open opens the channel to resourceName and runs the open sequence. On
// return the session is either open and initialized, or closed.
func (m *Manager) Open(ctx context.Context, resourceName, resourceModel string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch m.State() {
	case StateOpen:
		return ErrAlreadyOpen
	case StateClosed:
		return ErrSessionClosed
	}

	name, err := resource.Parse(resourceName)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.name, m.model = name, resourceModel
	m.mu.Unlock()
	m.rec.SetResource(name.String(), resourceModel)
	m.setState(StateOpening, "open requested")
	m.info("opening session", "model", resourceModel, "profile", m.profile.Name)

	if err := m.open(ctx, name, resourceModel); err != nil {
		return m.abort(ctx, err)
	}

	m.mu.Lock()
	m.announced = true
	m.mu.Unlock()
	m.config.Metrics.SessionOpened(name.String())
	m.info("session open", "identity", m.Identity().String())
	m.openChanged.Emit(true)
	return nil
}

func (m *Manager) open(ctx context.Context, name resource.Name, model string) error {
	event := func(cancelable bool) *HookEvent {
		return &HookEvent{Resource: name, Model: model, cancelable: cancelable}
	}

	if err := m.runHook(ctx, m.config.Hooks.BeforeOpening, event(false), StepBeforeOpening); err != nil {
		return err
	}

	m.setAction(StepOpenChannel)
	raw, owned, err := m.openChannel(ctx, name)
	if err != nil {
		return &OperationError{Step: StepOpenChannel, Err: err}
	}
	if err := m.attach(name, raw, owned); err != nil {
		return &OperationError{Step: StepOpenChannel, Err: err}
	}

	if err := m.runHook(ctx, m.config.Hooks.Opening, event(true), StepOpening); err != nil {
		return err
	}

	m.setAction(StepSequence)
	if err := m.seq.Run(ctx); err != nil {
		return &OperationError{Step: StepSequence, Err: err}
	}

	m.setAction(StepNotification)
	if err := m.startDispatcher(ctx); err != nil {
		return &OperationError{Step: StepNotification, Err: err}
	}

	if err := m.runHook(ctx, m.config.Hooks.Initializing, event(true), StepInitializing); err != nil {
		return err
	}

	m.setState(StateOpen, "initialized")
	return m.runHook(ctx, m.config.Hooks.Initialized, event(false), StepInitialized)
}

func (m *Manager) openChannel(ctx context.Context, name resource.Name) (channel.Channel, bool, error) {
	if m.config.Channel != nil {
		return m.config.Channel, false, nil
	}
	ch, err := m.opener.Open(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return ch, true, nil
}

// attach builds the per-open components around raw.
func (m *Manager) attach(name resource.Name, raw channel.Channel, owned bool) error {
	res := name.String()

	m.mu.Lock()
	m.raw, m.owned = raw, owned
	if !owned {
		m.borrowedTimeout = raw.Timeout()
	}
	m.mu.Unlock()

	if t := m.profile.Timeout; t > 0 {
		raw.SetTimeout(t)
	}
	serial := channel.NewSerialized(channel.NewTraced(raw, m.rec))

	rc, err := m.profile.RegisterConfig()
	if err != nil {
		return err
	}
	rc.Clock = m.clock
	rc.Logger = m.logger
	engine, err := register.NewEngine(serial, rc)
	if err != nil {
		return err
	}
	engine.OnChange(m.onRegisterChange)

	sc, err := m.profile.SequenceConfig()
	if err != nil {
		return err
	}
	sc.Subsystems = m.config.Subsystems
	sc.Resource = res
	sc.Metrics = m.config.Metrics
	sc.Clock = m.clock
	sc.Logger = m.logger
	seq, err := sequence.New(serial, engine, sc)
	if err != nil {
		return err
	}
	seq.OnStep(m.onStep)

	dc, err := m.profile.DispatcherConfig()
	if err != nil {
		return err
	}
	dc.Process = m.config.Process
	dc.Diagnostics = m.Diagnostics
	dc.OnHandlerError = m.onHandlerError
	dc.Resource = res
	dc.Metrics = m.config.Metrics
	dc.Clock = m.clock
	dc.Logger = m.logger
	var hw channel.ServiceRequester
	if sr, ok := raw.(channel.ServiceRequester); ok {
		hw = sr
	}
	disp, err := srq.New(serial, hw, dc)
	if err != nil {
		return err
	}
	disp.OnServiceRequest(m.onServiceRequest)

	m.mu.Lock()
	m.serial = serial
	m.engine = engine
	m.seq = seq
	m.disp = disp
	m.mu.Unlock()
	return nil
}

// startDispatcher starts service request delivery. A profile asking for
// hardware SRQ on a channel without one falls back to polling.
func (m *Manager) startDispatcher(ctx context.Context) error {
	err := m.disp.Start(ctx)
	if errors.Is(err, srq.ErrNotSupported) {
		m.warn("channel has no service request line, polling instead")
		err = m.disp.SetMode(ctx, srq.ModePolled)
	}
	if err != nil {
		return err
	}
	m.rec.State(log.StateEntityDispatcher, "", m.disp.Mode().String(), "started")
	return nil
}

func (m *Manager) runHook(ctx context.Context, hook Hook, ev *HookEvent, step string) error {
	if hook == nil {
		return nil
	}
	m.setAction(step)
	if err := hook(ctx, ev); err != nil {
		return &OperationError{Step: step, Err: err}
	}
	if ev.canceled {
		oe := &OperationError{Step: step, Canceled: true}
		if ev.reason != "" {
			oe.Err = errors.New(ev.reason)
		}
		return oe
	}
	return nil
}

// abort rolls a failed open back to closed.
func (m *Manager) abort(ctx context.Context, err error) error {
	var oe *OperationError
	if !errors.As(err, &oe) {
		oe = &OperationError{Step: StepOpenChannel, Err: err}
	}
	if errors.Is(oe.Err, context.Canceled) {
		oe.Canceled = true
	}

	res := m.Resource().String()
	m.warn("open failed", "step", oe.Step, "error", oe)
	m.config.Metrics.SessionOpenFailed(res, oe.Step)
	m.rec.Error(log.LayerSession, oe, "open")

	if cerr := m.closeLocked(context.WithoutCancel(ctx), "open failed"); cerr != nil {
		m.warn("close after failed open", "error", cerr)
	}
	return oe
}

// Close closes the session. Closing a session that is not open is a no-op.
// Errors while stopping service requests or closing the channel are
// returned, but the session is closed regardless.
func (m *Manager) Close(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch m.State() {
	case StateUnopened, StateClosed:
		return nil
	}
	return m.closeLocked(ctx, "close requested")
}

// closeLocked tears the session down. Caller holds m.opMu.
func (m *Manager) closeLocked(ctx context.Context, reason string) error {
	m.setState(StateClosing, reason)

	m.mu.RLock()
	name, model := m.name, m.model
	disp, raw, owned := m.disp, m.raw, m.owned
	borrowedTimeout := m.borrowedTimeout
	m.mu.RUnlock()
	m.info("closing session", "reason", reason)

	if hook := m.config.Hooks.Closing; hook != nil {
		m.setAction("handling closing actions")
		ev := &HookEvent{Resource: name, Model: model, cancelable: true}
		if err := hook(ctx, ev); err != nil {
			m.warn("closing hook failed", "error", err)
		}
		if ev.canceled {
			m.info("close cannot be canceled, continuing", "reason", ev.reason)
		}
	}

	var errs []error
	if disp != nil {
		m.setAction(StepServiceRequests)
		if err := disp.Stop(ctx); err != nil {
			errs = append(errs, &OperationError{Step: StepServiceRequests, Err: err})
		}
	}
	if raw != nil {
		if owned {
			m.setAction(StepCloseChannel)
			if err := raw.Close(); err != nil {
				errs = append(errs, &OperationError{Step: StepCloseChannel, Err: err})
			}
		} else {
			raw.SetTimeout(borrowedTimeout)
		}
	}

	m.mu.Lock()
	m.raw = nil
	m.serial = nil
	m.timeouts = nil
	announced := m.announced
	m.announced = false
	m.mu.Unlock()
	m.setState(StateClosed, reason)

	if hook := m.config.Hooks.Closed; hook != nil {
		if err := hook(ctx, &HookEvent{Resource: name, Model: model}); err != nil {
			m.warn("closed hook failed", "error", err)
		}
	}

	if raw != nil {
		m.config.Metrics.SessionClosed(name.String())
	}
	if announced {
		m.openChanged.Emit(false)
	}

	err := errors.Join(errs...)
	if err != nil {
		m.rec.Error(log.LayerSession, err, "close")
	}
	return err
}

// TryOpen is Open reporting success and a diagnostic instead of an error.
func (m *Manager) TryOpen(ctx context.Context, resourceName, resourceModel string) (bool, string) {
	if err := m.Open(ctx, resourceName, resourceModel); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// TryClose is Close reporting success and a diagnostic instead of an error.
func (m *Manager) TryClose(ctx context.Context) (bool, string) {
	if err := m.Close(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Validate checks that resourceName exists without opening it. The last
// name that validated is remembered and not probed again.
func (m *Manager) Validate(ctx context.Context, resourceName string) error {
	name, err := resource.Parse(resourceName)
	if err != nil {
		return err
	}
	key := name.String()

	m.validMu.Lock()
	defer m.validMu.Unlock()
	if m.validated == key {
		return nil
	}
	if err := m.probe.Probe(ctx, name); err != nil {
		return err
	}
	m.validated = key
	return nil
}

// Reset reruns the reset/clear/init sequence on an open session.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.RLock()
	seq, open := m.seq, m.state == StateOpen
	m.mu.RUnlock()
	if !open {
		return ErrNotOpen
	}
	m.setAction("reset")
	return seq.Run(ctx)
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOpen reports whether the session is open.
func (m *Manager) IsOpen() bool {
	return m.State() == StateOpen
}

// IsInitialized reports whether the open sequence has completed on the
// current channel.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.seq == nil || (m.state != StateOpening && m.state != StateOpen) {
		return false
	}
	return m.seq.IsInitialized()
}

// Resource returns the resource name of the last Open.
func (m *Manager) Resource() resource.Name {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Model returns the resource model of the last Open.
func (m *Manager) Model() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// Profile returns the instrument profile.
func (m *Manager) Profile() *profile.Profile {
	return m.profile
}

// SessionID returns the trace session ID, or "" when tracing is off.
func (m *Manager) SessionID() string {
	return m.rec.SessionID()
}

// Owned reports whether the manager opened the channel itself and will
// close it.
func (m *Manager) Owned() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw != nil && m.owned
}

// Enabled reports whether the session talks to real hardware rather than
// an emulated instrument.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw != nil && !channel.IsEmulated(m.raw)
}

// ServiceRequestAttached reports whether the hardware service request
// handler is attached.
func (m *Manager) ServiceRequestAttached() bool {
	d := m.Dispatcher()
	return d != nil && d.HardwareActive()
}

// LastAction returns the most recent step or foreground action.
func (m *Manager) LastAction() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAction
}

// Registers returns the status register engine, or nil before Open.
func (m *Manager) Registers() *register.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

// Dispatcher returns the service request dispatcher, or nil before Open.
func (m *Manager) Dispatcher() *srq.Dispatcher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disp
}

// Sequencer returns the reset/clear/init sequencer, or nil before Open.
func (m *Manager) Sequencer() *sequence.Sequencer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

// Identity returns the identity read during the open sequence.
func (m *Manager) Identity() scpi.Identity {
	seq := m.Sequencer()
	if seq == nil {
		return scpi.Identity{}
	}
	return seq.Identity()
}

// LineFrequency returns the AC line frequency: measured if the device
// reported it since the last reset, otherwise the profile's assumption.
func (m *Manager) LineFrequency() Fact {
	if seq := m.Sequencer(); seq != nil {
		if hz, ok := seq.LineFrequency(); ok {
			return Fact{Value: hz, Provenance: ProvenanceMeasured}
		}
	}
	if hz := m.profile.LineFrequency; hz > 0 {
		return Fact{Value: hz, Provenance: ProvenanceAssumed}
	}
	return Fact{}
}

// Diagnostics returns the context attached to handler failures.
func (m *Manager) Diagnostics() srq.Diagnostics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return srq.Diagnostics{
		LastAction:   m.lastAction,
		LastSent:     m.lastSent,
		LastReceived: m.lastReceived,
	}
}

// OnOpenChanged subscribes to open (true) and close (false) transitions.
func (m *Manager) OnOpenChanged(fn func(open bool)) observer.ID {
	return m.openChanged.Subscribe(fn)
}

// RemoveOpenChangedHandler removes a subscription made with OnOpenChanged.
func (m *Manager) RemoveOpenChangedHandler(id observer.ID) {
	m.openChanged.Unsubscribe(id)
}

// OnServiceRequest subscribes to service request notifications.
// Subscriptions survive across the dispatcher's lifetime.
func (m *Manager) OnServiceRequest(fn func(srq.Notification)) observer.ID {
	return m.requests.Subscribe(fn)
}

// RemoveServiceRequestHandler removes a subscription made with
// OnServiceRequest.
func (m *Manager) RemoveServiceRequestHandler(id observer.ID) {
	m.requests.Unsubscribe(id)
}

// OnRegisterChange subscribes to cached register value changes.
func (m *Manager) OnRegisterChange(fn func(register.Change)) observer.ID {
	return m.changes.Subscribe(fn)
}

// RemoveRegisterChangeHandler removes a subscription made with
// OnRegisterChange.
func (m *Manager) RemoveRegisterChangeHandler(id observer.ID) {
	m.changes.Unsubscribe(id)
}

// OnStep subscribes to sequencer step events.
func (m *Manager) OnStep(fn func(sequence.StepEvent)) observer.ID {
	return m.steps.Subscribe(fn)
}

// RemoveStepHandler removes a subscription made with OnStep.
func (m *Manager) RemoveStepHandler(id observer.ID) {
	m.steps.Unsubscribe(id)
}

func (m *Manager) onStep(ev sequence.StepEvent) {
	if ev.Phase == sequence.PhaseStarted {
		m.setAction(ev.Step.String())
	}
	m.rec.State(log.StateEntitySequence, "", ev.Phase.String(), ev.Step.String())
	if ev.Err != nil {
		m.rec.Error(log.LayerSession, ev.Err, ev.Step.String())
	}
	m.steps.Emit(ev)
}

func (m *Manager) onRegisterChange(c register.Change) {
	family, field := c.Family.String(), c.Field.String()
	m.rec.Register(family, field, maskPtr(c.Old), maskPtr(c.New))
	v, known := c.New.Value()
	m.config.Metrics.RegisterValue(m.Resource().String(), family, field, v, known)
	m.changes.Emit(c)
}

func (m *Manager) onServiceRequest(n srq.Notification) {
	m.rec.ServiceRequest(n.StatusByte, traceSource(n.Source), srq.DescribeStatusByte(n.StatusByte), n.Reading)
	if n.HasReading {
		m.mu.Lock()
		m.lastReceived = n.Reading
		m.mu.Unlock()
	}
	m.requests.Emit(n)
}

func (m *Manager) onHandlerError(he *srq.HandlerError) {
	m.rec.Error(log.LayerSession, he, "service request")
}

func (m *Manager) setState(s State, reason string) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()

	m.rec.State(log.StateEntitySession, old.String(), s.String(), reason)
	m.debug("session state changed", "from", old, "to", s)
}

func (m *Manager) setAction(action string) {
	m.mu.Lock()
	m.lastAction = action
	m.mu.Unlock()
}

func maskPtr(mask register.Mask) *uint16 {
	v, ok := mask.Value()
	if !ok {
		return nil
	}
	return &v
}

func traceSource(src srq.Source) log.StatusSource {
	switch src {
	case srq.SourceServiceRequest:
		return log.StatusSourceServiceRequest
	case srq.SourceForeground:
		return log.StatusSourceForeground
	default:
		return log.StatusSourcePoll
	}
}

func (m *Manager) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, append(args, "resource", m.Resource().String())...)
	}
}

func (m *Manager) info(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Info(msg, append(args, "resource", m.Resource().String())...)
	}
}

func (m *Manager) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, append(args, "resource", m.Resource().String())...)
	}
}
