package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benchlink/benchlink-go/pkg/clock"
	"github.com/benchlink/benchlink-go/pkg/metrics"
	"github.com/benchlink/benchlink-go/pkg/observer"
	"github.com/benchlink/benchlink-go/pkg/register"
	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// Default settle delays.
const (
	DefaultWriteToReadDelay = 1 * time.Millisecond
	DefaultStatusReadDelay  = 1 * time.Millisecond
)

// Instrument is the channel access the sequencer needs.
type Instrument interface {
	Write(ctx context.Context, command string) error
	Query(ctx context.Context, query string) (string, error)
	ReadStatusByte(ctx context.Context) (byte, error)

	// Clear issues a selective device clear.
	Clear(ctx context.Context) error

	// DiscardUnreadData drops output the device produced but nobody read.
	DiscardUnreadData(ctx context.Context) error

	// Exclusive runs fn without interleaving other exchanges.
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// Presettable is implemented by subsystems that take part in the sequence.
type Presettable interface {
	// DefineKnownResetState runs after the reset command.
	DefineKnownResetState(ctx context.Context) error

	// DefineClearExecutionState programs the subsystem's steady state
	// after the clear-status command.
	DefineClearExecutionState(ctx context.Context) error

	// InitKnownState runs once the instrument's identity is known.
	InitKnownState(ctx context.Context) error

	// PresetKnownState returns the subsystem to its preset state. It runs
	// after the status preset when the clear state asks for one.
	PresetKnownState(ctx context.Context) error
}

// Transition is a pair of transition filter masks.
type Transition struct {
	Positive uint16 `yaml:"positive"`
	Negative uint16 `yaml:"negative"`
}

// OperationCompletion configures the operation-complete service request.
type OperationCompletion struct {
	StandardMask       uint16 `yaml:"standard_mask"`
	ServiceRequestMask uint16 `yaml:"service_request_mask"`
	ReadBack           bool   `yaml:"read_back"`
}

// ClearState is the register programming applied in CLEAR_EXECUTION_STATE.
type ClearState struct {
	Preset              bool                           `yaml:"preset"`
	Enables             map[register.Family]uint16     `yaml:"-"`
	Transitions         map[register.Family]Transition `yaml:"-"`
	OperationCompletion *OperationCompletion           `yaml:"operation_completion"`
}

// Config configures a Sequencer.
type Config struct {
	Mode SupportMode

	ResetCommand       string
	ClearCommand       string
	IdentityQuery      string
	ErrorQuery         string
	LineFrequencyQuery string

	// WriteToReadDelay and StatusReadDelay add up to the settle delay that
	// ends every step.
	WriteToReadDelay time.Duration
	StatusReadDelay  time.Duration

	// ErrorBits are the status byte bits that fail a step.
	ErrorBits byte

	ClearState ClearState

	// Labels override register bit labels in INIT_KNOWN_STATE.
	Labels map[register.Family]map[int]string

	Subsystems []Presettable

	Resource string
	Metrics  *metrics.Metrics
	Clock    clock.Clock
	Logger   *slog.Logger
}

// DefaultConfig returns the IEEE-488.2/SCPI sequence.
func DefaultConfig() Config {
	return Config{
		Mode:               SupportFull,
		ResetCommand:       scpi.CmdReset,
		ClearCommand:       scpi.CmdClearStatus,
		IdentityQuery:      scpi.QueryIdentity,
		ErrorQuery:         scpi.QuerySystemError,
		LineFrequencyQuery: scpi.QuerySystemLineFreq,
		WriteToReadDelay:   DefaultWriteToReadDelay,
		StatusReadDelay:    DefaultStatusReadDelay,
		ErrorBits:          scpi.StatusErrorAvailable,
		ClearState: ClearState{
			Preset: true,
			OperationCompletion: &OperationCompletion{
				StandardMask:       uint16(scpi.EventOperationComplete | scpi.EventErrorBits),
				ServiceRequestMask: uint16(scpi.StatusEventSummary | scpi.StatusErrorAvailable),
				ReadBack:           true,
			},
		},
	}
}

// Sequencer runs the reset/clear/init protocol for one session.
type Sequencer struct {
	mu sync.Mutex

	inst   Instrument
	engine *register.Engine
	config Config
	clock  clock.Clock
	logger *slog.Logger

	initialized   bool
	identity      scpi.Identity
	lineFrequency float64
	lineMeasured  bool

	steps observer.List[StepEvent]
}

// New creates a sequencer. engine is the status subsystem and may be nil
// only in SupportFull and SupportNative modes.
func New(inst Instrument, engine *register.Engine, config Config) (*Sequencer, error) {
	if inst == nil {
		return nil, fmt.Errorf("%w: nil instrument", ErrInvalidConfig)
	}
	if config.Mode == SupportStatusOnly && engine == nil {
		return nil, ErrStatusSubsystemRequired
	}
	if config.ErrorBits == 0 {
		config.ErrorBits = scpi.StatusErrorAvailable
	}

	return &Sequencer{
		inst:   inst,
		engine: engine,
		config: config,
		clock:  clock.OrReal(config.Clock),
		logger: config.Logger,
	}, nil
}

// Mode returns the support mode.
func (s *Sequencer) Mode() SupportMode {
	return s.config.Mode
}

// SettleDelay returns the delay that ends every step.
func (s *Sequencer) SettleDelay() time.Duration {
	return s.config.WriteToReadDelay + s.config.StatusReadDelay
}

// OnStep subscribes to step progress.
func (s *Sequencer) OnStep(fn func(StepEvent)) observer.ID {
	return s.steps.Subscribe(fn)
}

// RemoveStepHandler removes a subscription made with OnStep.
func (s *Sequencer) RemoveStepHandler(id observer.ID) {
	s.steps.Unsubscribe(id)
}

// IsInitialized reports whether INIT_KNOWN_STATE has completed since the
// last reset.
func (s *Sequencer) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// RequireInitialized returns ErrNotInitialized until INIT_KNOWN_STATE has
// completed. Subsystems call it before touching the instrument.
func (s *Sequencer) RequireInitialized() error {
	if !s.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// Identity returns the identity read in INIT_KNOWN_STATE.
func (s *Sequencer) Identity() scpi.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// LineFrequency returns the AC line frequency and whether it was measured
// since the last reset.
func (s *Sequencer) LineFrequency() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineFrequency, s.lineMeasured
}

// Run executes all four steps in order and stops at the first failure.
func (s *Sequencer) Run(ctx context.Context) error {
	s.setInitialized(false)
	for _, step := range Steps {
		if err := s.RunStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// RunStep executes a single step, including its settle delay and status
// check. Steps other than CLEAR_ACTIVE_STATE are skipped in SupportNative.
func (s *Sequencer) RunStep(ctx context.Context, step Step) error {
	var body func(context.Context) error
	switch step {
	case StepClearActiveState:
		body = s.clearActiveState
	case StepResetKnownState:
		body = s.resetKnownState
	case StepClearExecutionState:
		body = s.clearExecutionState
	case StepInitKnownState:
		body = s.initKnownState
	default:
		return fmt.Errorf("%w: unknown step %d", ErrSequencing, step)
	}

	if step != StepClearActiveState && s.config.Mode == SupportNative {
		s.steps.Emit(StepEvent{Step: step, Phase: PhaseSkipped})
		if step == StepInitKnownState {
			s.setInitialized(true)
		}
		return nil
	}

	s.steps.Emit(StepEvent{Step: step, Phase: PhaseStarted})
	start := s.clock.Now()

	err := s.inst.Exclusive(ctx, func(ctx context.Context) error {
		if err := body(ctx); err != nil {
			return err
		}
		return s.settleAndCheck(ctx)
	})

	d := s.clock.Now().Sub(start)
	s.config.Metrics.SequenceStep(s.config.Resource, step.String(), err, d)
	if err != nil {
		s.warn("sequence step failed", "step", step, "error", err)
		s.steps.Emit(StepEvent{Step: step, Phase: PhaseFailed, Duration: d, Err: err})
		return fmt.Errorf("%s: %w", step, err)
	}

	if step == StepInitKnownState {
		s.setInitialized(true)
	}
	s.debug("sequence step completed", "step", step, "duration", d)
	s.steps.Emit(StepEvent{Step: step, Phase: PhaseCompleted, Duration: d})
	return nil
}

// CheckStatus waits the settle delay and then fails with a
// *scpi.DeviceError if the status byte reports an error.
func (s *Sequencer) CheckStatus(ctx context.Context) error {
	return s.inst.Exclusive(ctx, s.settleAndCheck)
}

func (s *Sequencer) clearActiveState(ctx context.Context) error {
	if err := s.inst.Clear(ctx); err != nil {
		return fmt.Errorf("device clear: %w", err)
	}
	return nil
}

func (s *Sequencer) resetKnownState(ctx context.Context) error {
	s.setInitialized(false)
	if s.engine != nil {
		s.engine.ResetRegistersKnownState()
	}
	s.mu.Lock()
	s.lineFrequency, s.lineMeasured = 0, false
	s.mu.Unlock()

	if s.config.ResetCommand != "" {
		if err := s.inst.Write(ctx, s.config.ResetCommand); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}

	if s.config.Mode == SupportStatusOnly {
		return nil
	}

	if s.config.LineFrequencyQuery != "" {
		s.readLineFrequency(ctx)
	}
	for _, sub := range s.config.Subsystems {
		if err := sub.DefineKnownResetState(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) clearExecutionState(ctx context.Context) error {
	if s.config.ClearCommand != "" {
		if err := s.inst.Write(ctx, s.config.ClearCommand); err != nil {
			return fmt.Errorf("clear status: %w", err)
		}
	}
	if s.engine != nil {
		s.engine.ClearEventCaches()
		if err := s.defineStatusClearState(ctx); err != nil {
			return err
		}
	}

	if s.config.Mode == SupportStatusOnly {
		return nil
	}
	for _, sub := range s.config.Subsystems {
		if err := sub.DefineClearExecutionState(ctx); err != nil {
			return err
		}
	}
	return nil
}

// defineStatusClearState programs the status subsystem's steady state.
func (s *Sequencer) defineStatusClearState(ctx context.Context) error {
	cs := s.config.ClearState

	if cs.Preset {
		if err := s.engine.PresetKnownState(ctx); err != nil {
			return err
		}
		if s.config.Mode != SupportStatusOnly {
			for _, sub := range s.config.Subsystems {
				if err := sub.PresetKnownState(ctx); err != nil {
					return err
				}
			}
		}
	}
	for _, f := range register.Families {
		mask, ok := cs.Enables[f]
		if !ok || !s.engine.Supports(f) {
			continue
		}
		if err := s.engine.WriteEnable(ctx, f, mask); err != nil {
			return err
		}
	}
	for _, f := range register.Families {
		tr, ok := cs.Transitions[f]
		if !ok || !s.engine.SupportsTransitions(f) {
			continue
		}
		if err := s.engine.WriteTransitions(ctx, f, tr.Positive, tr.Negative); err != nil {
			return err
		}
	}
	if oc := cs.OperationCompletion; oc != nil {
		if err := s.engine.EnableServiceRequestOnOperationCompletion(ctx, oc.StandardMask, oc.ServiceRequestMask, oc.ReadBack); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) initKnownState(ctx context.Context) error {
	if err := s.inst.DiscardUnreadData(ctx); err != nil {
		return fmt.Errorf("discard unread data: %w", err)
	}

	if s.config.IdentityQuery != "" {
		resp, err := s.inst.Query(ctx, s.config.IdentityQuery)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		id := scpi.ParseIdentity(resp)
		s.mu.Lock()
		s.identity = id
		s.mu.Unlock()
	}

	if s.engine != nil {
		if err := s.engine.DefineLabels(s.config.Labels); err != nil {
			return err
		}
	}

	if s.config.Mode == SupportStatusOnly {
		return nil
	}
	for _, sub := range s.config.Subsystems {
		if err := sub.InitKnownState(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) readLineFrequency(ctx context.Context) {
	resp, err := s.inst.Query(ctx, s.config.LineFrequencyQuery)
	if err != nil {
		s.warn("line frequency query failed", "error", err)
		return
	}
	f, err := scpi.ParseFloat(resp)
	if err != nil || f <= 0 {
		s.warn("line frequency response invalid", "response", resp)
		return
	}
	s.mu.Lock()
	s.lineFrequency, s.lineMeasured = f, true
	s.mu.Unlock()
}

// settleAndCheck waits the settle delay, then reads the status byte.
func (s *Sequencer) settleAndCheck(ctx context.Context) error {
	if err := s.clock.Sleep(ctx, s.SettleDelay()); err != nil {
		return err
	}
	stb, err := s.inst.ReadStatusByte(ctx)
	if err != nil {
		return fmt.Errorf("read status byte: %w", err)
	}
	if stb&s.config.ErrorBits == 0 {
		return nil
	}

	s.config.Metrics.DeviceError(s.config.Resource)
	return s.drainErrors(ctx, stb)
}

// drainErrors reads the error queue into a single *scpi.DeviceError.
func (s *Sequencer) drainErrors(ctx context.Context, stb byte) error {
	if s.config.ErrorQuery == "" {
		return &scpi.DeviceError{Message: "error bit set in status byte", StatusByte: stb}
	}

	var entries []scpi.DeviceError
	for i := 0; i < scpi.MaxErrorQueueIterations; i++ {
		resp, err := s.inst.Query(ctx, s.config.ErrorQuery)
		if err != nil {
			return errors.Join(&scpi.DeviceError{Message: "error bit set in status byte", StatusByte: stb}, err)
		}
		de, err := scpi.ParseErrorEntry(resp)
		if err != nil {
			return err
		}
		if de.IsNoError() {
			break
		}
		entries = append(entries, *de)
	}

	if len(entries) == 0 {
		return &scpi.DeviceError{Message: "error bit set in status byte", StatusByte: stb}
	}
	first := entries[0]
	first.StatusByte = stb
	first.More = entries[1:]
	return &first
}

func (s *Sequencer) setInitialized(v bool) {
	s.mu.Lock()
	s.initialized = v
	s.mu.Unlock()
}

func (s *Sequencer) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, append(args, "resource", s.config.Resource)...)
	}
}

func (s *Sequencer) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, append(args, "resource", s.config.Resource)...)
	}
}
