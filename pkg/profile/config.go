package profile

import (
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/benchlink/benchlink-go/pkg/register"
	"github.com/benchlink/benchlink-go/pkg/sequence"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

// Mode returns the parsed support mode.
func (p *Profile) Mode() (sequence.SupportMode, error) {
	return sequence.ParseSupportMode(p.SupportMode)
}

// NotificationMode returns the parsed notification mode. An empty value
// selects polling.
func (p *Profile) NotificationMode() (srq.Mode, error) {
	if p.Notification == "" {
		return srq.ModePolled, nil
	}
	return srq.ParseMode(p.Notification)
}

// Bits returns the status byte layout for the dispatcher.
func (p *Profile) Bits() srq.Bits {
	return srq.Bits{
		MessageAvailable:  p.StatusByte.MessageAvailable,
		ErrorAvailable:    p.StatusByte.ErrorAvailable,
		OperationEvent:    p.StatusByte.OperationEvent,
		QuestionableEvent: p.StatusByte.QuestionableEvent,
		StandardEvent:     p.StatusByte.StandardEvent,
	}
}

// RegisterConfig builds the register engine configuration. Families the
// profile does not list are unsupported. Families without labels keep the
// standard labels for that family.
func (p *Profile) RegisterConfig() (register.Config, error) {
	defaults := register.DefaultConfig()

	cfg := register.Config{
		Families:         make(map[register.Family]register.FamilyConfig, len(p.Families)),
		PresetCommand:    p.Commands.Preset,
		RefractoryPeriod: p.RefractoryPeriod,
	}
	for name, fc := range p.Families {
		f, err := register.ParseFamily(name)
		if err != nil {
			return register.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if fc.Labels == nil {
			fc.Labels = maps.Clone(defaults.Families[f].Labels)
		}
		cfg.Families[f] = fc
	}
	return cfg, nil
}

// DispatcherConfig builds the service request dispatcher configuration.
func (p *Profile) DispatcherConfig() (srq.Config, error) {
	mode, err := p.NotificationMode()
	if err != nil {
		return srq.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	cfg := srq.DefaultConfig()
	cfg.Mode = mode
	cfg.Bits = p.Bits()
	cfg.AutoReadOnPoll = p.AutoReadOnPoll
	cfg.AutoReadOnSRQ = p.AutoReadOnSRQ
	if p.PollPeriod > 0 {
		cfg.PollPeriod = p.PollPeriod
	}
	return cfg, nil
}

// SequenceConfig builds the reset/clear/init sequencer configuration.
func (p *Profile) SequenceConfig() (sequence.Config, error) {
	mode, err := p.Mode()
	if err != nil {
		return sequence.Config{}, err
	}

	cfg := sequence.DefaultConfig()
	cfg.Mode = mode
	cfg.ResetCommand = p.Commands.Reset
	cfg.ClearCommand = p.Commands.Clear
	cfg.IdentityQuery = p.Commands.Identity
	cfg.ErrorQuery = p.Commands.Error
	cfg.LineFrequencyQuery = p.Commands.LineFrequency
	cfg.WriteToReadDelay = p.WriteToReadDelay
	cfg.StatusReadDelay = p.StatusReadDelay
	cfg.ErrorBits = p.StatusByte.ErrorAvailable

	cs := sequence.ClearState{
		Preset:              p.ClearState.Preset,
		OperationCompletion: p.ClearState.OperationCompletion,
	}
	if len(p.ClearState.Enables) > 0 {
		cs.Enables = make(map[register.Family]uint16, len(p.ClearState.Enables))
		for name, mask := range p.ClearState.Enables {
			f, err := register.ParseFamily(name)
			if err != nil {
				return sequence.Config{}, fmt.Errorf("%w: clear_state.enables: %w", ErrInvalid, err)
			}
			cs.Enables[f] = mask
		}
	}
	if len(p.ClearState.Transitions) > 0 {
		cs.Transitions = make(map[register.Family]sequence.Transition, len(p.ClearState.Transitions))
		for name, tr := range p.ClearState.Transitions {
			f, err := register.ParseFamily(name)
			if err != nil {
				return sequence.Config{}, fmt.Errorf("%w: clear_state.transitions: %w", ErrInvalid, err)
			}
			cs.Transitions[f] = tr
		}
	}
	cfg.ClearState = cs
	return cfg, nil
}

// Validate checks that the profile carries every command its support mode
// and notification mode need. All problems are reported together.
func (p *Profile) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	mode, err := p.Mode()
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	notify, err := p.NotificationMode()
	if err != nil {
		fail("%v", err)
	}

	if p.StatusByte.MessageAvailable == 0 {
		fail("status_byte.message_available must not be zero")
	}
	if p.StatusByte.ErrorAvailable == 0 {
		fail("status_byte.error_available must not be zero")
	}
	if notify == srq.ModePolled && p.PollPeriod < 0 {
		fail("poll_period must not be negative")
	}
	if p.RefractoryPeriod < 0 {
		fail("refractory_period must not be negative")
	}

	if mode != sequence.SupportNative {
		if p.Commands.Reset == "" {
			fail("commands.reset is required in %s mode", mode)
		}
		if p.Commands.Clear == "" {
			fail("commands.clear is required in %s mode", mode)
		}
		if len(p.Families) == 0 {
			fail("families: at least one register family is required in %s mode", mode)
		}
	}

	families := make(map[register.Family]register.FamilyConfig, len(p.Families))
	for _, name := range sortedKeys(p.Families) {
		fc := p.Families[name]
		f, err := register.ParseFamily(name)
		if err != nil {
			fail("families: %v", err)
			continue
		}
		families[f] = fc
		if fc.Commands.EnableWrite == "" || fc.Commands.EnableQuery == "" {
			fail("families.%s: enable_write and enable_query are required", name)
		}
		if f != register.FamilyServiceRequest && fc.Commands.EventQuery == "" {
			fail("families.%s: event_query is required", name)
		}
		if (fc.Commands.PositiveWrite == "") != (fc.Commands.NegativeWrite == "") {
			fail("families.%s: ptr_write and ntr_write must be set together", name)
		}
		for bit := range fc.Labels {
			if bit < 0 || bit >= f.Width() {
				fail("families.%s: label bit %d out of range", name, bit)
			}
		}
	}

	cs := p.ClearState
	if cs.Preset && mode != sequence.SupportNative && p.Commands.Preset == "" {
		fail("clear_state.preset requires commands.preset")
	}
	for _, name := range sortedKeys(cs.Enables) {
		f, err := register.ParseFamily(name)
		if err != nil {
			fail("clear_state.enables: %v", err)
			continue
		}
		if _, ok := families[f]; !ok {
			fail("clear_state.enables.%s: family not configured", name)
		}
	}
	for _, name := range sortedKeys(cs.Transitions) {
		f, err := register.ParseFamily(name)
		if err != nil {
			fail("clear_state.transitions: %v", err)
			continue
		}
		if fc, ok := families[f]; !ok || !fc.Commands.SupportsTransitions() {
			fail("clear_state.transitions.%s: family does not support transitions", name)
		}
	}
	if cs.OperationCompletion != nil {
		_, ese := families[register.FamilyStandardEvent]
		_, sre := families[register.FamilyServiceRequest]
		if !ese || !sre {
			fail("clear_state.operation_completion requires the standard_event and service_request families")
		}
	}

	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
