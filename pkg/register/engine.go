package register

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/benchlink/benchlink-go/pkg/clock"
	"github.com/benchlink/benchlink-go/pkg/observer"
	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// Commander issues register commands to the device.
type Commander interface {
	Write(ctx context.Context, command string) error
	Query(ctx context.Context, query string) (string, error)

	// Exclusive runs fn without interleaving other exchanges. Calls made
	// with the context passed to fn do not wait again.
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// Set is the cached state of one register family.
type Set struct {
	Enable             Mask
	Event              Mask
	Condition          Mask
	PositiveTransition Mask
	NegativeTransition Mask
	Labels             map[int]string
}

// Get returns the mask for field.
func (s Set) Get(field Field) Mask {
	switch field {
	case FieldEnable:
		return s.Enable
	case FieldEvent:
		return s.Event
	case FieldCondition:
		return s.Condition
	case FieldPositiveTransition:
		return s.PositiveTransition
	case FieldNegativeTransition:
		return s.NegativeTransition
	default:
		return Unknown()
	}
}

func (s *Set) put(field Field, m Mask) {
	switch field {
	case FieldEnable:
		s.Enable = m
	case FieldEvent:
		s.Event = m
	case FieldCondition:
		s.Condition = m
	case FieldPositiveTransition:
		s.PositiveTransition = m
	case FieldNegativeTransition:
		s.NegativeTransition = m
	}
}

// Change describes a cached register value that changed.
type Change struct {
	Family Family
	Field  Field
	Old    Mask
	New    Mask
}

// Engine tracks and programs the status registers of one session.
type Engine struct {
	mu sync.Mutex

	cmd    Commander
	config Config
	clock  clock.Clock
	logger *slog.Logger

	sets      map[Family]*Set
	notBefore time.Time

	changes observer.List[Change]
}

// NewEngine creates an engine. All cached values start unknown.
func NewEngine(cmd Commander, config Config) (*Engine, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil commander", ErrInvalidConfig)
	}
	if len(config.Families) == 0 {
		return nil, fmt.Errorf("%w: no register families", ErrInvalidConfig)
	}
	if config.RefractoryPeriod <= 0 {
		config.RefractoryPeriod = DefaultRefractoryPeriod
	}

	e := &Engine{
		cmd:    cmd,
		config: config,
		clock:  clock.OrReal(config.Clock),
		logger: config.Logger,
		sets:   make(map[Family]*Set, len(config.Families)),
	}
	for f, fc := range config.Families {
		e.sets[f] = &Set{Labels: maps.Clone(fc.Labels)}
	}
	return e, nil
}

// Supports reports whether the instrument has the family.
func (e *Engine) Supports(f Family) bool {
	_, ok := e.config.Families[f]
	return ok
}

// SupportsTransitions reports whether the family has programmable
// transition filters.
func (e *Engine) SupportsTransitions(f Family) bool {
	fc, ok := e.config.Families[f]
	return ok && fc.Commands.SupportsTransitions()
}

// OnChange registers a handler for cached value changes. Handlers run
// after the engine's lock is released and only for values that differ.
func (e *Engine) OnChange(fn func(Change)) observer.ID {
	return e.changes.Subscribe(fn)
}

// RemoveChangeHandler removes a handler registered with OnChange.
func (e *Engine) RemoveChangeHandler(id observer.ID) {
	e.changes.Unsubscribe(id)
}

// Get returns a copy of the family's cached state.
func (e *Engine) Get(f Family) (Set, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sets[f]
	if !ok {
		return Set{}, false
	}
	out := *s
	out.Labels = maps.Clone(s.Labels)
	return out, true
}

// Snapshot returns a copy of every family's cached state.
func (e *Engine) Snapshot() map[Family]Set {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[Family]Set, len(e.sets))
	for f, s := range e.sets {
		c := *s
		c.Labels = maps.Clone(s.Labels)
		out[f] = c
	}
	return out
}

// WriteEnable programs the enable mask without reading it back.
// The cached enable value becomes unknown.
func (e *Engine) WriteEnable(ctx context.Context, f Family, mask uint16) error {
	cmds, err := e.commands(f)
	if err != nil {
		return err
	}
	if err := e.write(ctx, f, cmds.EnableWrite, mask); err != nil {
		return err
	}
	e.store(f, FieldEnable, Unknown())
	return nil
}

// QueryEnable reads the enable mask and caches it.
func (e *Engine) QueryEnable(ctx context.Context, f Family) (uint16, error) {
	cmds, err := e.commands(f)
	if err != nil {
		return 0, err
	}
	return e.query(ctx, f, FieldEnable, cmds.EnableQuery)
}

// ApplyEnable programs the enable mask and reads it back.
// It returns a *MismatchError if the device reports a different value.
func (e *Engine) ApplyEnable(ctx context.Context, f Family, mask uint16) (uint16, error) {
	cmds, err := e.commands(f)
	if err != nil {
		return 0, err
	}
	return e.apply(ctx, f, FieldEnable, cmds.EnableWrite, cmds.EnableQuery, mask)
}

// QueryCondition reads the live condition register.
func (e *Engine) QueryCondition(ctx context.Context, f Family) (uint16, error) {
	cmds, err := e.commands(f)
	if err != nil {
		return 0, err
	}
	return e.query(ctx, f, FieldCondition, cmds.ConditionQuery)
}

// QueryEventStatus reads the event register. Reading clears it on the
// device, so the cached value is replaced by exactly what was read.
func (e *Engine) QueryEventStatus(ctx context.Context, f Family) (uint16, error) {
	cmds, err := e.commands(f)
	if err != nil {
		return 0, err
	}
	return e.query(ctx, f, FieldEvent, cmds.EventQuery)
}

// WriteTransitions programs the positive and negative transition filters
// without reading them back.
func (e *Engine) WriteTransitions(ctx context.Context, f Family, positive, negative uint16) error {
	cmds, err := e.transitionCommands(f)
	if err != nil {
		return err
	}
	return e.cmd.Exclusive(ctx, func(ctx context.Context) error {
		if err := e.write(ctx, f, cmds.PositiveWrite, positive); err != nil {
			return err
		}
		e.store(f, FieldPositiveTransition, Unknown())
		if err := e.write(ctx, f, cmds.NegativeWrite, negative); err != nil {
			return err
		}
		e.store(f, FieldNegativeTransition, Unknown())
		return nil
	})
}

// ApplyTransitions programs both transition filters and reads them back.
func (e *Engine) ApplyTransitions(ctx context.Context, f Family, positive, negative uint16) error {
	cmds, err := e.transitionCommands(f)
	if err != nil {
		return err
	}
	return e.cmd.Exclusive(ctx, func(ctx context.Context) error {
		_, perr := e.apply(ctx, f, FieldPositiveTransition, cmds.PositiveWrite, cmds.PositiveQuery, positive)
		if perr != nil && !errors.Is(perr, ErrMismatch) {
			return perr
		}
		_, nerr := e.apply(ctx, f, FieldNegativeTransition, cmds.NegativeWrite, cmds.NegativeQuery, negative)
		return errors.Join(perr, nerr)
	})
}

// QueryTransitions reads both transition filters.
func (e *Engine) QueryTransitions(ctx context.Context, f Family) (positive, negative uint16, err error) {
	cmds, err := e.transitionCommands(f)
	if err != nil {
		return 0, 0, err
	}
	err = e.cmd.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		if positive, err = e.query(ctx, f, FieldPositiveTransition, cmds.PositiveQuery); err != nil {
			return err
		}
		negative, err = e.query(ctx, f, FieldNegativeTransition, cmds.NegativeQuery)
		return err
	})
	return positive, negative, err
}

// EnableServiceRequestOnOperationCompletion programs the Standard Event
// Enable mask and the Service Request Enable mask as one unit, optionally
// reading each back right after writing it. If either register cannot be
// programmed, the Standard Event Enable mask is restored to its previous
// value. An uncached previous value is read from the instrument first.
func (e *Engine) EnableServiceRequestOnOperationCompletion(ctx context.Context, standardMask, srqMask uint16, readBack bool) error {
	std, err := e.commands(FamilyStandardEvent)
	if err != nil {
		return err
	}
	srq, err := e.commands(FamilyServiceRequest)
	if err != nil {
		return err
	}
	if err := checkWidth(FamilyStandardEvent, standardMask); err != nil {
		return err
	}
	if err := checkWidth(FamilyServiceRequest, srqMask); err != nil {
		return err
	}

	return e.cmd.Exclusive(ctx, func(ctx context.Context) error {
		previous, _ := e.Get(FamilyStandardEvent)
		restore, known := previous.Enable.Value()
		if !known {
			v, err := e.query(ctx, FamilyStandardEvent, FieldEnable, std.EnableQuery)
			if err != nil {
				return fmt.Errorf("standard event enable: %w", err)
			}
			restore = v
		}

		undo := func(err error) error {
			if rerr := e.write(ctx, FamilyStandardEvent, std.EnableWrite, restore); rerr != nil {
				return errors.Join(err, fmt.Errorf("restore standard event enable: %w", rerr))
			}
			e.store(FamilyStandardEvent, FieldEnable, Unknown())
			return err
		}

		if err := e.program(ctx, FamilyStandardEvent, std, standardMask, readBack); err != nil {
			return undo(fmt.Errorf("standard event enable: %w", err))
		}
		if err := e.program(ctx, FamilyServiceRequest, srq, srqMask, readBack); err != nil {
			return undo(fmt.Errorf("service request enable: %w", err))
		}
		return nil
	})
}

func (e *Engine) program(ctx context.Context, f Family, cmds Commands, mask uint16, readBack bool) error {
	if readBack {
		_, err := e.apply(ctx, f, FieldEnable, cmds.EnableWrite, cmds.EnableQuery, mask)
		return err
	}
	if err := e.write(ctx, f, cmds.EnableWrite, mask); err != nil {
		return err
	}
	e.store(f, FieldEnable, Unknown())
	return nil
}

// PresetKnownState returns the status subsystem to its preset state.
//
// Cached enable values become unknown, the preset command is issued, and
// no register is accessed again until the refractory period has passed.
// Families whose preset enable mask is not zero are then programmed to it.
func (e *Engine) PresetKnownState(ctx context.Context) error {
	return e.cmd.Exclusive(ctx, func(ctx context.Context) error {
		for f := range e.config.Families {
			e.store(f, FieldEnable, Unknown())
		}

		if e.config.PresetCommand != "" {
			if err := e.awaitRefractory(ctx); err != nil {
				return err
			}
			if err := e.cmd.Write(ctx, e.config.PresetCommand); err != nil {
				return fmt.Errorf("preset: %w", err)
			}
			e.mu.Lock()
			e.notBefore = e.clock.Now().Add(e.config.RefractoryPeriod)
			e.mu.Unlock()
			e.debug("status preset", "refractory", e.config.RefractoryPeriod)
		}

		for _, f := range Families {
			fc, ok := e.config.Families[f]
			if !ok || fc.PresetEnable == 0 || fc.Commands.EnableWrite == "" {
				continue
			}
			if err := e.WriteEnable(ctx, f, fc.PresetEnable); err != nil {
				return err
			}
		}

		return e.awaitRefractory(ctx)
	})
}

// ResetRegistersKnownState drops every cached enable, event and transition
// value to unknown. It performs no device I/O.
func (e *Engine) ResetRegistersKnownState() {
	for f := range e.config.Families {
		e.store(f, FieldEnable, Unknown())
		e.store(f, FieldEvent, Unknown())
		e.store(f, FieldPositiveTransition, Unknown())
		e.store(f, FieldNegativeTransition, Unknown())
	}
}

// ClearEventCaches drops cached event and condition values, matching the
// effect of a clear-status command on the device.
func (e *Engine) ClearEventCaches() {
	for f := range e.config.Families {
		e.store(f, FieldEvent, Unknown())
		e.store(f, FieldCondition, Unknown())
	}
}

// Observe records a value the caller read from the device by other means,
// such as a status byte obtained by a serial poll.
func (e *Engine) Observe(f Family, field Field, value uint16) {
	if _, ok := e.config.Families[f]; !ok {
		return
	}
	e.store(f, field, Known(value))
}

// Label returns the label of a bit, or "" if none is defined.
func (e *Engine) Label(f Family, bit int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sets[f]; ok {
		return s.Labels[bit]
	}
	return ""
}

// SetLabel defines or, with an empty label, removes the label of a bit.
func (e *Engine) SetLabel(f Family, bit int, label string) error {
	if bit < 0 || bit >= f.Width() {
		return fmt.Errorf("%w: bit %d of %s", ErrMaskOutOfRange, bit, f)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sets[f]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, f)
	}
	if label == "" {
		delete(s.Labels, bit)
		return nil
	}
	if s.Labels == nil {
		s.Labels = make(map[int]string)
	}
	s.Labels[bit] = label
	return nil
}

// Labels returns a copy of the family's bit labels.
func (e *Engine) Labels(f Family) map[int]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sets[f]; ok {
		return maps.Clone(s.Labels)
	}
	return nil
}

// DefineLabels restores the configured labels of every family and then
// applies overrides.
func (e *Engine) DefineLabels(overrides map[Family]map[int]string) error {
	e.mu.Lock()
	for f, fc := range e.config.Families {
		e.sets[f].Labels = maps.Clone(fc.Labels)
	}
	e.mu.Unlock()

	for f, labels := range overrides {
		for bit, label := range labels {
			if err := e.SetLabel(f, bit, label); err != nil {
				return err
			}
		}
	}
	return nil
}

// Describe returns the labels of the bits set in mask. Bits without a
// label are rendered as "bit N".
func (e *Engine) Describe(f Family, mask uint16) []string {
	labels := e.Labels(f)
	bits := Known(mask).Bits()

	out := make([]string, 0, len(bits))
	for _, b := range bits {
		if l, ok := labels[b]; ok {
			out = append(out, l)
		} else {
			out = append(out, fmt.Sprintf("bit %d", b))
		}
	}
	return out
}

func checkWidth(f Family, mask uint16) error {
	if mask >= 1<<f.Width() {
		return fmt.Errorf("%w: 0x%X for %s", ErrMaskOutOfRange, mask, f)
	}
	return nil
}

func (e *Engine) commands(f Family) (Commands, error) {
	fc, ok := e.config.Families[f]
	if !ok {
		return Commands{}, fmt.Errorf("%w: %s", ErrUnsupported, f)
	}
	return fc.Commands, nil
}

func (e *Engine) transitionCommands(f Family) (Commands, error) {
	cmds, err := e.commands(f)
	if err != nil {
		return Commands{}, err
	}
	if !cmds.SupportsTransitions() {
		return Commands{}, fmt.Errorf("%w: %s", ErrTransitionsUnsupported, f)
	}
	return cmds, nil
}

func (e *Engine) write(ctx context.Context, f Family, format string, mask uint16) error {
	if format == "" {
		return fmt.Errorf("%w: %s write", ErrUnsupported, f)
	}
	if err := checkWidth(f, mask); err != nil {
		return err
	}
	if err := e.awaitRefractory(ctx); err != nil {
		return err
	}
	command := fmt.Sprintf(format, mask)
	if err := e.cmd.Write(ctx, command); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

func (e *Engine) query(ctx context.Context, f Family, field Field, query string) (uint16, error) {
	if query == "" {
		return 0, fmt.Errorf("%w: %s %s query", ErrUnsupported, f, field)
	}
	if err := e.awaitRefractory(ctx); err != nil {
		return 0, err
	}
	resp, err := e.cmd.Query(ctx, query)
	if err != nil {
		e.forget(f, field)
		return 0, fmt.Errorf("%s: %w", query, err)
	}
	v, err := scpi.ParseMask(resp)
	if err != nil {
		e.forget(f, field)
		return 0, fmt.Errorf("%s: %w", query, err)
	}
	e.store(f, field, Known(v))
	return v, nil
}

// forget drops a cached event or condition value after a failed read. The
// instrument may already have cleared the event register.
func (e *Engine) forget(f Family, field Field) {
	if field == FieldEvent || field == FieldCondition {
		e.store(f, field, Unknown())
	}
}

func (e *Engine) apply(ctx context.Context, f Family, field Field, write, query string, mask uint16) (uint16, error) {
	if query == "" {
		return 0, fmt.Errorf("%w: %s %s query", ErrUnsupported, f, field)
	}
	var got uint16
	err := e.cmd.Exclusive(ctx, func(ctx context.Context) error {
		if err := e.write(ctx, f, write, mask); err != nil {
			return err
		}
		e.store(f, field, Unknown())
		var err error
		got, err = e.query(ctx, f, field, query)
		return err
	})
	if err != nil {
		return 0, err
	}
	if got != mask {
		e.warn("register read-back mismatch", "family", f, "field", field, "written", mask, "readBack", got)
		return got, &MismatchError{Family: f, Field: field, Written: mask, ReadBack: got}
	}
	return got, nil
}

// awaitRefractory blocks until the preset refractory period has passed.
func (e *Engine) awaitRefractory(ctx context.Context) error {
	e.mu.Lock()
	until := e.notBefore
	e.mu.Unlock()

	if until.IsZero() {
		return nil
	}
	if d := until.Sub(e.clock.Now()); d > 0 {
		return e.clock.Sleep(ctx, d)
	}
	return nil
}

func (e *Engine) store(f Family, field Field, m Mask) {
	e.mu.Lock()
	s, ok := e.sets[f]
	if !ok {
		e.mu.Unlock()
		return
	}
	old := s.Get(field)
	s.put(field, m)
	e.mu.Unlock()

	if old != m {
		e.changes.Emit(Change{Family: f, Field: field, Old: old, New: m})
	}
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) warn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
