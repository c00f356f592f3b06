package channel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benchlink/benchlink-go/pkg/resource"
	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// Emulator status byte bits.
const (
	EmulatorMSB = scpi.StatusMeasurementSummary
	EmulatorEAV = scpi.StatusErrorAvailable
	EmulatorQSB = scpi.StatusQuestionableSummary
	EmulatorMAV = scpi.StatusMessageAvailable
	EmulatorESB = scpi.StatusEventSummary
	EmulatorRQS = scpi.StatusRequestService
	EmulatorOSB = scpi.StatusOperationSummary
)

// Emulator status register names.
const (
	RegisterOperation    = "OPER"
	RegisterQuestionable = "QUES"
	RegisterMeasurement  = "MEAS"
)

// MeasurementReadingAvailable is the measurement event bit the emulator sets
// when INIT produces a reading.
const MeasurementReadingAvailable = 0x0001

// EmulatorConfig configures an Emulator.
type EmulatorConfig struct {
	// Identity is returned by *IDN?.
	Identity string

	// LineFrequency is returned by SYST:LFR?.
	LineFrequency float64

	// OperationCompleteDelay delays setting the OPC bit after *OPC.
	OperationCompleteDelay time.Duration

	// ReadingDelay delays the reading produced by INIT.
	ReadingDelay time.Duration
}

// DefaultEmulatorConfig returns the default emulator configuration.
func DefaultEmulatorConfig() EmulatorConfig {
	return EmulatorConfig{
		Identity:      "BENCHLINK,EMULATOR,0,1.0",
		LineFrequency: 50,
	}
}

type emuRegister struct {
	cond, event, enable, ptr, ntr uint16
}

type emuFault struct {
	prefix string
	err    error
}

// Emulator is an in-memory IEEE-488.2 instrument. It models the status
// byte, the standard event register, the SCPI Operation, Questionable and
// Measurement registers with transition filters, the error queue and the
// output queue, and raises SRQ when the request-service bit rises.
type Emulator struct {
	mu sync.Mutex

	config  EmulatorConfig
	timeout time.Duration
	open    bool
	closed  bool

	out      []string
	errQueue []scpi.DeviceError
	esr, ese uint8
	sre      uint8
	regs     map[string]*emuRegister
	readings []float64
	next     float64

	srqFn      func(byte)
	srqEnabled bool
	mss        bool
	rqs        bool

	faults     []emuFault
	log        []string
	clears     int
	polls      int
	closeCalls int
}

// NewEmulator creates an emulated instrument.
func NewEmulator(config EmulatorConfig) *Emulator {
	if config.Identity == "" {
		config.Identity = DefaultEmulatorConfig().Identity
	}
	if config.LineFrequency == 0 {
		config.LineFrequency = DefaultEmulatorConfig().LineFrequency
	}
	e := &Emulator{
		config:  config,
		timeout: DefaultTimeout,
		open:    true,
		regs:    make(map[string]*emuRegister),
		next:    1,
	}
	for _, name := range []string{RegisterOperation, RegisterQuestionable, RegisterMeasurement} {
		e.regs[name] = &emuRegister{ptr: 0x7FFF}
	}
	return e
}

// Emulated implements Emulated.
func (e *Emulator) Emulated() bool { return true }

// Open implements Opener by returning the emulator itself.
func (e *Emulator) Open(ctx context.Context, name resource.Name) (Channel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = true
	e.closed = false
	return e, nil
}

// Write implements Channel.
func (e *Emulator) Write(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.log = append(e.log, command)
	for _, f := range e.faults {
		if strings.HasPrefix(strings.ToUpper(command), f.prefix) {
			e.mu.Unlock()
			return f.err
		}
	}

	for _, unit := range strings.Split(command, ";") {
		unit = strings.TrimSpace(unit)
		if unit != "" {
			e.execute(unit)
		}
	}
	notify := e.updateSummary()
	e.mu.Unlock()

	notify()
	return nil
}

// ReadLine implements Channel.
func (e *Emulator) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	if len(e.out) == 0 {
		e.pushError(-420, "Query UNTERMINATED")
		notify := e.updateSummary()
		e.mu.Unlock()
		notify()
		return "", fmt.Errorf("read: %w", ErrTimeout)
	}
	line := e.out[0]
	e.out = e.out[1:]
	notify := e.updateSummary()
	e.mu.Unlock()

	notify()
	return line, nil
}

// ReadStatusByte implements Channel as a serial poll: bit 6 reports RQS and
// is cleared by the poll.
func (e *Emulator) ReadStatusByte(ctx context.Context) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}
	for _, f := range e.faults {
		if f.prefix == scpi.QueryStatusByte {
			return 0, f.err
		}
	}

	e.polls++
	stb := e.summaryByte() &^ EmulatorRQS
	if e.rqs {
		stb |= EmulatorRQS
		e.rqs = false
	}
	return stb, nil
}

// Clear implements Channel.
func (e *Emulator) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.clears++
	e.out = nil
	e.updateSummary()
	return nil
}

// SetTimeout implements Channel.
func (e *Emulator) SetTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
}

// Timeout implements Channel.
func (e *Emulator) Timeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeout
}

// Close implements Channel.
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeCalls++
	e.closed = true
	e.open = false
	return nil
}

// SetServiceRequestHandler implements ServiceRequester.
func (e *Emulator) SetServiceRequestHandler(fn func(statusByte byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.srqFn = fn
}

// EnableServiceRequest implements ServiceRequester.
func (e *Emulator) EnableServiceRequest(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.srqEnabled = true
	return nil
}

// DisableServiceRequest implements ServiceRequester.
func (e *Emulator) DisableServiceRequest(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.srqEnabled = false
	return nil
}

// SetCondition sets a condition register and latches transitions into its
// event register through the PTR/NTR filters.
func (e *Emulator) SetCondition(register string, cond uint16) {
	e.mu.Lock()
	if r, ok := e.regs[register]; ok {
		e.setCondition(r, cond)
	}
	notify := e.updateSummary()
	e.mu.Unlock()
	notify()
}

// InjectError pushes an entry onto the error queue and sets the matching
// standard event bit.
func (e *Emulator) InjectError(code int, message string) {
	e.mu.Lock()
	e.pushError(code, message)
	notify := e.updateSummary()
	e.mu.Unlock()
	notify()
}

// FailOn makes every command starting with prefix fail with err. Use
// scpi.QueryStatusByte to fail serial polls.
func (e *Emulator) FailOn(prefix string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults = append(e.faults, emuFault{prefix: strings.ToUpper(prefix), err: err})
}

// ClearFaults removes all FailOn rules.
func (e *Emulator) ClearFaults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults = nil
}

// Written returns every command written so far.
func (e *Emulator) Written() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

// ResetLog clears the written-command log.
func (e *Emulator) ResetLog() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = nil
}

// Clears returns the number of device clears performed.
func (e *Emulator) Clears() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clears
}

// Polls returns the number of serial polls performed.
func (e *Emulator) Polls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.polls
}

// CloseCalls returns how many times Close was called.
func (e *Emulator) CloseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCalls
}

// IsOpen reports whether the emulator has not been closed.
func (e *Emulator) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// StatusByte returns the current status byte without side effects.
func (e *Emulator) StatusByte() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryByte()
}

// Register returns the event, enable and condition values of a register.
func (e *Emulator) Register(name string) (event, enable, cond uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.regs[name]; ok {
		return r.event, r.enable, r.cond
	}
	return 0, 0, 0
}

// StandardEvent returns the standard event register and its enable mask.
func (e *Emulator) StandardEvent() (esr, ese uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.esr, e.ese
}

// ServiceRequestEnable returns the SRE mask.
func (e *Emulator) ServiceRequestEnable() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sre
}

// QueueReading makes v the next value returned by READ?/FETCH?.
func (e *Emulator) QueueReading(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readings = append(e.readings, v)
}

// execute runs one program message unit. Caller holds e.mu.
func (e *Emulator) execute(unit string) {
	header, arg, _ := strings.Cut(unit, " ")
	header = normalizeHeader(header)
	arg = strings.TrimSpace(arg)

	switch header {
	case "*IDN?":
		e.respond(e.config.Identity)
	case "*RST":
		e.readings = nil
		e.next = 1
	case "*CLS":
		e.esr = 0
		e.errQueue = nil
		for _, r := range e.regs {
			r.event = 0
		}
	case "*ESE":
		if v, ok := e.intArg(arg, 0xFF); ok {
			e.ese = uint8(v)
		}
	case "*ESE?":
		e.respond(strconv.Itoa(int(e.ese)))
	case "*ESR?":
		e.respond(strconv.Itoa(int(e.esr)))
		e.esr = 0
	case "*SRE":
		if v, ok := e.intArg(arg, 0xFF); ok {
			e.sre = uint8(v) &^ EmulatorRQS
		}
	case "*SRE?":
		e.respond(strconv.Itoa(int(e.sre)))
	case "*STB?":
		e.respond(strconv.Itoa(int(e.summaryByte())))
	case "*OPC":
		if d := e.config.OperationCompleteDelay; d > 0 {
			time.AfterFunc(d, e.completeOperation)
		} else {
			e.esr |= scpi.EventOperationComplete
		}
	case "*OPC?":
		e.respond("1")
	case "*WAI", "*TRG":
	case "SYST:ERR?", "SYST:ERR:NEXT?":
		if len(e.errQueue) == 0 {
			e.respond(`0,"No error"`)
			return
		}
		de := e.errQueue[0]
		e.errQueue = e.errQueue[1:]
		e.respond(fmt.Sprintf("%d,%q", de.Code, de.Message))
	case "SYST:ERR:COUN?":
		e.respond(strconv.Itoa(len(e.errQueue)))
	case "SYST:LFR?":
		e.respond(strconv.FormatFloat(e.config.LineFrequency, 'f', -1, 64))
	case "STAT:PRES":
		for _, r := range e.regs {
			r.enable = 0
			r.ptr = 0x7FFF
			r.ntr = 0
		}
	case "INIT", "INIT:IMM":
		if d := e.config.ReadingDelay; d > 0 {
			time.AfterFunc(d, e.produceReading)
		} else {
			e.setReadingAvailable()
		}
	case "READ?", "FETC?", "MEAS?":
		e.respond(strconv.FormatFloat(e.takeReading(), 'E', 6, 64))
		if r := e.regs[RegisterMeasurement]; r != nil {
			e.setCondition(r, r.cond&^MeasurementReadingAvailable)
		}
	default:
		if !e.executeStatus(header, arg) {
			e.pushError(-113, "Undefined header")
		}
	}
}

// executeStatus handles STAT:<reg>:<field> headers. Caller holds e.mu.
func (e *Emulator) executeStatus(header, arg string) bool {
	parts := strings.Split(header, ":")
	if len(parts) < 2 || parts[0] != "STAT" {
		return false
	}
	name := strings.TrimSuffix(parts[1], "?")
	r, ok := e.regs[name]
	if !ok {
		return false
	}

	field := "EVEN?"
	if len(parts) == 2 {
		if !strings.HasSuffix(parts[1], "?") {
			return false
		}
	} else {
		field = parts[2]
	}

	switch field {
	case "EVEN?":
		e.respond(strconv.Itoa(int(r.event)))
		r.event = 0
	case "COND?":
		e.respond(strconv.Itoa(int(r.cond)))
	case "ENAB?":
		e.respond(strconv.Itoa(int(r.enable)))
	case "PTR?":
		e.respond(strconv.Itoa(int(r.ptr)))
	case "NTR?":
		e.respond(strconv.Itoa(int(r.ntr)))
	case "ENAB":
		if v, ok := e.intArg(arg, 0x7FFF); ok {
			r.enable = uint16(v)
		}
	case "PTR":
		if v, ok := e.intArg(arg, 0x7FFF); ok {
			r.ptr = uint16(v)
		}
	case "NTR":
		if v, ok := e.intArg(arg, 0x7FFF); ok {
			r.ntr = uint16(v)
		}
	default:
		return false
	}
	return true
}

func (e *Emulator) intArg(arg string, max int64) (int64, bool) {
	v, err := scpi.ParseInt(arg)
	if err != nil {
		e.pushError(-104, "Data type error")
		return 0, false
	}
	if v < 0 || v > max {
		e.pushError(-222, "Data out of range")
		return 0, false
	}
	return v, true
}

func (e *Emulator) respond(s string) {
	e.out = append(e.out, s)
}

func (e *Emulator) setCondition(r *emuRegister, cond uint16) {
	rising := cond &^ r.cond
	falling := r.cond &^ cond
	r.event |= (rising & r.ptr) | (falling & r.ntr)
	r.cond = cond
}

func (e *Emulator) setReadingAvailable() {
	if len(e.readings) == 0 {
		e.readings = append(e.readings, e.next)
		e.next++
	}
	if r := e.regs[RegisterMeasurement]; r != nil {
		e.setCondition(r, r.cond|MeasurementReadingAvailable)
	}
}

func (e *Emulator) takeReading() float64 {
	if len(e.readings) == 0 {
		v := e.next
		e.next++
		return v
	}
	v := e.readings[0]
	e.readings = e.readings[1:]
	return v
}

func (e *Emulator) produceReading() {
	e.mu.Lock()
	e.setReadingAvailable()
	notify := e.updateSummary()
	e.mu.Unlock()
	notify()
}

func (e *Emulator) completeOperation() {
	e.mu.Lock()
	e.esr |= scpi.EventOperationComplete
	notify := e.updateSummary()
	e.mu.Unlock()
	notify()
}

// pushError appends to the error queue and sets the standard event bit for
// the error class. Caller holds e.mu.
func (e *Emulator) pushError(code int, message string) {
	e.errQueue = append(e.errQueue, scpi.DeviceError{Code: code, Message: message})
	switch {
	case code <= -100 && code > -200:
		e.esr |= scpi.EventCommandError
	case code <= -200 && code > -300:
		e.esr |= scpi.EventExecutionError
	case code <= -400 && code > -500:
		e.esr |= scpi.EventQueryError
	default:
		e.esr |= scpi.EventDeviceError
	}
}

// summaryByte computes the status byte with bit 6 as master summary.
// Caller holds e.mu.
func (e *Emulator) summaryByte() byte {
	var stb byte
	if len(e.errQueue) > 0 {
		stb |= EmulatorEAV
	}
	if len(e.out) > 0 {
		stb |= EmulatorMAV
	}
	if e.esr&e.ese != 0 {
		stb |= EmulatorESB
	}
	if r := e.regs[RegisterQuestionable]; r.event&r.enable != 0 {
		stb |= EmulatorQSB
	}
	if r := e.regs[RegisterOperation]; r.event&r.enable != 0 {
		stb |= EmulatorOSB
	}
	if r := e.regs[RegisterMeasurement]; r.event&r.enable != 0 {
		stb |= EmulatorMSB
	}
	if stb&e.sre != 0 {
		stb |= EmulatorRQS
	}
	return stb
}

// updateSummary latches RQS on a rising master summary and returns a
// function that delivers the SRQ, to be called after unlocking.
// Caller holds e.mu.
func (e *Emulator) updateSummary() func() {
	stb := e.summaryByte()
	mss := stb&EmulatorRQS != 0
	rising := mss && !e.mss
	e.mss = mss
	if !rising {
		return func() {}
	}

	e.rqs = true
	fn := e.srqFn
	if !e.srqEnabled || fn == nil {
		return func() {}
	}
	return func() { go fn(stb) }
}

// normalizeHeader upper-cases a header and reduces long-form mnemonics to
// their short forms.
func normalizeHeader(h string) string {
	h = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(h), ":"))
	query := strings.HasSuffix(h, "?")
	h = strings.TrimSuffix(h, "?")

	parts := strings.Split(h, ":")
	for i, p := range parts {
		if short, ok := longForms[p]; ok {
			parts[i] = short
		}
	}
	// :EVENt is the default node of a status register query.
	if len(parts) == 3 && parts[0] == "STAT" && parts[2] == "EVEN" && query {
		parts = parts[:2]
	}

	h = strings.Join(parts, ":")
	if query {
		h += "?"
	}
	return h
}

var longForms = map[string]string{
	"STATUS":       "STAT",
	"OPERATION":    "OPER",
	"QUESTIONABLE": "QUES",
	"MEASUREMENT":  "MEAS",
	"ENABLE":       "ENAB",
	"CONDITION":    "COND",
	"EVENT":        "EVEN",
	"SYSTEM":       "SYST",
	"ERROR":        "ERR",
	"PRESET":       "PRES",
	"COUNT":        "COUN",
	"FETCH":        "FETC",
	"INITIATE":     "INIT",
	"IMMEDIATE":    "IMM",
	"LFREQUENCY":   "LFR",
}

var (
	_ Channel          = (*Emulator)(nil)
	_ ServiceRequester = (*Emulator)(nil)
	_ Opener           = (*Emulator)(nil)
	_ Emulated         = (*Emulator)(nil)
)
