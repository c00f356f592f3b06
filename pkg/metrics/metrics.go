// Package metrics exports session, sequencer and service-request counters
// to Prometheus.
//
// Every recorder method is safe to call on a nil *Metrics, so components
// take an optional *Metrics and call it unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config names the exported metrics.
type Config struct {
	Namespace   string
	SubSession  string
	SubSequence string
	SubSRQ      string
	SubRegister string
	StepBuckets []float64
}

// DefaultConfig returns the default metric names.
func DefaultConfig() *Config {
	return &Config{
		Namespace:   "benchlink",
		SubSession:  "session",
		SubSequence: "sequence",
		SubSRQ:      "srq",
		SubRegister: "register",
		StepBuckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	}
}

// Metrics records instrument session activity.
type Metrics struct {
	reg    prometheus.Registerer
	config *Config

	// session
	sessionOpen        *prometheus.GaugeVec
	sessionOpens       *prometheus.CounterVec
	sessionOpenFailure *prometheus.CounterVec
	sessionCloses      *prometheus.CounterVec

	// sequence
	sequenceSteps        *prometheus.CounterVec
	sequenceStepDuration *prometheus.HistogramVec
	deviceErrors         *prometheus.CounterVec

	// srq
	serviceRequests *prometheus.CounterVec
	pollTicks       *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec

	// register
	registerValue *prometheus.GaugeVec
}

// New creates the metrics and registers them with reg. A nil config uses
// DefaultConfig.
func New(reg prometheus.Registerer, config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	met := &Metrics{
		reg:    reg,
		config: config,

		sessionOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.SubSession, Name: "open", Help: "1 while the session is open"}, []string{"resource"}),
		sessionOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSession, Name: "opens_total", Help: "Successful opens"}, []string{"resource"}),
		sessionOpenFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSession, Name: "open_failures_total", Help: "Failed opens by failing step"}, []string{"resource", "step"}),
		sessionCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSession, Name: "closes_total", Help: "Closes"}, []string{"resource"}),

		sequenceSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSequence, Name: "steps_total", Help: "Sequencer steps by result"}, []string{"resource", "step", "result"}),
		sequenceStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace, Subsystem: config.SubSequence, Name: "step_duration_seconds", Help: "Sequencer step duration including settle", Buckets: config.StepBuckets}, []string{"resource", "step"}),
		deviceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSequence, Name: "device_errors_total", Help: "Device errors reported by the instrument"}, []string{"resource"}),

		serviceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSRQ, Name: "notifications_total", Help: "Service request notifications by source"}, []string{"resource", "source"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSRQ, Name: "poll_ticks_total", Help: "Status byte poll ticks"}, []string{"resource"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubSRQ, Name: "handler_failures_total", Help: "Service request handler failures"}, []string{"resource"}),

		registerValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.SubRegister, Name: "value", Help: "Last known register value"}, []string{"resource", "family", "field"}),
	}

	if reg != nil {
		reg.MustRegister(
			met.sessionOpen, met.sessionOpens, met.sessionOpenFailure, met.sessionCloses,
			met.sequenceSteps, met.sequenceStepDuration, met.deviceErrors,
			met.serviceRequests, met.pollTicks, met.handlerFailures,
			met.registerValue,
		)
	}
	return met
}

// SessionOpened records a successful open.
func (m *Metrics) SessionOpened(resource string) {
	if m == nil {
		return
	}
	m.sessionOpens.WithLabelValues(resource).Inc()
	m.sessionOpen.WithLabelValues(resource).Set(1)
}

// SessionOpenFailed records an open that failed at step.
func (m *Metrics) SessionOpenFailed(resource, step string) {
	if m == nil {
		return
	}
	m.sessionOpenFailure.WithLabelValues(resource, step).Inc()
}

// SessionClosed records a close.
func (m *Metrics) SessionClosed(resource string) {
	if m == nil {
		return
	}
	m.sessionCloses.WithLabelValues(resource).Inc()
	m.sessionOpen.WithLabelValues(resource).Set(0)
}

// SequenceStep records a completed sequencer step.
func (m *Metrics) SequenceStep(resource, step string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sequenceSteps.WithLabelValues(resource, step, result).Inc()
	m.sequenceStepDuration.WithLabelValues(resource, step).Observe(d.Seconds())
}

// DeviceError records an error reported by the instrument.
func (m *Metrics) DeviceError(resource string) {
	if m == nil {
		return
	}
	m.deviceErrors.WithLabelValues(resource).Inc()
}

// ServiceRequest records a delivered service request notification.
func (m *Metrics) ServiceRequest(resource, source string) {
	if m == nil {
		return
	}
	m.serviceRequests.WithLabelValues(resource, source).Inc()
}

// PollTick records one status byte poll.
func (m *Metrics) PollTick(resource string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(resource).Inc()
}

// HandlerFailure records a failing service request handler.
func (m *Metrics) HandlerFailure(resource string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(resource).Inc()
}

// RegisterValue records a known register value. Unknown values remove
// the series.
func (m *Metrics) RegisterValue(resource, family, field string, value uint16, known bool) {
	if m == nil {
		return
	}
	if !known {
		m.registerValue.DeleteLabelValues(resource, family, field)
		return
	}
	m.registerValue.WithLabelValues(resource, family, field).Set(float64(value))
}

// Remove drops every series of a resource.
func (m *Metrics) Remove(resource string) {
	if m == nil {
		return
	}
	match := prometheus.Labels{"resource": resource}
	m.sessionOpen.DeletePartialMatch(match)
	m.registerValue.DeletePartialMatch(match)
}
