// Package api serves an instrument session over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchlink/benchlink-go/pkg/register"
	"github.com/benchlink/benchlink-go/pkg/scpi"
	"github.com/benchlink/benchlink-go/pkg/session"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

// DefaultRequestTimeout bounds instrument I/O of one request.
const DefaultRequestTimeout = 10 * time.Second

// Config configures a Server.
type Config struct {
	// Gatherer, if set, is exposed on /metrics.
	Gatherer prometheus.Gatherer

	// AccessLog receives one line per request. Nil disables access logging.
	AccessLog io.Writer

	RequestTimeout time.Duration

	// Logger for server events. Nil disables logging.
	Logger *slog.Logger
}

// Server exposes a session as a JSON API.
type Server struct {
	*mux.Router
	m      *session.Manager
	config Config
}

// NewServer creates a server for m.
func NewServer(m *session.Manager, config Config) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{m: m, config: config}
	s.configureRouter()
	return s
}

// Handler returns the router wrapped in access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if s.config.AccessLog != nil {
		h = handlers.LoggingHandler(s.config.AccessLog, h)
	}
	return h
}

func (s *Server) configureRouter() {
	s.Router = mux.NewRouter()
	sub := s.Router.PathPrefix("/api").Subrouter()
	sub.HandleFunc("/health", s.handleHealth()).Methods("GET")
	sub.HandleFunc("/session", s.handleSession()).Methods("GET")
	sub.HandleFunc("/registers", s.handleRegisters()).Methods("GET")
	sub.HandleFunc("/registers/{family}/enable", s.handleEnable()).Methods("POST")
	sub.HandleFunc("/write", s.handleWrite()).Methods("POST")
	sub.HandleFunc("/query", s.handleQuery()).Methods("POST")
	sub.HandleFunc("/poll", s.handlePoll()).Methods("POST")
	sub.HandleFunc("/reset", s.handleReset()).Methods("POST")
	if s.config.Gatherer != nil {
		s.Router.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
}

// SessionInfo is the /api/session response.
type SessionInfo struct {
	Resource      string        `json:"resource"`
	Model         string        `json:"model,omitempty"`
	State         string        `json:"state"`
	SessionID     string        `json:"sessionId,omitempty"`
	Initialized   bool          `json:"initialized"`
	Emulated      bool          `json:"emulated"`
	Identity      *IdentityInfo `json:"identity,omitempty"`
	LineFrequency *FactInfo     `json:"lineFrequency,omitempty"`
	Notification  string        `json:"notification,omitempty"`
	LastAction    string        `json:"lastAction,omitempty"`
}

// IdentityInfo is the parsed *IDN? response.
type IdentityInfo struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNumber string `json:"serialNumber"`
	Firmware     string `json:"firmware"`
	Raw          string `json:"raw"`
}

// FactInfo is a value with its provenance. Value is null when unknown.
type FactInfo struct {
	Value      *float64 `json:"value"`
	Provenance string   `json:"provenance"`
}

// RegisterInfo is one family of the /api/registers response. Null masks
// are unknown.
type RegisterInfo struct {
	Family             string   `json:"family"`
	Enable             *uint16  `json:"enable"`
	Event              *uint16  `json:"event"`
	Condition          *uint16  `json:"condition"`
	PositiveTransition *uint16  `json:"positiveTransition"`
	NegativeTransition *uint16  `json:"negativeTransition"`
	Events             []string `json:"events,omitempty"`
}

// CommandRequest is the body of /api/write and /api/query.
type CommandRequest struct {
	Command string `json:"command"`
}

// QueryResponse is the /api/query response.
type QueryResponse struct {
	Response string `json:"response"`
}

// EnableRequest is the body of /api/registers/{family}/enable.
type EnableRequest struct {
	Mask uint16 `json:"mask"`
}

// StatusInfo is the /api/poll response.
type StatusInfo struct {
	StatusByte  uint8  `json:"statusByte"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := SessionInfo{
			Resource:    s.m.Resource().String(),
			Model:       s.m.Model(),
			State:       s.m.State().String(),
			SessionID:   s.m.SessionID(),
			Initialized: s.m.IsInitialized(),
			LastAction:  s.m.LastAction(),
		}
		if s.m.IsOpen() {
			info.Emulated = !s.m.Enabled()
			id := s.m.Identity()
			info.Identity = &IdentityInfo{
				Manufacturer: id.Manufacturer,
				Model:        id.Model,
				SerialNumber: id.SerialNumber,
				Firmware:     id.Firmware,
				Raw:          id.Raw,
			}
			lf := s.m.LineFrequency()
			info.LineFrequency = &FactInfo{Provenance: lf.Provenance.String()}
			if lf.Known() {
				v := lf.Value
				info.LineFrequency.Value = &v
			}
			if d := s.m.Dispatcher(); d != nil {
				info.Notification = d.Mode().String()
			}
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func (s *Server) handleRegisters() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e := s.m.Registers()
		if e == nil {
			s.writeError(w, session.ErrNotOpen)
			return
		}
		snap := e.Snapshot()
		out := make([]RegisterInfo, 0, len(snap))
		for _, f := range register.Families {
			set, ok := snap[f]
			if !ok {
				continue
			}
			info := RegisterInfo{
				Family:             f.String(),
				Enable:             maskPtr(set.Enable),
				Event:              maskPtr(set.Event),
				Condition:          maskPtr(set.Condition),
				PositiveTransition: maskPtr(set.PositiveTransition),
				NegativeTransition: maskPtr(set.NegativeTransition),
			}
			if v, known := set.Event.Value(); known {
				info.Events = e.Describe(f, v)
			}
			out = append(out, info)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleEnable() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := register.ParseFamily(mux.Vars(r)["family"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		var req EnableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e := s.m.Registers()
		if e == nil {
			s.writeError(w, session.ErrNotOpen)
			return
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()
		got, err := e.ApplyEnable(ctx, f, req.Mask)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"family": f.String(), "enable": got})
	}
}

func (s *Server) handleWrite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCommand(w, r)
		if !ok {
			return
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()
		if err := s.m.Write(ctx, req.Command); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCommand(w, r)
		if !ok {
			return
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()
		resp, err := s.m.Query(ctx, req.Command)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, QueryResponse{Response: resp})
	}
}

func (s *Server) handlePoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.requestContext(r)
		defer cancel()
		st, err := s.m.Poll(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, StatusInfo{
			StatusByte:  st.StatusByte,
			Description: srq.DescribeStatusByte(st.StatusByte),
			Source:      st.Source.String(),
		})
	}
}

func (s *Server) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.requestContext(r)
		defer cancel()
		if err := s.m.Reset(ctx); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

func decodeCommand(w http.ResponseWriter, r *http.Request) (CommandRequest, bool) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	if req.Command == "" {
		http.Error(w, "command required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotOpen), errors.Is(err, session.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, scpi.ErrDevice):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, register.ErrUnsupported), errors.Is(err, register.ErrMaskOutOfRange):
		status = http.StatusBadRequest
	}
	if s.config.Logger != nil && status >= http.StatusInternalServerError {
		s.config.Logger.Warn("request failed", "error", err, "status", status)
	}
	http.Error(w, err.Error(), status)
}

func maskPtr(m register.Mask) *uint16 {
	v, known := m.Value()
	if !known {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

