// Package api serves the local control surface of matrixvoice over HTTP.
//
// Routes:
//
//   - GET  /healthz              liveness probe
//   - GET  /readyz               readiness probe driven by [Checker] values
//   - GET  /v1/session           current state and status of the session
//   - POST /v1/session/toggle    start a session when idle, stop it otherwise
//   - POST /v1/session/start     start a session; no-op when one exists
//   - POST /v1/session/stop      stop the current session; no-op when idle
//   - GET  /metrics              Prometheus scrape endpoint
//
// start and toggle accept an optional JSON seed body. When the body is empty
// the configured [seed.Source] is consulted.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alakbarr/Interview-Matrix/internal/observe"
	"github.com/alakbarr/Interview-Matrix/internal/seed"
	"github.com/alakbarr/Interview-Matrix/internal/voice"
)

// maxBodyBytes caps a seed request body.
const maxBodyBytes = 1 << 20

// Controller is the subset of [voice.Controller] the API drives.
type Controller interface {
	Start(s seed.Seed)
	Stop()
	State() voice.State
	Status() voice.Status
	SessionID() string
}

var _ Controller = (*voice.Controller)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithCheckers registers readiness checks evaluated by /readyz.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithMetrics sets the instruments used by the request middleware.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server routes control requests to a session controller.
type Server struct {
	ctrl           Controller
	source         seed.Source
	checkers       []Checker
	metrics        *observe.Metrics
	metricsHandler http.Handler
	handler        http.Handler
}

// New builds the HTTP handler tree. source may be nil, in which case start
// requests without a body fail with 422.
func New(ctrl Controller, source seed.Source, opts ...Option) *Server {
	s := &Server{ctrl: ctrl, source: source}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.HandleFunc("GET /v1/session", s.getSession)
	mux.HandleFunc("POST /v1/session/toggle", s.toggleSession)
	mux.HandleFunc("POST /v1/session/start", s.startSession)
	mux.HandleFunc("POST /v1/session/stop", s.stopSession)
	mux.Handle("GET /metrics", s.metricsHandler)

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// sessionView is the JSON form of the controller's state.
type sessionView struct {
	State     string `json:"state"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// seedRequest is the optional body of start and toggle.
type seedRequest struct {
	Topic     string   `json:"topic"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// errorBody is returned for 4xx and 5xx responses.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) view() sessionView {
	st := s.ctrl.Status()
	v := sessionView{
		State:     s.ctrl.State().String(),
		Status:    st.Kind.String(),
		Message:   st.Message(),
		SessionID: s.ctrl.SessionID(),
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	return v
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.view())
}

// toggleSession decides the direction from the state it observed and then
// issues an explicit Stop or Start, so a session that changed state in the
// meantime is never flipped the other way.
func (s *Server) toggleSession(w http.ResponseWriter, r *http.Request) {
	if s.ctrl.State() != voice.StateIdle {
		s.ctrl.Stop()
		writeJSON(w, http.StatusAccepted, s.view())
		return
	}
	sd, status, err := s.requestSeed(r)
	if err != nil {
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	s.ctrl.Start(sd)
	writeJSON(w, http.StatusAccepted, s.view())
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if s.ctrl.State() != voice.StateIdle {
		writeJSON(w, http.StatusOK, s.view())
		return
	}
	sd, status, err := s.requestSeed(r)
	if err != nil {
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	s.ctrl.Start(sd)
	writeJSON(w, http.StatusAccepted, s.view())
}

func (s *Server) stopSession(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusAccepted, s.view())
}

// requestSeed decodes the body as a seed, or loads one from the source when
// the body is empty. The returned status is meaningful only with an error.
func (s *Server) requestSeed(r *http.Request) (seed.Seed, int, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return seed.Seed{}, http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return seed.Seed{}, http.StatusRequestEntityTooLarge, errors.New("seed body too large")
	}
	if len(bytes.TrimSpace(body)) > 0 {
		var req seedRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return seed.Seed{}, http.StatusBadRequest, fmt.Errorf("decode seed: %w", err)
		}
		return seed.Seed{Topic: req.Topic, Summary: req.Summary, KeyPoints: req.KeyPoints}, 0, nil
	}
	if s.source == nil {
		return seed.Seed{}, http.StatusUnprocessableEntity, errors.New("no seed in request and no seed source configured")
	}
	sd, err := s.source.Load(r.Context())
	if err != nil {
		slog.Warn("api: load seed", "err", err, "correlation_id", observe.CorrelationID(r.Context()))
		if errors.Is(err, seed.ErrTopicNotFound) {
			return seed.Seed{}, http.StatusNotFound, err
		}
		if errors.Is(err, context.Canceled) {
			return seed.Seed{}, http.StatusServiceUnavailable, err
		}
		return seed.Seed{}, http.StatusBadGateway, err
	}
	return sd, 0, nil
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("api: write response", "err", err)
	}
}
