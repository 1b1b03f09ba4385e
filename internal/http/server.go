// Package http exposes the live ledger view as a JSON API: the filtered
// projection, the session filter, the date picker and record writes.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"expenditures/internal/livesync"
	"expenditures/internal/log"
	"expenditures/internal/middleware/ratelimit"
	"expenditures/internal/middleware/security"
	"expenditures/internal/middleware/trace"
	"expenditures/internal/services"
	"expenditures/internal/view"
)

var errReadOnly = errors.New("backend is read-only")

// StatusReader is satisfied by *livesync.Sync.
type StatusReader interface {
	Status() livesync.Status
}

// Deps are the collaborators of the server. Mutator, Ready and Limiter are optional.
type Deps struct {
	Session *view.Session
	Sync    StatusReader
	Mutator services.Mutator
	Ready   func(ctx context.Context) error
	Limiter *ratelimit.Limiter
	Logger  *log.Logger
}

type Server struct {
	http.Server
	session *view.Session
	sync    StatusReader
	mutator services.Mutator
	ready   func(ctx context.Context) error
	trace   *trace.Middleware
	logger  *log.Logger
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := log.OrDiscard(deps.Logger).WithComponent(log.ComponentHTTP)
	clientIP := security.NewClientIP()

	s := &Server{
		session: deps.Session,
		sync:    deps.Sync,
		mutator: deps.Mutator,
		ready:   deps.Ready,
		trace:   trace.NewMiddleware(logger, clientIP.Extract),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/expenditures", s.handleProjection)
	mux.HandleFunc("POST /api/expenditures", s.handleCreate)
	mux.HandleFunc("PATCH /api/expenditures/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/expenditures/{id}", s.handleDelete)

	mux.HandleFunc("GET /api/filter", s.handleGetFilter)
	mux.HandleFunc("PUT /api/filter", s.handleSetFilter)
	mux.HandleFunc("DELETE /api/filter", s.handleClearFilter)

	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("POST /api/calendar/open", s.handleCalendarOpen)
	mux.HandleFunc("POST /api/calendar/navigate", s.handleCalendarNavigate)
	mux.HandleFunc("POST /api/calendar/select", s.handleCalendarSelect)
	mux.HandleFunc("POST /api/calendar/cancel", s.handleCalendarCancel)

	var handler http.Handler = mux
	if deps.Limiter != nil {
		handler = deps.Limiter.Middleware(clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorDTO{Error: "rate limit exceeded"})
		})(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.trace.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Metrics returns the request counters collected by the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.trace.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyDTO struct {
	State    string `json:"state"`
	Version  uint64 `json:"version"`
	Error    string `json:"error,omitempty"`
	Requests int64  `json:"requests"`
}

// handleReady answers 200 only while the sync is live and the backend's
// connections are usable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.sync.Status()
	body := readyDTO{State: string(st.State), Version: st.Version, Requests: s.trace.GetMetrics().TotalRequests}
	status := http.StatusOK

	if st.Err != nil {
		body.Error = st.Err.Error()
	}
	if st.State != livesync.StateLive {
		status = http.StatusServiceUnavailable
	} else if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			body.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, body)
}
