// Package server exposes the lifecycle controller over HTTP, alongside
// Prometheus metrics and a health endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/lifecycle"
	"github.com/systmms/pgpsecret/internal/logging"
)

// maxEventBytes bounds the request body of POST /events.
const maxEventBytes = 1 << 20

// EventHandler handles one parsed lifecycle event.
type EventHandler interface {
	Handle(ctx context.Context, event lifecycle.Event) (lifecycle.Result, error)
}

// Config holds configuration for the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout bounds a whole event, key generation included.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
}

// Response is the body of POST /events.
type Response struct {
	lifecycle.Result
	Warning   string `json:"warning,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Server serves lifecycle events.
type Server struct {
	config  Config
	handler EventHandler
	logger  *logging.Logger
	server  *http.Server
	ln      net.Listener
}

// New creates a server dispatching events to handler.
func New(config Config, handler EventHandler, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{config: config, handler: handler, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	lifecycle.InitMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handleEvent)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error: %v", err)
		}
	}()

	s.logger.Info("Listening on %s", ln.Addr())
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, Response{Error: err.Error()})
		return
	}

	event, err := lifecycle.ParseEvent(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	result, err := s.handler.Handle(r.Context(), event)
	status, resp := respond(result, err)
	if err != nil {
		s.logger.Warn("%s event %s: %v", event.RequestType, event.RequestID, err)
	}
	writeJSON(w, status, resp)
}

// respond maps a lifecycle outcome to an HTTP status. A cleanup warning
// fails the request but still carries the result, because the metadata
// update succeeded.
func respond(result lifecycle.Result, err error) (int, Response) {
	if err == nil {
		return http.StatusOK, Response{Result: result}
	}

	var (
		validation *pserrors.ValidationError
		warning    *pserrors.CleanupWarning
	)
	switch {
	case errors.As(err, &warning):
		status := http.StatusInternalServerError
		if warning.Retryable {
			status = http.StatusServiceUnavailable
		}
		return status, Response{Result: result, Warning: warning.Error(), Retryable: warning.Retryable}
	case errors.As(err, &validation):
		return http.StatusBadRequest, Response{Error: err.Error()}
	case pserrors.IsRetryable(err):
		return http.StatusServiceUnavailable, Response{Error: err.Error(), Retryable: true}
	}
	return http.StatusInternalServerError, Response{Error: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
