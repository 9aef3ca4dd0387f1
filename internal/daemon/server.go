package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/concept"
	"github.com/felixgeelhaar/coda/internal/config"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/engine"
	"github.com/felixgeelhaar/coda/internal/metrics"
	"github.com/felixgeelhaar/coda/internal/queue"
	"github.com/felixgeelhaar/coda/internal/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

// Server represents the coda daemon HTTP server
type Server struct {
	cfg     *config.LocalConfig
	version string
	started time.Time
	server  *http.Server
	router  *http.ServeMux

	// Services
	engine      *engine.Engine
	codas       *coda.Service
	provider    concept.Provider
	watcher     *concept.Watcher
	metrics     *metrics.Metrics
	evaluations *sqlite.EvaluationStore // nil unless the sqlite backend is used
	consumer    *queue.Consumer

	// closers run in reverse order on shutdown
	closers []func() error
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config  *config.LocalConfig
	Version string

	// Provider replaces the configured concept source
	Provider concept.Provider
	// Registry receives the daemon's collectors; nil creates one
	Registry *prometheus.Registry
}

// NewServer wires the concept source, storage, engine, learners and queue
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	s := &Server{
		cfg:     cfg.Config,
		version: cfg.Version,
		started: time.Now(),
		router:  http.NewServeMux(),
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.metrics = metrics.New(cfg.Registry)

	if err := s.build(ctx, cfg); err != nil {
		s.close()
		return nil, err
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	if s.cfg.Daemon.Metrics {
		handler = metricsMiddleware(s.metrics)(handler)
	}
	handler = recoveryMiddleware(correlationIDMiddleware(loggingMiddleware(handler)))
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/types", s.handleTypes)

	// Exercises
	s.router.HandleFunc("POST /v1/exercises", s.handleGenerate)
	s.router.HandleFunc("GET /v1/exercises/{id}", s.handleGetExercise)
	s.router.HandleFunc("POST /v1/exercises/{id}/evaluate", s.handleEvaluate)

	// Concepts
	s.router.HandleFunc("GET /v1/concepts", s.handleSearchConcepts)
	s.router.HandleFunc("GET /v1/concepts/{id}", s.handleGetConcept)

	// Stats
	s.router.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	s.router.HandleFunc("GET /v1/factory/stats", s.handleFactoryStats)
	s.router.HandleFunc("GET /v1/evaluations/summary", s.handleEvaluationSummary)

	// Virtual learners
	s.router.HandleFunc("POST /v1/coda", s.handleCreateCoda)
	s.router.HandleFunc("GET /v1/coda", s.handleListCodas)
	s.router.HandleFunc("GET /v1/coda/{id}", s.handleGetCoda)
	s.router.HandleFunc("POST /v1/coda/{id}/sessions", s.handleStartSession)
	s.router.HandleFunc("GET /v1/coda/{id}/sessions/{sid}", s.handleGetSession)
	s.router.HandleFunc("POST /v1/coda/{id}/sessions/{sid}/end", s.handleEndSession)
	s.router.HandleFunc("POST /v1/coda/{id}/interactions", s.handleInteraction)

	if s.cfg.Daemon.Metrics {
		s.router.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns the server's full middleware chain
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Engine returns the exercise engine
func (s *Server) Engine() *engine.Engine { return s.engine }

// Provider returns the concept source
func (s *Server) Provider() concept.Provider { return s.provider }

// Codas returns the virtual learner service
func (s *Server) Codas() *coda.Service { return s.codas }

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting coda daemon",
		"addr", s.server.Addr,
		"version", s.version,
		"types", s.engine.SupportedTypes(),
		"storage", s.cfg.Storage.Backend,
	)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then releases every component
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	if cerr := s.engine.Close(ctx); cerr != nil {
		slog.Warn("failed to close engine", "error", cerr)
	}
	s.close()
	return err
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to close component", "error", err)
		}
	}
	s.closers = nil
}

func (s *Server) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	var fe *domain.FactoryError
	if errors.As(err, &fe) {
		response["code"] = fe.Code
	}
	s.jsonResponse(w, status, response)
}

// writeError maps a domain error to its HTTP status
func (s *Server) writeError(w http.ResponseWriter, message string, err error) {
	s.jsonError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	var (
		pe *domain.ProviderError
		ge *domain.GenerationError
		fe *domain.FactoryError
	)
	switch {
	case errors.As(err, &pe), errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &ge), errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExerciseNotFound),
		errors.Is(err, domain.ErrConceptNotFound),
		errors.Is(err, domain.ErrCodaNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionActive), errors.Is(err, domain.ErrNoActiveSession):
		return http.StatusConflict
	case errors.As(err, &fe), errors.Is(err, domain.ErrNoGeneratorAvailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "%v", err)
	}
	return nil
}

// ListenAddr is used by the CLI to reach a running daemon
func ListenAddr(cfg *config.LocalConfig) string {
	return fmt.Sprintf("http://%s", cfg.Addr())
}
