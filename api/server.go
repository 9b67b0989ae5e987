// Package api exposes the cost engine over HTTP: forecasting, optimization
// suggestions, billing import and historical summaries.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"cloudguard/internal/forecast"
	"cloudguard/internal/optimize"
	"cloudguard/pkg/costs"
)

var version = "0.1.0"

// Pinger is the readiness hook the storage backend provides.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend groups the storage and inventory collaborators the server needs.
// The Postgres store satisfies all of them, but tests swap in fakes per
// interface.
type Backend struct {
	History     costs.HistoryStore
	Predictions costs.PredictionStore
	Suggestions costs.SuggestionStore
	Inventory   costs.ResourceInventory
	Pinger      Pinger
}

// Config holds server configuration.
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024,
	}
}

// Server is the HTTP API server.
type Server struct {
	backend    Backend
	forecaster *forecast.Engine
	optimizer  *optimize.Engine
	config     *Config
	log        zerolog.Logger
	httpServer *http.Server
	startTime  time.Time
}

// NewServer wires the engines to the backend.
func NewServer(backend Backend, config *Config, log zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		backend:    backend,
		forecaster: forecast.NewEngine(),
		optimizer:  optimize.NewEngine(),
		config:     config,
		log:        log,
		startTime:  time.Now(),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/forecast", s.handleForecast)
		r.Post("/suggestions/generate", s.handleGenerateSuggestions)
		r.Get("/suggestions", s.handleListSuggestions)
		r.Patch("/suggestions/{id}", s.handleUpdateSuggestion)
		r.Post("/billing/import", s.handleImport)
		r.Get("/history", s.handleHistory)
	})

	return r
}

// Start runs the server until the context is cancelled or SIGINT/SIGTERM
// arrives, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.config.Port).Str("version", version).Msg("starting API server")
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	case <-quit:
	}

	s.log.Info().Msg("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.backend.Pinger != nil {
		if err := s.backend.Pinger.Ping(ctx); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "database not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
