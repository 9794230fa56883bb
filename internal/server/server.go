package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/alphaintel/modelgov/internal/lifecycle/orchestrator"
	"github.com/alphaintel/modelgov/internal/observability/health"
	"github.com/alphaintel/modelgov/internal/observability/metrics"
	"github.com/alphaintel/modelgov/pkg/constants"
	"github.com/alphaintel/modelgov/pkg/interfaces"
)

// Server serves the lifecycle read projections and the operator control
// routes. Mutations always go through the orchestrator; no handler
// touches the registry or state store write paths directly.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *logrus.Logger
	config     *Config
	handlers   *Handlers
	metrics    *metrics.LifecycleMetrics
}

// Config contains server configuration.
type Config struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	EnableMetrics   bool          `json:"enable_metrics"`
}

func getDefaultConfig() *Config {
	return &Config{
		Host:            constants.DefaultHost,
		Port:            constants.DefaultPort,
		ReadTimeout:     constants.DefaultReadTimeout,
		WriteTimeout:    constants.DefaultWriteTimeout,
		IdleTimeout:     constants.DefaultIdleTimeout,
		ShutdownTimeout: constants.DefaultShutdownTimeout,
		EnableMetrics:   true,
	}
}

// Deps bundles what the handlers read from and operate through.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Queue        interfaces.Queue
	Registry     interfaces.Registry
	State        interfaces.StateStore
	Audit        interfaces.AuditReader
	Switches     interfaces.SwitchStore
	Health       *health.Checker
	Metrics      *metrics.LifecycleMetrics
}

// NewServer creates the HTTP server.
func NewServer(config *Config, deps Deps, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		config = getDefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	router := mux.NewRouter()

	server := &Server{
		router:   router,
		logger:   logger,
		config:   config,
		handlers: NewHandlers(deps, logger),
		metrics:  deps.Metrics,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server, nil
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Starting HTTP server on %s:%d", s.config.Host, s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error shutting down HTTP server: %v", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	// Health and version
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/version", s.handlers.Version).Methods("GET")

	if s.config.EnableMetrics && s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix(constants.APIPrefix).Subrouter()

	// Read projections
	api.HandleFunc("/lifecycle/state", s.handlers.GetAllStates).Methods("GET")
	api.HandleFunc("/lifecycle/state/{horizon}", s.handlers.GetState).Methods("GET")
	api.HandleFunc("/lifecycle/audit", s.handlers.GetAudit).Methods("GET")
	api.HandleFunc("/lifecycle/jobs", s.handlers.ListJobs).Methods("GET")
	api.HandleFunc("/lifecycle/jobs/{id}", s.handlers.GetJob).Methods("GET")
	api.HandleFunc("/lifecycle/models", s.handlers.ListModels).Methods("GET")
	api.HandleFunc("/lifecycle/models/{id}", s.handlers.GetModel).Methods("GET")
	api.HandleFunc("/lifecycle/killswitch", s.handlers.GetKillSwitch).Methods("GET")

	// Operator controls
	api.HandleFunc("/lifecycle/jobs", s.handlers.EnqueueJob).Methods("POST")
	api.HandleFunc("/lifecycle/promote/{modelId}", s.handlers.Promote).Methods("POST")
	api.HandleFunc("/lifecycle/rollback/{horizon}", s.handlers.Rollback).Methods("POST")
	api.HandleFunc("/lifecycle/killswitch", s.handlers.SetKillSwitch).Methods("PUT")
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
}
