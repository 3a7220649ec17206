// Package api exposes the HTTP ingest and administrative surface.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/amlguard/amlguard/internal/domain"
	"github.com/amlguard/amlguard/internal/metrics"
	"github.com/amlguard/amlguard/internal/rules"
	"github.com/amlguard/amlguard/internal/stream"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, bus domain.EventBus, registry *rules.Registry, coordinator *stream.Coordinator, collector *metrics.Collector, version string) *Server {
	handler := NewHandler(repo, bus, registry, coordinator, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health and observability endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if collector != nil {
		router.Handle("/metrics", collector.Handler())
	}

	// Transaction ingestion and retrieval
	router.Post("/transactions", handler.SubmitTransaction)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Rule administration
	router.Get("/rules", handler.ListRules)
	router.Get("/rules/stats", handler.GetRuleStats)
	router.Post("/rules/reload", handler.ReloadRules)

	// Alerts
	router.Get("/alerts", handler.ListAlerts)
	router.Get("/alerts/{id}", handler.GetAlert)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
