package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. metricsHandler serves /metrics
// and may be nil.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *monitor.Processor, metricsHandler http.Handler, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, processor, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}

	// Transaction ingestion and processing
	router.Post("/transactions", handler.IngestTransaction)
	router.Get("/transactions/{id}", handler.GetTransaction)
	router.Post("/process", handler.ProcessBatch)

	// Alerts and cases
	router.Get("/alerts/{id}", handler.GetAlert)
	router.Get("/accounts/{number}/alerts", handler.ListAccountAlerts)
	router.Get("/cases/{reference}", handler.GetCase)

	// Reference data
	router.Put("/accounts/{number}", handler.UpsertAccount)
	router.Put("/customers/{id}", handler.UpsertCustomer)

	// Rule management
	router.Get("/rules", handler.ListRules)
	router.Get("/rules/{id}", handler.GetRule)
	router.Post("/rules", handler.CreateRule)
	router.Put("/rules/{id}", handler.UpdateRule)
	router.Delete("/rules/{id}", handler.DeleteRule)
	router.Post("/rules/{id}/enable", handler.SetRuleEnabled(true))
	router.Post("/rules/{id}/disable", handler.SetRuleEnabled(false))
	router.Post("/rules/reload", handler.ReloadRules)

	// Engine statistics
	router.Get("/stats", handler.Stats)

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

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
