package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, metricsCfg domain.MetricsConfig, deps Deps, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Operational endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if metricsCfg.Enabled {
		path := metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, promhttp.Handler())
	}

	// The live feed belongs to the feed tenant, so it is not tenant scoped.
	router.Route("/live", func(r chi.Router) {
		r.Get("/", handler.LiveSnapshot)
		r.Get("/stats", handler.LiveStats)
		r.Get("/stream", handler.LiveStream)
	})

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Stateless scoring
		r.Post("/assess", handler.Assess)
		r.Post("/assess/batch", handler.AssessBatch)

		// Transactions
		r.Post("/transactions", handler.IngestTransaction)
		r.Get("/transactions", handler.ListTransactions)
		r.Get("/transactions/{id}", handler.GetTransaction)
		r.Post("/transactions/{id}/block", handler.BlockTransaction)
		r.Post("/transactions/{id}/approve", handler.ApproveTransaction)
		r.Post("/transactions/{id}/flag", handler.FlagTransaction)

		r.Get("/evaluations/{id}", handler.GetEvaluation)

		// Alerts
		r.Get("/alerts", handler.ListAlerts)
		r.Post("/alerts/{id}/dismiss", handler.DismissAlert)

		// Alert rule management
		r.Get("/alert-rules", handler.ListAlertRules)
		r.Post("/alert-rules", handler.CreateAlertRule)
		r.Post("/alert-rules/reload", handler.ReloadAlertRules)

		r.Get("/rules", handler.ListScoringRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server and blocks until it stops.
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
