package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/metrics"
	"github.com/opensource-finance/finguard/internal/service"
)

// Deps are the collaborators the handlers read from directly. Any of them
// may be nil.
type Deps struct {
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Metrics *metrics.Metrics
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *service.Service, deps Deps, version string) *Server {
	handler := NewHandler(svc, deps, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(TraceMiddleware)
	router.Use(ObserveMiddleware(deps.Metrics))
	router.Use(RecoverMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Assessment
	router.Post("/assess", handler.Assess)
	router.Get("/customers/{id}/report", handler.CustomerReport)
	router.Post("/customers/{id}/assess", handler.RequestAssessment)
	router.Get("/reports/{id}", handler.GetReport)

	// Ingestion
	router.Post("/customers", handler.CreateCustomers)
	router.Get("/customers/{id}", handler.GetCustomer)
	router.Post("/transactions", handler.CreateTransactions)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Networks
	router.Post("/networks/detect", handler.DetectNetworks)
	router.Post("/networks/scan", handler.RequestNetworkScan)
	router.Get("/networks/{id}", handler.GetNetwork)

	// Alert workflow
	router.Get("/alerts", handler.ListAlerts)
	router.Get("/alerts/{id}", handler.GetAlert)
	router.Patch("/alerts/{id}", handler.UpdateAlert)

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
