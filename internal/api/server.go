// Package api provides the HTTP surface of the workflow orchestrator:
// workflow definition upload, instance lifecycle, user-task and
// service-task dispatch, discovery passthrough and audit read endpoints.
// @title Workflow Orchestrator API
// @version 1.0
// @description Multi-tenant BPMN workflow orchestration HTTP API
// @basePath /v1
// @schemes http https
// @consumes application/json
// @produces application/json
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/quickwind/orchestrator/internal/apiversion"
	"github.com/quickwind/orchestrator/internal/audit"
	"github.com/quickwind/orchestrator/internal/catalog"
	"github.com/quickwind/orchestrator/internal/config"
	"github.com/quickwind/orchestrator/internal/database"
	"github.com/quickwind/orchestrator/internal/instance"
	"github.com/quickwind/orchestrator/internal/logger"
	"github.com/quickwind/orchestrator/internal/servicetask"
	"github.com/quickwind/orchestrator/internal/tenant"
	"github.com/quickwind/orchestrator/internal/tenantctx"
	"github.com/quickwind/orchestrator/internal/usertask"
	"github.com/quickwind/orchestrator/internal/workflowdef"
)

// Dependencies bundles every collaborator the HTTP surface dispatches
// into. It is the handler layer's one concern: translate HTTP to/from
// these, never hold business logic of its own.
type Dependencies struct {
	TenantRepo     tenant.Repository
	DefRepo        workflowdef.Repository
	CatalogRepo    catalog.Repository
	AuditRepo      audit.Repository
	UserTaskRepo   usertask.Repository
	ServiceTaskRepo servicetask.Repository
	Orchestrator   *instance.Orchestrator
	UserTasks      *usertask.Controller
	ServiceTasks   *servicetask.Dispatcher
}

// Server represents the HTTP API server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	provider database.Provider
	deps     Dependencies
	logger   *zap.Logger
}

// New creates a new HTTP API server.
func New(cfg *config.HTTPConfig, dbProvider database.Provider, deps Dependencies, log *zap.Logger) *Server {
	log = log.With(zap.String("component", "api"))

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.HTTPMiddleware(log))
	r.Use(logger.CorrelationIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		router:   r,
		provider: dbProvider,
		deps:     deps,
		logger:   log,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	srv.registerRoutes()

	return srv
}

// registerRoutes wires every endpoint from the external interface table.
// Everything but /health sits behind tenantctx.AuthMiddleware.
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/"+apiversion.Current, func(r chi.Router) {
		r.Use(tenantctx.AuthMiddleware(s.deps.TenantRepo, s.logger))

		r.Get("/discovery/endpoint", s.handleGetDiscoveryEndpoint)
		r.Post("/discovery/endpoint", s.handleSetDiscoveryEndpoint)
		r.Get("/discovery/catalog", s.handleListCatalog)

		r.Post("/workflows", s.handleUploadWorkflow)
		r.Get("/workflows/{key}/versions/{version}", s.handleGetWorkflowVersion)
		r.Post("/workflows/{key}/versions/{version}/instances", s.handleStartInstance)

		r.Get("/instances/{id}", s.handleGetInstance)

		r.Get("/tasks", s.handleListUserTasks)
		r.Post("/tasks/{id}/complete", s.handleCompleteUserTask)

		r.Get("/service-tasks", s.handleListServiceTasks)
		r.Post("/service-tasks/{id}/start", s.handleStartServiceTask)
		r.Post("/service-tasks/{id}/callback", s.handleServiceTaskCallback)

		r.Get("/audit", s.handleListAudit)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleVersionRequired))
		r.Handle("/*", http.HandlerFunc(s.handleVersionRequired))
	})

	s.router.Route("/v{version}", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleUnsupportedVersion))
		r.Handle("/*", http.HandlerFunc(s.handleUnsupportedVersion))
	})
}

// handleHealth is the liveness check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server shut down successfully")
	return nil
}
