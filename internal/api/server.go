package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/dataset-validator/internal/config"
	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/runs"
	"github.com/terra-clan/dataset-validator/internal/services"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	runs           *runs.Service
	datasetLoader  *datasets.Loader
	registry       *services.Registry
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server. A nil auth leaves /api/v1 open.
func NewServer(
	cfg config.ServerConfig,
	svc *runs.Service,
	loader *datasets.Loader,
	registry *services.Registry,
	auth *AuthMiddleware,
) *Server {
	if loader == nil {
		loader = datasets.NewLoader()
	}
	if registry == nil {
		registry = services.NewRegistry()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		config:         cfg,
		runs:           svc,
		datasetLoader:  loader,
		registry:       registry,
		authMiddleware: auth,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		// The live socket outlives any request timeout
		r.With(s.require(models.PermRunsWrite)).Get("/live", s.handleLiveWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.config.RequestTimeout))

			r.With(s.require(models.PermRunsWrite)).Post("/validate", s.handleValidate)
			r.With(s.require(models.PermRunsRead)).Get("/checks", s.handleListChecks)

			r.Route("/datasets", func(r chi.Router) {
				r.With(s.require(models.PermDatasetsRead)).Get("/", s.handleListDatasets)
				r.With(s.require(models.PermDatasetsRead)).Get("/{name}", s.handleGetDataset)
				r.With(s.require(models.PermRunsWrite)).Post("/{name}/validate", s.handleValidateDataset)
			})

			r.Route("/runs", func(r chi.Router) {
				r.With(s.require(models.PermRunsRead)).Get("/", s.handleListRuns)
				r.With(s.require(models.PermRunsRead)).Get("/{id}", s.handleGetRun)
			})
		})
	})

	s.router = r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.authMiddleware == nil {
		return next
	}
	return s.authMiddleware.Authenticate(next)
}

func (s *Server) require(permission string) func(http.Handler) http.Handler {
	if s.authMiddleware == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.authMiddleware.RequirePermission(permission)
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
