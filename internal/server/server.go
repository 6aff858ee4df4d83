// Package server assembles the HTTP API: routing, middleware, and the
// listener lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/bakerstreetlabs/holmes-agent/internal/errors"
	"github.com/bakerstreetlabs/holmes-agent/internal/observability"
	"github.com/bakerstreetlabs/holmes-agent/internal/server/handlers"
	"github.com/bakerstreetlabs/holmes-agent/internal/server/middleware"
)

// Options carries the collaborators the router needs. Zero-value fields
// disable the corresponding routes.
type Options struct {
	API            *handlers.API
	AuthToken      string
	MetricsHandler http.Handler
	Version        string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server owns the HTTP listener for the API.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server
}

// New builds the server and its full route table.
func New(host string, port int, opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	if opts.API != nil && opts.API.Metrics != nil {
		r.Use(httpMetrics(opts.API.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound,
			fmt.Sprintf("no route for %s", req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, http.StatusMethodNotAllowed, apperrors.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not allowed", req.Method))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"version":%q}`+"\n", version)
	})

	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	if opts.API != nil {
		api := opts.API
		r.Route("/v1", func(v1 chi.Router) {
			// Backend callbacks cannot carry the shared token.
			v1.Post("/webhooks/backend", api.BackendWebhook)

			v1.Group(func(g chi.Router) {
				g.Use(middleware.TokenAuth(opts.AuthToken))
				g.Post("/jobs", api.SubmitJob)
				g.Get("/jobs/{id}", api.GetJob)
				g.Post("/jobs/{id}/cancel", api.CancelJob)
				g.Post("/orchestrations", api.SubmitOrchestration)
				g.Post("/records", api.SubmitRecord)
				g.Get("/templates", api.ListTemplates)
				g.Get("/templates/{id}", api.GetTemplate)
			})
		})
	}

	srv := &Server{host: host, port: port, router: r}
	srv.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// ListenAndServe blocks serving requests until the listener fails or is
// shut down.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// httpMetrics records request counts and latency per route pattern.
func httpMetrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			m.HTTPRequests.Add(r.Context(), 1)
			m.HTTPRequestSeconds.Record(r.Context(), time.Since(start).Seconds())
		})
	}
}
