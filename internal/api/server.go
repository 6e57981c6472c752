// Package api serves resolution over HTTP.
//
//	POST /v1/resolve                resolve manifests, return a lockfile
//	GET  /v1/runs/{runID}/graph.dot DOT source of a previous run
//	GET  /v1/runs/{runID}/graph.svg rendered graph of a previous run
//	GET  /healthz                   liveness
//
// Results are cached by request content, so repeating a request returns the
// earlier run without contacting the registry.
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stackresolve/pkg/cache"
	"github.com/matzehuels/stackresolve/pkg/source"
)

const (
	// Virtual workspace root of request projects.
	workspaceRoot = "/workspace"

	maxBodyBytes   = 8 << 20
	requestTimeout = 2 * time.Minute
)

// Options configures [New].
type Options struct {
	Source   source.Source // Registry source (required)
	Registry string        // Registry URL, part of the cache key
	Cache    cache.Cache   // Result cache (default: none)
	Keyer    cache.Keyer   // Default: cache.DefaultKeyer
	Version  string        // Reported by /healthz
	Logger   *log.Logger   // Default: discard
}

// Server handles API requests.
type Server struct {
	src      source.Source
	registry string
	cache    cache.Cache
	keyer    cache.Keyer
	version  string
	logger   *log.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		src:      opts.Source,
		registry: opts.Registry,
		cache:    opts.Cache,
		keyer:    opts.Keyer,
		version:  opts.Version,
		logger:   opts.Logger,
	}
	if s.cache == nil {
		s.cache = cache.NewNullCache()
	}
	if s.keyer == nil {
		s.keyer = cache.NewDefaultKeyer()
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.resolve)
		r.Get("/runs/{runID}/graph.dot", s.graphDOT)
		r.Get("/runs/{runID}/graph.svg", s.graphSVG)
	})
	return r
}

// logRequests logs one line per request with the charm logger.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Millisecond),
			"id", middleware.GetReqID(r.Context()),
		)
	})
}
