// Package server exposes the read API over chi: latest comparisons, pair
// history, single-metric history, a protected cron trigger and the usual
// health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"defi-parity/internal/aggregate"
	"defi-parity/internal/fetcher"
	"defi-parity/internal/observability"
)

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	logger     *logrus.Logger
	addr       string
}

// Options configures a Server.
type Options struct {
	Addr       string
	Aggregator *aggregate.Aggregator

	// Fetcher backs the cron trigger endpoint; nil disables it.
	Fetcher *fetcher.Runner

	// CronSecret protects the cron endpoint with bearer auth when set.
	CronSecret string

	Logger *logrus.Logger
}

// New creates the API server and mounts all routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))
	router.Use(requestMetrics)

	s := &Server{
		router: router,
		addr:   opts.Addr,
		logger: opts.Logger,
	}

	h := &handlers{
		aggregator: opts.Aggregator,
		fetcher:    opts.Fetcher,
		cronSecret: opts.CronSecret,
		logger:     opts.Logger,
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/latest", h.getLatest)
		r.Get("/pairs", h.getPairs)
		r.Get("/pairs/history", h.getPairsHistory)
		r.Get("/history", h.getHistory)
		r.Get("/cron/fetch", h.cronFetch)
	})
	router.Get("/health", h.health)
	router.Method(http.MethodGet, "/metrics", observability.Handler())

	return s
}

// requestMetrics records per-route latency labelled with the matched chi
// route pattern and the response status.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		observability.RecordAPIRequest(route, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
	})
}

// Router returns the chi router, for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server and blocks until shutdown or failure.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.WithField("addr", s.addr).Info("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
