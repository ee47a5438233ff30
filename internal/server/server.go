// Package server implements the HTTP surface of the retrieval service:
// the document CRUD endpoints, the question-answering endpoint, the chat
// webhook, and the operational endpoints (health, readiness, metrics).
// The server is started by the `mekonggpt serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mekonggpt/retrieval-go/internal/creds"
	"github.com/mekonggpt/retrieval-go/internal/datastore"
)

// New constructs a Server from its dependencies and config. A bearer token
// is mandatory: without one every protected endpoint would be open.
func New(store datastore.Datastore, credStore creds.Store, ask asker, pool submitter, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("server: datastore must not be nil")
	}
	if credStore == nil {
		return nil, fmt.Errorf("server: credential store must not be nil")
	}
	if ask == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("server: worker pool must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BearerToken == "" {
		return nil, fmt.Errorf("server: bearer token must not be empty")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full synchronous answer turn.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = "web/index.html"
	}
	if cfg.WellKnownDir == "" {
		cfg.WellKnownDir = ".well-known"
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	s := &Server{
		store:   store,
		creds:   credStore,
		asker:   ask,
		pool:    pool,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: newServerMetrics(cfg.MetricsRegistry),
		pingers: cfg.Pingers,
	}

	limiter, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	// protected wraps a handler with per-endpoint metrics, rate limiting,
	// and bearer auth (auth innermost so throttling happens first).
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, limiter.middleware(authMiddleware(cfg.BearerToken, h)))
	}
	// open wraps a handler with per-endpoint metrics only. The chat
	// webhook authenticates by platform callback, not by bearer token.
	open := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, limiter.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /upsert", protected("upsert", s.handleUpsert))
	mux.Handle("POST /upsert-file", protected("upsert_file", s.handleUpsertFile))
	mux.Handle("POST /sub/query", protected("query", s.handleQuery))
	mux.Handle("DELETE /delete", protected("delete", s.handleDelete))
	mux.Handle("POST /querygpt", protected("querygpt", s.handleQueryGPT))
	mux.Handle("GET /replies", protected("replies", s.handleReplies))
	mux.Handle("POST /zaloquery", open("zaloquery", s.handleZaloQuery))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /.well-known/", http.StripPrefix("/.well-known/",
		http.FileServer(http.Dir(cfg.WellKnownDir))))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's root handler, middleware included.
// Exposed for httptest-based endpoint tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}
