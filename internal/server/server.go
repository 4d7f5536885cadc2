// Package server implements the HTTP server that exposes the retrieval API.
// The server is started by the `grounder serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grounder-ai/grounder/internal/logging"
)

// New constructs a Server from the provided retriever and config. repo may
// be nil when the chunk repository has no reload hook.
func New(ret retriever, repo reloader, cfg *Config) (*Server, error) {
	if ret == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		retriever: ret,
		repo:      repo,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(registry),
		registry:  registry,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: API authentication disabled, set GROUNDER_API_KEY to enable")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/retrieve",
		authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleRetrieve))))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleRetrieve handles POST /api/retrieve requests.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	// Pick up a corpus version published since the last request.
	if s.repo != nil {
		if err := s.repo.Reload(); err != nil {
			log.Error("server: corpus reload failed", slog.Any("error", err))
			s.metrics.retrieveRequestsTotal.WithLabelValues("error").Inc()
			http.Error(w, "corpus unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	chunks, err := s.retriever.Retrieve(r.Context(), req.Query)
	if err != nil {
		log.Error("server: retrieval failed", slog.Any("error", err))
		s.metrics.retrieveRequestsTotal.WithLabelValues("error").Inc()
		http.Error(w, "retrieval failed", http.StatusInternalServerError)
		return
	}

	s.metrics.retrieveRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.retrieveDurationSeconds.Observe(time.Since(start).Seconds())
	s.metrics.retrieveChunksReturned.Observe(float64(len(chunks)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(retrieveResponse{Query: req.Query, Chunks: chunks}); err != nil {
		log.Error("server: response encode error", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
