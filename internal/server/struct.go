package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grounder-ai/grounder/internal/retrieve"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry serving GET /metrics. If nil, a
	// fresh registry is created.
	Registry *prometheus.Registry
}

// retriever is the interface handleRetrieve calls to answer a query.
// *retrieve.Retriever satisfies it; tests inject a fake.
type retriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieve.HydratedChunk, error)
}

// reloader is an optional hook invoked before each retrieval so a newly
// published corpus version is picked up without restarting the server.
// *retrieve.FileRepository satisfies it.
type reloader interface {
	Reload() error
}

// Server is the HTTP server exposing the retrieval API.
type Server struct {
	// retriever answers retrieval queries.
	retriever retriever
	// repo is the optional corpus-version reload hook.
	repo reloader
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// registry backs GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// retrieveRequest is the JSON body for POST /api/retrieve.
type retrieveRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
}

// retrieveResponse is the JSON response for POST /api/retrieve.
type retrieveResponse struct {
	// Query echoes the question that was answered.
	Query string `json:"query"`
	// Chunks are the hydrated results, highest score first.
	Chunks []retrieve.HydratedChunk `json:"chunks"`
}
