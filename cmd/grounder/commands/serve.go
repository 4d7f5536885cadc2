package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/grounder-ai/grounder/internal/index"
	"github.com/grounder-ai/grounder/internal/logging"
	"github.com/grounder-ai/grounder/internal/retrieve"
	"github.com/grounder-ai/grounder/internal/server"
)

// NewServeCmd constructs the `grounder serve` command, which starts the HTTP
// server exposing the retrieval API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the grounder HTTP retrieval server",
		Long: `Start the grounder HTTP server.

The server exposes POST /api/retrieve for retrieval queries, liveness and
readiness probes, and Prometheus metrics on GET /metrics. A corpus version
published while the server is running is picked up automatically on the
next request.

Examples:
  grounder serve
  grounder serve --port 9090
  GROUNDER_API_KEY=secret grounder serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			root := indexRoot()
			repo, err := retrieve.NewFileRepository(root)
			if err != nil {
				return fmt.Errorf("serve: %w (run 'grounder index' first)", err)
			}

			batcher, err := buildBatcher(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			svc, err := buildVectorService(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svc.Close()

			registry := prometheus.NewRegistry()
			ret, err := retrieve.New(batcher, svc, repo, retrieve.Config{
				TopK:             getEnvInt("RETRIEVAL_TOP_K", 0),
				ScoreThreshold:   float32(getEnvFloat("RETRIEVAL_SCORE_THRESHOLD", 0)),
				DedupeByDocument: os.Getenv("RETRIEVAL_DEDUPE") == "true",
			}, log, registry)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				svc,
				server.NewManifestPinger(func() error {
					_, err := index.LoadManifest(root)
					return err
				}),
			}

			srv, err := server.New(ret, repo, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				APIKey:    os.Getenv("GROUNDER_API_KEY"),
				RateLimit: getEnvFloat("GROUNDER_RATE_LIMIT", 0),
				Registry:  registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
