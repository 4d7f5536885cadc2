package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/grounder-ai/grounder/internal/chunk"
	"github.com/grounder-ai/grounder/internal/embed"
	"github.com/grounder-ai/grounder/internal/index"
	"github.com/grounder-ai/grounder/internal/store"
	"github.com/grounder-ai/grounder/internal/vector"
)

// defaultIndexRoot is where index versions and the manifest live when
// INDEX_ROOT is unset.
const defaultIndexRoot = "./grounder-index"

// indexRoot resolves the index root directory from the environment.
func indexRoot() string {
	return getEnvOrDefault("INDEX_ROOT", defaultIndexRoot)
}

// buildChunker constructs a chunker from CHUNK_* env vars.
func buildChunker() (*chunk.Chunker, error) {
	return chunk.New(chunk.Config{
		MaxSize:  getEnvInt("CHUNK_MAX_SIZE", 0),
		Overlap:  getEnvInt("CHUNK_OVERLAP", 0),
		IDPolicy: chunk.IDPolicy(getEnvOrDefault("CHUNK_ID_POLICY", "")),
	})
}

// buildBatcher constructs the embedding batcher from EMBEDDING_* env vars,
// running the provider preflight first.
func buildBatcher(ctx context.Context, log *slog.Logger) (*embed.Batcher, error) {
	if err := embed.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embed.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embed.Backend()))

	return embed.NewBatcher(emb, embed.BatcherConfig{
		BatchSize:   getEnvInt("EMBEDDING_BATCH_SIZE", 0),
		MaxRetries:  getEnvInt("EMBEDDING_MAX_RETRIES", 0),
		Concurrency: getEnvInt("EMBEDDING_CONCURRENCY", 0),
		RateLimit:   getEnvFloat("EMBEDDING_RATE_LIMIT", 0),
	}, log)
}

// buildVectorService connects to the vector service using QDRANT_* env vars.
func buildVectorService(ctx context.Context, log *slog.Logger) (*vector.Service, error) {
	svc, err := vector.New(ctx, vector.Config{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "grounder-chunks"),
		VectorSize: uint64(embed.DefaultDimensions(embed.Backend())), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect to vector service: %w", err)
	}
	return svc, nil
}

// openRunStore opens the run-history store unless disabled. Returns nil when
// history is unavailable; callers treat that as "do not record".
func openRunStore(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("GROUNDER_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via GROUNDER_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	s, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return s
}

// recordRun persists the run outcome when history is enabled.
func recordRun(ctx context.Context, s *store.SQLiteStore, summary *index.RunSummary, runErr error, log *slog.Logger) {
	if s == nil || summary == nil {
		return
	}
	if err := s.Record(ctx, summary, runErr); err != nil {
		log.Warn("history: failed to record run", slog.Any("error", err))
	}
}

// getEnvOrDefault returns the env var value or fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// malformed.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the env var parsed as float64, or fallback when unset
// or malformed.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvInt64 returns the env var parsed as int64, or fallback when unset or
// malformed.
func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
