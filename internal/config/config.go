// Package config provides YAML-based configuration for grounder.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. GROUNDER_CONFIG environment variable
//  3. ~/.grounder/config.yaml
//  4. ./grounder.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Chunking configures document splitting.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures artifact materialization and publishing.
	Index IndexConfig `yaml:"index"`

	// Qdrant configures the vector service connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Retrieval configures the query path.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures indexing-run history persistence.
	History HistoryConfig `yaml:"history"`
}

// ChunkingConfig holds document splitting settings.
type ChunkingConfig struct {
	// MaxSize is the maximum chunk size in characters.
	MaxSize int `yaml:"max_size"`
	// Overlap is the character overlap between consecutive chunks.
	Overlap int `yaml:"overlap"`
	// IDPolicy selects chunk id generation: deterministic, random.
	IDPolicy string `yaml:"id_policy"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: ollama, openai, azure, gemini.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// BatchSize is the maximum texts per embedding request.
	BatchSize int `yaml:"batch_size"`
	// MaxRetries is the retry count per failed batch.
	MaxRetries int `yaml:"max_retries"`
	// Concurrency is the number of parallel embedding requests.
	Concurrency int `yaml:"concurrency"`
	// RateLimit caps embedding requests per second, 0 disables.
	RateLimit float64 `yaml:"rate_limit"`
}

// IndexConfig holds artifact materialization settings.
type IndexConfig struct {
	// Root is the index root directory holding versions and the manifest.
	Root string `yaml:"root"`
	// ShardSizeBytes is the payload shard rotation threshold.
	ShardSizeBytes int64 `yaml:"shard_size_bytes"`
}

// QdrantConfig holds vector service settings.
type QdrantConfig struct {
	// Host is the server hostname.
	Host string `yaml:"host"`
	// Port is the gRPC port.
	Port int `yaml:"port"`
	// Collection is the collection name.
	Collection string `yaml:"collection"`
	// APIKey is the API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the connection.
	TLS bool `yaml:"tls"`
}

// RetrievalConfig holds query-path settings.
type RetrievalConfig struct {
	// TopK is the number of nearest neighbors to request.
	TopK int `yaml:"top_k"`
	// ScoreThreshold drops hits scoring below it.
	ScoreThreshold float64 `yaml:"score_threshold"`
	// DedupeByDocument keeps one chunk per source document.
	DedupeByDocument bool `yaml:"dedupe_by_document"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var GROUNDER_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit caps requests per second per client IP, 0 disables.
	RateLimit float64 `yaml:"rate_limit"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds indexing-run history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"CHUNK_MAX_SIZE", func(c *Config) string { return intStr(c.Chunking.MaxSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"CHUNK_ID_POLICY", func(c *Config) string { return c.Chunking.IDPolicy }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_MAX_RETRIES", func(c *Config) string { return intStr(c.Embedding.MaxRetries) }},
	{"EMBEDDING_CONCURRENCY", func(c *Config) string { return intStr(c.Embedding.Concurrency) }},
	{"EMBEDDING_RATE_LIMIT", func(c *Config) string { return floatStr(c.Embedding.RateLimit) }},
	{"INDEX_ROOT", func(c *Config) string { return c.Index.Root }},
	{"INDEX_SHARD_SIZE_BYTES", func(c *Config) string { return int64Str(c.Index.ShardSizeBytes) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_SCORE_THRESHOLD", func(c *Config) string { return floatStr(c.Retrieval.ScoreThreshold) }},
	{"RETRIEVAL_DEDUPE", func(c *Config) string { return boolStr(c.Retrieval.DedupeByDocument) }},
	{"GROUNDER_HOST", func(c *Config) string { return c.Server.Host }},
	{"GROUNDER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"GROUNDER_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"GROUNDER_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"GROUNDER_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("GROUNDER_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".grounder", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("grounder.yaml"); err == nil {
		return "grounder.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// int64Str converts an int64 to string, returning "" for zero values.
func int64Str(v int64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
