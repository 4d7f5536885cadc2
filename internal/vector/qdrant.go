// Package vector adapts the external vector-similarity service. It bulk
// ingests the materialized embedding payload of a published corpus version
// and serves nearest-neighbor searches at query time.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/qdrant/go-client/qdrant"

	"github.com/grounder-ai/grounder/internal/index"
	"github.com/grounder-ai/grounder/internal/retrieve"
)

// upsertBatchSize bounds points per ingest RPC.
const upsertBatchSize = 256

// Config holds connection parameters for the vector service.
type Config struct {
	// Host is the service hostname (default: localhost).
	Host string

	// Port is the gRPC port (default: 6334).
	Port int

	// Collection is the collection embeddings are stored in.
	Collection string

	// VectorSize is the dimensionality of stored embeddings.
	VectorSize uint64

	// APIKey is the optional API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Service is the vector-similarity service adapter. It implements
// [retrieve.Searcher].
type Service struct {
	client     *qdrant.Client
	collection string
	log        *slog.Logger
}

// New connects to the vector service and ensures the target collection
// exists with cosine distance.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*Service, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vector: collection name must not be empty")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("vector: vector size must not be zero")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: create client: %w", err)
	}

	s := &Service{client: client, collection: cfg.Collection, log: log}
	if err := s.ensureCollection(ctx, cfg.VectorSize); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the collection when it does not exist yet.
func (s *Service) ensureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vector: check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("vector: create collection %q: %w", s.collection, err)
	}
	return nil
}

// Load bulk-ingests every payload shard of the published version described
// by m. Restrict labels become payload fields so searches can later narrow
// to a namespace value server-side. Returns the number of points ingested.
func (s *Service) Load(ctx context.Context, root string, m *index.Manifest) (int, error) {
	versionDir := m.VersionDir(root)
	total := 0

	for _, rel := range m.ShardFiles {
		records, err := index.ReadShard(filepath.Join(versionDir, rel))
		if err != nil {
			return total, fmt.Errorf("vector: %w", err)
		}

		for start := 0; start < len(records); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(records))
			if err := s.upsert(ctx, records[start:end]); err != nil {
				return total, err
			}
			total += end - start
		}
	}

	s.log.Info("vector: version loaded",
		slog.String("version", m.Version),
		slog.Int("points", total),
	)
	return total, nil
}

// upsert ingests one batch of payload records.
func (s *Service) upsert(ctx context.Context, records []index.PayloadRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		payload := make(map[string]interface{}, len(rec.Restricts))
		for _, r := range rec.Restricts {
			if len(r.Allow) == 1 {
				payload[r.Namespace] = r.Allow[0]
			}
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vector: upsert batch: %w", err)
	}
	return nil
}

// Search implements [retrieve.Searcher]: cosine nearest-neighbor search
// returning chunk ids and scores.
func (s *Service) Search(ctx context.Context, vec []float32, topK int) ([]retrieve.Hit, error) {
	return s.search(ctx, vec, topK, nil)
}

// SearchDocument narrows the search to chunks of one source document using
// the source_document restrict label.
func (s *Service) SearchDocument(ctx context.Context, vec []float32, topK int, documentName string) ([]retrieve.Hit, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(index.RestrictSourceDocument, documentName),
		},
	}
	return s.search(ctx, vec, topK, filter)
}

func (s *Service) search(ctx context.Context, vec []float32, topK int, filter *qdrant.Filter) ([]retrieve.Hit, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", err)
	}

	hits := make([]retrieve.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, retrieve.Hit{ChunkID: r.Id.GetUuid(), Score: r.Score})
	}
	return hits, nil
}

// Ping calls the service's health-check RPC. Used by the server's readiness
// probe.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vector: health check: %w", err)
	}
	return nil
}

// Name identifies the dependency in readiness reports.
func (s *Service) Name() string { return "qdrant" }

// Close closes the underlying gRPC connection.
func (s *Service) Close() error {
	return s.client.Close()
}
