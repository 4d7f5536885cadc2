// Package retrieve answers user questions against the published corpus: it
// embeds the query, searches the vector service for nearest chunks, and
// hydrates the opaque hits back into citable text through the chunk-detail
// map.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grounder-ai/grounder/internal/index"
)

// Hit is one raw nearest-neighbor result from the vector service: a chunk
// id and its similarity score, nothing more.
type Hit struct {
	// ChunkID identifies the matched chunk.
	ChunkID string

	// Score is the similarity score, higher is closer.
	Score float32
}

// HydratedChunk is a search hit joined with its chunk details, ready for
// citation.
type HydratedChunk struct {
	// ChunkID identifies the chunk.
	ChunkID string `json:"chunk_id"`

	// Score is the similarity score from the vector search.
	Score float32 `json:"score"`

	// Text is the chunk's verbatim content.
	Text string `json:"text"`

	// DocumentName names the source document, for citation.
	DocumentName string `json:"document_name"`

	// IndexInDocument is the chunk's position in its document.
	IndexInDocument int `json:"index_in_document"`
}

// QueryEmbedder embeds a single query string. Implemented by
// [github.com/grounder-ai/grounder/internal/embed.Batcher].
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs nearest-neighbor search against the vector service.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
}

// ChunkRepository resolves chunk ids to their details.
type ChunkRepository interface {
	// Details returns the entries for the requested ids. Ids with no entry
	// are simply absent from the result; that is an integrity signal the
	// retriever handles, not an error.
	Details(ids []string) (map[string]index.DetailEntry, error)
}

// Config holds retrieval-time settings.
type Config struct {
	// TopK is the number of nearest neighbors requested from the vector
	// service. Defaults to 5.
	TopK int

	// ScoreThreshold drops hits scoring below it. Zero keeps everything.
	ScoreThreshold float32

	// DedupeByDocument keeps only the highest-scoring chunk per source
	// document when set.
	DedupeByDocument bool
}

// Retriever executes the query path.
type Retriever struct {
	embedder QueryEmbedder
	searcher Searcher
	repo     ChunkRepository
	cfg      Config
	log      *slog.Logger

	// missingDetails counts search hits whose chunk id had no entry in the
	// detail map, i.e. a payload/map divergence.
	missingDetails prometheus.Counter
}

// New constructs a Retriever. reg may be nil to skip metric registration.
func New(embedder QueryEmbedder, searcher Searcher, repo ChunkRepository, cfg Config, log *slog.Logger, reg prometheus.Registerer) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieve: query embedder must not be nil")
	}
	if searcher == nil {
		return nil, fmt.Errorf("retrieve: searcher must not be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("retrieve: chunk repository must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if log == nil {
		log = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		repo:     repo,
		cfg:      cfg,
		log:      log,
		missingDetails: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "grounder",
			Subsystem: "retrieve",
			Name:      "missing_chunk_details_total",
			Help:      "Search hits whose chunk id was absent from the chunk-detail map.",
		}),
	}, nil
}

// Retrieve answers query with up to TopK hydrated chunks, highest score
// first. A hit whose details are missing is logged and skipped; the
// remaining hits still serve the query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]HydratedChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("retrieve: query must not be empty")
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}

	hits, err := r.searcher.Search(ctx, vector, r.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	details, err := r.repo.Details(ids)
	if err != nil {
		return nil, fmt.Errorf("retrieve: load chunk details: %w", err)
	}

	results := make([]HydratedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Score < r.cfg.ScoreThreshold {
			continue
		}
		entry, ok := details[h.ChunkID]
		if !ok {
			r.missingDetails.Inc()
			r.log.Warn("retrieve: hit has no chunk details, skipping",
				slog.String("chunk_id", h.ChunkID),
				slog.Float64("score", float64(h.Score)),
			)
			continue
		}
		results = append(results, HydratedChunk{
			ChunkID:         h.ChunkID,
			Score:           h.Score,
			Text:            entry.ChunkText,
			DocumentName:    entry.SourceDocumentName,
			IndexInDocument: entry.IndexInDocument,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if r.cfg.DedupeByDocument {
		results = dedupeByDocument(results)
	}
	if len(results) > r.cfg.TopK {
		results = results[:r.cfg.TopK]
	}
	return results, nil
}

// dedupeByDocument keeps the first (highest-scoring, since chunks arrive
// sorted) chunk per source document.
func dedupeByDocument(chunks []HydratedChunk) []HydratedChunk {
	seen := make(map[string]bool, len(chunks))
	kept := chunks[:0]
	for _, c := range chunks {
		if seen[c.DocumentName] {
			continue
		}
		seen[c.DocumentName] = true
		kept = append(kept, c)
	}
	return kept
}
