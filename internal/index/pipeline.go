package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grounder-ai/grounder/internal/chunk"
	"github.com/grounder-ai/grounder/internal/corpus"
	"github.com/grounder-ai/grounder/internal/embed"
)

// ChunkEmbedder is the embedding collaborator of the pipeline. Implemented
// by [embed.Batcher].
type ChunkEmbedder interface {
	// EmbedChunks embeds chunks in size-bounded sub-batches, returning the
	// successful records in input order plus any partial failure.
	EmbedChunks(ctx context.Context, chunks []chunk.Chunk) ([]embed.Record, *embed.Failure)
}

// PipelineConfig holds pipeline-level settings.
type PipelineConfig struct {
	// DocumentConcurrency is the number of documents chunked and embedded
	// in parallel. Defaults to 4. Embedding-call concurrency within a
	// document is governed by the Batcher.
	DocumentConcurrency int
}

// Pipeline runs the offline indexing flow: documents → chunks → embeddings
// → materialized artifacts → atomic publish. One run publishes one corpus
// version; a run lock rejects a second concurrent run up front.
type Pipeline struct {
	// chunker splits document text. Its configuration was validated at
	// construction, so a bad chunk config never fails mid-run.
	chunker *chunk.Chunker

	// embedder converts chunks to vectors with partial-failure isolation.
	embedder ChunkEmbedder

	// mat serializes the run's artifacts.
	mat *Materializer

	// root is the index root directory holding the lock and manifest.
	root string

	// concurrency bounds parallel document processing.
	concurrency int

	// log is the structured logger for run progress.
	log *slog.Logger
}

// NewPipeline constructs a Pipeline from its collaborators.
func NewPipeline(chunker *chunk.Chunker, embedder ChunkEmbedder, mat *Materializer, root string, cfg PipelineConfig, log *slog.Logger) (*Pipeline, error) {
	if chunker == nil {
		return nil, fmt.Errorf("index: chunker must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	if mat == nil {
		return nil, fmt.Errorf("index: materializer must not be nil")
	}
	if cfg.DocumentConcurrency <= 0 {
		cfg.DocumentConcurrency = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		chunker:     chunker,
		embedder:    embedder,
		mat:         mat,
		root:        root,
		concurrency: cfg.DocumentConcurrency,
		log:         log,
	}, nil
}

// NewRunID returns a fresh run identifier: sortable timestamp plus a random
// suffix so two runs started within the same second never collide.
func NewRunID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// docResult holds the outcome of one document's chunk-and-embed stage.
type docResult struct {
	// document is the source document name.
	document string
	// records are the document's successfully embedded chunks, in order.
	records []embed.Record
	// failedIDs are chunk ids whose embedding failed permanently.
	failedIDs []string
	// cause is the first embedding error, when any chunks failed.
	cause error
}

// Run indexes docs and publishes the result as a new corpus version.
// Documents are processed with bounded parallelism; a failure in one never
// blocks the others. The returned summary is non-nil even on error so
// callers can report what was attempted.
func (p *Pipeline) Run(ctx context.Context, runID string, docs []corpus.Document) (*RunSummary, error) {
	summary := &RunSummary{RunID: runID, StartedAt: time.Now().UTC()}
	defer func() { summary.FinishedAt = time.Now().UTC() }()

	release, err := AcquireLock(p.root)
	if err != nil {
		return summary, err
	}
	defer release()

	results := make([]docResult, len(docs))
	sem := make(chan struct{}, p.concurrency)
	done := make(chan struct{}, len(docs))

	for i, doc := range docs {
		sem <- struct{}{}
		go func(i int, doc corpus.Document) {
			defer func() { <-sem; done <- struct{}{} }()
			results[i] = p.processDocument(ctx, doc)
		}(i, doc)
	}
	for range docs {
		<-done
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	// Flatten in document order so materialization is deterministic.
	var records []embed.Record
	for _, res := range results {
		summary.ChunksEmbedded += len(res.records)
		summary.ChunksFailed += len(res.failedIDs)
		records = append(records, res.records...)

		if len(res.records) > 0 {
			summary.DocumentsSucceeded++
		} else {
			summary.DocumentsFailed++
			msg := "document produced no embedded chunks"
			if res.cause != nil {
				msg = "document embedding failed: " + res.cause.Error()
			}
			summary.AddEvent(slog.LevelError, msg, res.document, "")
		}
		for _, id := range res.failedIDs {
			summary.AddEvent(slog.LevelWarn, "chunk embedding failed", res.document, id)
		}
	}

	if len(records) == 0 {
		return summary, fmt.Errorf("index: run %s embedded no chunks", runID)
	}

	arts, err := p.mat.Materialize(runID, records)
	if err != nil {
		return summary, fmt.Errorf("%w: %v", ErrPublish, err)
	}

	manifest, err := Publish(p.root, arts)
	if err != nil {
		// The prior published version remains authoritative.
		return summary, err
	}
	summary.Version = manifest.Version
	summary.AddEvent(slog.LevelInfo,
		fmt.Sprintf("published version with %d chunks in %d shards", arts.ChunkCount, len(arts.ShardFiles)), "", "")

	p.log.Info("index: run published",
		slog.String("run_id", runID),
		slog.Int("documents_ok", summary.DocumentsSucceeded),
		slog.Int("documents_failed", summary.DocumentsFailed),
		slog.Int("chunks_embedded", summary.ChunksEmbedded),
		slog.Int("chunks_failed", summary.ChunksFailed),
	)
	return summary, nil
}

// processDocument chunks and embeds a single document. Embedding failures
// degrade the document to its surviving chunks rather than failing the run.
func (p *Pipeline) processDocument(ctx context.Context, doc corpus.Document) docResult {
	res := docResult{document: doc.Name}
	if ctx.Err() != nil {
		res.cause = ctx.Err()
		return res
	}

	chunks := p.chunker.Split(doc.Name, doc.Text)
	if len(chunks) == 0 {
		res.cause = fmt.Errorf("document %s yielded no chunks", doc.Name)
		return res
	}
	p.log.Debug("index: document chunked",
		slog.String("document", doc.Name),
		slog.Int("chunks", len(chunks)),
	)

	records, failure := p.embedder.EmbedChunks(ctx, chunks)
	res.records = records
	if failure != nil {
		res.failedIDs = failure.FailedChunkIDs
		res.cause = failure.Cause
	}
	return res
}
