// Package embed converts chunk text and query text into fixed-dimension
// vectors via an external embedding service. Concrete backends (OpenAI,
// Azure OpenAI, Ollama, Gemini) implement the Embedder interface over plain
// HTTP or the vendor SDK; the Batcher layers batch partitioning, retry with
// backoff, rate limiting, and partial-failure isolation on top.
package embed

import (
	"context"
	"fmt"

	"github.com/grounder-ai/grounder/internal/chunk"
)

// Embedder converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input: the i-th vector embeds the
// i-th text. The embedding dimension is fixed by the backing service and is
// configuration, never a hard-coded constant. Implementations must be safe
// for concurrent use.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Record pairs a chunk with its embedding vector. Records are the unit
// handed to the index materializer; every record corresponds to exactly one
// chunk-detail entry.
type Record struct {
	// ChunkID is the identifier of the embedded chunk.
	ChunkID string

	// Vector is the embedding, dimension fixed by the service.
	Vector []float32

	// Chunk carries the source text and provenance for the detail map and
	// the restrict tags.
	Chunk chunk.Chunk
}

// Failure reports the chunks whose embedding sub-batches exhausted their
// retries. It is returned alongside the successful records: partial success
// is the expected outcome of a degraded run, not an abort.
type Failure struct {
	// FailedChunkIDs lists every chunk whose sub-batch failed permanently,
	// in input order.
	FailedChunkIDs []string

	// Cause is the first error that exhausted a sub-batch's retries.
	Cause error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("embed: %d chunks failed to embed: %v", len(f.FailedChunkIDs), f.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (f *Failure) Unwrap() error { return f.Cause }
