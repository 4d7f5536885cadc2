package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/grounder-ai/grounder/internal/chunk"
)

// BatcherConfig holds the batching, retry, and throttling parameters for
// chunk embedding.
type BatcherConfig struct {
	// BatchSize is the maximum number of texts per service call, matching
	// the embedding service's request limit. Defaults to 16.
	BatchSize int

	// MaxRetries is the number of retries per sub-batch after the first
	// attempt. Defaults to 3.
	MaxRetries int

	// RetryBaseDelay is the initial backoff delay; each retry doubles it.
	// Defaults to 500ms.
	RetryBaseDelay time.Duration

	// Concurrency is the maximum number of sub-batches in flight at once.
	// Defaults to 4.
	Concurrency int

	// RateLimit caps service calls per second across all sub-batches.
	// Zero means no rate limiting.
	RateLimit float64

	// RequestTimeout bounds each indexing-path service call.
	// Defaults to 60s.
	RequestTimeout time.Duration

	// QueryTimeout bounds each query-path service call. Tighter than the
	// indexing timeout because it sits on the interactive path.
	// Defaults to 10s.
	QueryTimeout time.Duration
}

// Batcher partitions chunk lists into size-bounded sub-batches, embeds them
// with retry and backoff, and reassembles the results in input order. An
// exhausted sub-batch marks only its own chunks failed; the remaining
// sub-batches still run. Safe for concurrent use.
type Batcher struct {
	// embedder is the underlying embedding backend.
	embedder Embedder

	// cfg holds the resolved configuration.
	cfg BatcherConfig

	// limiter throttles service calls. Nil when RateLimit is zero.
	limiter *rate.Limiter

	// log is the structured logger for batch progress and failures.
	log *slog.Logger
}

// NewBatcher constructs a Batcher around the given embedder.
func NewBatcher(embedder Embedder, cfg BatcherConfig, log *slog.Logger) (*Batcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embed: embedder must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}

	b := &Batcher{embedder: embedder, cfg: cfg, log: log}
	if cfg.RateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return b, nil
}

// EmbedChunks embeds every chunk in exactly ⌈N/BatchSize⌉ service calls and
// returns the successful records in input order. When one or more
// sub-batches exhaust their retries, the second return value reports the
// failed chunk ids; it is nil on full success.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []chunk.Chunk) ([]Record, *Failure) {
	if len(chunks) == 0 {
		return nil, nil
	}

	type span struct{ lo, hi int }
	var spans []span
	for lo := 0; lo < len(chunks); lo += b.cfg.BatchSize {
		hi := min(lo+b.cfg.BatchSize, len(chunks))
		spans = append(spans, span{lo, hi})
	}

	// Each goroutine writes a disjoint range of vectors and its own error
	// slot, so no mutex is needed.
	vectors := make([][]float32, len(chunks))
	batchErrs := make([]error, len(spans))

	sem := make(chan struct{}, b.cfg.Concurrency)
	done := make(chan int, len(spans))

	for i, sp := range spans {
		sem <- struct{}{}
		go func(i int, sp span) {
			defer func() { <-sem; done <- i }()

			texts := make([]string, 0, sp.hi-sp.lo)
			for _, ch := range chunks[sp.lo:sp.hi] {
				texts = append(texts, ch.Text)
			}

			vecs, err := b.embedWithRetry(ctx, texts)
			if err != nil {
				batchErrs[i] = err
				return
			}
			copy(vectors[sp.lo:sp.hi], vecs)
		}(i, sp)
	}
	for range spans {
		<-done
	}

	var records []Record
	var failure *Failure
	for i, sp := range spans {
		if err := batchErrs[i]; err != nil {
			if failure == nil {
				failure = &Failure{Cause: err}
			}
			for _, ch := range chunks[sp.lo:sp.hi] {
				failure.FailedChunkIDs = append(failure.FailedChunkIDs, ch.ID)
			}
			b.log.Warn("embed: sub-batch failed permanently",
				slog.Int("batch", i),
				slog.Int("chunks", sp.hi-sp.lo),
				slog.Any("error", err),
			)
			continue
		}
		for j, ch := range chunks[sp.lo:sp.hi] {
			records = append(records, Record{
				ChunkID: ch.ID,
				Vector:  vectors[sp.lo+j],
				Chunk:   ch,
			})
		}
	}

	return records, failure
}

// EmbedQuery embeds a single query string for the interactive retrieval
// path: batch of one, tight timeout, and at most one fast retry — no
// backoff budget on the user-facing path.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, b.cfg.QueryTimeout)
		vecs, err := b.embedder.Embed(callCtx, []string{text})
		cancel()
		if err == nil {
			if len(vecs) != 1 {
				return nil, fmt.Errorf("embed: query embedding returned %d vectors, want 1", len(vecs))
			}
			return vecs[0], nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed: query embedding failed: %w", lastErr)
}

// embedWithRetry runs one sub-batch call with exponential backoff. A
// timed-out call counts as a transient failure like any other error.
func (b *Batcher) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := b.cfg.RetryBaseDelay

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
		vecs, err := b.embedder.Embed(callCtx, texts)
		cancel()
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, fmt.Errorf("embed: service returned %d vectors for %d texts", len(vecs), len(texts))
			}
			return vecs, nil
		}
		lastErr = err

		// Caller cancellation is terminal; do not burn the retry budget.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
