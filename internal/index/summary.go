package index

import (
	"log/slog"
	"time"
)

// Event is one structured, leveled record of something that happened during
// an indexing run: a document failure, a degraded embedding batch, a publish
// milestone. Events replace ad hoc progress printing so callers can
// aggregate run outcomes without parsing text.
type Event struct {
	// Level is the event severity.
	Level slog.Level `json:"level"`

	// Message describes what happened.
	Message string `json:"message"`

	// Document names the affected document, when the event is per-document.
	Document string `json:"document,omitempty"`

	// ChunkID identifies the affected chunk, when the event is per-chunk.
	ChunkID string `json:"chunk_id,omitempty"`
}

// RunSummary is the structured outcome of one indexing run. Failures are
// collected here rather than aborting unrelated documents; the caller
// inspects the summary to decide whether a degraded run is acceptable.
type RunSummary struct {
	// RunID identifies the run and names its version directory.
	RunID string `json:"run_id"`

	// StartedAt and FinishedAt bound the run's wall-clock duration.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// DocumentsSucceeded counts documents with at least one embedded chunk.
	DocumentsSucceeded int `json:"documents_succeeded"`

	// DocumentsFailed counts documents that failed to load or produced no
	// embedded chunks.
	DocumentsFailed int `json:"documents_failed"`

	// ChunksEmbedded counts chunks present in the published payload.
	ChunksEmbedded int `json:"chunks_embedded"`

	// ChunksFailed counts chunks whose embedding sub-batch failed.
	ChunksFailed int `json:"chunks_failed"`

	// Version is the published corpus version, empty when publish failed.
	Version string `json:"version,omitempty"`

	// Events are the run's per-item anomaly and milestone records.
	Events []Event `json:"events,omitempty"`
}

// AddEvent appends a structured event to the summary.
func (s *RunSummary) AddEvent(level slog.Level, message, document, chunkID string) {
	s.Events = append(s.Events, Event{
		Level:    level,
		Message:  message,
		Document: document,
		ChunkID:  chunkID,
	})
}

// AddDocumentFailure records a document that failed before chunking, e.g. a
// load error. The run continues for all other documents.
func (s *RunSummary) AddDocumentFailure(document string, err error) {
	s.DocumentsFailed++
	s.AddEvent(slog.LevelError, "document failed: "+err.Error(), document, "")
}
