// Package index materializes embedding records into the ingestion format
// consumed by the external vector-similarity service and publishes each
// indexing run atomically: newline-delimited embedding shards, a chunk-detail
// map for query-time hydration, and a manifest that flips the visible corpus
// version only once both artifacts are fully written.
package index

import (
	"strconv"

	"github.com/grounder-ai/grounder/internal/chunk"
)

// Restrict is a coarse pre-filter label attached to an embedding record,
// letting the vector service narrow a search to an allow-listed namespace
// value (e.g. a single source document).
type Restrict struct {
	// Namespace is the filter dimension, e.g. "source_document".
	Namespace string `json:"namespace"`

	// Allow lists the values this record matches within the namespace.
	Allow []string `json:"allow"`
}

// Restrict namespaces attached to every embedding record.
const (
	// RestrictSourceDocument filters by source document name.
	RestrictSourceDocument = "source_document"

	// RestrictChunkIndex filters by the chunk's position in its document.
	RestrictChunkIndex = "chunk_index"
)

// PayloadRecord is one line of the newline-delimited ingestion payload.
type PayloadRecord struct {
	// ID is the chunk identifier the vector service returns from searches.
	ID string `json:"id"`

	// Embedding is the chunk's vector.
	Embedding []float32 `json:"embedding"`

	// Restricts are the record's pre-filter labels.
	Restricts []Restrict `json:"restricts,omitempty"`
}

// DetailEntry is the hydration record for one chunk id: everything the
// retriever needs to turn an opaque search hit back into citable text.
type DetailEntry struct {
	// ChunkText is the chunk's verbatim content.
	ChunkText string `json:"chunk_text"`

	// SourceDocumentName names the document the chunk was cut from.
	SourceDocumentName string `json:"source_document_name"`

	// IndexInDocument is the chunk's 0-based position in its document.
	IndexInDocument int `json:"index_in_document"`

	// StartOffset is the chunk's byte offset into the source document.
	StartOffset int `json:"start_offset"`
}

// restrictsFor builds the standard restrict labels for a chunk.
func restrictsFor(ch chunk.Chunk) []Restrict {
	return []Restrict{
		{Namespace: RestrictSourceDocument, Allow: []string{ch.DocumentName}},
		{Namespace: RestrictChunkIndex, Allow: []string{strconv.Itoa(ch.Index)}},
	}
}

// detailFor builds the hydration entry for a chunk.
func detailFor(ch chunk.Chunk) DetailEntry {
	return DetailEntry{
		ChunkText:          ch.Text,
		SourceDocumentName: ch.DocumentName,
		IndexInDocument:    ch.Index,
		StartOffset:        ch.StartOffset,
	}
}
