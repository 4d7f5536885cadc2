// Package chunk splits raw document text into bounded, overlap-linked chunks,
// the atomic unit of embedding and retrieval. Chunking is a pure function of
// the input text and the configured window parameters: no I/O, no shared
// state, safe for concurrent use across documents.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrConfiguration indicates invalid chunking parameters. It is returned at
// construction time so a bad configuration fails the whole run up front,
// never per document.
var ErrConfiguration = errors.New("invalid chunking configuration")

// separators is the priority-ordered list of split points. The chunker
// prefers the largest separator that still produces a piece within the size
// budget: paragraph break, then line break, then sentence end, then word
// boundary. When none is found the text is cut at the size limit.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk is a contiguous substring of a source document together with its
// provenance. Adjacent chunks of the same document share the configured
// overlap, extended backward to the nearest rune boundary when the overlap
// would begin mid-rune; slicing the source by StartOffset and Length
// reproduces each chunk verbatim.
type Chunk struct {
	// ID uniquely identifies the chunk across the whole corpus.
	ID string

	// DocumentName names the source document the chunk was cut from.
	DocumentName string

	// Text is the chunk content, a verbatim substring of the source.
	Text string

	// Index is the 0-based position of the chunk within its document.
	Index int

	// StartOffset is the byte offset of Text within the source document.
	StartOffset int

	// Length is len(Text).
	Length int
}

// Config holds the chunking window parameters.
type Config struct {
	// MaxSize is the maximum chunk length in bytes. Defaults to 1000.
	MaxSize int

	// Overlap is the number of bytes shared between adjacent chunks.
	// Defaults to 150. Must be strictly smaller than MaxSize.
	Overlap int

	// IDPolicy selects how chunk identifiers are generated.
	// Defaults to IDDeterministic.
	IDPolicy IDPolicy
}

// Chunker splits document text into overlapping windows. Construct with
// [New]; the zero value is not usable.
type Chunker struct {
	// maxSize is the resolved maximum chunk length.
	maxSize int

	// overlap is the resolved inter-chunk overlap.
	overlap int

	// newID generates an identifier for a chunk.
	newID idFunc
}

// New validates cfg and constructs a Chunker. An overlap greater than or
// equal to the maximum size can never make forward progress and is rejected
// with [ErrConfiguration].
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 1000
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 150
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("chunk: max size %d must be positive: %w", cfg.MaxSize, ErrConfiguration)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("chunk: overlap %d must not be negative: %w", cfg.Overlap, ErrConfiguration)
	}
	if cfg.Overlap >= cfg.MaxSize {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than max size %d: %w",
			cfg.Overlap, cfg.MaxSize, ErrConfiguration)
	}

	newID, err := idGenerator(cfg.IDPolicy)
	if err != nil {
		return nil, err
	}

	return &Chunker{
		maxSize: cfg.MaxSize,
		overlap: cfg.Overlap,
		newID:   newID,
	}, nil
}

// Split cuts text into an ordered sequence of chunks for the named document.
// Every chunk is at most MaxSize bytes and always valid UTF-8 when the
// source is; each chunk after the first begins with at least the final
// Overlap bytes of its predecessor. A document no longer than MaxSize yields
// a single chunk with no overlap. Empty or whitespace-only text yields no
// chunks. Surrounding whitespace is not chunked, but StartOffset stays
// relative to the untrimmed source.
func (c *Chunker) Split(documentName, text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	base := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	text = trimmed

	var chunks []Chunk
	start := 0
	for index := 0; ; index++ {
		end := c.cut(text, start)
		piece := text[start:end]

		chunks = append(chunks, Chunk{
			ID:           c.newID(documentName, index, base+start),
			DocumentName: documentName,
			Text:         piece,
			Index:        index,
			StartOffset:  base + start,
			Length:       len(piece),
		})

		if end == len(text) {
			break
		}
		next := runeStart(text, end-c.overlap)
		if next <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			next = start + size
		}
		start = next
	}

	return chunks
}

// cut returns the end offset of the chunk starting at start. The remainder
// fits in one chunk when it is within the size budget; otherwise the cut
// lands just after the last occurrence of the highest-priority separator
// inside the window, falling back to a hard cut at the size limit. A cut is
// only accepted when it advances past the overlap region, so the next chunk
// always makes forward progress.
//
// A cut never lands mid-rune. Separators are ASCII, so separator cuts are
// always on a rune boundary; a hard cut that would land inside a multi-byte
// rune snaps back to the start of that rune.
func (c *Chunker) cut(text string, start int) int {
	if len(text)-start <= c.maxSize {
		return len(text)
	}

	window := text[start : start+c.maxSize]
	for _, sep := range separators {
		i := strings.LastIndex(window, sep)
		if i < 0 {
			continue
		}
		end := start + i + len(sep)
		if end-start > c.overlap {
			return end
		}
	}

	end := runeStart(text, start+c.maxSize)
	// Forward progress wins over the size cap in the degenerate case where
	// snapping lands the cut inside the overlap region.
	for end-start <= c.overlap {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return end
}

// runeStart snaps i backward to the start of the rune containing text[i].
func runeStart(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
