// Package corpus loads the source documents that feed the indexing pipeline.
// Plain-text and markdown files are supported; markdown is reduced to plain
// text before chunking so headings, emphasis markers, and table syntax never
// pollute the embedded content.
//
// A document that fails to load isolates only itself: the failure is
// recorded and the remaining documents are still returned, so one corrupt
// file never aborts an indexing run.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is an immutable source document, identified by its file name
// within the corpus directory. Re-ingesting a document replaces the chunks
// previously derived from it.
type Document struct {
	// Name is the document identifier, the base file name (e.g. "triage.md").
	Name string

	// Path is the absolute or corpus-relative location the text was read from.
	Path string

	// Text is the plain-text content, markdown already stripped.
	Text string
}

// LoadFailure records a single document that could not be loaded.
type LoadFailure struct {
	// Path is the file that failed.
	Path string

	// Err is the underlying cause.
	Err error
}

// Result holds the outcome of loading a corpus directory: the documents
// that loaded and the per-file failures that were isolated.
type Result struct {
	// Documents are the successfully loaded documents, in directory order.
	Documents []Document

	// Failed lists files that could not be read or parsed.
	Failed []LoadFailure
}

// LoadDir reads every supported file directly under dir. Unsupported
// extensions and subdirectories are skipped silently; files that exist but
// cannot be read are recorded in Result.Failed. The returned error is
// non-nil only when the directory itself is unreadable.
func LoadDir(dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus: reading directory %s: %w", dir, err)
	}

	res := &Result{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		var text string
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".txt":
			raw, err := os.ReadFile(path)
			if err != nil {
				res.Failed = append(res.Failed, LoadFailure{Path: path, Err: err})
				continue
			}
			text = string(raw)
		case ".md", ".markdown":
			raw, err := os.ReadFile(path)
			if err != nil {
				res.Failed = append(res.Failed, LoadFailure{Path: path, Err: err})
				continue
			}
			text = markdownText(raw)
		default:
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			res.Failed = append(res.Failed, LoadFailure{
				Path: path,
				Err:  fmt.Errorf("corpus: document %s has no content", entry.Name()),
			})
			continue
		}

		res.Documents = append(res.Documents, Document{
			Name: entry.Name(),
			Path: path,
			Text: text,
		})
	}

	return res, nil
}
