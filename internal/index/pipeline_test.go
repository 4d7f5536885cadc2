package index

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grounder-ai/grounder/internal/chunk"
	"github.com/grounder-ai/grounder/internal/corpus"
	"github.com/grounder-ai/grounder/internal/embed"
)

// fakeChunkEmbedder embeds every chunk with a fixed vector, failing the
// chunk indexes listed in failIndexes (per document, 0-based).
type fakeChunkEmbedder struct {
	failIndexes map[int]bool
	err         error
}

func (f *fakeChunkEmbedder) EmbedChunks(_ context.Context, chunks []chunk.Chunk) ([]embed.Record, *embed.Failure) {
	var records []embed.Record
	var failed []string
	for _, ch := range chunks {
		if f.failIndexes[ch.Index] {
			failed = append(failed, ch.ID)
			continue
		}
		records = append(records, embed.Record{
			ChunkID: ch.ID,
			Vector:  []float32{1, 2, 3},
			Chunk:   ch,
		})
	}
	if len(failed) > 0 {
		return records, &embed.Failure{FailedChunkIDs: failed, Cause: f.err}
	}
	return records, nil
}

func testPipeline(t *testing.T, root string, emb ChunkEmbedder) *Pipeline {
	t.Helper()
	chunker, err := chunk.New(chunk.Config{MaxSize: 1000, Overlap: 150})
	if err != nil {
		t.Fatalf("chunk.New(): %v", err)
	}
	p, err := NewPipeline(chunker, emb, NewMaterializer(root, 0), root, PipelineConfig{}, slog.Default())
	if err != nil {
		t.Fatalf("NewPipeline(): %v", err)
	}
	return p
}

func TestRunPublishesDegradedCorpus(t *testing.T) {
	t.Parallel()

	// 3600 separator-free characters split into 5 chunks. Two of them fail
	// to embed; the run must still publish the surviving three and account
	// for every chunk in the summary.
	root := t.TempDir()
	embErr := errors.New("upstream unavailable")
	p := testPipeline(t, root, &fakeChunkEmbedder{
		failIndexes: map[int]bool{2: true, 3: true},
		err:         embErr,
	})

	docs := []corpus.Document{{Name: "big.txt", Text: strings.Repeat("a", 3600)}}
	summary, err := p.Run(context.Background(), "run-1", docs)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if summary.ChunksEmbedded != 3 || summary.ChunksFailed != 2 {
		t.Errorf("summary embedded/failed = %d/%d, want 3/2", summary.ChunksEmbedded, summary.ChunksFailed)
	}
	if summary.DocumentsSucceeded != 1 || summary.DocumentsFailed != 0 {
		t.Errorf("summary document counts = %d/%d, want 1/0", summary.DocumentsSucceeded, summary.DocumentsFailed)
	}
	if summary.Version != "run-1" {
		t.Errorf("summary.Version = %q, want run-1", summary.Version)
	}

	warns := 0
	for _, ev := range summary.Events {
		if ev.Level == slog.LevelWarn && ev.ChunkID != "" {
			warns++
		}
	}
	if warns != 2 {
		t.Errorf("summary has %d failed-chunk events, want 2", warns)
	}

	// The published detail map carries exactly the embedded chunks.
	m, err := LoadManifest(root)
	if err != nil {
		t.Fatalf("LoadManifest(): %v", err)
	}
	details, err := ReadDetailMap(filepath.Join(m.VersionDir(root), m.DetailMapFile))
	if err != nil {
		t.Fatalf("ReadDetailMap(): %v", err)
	}
	if len(details) != 3 {
		t.Errorf("detail map has %d entries, want 3", len(details))
	}
	for _, rel := range m.ShardFiles {
		recs, err := ReadShard(filepath.Join(m.VersionDir(root), rel))
		if err != nil {
			t.Fatalf("ReadShard(): %v", err)
		}
		for _, rec := range recs {
			if _, ok := details[rec.ID]; !ok {
				t.Errorf("payload id %s missing from detail map", rec.ID)
			}
		}
	}
}

func TestRunIsolatesDocumentFailure(t *testing.T) {
	t.Parallel()

	// Index 0 fails in every document, which wipes out single-chunk
	// documents entirely while multi-chunk ones degrade.
	root := t.TempDir()
	p := testPipeline(t, root, &fakeChunkEmbedder{
		failIndexes: map[int]bool{0: true},
		err:         errors.New("permanent"),
	})

	docs := []corpus.Document{
		{Name: "short.txt", Text: "one chunk only"},
		{Name: "long.txt", Text: strings.Repeat("b", 2500)},
	}
	summary, err := p.Run(context.Background(), "run-2", docs)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if summary.DocumentsSucceeded != 1 || summary.DocumentsFailed != 1 {
		t.Errorf("document counts = %d/%d, want 1/1", summary.DocumentsSucceeded, summary.DocumentsFailed)
	}
	if summary.Version == "" {
		t.Error("run with a surviving document did not publish")
	}
}

func TestRunFailsWhenNothingEmbeds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := testPipeline(t, root, &fakeChunkEmbedder{
		failIndexes: map[int]bool{0: true, 1: true, 2: true},
		err:         errors.New("permanent"),
	})

	summary, err := p.Run(context.Background(), "run-3", []corpus.Document{
		{Name: "doc.txt", Text: "some text"},
	})
	if err == nil {
		t.Fatal("Run() with zero embedded chunks expected error, got nil")
	}
	if summary == nil {
		t.Fatal("Run() must return a summary even on failure")
	}
	if summary.DocumentsFailed != 1 {
		t.Errorf("DocumentsFailed = %d, want 1", summary.DocumentsFailed)
	}

	// A failed run publishes nothing.
	if _, err := LoadManifest(root); !errors.Is(err, ErrNoManifest) {
		t.Errorf("LoadManifest() error = %v, want ErrNoManifest", err)
	}
}

func TestRunReleasesLock(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := testPipeline(t, root, &fakeChunkEmbedder{})

	if _, err := p.Run(context.Background(), "run-4", []corpus.Document{
		{Name: "doc.txt", Text: "hello world"},
	}); err != nil {
		t.Fatalf("Run(): %v", err)
	}

	release, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("lock still held after run: %v", err)
	}
	release()
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	release, err := AcquireLock(root)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	p := testPipeline(t, root, &fakeChunkEmbedder{})
	_, err = p.Run(context.Background(), "run-5", []corpus.Document{
		{Name: "doc.txt", Text: "hello world"},
	})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Run() error = %v, want ErrLocked", err)
	}
}
