package index

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/grounder-ai/grounder/internal/chunk"
	"github.com/grounder-ai/grounder/internal/embed"
)

// testRecords builds n embedding records across two documents.
func testRecords(n int) []embed.Record {
	records := make([]embed.Record, n)
	for i := range records {
		doc := "alpha.md"
		if i%2 == 1 {
			doc = "beta.txt"
		}
		ch := chunk.Chunk{
			ID:           fmt.Sprintf("id-%03d", i),
			DocumentName: doc,
			Text:         fmt.Sprintf("chunk %d text", i),
			Index:        i / 2,
			StartOffset:  i * 100,
			Length:       12,
		}
		records[i] = embed.Record{
			ChunkID: ch.ID,
			Vector:  []float32{float32(i), 0.25, -1},
			Chunk:   ch,
		}
	}
	return records
}

func TestMaterializePayloadAndMapAgree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := NewMaterializer(root, 0)

	arts, err := m.Materialize("v1", testRecords(7))
	if err != nil {
		t.Fatalf("Materialize() unexpected error: %v", err)
	}
	if arts.ChunkCount != 7 {
		t.Errorf("ChunkCount = %d, want 7", arts.ChunkCount)
	}

	// The set of payload ids must equal the set of detail-map keys — no
	// subset or superset in either direction.
	payloadIDs := make(map[string]bool)
	for _, rel := range arts.ShardFiles {
		recs, err := ReadShard(filepath.Join(arts.Dir, rel))
		if err != nil {
			t.Fatalf("ReadShard(%s): %v", rel, err)
		}
		for _, rec := range recs {
			if payloadIDs[rec.ID] {
				t.Errorf("payload contains duplicate id %s", rec.ID)
			}
			payloadIDs[rec.ID] = true
		}
	}

	details, err := ReadDetailMap(filepath.Join(arts.Dir, arts.DetailMapFile))
	if err != nil {
		t.Fatalf("ReadDetailMap(): %v", err)
	}
	if len(details) != len(payloadIDs) {
		t.Fatalf("detail map has %d entries, payload has %d ids", len(details), len(payloadIDs))
	}
	for id := range payloadIDs {
		if _, ok := details[id]; !ok {
			t.Errorf("payload id %s missing from detail map", id)
		}
	}
}

func TestMaterializeDetailEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	arts, err := NewMaterializer(root, 0).Materialize("v1", testRecords(2))
	if err != nil {
		t.Fatalf("Materialize() unexpected error: %v", err)
	}

	details, err := ReadDetailMap(filepath.Join(arts.Dir, arts.DetailMapFile))
	if err != nil {
		t.Fatalf("ReadDetailMap(): %v", err)
	}

	entry, ok := details["id-001"]
	if !ok {
		t.Fatal("detail map missing id-001")
	}
	if entry.SourceDocumentName != "beta.txt" {
		t.Errorf("SourceDocumentName = %q, want beta.txt", entry.SourceDocumentName)
	}
	if entry.ChunkText != "chunk 1 text" {
		t.Errorf("ChunkText = %q", entry.ChunkText)
	}
	if entry.StartOffset != 100 {
		t.Errorf("StartOffset = %d, want 100", entry.StartOffset)
	}
}

func TestMaterializeShardRotation(t *testing.T) {
	t.Parallel()

	// A tiny shard limit forces rotation; all shards together still form
	// one logical ingestion set.
	root := t.TempDir()
	arts, err := NewMaterializer(root, 200).Materialize("v1", testRecords(10))
	if err != nil {
		t.Fatalf("Materialize() unexpected error: %v", err)
	}
	if len(arts.ShardFiles) < 2 {
		t.Fatalf("expected shard rotation, got %d shard(s)", len(arts.ShardFiles))
	}

	total := 0
	var lastID string
	for _, rel := range arts.ShardFiles {
		recs, err := ReadShard(filepath.Join(arts.Dir, rel))
		if err != nil {
			t.Fatalf("ReadShard(%s): %v", rel, err)
		}
		for _, rec := range recs {
			// Shard boundaries must not disturb record order.
			if lastID != "" && rec.ID <= lastID {
				t.Errorf("record order broken across shards: %s after %s", rec.ID, lastID)
			}
			lastID = rec.ID
			total++
		}
	}
	if total != 10 {
		t.Errorf("shards contain %d records, want 10", total)
	}
}

func TestMaterializeRestrictTags(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	arts, err := NewMaterializer(root, 0).Materialize("v1", testRecords(1))
	if err != nil {
		t.Fatalf("Materialize() unexpected error: %v", err)
	}

	recs, err := ReadShard(filepath.Join(arts.Dir, arts.ShardFiles[0]))
	if err != nil {
		t.Fatalf("ReadShard(): %v", err)
	}
	if len(recs[0].Restricts) != 2 {
		t.Fatalf("record has %d restricts, want 2", len(recs[0].Restricts))
	}
	if recs[0].Restricts[0].Namespace != RestrictSourceDocument || recs[0].Restricts[0].Allow[0] != "alpha.md" {
		t.Errorf("source_document restrict = %+v", recs[0].Restricts[0])
	}
}

func TestMaterializeRejectsEmptyRun(t *testing.T) {
	t.Parallel()

	if _, err := NewMaterializer(t.TempDir(), 0).Materialize("v1", nil); err == nil {
		t.Fatal("Materialize() with no records expected error, got nil")
	}
}

// Chunk text must survive materialization byte for byte, including text the
// chunker cut from a document with no ASCII separators at all.
func TestMaterializeDetailMapPreservesMultiByteText(t *testing.T) {
	t.Parallel()

	chunker, err := chunk.New(chunk.Config{MaxSize: 1000, Overlap: 150})
	if err != nil {
		t.Fatalf("chunk.New(): %v", err)
	}
	chunks := chunker.Split("notes.md", strings.Repeat("患者の状態は安定しています。", 120))
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want at least 2", len(chunks))
	}

	records := make([]embed.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = embed.Record{ChunkID: ch.ID, Vector: []float32{1}, Chunk: ch}
	}

	arts, err := NewMaterializer(t.TempDir(), 0).Materialize("v1", records)
	if err != nil {
		t.Fatalf("Materialize() unexpected error: %v", err)
	}
	details, err := ReadDetailMap(filepath.Join(arts.Dir, arts.DetailMapFile))
	if err != nil {
		t.Fatalf("ReadDetailMap(): %v", err)
	}

	for _, ch := range chunks {
		entry, ok := details[ch.ID]
		if !ok {
			t.Fatalf("chunk %s missing from detail map", ch.ID)
		}
		if !utf8.ValidString(entry.ChunkText) {
			t.Errorf("chunk %d text is not valid UTF-8 after the round trip", ch.Index)
		}
		if entry.ChunkText != ch.Text {
			t.Errorf("chunk %d text altered by the round trip", ch.Index)
		}
	}
}
