package chunk

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}, wantErr: false},
		{name: "explicit valid", cfg: Config{MaxSize: 500, Overlap: 50}, wantErr: false},
		{name: "overlap equals max size", cfg: Config{MaxSize: 100, Overlap: 100}, wantErr: true},
		{name: "overlap exceeds max size", cfg: Config{MaxSize: 100, Overlap: 200}, wantErr: true},
		{name: "negative max size", cfg: Config{MaxSize: -1, Overlap: 10}, wantErr: true},
		{name: "negative overlap", cfg: Config{MaxSize: 100, Overlap: -5}, wantErr: true},
		{name: "unknown id policy", cfg: Config{MaxSize: 100, Overlap: 10, IDPolicy: "content-hash"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				if !errors.Is(err, ErrConfiguration) {
					t.Errorf("New() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
		})
	}
}

func TestSplitScenario2500(t *testing.T) {
	t.Parallel()

	// 2,500 characters, max 1000, overlap 150 → exactly 3 chunks with
	// windows [0,1000), [850,1850), [1700,2500).
	c := mustChunker(t, Config{MaxSize: 1000, Overlap: 150})
	text := strings.Repeat("a", 2500)

	chunks := c.Split("doc.txt", text)
	if len(chunks) != 3 {
		t.Fatalf("Split() produced %d chunks, want 3", len(chunks))
	}

	head := chunks[1].Text[:150]
	tail := chunks[0].Text[len(chunks[0].Text)-150:]
	if head != tail {
		t.Errorf("chunk 2 head does not equal chunk 1 tail")
	}
	if chunks[2].StartOffset+chunks[2].Length != 2500 {
		t.Errorf("final chunk ends at %d, want 2500", chunks[2].StartOffset+chunks[2].Length)
	}
}

func TestSplitReconstructsDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		cfg  Config
	}{
		{
			name: "paragraph separated prose",
			text: strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog.\n\n", 60)),
			cfg:  Config{MaxSize: 400, Overlap: 60},
		},
		{
			name: "single long line with spaces",
			text: strings.TrimSpace(strings.Repeat("word ", 500)),
			cfg:  Config{MaxSize: 300, Overlap: 40},
		},
		{
			name: "no separators at all",
			text: strings.Repeat("x", 1234),
			cfg:  Config{MaxSize: 200, Overlap: 25},
		},
		{
			name: "newline separated lines",
			text: strings.TrimSpace(strings.Repeat("a line of text here\n", 100)),
			cfg:  Config{MaxSize: 250, Overlap: 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := mustChunker(t, tt.cfg)
			chunks := c.Split("doc.md", tt.text)
			if len(chunks) == 0 {
				t.Fatal("Split() produced no chunks")
			}

			// Trimming the overlap from every chunk after the first and
			// concatenating must reproduce the source text exactly.
			var sb strings.Builder
			for i, ch := range chunks {
				if i == 0 {
					sb.WriteString(ch.Text)
					continue
				}
				sb.WriteString(ch.Text[tt.cfg.Overlap:])
			}
			if sb.String() != tt.text {
				t.Error("overlap-trimmed concatenation does not reconstruct the document")
			}

			for _, ch := range chunks {
				if ch.Length > tt.cfg.MaxSize {
					t.Errorf("chunk %d length %d exceeds max size %d", ch.Index, ch.Length, tt.cfg.MaxSize)
				}
				if got := tt.text[ch.StartOffset : ch.StartOffset+ch.Length]; got != ch.Text {
					t.Errorf("chunk %d text does not match its offsets", ch.Index)
				}
			}
		})
	}
}

func TestSplitMultiByteText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		cfg  Config
	}{
		{
			// No ASCII separator anywhere, so every cut is a hard cut.
			name: "cjk prose",
			text: strings.Repeat("患者の状態は安定しています。", 120),
			cfg:  Config{MaxSize: 1000, Overlap: 150},
		},
		{
			name: "accented prose with spaces",
			text: strings.TrimSpace(strings.Repeat("Ingestión de córpora más allá del ASCII. ", 80)),
			cfg:  Config{MaxSize: 300, Overlap: 40},
		},
		{
			// Four-byte runes with a size limit and overlap that both land
			// mid-rune, forcing the boundary snap on every cut.
			name: "four byte runes",
			text: strings.Repeat("𝕒𝕓𝕔𝕕", 200),
			cfg:  Config{MaxSize: 122, Overlap: 18},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := mustChunker(t, tt.cfg)
			chunks := c.Split("doc.md", tt.text)
			if len(chunks) < 2 {
				t.Fatalf("Split() produced %d chunks, want at least 2", len(chunks))
			}

			for i, ch := range chunks {
				if !utf8.ValidString(ch.Text) {
					t.Errorf("chunk %d is not valid UTF-8", i)
				}
				if ch.Length > tt.cfg.MaxSize {
					t.Errorf("chunk %d length %d exceeds max size %d", i, ch.Length, tt.cfg.MaxSize)
				}
				if got := tt.text[ch.StartOffset : ch.StartOffset+ch.Length]; got != ch.Text {
					t.Errorf("chunk %d text does not match its offsets", i)
				}
			}

			for i := 1; i < len(chunks); i++ {
				prevEnd := chunks[i-1].StartOffset + chunks[i-1].Length
				if got := prevEnd - chunks[i].StartOffset; got < tt.cfg.Overlap {
					t.Errorf("chunk %d shares %d bytes with its predecessor, want at least %d",
						i, got, tt.cfg.Overlap)
				}
			}
			last := chunks[len(chunks)-1]
			if last.StartOffset+last.Length != len(tt.text) {
				t.Errorf("final chunk ends at %d, want %d", last.StartOffset+last.Length, len(tt.text))
			}
		})
	}
}

func TestSplitOffsetsRelativeToUntrimmedSource(t *testing.T) {
	t.Parallel()

	source := "\n\n\t  " + strings.TrimSpace(strings.Repeat("offset arithmetic against the raw file. ", 20)) + "  \n"
	c := mustChunker(t, Config{MaxSize: 200, Overlap: 30})

	chunks := c.Split("doc.txt", source)
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want at least 2", len(chunks))
	}
	if chunks[0].StartOffset != 5 {
		t.Errorf("first chunk starts at %d, want 5", chunks[0].StartOffset)
	}
	for i, ch := range chunks {
		if got := source[ch.StartOffset : ch.StartOffset+ch.Length]; got != ch.Text {
			t.Errorf("chunk %d text does not match its source offsets", i)
		}
	}
}

func TestSplitShortDocument(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, Config{MaxSize: 1000, Overlap: 150})
	chunks := c.Split("short.txt", "a document well under the size limit")

	if len(chunks) != 1 {
		t.Fatalf("Split() produced %d chunks, want 1", len(chunks))
	}
	if chunks[0].StartOffset != 0 || chunks[0].Index != 0 {
		t.Errorf("single chunk has offset %d index %d, want 0/0", chunks[0].StartOffset, chunks[0].Index)
	}
}

func TestSplitEmptyDocument(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, Config{})
	if got := c.Split("empty.txt", "   \n\n  "); got != nil {
		t.Errorf("Split() on whitespace-only text = %d chunks, want none", len(got))
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, Config{MaxSize: 100, Overlap: 10})
	text := strings.Repeat("b", 60) + "\n\n" + strings.Repeat("c", 200)

	chunks := c.Split("doc.txt", text)
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want at least 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Errorf("first chunk does not end at the paragraph boundary: %q", chunks[0].Text)
	}
}

func TestDeterministicIDsStableAcrossRuns(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("Stable identity matters for citations.\n\n", 30)

	first := mustChunker(t, Config{MaxSize: 300, Overlap: 40}).Split("guide.md", text)
	second := mustChunker(t, Config{MaxSize: 300, Overlap: 40}).Split("guide.md", text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ across runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d id changed across runs: %s vs %s", i, first[i].ID, second[i].ID)
		}
		if first[i].StartOffset != second[i].StartOffset || first[i].Text != second[i].Text {
			t.Errorf("chunk %d boundaries changed across runs", i)
		}
	}

	// Same text under a different document name must produce different ids.
	other := mustChunker(t, Config{MaxSize: 300, Overlap: 40}).Split("other.md", text)
	if other[0].ID == first[0].ID {
		t.Error("chunk ids collide across documents")
	}
}

func TestRandomIDsUniquePerRun(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, Config{MaxSize: 200, Overlap: 20, IDPolicy: IDRandom})
	text := strings.Repeat("fresh identifiers every run ", 40)

	seen := make(map[string]bool)
	for _, ch := range c.Split("doc.txt", text) {
		if seen[ch.ID] {
			t.Fatalf("duplicate chunk id %s", ch.ID)
		}
		seen[ch.ID] = true
	}

	again := c.Split("doc.txt", text)
	if again[0].ID == "" || seen[again[0].ID] {
		t.Error("random id policy reused an identifier across runs")
	}
}

// mustChunker constructs a Chunker or fails the test.
func mustChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return c
}
