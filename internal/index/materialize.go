package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grounder-ai/grounder/internal/embed"
)

// Artifact layout within a version directory.
const (
	// shardsDir holds the newline-delimited embedding payload shards.
	shardsDir = "embeddings_input"

	// detailMapFile is the chunk-detail map, relative to the version dir.
	detailMapFile = "metadata/chunk_details.json"

	// shardPattern names payload shards in rotation order.
	shardPattern = "embeddings-%05d.jsonl"
)

// DefaultShardSize is the payload shard rotation threshold in bytes.
// Downstream bulk ingest treats all shards of a run as one logical set, so
// the exact value only affects file granularity.
const DefaultShardSize = 32 << 20

// Materializer serializes embedding records into the ingestion payload and
// the chunk-detail map for a single indexing run.
type Materializer struct {
	// root is the index root directory; artifacts land under
	// root/versions/<version>/.
	root string

	// shardSize is the payload shard rotation threshold in bytes.
	shardSize int64
}

// Artifacts describes the files produced by one Materialize call.
type Artifacts struct {
	// Version identifies the run's version directory under root/versions.
	Version string

	// Dir is the absolute version directory.
	Dir string

	// ShardFiles are the payload shard paths relative to Dir, in order.
	ShardFiles []string

	// DetailMapFile is the chunk-detail map path relative to Dir.
	DetailMapFile string

	// ChunkCount is the number of records written.
	ChunkCount int
}

// NewMaterializer constructs a Materializer rooted at root. shardSize ≤ 0
// selects DefaultShardSize.
func NewMaterializer(root string, shardSize int64) *Materializer {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return &Materializer{root: root, shardSize: shardSize}
}

// Materialize writes the ingestion payload shards and the chunk-detail map
// for records into a fresh version directory. Both artifacts are produced
// from a single pass over the records, so the set of payload ids and the
// set of detail-map keys are equal by construction. Nothing becomes visible
// to the query path until the version is published.
func (m *Materializer) Materialize(version string, records []embed.Record) (*Artifacts, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("index: no records to materialize")
	}

	dir := filepath.Join(m.root, "versions", version)
	if err := os.MkdirAll(filepath.Join(dir, shardsDir), 0o755); err != nil {
		return nil, fmt.Errorf("index: create version directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(detailMapFile)), 0o755); err != nil {
		return nil, fmt.Errorf("index: create metadata directory: %w", err)
	}

	details := make(map[string]DetailEntry, len(records))

	sw := &shardWriter{dir: dir, limit: m.shardSize}
	for _, rec := range records {
		line, err := json.Marshal(PayloadRecord{
			ID:        rec.ChunkID,
			Embedding: rec.Vector,
			Restricts: restrictsFor(rec.Chunk),
		})
		if err != nil {
			return nil, fmt.Errorf("index: marshal record %s: %w", rec.ChunkID, err)
		}
		if err := sw.writeLine(line); err != nil {
			return nil, err
		}
		details[rec.ChunkID] = detailFor(rec.Chunk)
	}
	shards, err := sw.close()
	if err != nil {
		return nil, err
	}

	mapPath := filepath.Join(dir, detailMapFile)
	data, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("index: marshal chunk-detail map: %w", err)
	}
	if err := os.WriteFile(mapPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("index: write chunk-detail map: %w", err)
	}

	return &Artifacts{
		Version:       version,
		Dir:           dir,
		ShardFiles:    shards,
		DetailMapFile: detailMapFile,
		ChunkCount:    len(records),
	}, nil
}

// shardWriter appends payload lines, rotating to a new shard file once the
// current one exceeds the size limit.
type shardWriter struct {
	// dir is the version directory.
	dir string
	// limit is the rotation threshold in bytes.
	limit int64
	// shards lists the relative paths written so far.
	shards []string
	// f and w are the currently open shard.
	f *os.File
	w *bufio.Writer
	// written is the byte count of the current shard.
	written int64
}

// writeLine appends one payload line, opening or rotating shards as needed.
func (s *shardWriter) writeLine(line []byte) error {
	if s.f != nil && s.written+int64(len(line))+1 > s.limit && s.written > 0 {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	if s.f == nil {
		rel := filepath.Join(shardsDir, fmt.Sprintf(shardPattern, len(s.shards)))
		f, err := os.Create(filepath.Join(s.dir, rel))
		if err != nil {
			return fmt.Errorf("index: create shard %s: %w", rel, err)
		}
		s.f = f
		s.w = bufio.NewWriter(f)
		s.shards = append(s.shards, rel)
		s.written = 0
	}

	n, err := s.w.Write(line)
	if err == nil {
		err = s.w.WriteByte('\n')
	}
	if err != nil {
		return fmt.Errorf("index: write shard line: %w", err)
	}
	s.written += int64(n) + 1
	return nil
}

// rotate flushes and closes the current shard.
func (s *shardWriter) rotate() error {
	if s.f == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("index: flush shard: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("index: close shard: %w", err)
	}
	s.f = nil
	s.w = nil
	return nil
}

// close finalizes the writer and returns the shard paths in write order.
func (s *shardWriter) close() ([]string, error) {
	if err := s.rotate(); err != nil {
		return nil, err
	}
	return s.shards, nil
}

// ReadShard parses one newline-delimited payload shard. Used by the vector
// service loader and by integrity checks.
func ReadShard(path string) ([]PayloadRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open shard %s: %w", path, err)
	}
	defer f.Close()

	var records []PayloadRecord
	sc := bufio.NewScanner(f)
	// Embedding lines are long: a 768-dim float vector is ~10KB of JSON.
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec PayloadRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("index: parse shard %s line %d: %w", path, len(records)+1, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("index: read shard %s: %w", path, err)
	}
	return records, nil
}

// ReadDetailMap parses a chunk-detail map file.
func ReadDetailMap(path string) (map[string]DetailEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: read chunk-detail map %s: %w", path, err)
	}
	var details map[string]DetailEntry
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("index: parse chunk-detail map %s: %w", path, err)
	}
	return details, nil
}
