package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrPublish indicates a failed manifest update. The previously published
// version remains authoritative and untouched.
var ErrPublish = errors.New("index publish failed")

// ErrLocked indicates another indexing run currently holds the run lock.
var ErrLocked = errors.New("another indexing run is in progress")

// ErrNoManifest indicates no corpus version has been published yet.
var ErrNoManifest = errors.New("no published index manifest")

// manifestFile is the pointer the query path resolves the live corpus
// version through, relative to the index root.
const manifestFile = "manifest.json"

// lockFile coordinates the single-active-run invariant, relative to the
// index root.
const lockFile = "index.lock"

// Manifest points the query path at the currently published corpus version.
// The manifest is the only mutable file in the index root; everything it
// references is immutable once written.
type Manifest struct {
	// Version is the published version directory name under versions/.
	Version string `json:"version"`

	// CreatedAt is when the version was published.
	CreatedAt time.Time `json:"created_at"`

	// ChunkCount is the number of chunks in the published corpus.
	ChunkCount int `json:"chunk_count"`

	// ShardFiles are the payload shard paths relative to the version dir.
	ShardFiles []string `json:"shard_files"`

	// DetailMapFile is the chunk-detail map path relative to the version dir.
	DetailMapFile string `json:"detail_map_file"`
}

// VersionDir returns the absolute directory of the published version.
func (m *Manifest) VersionDir(root string) string {
	return filepath.Join(root, "versions", m.Version)
}

// Publish makes arts the live corpus version. The manifest is written to a
// temporary file and renamed into place, so an in-flight query observes
// either the old version or the new one, never a half-published corpus.
func Publish(root string, arts *Artifacts) (*Manifest, error) {
	m := &Manifest{
		Version:       arts.Version,
		CreatedAt:     time.Now().UTC(),
		ChunkCount:    arts.ChunkCount,
		ShardFiles:    arts.ShardFiles,
		DetailMapFile: arts.DetailMapFile,
	}

	tmp, err := os.CreateTemp(root, manifestFile+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("index: create manifest temp file: %w", errors.Join(ErrPublish, err))
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("index: encode manifest: %w", errors.Join(ErrPublish, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("index: close manifest temp file: %w", errors.Join(ErrPublish, err))
	}

	if err := os.Rename(tmpPath, filepath.Join(root, manifestFile)); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("index: swap manifest: %w", errors.Join(ErrPublish, err))
	}
	return m, nil
}

// LoadManifest reads the currently published manifest. Returns ErrNoManifest
// when no version has been published yet.
func LoadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("index: %w (root %s)", ErrNoManifest, root)
		}
		return nil, fmt.Errorf("index: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("index: parse manifest: %w", err)
	}
	return &m, nil
}

// AcquireLock takes the index root's run lock, preventing two concurrent
// runs from racing on the publish step. The returned release function must
// be called exactly once. Returns ErrLocked when the lock is already held.
func AcquireLock(root string) (release func(), err error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("index: create index root: %w", err)
	}

	path := filepath.Join(root, lockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("index: %w (lock file %s)", ErrLocked, path)
		}
		return nil, fmt.Errorf("index: create lock file: %w", err)
	}
	fmt.Fprintf(f, "pid %d\n", os.Getpid())
	f.Close()

	return func() { os.Remove(path) }, nil
}
