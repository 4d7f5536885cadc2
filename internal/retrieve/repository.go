package retrieve

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/grounder-ai/grounder/internal/index"
)

// FileRepository serves chunk details from the published corpus version on
// disk. The detail map is loaded once per published version and kept in
// memory; Reload picks up a newly published version without restarting.
type FileRepository struct {
	// root is the index root holding the manifest.
	root string

	mu      sync.RWMutex
	version string
	details map[string]index.DetailEntry
}

// NewFileRepository opens the currently published version under root.
// Returns index.ErrNoManifest when nothing has been published yet.
func NewFileRepository(root string) (*FileRepository, error) {
	r := &FileRepository{root: root}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the manifest and, when the published version changed,
// swaps in its detail map. Safe to call concurrently with Details.
func (r *FileRepository) Reload() error {
	m, err := index.LoadManifest(r.root)
	if err != nil {
		return err
	}

	r.mu.RLock()
	current := r.version
	r.mu.RUnlock()
	if m.Version == current {
		return nil
	}

	details, err := index.ReadDetailMap(filepath.Join(m.VersionDir(r.root), m.DetailMapFile))
	if err != nil {
		return fmt.Errorf("retrieve: load detail map for version %s: %w", m.Version, err)
	}

	r.mu.Lock()
	r.version = m.Version
	r.details = details
	r.mu.Unlock()
	return nil
}

// Version returns the corpus version currently served.
func (r *FileRepository) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Details implements ChunkRepository.
func (r *FileRepository) Details(ids []string) (map[string]index.DetailEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]index.DetailEntry, len(ids))
	for _, id := range ids {
		if entry, ok := r.details[id]; ok {
			out[id] = entry
		}
	}
	return out, nil
}

// MemoryRepository is an in-memory ChunkRepository, used by tests and the
// server's readiness fixtures.
type MemoryRepository struct {
	mu      sync.RWMutex
	details map[string]index.DetailEntry
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{details: make(map[string]index.DetailEntry)}
}

// Put stores or replaces the entry for id.
func (r *MemoryRepository) Put(id string, entry index.DetailEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.details[id] = entry
}

// Details implements ChunkRepository.
func (r *MemoryRepository) Details(ids []string) (map[string]index.DetailEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]index.DetailEntry, len(ids))
	for _, id := range ids {
		if entry, ok := r.details[id]; ok {
			out[id] = entry
		}
	}
	return out, nil
}
