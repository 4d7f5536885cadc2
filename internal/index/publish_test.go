package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPublishAndLoadManifest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	arts, err := NewMaterializer(root, 0).Materialize("v1", testRecords(3))
	if err != nil {
		t.Fatalf("Materialize(): %v", err)
	}

	m, err := Publish(root, arts)
	if err != nil {
		t.Fatalf("Publish() unexpected error: %v", err)
	}
	if m.Version != "v1" || m.ChunkCount != 3 {
		t.Errorf("manifest = %+v", m)
	}

	loaded, err := LoadManifest(root)
	if err != nil {
		t.Fatalf("LoadManifest() unexpected error: %v", err)
	}
	if loaded.Version != "v1" {
		t.Errorf("loaded version = %q, want v1", loaded.Version)
	}
	if got := loaded.VersionDir(root); got != filepath.Join(root, "versions", "v1") {
		t.Errorf("VersionDir() = %q", got)
	}

	// No stray manifest temp files may survive a successful publish.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != manifestFile && e.Name() != "versions" {
			t.Errorf("unexpected file in index root: %s", e.Name())
		}
	}
}

func TestPublishReplacesPriorVersion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mat := NewMaterializer(root, 0)

	for _, version := range []string{"v1", "v2"} {
		arts, err := mat.Materialize(version, testRecords(2))
		if err != nil {
			t.Fatalf("Materialize(%s): %v", version, err)
		}
		if _, err := Publish(root, arts); err != nil {
			t.Fatalf("Publish(%s): %v", version, err)
		}
	}

	m, err := LoadManifest(root)
	if err != nil {
		t.Fatalf("LoadManifest(): %v", err)
	}
	if m.Version != "v2" {
		t.Errorf("published version = %q, want v2", m.Version)
	}

	// The superseded version's artifacts stay on disk untouched.
	if _, err := os.Stat(filepath.Join(root, "versions", "v1", detailMapFile)); err != nil {
		t.Errorf("prior version artifacts missing: %v", err)
	}
}

func TestLoadManifestNoneYet(t *testing.T) {
	t.Parallel()

	_, err := LoadManifest(t.TempDir())
	if !errors.Is(err, ErrNoManifest) {
		t.Fatalf("LoadManifest() error = %v, want ErrNoManifest", err)
	}
}

func TestAcquireLockRejectsSecondRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	release, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("AcquireLock() unexpected error: %v", err)
	}

	if _, err := AcquireLock(root); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquireLock() error = %v, want ErrLocked", err)
	}

	release()
	release2, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("AcquireLock() after release: %v", err)
	}
	release2()
}
