package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// FileBackend stores the cache as one JSON object keyed by lot id. Every save
// writes a temp file in the same directory, fsyncs it and renames it over the
// previous file, so a crash leaves either the old or the new version.
type FileBackend struct {
	path string

	// rename is swapped in tests to simulate a crash before promotion.
	rename func(oldpath, newpath string) error
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, rename: os.Rename}
}

// Location returns the cache file path.
func (b *FileBackend) Location() string { return b.path }

// Load reads the cache file. A missing file is an empty cache.
func (b *FileBackend) Load(_ context.Context) (map[string]model.CacheEntry, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]model.CacheEntry{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: read file")
	}
	entries := make(map[string]model.CacheEntry)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "cache: decode file")
	}
	return entries, nil
}

// Save rewrites the whole file atomically.
func (b *FileBackend) Save(_ context.Context, snapshot map[string]model.CacheEntry, _ []string) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "cache: create dir")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	tmpName := tmp.Name()
	promoted := false
	defer func() {
		if !promoted {
			_ = os.Remove(tmpName)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		tmp.Close()
		return eris.Wrap(err, "cache: encode")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "cache: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "cache: close temp file")
	}

	if err := b.rename(tmpName, b.path); err != nil {
		return eris.Wrap(err, "cache: rename temp file")
	}
	promoted = true

	syncDir(dir)
	return nil
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error { return nil }

// syncDir persists the rename. Some filesystems reject directory fsync, so
// failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
