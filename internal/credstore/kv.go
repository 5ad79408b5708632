package credstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no record matches a lookup: a missing
// document key, an unknown identity id, or a token query with no match.
var ErrNotFound = errors.New("credstore: not found")

// KV is the injected persistence capability: one JSON document per logical
// key. Implementations only need these two methods; Get reports a missing
// key as ErrNotFound.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// FileKV stores each document as <dir>/<key>.json with owner-only
// permissions.
type FileKV struct {
	dir string
}

// NewFileKV creates the backing directory under base (a dot directory, like
// a config home) and returns the adapter.
func NewFileKV(base string) (*FileKV, error) {
	dir := filepath.Join(base, ".paylink")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *FileKV) Set(key string, value []byte) error {
	return os.WriteFile(f.path(key), value, 0o600)
}

// path flattens the key to its base name so callers cannot escape the
// backing directory.
func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, filepath.Base(key)+".json")
}
