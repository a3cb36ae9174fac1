// Package cache provides durable poster stores keyed by request fingerprint.
// Entries are written once per key and never evicted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/internal/fileutil"
)

// Compile-time interface checks.
var (
	_ mdposter.Cache = (*FileStore)(nil)
	_ mdposter.Cache = (*S3Store)(nil)
)

// ErrInvalidKey is returned for keys that are not fingerprints.
var ErrInvalidKey = errors.New("invalid cache key")

// Ext is the file extension of stored posters.
const Ext = ".png"

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// FileStore keeps one file per key under a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first write.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty cache directory", mdposter.ErrCacheIO)
	}
	return &FileStore{root: filepath.Clean(dir)}, nil
}

// Path returns where key is stored. Keys are validated by Get and Put.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.root, key+Ext)
}

// Get reads the poster stored under key. A missing file is a miss.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.Path(key)) // #nosec G304 -- key is validated hex
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: reading %s: %v", mdposter.ErrCacheIO, key, err)
	}
	return data, true, nil
}

// Put stores data under key, replacing any previous entry atomically.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return fmt.Errorf("%w: creating %s: %v", mdposter.ErrCacheIO, s.root, err)
	}
	if err := fileutil.WriteFileAtomic(s.Path(key), data, filePerm); err != nil {
		return fmt.Errorf("%w: writing %s: %v", mdposter.ErrCacheIO, key, err)
	}
	return nil
}

func checkKey(key string) error {
	if !mdposter.IsValidKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
