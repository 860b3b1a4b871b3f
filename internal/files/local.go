package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const digestCacheSize = 4096

type digestKey struct {
	path  string
	size  int64
	mtime time.Time
	fn    DigestFunction
}

// LocalStore serves files below a directory on the local filesystem.
// Digests are memoised by path, size and modification time.
type LocalStore struct {
	root    string
	digests *lru.Cache[digestKey, Digest]
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore returns a store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("files: local store %s: %w", dir, err)
	}
	cache, err := lru.New[digestKey, Digest](digestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("files: local store %s: %w", dir, err)
	}
	return &LocalStore{root: abs, digests: cache}, nil
}

// Root returns the absolute directory the store serves.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) abs(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(Clean(p)))
}

func (s *LocalStore) ReadFile(ctx context.Context, p string) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = Clean(p)
	abs := s.abs(p)
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, fmt.Errorf("files: stat %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", p, ErrNotFound)
	}
	return &localFile{store: s, path: p, abs: abs}, nil
}

func (s *LocalStore) ReadDir(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.abs(p))
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("files: read dir %s: %w", Clean(p), err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

type localFile struct {
	store *LocalStore
	path  string
	abs   string
}

func (f *localFile) Path() string { return f.path }

func (f *localFile) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := os.Open(f.abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(f.path)
	}
	if err != nil {
		return nil, fmt.Errorf("files: open %s: %w", f.path, err)
	}
	return r, nil
}

func (f *localFile) Digest(ctx context.Context, fn DigestFunction) (Digest, error) {
	info, err := os.Stat(f.abs)
	if errors.Is(err, fs.ErrNotExist) {
		return Digest{}, notFound(f.path)
	}
	if err != nil {
		return Digest{}, fmt.Errorf("files: stat %s: %w", f.path, err)
	}
	key := digestKey{path: f.abs, size: info.Size(), mtime: info.ModTime(), fn: fn}
	if d, ok := f.store.digests.Get(key); ok {
		return d, nil
	}

	r, err := f.Open(ctx)
	if err != nil {
		return Digest{}, err
	}
	defer r.Close()
	d, err := ComputeDigest(fn, r)
	if err != nil {
		return Digest{}, fmt.Errorf("files: %s: %w", f.path, err)
	}
	f.store.digests.Add(key, d)
	return d, nil
}
