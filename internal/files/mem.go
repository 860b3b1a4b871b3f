package files

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
)

// MemStore is an immutable in-memory file tree. Directories exist
// implicitly as prefixes of stored paths.
type MemStore struct {
	files map[string][]byte
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a store holding the given path → contents mapping.
func NewMemStore(contents map[string]string) *MemStore {
	m := &MemStore{files: make(map[string][]byte, len(contents))}
	for p, body := range contents {
		m.files[Clean(p)] = []byte(body)
	}
	return m
}

func (m *MemStore) ReadFile(ctx context.Context, p string) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = Clean(p)
	data, ok := m.files[p]
	if !ok {
		return nil, notFound(p)
	}
	return &memFile{path: p, data: data}, nil
}

// ReadDir strips the directory prefix from every stored path and keeps
// the first remaining segment of each.
func (m *MemStore) ReadDir(ctx context.Context, p string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := Clean(p)
	if prefix != "" {
		prefix += "/"
	}
	seen := make(map[string]struct{})
	for stored := range m.files {
		rest, ok := strings.CutPrefix(stored, prefix)
		if !ok || rest == "" {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memFile struct {
	path string
	data []byte
}

func (f *memFile) Path() string { return f.path }

func (f *memFile) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (f *memFile) Digest(_ context.Context, fn DigestFunction) (Digest, error) {
	return ComputeDigest(fn, bytes.NewReader(f.data))
}
