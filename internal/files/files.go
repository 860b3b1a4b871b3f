// Package files abstracts the file trees a repository is read from.
//
// A Store is any backend that can hand out Files and list directories:
// the local filesystem (LocalStore) or an in-memory tree (MemStore).
// Consumers hold backends through the Store interface, so a registry of
// differently typed backends needs no further wrapping.
//
// Paths are slash-separated and relative to the store root. They are
// cleaned lexically, so "a/../b" is "b" and nothing escapes the root.
package files

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// ErrNotFound is returned by ReadFile when the path does not name a file.
// errors.Is(err, fs.ErrNotExist) holds for it as well.
var ErrNotFound = fmt.Errorf("files: %w", fs.ErrNotExist)

// File is a readable file handed out by a Store.
type File interface {
	// Path returns the store-relative path the file was read from.
	Path() string
	// Open returns the file contents. The caller closes the reader.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Digest hashes the contents with fn.
	Digest(ctx context.Context, fn DigestFunction) (Digest, error)
}

// Store reads files and lists directories.
type Store interface {
	// ReadFile returns the file at p, or an error wrapping ErrNotFound.
	ReadFile(ctx context.Context, p string) (File, error)
	// ReadDir returns the sorted names of the immediate children of p.
	// A missing or empty directory yields an empty list, not an error.
	ReadDir(ctx context.Context, p string) ([]string, error)
}

// ReadAll reads the whole file.
func ReadAll(ctx context.Context, f File) ([]byte, error) {
	rc, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Clean normalises a store path: slash-separated, no leading slash, no
// "." or ".." elements. The root is "".
func Clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func notFound(p string) error {
	return fmt.Errorf("%s: %w", p, ErrNotFound)
}
