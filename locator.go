package razel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jward/razel/internal/bzlmod"
	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// LocateRequest describes a dependency repository to locate.
type LocateRequest struct {
	Repo label.CanonicalRepo
	Dep  bzlmod.BazelDep
	// Override is the root module's override for Dep.Name, if any.
	Override *bzlmod.Override
}

// Locator finds the files of a dependency repository.
type Locator interface {
	Locate(ctx context.Context, req LocateRequest) (files.Store, error)
}

// VendorLocator reads dependencies that were fetched ahead of time into
// Dir/<canonical name>. Local path overrides are honoured; archive and
// git overrides are not, since they would need network access.
type VendorLocator struct {
	// Dir holds one directory per canonical repository name.
	Dir string
	// WorkspaceRoot anchors relative local_path_override paths.
	WorkspaceRoot string
}

var _ Locator = (*VendorLocator)(nil)

func (l *VendorLocator) Locate(ctx context.Context, req LocateRequest) (files.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(l.Dir, req.Repo.Name())
	if o := req.Override; o != nil {
		switch o.Kind {
		case bzlmod.LocalPathOverride:
			dir = o.Path
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(l.WorkspaceRoot, dir)
			}
		case bzlmod.SingleVersionOverride:
			if o.Version != "" {
				dir = filepath.Join(l.Dir, req.Dep.Name+"+"+o.Version)
			}
		case bzlmod.ArchiveOverride, bzlmod.GitOverride:
			return nil, fmt.Errorf("%s for module %q: %w", o.Kind, o.ModuleName, bzlmod.ErrUnimplemented)
		}
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("locate %s: %s: %w", req.Repo, dir, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("locate %s: %w", req.Repo, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("locate %s: %s is not a directory: %w", req.Repo, dir, ErrNotFound)
	}
	return files.NewLocalStore(dir)
}

// StoreLocator serves dependencies from stores registered by canonical
// name. It is safe for concurrent use.
type StoreLocator struct {
	mu     sync.RWMutex
	stores map[label.CanonicalRepo]files.Store
}

var _ Locator = (*StoreLocator)(nil)

// NewStoreLocator returns a locator over stores.
func NewStoreLocator(stores map[label.CanonicalRepo]files.Store) *StoreLocator {
	l := &StoreLocator{stores: make(map[label.CanonicalRepo]files.Store, len(stores))}
	for name, s := range stores {
		l.stores[name] = s
	}
	return l
}

// Add registers s under name, replacing any earlier store.
func (l *StoreLocator) Add(name label.CanonicalRepo, s files.Store) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stores[name] = s
}

func (l *StoreLocator) Locate(ctx context.Context, req LocateRequest) (files.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	s, ok := l.stores[req.Repo]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("locate %s: %w", req.Repo, ErrNotFound)
	}
	return s, nil
}
