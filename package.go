package razel

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// Build file names, in order of preference.
const (
	BuildFileBazel = "BUILD.bazel"
	BuildFile      = "BUILD"
)

// Package is a directory of a repository holding exactly one build file.
type Package struct {
	repo      *Repository
	path      string
	buildFile files.File
}

// ReadPackage returns the package at pkg, a slash-separated path relative
// to the repository root ("" is the root package). It fails with
// ErrAlreadyExists if the directory has both BUILD and BUILD.bazel, and
// with ErrNotFound if it has neither.
func (r *Repository) ReadPackage(ctx context.Context, pkg string) (*Package, error) {
	pkg = files.Clean(pkg)

	// Both candidates are read at once; which one wins is decided after.
	names := [2]string{BuildFileBazel, BuildFile}
	var (
		found [2]files.File
		errs  [2]error
		wg    sync.WaitGroup
	)
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found[i], errs[i] = r.files.ReadFile(ctx, path.Join(pkg, name))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("razel: read package '%s': %w", pkg, err)
		}
	}
	switch {
	case found[0] != nil && found[1] != nil:
		return nil, fmt.Errorf("razel: package '%s' contains both BUILD and BUILD.bazel files: %w", pkg, ErrAlreadyExists)
	case found[0] != nil:
		return &Package{repo: r, path: pkg, buildFile: found[0]}, nil
	case found[1] != nil:
		return &Package{repo: r, path: pkg, buildFile: found[1]}, nil
	default:
		return nil, fmt.Errorf("razel: package '%s' not found: missing BUILD or BUILD.bazel file: %w", pkg, ErrNotFound)
	}
}

// Path returns the package path within its repository.
func (p *Package) Path() string { return p.path }

// Repository returns the repository holding p.
func (p *Package) Repository() *Repository { return p.repo }

// BuildFile returns the package's BUILD or BUILD.bazel file.
func (p *Package) BuildFile() files.File { return p.buildFile }

// Label returns the label of the package's default target, e.g.
// @@dep+1.0//lib for package "lib" and @@dep+1.0// for the root package.
// The root package of the main repository has no default target, since
// the main repository's name is empty; ok is false then.
func (p *Package) Label() (l label.CanonicalLabel, ok bool) {
	target := p.path
	if i := strings.LastIndexByte(target, '/'); i >= 0 {
		target = target[i+1:]
	}
	if target == "" {
		target = p.repo.canonical.Name()
	}
	if target == "" {
		return label.CanonicalLabel{}, false
	}
	return label.New(p.repo.canonical, p.path, target), true
}

// Digest hashes the build file with the workspace digest function.
func (p *Package) Digest(ctx context.Context) (files.Digest, error) {
	return p.buildFile.Digest(ctx, p.repo.digestFn)
}

// SubPackages returns the paths of the nearest packages below p: every
// descendant directory with a build file that is not itself below another
// such directory. Directories listed by REPO.bazel ignore_directories are
// skipped. The result is sorted.
func (p *Package) SubPackages(ctx context.Context) ([]string, error) {
	var ignored []string
	if rf := p.repo.repoFile; rf != nil {
		ignored = rf.IgnoreDirectories
	}

	var out []string
	queue := []string{p.path}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		children, err := p.repo.files.ReadDir(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("razel: list %s: %w", dir, err)
		}
		for _, child := range children {
			sub := path.Join(dir, child)
			if isIgnored(sub, ignored) {
				continue
			}
			_, err := p.repo.ReadPackage(ctx, sub)
			switch {
			case err == nil:
				out = append(out, sub)
			case errors.Is(err, ErrNotFound):
				queue = append(queue, sub)
			default:
				return nil, err
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

func isIgnored(dir string, ignored []string) bool {
	for _, ig := range ignored {
		ig = files.Clean(ig)
		if dir == ig || strings.HasPrefix(dir, ig+"/") {
			return true
		}
	}
	return false
}
