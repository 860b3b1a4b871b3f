package razel

import (
	"context"
	"errors"
	"fmt"

	"github.com/jward/razel/internal/label"
)

// Target is the result of a Lookup: a canonical label and the package that
// holds it.
type Target struct {
	Label   label.CanonicalLabel
	Package *Package
}

// Lookup resolves s, a label as it would be written in the main
// repository, e.g. "//lib:util", "@d//:d" or "@@dep+2.0//lib". The label is
// canonicalised through the main repository's mapping and the package is
// read from the repository it names. Canonical names that are not yet
// registered cause the whole dependency graph to be resolved first.
//
// Lookup does not evaluate BUILD files, so it does not check that the
// target exists in the package.
func (w *Workspace) Lookup(ctx context.Context, s string) (*Target, error) {
	l, err := label.Parse(s, label.MainRepoRoot)
	if err != nil {
		return nil, err
	}

	main, err := w.MainRepository(ctx)
	if err != nil {
		return nil, err
	}
	c, err := main.Canonicalize(l)
	if err != nil {
		return nil, fmt.Errorf("razel: lookup %s: %w", s, err)
	}

	if w.State(c.Repo) == Unregistered {
		if _, err := w.ResolveAll(ctx); err != nil && w.State(c.Repo) == Unregistered {
			return nil, fmt.Errorf("razel: lookup %s: %w", s, err)
		}
	}
	repo, err := w.Repository(ctx, c.Repo)
	if err != nil {
		if errors.Is(err, ErrUnknownRepo) {
			return nil, fmt.Errorf("razel: lookup %s: %w", s, err)
		}
		return nil, err
	}

	pkg, err := repo.ReadPackage(ctx, c.Package)
	if err != nil {
		return nil, err
	}
	return &Target{Label: c, Package: pkg}, nil
}
