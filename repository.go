package razel

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/jward/razel/internal/bzlmod"
	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// Repository is a resolved repository. It is immutable once returned by
// the Workspace and may be shared freely.
type Repository struct {
	canonical label.CanonicalRepo
	apparent  label.ApparentRepo
	mapping   map[label.ApparentRepo]label.CanonicalRepo
	deps      []label.CanonicalRepo

	module       *bzlmod.Module
	repoFile     *bzlmod.RepoFile
	moduleDigest files.Digest
	files        files.Store
	digestFn     files.DigestFunction
}

// newRepository builds the repository mapping of mod and registers every
// dependency it declares. Dependencies are not evaluated here.
func (w *Workspace) newRepository(ctx context.Context, name label.CanonicalRepo, store files.Store, mod *bzlmod.Module) (*Repository, error) {
	r := &Repository{
		canonical: name,
		apparent:  label.ApparentRepo(mod.RepoName),
		mapping:   map[label.ApparentRepo]label.CanonicalRepo{"": label.MainRepo},
		module:    mod,
		files:     store,
		digestFn:  w.digestFn,
	}
	if mod.RepoName != "" {
		r.mapping[r.apparent] = name
	}

	var pending []bzlmod.BazelDep
	seen := make(map[label.CanonicalRepo]bool)
	for _, dep := range mod.BazelDeps {
		target := dep.CanonicalRepo()
		if dep.RepoName != "" {
			if err := r.mapRepo(label.ApparentRepo(dep.RepoName), target); err != nil {
				return nil, err
			}
		}
		if seen[target] {
			continue
		}
		seen[target] = true
		r.deps = append(r.deps, target)
		pending = append(pending, dep)
	}

	if f, err := store.ReadFile(ctx, ModuleFile); err == nil {
		if r.moduleDigest, err = f.Digest(ctx, w.digestFn); err != nil {
			return nil, fmt.Errorf("digest %s: %w", ModuleFile, err)
		}
	}

	if _, err := store.ReadFile(ctx, RepoFile); err == nil {
		rf, err := bzlmod.EvaluateRepo(ctx, store, RepoFile, w.evalOptions(name == label.MainRepo))
		if err != nil {
			return nil, err
		}
		r.repoFile = rf
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	for _, dep := range pending {
		w.register(dep.CanonicalRepo(), w.evaluateDep(dep.CanonicalRepo(), dep))
	}
	return r, nil
}

// mapRepo adds apparent -> target. Repeating an entry is allowed; pointing
// an apparent name at two repositories is not.
func (r *Repository) mapRepo(apparent label.ApparentRepo, target label.CanonicalRepo) error {
	if prev, ok := r.mapping[apparent]; ok && prev != target {
		return fmt.Errorf("repo_name %q refers to both %s and %s: %w", apparent.Name(), prev, target, ErrAlreadyExists)
	}
	r.mapping[apparent] = target
	return nil
}

// CanonicalName returns the globally unique name of r.
func (r *Repository) CanonicalName() label.CanonicalRepo { return r.canonical }

// RepoName returns the name r calls itself, its module's repo_name.
func (r *Repository) RepoName() label.ApparentRepo { return r.apparent }

// Module returns the evaluated MODULE.bazel. It is empty for a main
// repository without one.
func (r *Repository) Module() *bzlmod.Module { return r.module }

// ModuleDigest returns the digest of MODULE.bazel, or the zero Digest if
// the repository has none.
func (r *Repository) ModuleDigest() files.Digest { return r.moduleDigest }

// RepoFile returns the evaluated REPO.bazel, or nil.
func (r *Repository) RepoFile() *bzlmod.RepoFile { return r.repoFile }

// Files returns the store the repository is read from.
func (r *Repository) Files() files.Store { return r.files }

// Deps returns the canonical names of the declared dependencies, in
// declaration order. Dependencies declared with repo_name = None are
// included even though they have no apparent name.
func (r *Repository) Deps() []label.CanonicalRepo { return slices.Clone(r.deps) }

// Mapping returns a copy of the repository mapping.
func (r *Repository) Mapping() map[label.ApparentRepo]label.CanonicalRepo {
	return maps.Clone(r.mapping)
}

// ResolveApparent maps an apparent name as written inside r.
func (r *Repository) ResolveApparent(apparent label.ApparentRepo) (label.CanonicalRepo, bool) {
	c, ok := r.mapping[apparent]
	return c, ok
}

// Resolver returns ResolveApparent as a label.Resolver.
func (r *Repository) Resolver() label.Resolver { return r.ResolveApparent }

// Canonicalize converts a label written inside r to canonical form.
func (r *Repository) Canonicalize(l label.AnyLabel) (label.CanonicalLabel, error) {
	c, ok := l.ToCanonical(r.ResolveApparent)
	if !ok {
		return label.CanonicalLabel{}, fmt.Errorf("%s: %s is not visible from %s: %w", l, l.Repo, r.canonical, ErrUnknownRepo)
	}
	return c, nil
}
