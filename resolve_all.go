package razel

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/jward/razel/internal/label"
)

// ResolveAll resolves the main repository and everything it transitively
// depends on. It works in waves: each wave waits, on a worker pool, for
// the repositories discovered by the previous one.
//
// A failed repository does not stop its siblings. ResolveAll returns every
// repository that resolved, sorted by canonical name, together with the
// first error in that order.
func (w *Workspace) ResolveAll(ctx context.Context) ([]*Repository, error) {
	seen := map[label.CanonicalRepo]bool{label.MainRepo: true}
	wave := []label.CanonicalRepo{label.MainRepo}

	type result struct {
		name label.CanonicalRepo
		repo *Repository
		err  error
	}

	var (
		repos []*Repository
		errs  []result
	)
	for len(wave) > 0 {
		numWorkers := max(min(runtime.NumCPU(), len(wave)), 1)

		workCh := make(chan label.CanonicalRepo, len(wave))
		for _, name := range wave {
			workCh <- name
		}
		close(workCh)

		resultCh := make(chan result, len(wave))
		var wg sync.WaitGroup
		for range numWorkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for name := range workCh {
					repo, err := w.Repository(ctx, name)
					resultCh <- result{name: name, repo: repo, err: err}
				}
			}()
		}
		go func() {
			wg.Wait()
			close(resultCh)
		}()

		var results []result
		for res := range resultCh {
			results = append(results, res)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sort.Slice(results, func(i, j int) bool { return results[i].name < results[j].name })

		var next []label.CanonicalRepo
		for _, res := range results {
			if res.err != nil {
				errs = append(errs, res)
				continue
			}
			repos = append(repos, res.repo)
			for _, dep := range res.repo.deps {
				if !seen[dep] {
					seen[dep] = true
					next = append(next, dep)
				}
			}
		}
		wave = next
	}

	sort.Slice(repos, func(i, j int) bool { return repos[i].canonical < repos[j].canonical })
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].name < errs[j].name })
		return repos, fmt.Errorf("razel: resolution had %d error(s): %w", len(errs), errs[0].err)
	}
	return repos, nil
}
