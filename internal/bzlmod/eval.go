package bzlmod

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/charmbracelet/log"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"golang.org/x/sync/errgroup"

	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// Options configures an evaluation.
type Options struct {
	// IsRoot marks the main repository's module file. Overrides are only
	// allowed there, and the dev-dependency rule treats it specially.
	IsRoot bool
	// IgnoreDevDependency drops dev_dependency declarations of non-root
	// modules.
	IgnoreDevDependency bool
	// Logger receives print() output and include warnings. Nil discards.
	Logger *log.Logger
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(io.Discard)
}

// pendingInclude is an include waiting to be evaluated, with the chain of
// files that led to it.
type pendingInclude struct {
	path  string
	chain []string
}

// Evaluate evaluates the module file at entry and everything it includes,
// and returns the merged Module.
//
// Includes are evaluated in waves: every include discovered by one wave
// is evaluated concurrently in the next, and results are merged in the
// order the include() calls were made. A file included twice without a
// cycle is evaluated and merged twice.
func Evaluate(ctx context.Context, store files.Store, entry string, opts Options) (*Module, error) {
	logger := opts.logger()
	entry = files.Clean(entry)

	root, err := evalModuleFile(ctx, store, entry, opts)
	if err != nil {
		return nil, err
	}

	seen := map[string]int{entry: 1}
	wave, err := includesOf(entry, root, []string{entry})
	if err != nil {
		return nil, err
	}
	for len(wave) > 0 {
		builders := make([]*ModuleBuilder, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		for i, inc := range wave {
			g.Go(func() error {
				b, err := evalModuleFile(gctx, store, inc.path, opts)
				if err != nil {
					return err
				}
				builders[i] = b
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []pendingInclude
		for i, inc := range wave {
			seen[inc.path]++
			if seen[inc.path] == 2 {
				logger.Warn("module file included more than once", "file", inc.path, "entry", entry)
			}
			if err := root.Merge(builders[i]); err != nil {
				return nil, configError(inc.path, err)
			}
			more, err := includesOf(inc.path, builders[i], inc.chain)
			if err != nil {
				return nil, err
			}
			next = append(next, more...)
		}
		wave = next
	}

	m, err := root.Build()
	if err != nil {
		return nil, &ConfigError{Path: entry, Err: err}
	}
	logger.Debug("evaluated module", "file", entry, "name", m.Name, "version", m.Version, "deps", len(m.BazelDeps))
	return m, nil
}

// includesOf resolves the include() labels of the file at from.
func includesOf(from string, b *ModuleBuilder, chain []string) ([]pendingInclude, error) {
	var out []pendingInclude
	for _, raw := range b.Includes() {
		p, err := IncludePath(from, raw)
		if err != nil {
			return nil, &ConfigError{Path: from, Statement: "include", Err: err}
		}
		for _, c := range chain {
			if c == p {
				return nil, &ConfigError{Path: from, Statement: "include",
					Err: fmt.Errorf("include cycle: %v -> %s", chain, p)}
			}
		}
		next := append(append([]string(nil), chain...), p)
		out = append(out, pendingInclude{path: p, chain: next})
	}
	return out, nil
}

// IncludePath resolves an include() label written in the module file at
// from. Relative labels resolve against from's package; the label must
// point into the main repository.
func IncludePath(from, raw string) (string, error) {
	dir := path.Dir(from)
	if dir == "." {
		dir = ""
	}
	ctxLabel := label.New(label.MainRepo, dir, path.Base(from))
	l, err := label.Parse(raw, ctxLabel)
	if err != nil {
		return "", fmt.Errorf("include(%q): %w", raw, err)
	}
	if c, ok := l.Repo.Canonical(); !ok || c != label.MainRepo {
		return "", fmt.Errorf("include(%q): label must be in the main repository, got %s", raw, l.Repo)
	}
	return path.Join(l.Package, l.Target), nil
}

// evalModuleFile runs a single module file, without following includes.
func evalModuleFile(ctx context.Context, store files.Store, p string, opts Options) (*ModuleBuilder, error) {
	b := NewModuleBuilder(opts.IsRoot, opts.IgnoreDevDependency)
	thread := newThread(ctx, p, opts.logger())
	defer thread.stop()
	thread.SetLocal(moduleBuilderKey, b)

	if _, err := execFile(ctx, thread.Thread, store, p, moduleGlobals()); err != nil {
		return nil, err
	}
	return b, nil
}

type cancellableThread struct {
	*starlark.Thread
	stop func() bool
}

// newThread returns a thread whose print() goes to logger and which is
// cancelled when ctx is.
func newThread(ctx context.Context, name string, logger *log.Logger) cancellableThread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Info(msg, "file", name)
		},
	}
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	return cancellableThread{Thread: thread, stop: stop}
}

// execFile reads, parses and runs p. load() is not available.
func execFile(ctx context.Context, thread *starlark.Thread, store files.Store, p string, predeclared starlark.StringDict) (*syntax.File, error) {
	f, err := store.ReadFile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("bzlmod: read %s: %w", p, err)
	}
	src, err := files.ReadAll(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("bzlmod: read %s: %w", p, err)
	}

	parsed, err := (&syntax.FileOptions{}).Parse(p, src, 0)
	if err != nil {
		return nil, configError(p, err)
	}
	prog, err := starlark.FileProgram(parsed, predeclared.Has)
	if err != nil {
		return nil, configError(p, err)
	}
	if _, err := prog.Init(thread, predeclared); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("bzlmod: evaluate %s: %w", p, ctxErr)
		}
		return nil, configError(p, err)
	}
	return parsed, nil
}
