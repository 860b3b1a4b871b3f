package bzlmod

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/jward/razel/internal/files"
)

// RepoFile is the evaluated content of a REPO.bazel file.
//
// See https://bazel.build/rules/lib/globals/repo
type RepoFile struct {
	// DefaultMetadata holds the repo() keyword arguments; nil when repo()
	// was not called.
	DefaultMetadata map[string]any `json:"default_metadata,omitempty"`
	// IgnoreDirectories lists directories excluded from the repository.
	IgnoreDirectories []string `json:"ignore_directories,omitempty"`
}

const repoFileKey = "razel.repo_file"

var repoGlobals = sync.OnceValue(func() starlark.StringDict {
	d := starlark.StringDict{
		"repo":               makeRepoFn(),
		"ignore_directories": makeIgnoreDirectoriesFn(),
	}
	d.Freeze()
	return d
})

func repoFile(thread *starlark.Thread, fn string) (*RepoFile, error) {
	r, ok := thread.Local(repoFileKey).(*RepoFile)
	if !ok {
		return nil, fmt.Errorf("%s: called outside of a REPO.bazel evaluation", fn)
	}
	return r, nil
}

// makeRepoFn creates the "repo" builtin.
//
// repo(**kwargs) → None
func makeRepoFn() *starlark.Builtin {
	return starlark.NewBuiltin("repo", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: takes keyword arguments only", fn.Name())
		}
		r, err := repoFile(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if r.DefaultMetadata != nil {
			return nil, fmt.Errorf("repo() %w", ErrCalledTwice)
		}
		r.DefaultMetadata = kwargsToGo(kwargs)
		if r.DefaultMetadata == nil {
			r.DefaultMetadata = map[string]any{}
		}
		return starlark.None, nil
	})
}

// makeIgnoreDirectoriesFn creates the "ignore_directories" builtin.
//
// ignore_directories(dirs) → None
func makeIgnoreDirectoriesFn() *starlark.Builtin {
	return starlark.NewBuiltin("ignore_directories", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var dirs starlark.Value
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "dirs", &dirs); err != nil {
			return nil, err
		}
		list, err := stringList(fn.Name(), "dirs", dirs)
		if err != nil {
			return nil, err
		}
		r, err := repoFile(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		r.IgnoreDirectories = append(r.IgnoreDirectories, list...)
		return starlark.None, nil
	})
}

// EvaluateRepo evaluates the REPO.bazel file at p. An empty file is a
// valid boundary marker and yields an empty RepoFile.
func EvaluateRepo(ctx context.Context, store files.Store, p string, opts Options) (*RepoFile, error) {
	p = files.Clean(p)
	r := &RepoFile{}
	thread := newThread(ctx, p, opts.logger())
	defer thread.stop()
	thread.SetLocal(repoFileKey, r)

	parsed, err := execFile(ctx, thread.Thread, store, p, repoGlobals())
	if err != nil {
		return nil, err
	}
	if err := checkRepoFirst(p, parsed); err != nil {
		return nil, err
	}
	return r, nil
}

// checkRepoFirst reports a repo() call that is not the first statement.
func checkRepoFirst(p string, f *syntax.File) error {
	for i, stmt := range f.Stmts {
		expr, ok := stmt.(*syntax.ExprStmt)
		if !ok {
			continue
		}
		call, ok := expr.X.(*syntax.CallExpr)
		if !ok {
			continue
		}
		if id, ok := call.Fn.(*syntax.Ident); ok && id.Name == "repo" && i > 0 {
			start, _ := call.Span()
			ce := &ConfigError{Path: p, Statement: "repo", Err: errors.New("repo() must be the first statement")}
			ce.setPos(start)
			return ce
		}
	}
	return nil
}
