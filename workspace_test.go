package razel

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/razel/internal/bzlmod"
	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// writeTree creates files under root.
func writeTree(t *testing.T, root string, tree map[string]string) {
	t.Helper()
	for p, content := range tree {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

// newTestWorkspace writes tree into a fresh directory and opens it.
func newTestWorkspace(t *testing.T, tree map[string]string, opts ...Option) *Workspace {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, tree)
	ws, err := New(context.Background(), root, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// countingStore counts how often MODULE.bazel is opened. When gate is
// set, opening MODULE.bazel blocks until gate is closed.
type countingStore struct {
	files.Store
	opens atomic.Int32
	gate  chan struct{}
}

func newCountingStore(tree map[string]string) *countingStore {
	return &countingStore{Store: files.NewMemStore(tree)}
}

func (s *countingStore) ReadFile(ctx context.Context, p string) (files.File, error) {
	f, err := s.Store.ReadFile(ctx, p)
	if err != nil {
		return nil, err
	}
	if p != ModuleFile {
		return f, nil
	}
	return &countingFile{File: f, s: s}, nil
}

type countingFile struct {
	files.File
	s *countingStore
}

func (f *countingFile) Open(ctx context.Context) (io.ReadCloser, error) {
	f.s.opens.Add(1)
	if f.s.gate != nil {
		select {
		case <-f.s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.File.Open(ctx)
}

const depModule = `module(name = "dep", version = "2.0")`

// =============================================================================
// Workspace discovery
// =============================================================================

func TestFindWorkspaceRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"MODULE.bazel":         "",
		"sub/deep/file.txt":    "",
		"nested/REPO.bazel":    "",
		"nested/inner/x/a.txt": "",
	})

	got, marker, err := FindWorkspaceRoot(filepath.Join(root, "sub", "deep"))
	require.NoError(t, err)
	assert.Equal(t, root, got)
	assert.Equal(t, ModuleFile, marker)

	got, marker, err = FindWorkspaceRoot(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)
	assert.Equal(t, ModuleFile, marker)

	got, marker, err = FindWorkspaceRoot(filepath.Join(root, "nested", "inner", "x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "nested"), got)
	assert.Equal(t, RepoFile, marker)
}

func TestFindWorkspaceRoot_NoMarker(t *testing.T) {
	t.Parallel()

	_, _, err := FindWorkspaceRoot(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "could not find MODULE.bazel or REPO.bazel")

	_, err = New(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_RegistersMainRepository(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{"MODULE.bazel": `module(name = "m", version = "1.0")`})
	assert.Equal(t, Evaluating, ws.State(label.MainRepo))
	assert.Equal(t, 1, ws.Registered())
	assert.Equal(t, ModuleFile, ws.Marker())
	assert.Equal(t, files.SHA256, ws.DigestFunction())

	_, err := ws.MainRepository(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Resolved, ws.State(label.MainRepo))
}

// =============================================================================
// Repository construction
// =============================================================================

func TestMainRepository_EndToEnd(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0", repo_name = "d")
`,
	})

	main, err := ws.MainRepository(context.Background())
	require.NoError(t, err)
	assert.Equal(t, label.MainRepo, main.CanonicalName())
	assert.Equal(t, "@@", main.CanonicalName().String())
	assert.Equal(t, label.ApparentRepo("m"), main.RepoName())

	got, ok := main.ResolveApparent("d")
	require.True(t, ok)
	assert.Equal(t, label.CanonicalRepo("dep+2.0"), got)
	assert.Equal(t, "@@dep+2.0", got.String())

	assert.Equal(t, map[label.ApparentRepo]label.CanonicalRepo{
		"":  label.MainRepo,
		"m": label.MainRepo,
		"d": "dep+2.0",
	}, main.Mapping())
	assert.Equal(t, []label.CanonicalRepo{"dep+2.0"}, main.Deps())

	// Dependencies are registered but not evaluated.
	assert.Equal(t, Evaluating, ws.State("dep+2.0"))
	assert.Equal(t, Unregistered, ws.State("other+1.0"))

	assert.Equal(t, files.SHA256, main.ModuleDigest().Function)
	assert.NotEmpty(t, main.ModuleDigest().Hash)
	assert.Nil(t, main.RepoFile())
}

func TestMainRepository_SameResultEveryTime(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{"MODULE.bazel": `module(name = "m", version = "1.0")`})
	a, err := ws.MainRepository(context.Background())
	require.NoError(t, err)
	b, err := ws.MainRepository(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestMainRepository_RepoFileOnly(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{
		"REPO.bazel": `ignore_directories(["node_modules"])`,
	})
	main, err := ws.MainRepository(context.Background())
	require.NoError(t, err)
	assert.Empty(t, main.Module().Name)
	assert.Empty(t, main.Deps())
	assert.Equal(t, files.Digest{}, main.ModuleDigest())
	require.NotNil(t, main.RepoFile())
	assert.Equal(t, []string{"node_modules"}, main.RepoFile().IgnoreDirectories)
}

func TestMainRepository_DuplicateDepIsIdempotent(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0", repo_name = "d")
bazel_dep(name = "dep", version = "2.0", repo_name = "d")
bazel_dep(name = "hidden", version = "1.0", repo_name = None)
`,
	})
	main, err := ws.MainRepository(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []label.CanonicalRepo{"dep+2.0", "hidden+1.0"}, main.Deps())
	_, ok := main.ResolveApparent("hidden")
	assert.False(t, ok)
	assert.Equal(t, Evaluating, ws.State("hidden+1.0"))
}

func TestMainRepository_RepoNameConflict(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "a", version = "1.0", repo_name = "x")
bazel_dep(name = "b", version = "1.0", repo_name = "x")
`,
	})
	_, err := ws.MainRepository(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, Failed, ws.State(label.MainRepo))
	assert.Equal(t, Unregistered, ws.State("a+1.0"))
}

func TestMainRepository_EvaluationError(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": "module(name = \"m\", version = \"1.0\")\nmodule(name = \"m\", version = \"1.0\")\n",
	})
	_, err := ws.MainRepository(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, bzlmod.ErrCalledTwice)

	var ce *bzlmod.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Line)
	assert.Contains(t, err.Error(), "razel: evaluate @@")
}

// =============================================================================
// Memoization
// =============================================================================

func TestRepository_ConcurrentRequestsEvaluateOnce(t *testing.T) {
	t.Parallel()

	dep := newCountingStore(map[string]string{"MODULE.bazel": depModule})
	dep.gate = make(chan struct{})
	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0")
`,
	}, WithLocator(NewStoreLocator(map[label.CanonicalRepo]files.Store{"dep+2.0": dep})))

	ctx := context.Background()
	_, err := ws.MainRepository(ctx)
	require.NoError(t, err)

	const n = 16
	repos := make([]*Repository, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			repos[i], errs[i] = ws.Repository(ctx, "dep+2.0")
		}()
	}
	close(dep.gate)
	wg.Wait()

	assert.Equal(t, int32(1), dep.opens.Load())
	for i := range n {
		require.NoError(t, errs[i])
		assert.Same(t, repos[0], repos[i])
	}
	assert.Equal(t, label.CanonicalRepo("dep+2.0"), repos[0].CanonicalName())
	assert.Equal(t, Resolved, ws.State("dep+2.0"))
}

func TestRepository_SharedError(t *testing.T) {
	t.Parallel()

	dep := newCountingStore(map[string]string{"MODULE.bazel": `bazel_dep(name = "x", version = "1")`})
	dep.gate = make(chan struct{})
	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0")
`,
	}, WithLocator(NewStoreLocator(map[label.CanonicalRepo]files.Store{"dep+2.0": dep})))

	ctx := context.Background()
	_, err := ws.MainRepository(ctx)
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ws.Repository(ctx, "dep+2.0")
		}()
	}
	close(dep.gate)
	wg.Wait()

	var first *SharedError
	require.ErrorAs(t, errs[0], &first)
	for i := range n {
		var se *SharedError
		require.ErrorAs(t, errs[i], &se)
		assert.Same(t, first, se)
	}
	assert.ErrorIs(t, first, bzlmod.ErrMissingIdentity)
	assert.Equal(t, Failed, ws.State("dep+2.0"))

	// Later callers see the same failure without a new evaluation.
	_, err = ws.Repository(ctx, "dep+2.0")
	var again *SharedError
	require.ErrorAs(t, err, &again)
	assert.Same(t, first, again)
	assert.Equal(t, int32(1), dep.opens.Load())
}

func TestRepository_CallerCancellationDoesNotFailEvaluation(t *testing.T) {
	t.Parallel()

	dep := newCountingStore(map[string]string{"MODULE.bazel": depModule})
	dep.gate = make(chan struct{})
	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0")
`,
	}, WithLocator(NewStoreLocator(map[label.CanonicalRepo]files.Store{"dep+2.0": dep})))
	_, err := ws.MainRepository(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ws.Repository(ctx, "dep+2.0")
	assert.ErrorIs(t, err, context.Canceled)

	close(dep.gate)
	repo, err := ws.Repository(context.Background(), "dep+2.0")
	require.NoError(t, err)
	assert.Equal(t, label.CanonicalRepo("dep+2.0"), repo.CanonicalName())
}

func TestRepository_Unknown(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{"MODULE.bazel": `module(name = "m", version = "1.0")`})
	_, err := ws.Repository(context.Background(), "nope+1.0")
	assert.ErrorIs(t, err, ErrUnknownRepo)
}

func TestClose_FailsPendingEvaluations(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{"MODULE.bazel": `module(name = "m", version = "1.0")`})
	require.NoError(t, ws.Close())

	_, err := ws.MainRepository(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, ws.State(label.MainRepo))
}

// =============================================================================
// Dependencies
// =============================================================================

func TestDependency_ModuleNameMismatch(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0")
`,
	}, WithLocator(NewStoreLocator(map[label.CanonicalRepo]files.Store{
		"dep+2.0": files.NewMemStore(map[string]string{"MODULE.bazel": `module(name = "other", version = "2.0")`}),
	})))

	ctx := context.Background()
	_, err := ws.MainRepository(ctx)
	require.NoError(t, err)
	_, err = ws.Repository(ctx, "dep+2.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `module name "other" does not match bazel_dep name "dep"`)
}

func TestDependency_DevDependencies(t *testing.T) {
	t.Parallel()

	depFiles := map[string]string{"MODULE.bazel": `
module(name = "dep", version = "2.0")
bazel_dep(name = "testonly", version = "1.0", dev_dependency = True)
`}
	rootModule := map[string]string{"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0")
`}

	for _, tc := range []struct {
		name   string
		ignore bool
		want   []label.CanonicalRepo
	}{
		{name: "kept", ignore: false, want: []label.CanonicalRepo{"testonly+1.0"}},
		{name: "ignored", ignore: true, want: nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ws := newTestWorkspace(t, rootModule,
				WithIgnoreDevDependency(tc.ignore),
				WithLocator(NewStoreLocator(map[label.CanonicalRepo]files.Store{
					"dep+2.0": files.NewMemStore(depFiles),
				})))

			ctx := context.Background()
			_, err := ws.MainRepository(ctx)
			require.NoError(t, err)
			dep, err := ws.Repository(ctx, "dep+2.0")
			require.NoError(t, err)
			assert.Equal(t, tc.want, dep.Deps())
		})
	}
}

func TestDependency_MappingSeesMainRepo(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t, map[string]string{
		"MODULE.bazel": `
module(name = "m", version = "1.0")
bazel_dep(name = "dep", version = "2.0")
`,
	}, WithLocator(NewStoreLocator(map[label.CanonicalRepo]files.Store{
		"dep+2.0": files.NewMemStore(map[string]string{"MODULE.bazel": depModule}),
	})))

	ctx := context.Background()
	_, err := ws.MainRepository(ctx)
	require.NoError(t, err)
	dep, err := ws.Repository(ctx, "dep+2.0")
	require.NoError(t, err)

	assert.Equal(t, map[label.ApparentRepo]label.CanonicalRepo{
		"":    label.MainRepo,
		"dep": "dep+2.0",
	}, dep.Mapping())

	l, err := label.Parse("@dep//lib:x", label.MainRepoRoot)
	require.NoError(t, err)
	c, err := dep.Canonicalize(l)
	require.NoError(t, err)
	assert.Equal(t, "@@dep+2.0//lib:x", c.String())

	l, err = label.Parse("@missing//lib:x", label.MainRepoRoot)
	require.NoError(t, err)
	_, err = dep.Canonicalize(l)
	assert.ErrorIs(t, err, ErrUnknownRepo)
}

func TestIsIgnored(t *testing.T) {
	t.Parallel()

	ignored := []string{"node_modules", "third_party/big/"}
	assert.True(t, isIgnored("node_modules", ignored))
	assert.True(t, isIgnored("node_modules/x", ignored))
	assert.True(t, isIgnored("third_party/big/y", ignored))
	assert.False(t, isIgnored("node_modules_extra", ignored))
	assert.False(t, isIgnored("third_party", ignored))
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unregistered", Unregistered.String())
	assert.Equal(t, "evaluating", Evaluating.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestShare(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	se := share(base)
	assert.Equal(t, "boom", se.Error())
	assert.ErrorIs(t, se, base)
	assert.Same(t, se, share(se))
}
