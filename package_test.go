package razel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

func mainRepo(t *testing.T, tree map[string]string, opts ...Option) *Repository {
	t.Helper()
	ws := newTestWorkspace(t, tree, opts...)
	r, err := ws.MainRepository(context.Background())
	require.NoError(t, err)
	return r
}

func TestReadPackage(t *testing.T) {
	t.Parallel()

	repo := mainRepo(t, map[string]string{
		"MODULE.bazel":     `module(name = "m", version = "1.0")`,
		"BUILD.bazel":      "",
		"a/BUILD":          "# a",
		"b/BUILD.bazel":    "# b",
		"both/BUILD":       "",
		"both/BUILD.bazel": "",
		"none/file.txt":    "",
	})
	ctx := context.Background()

	for _, tc := range []struct {
		pkg       string
		wantFile  string
		wantError error
	}{
		{pkg: "", wantFile: "BUILD.bazel"},
		{pkg: "a", wantFile: "a/BUILD"},
		{pkg: "b", wantFile: "b/BUILD.bazel"},
		{pkg: "b/", wantFile: "b/BUILD.bazel"},
		{pkg: "both", wantError: ErrAlreadyExists},
		{pkg: "none", wantError: ErrNotFound},
		{pkg: "missing", wantError: ErrNotFound},
		{pkg: "none/file.txt", wantError: ErrNotFound},
	} {
		t.Run(tc.pkg, func(t *testing.T) {
			pkg, err := repo.ReadPackage(ctx, tc.pkg)
			if tc.wantError != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantError)
				assert.Nil(t, pkg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantFile, pkg.BuildFile().Path())
			assert.Same(t, repo, pkg.Repository())
		})
	}
}

func TestReadPackage_Messages(t *testing.T) {
	t.Parallel()

	repo := mainRepo(t, map[string]string{
		"MODULE.bazel":  `module(name = "m", version = "1.0")`,
		"x/BUILD":       "",
		"x/BUILD.bazel": "",
	})
	ctx := context.Background()

	_, err := repo.ReadPackage(ctx, "x")
	assert.EqualError(t, err, "razel: package 'x' contains both BUILD and BUILD.bazel files: already exists")

	_, err = repo.ReadPackage(ctx, "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package 'y' not found: missing BUILD or BUILD.bazel file")
}

func TestPackage_LabelAndDigest(t *testing.T) {
	t.Parallel()

	repo := mainRepo(t, map[string]string{
		"MODULE.bazel": `module(name = "m", version = "1.0")`,
		"BUILD":        "",
		"my/pkg/BUILD": "hello",
	}, WithDigestFunction(files.MD5))
	ctx := context.Background()

	pkg, err := repo.ReadPackage(ctx, "my/pkg")
	require.NoError(t, err)
	assert.Equal(t, "my/pkg", pkg.Path())
	l, ok := pkg.Label()
	require.True(t, ok)
	assert.Equal(t, "@@//my/pkg", l.String())
	assert.Equal(t, "pkg", l.Name())
	parsed, err := label.Parse(l.String(), label.MainRepoRoot)
	require.NoError(t, err)
	assert.Equal(t, l.Any(), parsed)

	d, err := pkg.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, files.MD5, d.Function)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", d.Hash)
	assert.Equal(t, int64(5), d.SizeBytes)

	root, err := repo.ReadPackage(ctx, "")
	require.NoError(t, err)
	_, ok = root.Label()
	assert.False(t, ok, "the main repository's root package has no default target")
}

func TestPackage_SubPackages(t *testing.T) {
	t.Parallel()

	repo := mainRepo(t, map[string]string{
		"MODULE.bazel":    `module(name = "m", version = "1.0")`,
		"REPO.bazel":      `ignore_directories(["ignored"])`,
		"BUILD":           "",
		"a/BUILD":         "",
		"a/b/BUILD":       "",
		"c/d/BUILD.bazel": "",
		"c/e/notes.txt":   "",
		"ignored/x/BUILD": "",
		"docs/readme.md":  "",
	})
	ctx := context.Background()

	root, err := repo.ReadPackage(ctx, "")
	require.NoError(t, err)
	subs, err := root.SubPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c/d"}, subs)

	a, err := repo.ReadPackage(ctx, "a")
	require.NoError(t, err)
	subs, err = a.SubPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, subs)
}

func TestPackage_SubPackagesConflict(t *testing.T) {
	t.Parallel()

	repo := mainRepo(t, map[string]string{
		"MODULE.bazel":    `module(name = "m", version = "1.0")`,
		"BUILD":           "",
		"bad/BUILD":       "",
		"bad/BUILD.bazel": "",
	})
	ctx := context.Background()

	root, err := repo.ReadPackage(ctx, "")
	require.NoError(t, err)
	_, err = root.SubPackages(ctx)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestReadPackage_MemStore(t *testing.T) {
	t.Parallel()

	store := files.NewMemStore(map[string]string{
		"MODULE.bazel":  depModule,
		"lib/BUILD":     "",
		"lib/sub/BUILD": "",
	})
	repo := &Repository{canonical: "dep+2.0", files: store, digestFn: files.SHA256}
	ctx := context.Background()

	pkg, err := repo.ReadPackage(ctx, "lib")
	require.NoError(t, err)
	l, ok := pkg.Label()
	require.True(t, ok)
	assert.Equal(t, "@@dep+2.0//lib", l.String())

	rootLabel, ok := (&Package{repo: repo, path: ""}).Label()
	require.True(t, ok)
	assert.Equal(t, "@@dep+2.0//", rootLabel.String())
	assert.Equal(t, "dep+2.0", rootLabel.Name())

	root := &Package{repo: repo, path: ""}
	subs, err := root.SubPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib"}, subs)
}
