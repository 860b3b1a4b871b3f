package label

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabel_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		l    AnyLabel
		want string
	}{
		{AnyLabel{Repo: Canonical("foo"), Package: "my/pkg", Target: "bar"}, "@@foo//my/pkg:bar"},
		{AnyLabel{Repo: Apparent("foo"), Package: "my/pkg", Target: "pkg"}, "@foo//my/pkg"},
		{AnyLabel{Repo: Apparent("foo"), Package: "", Target: "foo"}, "@foo//"},
		{AnyLabel{Repo: Apparent("foo"), Package: "", Target: "bar"}, "@foo//:bar"},
		{AnyLabel{Repo: Canonical(""), Package: "a", Target: "b"}, "@@//a:b"},
		{AnyLabel{Repo: Apparent(""), Package: "a", Target: "a"}, "@//a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.l.String())
	}
	assert.Equal(t, "@@//", MainRepoRoot.String())
}

func TestLabel_GoString(t *testing.T) {
	t.Parallel()

	l := New(ApparentRepo("r"), "p", "p")
	assert.Equal(t, `Label("@r//p:p")`, fmt.Sprintf("%#v", l))
}

func TestLabel_Accessors(t *testing.T) {
	t.Parallel()

	l := New(CanonicalRepo("rules_go+0.50.1"), "go/tools", "gopackages")
	assert.Equal(t, "gopackages", l.Name())
	assert.Equal(t, "go/tools", l.PackageName())
	assert.Equal(t, "rules_go+0.50.1", l.RepoName())
	assert.Equal(t, "external/rules_go+0.50.1", l.WorkspaceRoot())
	assert.Equal(t, "@@rules_go+0.50.1//go/tools:other", l.SamePackageLabel("other").String())

	assert.Equal(t, "", New(MainRepo, "x", "y").WorkspaceRoot())
}

func TestLabel_ToCanonical(t *testing.T) {
	t.Parallel()

	mapping := map[ApparentRepo]CanonicalRepo{"d": "dep+2.0", "": MainRepo}
	resolve := func(a ApparentRepo) (CanonicalRepo, bool) {
		c, ok := mapping[a]
		return c, ok
	}

	t.Run("apparent", func(t *testing.T) {
		t.Parallel()
		c, ok := mustParse(t, "@d//x:y").ToCanonical(resolve)
		require.True(t, ok)
		assert.Equal(t, "@@dep+2.0//x:y", c.String())
	})

	t.Run("canonical untouched", func(t *testing.T) {
		t.Parallel()
		c, ok := mustParse(t, "@@d//x:y").ToCanonical(resolve)
		require.True(t, ok)
		assert.Equal(t, CanonicalRepo("d"), c.Repo)
	})

	t.Run("unknown apparent", func(t *testing.T) {
		t.Parallel()
		_, ok := mustParse(t, "@nope//x").ToCanonical(resolve)
		assert.False(t, ok)
	})

	t.Run("main via empty apparent name", func(t *testing.T) {
		t.Parallel()
		c, ok := mustParse(t, "@//x").ToCanonical(resolve)
		require.True(t, ok)
		assert.Equal(t, MainRepo, c.Repo)
	})
}

func TestRepo_Forms(t *testing.T) {
	t.Parallel()

	a := ApparentRepo("x").AsRepo()
	assert.False(t, a.IsCanonical())
	name, ok := a.Apparent()
	assert.True(t, ok)
	assert.Equal(t, ApparentRepo("x"), name)
	_, ok = a.Canonical()
	assert.False(t, ok)

	c := CanonicalRepo("x").AsRepo()
	assert.True(t, c.IsCanonical())
	assert.Equal(t, "@@x", c.String())
	assert.Equal(t, "@x", a.String())
}
