package label

import (
	"fmt"
	"strings"
)

// Label identifies a target: [@|@@]repo//package:target.
//
// R records whether the repository part is known to be apparent, known to
// be canonical, or either (Repo).
type Label[R RepoName] struct {
	Repo    R
	Package string
	Target  string
}

// CanonicalLabel is a label whose repository needs no mapping to resolve.
type CanonicalLabel = Label[CanonicalRepo]

// ApparentLabel is a label whose repository must be looked up in a
// repository mapping.
type ApparentLabel = Label[ApparentRepo]

// AnyLabel is a label as produced by the parser: apparent or canonical.
type AnyLabel = Label[Repo]

// MainRepoRoot is the root package of the main repository, "@@//". It is
// the usual parse context for labels given on the command line.
var MainRepoRoot = CanonicalLabel{Repo: MainRepo}

// Resolver maps an apparent repository name to a canonical one.
type Resolver func(ApparentRepo) (CanonicalRepo, bool)

// New returns a label with the given parts.
func New[R RepoName](repo R, pkg, target string) Label[R] {
	return Label[R]{Repo: repo, Package: pkg, Target: target}
}

// Name returns the target name. Corresponds to Label.name in Starlark.
func (l Label[R]) Name() string { return l.Target }

// PackageName returns the package path. Corresponds to Label.package.
func (l Label[R]) PackageName() string { return l.Package }

// RepoName returns the bare repository name.
func (l Label[R]) RepoName() string { return l.Repo.Name() }

// WorkspaceRoot returns the execution-time root of the label's repository.
// Corresponds to Label.workspace_root in Starlark.
func (l Label[R]) WorkspaceRoot() string {
	if l.Repo.Name() == "" {
		return ""
	}
	return "external/" + l.Repo.Name()
}

// SamePackageLabel returns a label for name in the same package.
func (l Label[R]) SamePackageLabel(name string) Label[R] {
	return Label[R]{Repo: l.Repo, Package: l.Package, Target: name}
}

// Any erases the repository form.
func (l Label[R]) Any() AnyLabel {
	return AnyLabel{Repo: l.Repo.AsRepo(), Package: l.Package, Target: l.Target}
}

// Relative parses s using l as the context. Corresponds to
// Label.relative() in Starlark.
func (l Label[R]) Relative(s string) (AnyLabel, error) {
	return Parse(s, l)
}

// ToCanonical converts l to a canonical label. Canonical repositories are
// kept as they are; apparent ones go through resolve. It reports false if
// resolve does not know the apparent name.
func (l Label[R]) ToCanonical(resolve Resolver) (CanonicalLabel, bool) {
	repo := l.Repo.AsRepo()
	if c, ok := repo.Canonical(); ok {
		return CanonicalLabel{Repo: c, Package: l.Package, Target: l.Target}, true
	}
	a, _ := repo.Apparent()
	c, ok := resolve(a)
	if !ok {
		return CanonicalLabel{}, false
	}
	return CanonicalLabel{Repo: c, Package: l.Package, Target: l.Target}, true
}

// String returns the shortest form that parses back to l: "@repo//" when
// the target is the repository name at the root package, "@repo//a/b"
// when the target is the last package segment, and "@repo//pkg:target"
// otherwise.
func (l Label[R]) String() string {
	repo := l.Repo.String()
	if l.Package == "" && l.Target == l.Repo.Name() {
		return repo + "//"
	}
	if l.Package != "" && l.Target == lastSegment(l.Package) {
		return repo + "//" + l.Package
	}
	return repo + "//" + l.Package + ":" + l.Target
}

// GoString returns the fully qualified form, e.g. Label("@r//p:t").
func (l Label[R]) GoString() string {
	return fmt.Sprintf("Label(%q)", l.Repo.String()+"//"+l.Package+":"+l.Target)
}

func lastSegment(pkg string) string {
	if i := strings.LastIndexByte(pkg, '/'); i >= 0 {
		return pkg[i+1:]
	}
	return pkg
}
