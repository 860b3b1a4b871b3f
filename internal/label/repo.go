// Package label implements Bazel labels: repository names, the label
// grammar with its shorthand forms, and canonicalisation through a
// repository mapping.
//
// See https://bazel.build/concepts/labels
package label

// ApparentRepo is a repository name as written by a dependent repository.
// It only has meaning relative to that repository's mapping. The empty
// name refers to the main repository.
type ApparentRepo string

// Name returns the bare repository name.
func (r ApparentRepo) Name() string { return string(r) }

// String returns the display form, e.g. "@rules_go".
func (r ApparentRepo) String() string { return "@" + string(r) }

// AsRepo wraps r in the Repo union.
func (r ApparentRepo) AsRepo() Repo { return Repo{name: string(r)} }

// CanonicalRepo is a globally unique repository name assigned during
// resolution. The empty name is the main repository.
type CanonicalRepo string

// Name returns the bare repository name.
func (r CanonicalRepo) Name() string { return string(r) }

// String returns the display form, e.g. "@@rules_go+0.50.1".
func (r CanonicalRepo) String() string { return "@@" + string(r) }

// AsRepo wraps r in the Repo union.
func (r CanonicalRepo) AsRepo() Repo { return Repo{canonical: true, name: string(r)} }

// MainRepo is the canonical name of the main repository.
const MainRepo CanonicalRepo = ""

// Repo is either an ApparentRepo or a CanonicalRepo. The zero value is the
// apparent main repository ("@").
type Repo struct {
	canonical bool
	name      string
}

// Apparent returns a Repo holding the apparent name.
func Apparent(name string) Repo { return Repo{name: name} }

// Canonical returns a Repo holding the canonical name.
func Canonical(name string) Repo { return Repo{canonical: true, name: name} }

// IsCanonical reports whether r holds a canonical name.
func (r Repo) IsCanonical() bool { return r.canonical }

// Name returns the bare repository name.
func (r Repo) Name() string { return r.name }

// String returns "@name" or "@@name".
func (r Repo) String() string {
	if r.canonical {
		return "@@" + r.name
	}
	return "@" + r.name
}

// AsRepo returns r.
func (r Repo) AsRepo() Repo { return r }

// Apparent returns the apparent name held by r, if any.
func (r Repo) Apparent() (ApparentRepo, bool) {
	if r.canonical {
		return "", false
	}
	return ApparentRepo(r.name), true
}

// Canonical returns the canonical name held by r, if any.
func (r Repo) Canonical() (CanonicalRepo, bool) {
	if !r.canonical {
		return "", false
	}
	return CanonicalRepo(r.name), true
}

// RepoName is the set of repository forms a Label may carry.
type RepoName interface {
	ApparentRepo | CanonicalRepo | Repo
	Name() string
	String() string
	AsRepo() Repo
}
