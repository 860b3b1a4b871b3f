// Package bzlmod evaluates MODULE.bazel and REPO.bazel files.
//
// A MODULE.bazel file is a Starlark program run against a fixed set of
// builtins (module, bazel_dep, include, the overrides, use_extension and
// friends). Each builtin appends to a ModuleBuilder carried on the
// Starlark thread. Included files are evaluated into their own builders
// and merged into the including one; the merged builder is then checked
// and turned into a Module.
//
// See https://bazel.build/rules/lib/globals/module
package bzlmod

import (
	"github.com/jward/razel/internal/label"
)

// BazelDep is one bazel_dep() declaration.
type BazelDep struct {
	Name                  string `json:"name"`
	Version               string `json:"version"`
	RepoName              string `json:"repo_name,omitempty"` // "" when declared with repo_name = None
	MaxCompatibilityLevel int    `json:"max_compatibility_level"`
	DevDependency         bool   `json:"dev_dependency,omitempty"`
}

// CanonicalRepo returns the canonical repository name of the dependency:
// name and version joined by '+', which module names never contain.
func (d BazelDep) CanonicalRepo() label.CanonicalRepo {
	return label.CanonicalRepo(d.Name + "+" + d.Version)
}

// OverrideKind identifies which override function produced an Override.
type OverrideKind string

const (
	ArchiveOverride         OverrideKind = "archive_override"
	GitOverride             OverrideKind = "git_override"
	LocalPathOverride       OverrideKind = "local_path_override"
	SingleVersionOverride   OverrideKind = "single_version_override"
	MultipleVersionOverride OverrideKind = "multiple_version_override"
)

// Override is a root-module override of where or which version of a
// module is fetched.
type Override struct {
	Kind       OverrideKind `json:"kind"`
	ModuleName string       `json:"module_name"`

	Path       string   `json:"path,omitempty"`     // local_path_override
	Version    string   `json:"version,omitempty"`  // single_version_override
	Versions   []string `json:"versions,omitempty"` // multiple_version_override
	Registry   string   `json:"registry,omitempty"`
	Patches    []string `json:"patches,omitempty"`
	PatchCmds  []string `json:"patch_cmds,omitempty"`
	PatchStrip int      `json:"patch_strip,omitempty"`

	// Attrs holds the keyword arguments of archive_override and git_override.
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Tag is one tag-class call on an extension proxy, e.g. go_sdk.download(...).
type Tag struct {
	Name  string         `json:"name"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ExtensionUsage records a use_extension() call and what the module did
// with the returned proxy.
type ExtensionUsage struct {
	BzlFile       string `json:"bzl_file"`
	Name          string `json:"name"`
	DevDependency bool   `json:"dev_dependency,omitempty"`
	// Imports maps the apparent name visible to the module to the name the
	// extension exports (use_repo).
	Imports map[string]string `json:"imports,omitempty"`
	Tags    []Tag             `json:"tags,omitempty"`
}

// Module is the evaluated content of a MODULE.bazel file and its includes.
type Module struct {
	Name               string   `json:"name"`
	Version            string   `json:"version"`
	RepoName           string   `json:"repo_name"`
	CompatibilityLevel int      `json:"compatibility_level"`
	BazelCompatibility []string `json:"bazel_compatibility,omitempty"`

	BazelDeps          []BazelDep        `json:"bazel_deps,omitempty"`
	Overrides          []Override        `json:"overrides,omitempty"`
	ExtensionUsages    []*ExtensionUsage `json:"extension_usages,omitempty"`
	Toolchains         []string          `json:"toolchains,omitempty"`
	ExecutionPlatforms []string          `json:"execution_platforms,omitempty"`
}

// Override returns the last override declared for moduleName.
func (m *Module) Override(moduleName string) (Override, bool) {
	for i := len(m.Overrides) - 1; i >= 0; i-- {
		if m.Overrides[i].ModuleName == moduleName {
			return m.Overrides[i], true
		}
	}
	return Override{}, false
}
