package bzlmod

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrCalledTwice is returned when a statement allowed once per file is
	// repeated (module, repo).
	ErrCalledTwice = errors.New("can only be called once")

	// ErrNotRootModule is returned for overrides outside the root module.
	ErrNotRootModule = errors.New("is only allowed in the root module")

	// ErrUnimplemented marks statements that are accepted by the grammar
	// but whose semantics razel does not implement yet.
	ErrUnimplemented = errors.New("not implemented")

	// ErrMissingIdentity is returned when module() is never called or
	// leaves name or version empty.
	ErrMissingIdentity = errors.New("module name and version are required")

	// ErrInvalidModuleName is returned for a module name outside the
	// registry grammar. The grammar excludes '+', the canonical name
	// separator.
	ErrInvalidModuleName = errors.New("invalid module name")
)

var moduleNameRE = regexp.MustCompile(`^[a-z]([a-z0-9._-]*[a-z0-9])?$`)

// ValidateModuleName checks name against [a-z]([a-z0-9._-]*[a-z0-9])?.
func ValidateModuleName(name string) error {
	if !moduleNameRE.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidModuleName)
	}
	return nil
}

// ModuleBuilder accumulates the declarations of one MODULE.bazel file.
type ModuleBuilder struct {
	isRoot    bool
	ignoreDev bool

	declared           bool
	name               string
	version            string
	repoName           string
	compatibilityLevel int
	bazelCompatibility []string

	bazelDeps          []BazelDep
	overrides          []Override
	extensionUsages    []*ExtensionUsage
	toolchains         []string
	executionPlatforms []string

	// includes holds include() arguments as written.
	includes []string
}

// NewModuleBuilder returns an empty builder.
func NewModuleBuilder(isRoot, ignoreDevDependency bool) *ModuleBuilder {
	return &ModuleBuilder{isRoot: isRoot, ignoreDev: ignoreDevDependency}
}

// IsRoot reports whether the builder belongs to the root module.
func (b *ModuleBuilder) IsRoot() bool { return b.isRoot }

// Includes returns the include() arguments seen so far.
func (b *ModuleBuilder) Includes() []string { return b.includes }

// accepts applies the dev-dependency rule: a declaration is kept when the
// module is the root module, when it is not a dev dependency, or when dev
// dependencies are not being ignored.
func (b *ModuleBuilder) accepts(devDependency bool) bool {
	return b.isRoot || !devDependency || !b.ignoreDev
}

func (b *ModuleBuilder) setIdentity(name, version, repoName string, compat int, bazelCompat []string) error {
	if b.declared {
		return fmt.Errorf("module() %w", ErrCalledTwice)
	}
	if name != "" {
		if err := ValidateModuleName(name); err != nil {
			return fmt.Errorf("module(): name %w", err)
		}
	}
	b.declared = true
	b.name = name
	b.version = version
	b.repoName = repoName
	b.compatibilityLevel = compat
	b.bazelCompatibility = bazelCompat
	return nil
}

func (b *ModuleBuilder) addOverride(o Override) error {
	if err := ValidateModuleName(o.ModuleName); err != nil {
		return fmt.Errorf("%s(): module_name %w", o.Kind, err)
	}
	if !b.isRoot {
		return fmt.Errorf("%s() %w", o.Kind, ErrNotRootModule)
	}
	b.overrides = append(b.overrides, o)
	return nil
}

// Merge appends the declarations of other, an included file, to b.
// Includes are not merged; the caller drains them separately.
func (b *ModuleBuilder) Merge(other *ModuleBuilder) error {
	if other.declared {
		if err := b.setIdentity(other.name, other.version, other.repoName,
			other.compatibilityLevel, other.bazelCompatibility); err != nil {
			return err
		}
	}
	b.bazelDeps = append(b.bazelDeps, other.bazelDeps...)
	b.overrides = append(b.overrides, other.overrides...)
	b.extensionUsages = append(b.extensionUsages, other.extensionUsages...)
	b.toolchains = append(b.toolchains, other.toolchains...)
	b.executionPlatforms = append(b.executionPlatforms, other.executionPlatforms...)
	return nil
}

// Build checks the accumulated declarations and returns the Module.
func (b *ModuleBuilder) Build() (*Module, error) {
	if !b.declared || b.name == "" || b.version == "" {
		return nil, ErrMissingIdentity
	}
	repoName := b.repoName
	if repoName == "" {
		repoName = b.name
	}
	return &Module{
		Name:               b.name,
		Version:            b.version,
		RepoName:           repoName,
		CompatibilityLevel: b.compatibilityLevel,
		BazelCompatibility: b.bazelCompatibility,
		BazelDeps:          b.bazelDeps,
		Overrides:          b.overrides,
		ExtensionUsages:    b.extensionUsages,
		Toolchains:         b.toolchains,
		ExecutionPlatforms: b.executionPlatforms,
	}, nil
}
