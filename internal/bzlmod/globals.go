package bzlmod

import (
	"fmt"
	"sync"

	"go.starlark.net/starlark"
)

const moduleBuilderKey = "razel.module_builder"

// moduleGlobals are the builtins predeclared in MODULE.bazel files. They
// carry no state of their own; each call finds its ModuleBuilder on the
// calling thread.
var moduleGlobals = sync.OnceValue(func() starlark.StringDict {
	d := starlark.StringDict{
		"module":                       makeModuleFn(),
		"bazel_dep":                    makeBazelDepFn(),
		"include":                      makeIncludeFn(),
		"archive_override":             makeKwargsOverrideFn(ArchiveOverride),
		"git_override":                 makeKwargsOverrideFn(GitOverride),
		"local_path_override":          makeLocalPathOverrideFn(),
		"single_version_override":      makeSingleVersionOverrideFn(),
		"multiple_version_override":    makeMultipleVersionOverrideFn(),
		"use_extension":                makeUseExtensionFn(),
		"use_repo":                     makeUseRepoFn(),
		"use_repo_rule":                makeUseRepoRuleFn(),
		"inject_repo":                  makeRepoInjectionFn("inject_repo"),
		"override_repo":                makeRepoInjectionFn("override_repo"),
		"register_toolchains":          makeRegisterFn("register_toolchains"),
		"register_execution_platforms": makeRegisterFn("register_execution_platforms"),
	}
	d.Freeze()
	return d
})

func moduleBuilder(thread *starlark.Thread, fn string) (*ModuleBuilder, error) {
	b, ok := thread.Local(moduleBuilderKey).(*ModuleBuilder)
	if !ok {
		return nil, fmt.Errorf("%s: called outside of a MODULE.bazel evaluation", fn)
	}
	return b, nil
}

func unimplemented(fn string) error {
	return fmt.Errorf("%s() is %w", fn, ErrUnimplemented)
}

// makeModuleFn creates the "module" builtin.
//
// module(name="", version="", compatibility_level=0, repo_name="", bazel_compatibility=[]) → None
func makeModuleFn() *starlark.Builtin {
	return starlark.NewBuiltin("module", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name, version, repoName string
			compat                  int
			bazelCompat             starlark.Value = starlark.None
		)
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"name?", &name,
			"version?", &version,
			"compatibility_level?", &compat,
			"repo_name?", &repoName,
			"bazel_compatibility?", &bazelCompat,
		); err != nil {
			return nil, err
		}
		compatList, err := stringList(fn.Name(), "bazel_compatibility", bazelCompat)
		if err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if err := b.setIdentity(name, version, repoName, compat, compatList); err != nil {
			return nil, err
		}
		return starlark.None, nil
	})
}

// makeBazelDepFn creates the "bazel_dep" builtin.
//
// bazel_dep(name, version="", max_compatibility_level=-1, repo_name=name, dev_dependency=False) → None
func makeBazelDepFn() *starlark.Builtin {
	return starlark.NewBuiltin("bazel_dep", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			name, version string
			maxCompat     = -1
			repoNameVal   starlark.Value
			dev           bool
		)
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"name", &name,
			"version?", &version,
			"max_compatibility_level?", &maxCompat,
			"repo_name?", &repoNameVal,
			"dev_dependency?", &dev,
		); err != nil {
			return nil, err
		}
		if err := ValidateModuleName(name); err != nil {
			return nil, fmt.Errorf("%s: name %w", fn.Name(), err)
		}

		repoName := name
		switch v := repoNameVal.(type) {
		case nil:
		case starlark.NoneType:
			repoName = ""
		case starlark.String:
			if v != "" {
				repoName = string(v)
			}
		default:
			return nil, fmt.Errorf("%s: for parameter repo_name: got %s, want string or None", fn.Name(), v.Type())
		}

		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if b.accepts(dev) {
			b.bazelDeps = append(b.bazelDeps, BazelDep{
				Name:                  name,
				Version:               version,
				RepoName:              repoName,
				MaxCompatibilityLevel: maxCompat,
				DevDependency:         dev,
			})
		}
		return starlark.None, nil
	})
}

// makeIncludeFn creates the "include" builtin.
//
// include(label) → None
func makeIncludeFn() *starlark.Builtin {
	return starlark.NewBuiltin("include", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var lbl string
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &lbl); err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		b.includes = append(b.includes, lbl)
		return starlark.None, nil
	})
}

// makeKwargsOverrideFn creates "archive_override" or "git_override". The
// fetch attributes are kept as given.
//
// archive_override(module_name, **kwargs) → None
// git_override(module_name, **kwargs) → None
func makeKwargsOverrideFn(kind OverrideKind) *starlark.Builtin {
	return starlark.NewBuiltin(string(kind), func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		named, rest := splitKwargs(kwargs, "module_name")
		var moduleName string
		if err := starlark.UnpackArgs(fn.Name(), args, named, "module_name", &moduleName); err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if err := b.addOverride(Override{Kind: kind, ModuleName: moduleName, Attrs: kwargsToGo(rest)}); err != nil {
			return nil, err
		}
		return starlark.None, nil
	})
}

// makeLocalPathOverrideFn creates the "local_path_override" builtin.
//
// local_path_override(module_name, path) → None
func makeLocalPathOverrideFn() *starlark.Builtin {
	return starlark.NewBuiltin(string(LocalPathOverride), func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var moduleName, path string
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "module_name", &moduleName, "path", &path); err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if err := b.addOverride(Override{Kind: LocalPathOverride, ModuleName: moduleName, Path: path}); err != nil {
			return nil, err
		}
		return starlark.None, nil
	})
}

// makeSingleVersionOverrideFn creates the "single_version_override" builtin.
//
// single_version_override(module_name, version="", registry="", patches=[], patch_cmds=[], patch_strip=0) → None
func makeSingleVersionOverrideFn() *starlark.Builtin {
	return starlark.NewBuiltin(string(SingleVersionOverride), func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			moduleName, version, registry string
			patches, patchCmds            starlark.Value = starlark.None, starlark.None
			patchStrip                    int
		)
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"module_name", &moduleName,
			"version?", &version,
			"registry?", &registry,
			"patches?", &patches,
			"patch_cmds?", &patchCmds,
			"patch_strip?", &patchStrip,
		); err != nil {
			return nil, err
		}
		patchList, err := stringList(fn.Name(), "patches", patches)
		if err != nil {
			return nil, err
		}
		cmdList, err := stringList(fn.Name(), "patch_cmds", patchCmds)
		if err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		o := Override{
			Kind:       SingleVersionOverride,
			ModuleName: moduleName,
			Version:    version,
			Registry:   registry,
			Patches:    patchList,
			PatchCmds:  cmdList,
			PatchStrip: patchStrip,
		}
		if err := b.addOverride(o); err != nil {
			return nil, err
		}
		return starlark.None, nil
	})
}

// makeMultipleVersionOverrideFn creates the "multiple_version_override" builtin.
//
// multiple_version_override(module_name, versions, registry="") → None
func makeMultipleVersionOverrideFn() *starlark.Builtin {
	return starlark.NewBuiltin(string(MultipleVersionOverride), func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			moduleName, registry string
			versions             starlark.Value
		)
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"module_name", &moduleName,
			"versions", &versions,
			"registry?", &registry,
		); err != nil {
			return nil, err
		}
		versionList, err := stringList(fn.Name(), "versions", versions)
		if err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		o := Override{Kind: MultipleVersionOverride, ModuleName: moduleName, Versions: versionList, Registry: registry}
		if err := b.addOverride(o); err != nil {
			return nil, err
		}
		return starlark.None, nil
	})
}

// makeUseExtensionFn creates the "use_extension" builtin. Usages the
// dev-dependency rule drops get an inert proxy that ignores tags and
// use_repo.
//
// use_extension(extension_bzl_file, extension_name, dev_dependency=False, isolate=False) → module_extension_proxy
func makeUseExtensionFn() *starlark.Builtin {
	return starlark.NewBuiltin("use_extension", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			bzlFile, name string
			dev, isolate  bool
		)
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"extension_bzl_file", &bzlFile,
			"extension_name", &name,
			"dev_dependency?", &dev,
			"isolate?", &isolate,
		); err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if !b.accepts(dev) {
			return &extensionProxy{}, nil
		}
		if isolate {
			return nil, fmt.Errorf("%s(isolate = True) is %w", fn.Name(), ErrUnimplemented)
		}
		usage := &ExtensionUsage{BzlFile: bzlFile, Name: name, DevDependency: dev}
		b.extensionUsages = append(b.extensionUsages, usage)
		return &extensionProxy{usage: usage}, nil
	})
}

// makeUseRepoFn creates the "use_repo" builtin. Positional names are
// imported as themselves; keyword arguments rename.
//
// use_repo(extension_proxy, *args, **kwargs) → None
func makeUseRepoFn() *starlark.Builtin {
	return starlark.NewBuiltin("use_repo", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing argument for extension_proxy", fn.Name())
		}
		proxy, ok := args[0].(*extensionProxy)
		if !ok {
			return nil, fmt.Errorf("%s: for parameter extension_proxy: got %s, want module_extension_proxy", fn.Name(), args[0].Type())
		}
		imports := make(map[string]string, len(args)-1+len(kwargs))
		for i, v := range args[1:] {
			s, ok := starlark.AsString(v)
			if !ok {
				return nil, fmt.Errorf("%s: argument %d: got %s, want string", fn.Name(), i+2, v.Type())
			}
			imports[s] = s
		}
		for _, kv := range kwargs {
			k, _ := starlark.AsString(kv[0])
			s, ok := starlark.AsString(kv[1])
			if !ok {
				return nil, fmt.Errorf("%s: for parameter %s: got %s, want string", fn.Name(), k, kv[1].Type())
			}
			imports[k] = s
		}
		if proxy.usage == nil {
			return starlark.None, nil
		}
		if proxy.usage.Imports == nil {
			proxy.usage.Imports = make(map[string]string, len(imports))
		}
		for k, v := range imports {
			proxy.usage.Imports[k] = v
		}
		return starlark.None, nil
	})
}

// makeUseRepoRuleFn creates the "use_repo_rule" builtin.
//
// use_repo_rule(repo_rule_bzl_file, repo_rule_name) → repo_rule_proxy
func makeUseRepoRuleFn() *starlark.Builtin {
	return starlark.NewBuiltin("use_repo_rule", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var bzlFile, name string
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
			"repo_rule_bzl_file", &bzlFile,
			"repo_rule_name", &name,
		); err != nil {
			return nil, err
		}
		return &repoRuleProxy{bzlFile: bzlFile, name: name}, nil
	})
}

// makeRepoInjectionFn creates "inject_repo" or "override_repo". Both only
// take effect in the root module with dev dependencies enabled, which is
// where they fail as unimplemented.
//
// inject_repo(extension_proxy, *args, **kwargs) → None
// override_repo(extension_proxy, *args, **kwargs) → None
func makeRepoInjectionFn(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: missing argument for extension_proxy", fn.Name())
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if b.isRoot && !b.ignoreDev {
			return nil, unimplemented(fn.Name())
		}
		return starlark.None, nil
	})
}

// makeRegisterFn creates "register_toolchains" or
// "register_execution_platforms".
//
// register_toolchains(*toolchain_labels, dev_dependency=False) → None
// register_execution_platforms(*platform_labels, dev_dependency=False) → None
func makeRegisterFn(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var dev bool
		if err := starlark.UnpackArgs(fn.Name(), nil, kwargs, "dev_dependency?", &dev); err != nil {
			return nil, err
		}
		labels, err := stringList(fn.Name(), "labels", args)
		if err != nil {
			return nil, err
		}
		b, err := moduleBuilder(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		if !b.accepts(dev) {
			return starlark.None, nil
		}
		if fn.Name() == "register_toolchains" {
			b.toolchains = append(b.toolchains, labels...)
		} else {
			b.executionPlatforms = append(b.executionPlatforms, labels...)
		}
		return starlark.None, nil
	})
}

// extensionProxy is the value use_extension returns. Attribute access
// yields tag-class functions that record Tags on the usage. The inert
// proxy (usage == nil) accepts everything and records nothing.
type extensionProxy struct {
	usage *ExtensionUsage
}

var (
	_ starlark.Value    = (*extensionProxy)(nil)
	_ starlark.HasAttrs = (*extensionProxy)(nil)
)

func (p *extensionProxy) String() string {
	if p.usage == nil {
		return "<module_extension_proxy (ignored)>"
	}
	return fmt.Sprintf("<module_extension_proxy %s%%%s>", p.usage.BzlFile, p.usage.Name)
}
func (p *extensionProxy) Type() string          { return "module_extension_proxy" }
func (p *extensionProxy) Freeze()               {}
func (p *extensionProxy) Truth() starlark.Bool  { return starlark.True }
func (p *extensionProxy) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", p.Type()) }
func (p *extensionProxy) AttrNames() []string   { return nil }

func (p *extensionProxy) Attr(name string) (starlark.Value, error) {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: tag classes take keyword arguments only", fn.Name())
		}
		if p.usage != nil {
			p.usage.Tags = append(p.usage.Tags, Tag{Name: name, Attrs: kwargsToGo(kwargs)})
		}
		return starlark.None, nil
	}), nil
}

// repoRuleProxy is the value use_repo_rule returns.
type repoRuleProxy struct {
	bzlFile, name string
}

var _ starlark.Callable = (*repoRuleProxy)(nil)

func (p *repoRuleProxy) String() string         { return fmt.Sprintf("<repo_rule_proxy %s%%%s>", p.bzlFile, p.name) }
func (p *repoRuleProxy) Type() string           { return "repo_rule_proxy" }
func (p *repoRuleProxy) Freeze()                {}
func (p *repoRuleProxy) Truth() starlark.Bool   { return starlark.True }
func (p *repoRuleProxy) Hash() (uint32, error)  { return 0, fmt.Errorf("unhashable type: %s", p.Type()) }
func (p *repoRuleProxy) Name() string           { return p.name }

func (p *repoRuleProxy) CallInternal(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return nil, unimplemented(p.name)
}

// splitKwargs separates the named keyword arguments from the rest.
func splitKwargs(kwargs []starlark.Tuple, names ...string) (named, rest []starlark.Tuple) {
	for _, kv := range kwargs {
		k, _ := starlark.AsString(kv[0])
		matched := false
		for _, n := range names {
			if k == n {
				matched = true
				break
			}
		}
		if matched {
			named = append(named, kv)
		} else {
			rest = append(rest, kv)
		}
	}
	return named, rest
}

// stringList converts None or an iterable of strings.
func stringList(fn, param string, v starlark.Value) ([]string, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: for parameter %s: got %s, want list of strings", fn, param, v.Type())
	}
	it := iterable.Iterate()
	defer it.Done()
	var out []string
	var elem starlark.Value
	for it.Next(&elem) {
		s, ok := starlark.AsString(elem)
		if !ok {
			return nil, fmt.Errorf("%s: for parameter %s: got %s element, want string", fn, param, elem.Type())
		}
		out = append(out, s)
	}
	return out, nil
}

func kwargsToGo(kwargs []starlark.Tuple) map[string]any {
	if len(kwargs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kwargs))
	for _, kv := range kwargs {
		k, _ := starlark.AsString(kv[0])
		out[k] = toGo(kv[1])
	}
	return out
}

// toGo converts a Starlark value to plain Go data. Values with no Go
// counterpart are kept as their Starlark string form.
func toGo(v starlark.Value) any {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(v)
	case starlark.String:
		return string(v)
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i
		}
		return v.String()
	case starlark.Float:
		return float64(v)
	case *starlark.List:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = toGo(v.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = toGo(e)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, kv := range v.Items() {
			k, ok := starlark.AsString(kv[0])
			if !ok {
				k = kv[0].String()
			}
			out[k] = toGo(kv[1])
		}
		return out
	}
	return v.String()
}
