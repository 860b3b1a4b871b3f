// Package razel resolves the repositories of a Bazel-compatible workspace:
// which repositories exist, how their apparent names map onto canonical
// names, and where their files live.
//
// # Resolution
//
// A [Workspace] is rooted at the nearest directory containing MODULE.bazel
// or REPO.bazel. The main repository is registered when the Workspace is
// created. Evaluating a repository runs its MODULE.bazel (see
// internal/bzlmod), assigns every bazel_dep a canonical name of the form
// name+version, and registers those names in turn:
//
//	ws, err := razel.New(ctx, ".")
//	if err != nil { ... }
//	defer ws.Close()
//
//	main, err := ws.MainRepository(ctx)
//	dep, ok := main.ResolveApparent("d") // @d -> @@dep+2.0
//
// Each canonical name is evaluated at most once for the life of the
// Workspace. Concurrent callers asking for the same repository wait on the
// same evaluation, and a failure is returned to all of them as one
// [*SharedError].
//
// # Packages and labels
//
// [Repository.ReadPackage] finds the BUILD or BUILD.bazel file of a
// package. [Workspace.Lookup] takes a label such as "@d//lib:util",
// canonicalises it through the main repository's mapping and returns the
// package that holds it.
//
// # Locating dependencies
//
// Dependency repositories are read through a [Locator]. The default
// [VendorLocator] expects them, already fetched, under
// <workspace>/external/<canonical name>. Nothing here downloads anything.
package razel
