package razel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// benchLayers and benchWidth shape the synthetic graph: every module in
// layer i depends on every module in layer i+1.
const (
	benchLayers = 4
	benchWidth  = 8
)

func benchModuleName(layer, i int) string { return fmt.Sprintf("l%d_%d", layer, i) }

// benchGraph returns the root MODULE.bazel and a locator serving a layered
// dependency graph.
func benchGraph() (string, *StoreLocator) {
	deps := func(layer int) string {
		if layer >= benchLayers {
			return ""
		}
		var sb strings.Builder
		for i := 0; i < benchWidth; i++ {
			fmt.Fprintf(&sb, "bazel_dep(name = %q, version = \"1.0\")\n", benchModuleName(layer, i))
		}
		return sb.String()
	}

	stores := make(map[label.CanonicalRepo]files.Store)
	for layer := 0; layer < benchLayers; layer++ {
		for i := 0; i < benchWidth; i++ {
			name := benchModuleName(layer, i)
			src := fmt.Sprintf("module(name = %q, version = \"1.0\")\n", name) + deps(layer+1)
			stores[label.CanonicalRepo(name+"+1.0")] = files.NewMemStore(map[string]string{
				"MODULE.bazel": src,
				"BUILD":        "",
			})
		}
	}
	return "module(name = \"bench\", version = \"1.0\")\n" + deps(0), NewStoreLocator(stores)
}

func setupBenchWorkspace(b *testing.B, rootModule string) string {
	b.Helper()
	dir := b.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ModuleFile), []byte(rootModule), 0o644); err != nil {
		b.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, BuildFile), nil, 0o644); err != nil {
		b.Fatal(err)
	}
	return dir
}

// BenchmarkResolveAll measures a cold resolution of the whole graph.
func BenchmarkResolveAll(b *testing.B) {
	rootModule, _ := benchGraph()
	dir := setupBenchWorkspace(b, rootModule)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		_, locator := benchGraph()
		ws, err := New(ctx, dir, WithLocator(locator))
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		repos, err := ws.ResolveAll(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if len(repos) != benchLayers*benchWidth+1 {
			b.Fatalf("resolved %d repositories", len(repos))
		}

		b.StopTimer()
		ws.Close()
		b.StartTimer()
	}
}

// BenchmarkLookup measures Lookup against an already resolved workspace.
func BenchmarkLookup(b *testing.B) {
	rootModule, locator := benchGraph()
	dir := setupBenchWorkspace(b, rootModule)
	ctx := context.Background()

	ws, err := New(ctx, dir, WithLocator(locator))
	if err != nil {
		b.Fatal(err)
	}
	defer ws.Close()
	if _, err := ws.ResolveAll(ctx); err != nil {
		b.Fatal(err)
	}
	target := "@" + benchModuleName(0, 0) + "//:x"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ws.Lookup(ctx, target); err != nil {
			b.Fatal(err)
		}
	}
}
