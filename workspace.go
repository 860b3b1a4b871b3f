package razel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/jward/razel/internal/bzlmod"
	"github.com/jward/razel/internal/files"
	"github.com/jward/razel/internal/label"
)

// Boundary marker files. Either one makes a directory a repository root.
const (
	ModuleFile = "MODULE.bazel"
	RepoFile   = "REPO.bazel"
)

// State is where a canonical repository name is in its evaluation.
type State int

const (
	Unregistered State = iota
	Evaluating
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Evaluating:
		return "evaluating"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unregistered"
	}
}

// Observer is told about every repository that reaches a terminal state.
// Calls may come from several goroutines at once.
type Observer interface {
	RepositoryResolved(r *Repository)
	RepositoryFailed(name label.CanonicalRepo, err error)
}

// Workspace holds the registry of repositories resolved, or being
// resolved, for one workspace root.
type Workspace struct {
	root   string
	marker string
	files  *files.LocalStore

	logger    *log.Logger
	observer  Observer
	locator   Locator
	ignoreDev bool
	digestFn  files.DigestFunction

	// ctx bounds every evaluation. Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	registry map[label.CanonicalRepo]*evaluation
	// rootModule is the main repository's module, set before any
	// dependency is registered.
	rootModule *bzlmod.Module
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(w *Workspace) {
		w.logger = l
	}
}

// WithObserver registers an observer of terminal registry transitions.
func WithObserver(o Observer) Option {
	return func(w *Workspace) {
		w.observer = o
	}
}

// WithLocator sets how dependency repositories are found. The default is
// a VendorLocator over <root>/external.
func WithLocator(l Locator) Option {
	return func(w *Workspace) {
		w.locator = l
	}
}

// WithIgnoreDevDependency drops dev_dependency declarations of non-root
// modules.
func WithIgnoreDevDependency(ignore bool) Option {
	return func(w *Workspace) {
		w.ignoreDev = ignore
	}
}

// WithDigestFunction selects the hash used for file digests. Default
// SHA256.
func WithDigestFunction(fn files.DigestFunction) Option {
	return func(w *Workspace) {
		w.digestFn = fn
	}
}

// New finds the workspace containing startDir and registers its main
// repository. The main repository is evaluated on first use.
func New(ctx context.Context, startDir string, opts ...Option) (*Workspace, error) {
	root, marker, err := FindWorkspaceRoot(startDir)
	if err != nil {
		return nil, err
	}
	store, err := files.NewLocalStore(root)
	if err != nil {
		return nil, fmt.Errorf("razel: open workspace: %w", err)
	}

	w := &Workspace{
		root:     root,
		marker:   marker,
		files:    store,
		digestFn: files.SHA256,
		registry: make(map[label.CanonicalRepo]*evaluation),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.New(io.Discard)
	}
	if w.locator == nil {
		w.locator = &VendorLocator{Dir: filepath.Join(root, "external"), WorkspaceRoot: root}
	}
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))

	w.register(label.MainRepo, w.evaluateMain)
	return w, nil
}

// FindWorkspaceRoot walks up from startDir, startDir included, to the
// first directory holding MODULE.bazel or REPO.bazel. It returns that
// directory and the marker found there.
func FindWorkspaceRoot(startDir string) (root, marker string, err error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", "", fmt.Errorf("razel: resolving path %q: %w", startDir, err)
	}
	for {
		for _, m := range []string{ModuleFile, RepoFile} {
			if info, err := os.Stat(filepath.Join(dir, m)); err == nil && info.Mode().IsRegular() {
				return dir, m, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", fmt.Errorf("razel: could not find %s or %s in parent directories of %s: %w",
				ModuleFile, RepoFile, startDir, ErrNotFound)
		}
		dir = parent
	}
}

// Close abandons evaluations still running. Repositories already handed
// out stay usable.
func (w *Workspace) Close() error {
	w.cancel()
	return nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Marker returns the boundary file found at the root.
func (w *Workspace) Marker() string { return w.marker }

// Logger returns the workspace logger.
func (w *Workspace) Logger() *log.Logger { return w.logger }

// DigestFunction returns the configured digest function.
func (w *Workspace) DigestFunction() files.DigestFunction { return w.digestFn }

// MainRepository waits for the main repository.
func (w *Workspace) MainRepository(ctx context.Context) (*Repository, error) {
	return w.Repository(ctx, label.MainRepo)
}

// Repository waits for the repository registered under name. Names are
// registered once some resolved repository depends on them.
func (w *Workspace) Repository(ctx context.Context, name label.CanonicalRepo) (*Repository, error) {
	w.mu.RLock()
	e, ok := w.registry[name]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("razel: repository %s: %w", name, ErrUnknownRepo)
	}
	return e.await(ctx)
}

// State reports the registry state of name.
func (w *Workspace) State(name label.CanonicalRepo) State {
	w.mu.RLock()
	e, ok := w.registry[name]
	w.mu.RUnlock()
	if !ok {
		return Unregistered
	}
	return e.state()
}

// Registered returns the number of registered repositories.
func (w *Workspace) Registered() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.registry)
}

// register installs an evaluation for name unless one exists. The lock is
// held only while checking and inserting; nothing is evaluated here.
func (w *Workspace) register(name label.CanonicalRepo, build buildFunc) *evaluation {
	w.mu.RLock()
	e, ok := w.registry[name]
	w.mu.RUnlock()
	if ok {
		return e
	}

	w.mu.Lock()
	if e, ok := w.registry[name]; ok {
		w.mu.Unlock()
		return e
	}
	e = &evaluation{w: w, name: name, build: build, done: make(chan struct{})}
	w.registry[name] = e
	w.mu.Unlock()

	w.logger.Debug("registered", "repo", name.String())
	return e
}

func (w *Workspace) overrideFor(moduleName string) *bzlmod.Override {
	w.mu.RLock()
	root := w.rootModule
	w.mu.RUnlock()
	if root == nil {
		return nil
	}
	if o, ok := root.Override(moduleName); ok {
		return &o
	}
	return nil
}

func (w *Workspace) evalOptions(isRoot bool) bzlmod.Options {
	return bzlmod.Options{IsRoot: isRoot, IgnoreDevDependency: w.ignoreDev, Logger: w.logger}
}

// evaluateMain builds the main repository. A workspace marked only by
// REPO.bazel has an empty root module.
func (w *Workspace) evaluateMain(ctx context.Context) (*Repository, error) {
	mod := &bzlmod.Module{}
	_, err := w.files.ReadFile(ctx, ModuleFile)
	switch {
	case err == nil:
		mod, err = bzlmod.Evaluate(ctx, w.files, ModuleFile, w.evalOptions(true))
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	w.mu.Lock()
	w.rootModule = mod
	w.mu.Unlock()
	return w.newRepository(ctx, label.MainRepo, w.files, mod)
}

// evaluateDep returns the build function of a dependency repository.
func (w *Workspace) evaluateDep(name label.CanonicalRepo, dep bzlmod.BazelDep) buildFunc {
	return func(ctx context.Context) (*Repository, error) {
		store, err := w.locator.Locate(ctx, LocateRequest{Repo: name, Dep: dep, Override: w.overrideFor(dep.Name)})
		if err != nil {
			return nil, err
		}
		mod, err := bzlmod.Evaluate(ctx, store, ModuleFile, w.evalOptions(false))
		if err != nil {
			return nil, err
		}
		if mod.Name != dep.Name {
			return nil, fmt.Errorf("module name %q does not match bazel_dep name %q", mod.Name, dep.Name)
		}
		return w.newRepository(ctx, name, store, mod)
	}
}

type buildFunc func(ctx context.Context) (*Repository, error)

// evaluation is one registry entry. It starts the first time somebody
// waits on it and finishes exactly once.
type evaluation struct {
	w     *Workspace
	name  label.CanonicalRepo
	build buildFunc

	once sync.Once
	done chan struct{}
	repo *Repository
	err  *SharedError
}

func (e *evaluation) await(ctx context.Context) (*Repository, error) {
	e.once.Do(func() { go e.run() })
	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return e.repo, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *evaluation) state() State {
	select {
	case <-e.done:
		if e.err != nil {
			return Failed
		}
		return Resolved
	default:
		return Evaluating
	}
}

// run evaluates the repository and publishes the outcome. The observer
// sees it before any waiter does.
func (e *evaluation) run() {
	w := e.w
	w.logger.Debug("evaluating", "repo", e.name.String())

	repo, err := e.build(w.ctx)
	if err == nil {
		err = w.ctx.Err()
	}
	defer close(e.done)

	if err != nil {
		e.err = share(fmt.Errorf("razel: evaluate %s: %w", e.name, err))
		w.logger.Debug("failed", "repo", e.name.String(), "err", e.err)
		if w.observer != nil {
			w.observer.RepositoryFailed(e.name, e.err)
		}
		return
	}

	e.repo = repo
	w.logger.Debug("resolved", "repo", e.name.String(), "deps", len(repo.deps))
	if w.observer != nil {
		w.observer.RepositoryResolved(repo)
	}
}
