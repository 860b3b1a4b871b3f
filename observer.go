package razel

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jward/razel/internal/label"
	"github.com/jward/razel/internal/store"
)

// IndexObserver records every finished repository in the resolution
// index. Writes are serialized. Write failures are logged.
type IndexObserver struct {
	mu     sync.Mutex
	store  *store.Store
	logger *log.Logger
	now    func() time.Time
}

var _ Observer = (*IndexObserver)(nil)

// NewIndexObserver returns an observer writing to s. A nil logger
// discards.
func NewIndexObserver(s *store.Store, logger *log.Logger) *IndexObserver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &IndexObserver{store: s, logger: logger, now: time.Now}
}

func (o *IndexObserver) RepositoryResolved(r *Repository) {
	mod := r.Module()
	data, err := json.Marshal(mod)
	if err != nil {
		o.logger.Warn("encode module", "repo", r.CanonicalName().String(), "err", err)
		return
	}

	rec := &store.Repository{
		CanonicalName: r.CanonicalName().Name(),
		ModuleName:    mod.Name,
		Version:       mod.Version,
		RepoName:      mod.RepoName,
		State:         store.StateResolved,
		ResolvedAt:    o.now().UTC(),
		ModuleJSON:    string(data),
		Mappings:      make(map[string]string, len(r.mapping)),
	}
	if d := r.ModuleDigest(); d.Hash != "" {
		rec.ModuleDigest = d.String()
	}
	for apparent, target := range r.mapping {
		rec.Mappings[apparent.Name()] = target.Name()
	}
	if err := o.put(rec); err != nil {
		o.logger.Warn("record repository", "repo", r.CanonicalName().String(), "err", err)
	}
}

func (o *IndexObserver) RepositoryFailed(name label.CanonicalRepo, err error) {
	rec := &store.Repository{
		CanonicalName: name.Name(),
		State:         store.StateFailed,
		Error:         err.Error(),
		ResolvedAt:    o.now().UTC(),
	}
	if err := o.put(rec); err != nil {
		o.logger.Warn("record repository", "repo", name.String(), "err", err)
	}
}

func (o *IndexObserver) put(rec *store.Repository) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.PutRepository(rec)
}

// RepositoryGraph is a recorded repository and its outgoing edges, as
// read back from the index.
type RepositoryGraph struct {
	Repo  label.CanonicalRepo
	State string
	Deps  map[label.ApparentRepo]label.CanonicalRepo
}

// ReadGraph reads every recorded repository from s, sorted by canonical
// name.
func ReadGraph(s *store.Store) ([]RepositoryGraph, error) {
	names, err := s.RepositoryNames()
	if err != nil {
		return nil, err
	}
	edges, err := s.Edges()
	if err != nil {
		return nil, err
	}

	byRepo := make(map[string]*RepositoryGraph, len(names))
	graph := make([]RepositoryGraph, 0, len(names))
	for _, name := range names {
		rec, err := s.RepositoryByName(name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		graph = append(graph, RepositoryGraph{
			Repo:  label.CanonicalRepo(name),
			State: rec.State,
			Deps:  make(map[label.ApparentRepo]label.CanonicalRepo),
		})
	}
	for i := range graph {
		byRepo[graph[i].Repo.Name()] = &graph[i]
	}
	for _, e := range edges {
		g, ok := byRepo[e.From]
		if !ok || e.To == e.From || e.Apparent == "" {
			continue
		}
		g.Deps[label.ApparentRepo(e.Apparent)] = label.CanonicalRepo(e.To)
	}
	sort.Slice(graph, func(i, j int) bool { return graph[i].Repo < graph[j].Repo })
	return graph, nil
}
