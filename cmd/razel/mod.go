package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/razel"
	"github.com/jward/razel/internal/label"
	"github.com/jward/razel/internal/store"
)

var modCmd = &cobra.Command{
	Use:   "mod",
	Short: "Inspect the external dependency graph",
}

func init() {
	modCmd.AddCommand(modDumpRepoMappingCmd)
	modCmd.AddCommand(modGraphCmd)
	modCmd.AddCommand(modShowCmd)
}

// parseCanonicalArg accepts a canonical repository name with or without
// its "@@" prefix. Apparent names ("@foo") are rejected.
func parseCanonicalArg(s string) (label.CanonicalRepo, error) {
	if name, ok := strings.CutPrefix(s, "@@"); ok {
		s = name
	} else if strings.HasPrefix(s, "@") {
		return "", fmt.Errorf("%q is an apparent repository name; use @@<canonical>", s)
	}
	if strings.ContainsAny(s, "@/:") {
		return "", fmt.Errorf("invalid canonical repository name %q", s)
	}
	return label.CanonicalRepo(s), nil
}

var modDumpRepoMappingCmd = &cobra.Command{
	Use:   "dump_repo_mapping [canonical...]",
	Short: "Print the repository mapping of each named repository (default: the main repository)",
	RunE: func(cmd *cobra.Command, args []string) error {
		const command = "mod dump_repo_mapping"
		names := []label.CanonicalRepo{label.MainRepo}
		if len(args) > 0 {
			names = names[:0]
			for _, a := range args {
				name, err := parseCanonicalArg(a)
				if err != nil {
					return outputError(cmd, command, err)
				}
				names = append(names, name)
			}
		}

		s, err := loadSession(cmd)
		if err != nil {
			return outputError(cmd, command, err)
		}
		defer s.Close()
		ctx := cmd.Context()
		ws, err := s.openWorkspace(ctx)
		if err != nil {
			return outputError(cmd, command, err)
		}

		results := make([]CLIRepoMapping, 0, len(names))
		for _, name := range names {
			if ws.State(name) == razel.Unregistered {
				if _, err := ws.ResolveAll(ctx); err != nil && ws.State(name) == razel.Unregistered {
					return outputError(cmd, command, err)
				}
			}
			repo, err := ws.Repository(ctx, name)
			if err != nil {
				return outputError(cmd, command, err)
			}
			m := make(map[string]string)
			for apparent, canonical := range repo.Mapping() {
				m[apparent.Name()] = canonical.Name()
			}
			results = append(results, CLIRepoMapping{Repository: name.Name(), Mapping: m})
		}
		return outputResult(cmd, CLIResult{Command: command, Results: results})
	},
}

var modGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Resolve every repository and record the graph in the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		const command = "mod graph"
		s, err := loadSession(cmd)
		if err != nil {
			return outputError(cmd, command, err)
		}
		defer s.Close()

		if err := os.MkdirAll(filepath.Dir(s.cfg.IndexPath), 0o755); err != nil {
			return outputError(cmd, command, fmt.Errorf("creating index directory: %w", err))
		}
		st, err := store.NewStore(s.cfg.IndexPath)
		if err != nil {
			return outputError(cmd, command, err)
		}
		defer st.Close()
		if err := st.Migrate(); err != nil {
			return outputError(cmd, command, err)
		}
		if err := st.Reset(); err != nil {
			return outputError(cmd, command, err)
		}

		ctx := cmd.Context()
		ws, err := s.openWorkspace(ctx, razel.WithObserver(razel.NewIndexObserver(st, s.logger)))
		if err != nil {
			return outputError(cmd, command, err)
		}
		start := time.Now()
		repos, resolveErr := ws.ResolveAll(ctx)
		s.logger.Info("resolved", "repositories", len(repos), "elapsed", time.Since(start).Round(time.Millisecond))

		if err := st.SetMetadata("workspace_root", s.root); err != nil {
			return outputError(cmd, command, err)
		}
		if err := st.SetMetadata("resolved_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			return outputError(cmd, command, err)
		}

		graph, err := razel.ReadGraph(st)
		if err != nil {
			return outputError(cmd, command, err)
		}
		nodes := make([]CLIGraphNode, 0, len(graph))
		for _, g := range graph {
			node := CLIGraphNode{Repository: g.Repo.Name(), State: g.State}
			if len(g.Deps) > 0 {
				node.Deps = make(map[string]string, len(g.Deps))
				for apparent, canonical := range g.Deps {
					node.Deps[apparent.Name()] = canonical.Name()
				}
			}
			if g.State == store.StateFailed {
				rec, err := st.RepositoryByName(g.Repo.Name())
				if err != nil {
					return outputError(cmd, command, err)
				}
				if rec != nil {
					node.Error = rec.Error
				}
			}
			nodes = append(nodes, node)
		}

		result := CLIResult{Command: command, Results: nodes}
		if resolveErr != nil {
			result.Error = resolveErr.Error()
			errorHandled = true
			if err := outputResult(cmd, result); err != nil {
				return err
			}
			return resolveErr
		}
		return outputResult(cmd, result)
	},
}

var modShowCmd = &cobra.Command{
	Use:   "show <canonical>",
	Short: "Show the indexed record of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		const command = "mod show"
		name, err := parseCanonicalArg(args[0])
		if err != nil {
			return outputError(cmd, command, err)
		}
		s, err := loadSession(cmd)
		if err != nil {
			return outputError(cmd, command, err)
		}
		defer s.Close()

		if _, err := os.Stat(s.cfg.IndexPath); errors.Is(err, os.ErrNotExist) {
			return outputError(cmd, command, fmt.Errorf("no index at %s: run 'razel mod graph' first", s.cfg.IndexPath))
		}
		st, err := store.NewStore(s.cfg.IndexPath)
		if err != nil {
			return outputError(cmd, command, err)
		}
		defer st.Close()

		rec, err := st.RepositoryByName(name.Name())
		if err != nil {
			return outputError(cmd, command, err)
		}
		if rec == nil {
			return outputError(cmd, command, fmt.Errorf("%s: %w", name, razel.ErrUnknownRepo))
		}
		dependents, err := st.Dependents(rec.CanonicalName)
		if err != nil {
			return outputError(cmd, command, err)
		}
		if dependents == nil {
			dependents = []string{}
		}

		return outputResult(cmd, CLIResult{
			Command: command,
			Results: CLIRepository{
				Repository:   rec.CanonicalName,
				Module:       rec.ModuleName,
				Version:      rec.Version,
				RepoName:     rec.RepoName,
				State:        rec.State,
				Error:        rec.Error,
				ModuleDigest: rec.ModuleDigest,
				ResolvedAt:   rec.ResolvedAt.UTC().Format(time.RFC3339),
				Mapping:      rec.Mappings,
				Dependents:   dependents,
			},
		})
	},
}
