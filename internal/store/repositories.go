package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// PutRepository records r and replaces its mappings.
func (s *Store) PutRepository(r *Repository) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
INSERT INTO repositories (canonical_name, module_name, version, repo_name, state, error, module_json, module_digest, resolved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(canonical_name) DO UPDATE SET
  module_name   = excluded.module_name,
  version       = excluded.version,
  repo_name     = excluded.repo_name,
  state         = excluded.state,
  error         = excluded.error,
  module_json   = excluded.module_json,
  module_digest = excluded.module_digest,
  resolved_at   = excluded.resolved_at`,
		r.CanonicalName, r.ModuleName, r.Version, r.RepoName, r.State, r.Error, r.ModuleJSON, r.ModuleDigest, r.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("put repository %s: %w", r.CanonicalName, err)
	}

	if _, err := tx.Exec("DELETE FROM repo_mappings WHERE canonical_name = ?", r.CanonicalName); err != nil {
		return fmt.Errorf("clear mappings %s: %w", r.CanonicalName, err)
	}
	for apparent, target := range r.Mappings {
		if _, err := tx.Exec(
			"INSERT INTO repo_mappings (canonical_name, apparent_name, target) VALUES (?, ?, ?)",
			r.CanonicalName, apparent, target,
		); err != nil {
			return fmt.Errorf("insert mapping %s -> %s: %w", apparent, target, err)
		}
	}
	return tx.Commit()
}

// RepositoryByName returns the recorded repository, or nil if none.
func (s *Store) RepositoryByName(canonical string) (*Repository, error) {
	r := &Repository{}
	var errText, moduleJSON, moduleDigest sql.NullString
	err := s.db.QueryRow(
		"SELECT canonical_name, module_name, version, repo_name, state, error, module_json, module_digest, resolved_at FROM repositories WHERE canonical_name = ?",
		canonical,
	).Scan(&r.CanonicalName, &r.ModuleName, &r.Version, &r.RepoName, &r.State, &errText, &moduleJSON, &moduleDigest, &r.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository by name: %w", err)
	}
	r.Error = errText.String
	r.ModuleJSON = moduleJSON.String
	r.ModuleDigest = moduleDigest.String

	mappings, err := s.mappingsOf(canonical)
	if err != nil {
		return nil, err
	}
	r.Mappings = mappings
	return r, nil
}

func (s *Store) mappingsOf(canonical string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT apparent_name, target FROM repo_mappings WHERE canonical_name = ?", canonical)
	if err != nil {
		return nil, fmt.Errorf("mappings of %s: %w", canonical, err)
	}
	defer rows.Close()
	mappings := make(map[string]string)
	for rows.Next() {
		var apparent, target string
		if err := rows.Scan(&apparent, &target); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings[apparent] = target
	}
	return mappings, rows.Err()
}

// RepositoryNames returns the canonical names of all recorded
// repositories, sorted.
func (s *Store) RepositoryNames() ([]string, error) {
	rows, err := s.db.Query("SELECT canonical_name FROM repositories ORDER BY canonical_name")
	if err != nil {
		return nil, fmt.Errorf("repository names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan repository name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RepositoriesByState returns the canonical names recorded in state.
func (s *Store) RepositoriesByState(state string) ([]string, error) {
	rows, err := s.db.Query("SELECT canonical_name FROM repositories WHERE state = ? ORDER BY canonical_name", state)
	if err != nil {
		return nil, fmt.Errorf("repositories by state: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan repository name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Edges returns every mapping entry, ordered by source then apparent name.
func (s *Store) Edges() ([]Edge, error) {
	rows, err := s.db.Query("SELECT canonical_name, apparent_name, target FROM repo_mappings ORDER BY canonical_name, apparent_name")
	if err != nil {
		return nil, fmt.Errorf("edges: %w", err)
	}
	defer rows.Close()
	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.From, &e.Apparent, &e.To); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Dependents returns the repositories whose mapping points at canonical,
// excluding canonical itself. The implicit main-repository entry (empty
// apparent name) present in every mapping is not a dependency.
func (s *Store) Dependents(canonical string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT canonical_name FROM repo_mappings WHERE target = ? AND canonical_name != ? AND apparent_name != ''",
		canonical, canonical,
	)
	if err != nil {
		return nil, fmt.Errorf("dependents of %s: %w", canonical, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
