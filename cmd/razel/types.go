package main

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIVersion is the result of the version command.
type CLIVersion struct {
	Version string `json:"version"`
}

// CLITarget is a resolved label and the package holding it.
type CLITarget struct {
	Label      string `json:"label"`
	Repository string `json:"repository"`
	Package    string `json:"package"`
	BuildFile  string `json:"build_file"`
	Digest     string `json:"digest"`
}

// CLIRepoMapping is the apparent-to-canonical mapping of one repository.
type CLIRepoMapping struct {
	Repository string            `json:"repository"`
	Mapping    map[string]string `json:"mapping"`
}

// CLIGraphNode is one repository of the resolved dependency graph.
type CLIGraphNode struct {
	Repository string            `json:"repository"`
	State      string            `json:"state"`
	Deps       map[string]string `json:"deps,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// CLIRepository is the indexed record of a single repository.
type CLIRepository struct {
	Repository   string            `json:"repository"`
	Module       string            `json:"module,omitempty"`
	Version      string            `json:"version,omitempty"`
	RepoName     string            `json:"repo_name,omitempty"`
	State        string            `json:"state"`
	Error        string            `json:"error,omitempty"`
	ModuleDigest string            `json:"module_digest,omitempty"`
	ResolvedAt   string            `json:"resolved_at"`
	Mapping      map[string]string `json:"mapping,omitempty"`
	Dependents   []string          `json:"dependents"`
}
