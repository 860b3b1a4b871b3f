package store

import "time"

// Repository states as recorded in the index.
const (
	StateResolved = "resolved"
	StateFailed   = "failed"
)

// Repository is one recorded repository.
type Repository struct {
	CanonicalName string
	ModuleName    string
	Version       string
	RepoName      string
	State         string
	Error         string
	ResolvedAt    time.Time

	// ModuleJSON is the evaluated module, JSON-encoded.
	ModuleJSON string

	// ModuleDigest is the digest of MODULE.bazel, e.g. "sha256:ab12.../42".
	ModuleDigest string

	// Mappings maps apparent names to canonical names.
	Mappings map[string]string
}

// Edge is one repository mapping entry: From sees To under Apparent.
type Edge struct {
	From     string
	Apparent string
	To       string
}
