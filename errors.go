package razel

import (
	"errors"

	"github.com/jward/razel/internal/files"
)

var (
	// ErrAlreadyExists reports a conflict: a package with both BUILD and
	// BUILD.bazel, or two repositories claiming the same apparent name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnknownRepo is returned for a canonical name that was never
	// registered, or an apparent name missing from a repository mapping.
	ErrUnknownRepo = errors.New("unknown repository")

	// ErrNotFound is files.ErrNotFound, re-exported for callers of this
	// package.
	ErrNotFound = files.ErrNotFound
)

// SharedError is the error of a failed repository evaluation. It is built
// once when the evaluation fails and the same value is returned to every
// caller that waits on that repository, then or later.
type SharedError struct {
	err error
	msg string
}

func share(err error) *SharedError {
	if se, ok := err.(*SharedError); ok {
		return se
	}
	return &SharedError{err: err, msg: err.Error()}
}

func (e *SharedError) Error() string { return e.msg }

// Unwrap returns the original evaluation error.
func (e *SharedError) Unwrap() error { return e.err }
