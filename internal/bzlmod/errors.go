package bzlmod

import (
	"errors"
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ConfigError is a syntax or evaluation failure in a MODULE.bazel or
// REPO.bazel file. Line and Col are zero when no position is known.
type ConfigError struct {
	Path      string
	Line, Col int
	// Statement is the builtin that failed, e.g. "module", if any.
	Statement string
	Err       error
}

func (e *ConfigError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.Path, e.Line, e.Col)
	}
	return loc + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) setPos(pos syntax.Position) {
	if pos.Line > 0 {
		e.Line, e.Col = int(pos.Line), int(pos.Col)
	}
}

// configError converts an error from parsing or running a Starlark file.
func configError(path string, err error) *ConfigError {
	ce := &ConfigError{Path: path, Err: err}

	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	var evalErr *starlark.EvalError
	switch {
	case errors.As(err, &syntaxErr):
		ce.Err = errors.New(syntaxErr.Msg)
		ce.setPos(syntaxErr.Pos)
	case errors.As(err, &resolveErrs) && len(resolveErrs) > 0:
		ce.Err = errors.New(resolveErrs[0].Msg)
		ce.setPos(resolveErrs[0].Pos)
	case errors.As(err, &evalErr):
		if cause := evalErr.Unwrap(); cause != nil {
			ce.Err = cause
		} else {
			ce.Err = errors.New(evalErr.Msg)
		}
		// The innermost frame is the builtin that failed (builtins have no
		// line); the first frame with a line is the offending statement.
		stack := evalErr.CallStack
		for i := range stack {
			fr := stack.At(i)
			if i == 0 && fr.Pos.Line == 0 {
				ce.Statement = fr.Name
			}
			if fr.Pos.Line > 0 {
				ce.setPos(fr.Pos)
				break
			}
		}
	}
	return ce
}
