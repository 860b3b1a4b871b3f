package label

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Character sets from https://bazel.build/concepts/labels#labels-lexical-specification.
const (
	targetPunct  = `!%@^_"#$&'()*-+,;<=>?[]{|}~.`
	packagePunct = "! \"#$%&'()*+,-.;<=>?@[]^_`{|}"
	repoPunct    = "+_.-"
)

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isTargetChar(c byte) bool  { return isAlnum(c) || strings.IndexByte(targetPunct, c) >= 0 }
func isPackageChar(c byte) bool { return isAlnum(c) || strings.IndexByte(packagePunct, c) >= 0 }
func isRepoChar(c byte) bool    { return isAlnum(c) || strings.IndexByte(repoPunct, c) >= 0 }

// ParseError describes why a label failed to parse.
//
// Positional errors carry the byte offset of the offending character and
// the set of tokens that would have been accepted there. Validation errors
// (a "." target segment, an all-dots package segment) carry a Reason and
// the offset of the offending segment.
type ParseError struct {
	Input    string
	Offset   int
	Expected []string
	Reason   string
}

// Found describes the input at Offset: a quoted character or "end of input".
func (e *ParseError) Found() string {
	if e.Offset >= len(e.Input) {
		return "end of input"
	}
	r, _ := utf8.DecodeRuneInString(e.Input[e.Offset:])
	return fmt.Sprintf("'%c'", r)
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "found " + e.Found() + " expected " + joinExpected(e.Expected)
}

// Diagnostic renders the input with a caret under the offending position.
func (e *ParseError) Diagnostic() string {
	return fmt.Sprintf("%s\n%s^ %s", e.Input, strings.Repeat(" ", e.Offset), e.Error())
}

func joinExpected(items []string) string {
	switch len(items) {
	case 0:
		return "something else"
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}

// fragment holds the parts present in the input; absent parts come from
// the parse context.
type fragment struct {
	repo       Repo
	hasRepo    bool
	pkg        string
	hasPackage bool
	target     string
	hasTarget  bool
}

// scanner walks one grammar alternative. A structural failure stops the
// scan; validation failures are remembered and only reported if the
// alternative is otherwise well-formed.
type scanner struct {
	in      string
	pos     int
	invalid *ParseError
}

func (s *scanner) eof() bool  { return s.pos >= len(s.in) }
func (s *scanner) peek() byte { return s.in[s.pos] }

func (s *scanner) fail(expected ...string) *ParseError {
	return &ParseError{Input: s.in, Offset: s.pos, Expected: expected}
}

func (s *scanner) reject(at int, reason string) {
	if s.invalid == nil {
		s.invalid = &ParseError{Input: s.in, Offset: at, Reason: reason}
	}
}

func (s *scanner) take(ok func(byte) bool) string {
	start := s.pos
	for !s.eof() && ok(s.peek()) {
		s.pos++
	}
	return s.in[start:s.pos]
}

// packagePath scans zero or more '/'-separated package segments.
func (s *scanner) packagePath() (string, *ParseError) {
	start := s.pos
	if s.eof() || !isPackageChar(s.peek()) {
		return "", nil
	}
	for {
		segStart := s.pos
		seg := s.take(isPackageChar)
		if strings.Trim(seg, ".") == "" {
			s.reject(segStart, "Package can't include an all-dots segment")
		}
		if s.eof() || s.peek() != '/' {
			return s.in[start:s.pos], nil
		}
		s.pos++
		if s.eof() || !isPackageChar(s.peek()) {
			return "", s.fail("valid package character")
		}
	}
}

// targetName scans one or more '/'-separated target segments.
func (s *scanner) targetName() (string, *ParseError) {
	start := s.pos
	if s.eof() || !isTargetChar(s.peek()) {
		return "", s.fail("target name")
	}
	for {
		segStart := s.pos
		seg := s.take(isTargetChar)
		if seg == "." || seg == ".." {
			s.reject(segStart, "Target can't include . or ..")
		}
		if s.eof() || s.peek() != '/' {
			return s.in[start:s.pos], nil
		}
		s.pos++
		if s.eof() || !isTargetChar(s.peek()) {
			return "", s.fail("valid target character")
		}
	}
}

// absolute scans [@name|@@name]//package[:target].
func absolute(in string) (fragment, *ParseError) {
	s := &scanner{in: in}
	var f fragment

	switch {
	case strings.HasPrefix(in, "@@"):
		s.pos = 2
		f.repo, f.hasRepo = Canonical(s.take(isRepoChar)), true
	case strings.HasPrefix(in, "@"):
		s.pos = 1
		f.repo, f.hasRepo = Apparent(s.take(isRepoChar)), true
	}

	if !strings.HasPrefix(in[s.pos:], "//") {
		if !s.eof() && s.peek() == '/' {
			s.pos++
			return f, s.fail("'/'")
		}
		if f.hasRepo {
			return f, s.fail("valid repo character", "'/'")
		}
		return f, s.fail("'@'", "'/'")
	}
	s.pos += 2

	pkg, err := s.packagePath()
	if err != nil {
		return f, err
	}
	f.pkg, f.hasPackage = pkg, true

	if !s.eof() && s.peek() == ':' {
		s.pos++
		target, err := s.targetName()
		if err != nil {
			return f, err
		}
		f.target, f.hasTarget = target, true
	}
	if !s.eof() {
		if pkg != "" && !f.hasTarget {
			return f, s.fail("valid package character", "'/'", "':'", "end of input")
		}
		if !f.hasTarget {
			return f, s.fail("valid package character", "':'", "end of input")
		}
		return f, s.fail("valid target character", "'/'", "end of input")
	}
	if s.invalid != nil {
		return f, s.invalid
	}

	if !f.hasTarget {
		// @repo// is @repo//:repo; //my/pkg is //my/pkg:pkg.
		if pkg == "" && f.hasRepo {
			f.target = f.repo.Name()
		} else {
			f.target = lastSegment(pkg)
		}
		if f.target == "" {
			return f, s.fail("':'")
		}
		f.hasTarget = true
	}
	return f, nil
}

// bare scans a package-relative [:]target.
func bare(in string) (fragment, *ParseError) {
	s := &scanner{in: in}
	if !s.eof() && s.peek() == ':' {
		s.pos++
	}
	target, err := s.targetName()
	if err != nil {
		return fragment{}, err
	}
	if !s.eof() {
		return fragment{}, s.fail("valid target character", "'/'", "end of input")
	}
	if s.invalid != nil {
		return fragment{}, s.invalid
	}
	return fragment{target: target, hasTarget: true}, nil
}

func parseFragment(in string) (fragment, error) {
	f, absErr := absolute(in)
	if absErr == nil {
		return f, nil
	}
	if absErr.Reason != "" {
		return fragment{}, absErr
	}
	f, bareErr := bare(in)
	if bareErr == nil {
		return f, nil
	}
	if bareErr.Reason != "" {
		return fragment{}, bareErr
	}

	switch {
	case absErr.Offset > bareErr.Offset:
		return fragment{}, absErr
	case bareErr.Offset > absErr.Offset:
		return fragment{}, bareErr
	case absErr.Offset == 0:
		// Neither alternative got anywhere.
		return fragment{}, &ParseError{Input: in, Expected: []string{"label"}}
	}
	merged := append(append([]string(nil), absErr.Expected...), bareErr.Expected...)
	return fragment{}, &ParseError{Input: in, Offset: absErr.Offset, Expected: dedupe(merged)}
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

// Parse parses s, taking any part the input omits from context.
//
//	@@repo//pkg:target   fully qualified, canonical repository
//	@repo//pkg:target    fully qualified, apparent repository
//	//pkg:target         repository from context
//	//pkg                shorthand for //pkg:<last package segment>
//	@repo//              shorthand for @repo//:repo
//	:target, target      repository and package from context
func Parse[R RepoName](s string, context Label[R]) (AnyLabel, error) {
	f, err := parseFragment(s)
	if err != nil {
		return AnyLabel{}, err
	}
	l := context.Any()
	if f.hasRepo {
		l.Repo = f.repo
	}
	if f.hasPackage {
		l.Package = f.pkg
	}
	if f.hasTarget {
		l.Target = f.target
	}
	return l, nil
}

// ParseCanonical parses s against the main repository root and requires
// the result to name a canonical repository (or to inherit the main one).
func ParseCanonical(s string) (CanonicalLabel, error) {
	l, err := Parse(s, MainRepoRoot)
	if err != nil {
		return CanonicalLabel{}, err
	}
	c, ok := l.Repo.Canonical()
	if !ok {
		return CanonicalLabel{}, fmt.Errorf("label %s: apparent repository %s needs a repository mapping", l, l.Repo)
	}
	return CanonicalLabel{Repo: c, Package: l.Package, Target: l.Target}, nil
}
