package pkgdef

import (
	"fmt"
	"strings"
)

// Ref names a package in configuration, optionally with a version
// constraint ("name" or "name@constraint").
type Ref struct {
	// Name is the package (or alias) name.
	Name string `json:"name"`

	// Constraint is an optional version constraint. Supported forms:
	// exact ("1.2.3"), tilde ("~1.2.3" matches 1.2.x), caret ("^1.2.3"
	// matches 1.x.x), and "latest"/empty for any version.
	Constraint string `json:"constraint,omitempty"`
}

// ParseRef parses a reference string of the form "name" or
// "name@constraint".
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty package reference")
	}

	name, constraint, found := strings.Cut(s, "@")
	if name == "" {
		return Ref{}, fmt.Errorf("invalid package reference %q: missing name", s)
	}
	if found && constraint == "" {
		return Ref{}, fmt.Errorf("invalid package reference %q: empty constraint", s)
	}

	return Ref{Name: name, Constraint: constraint}, nil
}

// String renders the reference back to its "name@constraint" form.
func (r Ref) String() string {
	if r.Constraint == "" {
		return r.Name
	}
	return r.Name + "@" + r.Constraint
}

// Matches reports whether the given version satisfies the reference's
// constraint. An empty or "latest" constraint matches any version.
func (r Ref) Matches(version string) bool {
	return MatchesConstraint(version, r.Constraint)
}
