package envres

import (
	"os"
	"sort"

	"github.com/stagehand/stagehand/pkg/pkgdef"
)

// AppliedEdit records one environment edit as it was applied during
// resolution, with its placeholders already expanded.
type AppliedEdit struct {
	// Package is the name of the package that declared the edit.
	Package string `json:"package"`

	// Edit is the declared edit.
	Edit pkgdef.EnvEdit `json:"edit"`

	// Value is the expanded value the edit contributed. Empty for unset.
	Value string `json:"value,omitempty"`
}

// ResolvedEnvironment is the result of resolving a root package: the
// ordered package closure, the trace of applied edits, and the resulting
// flat variable map. It is built once per launch and treated as immutable
// afterwards.
type ResolvedEnvironment struct {
	// Root is the package that was resolved.
	Root *pkgdef.Package `json:"-"`

	// Packages is the closure in resolution order, requirements before
	// dependents.
	Packages []*pkgdef.Package `json:"-"`

	// Applied is the ordered trace of every edit that was applied.
	Applied []AppliedEdit `json:"applied"`

	// Vars is the final flat environment.
	Vars map[string]string `json:"vars"`

	// Executable is the root package's executable with placeholders
	// expanded, or empty when the package declares none.
	Executable string `json:"executable,omitempty"`
}

// Environ renders the resolved variables as a sorted KEY=value slice
// suitable for os/exec.
func (e *ResolvedEnvironment) Environ() []string {
	out := make([]string, 0, len(e.Vars))
	for k, v := range e.Vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// PackageNames returns the closure's package names in resolution order.
func (e *ResolvedEnvironment) PackageNames() []string {
	names := make([]string, len(e.Packages))
	for i, p := range e.Packages {
		names[i] = p.Name
	}
	return names
}

// applyEdit folds a single expanded edit into the accumulator. Prepend and
// append operate on the accumulated value, which may already include
// contributions from earlier-resolved packages.
func applyEdit(vars map[string]string, edit pkgdef.EnvEdit, value string) {
	sep := edit.Sep
	if sep == "" {
		sep = string(os.PathListSeparator)
	}

	switch edit.Kind {
	case pkgdef.EditSet:
		vars[edit.Var] = value

	case pkgdef.EditPrepend:
		if current, ok := vars[edit.Var]; ok && current != "" {
			vars[edit.Var] = value + sep + current
		} else {
			vars[edit.Var] = value
		}

	case pkgdef.EditAppend:
		if current, ok := vars[edit.Var]; ok && current != "" {
			vars[edit.Var] = current + sep + value
		} else {
			vars[edit.Var] = value
		}

	case pkgdef.EditUnset:
		delete(vars, edit.Var)
	}
}

// BaseEnvironment parses a KEY=value slice (typically os.Environ) into a
// map usable as a resolver's base environment.
func BaseEnvironment(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				vars[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return vars
}
