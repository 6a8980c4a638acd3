package pkgdef

// EditKind identifies one of the closed set of environment edit operations.
type EditKind string

const (
	// EditSet replaces the variable's value outright.
	EditSet EditKind = "set"

	// EditPrepend prefixes the variable's accumulated value, joined by the
	// edit's separator.
	EditPrepend EditKind = "prepend"

	// EditAppend suffixes the variable's accumulated value, joined by the
	// edit's separator.
	EditAppend EditKind = "append"

	// EditUnset removes the variable entirely, regardless of prior edits.
	EditUnset EditKind = "unset"
)

// EnvEdit is a single declarative edit to one environment variable.
// Prepend and append operate on the value accumulated so far during
// resolution, not on the raw OS value, so a dependent package composes with
// its dependencies rather than clobbering them.
type EnvEdit struct {
	// Var is the environment variable name.
	Var string `json:"var"`

	// Kind is the edit operation.
	Kind EditKind `json:"kind"`

	// Value is the raw edit value. It may contain {pkg.key} placeholders
	// resolved against package data at resolution time. Unused for unset.
	Value string `json:"value,omitempty"`

	// Sep joins prepended/appended values. Empty means the OS path list
	// separator.
	Sep string `json:"sep,omitempty"`
}

// ActionRef names a pre-launch action declared by a package. The action's
// data block lives in the configuration store under
// "actions.<Type>.<Name>" and its implementation is looked up in the
// action registry by Type.
type ActionRef struct {
	// Type is the registered operation type name (e.g. "copy", "delete").
	Type string `json:"type"`

	// Name selects the action's data block within its type.
	Name string `json:"name"`
}

// Package is a resolved, immutable description of a launchable unit.
type Package struct {
	// Name is the unique package name within a resolution.
	Name string `json:"name"`

	// Version is the package's semantic version string.
	Version string `json:"version"`

	// Requires lists the packages that must be resolved before this one.
	Requires []Ref `json:"requires,omitempty"`

	// Aliases are alternate names under which this package can be found.
	// An alias always resolves to exactly one concrete package.
	Aliases []string `json:"aliases,omitempty"`

	// Env are the package's environment edits, in declaration order.
	Env []EnvEdit `json:"env,omitempty"`

	// Executable is the program this package launches, if any. May be
	// templated against package data.
	Executable string `json:"executable,omitempty"`

	// Actions are the pre-launch actions to run inside the launch
	// transaction, in declaration order.
	Actions []ActionRef `json:"actions,omitempty"`

	// Commands is an optional Starlark script that emits additional
	// environment edits at resolution time, after the declarative ones.
	Commands string `json:"commands,omitempty"`

	// Data is the package's declared data, the namespace for {pkg.key}
	// template placeholders.
	Data map[string]any `json:"data,omitempty"`
}

// RequireNames returns the names of all required packages, in declaration
// order.
func (p *Package) RequireNames() []string {
	names := make([]string, len(p.Requires))
	for i, ref := range p.Requires {
		names[i] = ref.Name
	}
	return names
}
