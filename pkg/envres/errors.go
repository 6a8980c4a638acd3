package envres

import (
	"errors"
	"fmt"
	"strings"
)

// PackageNotFoundError reports a reference to a package the universe does
// not know, or one whose version does not satisfy the reference's
// constraint.
type PackageNotFoundError struct {
	// Name is the requested package or alias name.
	Name string

	// Constraint is the unsatisfied version constraint, if any.
	Constraint string

	// Version is the version that was found but rejected, if any.
	Version string
}

// Error implements the error interface.
func (e *PackageNotFoundError) Error() string {
	if e.Constraint != "" && e.Version != "" {
		return fmt.Sprintf("package %s@%s found at version %s, which does not satisfy the constraint",
			e.Name, e.Constraint, e.Version)
	}
	return fmt.Sprintf("package %s not found", e.Name)
}

// CyclicRequirementError reports a cycle in the requirement graph. Cycles
// are fatal configuration errors.
type CyclicRequirementError struct {
	// Cycle is the requirement path that loops, ending at the repeated
	// package.
	Cycle []string
}

// Error implements the error interface.
func (e *CyclicRequirementError) Error() string {
	return fmt.Sprintf("cyclic package requirement: %s", strings.Join(e.Cycle, " -> "))
}

// TemplateResolutionError reports a {pkg.key} placeholder that could not
// be resolved against any package's data during resolution.
type TemplateResolutionError struct {
	// Package is the package whose edit carried the placeholder.
	Package string

	// Placeholder is the unresolved placeholder, without braces.
	Placeholder string

	// Value is the raw value the placeholder appeared in.
	Value string
}

// Error implements the error interface.
func (e *TemplateResolutionError) Error() string {
	return fmt.Sprintf("package %s: unresolved placeholder {%s} in %q",
		e.Package, e.Placeholder, e.Value)
}

// IsPackageNotFound reports whether err is a PackageNotFoundError.
func IsPackageNotFound(err error) bool {
	var e *PackageNotFoundError
	return errors.As(err, &e)
}

// IsCyclicRequirement reports whether err is a CyclicRequirementError.
func IsCyclicRequirement(err error) bool {
	var e *CyclicRequirementError
	return errors.As(err, &e)
}

// IsTemplateResolution reports whether err is a TemplateResolutionError.
func IsTemplateResolution(err error) bool {
	var e *TemplateResolutionError
	return errors.As(err, &e)
}
