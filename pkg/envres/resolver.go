package envres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stagehand/stagehand/pkg/pkgdef"
)

// Universe looks up packages by name from declared configuration. A lookup
// by alias returns the alias's concrete package. Absent names return a
// PackageNotFoundError.
type Universe interface {
	Find(name string) (*pkgdef.Package, error)
}

// CommandEvaluator evaluates a package's procedural commands block into
// additional environment edits. Implemented by pkg/config's Starlark
// evaluator; the resolver only depends on this interface.
type CommandEvaluator interface {
	EvalCommands(ctx context.Context, pkg *pkgdef.Package) ([]pkgdef.EnvEdit, error)
}

// Resolver turns a root package reference into a ResolvedEnvironment.
type Resolver struct {
	universe  Universe
	evaluator CommandEvaluator
	base      map[string]string
	logger    zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBaseEnvironment seeds resolution with the given variables instead of
// an empty map. Pass BaseEnvironment(os.Environ()) for the OS environment.
func WithBaseEnvironment(base map[string]string) ResolverOption {
	return func(r *Resolver) { r.base = base }
}

// WithCommandEvaluator installs the evaluator for packages' procedural
// commands blocks. Without one, packages declaring commands fail to
// resolve.
func WithCommandEvaluator(eval CommandEvaluator) ResolverOption {
	return func(r *Resolver) { r.evaluator = eval }
}

// NewResolver creates a resolver over the given package universe.
func NewResolver(universe Universe, logger zerolog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		universe: universe,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the requirement closure of root depth-first (requirements
// before dependents, each package visited once), then folds every
// package's edits into the base environment in that order. All errors are
// resolution-time and non-retryable.
func (r *Resolver) Resolve(ctx context.Context, root string) (*ResolvedEnvironment, error) {
	rootRef, err := pkgdef.ParseRef(root)
	if err != nil {
		return nil, err
	}

	w := &walker{resolver: r, visited: make(map[string]*pkgdef.Package)}
	rootPkg, err := w.visit(rootRef)
	if err != nil {
		return nil, err
	}

	env := &ResolvedEnvironment{
		Root:     rootPkg,
		Packages: w.order,
		Vars:     make(map[string]string, len(r.base)),
	}
	for k, v := range r.base {
		env.Vars[k] = v
	}

	// Fold edits in resolution order so a dependent's edits apply
	// relative to its dependencies' contributions.
	resolved := make(map[string]*pkgdef.Package, len(w.order))
	for _, pkg := range w.order {
		resolved[pkg.Name] = pkg

		if err := r.applyPackage(ctx, env, pkg, resolved); err != nil {
			return nil, err
		}
	}

	if rootPkg.Executable != "" {
		exe, err := expandValue(rootPkg, rootPkg.Executable, resolved)
		if err != nil {
			return nil, err
		}
		env.Executable = exe
	}

	r.logger.Debug().
		Str("root", rootPkg.Name).
		Strs("closure", env.PackageNames()).
		Int("vars", len(env.Vars)).
		Msg("environment resolved")

	return env, nil
}

// applyPackage expands and folds one package's declarative edits, then any
// edits emitted by its procedural commands block.
func (r *Resolver) applyPackage(ctx context.Context, env *ResolvedEnvironment, pkg *pkgdef.Package, resolved map[string]*pkgdef.Package) error {
	edits := pkg.Env

	if pkg.Commands != "" {
		if r.evaluator == nil {
			return fmt.Errorf("package %s declares a commands block but no command evaluator is configured", pkg.Name)
		}
		extra, err := r.evaluator.EvalCommands(ctx, pkg)
		if err != nil {
			return fmt.Errorf("package %s: commands evaluation failed: %w", pkg.Name, err)
		}
		edits = append(append([]pkgdef.EnvEdit{}, edits...), extra...)
	}

	for _, edit := range edits {
		var value string
		if edit.Kind != pkgdef.EditUnset {
			expanded, err := expandValue(pkg, edit.Value, resolved)
			if err != nil {
				return err
			}
			value = expanded
		}

		applyEdit(env.Vars, edit, value)
		env.Applied = append(env.Applied, AppliedEdit{
			Package: pkg.Name,
			Edit:    edit,
			Value:   value,
		})
	}

	return nil
}

// walker tracks depth-first traversal state for one resolution.
type walker struct {
	resolver *Resolver

	// visited maps concrete package names to their package once fully
	// resolved.
	visited map[string]*pkgdef.Package

	// visiting marks packages on the current traversal path, for cycle
	// detection.
	visiting map[string]bool

	// path is the current traversal path, reported when a cycle is found.
	path []string

	// order is the finished resolution order, requirements first.
	order []*pkgdef.Package
}

// visit resolves one reference and, recursively, its requirements. The
// returned package is the concrete package (aliases substituted).
func (w *walker) visit(ref pkgdef.Ref) (*pkgdef.Package, error) {
	pkg, err := w.resolver.universe.Find(ref.Name)
	if err != nil {
		return nil, &PackageNotFoundError{Name: ref.Name, Constraint: ref.Constraint}
	}

	if !ref.Matches(pkg.Version) {
		return nil, &PackageNotFoundError{
			Name:       pkg.Name,
			Constraint: ref.Constraint,
			Version:    pkg.Version,
		}
	}

	if _, done := w.visited[pkg.Name]; done {
		return pkg, nil
	}

	if w.visiting == nil {
		w.visiting = make(map[string]bool)
	}
	if w.visiting[pkg.Name] {
		cycle := append(append([]string{}, w.path...), pkg.Name)
		return nil, &CyclicRequirementError{Cycle: cycle}
	}

	w.visiting[pkg.Name] = true
	w.path = append(w.path, pkg.Name)

	for _, req := range pkg.Requires {
		if _, err := w.visit(req); err != nil {
			return nil, err
		}
	}

	w.path = w.path[:len(w.path)-1]
	delete(w.visiting, pkg.Name)

	w.visited[pkg.Name] = pkg
	w.order = append(w.order, pkg)
	return pkg, nil
}
