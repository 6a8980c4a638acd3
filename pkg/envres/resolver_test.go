package envres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stagehand/stagehand/pkg/pkgdef"
)

// mapUniverse is a test Universe backed by a map, with alias indexing.
type mapUniverse map[string]*pkgdef.Package

func (u mapUniverse) Find(name string) (*pkgdef.Package, error) {
	if pkg, ok := u[name]; ok {
		return pkg, nil
	}
	for _, pkg := range u {
		for _, alias := range pkg.Aliases {
			if alias == name {
				return pkg, nil
			}
		}
	}
	return nil, &PackageNotFoundError{Name: name}
}

func mustRef(t *testing.T, s string) pkgdef.Ref {
	t.Helper()
	ref, err := pkgdef.ParseRef(s)
	if err != nil {
		t.Fatalf("ParseRef(%q): %v", s, err)
	}
	return ref
}

func TestResolve_CompositionOrder(t *testing.T) {
	sep := string(os.PathListSeparator)
	universe := mapUniverse{
		"q": {
			Name:    "q",
			Version: "1.0.0",
			Env: []pkgdef.EnvEdit{
				{Var: "PATH", Kind: pkgdef.EditSet, Value: "/q/bin"},
			},
		},
		"p": {
			Name:     "p",
			Version:  "2.0.0",
			Requires: []pkgdef.Ref{mustRef(t, "q")},
			Env: []pkgdef.EnvEdit{
				{Var: "PATH", Kind: pkgdef.EditPrepend, Value: "/p/bin"},
			},
		},
	}

	r := NewResolver(universe, zerolog.Nop())
	env, err := r.Resolve(context.Background(), "p")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := "/p/bin" + sep + "/q/bin"
	if env.Vars["PATH"] != want {
		t.Errorf("PATH = %q, want %q", env.Vars["PATH"], want)
	}

	order := env.PackageNames()
	if len(order) != 2 || order[0] != "q" || order[1] != "p" {
		t.Errorf("resolution order = %v, want [q p]", order)
	}
}

func TestResolve_BaseEnvironmentContributes(t *testing.T) {
	universe := mapUniverse{
		"tool": {
			Name:    "tool",
			Version: "1.0.0",
			Env: []pkgdef.EnvEdit{
				{Var: "PATH", Kind: pkgdef.EditPrepend, Value: "/tool/bin", Sep: ":"},
				{Var: "TMPDIR", Kind: pkgdef.EditUnset},
			},
		},
	}

	r := NewResolver(universe, zerolog.Nop(),
		WithBaseEnvironment(map[string]string{
			"PATH":   "/usr/bin",
			"TMPDIR": "/tmp",
			"HOME":   "/home/u",
		}))

	env, err := r.Resolve(context.Background(), "tool")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if env.Vars["PATH"] != "/tool/bin:/usr/bin" {
		t.Errorf("PATH = %q, want /tool/bin:/usr/bin", env.Vars["PATH"])
	}
	if _, ok := env.Vars["TMPDIR"]; ok {
		t.Error("TMPDIR should have been unset")
	}
	if env.Vars["HOME"] != "/home/u" {
		t.Errorf("HOME = %q, untouched base variable changed", env.Vars["HOME"])
	}
}

func TestResolve_DiamondVisitedOnce(t *testing.T) {
	universe := mapUniverse{
		"base": {
			Name:    "base",
			Version: "1.0.0",
			Env: []pkgdef.EnvEdit{
				{Var: "MARK", Kind: pkgdef.EditAppend, Value: "base", Sep: ","},
			},
		},
		"left": {
			Name: "left", Version: "1.0.0",
			Requires: []pkgdef.Ref{mustRef(t, "base")},
		},
		"right": {
			Name: "right", Version: "1.0.0",
			Requires: []pkgdef.Ref{mustRef(t, "base")},
		},
		"top": {
			Name: "top", Version: "1.0.0",
			Requires: []pkgdef.Ref{mustRef(t, "left"), mustRef(t, "right")},
		},
	}

	r := NewResolver(universe, zerolog.Nop())
	env, err := r.Resolve(context.Background(), "top")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if env.Vars["MARK"] != "base" {
		t.Errorf("MARK = %q; base was applied more than once", env.Vars["MARK"])
	}
	if len(env.Packages) != 4 {
		t.Errorf("closure size = %d, want 4", len(env.Packages))
	}
}

func TestResolve_Cycle(t *testing.T) {
	universe := mapUniverse{
		"a": {Name: "a", Version: "1.0.0", Requires: []pkgdef.Ref{mustRef(t, "b")}},
		"b": {Name: "b", Version: "1.0.0", Requires: []pkgdef.Ref{mustRef(t, "a")}},
	}

	r := NewResolver(universe, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "a")
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !IsCyclicRequirement(err) {
		t.Fatalf("error = %v, want CyclicRequirementError", err)
	}

	var cyc *CyclicRequirementError
	if !errors.As(err, &cyc) {
		t.Fatalf("error = %v, not a CyclicRequirementError", err)
	}
	if len(cyc.Cycle) < 3 {
		t.Errorf("cycle path = %v, want full a -> b -> a path", cyc.Cycle)
	}
}

func TestResolve_UnknownPackage(t *testing.T) {
	universe := mapUniverse{
		"a": {Name: "a", Version: "1.0.0", Requires: []pkgdef.Ref{mustRef(t, "ghost")}},
	}

	r := NewResolver(universe, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "a")
	if !IsPackageNotFound(err) {
		t.Fatalf("error = %v, want PackageNotFoundError", err)
	}
}

func TestResolve_ConstraintMismatch(t *testing.T) {
	universe := mapUniverse{
		"a": {Name: "a", Version: "1.0.0", Requires: []pkgdef.Ref{mustRef(t, "b@~2.0.0")}},
		"b": {Name: "b", Version: "1.5.0"},
	}

	r := NewResolver(universe, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "a")
	if !IsPackageNotFound(err) {
		t.Fatalf("error = %v, want PackageNotFoundError for constraint mismatch", err)
	}
}

func TestResolve_AliasSubstitution(t *testing.T) {
	universe := mapUniverse{
		"python": {
			Name:    "python",
			Version: "3.11.4",
			Aliases: []string{"py"},
			Env: []pkgdef.EnvEdit{
				{Var: "PY", Kind: pkgdef.EditSet, Value: "yes"},
			},
		},
		"app": {
			Name: "app", Version: "1.0.0",
			Requires: []pkgdef.Ref{mustRef(t, "py")},
		},
	}

	r := NewResolver(universe, zerolog.Nop())
	env, err := r.Resolve(context.Background(), "app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	names := env.PackageNames()
	if names[0] != "python" {
		t.Errorf("alias py did not resolve to concrete package python: %v", names)
	}
	if env.Vars["PY"] != "yes" {
		t.Errorf("PY = %q, want yes", env.Vars["PY"])
	}
}

func TestResolve_Templates(t *testing.T) {
	universe := mapUniverse{
		"python": {
			Name:    "python",
			Version: "3.11.4",
			Data:    map[string]any{"root": "/opt/python"},
			Env: []pkgdef.EnvEdit{
				{Var: "PATH", Kind: pkgdef.EditPrepend, Value: "{root}/bin", Sep: ":"},
			},
			Executable: "{root}/bin/python",
		},
		"app": {
			Name:     "app",
			Version:  "1.0.0",
			Requires: []pkgdef.Ref{mustRef(t, "python")},
			Env: []pkgdef.EnvEdit{
				{Var: "APP_PY", Kind: pkgdef.EditSet, Value: "{python.root}/bin/python{python.version}"},
			},
		},
	}

	r := NewResolver(universe, zerolog.Nop())
	env, err := r.Resolve(context.Background(), "app")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if env.Vars["PATH"] != "/opt/python/bin" {
		t.Errorf("PATH = %q, want /opt/python/bin", env.Vars["PATH"])
	}
	if env.Vars["APP_PY"] != "/opt/python/bin/python3.11.4" {
		t.Errorf("APP_PY = %q", env.Vars["APP_PY"])
	}
}

func TestResolve_UnresolvedTemplateIsFatal(t *testing.T) {
	universe := mapUniverse{
		"broken": {
			Name:    "broken",
			Version: "1.0.0",
			Env: []pkgdef.EnvEdit{
				{Var: "X", Kind: pkgdef.EditSet, Value: "{no.such.key}"},
			},
		},
	}

	r := NewResolver(universe, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "broken")
	if !IsTemplateResolution(err) {
		t.Fatalf("error = %v, want TemplateResolutionError", err)
	}
}

func TestResolve_ExecutableExpansion(t *testing.T) {
	universe := mapUniverse{
		"tool": {
			Name:       "tool",
			Version:    "2.1.0",
			Data:       map[string]any{"root": "/opt/tool"},
			Executable: "{root}/bin/tool-{version}",
		},
	}

	r := NewResolver(universe, zerolog.Nop())
	env, err := r.Resolve(context.Background(), "tool")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if env.Executable != "/opt/tool/bin/tool-2.1.0" {
		t.Errorf("Executable = %q", env.Executable)
	}
}
