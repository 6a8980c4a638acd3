package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/stagehand/stagehand/pkg/pkgdef"
)

// KeyNotFoundError reports an absent key in a configuration document.
type KeyNotFoundError struct {
	// Key is the dotted path that was looked up, e.g. "actions.copy.stage".
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("configuration key not found: %s", e.Key)
}

// IsKeyNotFound reports whether err is a KeyNotFoundError.
func IsKeyNotFound(err error) bool {
	var kerr *KeyNotFoundError
	return errors.As(err, &kerr)
}

// Store holds a loaded configuration document and serves package and action
// lookups from it. It implements envres.Universe and actions.DataStore.
type Store struct {
	mu       sync.RWMutex
	path     string
	doc      *Document
	packages map[string]*pkgdef.Package
	aliases  map[string]string

	validate *validator.Validate
	schemas  *SchemaRegistry
	logger   zerolog.Logger
}

// Load reads, parses, and validates the document at path.
func Load(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		path:     path,
		validate: validator.New(),
		schemas:  NewSchemaRegistry(),
		logger:   logger.With().Str("component", "config").Logger(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file and swaps in the new document. On any
// error the previously loaded document stays in effect.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse configuration %s: %w", s.path, err)
	}

	if err := s.validate.Struct(&doc); err != nil {
		return fmt.Errorf("invalid configuration %s: %w", s.path, err)
	}

	packages, aliases, err := buildPackages(&doc, s.schemas)
	if err != nil {
		return fmt.Errorf("invalid configuration %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.doc = &doc
	s.packages = packages
	s.aliases = aliases
	s.mu.Unlock()

	s.logger.Debug().
		Str("path", s.path).
		Int("packages", len(packages)).
		Msg("Configuration loaded")

	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Find returns the package known by name or by one of its aliases.
func (s *Store) Find(name string) (*pkgdef.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pkg, ok := s.packages[name]; ok {
		return pkg, nil
	}
	if canonical, ok := s.aliases[name]; ok {
		return s.packages[canonical], nil
	}
	return nil, &KeyNotFoundError{Key: "packages." + name}
}

// Packages returns all loaded packages sorted by name.
func (s *Store) Packages() []*pkgdef.Package {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*pkgdef.Package, 0, len(s.packages))
	for _, pkg := range s.packages {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Policies returns the Rego policy paths listed in the document.
func (s *Store) Policies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.doc == nil {
		return nil
	}
	return append([]string(nil), s.doc.Policies...)
}

// ActionData decodes the data block for the named action into out. The
// block is schema-validated before decoding; out is struct-validated after.
func (s *Store) ActionData(typeName, actionName string, out any) error {
	s.mu.RLock()
	byName, ok := s.doc.Actions[typeName]
	var block map[string]any
	if ok {
		block, ok = byName[actionName]
	}
	s.mu.RUnlock()

	if !ok {
		return &KeyNotFoundError{Key: fmt.Sprintf("actions.%s.%s", typeName, actionName)}
	}

	if err := s.schemas.Validate(SchemaAction, block); err != nil {
		return fmt.Errorf("invalid data for action %s.%s: %w", typeName, actionName, err)
	}

	raw, err := yaml.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to encode data for action %s.%s: %w", typeName, actionName, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode data for action %s.%s: %w", typeName, actionName, err)
	}

	if v := reflect.ValueOf(out); v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct {
		if err := s.validate.Struct(out); err != nil {
			return fmt.Errorf("invalid data for action %s.%s: %w", typeName, actionName, err)
		}
	}
	return nil
}

// buildPackages converts the document into resolver packages and an alias
// index, rejecting duplicate names and aliases.
func buildPackages(doc *Document, schemas *SchemaRegistry) (map[string]*pkgdef.Package, map[string]string, error) {
	packages := make(map[string]*pkgdef.Package, len(doc.Packages))
	aliases := make(map[string]string)

	for name, pd := range doc.Packages {
		if err := schemas.Validate(SchemaPackage, packageSchemaInput(name, pd)); err != nil {
			return nil, nil, fmt.Errorf("package %s: %w", name, err)
		}

		pkg, err := buildPackage(name, pd)
		if err != nil {
			return nil, nil, err
		}
		packages[name] = pkg
	}

	for name, pkg := range packages {
		for _, alias := range pkg.Aliases {
			if _, clash := packages[alias]; clash {
				return nil, nil, fmt.Errorf("package %s: alias %q collides with a package name", name, alias)
			}
			if prev, dup := aliases[alias]; dup {
				return nil, nil, fmt.Errorf("package %s: alias %q already claimed by %s", name, alias, prev)
			}
			aliases[alias] = name
		}
	}

	return packages, aliases, nil
}

func buildPackage(name string, pd PackageDoc) (*pkgdef.Package, error) {
	pkg := &pkgdef.Package{
		Name:       name,
		Version:    pd.Version,
		Aliases:    append([]string(nil), pd.Aliases...),
		Executable: pd.Executable,
		Commands:   pd.Commands,
		Data:       pd.Data,
	}

	for _, raw := range pd.Requires {
		ref, err := pkgdef.ParseRef(raw)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", name, err)
		}
		pkg.Requires = append(pkg.Requires, ref)
	}

	for i, ed := range pd.Env {
		edit, err := buildEnvEdit(ed)
		if err != nil {
			return nil, fmt.Errorf("package %s: env[%d]: %w", name, i, err)
		}
		pkg.Env = append(pkg.Env, edit)
	}

	for _, ar := range pd.Actions {
		pkg.Actions = append(pkg.Actions, pkgdef.ActionRef{Type: ar.Type, Name: ar.Name})
	}

	return pkg, nil
}

func buildEnvEdit(ed EnvEditDoc) (pkgdef.EnvEdit, error) {
	edit := pkgdef.EnvEdit{Var: ed.Var, Sep: ed.Sep}

	ops := 0
	if ed.Set != nil {
		edit.Kind, edit.Value = pkgdef.EditSet, *ed.Set
		ops++
	}
	if ed.Prepend != nil {
		edit.Kind, edit.Value = pkgdef.EditPrepend, *ed.Prepend
		ops++
	}
	if ed.Append != nil {
		edit.Kind, edit.Value = pkgdef.EditAppend, *ed.Append
		ops++
	}
	if ed.Unset {
		edit.Kind = pkgdef.EditUnset
		ops++
	}
	if ops != 1 {
		return pkgdef.EnvEdit{}, fmt.Errorf("variable %s: exactly one of set, prepend, append, unset required", ed.Var)
	}
	return edit, nil
}

// packageSchemaInput builds the value checked against the package schema.
func packageSchemaInput(name string, pd PackageDoc) map[string]any {
	return map[string]any{
		"name":    name,
		"version": pd.Version,
	}
}
