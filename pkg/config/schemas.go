package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaPackage = "package"
	SchemaAction  = "action"
)

// SchemaRegistry manages CUE schemas used to validate document fragments.
type SchemaRegistry struct {
	ctx     *cue.Context
	mu      sync.RWMutex
	schemas map[string]cue.Value
}

// NewSchemaRegistry creates a registry preloaded with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	// Built-ins are compiled from constants and cannot fail.
	_ = sr.Register(SchemaPackage, builtinPackageSchema)
	_ = sr.Register(SchemaAction, builtinActionSchema)
	return sr
}

// Register compiles schema and stores it under name, replacing any
// previous schema with that name.
func (sr *SchemaRegistry) Register(name, schema string) error {
	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.mu.Lock()
	sr.schemas[name] = val
	sr.mu.Unlock()
	return nil
}

// Validate unifies data with the named schema and reports any conflict.
func (sr *SchemaRegistry) Validate(name string, data any) error {
	sr.mu.RLock()
	schema, ok := sr.schemas[name]
	sr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	val := sr.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to encode value for schema %s: %w", name, err)
	}

	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema %s: %w", name, err)
	}
	return nil
}

// Names returns the registered schema names.
func (sr *SchemaRegistry) Names() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

const builtinPackageSchema = `
// Identity constraints for a package entry.
name:    string & =~"^[A-Za-z0-9_][A-Za-z0-9_.-]*$"
version: string & =~"^[0-9A-Za-z]"
`

const builtinActionSchema = `
// Action data blocks are free-form but keys must be snake_case identifiers.
[=~"^[a-z_][a-z0-9_]*$"]: _
`
