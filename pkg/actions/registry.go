package actions

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/stagehand/stagehand/pkg/txn"
)

// DataStore fetches an action's schema-validated data block from
// configuration. Implementations return a typed lookup error (not a
// generic failure) when the "actions.<type>.<name>" key is absent.
type DataStore interface {
	ActionData(typeName, actionName string, out any) error
}

// Factory builds an operation of one registered type from its declared
// data block.
type Factory func(actionName string, store DataStore) (txn.Operation, error)

// UnknownTypeError reports an action type name with no registered
// operation factory. This is a fatal configuration error.
type UnknownTypeError struct {
	// Type is the unmatched action type name.
	Type string
}

// Error implements the error interface.
func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no operation registered for action type %q", e.Type)
}

// IsUnknownType reports whether err is an UnknownTypeError.
func IsUnknownType(err error) bool {
	var e *UnknownTypeError
	return errors.As(err, &e)
}

// Registry maps action type names to operation factories. Registration
// happens at startup; lookups afterwards are read-only.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given type name. Registering the same
// type twice is an error.
func (r *Registry) Register(typeName string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeName]; exists {
		return fmt.Errorf("action type %q already registered", typeName)
	}
	r.factories[typeName] = factory
	return nil
}

// Resolve returns the factory for a type name, or UnknownTypeError.
func (r *Registry) Resolve(typeName string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[typeName]
	if !ok {
		return nil, &UnknownTypeError{Type: typeName}
	}
	return factory, nil
}

// Types lists the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewDefaultRegistry returns a registry with the built-in action types
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	// Registration of built-ins cannot collide in a fresh registry.
	_ = r.Register(CopyType, NewCopyOperation)
	_ = r.Register(DeleteType, NewDeleteOperation)
	return r
}
