// Package catalog manages event type definitions: the names publishers may
// emit, the subscription patterns endpoints match against, and optional JSON
// Schema payload validation.
package catalog

import (
	"sync"
)

// Definition describes a publishable event type.
type Definition struct {
	// Name is the dot-separated event type name (e.g. "invoice.created").
	Name string `json:"name"`

	// Description is a human-readable summary of when the event fires.
	Description string `json:"description,omitempty"`

	// Schema is an optional JSON Schema document. When set, payloads are
	// validated against it at publish time.
	Schema any `json:"schema,omitempty"`

	// Deprecated marks the type as no longer publishable.
	Deprecated bool `json:"deprecated,omitempty"`
}

// Registry is an in-memory set of event type definitions.
// An empty registry accepts any event type; registering at least one
// definition switches publishing to a closed world.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]Definition),
	}
}

// Register adds or replaces an event type definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[def.Name] = def
}

// Get returns the definition for an event type name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[name]
	return def, ok
}

// List returns all registered definitions.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.types))
	for _, def := range r.types {
		defs = append(defs, def)
	}
	return defs
}

// Empty reports whether no definitions have been registered.
func (r *Registry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types) == 0
}
