package descriptor

import (
	"sort"
	"sync"
)

// Registry holds all declared entity descriptors, keyed by qualified name.
// It is the lookup table lazy relation references resolve against, so
// registration order does not matter: forward references resolve once both
// sides are registered.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*EntityDescriptor
}

// NewRegistry creates a new descriptor registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*EntityDescriptor),
	}
}

// Register validates and registers an entity descriptor. Declaration errors
// are configuration errors: fatal to the entity type, reported immediately.
func (r *Registry) Register(d *EntityDescriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := d.Qualified()
	if _, exists := r.descriptors[key]; exists {
		return NewConfigError(d.Name, "", "entity %s is already registered", key)
	}
	r.descriptors[key] = d

	return nil
}

// Get retrieves a descriptor by qualified name
func (r *Registry) Get(qualified string) (*EntityDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[qualified]
	return d, ok
}

// All returns a copy of all registered descriptors
func (r *Registry) All() map[string]*EntityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*EntityDescriptor, len(r.descriptors))
	for k, v := range r.descriptors {
		out[k] = v
	}
	return out
}

// List returns all qualified names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered descriptors
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.descriptors)
}

// Clear removes all registered descriptors (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.descriptors = make(map[string]*EntityDescriptor)
}
