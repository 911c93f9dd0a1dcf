// Package cacheable lets domain values control their own wire shape: a value
// that implements Object is stored as a small restorable Marker instead of
// being handed to a general-purpose codec.
package cacheable

import (
	"fmt"
	"sync"
)

// Marker is the cached representation of an Object: a type tag plus
// whatever plain-data state the object needs to rebuild itself. State
// should hold only scalars, maps, and slices — nothing the object itself
// wouldn't be comfortable serializing.
type Marker struct {
	Type  string
	State any
}

// Object is implemented by values that want cached-object semantics. The
// loader stores the returned Marker instead of the value itself.
type Object interface {
	ToCacheable() (Marker, error)
}

// Restorer rebuilds a domain value from a Marker previously produced by the
// same type's ToCacheable.
type Restorer interface {
	Restore(Marker) (any, error)
}

// Registry maps a Marker's Type tag back to the Restorer that can rebuild
// it. A Loader consults one Registry for every cached-object entry it reads.
type Registry struct {
	mu        sync.RWMutex
	restorers map[string]Restorer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{restorers: make(map[string]Restorer)}
}

// Register associates typeName with restorer. Registering the same
// typeName twice replaces the previous restorer.
func (r *Registry) Register(typeName string, restorer Restorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restorers[typeName] = restorer
}

// Restore rebuilds the domain value described by m, or returns an error if
// no restorer was registered for m.Type.
func (r *Registry) Restore(m Marker) (any, error) {
	r.mu.RLock()
	restorer, ok := r.restorers[m.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cacheable: no restorer registered for type %q", m.Type)
	}
	return restorer.Restore(m)
}
