package template

import "sync"

// Registry caches built schemas keyed by requirement type. Schemas are
// stored as immutable pointers and swapped whole under the lock, so a
// concurrent reader sees either the previous schema or the new one,
// never a partially updated value.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Load installs or replaces the schema for a requirement type.
func (r *Registry) Load(reqType string, schema Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[reqType] = &schema
}

// Get returns the schema for a requirement type. The returned value is
// a copy; callers may not mutate the registry through it.
func (r *Registry) Get(reqType string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[reqType]
	if !ok {
		return Schema{}, false
	}
	return *s, true
}

// Types lists the requirement types currently loaded.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		out = append(out, t)
	}
	return out
}
