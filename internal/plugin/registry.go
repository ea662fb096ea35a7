package plugin

import (
	"sync"

	"github.com/soyeahso/eventhost/internal/logging"
)

// Registry holds loaded plugin instances in load order. Additions happen only
// during startup and removals only during shutdown; the mutex covers
// introspection reads from the transport.
type Registry struct {
	mu        sync.RWMutex
	instances []*Instance
	log       *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{log: log.Sub("registry")}
}

// Add appends an instance. Duplicate names are allowed.
func (r *Registry) Add(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.instances {
		if existing.Name() == inst.Name() {
			r.log.Warn().
				Str("name", inst.Name()).
				Str("source", inst.Source()).
				Str("existing", existing.Source()).
				Msg("duplicate plugin name")
			break
		}
	}
	r.instances = append(r.instances, inst)

	r.log.Debug().
		Str("name", inst.Name()).
		Str("source", inst.Source()).
		Msg("plugin registered")
}

// All returns the instances in load order.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, len(r.instances))
	copy(out, r.instances)
	return out
}

// Get returns the first instance with the given name, or nil if not found.
func (r *Registry) Get(name string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		if inst.Name() == name {
			return inst
		}
	}
	return nil
}

// Remove deletes the given instance. Returns false if it was not present.
func (r *Registry) Remove(inst *Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.instances {
		if existing == inst {
			r.instances = append(r.instances[:i], r.instances[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns all plugin names in load order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.instances))
	for i, inst := range r.instances {
		out[i] = inst.Name()
	}
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
