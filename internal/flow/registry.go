package flow

import (
	"fmt"
	"sync"
)

// Registry is the read-mostly, reader-writer-locked flow definition store
// (spec §5 "Flow definitions: read-mostly registry, protected by a
// reader-writer lock; writers (publish, reload) are infrequent"), modeled
// on the teacher's locking discipline in internal/scheduler.Scheduler.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]*Flow)}
}

// Load installs or replaces a flow definition (a "reload" writer per spec §5).
func (reg *Registry) Load(f *Flow) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.flows[f.ID] = f
}

// Get returns the flow with the given id, read-locked.
func (reg *Registry) Get(id string) (*Flow, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	f, ok := reg.flows[id]
	return f, ok
}

// MustGet returns the flow or an error if absent.
func (reg *Registry) MustGet(id string) (*Flow, error) {
	f, ok := reg.Get(id)
	if !ok {
		return nil, fmt.Errorf("flow: unknown flow id %q", id)
	}
	return f, nil
}

// Publish runs Validate()+Publish() on the named flow under the write lock
// so no reader observes a partially-published flow.
func (reg *Registry) Publish(id string) (*Report, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	f, ok := reg.flows[id]
	if !ok {
		return nil, fmt.Errorf("flow: unknown flow id %q", id)
	}
	return f.Publish()
}

// List returns a snapshot of every registered flow id.
func (reg *Registry) List() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := make([]string, 0, len(reg.flows))
	for id := range reg.flows {
		ids = append(ids, id)
	}
	return ids
}
