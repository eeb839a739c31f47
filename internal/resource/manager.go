// Package resource implements capacity-bounded allocation of named resources.
//
// The manager is an admission-control gate, not a queue: an allocation either
// fits in the remaining capacity and is recorded, or it is rejected with no
// side effect and the caller decides whether to retry.
package resource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/petrijr/orchestra/pkg/api"
)

type entry struct {
	resource    api.Resource
	allocations map[string]float64 // consumer key -> outstanding amount
}

func (e *entry) allocated() float64 {
	var sum float64
	for _, amount := range e.allocations {
		sum += amount
	}
	return sum
}

// Manager tracks resources and per-consumer allocations. It is safe for
// concurrent use; every check-then-set runs inside a single critical section.
type Manager struct {
	mu        sync.RWMutex
	resources map[string]*entry
}

// Stats is a point-in-time count of resources and outstanding allocations.
type Stats struct {
	TotalResources    int
	ActiveAllocations int
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		resources: make(map[string]*entry),
	}
}

// AddResource registers r. Re-adding an existing id replaces its name, type
// and capacity, but a capacity below the outstanding allocations is rejected.
func (m *Manager) AddResource(r api.Resource) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", api.ErrInvalidResource)
	}
	if r.Capacity < 0 {
		return fmt.Errorf("%w: capacity of %q must not be negative", api.ErrInvalidResource, r.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.resources[r.ID]; ok {
		if used := e.allocated(); r.Capacity < used {
			return fmt.Errorf("%w: resource %q has %g allocated, cannot shrink to %g",
				api.ErrCapacityExceeded, r.ID, used, r.Capacity)
		}
		e.resource = r
		return nil
	}

	m.resources[r.ID] = &entry{
		resource:    r,
		allocations: make(map[string]float64),
	}
	return nil
}

// RemoveResource unregisters a resource that has no outstanding allocations.
func (m *Manager) RemoveResource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.resources[id]
	if !ok {
		return fmt.Errorf("%w: %s", api.ErrResourceNotFound, id)
	}
	if len(e.allocations) > 0 {
		return fmt.Errorf("%w: %s", api.ErrResourceInUse, id)
	}
	delete(m.resources, id)
	return nil
}

// Allocate grants amount units of resourceID to consumerKey iff amount > 0
// and amount fits in the available capacity. A consumer that already holds
// an allocation of the resource has the amount added to it.
func (m *Manager) Allocate(resourceID, consumerKey string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %g", api.ErrInvalidAmount, amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.resources[resourceID]
	if !ok {
		return fmt.Errorf("%w: %s", api.ErrResourceNotFound, resourceID)
	}

	available := e.resource.Capacity - e.allocated()
	if amount > available {
		return fmt.Errorf("%w: resource %q has %g available, requested %g",
			api.ErrCapacityExceeded, resourceID, available, amount)
	}

	e.allocations[consumerKey] += amount
	return nil
}

// Release removes the outstanding allocation of resourceID held by
// consumerKey and reports whether there was one.
func (m *Manager) Release(resourceID, consumerKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.resources[resourceID]
	if !ok {
		return false
	}
	if _, held := e.allocations[consumerKey]; !held {
		return false
	}
	delete(e.allocations, consumerKey)
	return true
}

// SnapshotFor returns resourceID -> amount for every allocation held by consumerKey.
func (m *Manager) SnapshotFor(consumerKey string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]float64)
	for id, e := range m.resources {
		if amount, ok := e.allocations[consumerKey]; ok {
			out[id] = amount
		}
	}
	return out
}

// Available returns capacity minus outstanding allocations for a resource.
func (m *Manager) Available(id string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.resources[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", api.ErrResourceNotFound, id)
	}
	return e.resource.Capacity - e.allocated(), nil
}

// Resource returns the registered resource with the given id.
func (m *Manager) Resource(id string) (api.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.resources[id]
	if !ok {
		return api.Resource{}, fmt.Errorf("%w: %s", api.ErrResourceNotFound, id)
	}
	return e.resource, nil
}

// Resources returns all registered resources sorted by id.
func (m *Manager) Resources() []api.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]api.Resource, 0, len(m.resources))
	for _, e := range m.resources {
		out = append(out, e.resource)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Allocations returns the outstanding allocations of a resource sorted by
// consumer key. Unknown resources yield nil.
func (m *Manager) Allocations(resourceID string) []api.Allocation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.resources[resourceID]
	if !ok {
		return nil
	}
	out := make([]api.Allocation, 0, len(e.allocations))
	for consumer, amount := range e.allocations {
		out = append(out, api.Allocation{
			ResourceID:  resourceID,
			ConsumerKey: consumer,
			Amount:      amount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConsumerKey < out[j].ConsumerKey })
	return out
}

// Stats returns resource and allocation counts.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{TotalResources: len(m.resources)}
	for _, e := range m.resources {
		s.ActiveAllocations += len(e.allocations)
	}
	return s
}
