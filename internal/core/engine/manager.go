package engine

import (
	"fmt"
	"sync"

	"github.com/penwyp/go-trace-project/internal/util"
)

// Factory builds a live instance for a trace type.
type Factory func(resource string) (Trace, error)

// Manager is an in-process Engine tracking opened traces.
type Manager struct {
	mu        sync.RWMutex
	opened    []Trace
	factories map[string]Factory
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{
		opened:    make([]Trace, 0),
		factories: make(map[string]Factory),
	}
}

// RegisterFactory sets the factory used for a trace type id.
func (m *Manager) RegisterFactory(typeID string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[typeID] = f
}

// Instantiate creates an unopened instance of the given type.
func (m *Manager) Instantiate(typeID, resource string) (Trace, error) {
	m.mu.RLock()
	f, ok := m.factories[typeID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", typeID, ErrUnknownType)
	}
	return f(resource)
}

// Open marks t as opened, replacing an instance of the same resource.
func (m *Manager) Open(t Trace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.opened {
		if existing.Resource() == t.Resource() {
			m.opened[i] = t
			return
		}
	}
	m.opened = append(m.opened, t)
	util.LogInfo(fmt.Sprintf("Opened trace %s (%s)", t.Resource(), t.TypeID()))
}

// Close forgets the opened instance of resource.
func (m *Manager) Close(resource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.opened {
		if existing.Resource() == resource {
			m.opened = append(m.opened[:i:i], m.opened[i+1:]...)
			util.LogInfo(fmt.Sprintf("Closed trace %s", resource))
			return true
		}
	}
	return false
}

// OpenedTraces returns a copy of the opened instances.
func (m *Manager) OpenedTraces() []Trace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Trace, len(m.opened))
	copy(result, m.opened)
	return result
}

// FindOpened returns the opened top-level instance of resource.
func FindOpened(e Engine, resource string) Trace {
	if e == nil {
		return nil
	}
	for _, t := range e.OpenedTraces() {
		if t.Resource() == resource {
			return t
		}
	}
	return nil
}

// FindInTraceSets returns the live instance of resource, looking inside the
// trace set of every opened experiment as well.
func FindInTraceSets(e Engine, resource string) Trace {
	if e == nil {
		return nil
	}
	for _, opened := range e.OpenedTraces() {
		for _, t := range TraceSetWithExperiment(opened) {
			if t.Resource() == resource {
				return t
			}
		}
	}
	return nil
}
