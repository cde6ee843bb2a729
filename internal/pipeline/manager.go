package pipeline

import (
	"slices"
	"sync"
)

// Manager tracks live pipelines by session id for the daemon. Starting a
// new search releases nothing here; sessions age out with the process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Pipeline
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Pipeline)}
}

// Add registers a pipeline under its session id.
func (m *Manager) Add(p *Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[p.ID()] = p
}

// Get retrieves a pipeline by session id, nil if unknown.
func (m *Manager) Get(id string) *Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Remove drops a pipeline, releasing the session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns all pipelines, most recent first.
func (m *Manager) List() []*Pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Pipeline, 0, len(m.sessions))
	for _, p := range m.sessions {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Pipeline) int {
		return b.StartedAt().Compare(a.StartedAt())
	})
	return out
}
