// Package session holds per-session state shared across plans: the
// key/value memory backing {{memory.K}} references and memory.write_key
// outputs. Vector memory is an external collaborator; this store is the
// in-process contract.
package session

import "sync"

// Memory is one session's key/value store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]any
}

// Read returns the value for key.
func (m *Memory) Read(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Write stores a value under key.
func (m *Memory) Write(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Keys returns a snapshot of the stored keys.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// Manager hands out per-session memories, creating them on first use.
// Sessions with no id share the anonymous memory.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Memory
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Memory)}
}

// Memory returns the session's memory, creating it if absent.
func (m *Manager) Memory(sessionID string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.sessions[sessionID]
	if !ok {
		mem = &Memory{data: make(map[string]any)}
		m.sessions[sessionID] = mem
	}
	return mem
}

// Drop discards a session's memory.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
