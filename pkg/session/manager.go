package session

import "sync"

// Manager owns the process-wide session registry and the "current session"
// pointer. Components receive a Manager rather than touching globals, so
// init/teardown stays explicit.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	current  string
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Activate returns the session for surface, creating it via create on first
// activation. The newly activated session becomes current.
func (m *Manager) Activate(surface string, create func() *Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[surface]
	if !ok {
		sess = create()
		m.sessions[surface] = sess
	}
	m.current = surface
	return sess
}

// Lookup returns the session for surface, if one exists.
func (m *Manager) Lookup(surface string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[surface]
	return sess, ok
}

// Current returns the current session, or nil when none is active.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[m.current]
}

// SetCurrent repoints the current-session pointer. It reports whether the
// surface had a registered session; unknown surfaces leave the pointer alone.
func (m *Manager) SetCurrent(surface string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[surface]; !ok {
		return false
	}
	m.current = surface
	return true
}

// Remove unregisters and returns the session for surface. The caller is
// responsible for releasing its panes and timers.
func (m *Manager) Remove(surface string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[surface]
	if !ok {
		return nil, false
	}
	delete(m.sessions, surface)
	if m.current == surface {
		m.current = ""
	}
	return sess, true
}

// Drain unregisters and returns every session, for process teardown.
func (m *Manager) Drain() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Session, 0, len(m.sessions))
	for surface, sess := range m.sessions {
		all = append(all, sess)
		delete(m.sessions, surface)
	}
	m.current = ""
	return all
}

// Surfaces lists the registered surface IDs.
func (m *Manager) Surfaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for surface := range m.sessions {
		ids = append(ids, surface)
	}
	return ids
}
