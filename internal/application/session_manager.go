package application

import "sync"

// SessionFactory builds a DetailService for an item identifier.
type SessionFactory func(itemID int64) (*DetailService, error)

// SessionManager keeps at most one live detail session per item, so every
// consumer of an item shares the same projector and command queue.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[int64]*DetailService
	factory  SessionFactory
}

// NewSessionManager creates a registry backed by the given factory.
func NewSessionManager(factory SessionFactory) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*DetailService),
		factory:  factory,
	}
}

// Get returns the session for the item, creating it on first use.
func (m *SessionManager) Get(itemID int64) (*DetailService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[itemID]; ok {
		return session, nil
	}

	session, err := m.factory(itemID)
	if err != nil {
		return nil, err
	}
	m.sessions[itemID] = session
	return session, nil
}

// Remove closes and drops the session for the item, if any.
func (m *SessionManager) Remove(itemID int64) {
	m.mu.Lock()
	session, ok := m.sessions[itemID]
	delete(m.sessions, itemID)
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}

// CloseAll tears down every live session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*DetailService, 0, len(m.sessions))
	for id, session := range m.sessions {
		sessions = append(sessions, session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
