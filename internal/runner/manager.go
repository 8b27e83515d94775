package runner

import (
	"sort"
	"sync"

	"loom/internal/conversation"
	"loom/internal/provider"
	"loom/internal/storage"
)

// Manager is the session registry: it creates engines on demand and
// restores persisted sessions lazily.
type Manager struct {
	mu       sync.Mutex
	engines  map[string]*SessionEngine
	provider provider.Provider
	db       *storage.DB
	cfg      conversation.ContextConfig
	onCreate []func(*SessionEngine)
}

// NewManager creates a registry sharing one provider, config and DB
// across sessions.
func NewManager(p provider.Provider, cfg conversation.ContextConfig, db *storage.DB) *Manager {
	cfg.Normalize()
	return &Manager{
		engines:  make(map[string]*SessionEngine),
		provider: p,
		db:       db,
		cfg:      cfg,
	}
}

// OnEngineCreate registers a hook run for every newly created engine,
// before it is returned. Used to attach event subscribers.
func (m *Manager) OnEngineCreate(fn func(*SessionEngine)) {
	m.mu.Lock()
	m.onCreate = append(m.onCreate, fn)
	m.mu.Unlock()
}

// Get returns the engine for a session, creating and restoring it when
// seen for the first time.
func (m *Manager) Get(sessionID string) (*SessionEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[sessionID]; ok {
		return e, nil
	}

	e := NewSessionEngine(Options{
		SessionID: sessionID,
		Provider:  m.provider,
		Config:    m.cfg,
		DB:        m.db,
	})
	for _, fn := range m.onCreate {
		fn(e)
	}
	if err := e.LoadFromStorage(); err != nil {
		return nil, err
	}
	m.engines[sessionID] = e
	return e, nil
}

// Peek returns an already loaded engine without creating one.
func (m *Manager) Peek(sessionID string) (*SessionEngine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[sessionID]
	return e, ok
}

// Loaded returns the ids of sessions with a live engine, sorted.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sessions lists persisted sessions, falling back to loaded engines
// without a DB.
func (m *Manager) Sessions() ([]*storage.Session, error) {
	if m.db == nil {
		var out []*storage.Session
		for _, id := range m.Loaded() {
			out = append(out, &storage.Session{ID: id})
		}
		return out, nil
	}
	return m.db.ListSessions()
}

// Delete drops a session's engine and its persisted rows.
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	delete(m.engines, sessionID)
	m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	return m.db.DeleteSession(sessionID)
}

// FlushAll synchronously persists every loaded session, returning the
// first error encountered.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	engines := make([]*SessionEngine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	var firstErr error
	for _, e := range engines {
		if err := e.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
