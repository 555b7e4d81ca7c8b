package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/itsneelabh/cartshare/core"
)

// Manager is the explicitly owned session state: hydrate it once at startup,
// mutate it through its setters, clear it on logout. Every change is written
// through to the Store before the call returns.
type Manager struct {
	store  Store
	logger core.Logger

	mu        sync.RWMutex
	sessionID string
	user      *User
}

// NewManager creates a manager over store. State is empty until Hydrate.
func NewManager(store Store, logger core.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: core.ComponentLogger(logger, "session"),
	}
}

// Hydrate loads the stored session and user. A stored user that cannot be
// decoded is dropped so the session reads as unauthenticated.
func (m *Manager) Hydrate(ctx context.Context) error {
	rec, err := m.store.Load(ctx)
	if err != nil && rec.SessionID == "" {
		return fmt.Errorf("failed to hydrate session: %w", err)
	}
	if err != nil {
		m.logger.WarnWithContext(ctx, "Ignoring unreadable stored user", map[string]interface{}{
			"error": err.Error(),
		})
	}

	m.mu.Lock()
	m.sessionID = rec.SessionID
	m.user = rec.User
	m.mu.Unlock()

	m.logger.DebugWithContext(ctx, "Session hydrated", map[string]interface{}{
		"has_session": rec.SessionID != "",
		"has_user":    rec.User != nil,
	})
	return nil
}

// SessionID returns the current session identifier, "" when anonymous.
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// User returns a copy of the cached user, nil when anonymous.
func (m *Manager) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user.Clone()
}

// IsAuthenticated is true only when both a user and a session are present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.sessionID != ""
}

// SetSession stores a new session identifier, keeping the cached user.
func (m *Manager) SetSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = sessionID
	return m.persistLocked(ctx)
}

// SetUser replaces the cached user, keeping the session identifier.
func (m *Manager) SetUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user.Clone()
	return m.persistLocked(ctx)
}

// UpdateUser applies fn to a copy of the cached user and stores the result.
// It reports false without touching anything when no user is cached.
func (m *Manager) UpdateUser(ctx context.Context, fn func(*User)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return false, nil
	}
	updated := m.user.Clone()
	fn(updated)
	m.user = updated
	return true, m.persistLocked(ctx)
}

// Clear drops the in-memory state and the stored record. Idempotent.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = ""
	m.user = nil
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}
	return nil
}

// Close releases the underlying store
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, Record{SessionID: m.sessionID, User: m.user.Clone()}); err != nil {
		m.logger.ErrorWithContext(ctx, "Failed to persist session", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}
