package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the record for the lifetime of the process.
type MemoryStore struct {
	mu  sync.RWMutex
	rec Record
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store
func (s *MemoryStore) Load(ctx context.Context) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Record{SessionID: s.rec.SessionID, User: s.rec.User.Clone()}, nil
}

// Save implements Store
func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = Record{SessionID: rec.SessionID, User: rec.User.Clone()}
	return nil
}

// Clear implements Store
func (s *MemoryStore) Clear(ctx context.Context) error {
	return s.Save(ctx, Record{})
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}
