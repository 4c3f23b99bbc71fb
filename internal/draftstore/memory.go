package draftstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

type key struct {
	session string
	typ     contract.Type
}

// MemoryStore is a process-local [Store].
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[key]Draft
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[key]Draft), now: time.Now}
}

// Put implements [Store].
func (s *MemoryStore) Put(_ context.Context, d *Draft) error {
	if d.SessionID == "" || d.Type == "" {
		return contract.InvalidInput("draft needs a session and a contract type")
	}
	d.UpdatedAt = s.now()
	s.mu.Lock()
	s.drafts[key{d.SessionID, d.Type}] = *d
	s.mu.Unlock()
	return nil
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context, sessionID string, t contract.Type) (*Draft, error) {
	s.mu.RLock()
	d, ok := s.drafts[key{sessionID, t}]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("draftstore: %q: %w", t, contract.ErrDraftNotFound)
	}
	return &d, nil
}
