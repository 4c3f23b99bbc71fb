package session

import (
	"context"
	"sync"
	"time"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

// Store is the session capability consumed by the drafting pipeline. It is
// keyed by the opaque session ID the transport layer issues.
//
// PinLanguage has set-once semantics: the first successful call fixes the
// language for the lifetime of the session and every later call returns the
// already pinned code unchanged. Implementations must make that decision
// atomically so concurrent first requests agree on one value.
type Store interface {
	// Load returns the session state. Unknown IDs yield an empty session.
	Load(ctx context.Context, id string) (contract.Session, error)

	// Language returns the pinned language or
	// [contract.ErrSessionLanguageMissing].
	Language(ctx context.Context, id string) (string, error)

	// PinLanguage pins lang unless a language is already pinned, and returns
	// the language in effect afterwards.
	PinLanguage(ctx context.Context, id, lang string) (string, error)

	// SetActiveType records the contract type most recently drafted.
	SetActiveType(ctx context.Context, id string, t contract.Type) error
}

// MemoryStore is an in-process [Store]. Entries expire ttl after their last
// write; a zero ttl keeps them until process exit. It is safe for concurrent
// use.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	sess    contract.Session
	expires time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}
}

// lookup returns the live entry for id, dropping it if expired. Caller holds mu.
func (s *MemoryStore) lookup(id string) *memoryEntry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, id)
		return nil
	}
	return e
}

func (s *MemoryStore) upsert(id string) *memoryEntry {
	e := s.lookup(id)
	if e == nil {
		e = &memoryEntry{sess: contract.Session{ID: id}}
		s.entries[id] = e
	}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	return e
}

// Load implements [Store].
func (s *MemoryStore) Load(_ context.Context, id string) (contract.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.lookup(id); e != nil {
		return e.sess, nil
	}
	return contract.Session{ID: id}, nil
}

// Language implements [Store].
func (s *MemoryStore) Language(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.lookup(id); e != nil && e.sess.Language != "" {
		return e.sess.Language, nil
	}
	return "", contract.ErrSessionLanguageMissing
}

// PinLanguage implements [Store].
func (s *MemoryStore) PinLanguage(_ context.Context, id, lang string) (string, error) {
	if lang == "" {
		return "", contract.InvalidInput("empty language code")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.upsert(id)
	if e.sess.Language == "" {
		e.sess.Language = lang
	}
	return e.sess.Language, nil
}

// SetActiveType implements [Store].
func (s *MemoryStore) SetActiveType(_ context.Context, id string, t contract.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(id).sess.ActiveType = t
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.entries {
		if s.lookup(id) != nil {
			n++
		}
	}
	return n
}
