package session

import (
	"context"
	"sync"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/cache"
)

// Store keeps sessions server-side, keyed by session id.
type Store interface {
	// Get returns ErrNoSession when the id is unknown or expired.
	Get(ctx context.Context, id string) (*Session, error)
	// Put stores the session until its ExpiresAt.
	Put(ctx context.Context, s *Session) error
	// Delete reports whether a live session was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// Lock serialises token refresh for one session.
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// MemoryStore keeps sessions in an LRU cache. It is local to one process.
type MemoryStore struct {
	sessions *cache.LRUCache[Session]
	locks    keyedMutex
	now      func() time.Time
}

// Ensure interface conformance
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most maxSessions sessions; the
// least recently used one is dropped beyond that.
func NewMemoryStore(maxSessions int) *MemoryStore {
	return &MemoryStore{
		sessions: cache.NewLRUCache[Session](maxSessions, time.Hour),
		locks:    keyedMutex{locks: map[string]*lockEntry{}},
		now:      time.Now,
	}
}

// Cache exposes the underlying cache so it can be registered for sweeping.
func (m *MemoryStore) Cache() *cache.LRUCache[Session] { return m.sessions }

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNoSession
	}
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return ErrSessionExpired
	}
	m.sessions.SetWithTTL(s.ID, *s, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	return m.sessions.Delete(id), nil
}

func (m *MemoryStore) Lock(ctx context.Context, id string) (func(), error) {
	return m.locks.lock(ctx, id)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e := k.locks[key]
	if e == nil {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	release := func() {
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
