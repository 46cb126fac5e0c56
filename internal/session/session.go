// Package session implements sign-in, sign-out and session restore on top of
// a backend Authenticator, and notifies listeners of every transition.
//
// The browser holds a signed token naming a server-side session. Restoring
// that token on a later request yields the same identity without asking for
// credentials again.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
)

// Event names a session transition.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Session is one signed-in browser.
type Session struct {
	ID          string            `json:"id"`
	Credentials store.Credentials `json:"credentials"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

func (s *Session) User() store.User { return s.Credentials.User }

// Caller is the identity handed to record collections.
func (s *Session) Caller() store.Caller { return s.Credentials.Caller() }

// Change describes one transition. Session is nil for EventSignedOut.
type Change struct {
	Event     Event
	SessionID string
	User      store.User
	Session   *Session
}

// Listener receives session transitions.
type Listener interface {
	SessionChanged(ctx context.Context, c Change)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, c Change)

func (f ListenerFunc) SessionChanged(ctx context.Context, c Change) { f(ctx, c) }

type Options struct {
	Authenticator store.Authenticator
	Store         Store
	Codec         *TokenCodec
	TTL           time.Duration
	Logger        *log.Logger
}

type Manager struct {
	auth   store.Authenticator
	store  Store
	codec  *TokenCodec
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Authenticator == nil || opts.Store == nil || opts.Codec == nil {
		return nil, errors.New("session manager needs an authenticator, a store and a token codec")
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		auth:      opts.Authenticator,
		store:     opts.Store,
		codec:     opts.Codec,
		ttl:       opts.TTL,
		now:       time.Now,
		logger:    opts.Logger.WithComponent(log.ComponentSession),
		listeners: map[int]Listener{},
	}, nil
}

// OnChange registers a listener for every later transition and returns a
// function that removes it. Listeners run synchronously, in registration
// order.
func (m *Manager) OnChange(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) emit(ctx context.Context, c Change) {
	m.mu.RLock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, m.listeners[id])
	}
	m.mu.RUnlock()

	m.logger.DebugContext(ctx, "Session change", log.FieldEvent, string(c.Event), log.FieldSessionID, c.SessionID, log.FieldUserID, c.User.ID)
	for _, l := range ls {
		l.SessionChanged(ctx, c)
	}
}

// SignIn authenticates against the backend, stores a new session and returns
// it with the signed cookie token. Backend failures come back unchanged so
// the caller can show their message; there is no retry.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, string, error) {
	creds, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		m.logger.WarnContext(ctx, "Sign-in failed", log.FieldOperation, log.OpSignIn, log.FieldError, err)
		return nil, "", err
	}

	now := m.now()
	s := &Session{
		ID:          uuid.NewString(),
		Credentials: creds,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, "", fmt.Errorf("store session: %w", err)
	}
	token, err := m.codec.Sign(s.ID, creds.User.ID, s.ExpiresAt)
	if err != nil {
		_, _ = m.store.Delete(ctx, s.ID)
		return nil, "", err
	}

	m.logger.InfoContext(ctx, "Signed in", log.FieldUserID, creds.User.ID, log.FieldSessionID, s.ID)
	m.emit(ctx, Change{Event: EventSignedIn, SessionID: s.ID, User: creds.User, Session: s})
	return s, token, nil
}

// SignOut ends the session named by token. It never fails from the caller's
// point of view: problems are logged and SIGNED_OUT is emitted only when a
// live session was actually removed.
func (m *Manager) SignOut(ctx context.Context, token string) {
	id, err := m.codec.Parse(token)
	if err != nil {
		return
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return
	}
	removed, err := m.store.Delete(ctx, id)
	if err != nil {
		m.logger.ErrorContext(ctx, "Delete session failed", log.FieldOperation, log.OpSignOut, log.FieldSessionID, id, log.FieldError, err)
		return
	}
	if err := m.auth.SignOut(ctx, s.Credentials); err != nil {
		m.logger.WarnContext(ctx, "Backend sign-out failed", log.FieldOperation, log.OpSignOut, log.FieldSessionID, id, log.FieldError, err)
	}
	if !removed {
		return
	}
	m.logger.InfoContext(ctx, "Signed out", log.FieldUserID, s.User().ID, log.FieldSessionID, id)
	m.emit(ctx, Change{Event: EventSignedOut, SessionID: id, User: s.User()})
}

// Restore loads the session named by token. An expired backend access token
// is refreshed under the session lock; whichever request refreshes first
// emits TOKEN_REFRESHED and the others reuse its result.
func (m *Manager) Restore(ctx context.Context, token string) (*Session, error) {
	id, err := m.codec.Parse(token)
	if err != nil {
		return nil, err
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Credentials.Expired(m.now()) {
		return s, nil
	}
	return m.refresh(ctx, id)
}

func (m *Manager) refresh(ctx context.Context, id string) (*Session, error) {
	unlock, err := m.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Credentials.Expired(m.now()) {
		return s, nil
	}

	creds, err := m.auth.Refresh(ctx, s.Credentials)
	if err != nil {
		m.logger.WarnContext(ctx, "Token refresh failed", log.FieldOperation, log.OpRefresh, log.FieldSessionID, id, log.FieldError, err)
		if removed, _ := m.store.Delete(ctx, id); removed {
			m.emit(ctx, Change{Event: EventSignedOut, SessionID: id, User: s.User()})
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	s.Credentials = creds
	if err := m.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("store refreshed session: %w", err)
	}
	m.emit(ctx, Change{Event: EventTokenRefreshed, SessionID: id, User: creds.User, Session: s})
	return s, nil
}

// TokenMaxAge is how long the cookie should live.
func (m *Manager) TokenMaxAge() time.Duration { return m.ttl }
