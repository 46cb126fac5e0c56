// Package memory is an in-process backend for development and tests.
package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

type account struct {
	user store.User
	hash string
}

type Store struct {
	mu       sync.Mutex
	accounts map[string]account
	now      func() time.Time

	ops  *table[core.Operation, *core.Operation]
	tsk  *table[core.Task, *core.Task]
	docs *table[core.Document, *core.Document]
}

// Ensure interface conformance
var (
	_ store.Backend   = (*Store)(nil)
	_ store.UserAdmin = (*Store)(nil)
)

func New() *Store {
	s := &Store{accounts: map[string]account{}, now: time.Now}
	s.ops = newTable[core.Operation](s)
	s.tsk = newTable[core.Task](s)
	s.docs = newTable[core.Document](s)
	return s
}

// NewFromFiles creates a store with users seeded from base/seed_users.txt,
// one "email password" pair per line. When the file is missing or empty the
// fallback account is created instead.
func NewFromFiles(base, fallbackEmail, fallbackPassword string) (*Store, error) {
	s := New()
	seeds := readLines(filepath.Join(base, "seed_users.txt"))
	if len(seeds) == 0 && fallbackEmail != "" {
		seeds = []string{fallbackEmail + " " + fallbackPassword}
	}
	for _, line := range seeds {
		email, password, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		if _, err := s.CreateUser(context.Background(), email, strings.TrimSpace(password)); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", email, err)
		}
	}
	return s, nil
}

func (s *Store) Operations() store.Collection[core.Operation] { return s.ops }
func (s *Store) Tasks() store.Collection[core.Task]           { return s.tsk }
func (s *Store) Documents() store.Collection[core.Document]   { return s.docs }

func (s *Store) Ping(context.Context) error { return nil }

// CreateUser registers an account with a bcrypt password hash.
func (s *Store) CreateUser(_ context.Context, email, password string) (store.User, error) {
	email = store.NormalizeEmail(email)
	if email == "" {
		return store.User{}, errors.New("email is required")
	}
	hash, err := store.HashPassword(password)
	if err != nil {
		return store.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[email]; ok {
		return store.User{}, store.ErrUserExists
	}
	u := store.User{ID: uuid.NewString(), Email: email}
	s.accounts[email] = account{user: u, hash: hash}
	return u, nil
}

func (s *Store) SignIn(_ context.Context, email, password string) (store.Credentials, error) {
	s.mu.Lock()
	acc, ok := s.accounts[store.NormalizeEmail(email)]
	s.mu.Unlock()
	if !ok || !store.CheckPassword(acc.hash, password) {
		return store.Credentials{}, store.InvalidCredentials()
	}
	return store.Credentials{User: acc.user, AccessToken: uuid.NewString()}, nil
}

func (s *Store) SignOut(context.Context, store.Credentials) error { return nil }

func (s *Store) Refresh(_ context.Context, c store.Credentials) (store.Credentials, error) {
	return c, nil
}

type table[T core.Record, P core.RecordPtr[T]] struct {
	owner  *Store
	nextID int64
	rows   []T
}

func newTable[T core.Record, P core.RecordPtr[T]](owner *Store) *table[T, P] {
	return &table[T, P]{owner: owner}
}

// List returns the caller's rows, newest first.
func (t *table[T, P]) List(_ context.Context, caller store.Caller) ([]T, error) {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	out := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		if r.Base().UserID == caller.User.ID {
			out = append(out, r)
		}
	}
	store.SortNewestFirst(out)
	return out, nil
}

func (t *table[T, P]) Insert(_ context.Context, caller store.Caller, rec T) error {
	if err := store.CheckOwner(caller, rec); err != nil {
		return err
	}
	owner := rec.Base().UserID
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.nextID++
	at := t.owner.now().UTC()
	P(&rec).SetMeta(core.Meta{ID: t.nextID, UserID: owner, CreatedAt: &at})
	t.rows = append(t.rows, rec)
	return nil
}

// Delete removes the caller's row with the id; a missing row is not an error.
func (t *table[T, P]) Delete(_ context.Context, caller store.Caller, id int64) error {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	kept := t.rows[:0]
	for _, r := range t.rows {
		m := r.Base()
		if m.ID == id && m.UserID == caller.User.ID {
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
