package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "data", "olyfo.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_UsersAndSignIn(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "Ops@Example.com", "s3cret")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := repo.CreateUser(ctx, "ops@example.com", "other"); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	creds, err := repo.SignIn(ctx, "ops@example.com", "s3cret")
	if err != nil || creds.User.ID != u.ID {
		t.Fatalf("sign in: %+v %v", creds, err)
	}
	if _, err := repo.SignIn(ctx, "ops@example.com", "wrong"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := repo.SignIn(ctx, "nobody@example.com", "x"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRepository_Collections(t *testing.T) {
	repo := newTestRepo(t)
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { clock = clock.Add(time.Second); return clock }
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "ops@example.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	caller := store.Caller{User: u}

	for _, client := range []string{"Acme", "Globex"} {
		op := core.Operation{Meta: core.Meta{UserID: u.ID}, Date: "2024-05-01", Type: "advance", Client: client, Amount: "10.5", Status: "open"}
		if err := repo.Operations().Insert(ctx, caller, op); err != nil {
			t.Fatalf("insert operation: %v", err)
		}
	}
	ops, err := repo.Operations().List(ctx, caller)
	if err != nil || len(ops) != 2 {
		t.Fatalf("list operations: %v len=%d", err, len(ops))
	}
	if ops[0].Client != "Globex" || ops[0].Amount != "10.5" || ops[0].CreatedAt == nil {
		t.Fatalf("unexpected first operation: %+v", ops[0])
	}

	task := core.Task{Meta: core.Meta{UserID: u.ID}, Title: "Call client", Status: "pending"}
	if err := repo.Tasks().Insert(ctx, caller, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	doc := core.Document{Meta: core.Meta{UserID: u.ID}, Name: "Invoice", FileURL: "https://files.example.com/inv.pdf"}
	if err := repo.Documents().Insert(ctx, caller, doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	docs, _ := repo.Documents().List(ctx, caller)
	if len(docs) != 1 || docs[0].FileURL != doc.FileURL {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	if err := repo.Documents().Delete(ctx, caller, docs[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Documents().Delete(ctx, caller, 12345); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if docs, _ := repo.Documents().List(ctx, caller); len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}

	other := store.Caller{User: store.User{ID: "someone-else"}}
	if ops, _ := repo.Operations().List(ctx, other); len(ops) != 0 {
		t.Fatalf("rows leaked to another user")
	}
	if err := repo.Tasks().Insert(ctx, other, task); !errors.Is(err, store.ErrRowPolicy) {
		t.Fatalf("expected row policy error, got %v", err)
	}
}

func TestRepository_ListNewestFirstWithinSecond(t *testing.T) {
	repo := newTestRepo(t)
	stamps := []time.Time{
		time.Date(2024, 5, 1, 9, 0, 0, 120_000_000, time.UTC),
		time.Date(2024, 5, 1, 9, 0, 0, 123_000_000, time.UTC),
	}
	next := 0
	repo.now = func() time.Time { ts := stamps[next%len(stamps)]; next++; return ts }
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "ops@example.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	caller := store.Caller{User: u}
	next = 0

	for _, title := range []string{"older", "newer"} {
		task := core.Task{Meta: core.Meta{UserID: u.ID}, Title: title, Status: "pending"}
		if err := repo.Tasks().Insert(ctx, caller, task); err != nil {
			t.Fatalf("insert task: %v", err)
		}
	}
	tasks, err := repo.Tasks().List(ctx, caller)
	if err != nil || len(tasks) != 2 {
		t.Fatalf("list tasks: %v len=%d", err, len(tasks))
	}
	if tasks[0].Title != "newer" {
		t.Fatalf("got %q first, want newer", tasks[0].Title)
	}
	if got := tasks[0].Created(); !got.Equal(stamps[1]) {
		t.Errorf("created_at = %v, want %v", got, stamps[1])
	}
}
