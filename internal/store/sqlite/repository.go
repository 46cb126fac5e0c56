// Package sqlite is the self-hosted backend on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Repository struct {
	db  *sql.DB
	now func() time.Time

	ops  *table[core.Operation]
	tsk  *table[core.Task]
	docs *table[core.Document]
}

// Ensure interface conformance
var (
	_ store.Backend   = (*Repository)(nil)
	_ store.UserAdmin = (*Repository)(nil)
)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	r := &Repository{db: db, now: time.Now}
	r.ops = &table[core.Operation]{repo: r, codec: operationCodec}
	r.tsk = &table[core.Task]{repo: r, codec: taskCodec}
	r.docs = &table[core.Document]{repo: r, codec: documentCodec}
	return r, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Operations() store.Collection[core.Operation] { return r.ops }
func (r *Repository) Tasks() store.Collection[core.Task]           { return r.tsk }
func (r *Repository) Documents() store.Collection[core.Document]   { return r.docs }

// CreateUser registers an account with a bcrypt password hash.
func (r *Repository) CreateUser(ctx context.Context, email, password string) (store.User, error) {
	email = store.NormalizeEmail(email)
	if email == "" {
		return store.User{}, errors.New("email is required")
	}
	hash, err := store.HashPassword(password)
	if err != nil {
		return store.User{}, err
	}
	u := store.User{ID: uuid.NewString(), Email: email}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, hash, r.now().UTC().Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return store.User{}, store.ErrUserExists
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User created", "user_id", u.ID, "component", "storage")
	return u, nil
}

func (r *Repository) SignIn(ctx context.Context, email, password string) (store.Credentials, error) {
	var u store.User
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = ?`, store.NormalizeEmail(email)).
		Scan(&u.ID, &u.Email, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Credentials{}, store.InvalidCredentials()
	}
	if err != nil {
		return store.Credentials{}, fmt.Errorf("lookup user: %w", err)
	}
	if !store.CheckPassword(hash, password) {
		return store.Credentials{}, store.InvalidCredentials()
	}
	return store.Credentials{User: u, AccessToken: uuid.NewString()}, nil
}

func (r *Repository) SignOut(context.Context, store.Credentials) error { return nil }

func (r *Repository) Refresh(_ context.Context, c store.Credentials) (store.Credentials, error) {
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// codec maps one record kind to its table columns.
type codec[T core.Record] struct {
	table   string
	columns []string
	values  func(T) []any
	fields  func(*T) []any
	meta    func(*T) *core.Meta
}

var operationCodec = codec[core.Operation]{
	table:   "operations",
	columns: []string{"date", "type", "client", "amount", "status"},
	values: func(o core.Operation) []any {
		return []any{o.Date, o.Type, o.Client, o.Amount, o.Status}
	},
	fields: func(o *core.Operation) []any {
		return []any{&o.Date, &o.Type, &o.Client, &o.Amount, &o.Status}
	},
	meta: func(o *core.Operation) *core.Meta { return &o.Meta },
}

var taskCodec = codec[core.Task]{
	table:   "tasks",
	columns: []string{"title", "description", "due_date", "status"},
	values: func(t core.Task) []any {
		return []any{t.Title, t.Description, t.DueDate, t.Status}
	},
	fields: func(t *core.Task) []any {
		return []any{&t.Title, &t.Description, &t.DueDate, &t.Status}
	},
	meta: func(t *core.Task) *core.Meta { return &t.Meta },
}

var documentCodec = codec[core.Document]{
	table:   "documents",
	columns: []string{"name", "type", "file_url", "uploaded_date"},
	values: func(d core.Document) []any {
		return []any{d.Name, d.Type, d.FileURL, d.UploadedDate}
	},
	fields: func(d *core.Document) []any {
		return []any{&d.Name, &d.Type, &d.FileURL, &d.UploadedDate}
	},
	meta: func(d *core.Document) *core.Meta { return &d.Meta },
}

type table[T core.Record] struct {
	repo  *Repository
	codec codec[T]
}

func (t *table[T]) scan(sc rowScanner) (T, error) {
	var rec T
	m := t.codec.meta(&rec)
	var created string
	dest := append([]any{&m.ID, &m.UserID, &created}, t.codec.fields(&rec)...)
	if err := sc.Scan(dest...); err != nil {
		return rec, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		m.CreatedAt = &ts
	}
	return rec, nil
}

// List returns the caller's rows, newest first.
func (t *table[T]) List(ctx context.Context, caller store.Caller) ([]T, error) {
	query := fmt.Sprintf(`SELECT id, user_id, created_at, %s FROM %s WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		strings.Join(t.codec.columns, ", "), t.codec.table)
	rows, err := t.repo.db.QueryContext(ctx, query, caller.User.ID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.codec.table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.codec.table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.codec.table, err)
	}
	return out, nil
}

func (t *table[T]) Insert(ctx context.Context, caller store.Caller, rec T) error {
	if err := store.CheckOwner(caller, rec); err != nil {
		return err
	}
	cols := append([]string{"user_id", "created_at"}, t.codec.columns...)
	args := append([]any{rec.Base().UserID, t.repo.now().UTC().Format(timeLayout)}, t.codec.values(rec)...)
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		t.codec.table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	res, err := t.repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", t.codec.table, err)
	}
	id, _ := res.LastInsertId()
	slog.InfoContext(ctx, "Record saved to SQLite",
		"kind", t.codec.table,
		"id", id,
		"user_id", rec.Base().UserID)
	return nil
}

// Delete removes the caller's row with the id; a missing row is not an error.
func (t *table[T]) Delete(ctx context.Context, caller store.Caller, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, t.codec.table)
	if _, err := t.repo.db.ExecContext(ctx, query, id, caller.User.ID); err != nil {
		return fmt.Errorf("delete %s %d: %w", t.codec.table, id, err)
	}
	return nil
}
