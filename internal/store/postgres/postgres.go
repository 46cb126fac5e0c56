// Package postgres is the self-hosted backend on PostgreSQL, using the same
// table layout as the hosted backend plus an app_users table for passwords.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

type account struct {
	ID           string `gorm:"primaryKey;type:text"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (account) TableName() string { return "app_users" }

type Repository struct {
	db *gorm.DB

	ops  *table[core.Operation]
	tsk  *table[core.Task]
	docs *table[core.Document]
}

// Ensure interface conformance
var (
	_ store.Backend   = (*Repository)(nil)
	_ store.UserAdmin = (*Repository)(nil)
)

// Open connects to dsn and optionally creates or updates the schema.
func Open(ctx context.Context, dsn string, autoMigrate bool) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	r := New(db)
	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if autoMigrate {
		if err := r.Migrate(ctx); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Repository {
	return &Repository{
		db:   db,
		ops:  &table[core.Operation]{db: db},
		tsk:  &table[core.Task]{db: db},
		docs: &table[core.Document]{db: db},
	}
}

// Migrate creates or updates the users and record tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&account{}, &core.Operation{}, &core.Task{}, &core.Document{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	slog.InfoContext(ctx, "Postgres schema migrated", "component", "storage")
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
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
	acc := account{ID: uuid.NewString(), Email: email, PasswordHash: hash}
	if err := r.db.WithContext(ctx).Create(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return store.User{}, store.ErrUserExists
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return store.User{ID: acc.ID, Email: acc.Email}, nil
}

func (r *Repository) SignIn(ctx context.Context, email, password string) (store.Credentials, error) {
	var acc account
	err := r.db.WithContext(ctx).Where("email = ?", store.NormalizeEmail(email)).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Credentials{}, store.InvalidCredentials()
	}
	if err != nil {
		return store.Credentials{}, fmt.Errorf("lookup user: %w", err)
	}
	if !store.CheckPassword(acc.PasswordHash, password) {
		return store.Credentials{}, store.InvalidCredentials()
	}
	return store.Credentials{
		User:        store.User{ID: acc.ID, Email: acc.Email},
		AccessToken: uuid.NewString(),
	}, nil
}

func (r *Repository) SignOut(context.Context, store.Credentials) error { return nil }

func (r *Repository) Refresh(_ context.Context, c store.Credentials) (store.Credentials, error) {
	return c, nil
}

type table[T core.Record] struct {
	db *gorm.DB
}

// List returns the caller's rows, newest first.
func (t *table[T]) List(ctx context.Context, caller store.Caller) ([]T, error) {
	out := make([]T, 0)
	err := t.db.WithContext(ctx).
		Where("user_id = ?", caller.User.ID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		var zero T
		return nil, fmt.Errorf("list %s: %w", zero.Kind(), err)
	}
	return out, nil
}

func (t *table[T]) Insert(ctx context.Context, caller store.Caller, rec T) error {
	if err := store.CheckOwner(caller, rec); err != nil {
		return err
	}
	if err := t.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert %s: %w", rec.Kind(), err)
	}
	return nil
}

// Delete removes the caller's row with the id; a missing row is not an error.
func (t *table[T]) Delete(ctx context.Context, caller store.Caller, id int64) error {
	var zero T
	err := t.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, caller.User.ID).
		Delete(&zero).Error
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", zero.Kind(), id, err)
	}
	return nil
}
