// Package store defines the ports every data backend implements: password
// authentication and the three record collections.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
)

type (
	// User is the identity the backend returns on sign-in.
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	// Credentials is an authenticated backend session.
	Credentials struct {
		User         User      `json:"user"`
		AccessToken  string    `json:"access_token,omitempty"`
		RefreshToken string    `json:"refresh_token,omitempty"`
		ExpiresAt    time.Time `json:"expires_at"`
	}

	// Caller identifies who a collection call is made for.
	Caller struct {
		User        User
		AccessToken string
	}
)

// Ports for outbound adapters.
type (
	Authenticator interface {
		SignIn(ctx context.Context, email, password string) (Credentials, error)
		SignOut(ctx context.Context, creds Credentials) error
		// Refresh exchanges the refresh token for a new access token.
		Refresh(ctx context.Context, creds Credentials) (Credentials, error)
	}

	// Collection is the list/insert/delete contract shared by every record kind.
	// List returns records newest first.
	Collection[T core.Record] interface {
		List(ctx context.Context, caller Caller) ([]T, error)
		Insert(ctx context.Context, caller Caller, rec T) error
		Delete(ctx context.Context, caller Caller, id int64) error
	}

	Backend interface {
		Authenticator
		Operations() Collection[core.Operation]
		Tasks() Collection[core.Task]
		Documents() Collection[core.Document]
		Ping(ctx context.Context) error
	}

	// UserAdmin is implemented by self-hosted backends that keep their own users.
	UserAdmin interface {
		CreateUser(ctx context.Context, email, password string) (User, error)
	}
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already exists")
)

// AuthError carries the message the backend returned for a failed sign-in.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// Caller returns the identity to use for collection calls.
func (c Credentials) Caller() Caller {
	return Caller{User: c.User, AccessToken: c.AccessToken}
}

// Expired reports whether the access token is past its expiry.
// Credentials without an expiry never expire.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
