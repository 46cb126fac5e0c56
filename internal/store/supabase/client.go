// Package supabase is the hosted backend: GoTrue for password sign-in and
// PostgREST for the record tables. Row-level security on the hosted project
// scopes every query to the signed-in user, so requests carry the user's
// access token rather than a service key.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/postgrest-go"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

type Client struct {
	restURL string
	anonKey string
	auth    gotrue.Client
	now     func() time.Time

	ops  *collection[core.Operation]
	tsk  *collection[core.Task]
	docs *collection[core.Document]
}

// Ensure interface conformance
var _ store.Backend = (*Client)(nil)

// New creates a client for the project at baseURL authorised by the public anon key.
func New(baseURL, anonKey string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("missing backend URL")
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, errors.New("missing backend anon key")
	}
	c := &Client{
		restURL: baseURL + "/rest/v1",
		anonKey: anonKey,
		auth:    gotrue.New("", anonKey).WithCustomGoTrueURL(baseURL + "/auth/v1"),
		now:     time.Now,
	}
	c.ops = &collection[core.Operation]{client: c}
	c.tsk = &collection[core.Task]{client: c}
	c.docs = &collection[core.Document]{client: c}
	return c, nil
}

func (c *Client) Operations() store.Collection[core.Operation] { return c.ops }
func (c *Client) Tasks() store.Collection[core.Task]           { return c.tsk }
func (c *Client) Documents() store.Collection[core.Document]   { return c.docs }

// rest returns a PostgREST client acting as the given access token. The
// anon key stands in when there is no signed-in user.
func (c *Client) rest(accessToken string) *postgrest.Client {
	if accessToken == "" {
		accessToken = c.anonKey
	}
	return postgrest.NewClient(c.restURL, "public", map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + accessToken,
	})
}

// Ping issues a one-row anonymous select; row-level security makes it cheap.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := c.rest("").From(string(core.KindOperation)).Select("id", "", false).Limit(1, "").Execute()
	if err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	return nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (store.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return store.Credentials{}, err
	}
	resp, err := c.auth.SignInWithEmailPassword(email, password)
	if err != nil {
		return store.Credentials{}, authFailure("sign in", err)
	}
	return c.credentials(resp.Session), nil
}

func (c *Client) SignOut(ctx context.Context, creds store.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if creds.AccessToken == "" {
		return nil
	}
	if err := c.auth.WithToken(creds.AccessToken).Logout(); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Client) Refresh(ctx context.Context, creds store.Credentials) (store.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return store.Credentials{}, err
	}
	resp, err := c.auth.RefreshToken(creds.RefreshToken)
	if err != nil {
		return store.Credentials{}, authFailure("refresh", err)
	}
	return c.credentials(resp.Session), nil
}

func (c *Client) credentials(s types.Session) store.Credentials {
	creds := store.Credentials{
		User:         store.User{ID: s.User.ID.String(), Email: s.User.Email},
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	switch {
	case s.ExpiresAt > 0:
		creds.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		creds.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return creds
}

type collection[T core.Record] struct {
	client *Client
}

func (col *collection[T]) table() string {
	var zero T
	return string(zero.Kind())
}

// List selects every visible row ordered by creation time, newest first.
func (col *collection[T]) List(ctx context.Context, caller store.Caller) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]T, 0)
	_, err := col.client.rest(caller.AccessToken).
		From(col.table()).
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", col.table(), err)
	}
	return out, nil
}

func (col *collection[T]) Insert(ctx context.Context, caller store.Caller, rec T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := col.client.rest(caller.AccessToken).
		From(col.table()).
		Insert(rec, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert %s: %w", col.table(), err)
	}
	return nil
}

func (col *collection[T]) Delete(ctx context.Context, caller store.Caller, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := col.client.rest(caller.AccessToken).
		From(col.table()).
		Delete("minimal", "").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", col.table(), id, err)
	}
	return nil
}

// authFailure turns an auth API answer into a store.AuthError. Errors that
// never reached the API (dial, TLS, timeouts) are returned wrapped.
func authFailure(op string, err error) error {
	if !strings.HasPrefix(err.Error(), statusPrefix) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &store.AuthError{Message: backendMessage(err), Err: err}
}

const statusPrefix = "response status code "

// backendMessage extracts the human message from an auth API error body.
// The auth client reports failures as "response status code N: <json>".
func backendMessage(err error) string {
	text := err.Error()
	i := strings.Index(text, "{")
	if i < 0 {
		return text
	}
	var body struct {
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
	}
	if json.Unmarshal([]byte(text[i:]), &body) != nil {
		return text
	}
	for _, m := range []string{body.ErrorDescription, body.Msg, body.Message, body.Error} {
		if m != "" {
			return m
		}
	}
	return text
}
