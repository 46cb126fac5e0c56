package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

func TestBackendMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errors.New(`response status code 400: {"error":"invalid_grant","error_description":"Invalid login credentials"}`), "Invalid login credentials"},
		{errors.New(`response status code 400: {"code":400,"error_code":"email_not_confirmed","msg":"Email not confirmed"}`), "Email not confirmed"},
		{errors.New(`response status code 500: {"message":"upstream timeout"}`), "upstream timeout"},
		{errors.New("dial tcp: connection refused"), "dial tcp: connection refused"},
		{errors.New("response status code 502: {not json"), "response status code 502: {not json"},
	}
	for _, tc := range cases {
		if got := backendMessage(tc.err); got != tc.want {
			t.Fatalf("backendMessage(%q) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestNew_RequiresConfiguration(t *testing.T) {
	if _, err := New("", "key"); err == nil {
		t.Fatalf("expected error for missing URL")
	}
	if _, err := New("https://example.supabase.co", " "); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestSignIn_SurfacesBackendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/auth/v1/token") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "anon")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.SignIn(context.Background(), "a@b.c", "wrong")
	var authErr *store.AuthError
	if !errors.As(err, &authErr) || authErr.Message != "Invalid login credentials" {
		t.Fatalf("expected verbatim backend message, got %v", err)
	}
}

func TestSignIn_TransportFailureIsNotAuthError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, "anon")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.SignIn(context.Background(), "a@b.c", "pw")
	if err == nil {
		t.Fatalf("expected error from closed server")
	}
	var authErr *store.AuthError
	if errors.As(err, &authErr) {
		t.Fatalf("transport failure reported as auth rejection: %v", err)
	}
}

func TestAuthFailure(t *testing.T) {
	rejected := authFailure("sign in", errors.New(`response status code 400: {"msg":"Email not confirmed"}`))
	var authErr *store.AuthError
	if !errors.As(rejected, &authErr) || authErr.Message != "Email not confirmed" {
		t.Fatalf("expected AuthError, got %v", rejected)
	}
	if err := authFailure("sign in", errors.New("dial tcp: connection refused")); errors.As(err, &authErr) {
		t.Fatalf("dial error became AuthError: %v", err)
	}
}

func TestList_UsesCallerTokenAndNewestFirst(t *testing.T) {
	var gotAuth, gotQuery, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 2, "amount": 50.5, "client": "Globex", "user_id": "u1", "created_at": "2024-05-02T10:00:00+00:00"},
			{"id": 1, "amount": "100", "client": "Acme", "user_id": "u1", "created_at": "2024-05-01T10:00:00+00:00"},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, "anon")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ops, err := c.Operations().List(context.Background(), store.Caller{AccessToken: "user-token"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotPath != "/rest/v1/operations" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer user-token" {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "created_at.desc") {
		t.Fatalf("expected descending order in query %q", gotQuery)
	}
	if len(ops) != 2 || ops[0].Client != "Globex" || core.TotalAmount(ops) != 150.5 {
		t.Fatalf("unexpected operations: %+v", ops)
	}
}
