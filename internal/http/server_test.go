package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/export"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/middleware/ratelimit"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/services"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/session"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store/memory"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "correct horse"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// brokenOperations wraps a backend so that the operation collection fails.
type brokenOperations struct {
	store.Backend
}

type failingCollection[T core.Record] struct{}

func (failingCollection[T]) List(context.Context, store.Caller) ([]T, error) {
	return nil, errors.New("connection refused")
}
func (failingCollection[T]) Insert(context.Context, store.Caller, T) error {
	return errors.New("connection refused")
}
func (failingCollection[T]) Delete(context.Context, store.Caller, int64) error {
	return errors.New("connection refused")
}

func (brokenOperations) Operations() store.Collection[core.Operation] {
	return failingCollection[core.Operation]{}
}

type testEnv struct {
	srv *Server
	mem *memory.Store
}

func newTestServer(t *testing.T, wrap func(store.Backend) store.Backend, rl ratelimit.Config) *testEnv {
	t.Helper()
	mem := memory.New()
	if _, err := mem.CreateUser(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("create user: %v", err)
	}
	var backend store.Backend = mem
	if wrap != nil {
		backend = wrap(mem)
	}

	codec, err := session.NewTokenCodec(testSecret)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	sessions, err := session.NewManager(session.Options{
		Authenticator: backend,
		Store:         session.NewMemoryStore(100),
		Codec:         codec,
		TTL:           time.Hour,
		Logger:        log.Discard(),
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	srv := NewServer(Options{
		Addr:      ":0",
		Records:   services.NewRecordService(backend, nil, time.Second, log.Discard()),
		Sessions:  sessions,
		Logger:    log.Discard(),
		RateLimit: rl,
	})
	srv.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	if srv.templates == nil {
		t.Fatal("templates failed to parse")
	}
	return &testEnv{srv: srv, mem: mem}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// login signs in and returns the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(formRequest(http.MethodPost, "/login", url.Values{
		"email":    {testEmail},
		"password": {testPassword},
	}))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatal("login set no session cookie")
	return nil
}

func htmxRequest(req *http.Request, cookie *http.Cookie) *http.Request {
	req.Header.Set("HX-Request", "true")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func triggers(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rec.Header().Get("HX-Trigger")
	if raw == "" {
		return nil
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("HX-Trigger not JSON: %v", err)
	}
	return out
}

func TestServer_LoginPage(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `action="/login"`) {
		t.Error("login form missing")
	}
	if strings.Contains(body, "Logout") {
		t.Error("shell rendered without a session")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}
}

func TestServer_LoginFailureShowsMessage(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	rec := env.do(formRequest(http.MethodPost, "/login", url.Values{
		"email":    {testEmail},
		"password": {"wrong"},
	}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Login failed: Invalid login credentials") {
		t.Errorf("body lacks failure message: %s", rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			t.Error("failed login set a session cookie")
		}
	}
	if got := env.srv.metrics.loginFailures.Load(); got != 1 {
		t.Errorf("login failures = %d, want 1", got)
	}
}

func TestServer_LoginShowsShell(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie flags: httpOnly=%v sameSite=%v", cookie.HttpOnly, cookie.SameSite)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	body := rec.Body.String()
	if !strings.Contains(body, "Logout") || !strings.Contains(body, testEmail) {
		t.Errorf("shell not rendered: %s", body)
	}
	for _, s := range sections {
		if !strings.Contains(body, `hx-get="`+s.Path+`"`) {
			t.Errorf("navigation lacks %s", s.Name)
		}
	}
}

func TestServer_SessionRequired(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/ui/operations", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("plain request: status %d location %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/dashboard", nil), nil))
	if rec.Header().Get("HX-Redirect") != "/" {
		t.Errorf("htmx request: HX-Redirect = %q", rec.Header().Get("HX-Redirect"))
	}

	forged := &http.Cookie{Name: sessionCookie, Value: "not-a-token"}
	rec = env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/tasks", nil), forged))
	if rec.Header().Get("HX-Redirect") != "/" {
		t.Error("forged cookie accepted")
	}
}

func TestServer_Logout(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("cookie not cleared")
	}

	// the old token no longer restores
	rec = env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/dashboard", nil), cookie))
	if rec.Header().Get("HX-Redirect") != "/" {
		t.Error("session survived logout")
	}
}

func TestServer_CreateAndDeleteOperation(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)

	rec := env.do(htmxRequest(formRequest(http.MethodPost, "/records/operations", url.Values{
		"date":   {"2024-03-01"},
		"type":   {"Advance"},
		"client": {"Acme <Corp>"},
		"amount": {"1500.5"},
		"status": {"funded"},
	}), cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Acme &lt;Corp&gt;") {
		t.Error("client not rendered escaped")
	}
	if !strings.Contains(body, "$1,500.5") || !strings.Contains(body, "3/1/2024") {
		t.Errorf("row formatting wrong: %s", body)
	}
	tr := triggers(t, rec)
	for _, name := range []string{"records:changed", "modal:close", "show-notification"} {
		if _, ok := tr[name]; !ok {
			t.Errorf("missing trigger %s", name)
		}
	}

	creds, _ := env.mem.SignIn(context.Background(), testEmail, testPassword)
	ops, err := env.mem.Operations().List(context.Background(), creds.Caller())
	if err != nil || len(ops) != 1 {
		t.Fatalf("stored operations = %v, %v", ops, err)
	}
	if ops[0].UserID != creds.User.ID {
		t.Errorf("owner = %q, want %q", ops[0].UserID, creds.User.ID)
	}

	del := httptest.NewRequest(http.MethodDelete, "/records/operations/"+strconv.FormatInt(ops[0].ID, 10), nil)
	rec = env.do(htmxRequest(del, cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Acme") {
		t.Error("deleted operation still listed")
	}
	if ops, _ := env.mem.Operations().List(context.Background(), creds.Caller()); len(ops) != 0 {
		t.Errorf("operations after delete = %d", len(ops))
	}
}

func TestServer_EveryKindIsSaved(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)

	tests := []struct {
		kind core.Kind
		form url.Values
		want string
	}{
		{core.KindOperation, url.Values{"date": {"2024-03-02"}, "client": {"Globex"}}, "Globex"},
		{core.KindTask, url.Values{"title": {"Call Globex"}, "due_date": {"2024-03-09"}}, "Due: 3/9/2024"},
		{core.KindDocument, url.Values{"name": {"invoice-17.pdf"}, "uploaded_date": {"2024-03-03"}}, "Uploaded: 3/3/2024"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rec := env.do(htmxRequest(formRequest(http.MethodPost, "/records/"+tt.kind.String(), tt.form), cookie))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("list lacks %q: %s", tt.want, rec.Body.String())
			}
		})
	}

	// a task saved without status counts as pending
	rec := env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/dashboard", nil), cookie))
	if !strings.Contains(rec.Body.String(), `id="pending-tasks">1<`) {
		t.Errorf("pending task not counted: %s", rec.Body.String())
	}
}

func TestServer_IncompleteFormSavesNothing(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)

	rec := env.do(htmxRequest(formRequest(http.MethodPost, "/records/tasks", url.Values{
		"description": {"no title"},
	}), cookie))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("HX-Reswap") != "none" {
		t.Error("view would be replaced")
	}
	if _, ok := triggers(t, rec)["modal:close"]; ok {
		t.Error("modal closed on rejected form")
	}

	creds, _ := env.mem.SignIn(context.Background(), testEmail, testPassword)
	if tasks, _ := env.mem.Tasks().List(context.Background(), creds.Caller()); len(tasks) != 0 {
		t.Errorf("tasks saved = %d", len(tasks))
	}
}

func TestServer_UnknownKind(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)
	rec := env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/invoices", nil), cookie))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	rec = env.do(htmxRequest(httptest.NewRequest(http.MethodDelete, "/records/tasks/abc", nil), cookie))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
	// any numeric id goes to the backend; a missing row is not an error
	for _, id := range []string{"0", "-3", "987654"} {
		rec = env.do(htmxRequest(httptest.NewRequest(http.MethodDelete, "/records/tasks/"+id, nil), cookie))
		if rec.Code != http.StatusOK {
			t.Errorf("delete id %s status = %d", id, rec.Code)
		}
	}
}

func TestServer_BackendFailureKeepsView(t *testing.T) {
	env := newTestServer(t, func(b store.Backend) store.Backend { return brokenOperations{b} }, ratelimit.Config{})
	cookie := env.login(t)

	rec := env.do(htmxRequest(formRequest(http.MethodPost, "/records/operations", url.Values{
		"date": {"2024-03-01"},
	}), cookie))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("HX-Reswap") != "none" {
		t.Error("failed save would replace the view")
	}
	if _, ok := triggers(t, rec)["show-notification"]; !ok {
		t.Error("no error notification")
	}

	rec = env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/operations", nil), cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if _, ok := triggers(t, rec)["show-notification"]; !ok {
		t.Error("failed list load not reported")
	}

	// the dashboard still renders; operations count as empty
	rec = env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/dashboard", nil), cookie))
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `id="total-operations">0<`) {
		t.Error("failed collection not counted as empty")
	}
}

func TestServer_Dashboard(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)
	for _, amount := range []string{"1000", "234.5", "n/a"} {
		rec := env.do(htmxRequest(formRequest(http.MethodPost, "/records/operations", url.Values{
			"date": {"2024-02-10"}, "amount": {amount},
		}), cookie))
		if rec.Code != http.StatusOK {
			t.Fatalf("seed status = %d", rec.Code)
		}
	}

	rec := env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/dashboard", nil), cookie))
	body := rec.Body.String()
	for _, want := range []string{
		`id="total-operations">3<`,
		`id="total-amount">$1,234.5<`,
		`id="total-documents">0<`,
		"Feb", "Mar", "Oct",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard lacks %q", want)
		}
	}
}

func TestServer_Admin(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)
	env.do(htmxRequest(formRequest(http.MethodPost, "/records/documents", url.Values{"name": {"a.pdf"}}), cookie))

	rec := env.do(htmxRequest(httptest.NewRequest(http.MethodGet, "/ui/admin", nil), cookie))
	body := rec.Body.String()
	if !strings.Contains(body, `id="admin-documents">1<`) || !strings.Contains(body, `id="admin-tasks">0<`) {
		t.Errorf("admin counts wrong: %s", body)
	}
}

func TestServer_CalculatorNeedsNoSession(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})

	tests := []struct {
		name string
		form url.Values
		want []string
	}{
		{
			name: "typical advance",
			form: url.Values{"amount": {"10000"}, "rate": {"80"}, "fee": {"3"}},
			want: []string{">8000.00<", ">300.00<", ">2000.00<", ">7700.00<"},
		},
		{
			name: "empty input propagates NaN",
			form: url.Values{"amount": {""}, "rate": {"80"}, "fee": {"3"}},
			want: []string{`id="result-advance">NaN<`, `id="result-net">NaN<`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(htmxRequest(formRequest(http.MethodPost, "/ui/calculator", tt.form), nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			for _, w := range tt.want {
				if !strings.Contains(rec.Body.String(), w) {
					t.Errorf("result lacks %q: %s", w, rec.Body.String())
				}
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/ui/calculator", strings.NewReader(`{"amount":"1000","rate":"90","fee":"2.5"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got["advance"] != "900.00" || got["fee_amount"] != "25.00" || got["reserve"] != "100.00" || got["net"] != "875.00" {
		t.Errorf("json result = %v", got)
	}
}

func TestServer_Export(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	cookie := env.login(t)
	env.do(htmxRequest(formRequest(http.MethodPost, "/records/operations", url.Values{"date": {"2024-03-01"}, "amount": {"10"}}), cookie))

	req := httptest.NewRequest(http.MethodGet, "/operations/export.xlsx", nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "operations-2024-03-15.xlsx") {
		t.Errorf("content disposition = %q", cd)
	}
	// xlsx files are zip archives
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("body is not a workbook")
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{})
	env.login(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var ready struct {
		Ready bool `json:"ready"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ready); err != nil || !ready.Ready || rec.Code != http.StatusOK {
		t.Errorf("readyz = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "olyfo_logins_total 1\n") {
		t.Errorf("metrics lack login count: %s", body)
	}
	if !strings.Contains(body, "olyfo_http_requests_total ") {
		t.Error("metrics lack request count")
	}
}

func TestServer_RateLimitsMutations(t *testing.T) {
	env := newTestServer(t, nil, ratelimit.Config{Requests: 2, Window: time.Minute, CleanupInterval: time.Minute})

	post := func() int {
		rec := env.do(htmxRequest(formRequest(http.MethodPost, "/ui/calculator", url.Values{"amount": {"1"}}), nil))
		return rec.Code
	}
	if post() != http.StatusOK || post() != http.StatusOK {
		t.Fatal("requests under the limit rejected")
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Errorf("third post status = %d, want 429", code)
	}

	// reads are never limited
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET limited: %d", rec.Code)
	}
}
