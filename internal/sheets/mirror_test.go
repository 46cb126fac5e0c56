package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goption "google.golang.org/api/option"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/amqp"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
)

type appended struct {
	rng  string
	rows [][]any
}

type fakeRows struct {
	calls []appended
	err   error
}

func (f *fakeRows) AppendRows(_ context.Context, rng string, rows [][]any) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, appended{rng: rng, rows: rows})
	return nil
}

func TestAmountCell(t *testing.T) {
	tests := []struct {
		in   core.Amount
		want any
	}{
		{"1500", 1500.0},
		{" 12.50 ", 12.5},
		{"-3", -3.0},
		{"12abc", "12abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := AmountCell(tt.in); got != tt.want {
			t.Errorf("AmountCell(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestMirror_ActivityRow(t *testing.T) {
	rows := &fakeRows{}
	m := NewMirror(rows)

	ev := amqp.NewEvent(amqp.EventRecordDeleted, "u1")
	ev.Kind = "tasks"
	ev.RecordID = 42
	ev.UserEmail = "ops@olyfo.test"
	ev.Timestamp = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	if err := m.Mirror(context.Background(), ev); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if len(rows.calls) != 1 {
		t.Fatalf("expected 1 append, got %d", len(rows.calls))
	}
	got := rows.calls[0]
	if got.rng != "Activity!A:F" {
		t.Errorf("range = %q", got.rng)
	}
	want := []any{"2024-03-01T09:30:00Z", "deleted", "tasks", "ops@olyfo.test", "42", ""}
	for i := range want {
		if got.rows[0][i] != want[i] {
			t.Errorf("cell %d = %#v, want %#v", i, got.rows[0][i], want[i])
		}
	}
}

func TestMirror_CreatedOperationAddsLedgerRow(t *testing.T) {
	rows := &fakeRows{}
	m := NewMirror(rows)

	rec, _ := json.Marshal(core.Operation{Date: "2024-02-10", Type: "Advance", Client: "Acme", Amount: "2500.75", Status: "funded"})
	ev := amqp.NewEvent(amqp.EventRecordCreated, "u1")
	ev.Kind = "operations"
	ev.Record = rec

	if err := m.Mirror(context.Background(), ev); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if len(rows.calls) != 2 {
		t.Fatalf("expected 2 appends, got %d", len(rows.calls))
	}
	ledger := rows.calls[1]
	if ledger.rng != "Operations!A:F" {
		t.Errorf("range = %q", ledger.rng)
	}
	if ledger.rows[0][0] != "2/10/2024" || ledger.rows[0][3] != 2500.75 {
		t.Errorf("unexpected ledger row %#v", ledger.rows[0])
	}
}

func TestMirror_NonOperationSkipsLedger(t *testing.T) {
	rows := &fakeRows{}
	ev := amqp.NewEvent(amqp.EventRecordCreated, "u1")
	ev.Kind = "documents"
	ev.Record = json.RawMessage(`{"name":"invoice.pdf"}`)

	if err := NewMirror(rows).Mirror(context.Background(), ev); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if len(rows.calls) != 1 {
		t.Errorf("expected only the activity row, got %d appends", len(rows.calls))
	}
}

func TestMirror_AppendFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	err := NewMirror(&fakeRows{err: boom}).Mirror(context.Background(), amqp.NewEvent(amqp.EventSignedIn, "u1"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected append error, got %v", err)
	}
}

func TestNewClient_RequiresConfiguration(t *testing.T) {
	if _, err := NewClient(context.Background(), "", Credentials{JSON: "{}"}); err == nil {
		t.Error("expected error for missing spreadsheet id")
	}
	if _, err := NewClient(context.Background(), "sheet", Credentials{}); err == nil {
		t.Error("expected error for missing credentials")
	}
	if _, err := NewClient(context.Background(), "sheet", Credentials{File: "/does/not/exist.json"}); err == nil {
		t.Error("expected error for unreadable credentials file")
	}
}

func TestClient_AppendRows(t *testing.T) {
	var gotPath, gotInput, gotInsert, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInput = r.URL.Query().Get("valueInputOption")
		gotInsert = r.URL.Query().Get("insertDataOption")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "sheet-1", Credentials{},
		goption.WithEndpoint(srv.URL+"/"), goption.WithoutAuthentication(), goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.AppendRows(context.Background(), "Activity!A:F", [][]any{{"a", 1}}); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	if !strings.Contains(gotPath, "sheet-1") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("path = %q", gotPath)
	}
	if gotInput != "USER_ENTERED" || gotInsert != "INSERT_ROWS" {
		t.Errorf("options = %q, %q", gotInput, gotInsert)
	}
	if !strings.Contains(gotBody, `"a"`) {
		t.Errorf("body = %s", gotBody)
	}
}
