package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Fatalf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("invoices"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var ops []Operation
	body := `[{"id":1,"amount":100.50,"user_id":"u"},{"id":2,"amount":"abc"},{"id":3,"amount":null}]`
	if err := json.Unmarshal([]byte(body), &ops); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ops[0].Amount != "100.50" || ops[1].Amount != "abc" || ops[2].Amount != "" {
		t.Fatalf("unexpected amounts: %q %q %q", ops[0].Amount, ops[1].Amount, ops[2].Amount)
	}
	if ops[0].ID != 1 || ops[0].UserID != "u" {
		t.Fatalf("meta not decoded: %+v", ops[0].Meta)
	}
}

func TestOperation_MarshalOmitsBackendColumns(t *testing.T) {
	b, err := json.Marshal(Operation{Meta: Meta{UserID: "u1"}, Amount: "12", Status: "open"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if strings.Contains(s, `"id"`) || strings.Contains(s, "created_at") {
		t.Fatalf("insert payload carries backend columns: %s", s)
	}
	if !strings.Contains(s, `"user_id":"u1"`) || !strings.Contains(s, `"amount":"12"`) {
		t.Fatalf("unexpected payload: %s", s)
	}
}

func TestAmount_Scan(t *testing.T) {
	var a Amount
	for _, src := range []any{"1.5", []byte("1.5"), 1.5} {
		if err := a.Scan(src); err != nil || a.Float() != 1.5 {
			t.Fatalf("Scan(%v) = %q, %v", src, a, err)
		}
	}
	if err := a.Scan(struct{}{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
