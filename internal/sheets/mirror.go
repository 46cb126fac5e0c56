// Package sheets mirrors record activity into a Google spreadsheet.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/amqp"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
)

const (
	ActivitySheet   = "Activity"
	OperationsSheet = "Operations"
)

// Mirror appends one activity row per event, and one ledger row per created
// operation.
type Mirror struct {
	rows RowAppender
}

// NewMirror wraps any row appender. Tests pass a fake.
func NewMirror(rows RowAppender) *Mirror {
	return &Mirror{rows: rows}
}

// Credentials selects the service account. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

func (c Credentials) load() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return []byte(c.JSON), nil
	case strings.TrimSpace(c.File) != "":
		b, err := os.ReadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// Client appends rows through the Sheets API.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ RowAppender = (*Client)(nil)

// NewClient creates a Sheets client authenticated as a service account.
func NewClient(ctx context.Context, spreadsheetID string, creds Credentials, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if len(opts) == 0 {
		credentialsJSON, err := creds.load()
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) AppendRows(ctx context.Context, rng string, rows [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", rng, err)
	}
	return nil
}

// AppendActivity writes timestamp, action, kind, user, id and summary.
func (m *Mirror) AppendActivity(ctx context.Context, ev *amqp.Event) error {
	user := ev.UserEmail
	if user == "" {
		user = ev.UserID
	}
	id := ""
	if ev.RecordID != 0 {
		id = fmt.Sprint(ev.RecordID)
	}
	row := []any{
		ev.Timestamp.UTC().Format(time.RFC3339),
		Action(ev.Type),
		ev.Kind,
		user,
		id,
		ev.Summary,
	}
	return m.rows.AppendRows(ctx, ActivitySheet+"!A:F", [][]any{row})
}

// AppendOperation writes date, type, client, amount and status. The amount
// becomes a number when it parses as a decimal and stays text otherwise.
func (m *Mirror) AppendOperation(ctx context.Context, op core.Operation) error {
	row := []any{
		core.FormatDate(op.Date),
		op.Type,
		op.Client,
		AmountCell(op.Amount),
		op.Status,
		op.UserID,
	}
	return m.rows.AppendRows(ctx, OperationsSheet+"!A:F", [][]any{row})
}

// Mirror routes one event: every event gets an activity row and created
// operations also get a ledger row.
func (m *Mirror) Mirror(ctx context.Context, ev *amqp.Event) error {
	if err := m.AppendActivity(ctx, ev); err != nil {
		return err
	}
	if ev.Type != amqp.EventRecordCreated || ev.Kind != core.KindOperation.String() || len(ev.Record) == 0 {
		return nil
	}
	var op core.Operation
	if err := json.Unmarshal(ev.Record, &op); err != nil {
		// the activity row is already written
		slog.WarnContext(ctx, "Skipping operation row with unreadable record", "error", err)
		return nil
	}
	return m.AppendOperation(ctx, op)
}

// AmountCell returns a float for decimal text and the raw text otherwise.
func AmountCell(a core.Amount) any {
	d, err := decimal.NewFromString(strings.TrimSpace(string(a)))
	if err != nil {
		return string(a)
	}
	f, _ := d.Float64()
	return f
}

// Action is the human label of an event type.
func Action(t amqp.EventType) string {
	switch t {
	case amqp.EventRecordCreated:
		return "created"
	case amqp.EventRecordDeleted:
		return "deleted"
	case amqp.EventSignedIn:
		return "signed in"
	case amqp.EventSignedOut:
		return "signed out"
	default:
		return string(t)
	}
}
