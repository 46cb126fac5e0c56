package core

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies one of the three record collections.
type Kind string

const (
	KindOperation Kind = "operations"
	KindTask      Kind = "tasks"
	KindDocument  Kind = "documents"
)

// StatusPending is the only task status the dashboard interprets.
const StatusPending = "pending"

var ErrUnknownKind = errors.New("unknown record kind")

// Kinds returns every record kind in display order.
func Kinds() []Kind {
	return []Kind{KindOperation, KindTask, KindDocument}
}

// ParseKind maps a collection name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOperation, KindTask, KindDocument:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// Singular returns the human label for one record of the kind.
func (k Kind) Singular() string {
	switch k {
	case KindOperation:
		return "operation"
	case KindTask:
		return "task"
	case KindDocument:
		return "document"
	default:
		return string(k)
	}
}

type (
	// Meta holds the columns the backend owns for every record.
	Meta struct {
		ID        int64      `json:"id,omitempty" gorm:"column:id;primaryKey;autoIncrement"`
		UserID    string     `json:"user_id" gorm:"column:user_id;index"`
		CreatedAt *time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	}

	// Amount is the amount column exactly as the backend stores it.
	// Parsing happens only when aggregating or displaying.
	Amount string

	Operation struct {
		Meta
		Date   string `json:"date" gorm:"column:date"`
		Type   string `json:"type" gorm:"column:type"`
		Client string `json:"client" gorm:"column:client"`
		Amount Amount `json:"amount" gorm:"column:amount;type:numeric"`
		Status string `json:"status" gorm:"column:status"`
	}

	Task struct {
		Meta
		Title       string `json:"title" gorm:"column:title"`
		Description string `json:"description" gorm:"column:description"`
		DueDate     string `json:"due_date" gorm:"column:due_date"`
		Status      string `json:"status" gorm:"column:status"`
	}

	Document struct {
		Meta
		Name         string `json:"name" gorm:"column:name"`
		Type         string `json:"type" gorm:"column:type"`
		FileURL      string `json:"file_url" gorm:"column:file_url"`
		UploadedDate string `json:"uploaded_date" gorm:"column:uploaded_date"`
	}
)

// Record is implemented by Operation, Task and Document.
type Record interface {
	Kind() Kind
	Base() Meta
}

// RecordPtr lets generic storage code stamp backend-owned columns.
type RecordPtr[T any] interface {
	*T
	Record
	SetMeta(Meta)
}

type metaSetter interface {
	Record
	SetMeta(Meta)
}

var (
	_ metaSetter = (*Operation)(nil)
	_ metaSetter = (*Task)(nil)
	_ metaSetter = (*Document)(nil)
)

func (m Meta) Base() Meta { return m }

func (m *Meta) SetMeta(v Meta) { *m = v }

// Created returns the creation time, or the zero time when the backend
// has not assigned one.
func (m Meta) Created() time.Time {
	if m.CreatedAt == nil {
		return time.Time{}
	}
	return *m.CreatedAt
}

func (Operation) Kind() Kind { return KindOperation }
func (Task) Kind() Kind      { return KindTask }
func (Document) Kind() Kind  { return KindDocument }

// TableName is used by gorm.
func (Operation) TableName() string { return string(KindOperation) }
func (Task) TableName() string      { return string(KindTask) }
func (Document) TableName() string  { return string(KindDocument) }

// Float parses the amount with leading-number semantics. Unparsable text is NaN.
func (a Amount) Float() float64 {
	return ParseAmount(string(a))
}

// UnmarshalJSON accepts numeric columns (JSON numbers) as well as text.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(b)
	return nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = ""
	case string:
		*a = Amount(v)
	case []byte:
		*a = Amount(v)
	case float64:
		*a = Amount(fmt.Sprint(v))
	case int64:
		*a = Amount(fmt.Sprint(v))
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	return string(a), nil
}
