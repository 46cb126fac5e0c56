package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened.
type EventType string

const (
	EventRecordCreated EventType = "record.created"
	EventRecordDeleted EventType = "record.deleted"
	EventSignedIn      EventType = "session.signed_in"
	EventSignedOut     EventType = "session.signed_out"
)

// Event is one activity entry. Record carries the created record as the
// backend stores it; it is empty for deletes and session events.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Kind      string          `json:"kind,omitempty"`
	RecordID  int64           `json:"record_id,omitempty"`
	UserID    string          `json:"user_id"`
	UserEmail string          `json:"user_email,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Record    json.RawMessage `json:"record,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates an event with a fresh id, stamped with the current time.
func NewEvent(t EventType, userID string) *Event {
	return &Event{ID: uuid.NewString(), Type: t, UserID: userID, Timestamp: time.Now().UTC()}
}

// ToJSON converts the message to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects bodies without a type.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event has no type")
	}
	return &e, nil
}
