package services

import (
	"context"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/amqp"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/session"
)

// SessionActivity forwards sign-in and sign-out transitions to the activity
// feed. Token refreshes are not activity and are skipped.
type SessionActivity struct {
	publisher amqp.Publisher
	logger    *log.Logger
}

// Ensure interface conformance
var _ session.Listener = (*SessionActivity)(nil)

func NewSessionActivity(publisher amqp.Publisher, logger *log.Logger) *SessionActivity {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SessionActivity{publisher: publisher, logger: logger.WithComponent(log.ComponentSession)}
}

func (a *SessionActivity) SessionChanged(ctx context.Context, c session.Change) {
	var t amqp.EventType
	switch c.Event {
	case session.EventSignedIn:
		t = amqp.EventSignedIn
	case session.EventSignedOut:
		t = amqp.EventSignedOut
	default:
		return
	}
	if a.publisher == nil {
		return
	}
	ev := amqp.NewEvent(t, c.User.ID)
	ev.UserEmail = c.User.Email
	if err := a.publisher.Publish(ctx, ev); err != nil {
		a.logger.WarnContext(ctx, "Failed to publish session event", log.FieldEvent, string(c.Event), log.FieldError, err)
	}
}
