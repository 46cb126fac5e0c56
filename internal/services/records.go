package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/amqp"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

// RecordService is the list/insert/delete path for the three collections.
// Every call is made for an explicit caller; failures are logged here and
// returned so the handler can decide what the user sees.
type RecordService struct {
	backend   store.Backend
	publisher amqp.Publisher
	timeout   time.Duration
	logger    *log.Logger
	sl        *log.StructuredLogger

	stats Stats
}

// Stats counts record traffic since start.
type Stats struct {
	Created  atomic.Int64
	Deleted  atomic.Int64
	Failures atomic.Int64
}

// NewRecordService wires the backend collections. publisher may be nil, in
// which case no events are sent.
func NewRecordService(backend store.Backend, publisher amqp.Publisher, timeout time.Duration, logger *log.Logger) *RecordService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentRecords)
	return &RecordService{
		backend:   backend,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		sl:        log.NewStructuredLogger(logger),
	}
}

func (s *RecordService) Stats() *Stats { return &s.stats }

// Ping checks the backend within the service timeout.
func (s *RecordService) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.backend.Ping(ctx)
}

func (s *RecordService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RecordService) Operations(ctx context.Context, caller store.Caller) ([]core.Operation, error) {
	return list(ctx, s, caller, s.backend.Operations())
}

func (s *RecordService) Tasks(ctx context.Context, caller store.Caller) ([]core.Task, error) {
	return list(ctx, s, caller, s.backend.Tasks())
}

func (s *RecordService) Documents(ctx context.Context, caller store.Caller) ([]core.Document, error) {
	return list(ctx, s, caller, s.backend.Documents())
}

// Save inserts a record owned by the caller. The concrete record type picks
// the collection, so every kind has its own reachable path.
func (s *RecordService) Save(ctx context.Context, caller store.Caller, rec core.Record) error {
	switch r := rec.(type) {
	case core.Operation:
		return insert(ctx, s, caller, s.backend.Operations(), r)
	case core.Task:
		if r.Status == "" {
			r.Status = core.StatusPending
		}
		return insert(ctx, s, caller, s.backend.Tasks(), r)
	case core.Document:
		return insert(ctx, s, caller, s.backend.Documents(), r)
	default:
		return fmt.Errorf("save %T: %w", rec, core.ErrUnknownKind)
	}
}

// Delete removes the record with id from the kind's collection. Deleting a
// record that does not exist is not an error.
func (s *RecordService) Delete(ctx context.Context, caller store.Caller, kind core.Kind, id int64) error {
	var err error
	switch kind {
	case core.KindOperation:
		err = remove(ctx, s, caller, s.backend.Operations(), id)
	case core.KindTask:
		err = remove(ctx, s, caller, s.backend.Tasks(), id)
	case core.KindDocument:
		err = remove(ctx, s, caller, s.backend.Documents(), id)
	default:
		return fmt.Errorf("delete %q: %w", kind, core.ErrUnknownKind)
	}
	return err
}

func list[T core.Record](ctx context.Context, s *RecordService, caller store.Caller, col store.Collection[T]) ([]T, error) {
	var zero T
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	out, err := col.List(cctx, caller)
	if err != nil {
		s.stats.Failures.Add(1)
		s.sl.LogError(ctx, "List records failed", err, log.ComponentRecords, log.OpList,
			log.NewFields().WithRecord(zero.Kind().String(), 0).WithUser(caller.User.ID))
		return nil, fmt.Errorf("list %s: %w", zero.Kind(), err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func insert[T core.Record, P core.RecordPtr[T]](ctx context.Context, s *RecordService, caller store.Caller, col store.Collection[T], rec T) error {
	// backend-owned columns are never taken from input
	P(&rec).SetMeta(core.Meta{UserID: caller.User.ID})
	kind := rec.Kind().String()

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := col.Insert(cctx, caller, rec); err != nil {
		s.stats.Failures.Add(1)
		s.sl.LogError(ctx, "Insert record failed", err, log.ComponentRecords, log.OpCreate,
			log.NewFields().WithRecord(kind, 0).WithUser(caller.User.ID))
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	s.stats.Created.Add(1)
	s.sl.LogRecordChange(ctx, log.OpCreate, kind, 0, caller.User.ID)

	ev := amqp.NewEvent(amqp.EventRecordCreated, caller.User.ID)
	ev.Kind = kind
	ev.UserEmail = caller.User.Email
	ev.Summary = Describe(rec)
	if b, err := json.Marshal(rec); err == nil {
		ev.Record = b
	}
	s.publish(ctx, ev)
	return nil
}

func remove[T core.Record](ctx context.Context, s *RecordService, caller store.Caller, col store.Collection[T], id int64) error {
	var zero T
	kind := zero.Kind().String()

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := col.Delete(cctx, caller, id); err != nil {
		s.stats.Failures.Add(1)
		s.sl.LogError(ctx, "Delete record failed", err, log.ComponentRecords, log.OpDelete,
			log.NewFields().WithRecord(kind, id).WithUser(caller.User.ID))
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	s.stats.Deleted.Add(1)
	s.sl.LogRecordChange(ctx, log.OpDelete, kind, id, caller.User.ID)

	ev := amqp.NewEvent(amqp.EventRecordDeleted, caller.User.ID)
	ev.Kind = kind
	ev.RecordID = id
	ev.UserEmail = caller.User.Email
	s.publish(ctx, ev)
	return nil
}

// publish never fails the request; the record change already happened.
func (s *RecordService) publish(ctx context.Context, ev *amqp.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			log.FieldEvent, string(ev.Type),
			log.FieldKind, ev.Kind,
			log.FieldError, err)
	}
}

// Describe renders a one-line description of a record for activity logs.
func Describe(rec core.Record) string {
	var parts []string
	switch r := rec.(type) {
	case core.Operation:
		parts = []string{r.Client, r.Type, core.FormatAmount(r.Amount.Float()), r.Status}
	case core.Task:
		parts = []string{r.Title, r.DueDate, r.Status}
	case core.Document:
		parts = []string{r.Name, r.Type}
	}
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " · ")
}
