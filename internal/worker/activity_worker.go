// Package worker handles record events consumed from the message queue.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/amqp"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/cache"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
)

// Mirror is the sink for activity events.
type Mirror interface {
	Mirror(ctx context.Context, ev *amqp.Event) error
}

// Stats counts handled events since start.
type Stats struct {
	Handled    atomic.Int64
	Duplicates atomic.Int64
	Failed     atomic.Int64
}

// ActivityWorker mirrors record and session events. Events already mirrored
// are remembered for a while so a redelivered message adds no second row.
type ActivityWorker struct {
	mirror Mirror
	seen   *cache.LRUCache[struct{}]
	logger *log.Logger
	stats  Stats
}

const (
	seenSize = 10000
	seenTTL  = time.Hour
)

// NewActivityWorker creates a worker. With a nil mirror events are only logged.
func NewActivityWorker(mirror Mirror, logger *log.Logger) *ActivityWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ActivityWorker{
		mirror: mirror,
		seen:   cache.NewLRUCache[struct{}](seenSize, seenTTL),
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

func (w *ActivityWorker) Stats() *Stats { return &w.stats }

// Seen exposes the redelivery cache so the process can sweep it.
func (w *ActivityWorker) Seen() *cache.LRUCache[struct{}] { return w.seen }

// HandleEvent is the consumer callback. A returned error requeues the message.
func (w *ActivityWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	if ev.ID != "" {
		if _, dup := w.seen.Get(ev.ID); dup {
			w.stats.Duplicates.Add(1)
			w.logger.DebugContext(ctx, "Skipping already mirrored event", log.FieldEvent, ev.ID)
			return nil
		}
	}

	w.logger.InfoContext(ctx, "Processing event",
		log.FieldEvent, string(ev.Type),
		log.FieldKind, ev.Kind,
		log.FieldRecordID, ev.RecordID,
		log.FieldUserID, ev.UserID)

	if w.mirror != nil {
		if err := w.mirror.Mirror(ctx, ev); err != nil {
			w.stats.Failed.Add(1)
			w.logger.ErrorContext(ctx, "Failed to mirror event",
				log.FieldEvent, string(ev.Type),
				log.FieldError, err)
			return fmt.Errorf("mirror %s: %w", ev.Type, err)
		}
	}

	if ev.ID != "" {
		w.seen.Set(ev.ID, struct{}{})
	}
	w.stats.Handled.Add(1)
	return nil
}

// ReportStats logs the counters every interval until ctx is done.
func (w *ActivityWorker) ReportStats(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.logger.InfoContext(ctx, "Worker stats",
				"handled", w.stats.Handled.Load(),
				"duplicates", w.stats.Duplicates.Load(),
				"failed", w.stats.Failed.Load())
		}
	}
}
