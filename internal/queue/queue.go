package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PratikDhanave/offhours-digest/internal/id"
	"github.com/PratikDhanave/offhours-digest/internal/lock"
	"github.com/PratikDhanave/offhours-digest/internal/logger"
	"github.com/PratikDhanave/offhours-digest/internal/models"
)

const (
	enqueueTimeout     = 100 * time.Millisecond
	DefaultLockTimeout = 3 * time.Second
)

// Persister appends one record to the durable Events table.
type Persister interface {
	AppendEvent(ctx context.Context, rec models.EventRecord) error
}

// UserResolver turns an event into a display name. It never fails.
type UserResolver interface {
	Resolve(ctx context.Context, ev models.InboundEvent) string
}

// Submitter is told that new work is waiting.
type Submitter interface {
	Submit()
}

// DebugLog receives a copy of every saved record when debugging is on.
type DebugLog interface {
	Log(ctx context.Context, label string, v any)
}

type Config struct {
	LockTimeout time.Duration
	Location    *time.Location
	Debug       DebugLog
}

// EventQueue defers persistence of webhook events off the request path.
type EventQueue struct {
	buf         Buffer
	ids         id.Generator
	store       Persister
	users       UserResolver
	lock        lock.Locker
	lockTimeout time.Duration
	loc         *time.Location
	sched       Submitter
	debug       DebugLog
	now         func() time.Time
}

func New(buf Buffer, ids id.Generator, store Persister, users UserResolver, locker lock.Locker, cfg Config) *EventQueue {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &EventQueue{
		buf:         buf,
		ids:         ids,
		store:       store,
		users:       users,
		lock:        locker,
		lockTimeout: cfg.LockTimeout,
		loc:         cfg.Location,
		debug:       cfg.Debug,
		now:         time.Now,
	}
}

// SetScheduler attaches the scheduler notified after each Enqueue. The
// scheduler's drain func usually calls back into Drain, hence the setter.
func (q *EventQueue) SetScheduler(s Submitter) {
	q.sched = s
}

// Enqueue stores ev under a fresh key and asks for a drain. It touches only
// the buffer and returns the key.
func (q *EventQueue) Enqueue(ctx context.Context, ev models.InboundEvent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	item := models.QueuedItem{
		Key:        q.ids.Next(),
		Payload:    ev,
		EnqueuedAt: q.now(),
	}
	if err := q.buf.Put(ctx, item); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	if q.sched != nil {
		q.sched.Submit()
	}
	return item.Key, nil
}

// DrainStats summarises one drain pass. Requeued items were claimed but put
// back because the pass ran out of time; Remaining were never claimed.
type DrainStats struct {
	Claimed   int `json:"claimed"`
	Persisted int `json:"persisted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
	Remaining int `json:"remaining"`
}

// Drain claims every buffered item and persists those with a type. Items
// claimed by a concurrent drain are skipped. A failing item is logged and
// dropped without affecting the rest. When ctx ends mid-pass the in-flight
// item is put back and another drain is submitted for the leftovers.
func (q *EventQueue) Drain(ctx context.Context) DrainStats {
	sp := logger.StartSpan(ctx, "queue.drain")
	defer sp.End()
	ctx = logger.WithLogFields(sp.Context(), logger.LogFields{Component: "digest.queue.drain"})

	var stats DrainStats

	keys, err := q.buf.Keys(ctx)
	if err != nil {
		sp.RecordError(err)
		slog.ErrorContext(ctx, "list queued keys failed", "error", err)
		return stats
	}

	for i, key := range keys {
		if ctx.Err() != nil {
			stats.Remaining = len(keys) - i
			break
		}
		q.drainOne(ctx, key, &stats)
	}

	if (stats.Remaining > 0 || stats.Requeued > 0) && q.sched != nil {
		q.sched.Submit()
	}
	if stats.Claimed > 0 || stats.Remaining > 0 {
		slog.InfoContext(ctx, "drain finished",
			"claimed", stats.Claimed,
			"persisted", stats.Persisted,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"requeued", stats.Requeued,
			"remaining", stats.Remaining)
	}
	return stats
}

func (q *EventQueue) drainOne(ctx context.Context, key string, stats *DrainStats) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{QueueKey: logger.Ptr(key)})

	item, found, err := q.buf.Claim(ctx, key)
	if err != nil {
		stats.Failed++
		slog.ErrorContext(ctx, "claim failed, item dropped", "error", err)
		return
	}
	if !found {
		return
	}
	stats.Claimed++

	ev := item.Payload
	if ev.Type == "" {
		stats.Skipped++
		slog.DebugContext(ctx, "dropping event without type")
		return
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{EventType: logger.Ptr(ev.Type)})

	rec, err := q.persist(ctx, ev)
	if err != nil {
		if ctx.Err() != nil {
			q.requeue(ctx, item, stats, err)
			return
		}
		stats.Failed++
		slog.ErrorContext(ctx, "persist failed, item dropped", "error", err)
		return
	}
	stats.Persisted++
	if q.debug != nil {
		q.debug.Log(ctx, "save_event", rec)
	}
}

// requeue puts a claimed item back after the drain's context ended.
func (q *EventQueue) requeue(ctx context.Context, item models.QueuedItem, stats *DrainStats, cause error) {
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := q.buf.Put(putCtx, item); err != nil {
		stats.Failed++
		slog.ErrorContext(ctx, "requeue failed, item dropped", "error", err, "cause", cause)
		return
	}
	stats.Requeued++
	slog.WarnContext(ctx, "drain interrupted, item requeued", "cause", cause)
}

func (q *EventQueue) persist(ctx context.Context, ev models.InboundEvent) (models.EventRecord, error) {
	rec := models.EventRecord{
		Type:        ev.Type,
		EntityID:    ev.EntityID(),
		UserDisplay: q.users.Resolve(ctx, ev),
		URL:         models.NotionURL(ev.EntityID()),
	}

	release, err := q.lock.TryLock(ctx, q.lockTimeout)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return rec, fmt.Errorf("write lock busy after %s: %w", q.lockTimeout, err)
		}
		return rec, fmt.Errorf("acquire write lock: %w", err)
	}
	defer release()

	rec.Timestamp = q.now().In(q.loc)
	return rec, q.store.AppendEvent(ctx, rec)
}
