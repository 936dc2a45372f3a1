// Package queue holds analytics events until the FlowRL service acknowledges
// them.
//
// The backlog is a set keyed by Event.Key(): logging the same event twice
// (identical fields, same millisecond) keeps one copy. Every mutation is
// followed by a persist of the whole set, under the same lock, so the stored
// record never lags or reorders relative to memory.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/store"
)

// FlushPolicy selects how Flush delivers a backlog.
type FlushPolicy int

const (
	// PolicyPerEvent submits every event of the backlog, one request each,
	// and removes only acknowledged events.
	PolicyPerEvent FlushPolicy = iota

	// PolicySubmitOneClearAll submits a single event and, on success, drops
	// the entire backlog. This matches the behaviour of the first FlowRL
	// SDKs and loses all but one event per flush.
	PolicySubmitOneClearAll
)

// String returns the config spelling of the policy.
func (p FlushPolicy) String() string {
	switch p {
	case PolicyPerEvent:
		return "per-event"
	case PolicySubmitOneClearAll:
		return "submit-one-clear-all"
	default:
		return fmt.Sprintf("FlushPolicy(%d)", int(p))
	}
}

// ParseFlushPolicy is the inverse of FlushPolicy.String.
func ParseFlushPolicy(s string) (FlushPolicy, error) {
	switch s {
	case "", "per-event":
		return PolicyPerEvent, nil
	case "submit-one-clear-all":
		return PolicySubmitOneClearAll, nil
	default:
		return 0, fmt.Errorf("unknown flush policy %q", s)
	}
}

// Submitter delivers one event.
type Submitter interface {
	SubmitEvent(ctx context.Context, event model.Event) error
}

// Result reports the outcome of one Flush.
type Result struct {
	Attempted int // events the policy tried to submit
	Delivered int // events acknowledged by the service
	Dropped   int // events cleared without delivery (legacy policy)
	Remaining int // backlog size after the flush
}

// Queue is the persistent event backlog.
//
// Thread-safety: All methods are safe for concurrent use. Overlapping Flush
// calls share a single in-flight delivery.
type Queue struct {
	store     store.Store
	submitter Submitter
	policy    FlushPolicy
	logger    *slog.Logger

	mu     sync.Mutex
	events map[string]model.Event
	loaded bool // persisted backlog merged at least once

	flights singleflight.Group
}

// Option configures a Queue.
type Option func(*Queue)

// WithPolicy selects the flush policy (default PolicyPerEvent).
func WithPolicy(p FlushPolicy) Option {
	return func(q *Queue) {
		q.policy = p
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// New creates an empty queue. Call Load to merge the persisted backlog.
func New(s store.Store, sub Submitter, opts ...Option) *Queue {
	q := &Queue{
		store:     s,
		submitter: sub,
		policy:    PolicyPerEvent,
		logger:    slog.Default(),
		events:    make(map[string]model.Event),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Policy returns the configured flush policy.
func (q *Queue) Policy() FlushPolicy {
	return q.policy
}

// Load merges the persisted backlog into memory. Events enqueued before Load
// are kept. An unreadable record leaves memory untouched.
func (q *Queue) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked(ctx)
}

func (q *Queue) loadLocked(ctx context.Context) error {
	var persisted []model.Event
	found, err := store.GetJSON(ctx, q.store, store.KeyEvents, &persisted)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	q.loaded = true
	if !found {
		return nil
	}

	added := 0
	for _, e := range persisted {
		k := e.Key()
		if _, ok := q.events[k]; ok {
			continue
		}
		q.events[k] = e
		added++
	}
	q.logger.Debug("event backlog loaded", "persisted", len(persisted), "merged", added, "total", len(q.events))

	if len(q.events) != len(persisted) {
		return q.persistLocked(ctx)
	}
	return nil
}

// Enqueue adds event to the backlog and persists it. A duplicate is a no-op
// apart from the persist.
//
// The first Enqueue on a queue that was never loaded merges the persisted
// backlog first, so events from an earlier process are not overwritten.
func (q *Queue) Enqueue(ctx context.Context, event model.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.loaded {
		if err := q.loadLocked(ctx); err != nil {
			q.logger.Warn("event backlog unreadable, replacing it", "error", err)
			q.loaded = true
		}
	}

	q.events[event.Key()] = event
	return q.persistLocked(ctx)
}

// Len returns the backlog size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Events returns a copy of the backlog in (timestamp, key) order.
func (q *Queue) Events() []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Flush delivers the backlog according to the queue's policy. It returns the
// first delivery error; undelivered events stay queued for the next flush.
//
// Concurrent callers share the in-flight flush and its result.
func (q *Queue) Flush(ctx context.Context) (Result, error) {
	v, err, shared := q.flights.Do("flush", func() (any, error) {
		return q.flush(ctx)
	})
	if shared {
		q.logger.Debug("flush coalesced with in-flight flush")
	}
	res, _ := v.(Result)
	return res, err
}

func (q *Queue) flush(ctx context.Context) (Result, error) {
	q.mu.Lock()
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return Result{}, nil
	}

	switch q.policy {
	case PolicySubmitOneClearAll:
		return q.flushOneClearAll(ctx, snapshot)
	default:
		return q.flushPerEvent(ctx, snapshot)
	}
}

// persistBatch is how many acknowledged events a per-event flush removes
// between backlog writes. A crash mid-flush resubmits at most this many.
const persistBatch = 16

func (q *Queue) flushPerEvent(ctx context.Context, snapshot []model.Event) (Result, error) {
	var res Result
	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return q.finish(ctx, res, err)
		}
		res.Attempted++
		if err := q.submitter.SubmitEvent(ctx, e); err != nil {
			return q.finish(ctx, res, err)
		}
		res.Delivered++

		q.mu.Lock()
		delete(q.events, e.Key())
		if res.Delivered%persistBatch == 0 || res.Delivered == len(snapshot) {
			if err := q.persistLocked(context.WithoutCancel(ctx)); err != nil {
				q.logger.Warn("event backlog not persisted", "error", err)
			}
		}
		q.mu.Unlock()
	}
	return q.finish(ctx, res, nil)
}

func (q *Queue) flushOneClearAll(ctx context.Context, snapshot []model.Event) (Result, error) {
	res := Result{Attempted: 1}
	if err := q.submitter.SubmitEvent(ctx, snapshot[0]); err != nil {
		return q.finish(ctx, res, err)
	}
	res.Delivered = 1
	res.Dropped = len(snapshot) - 1

	q.mu.Lock()
	for _, e := range snapshot {
		delete(q.events, e.Key())
	}
	if err := q.persistLocked(context.WithoutCancel(ctx)); err != nil {
		q.logger.Warn("event backlog not persisted", "error", err)
	}
	q.mu.Unlock()

	if res.Dropped > 0 {
		q.logger.Warn("backlog cleared after single delivery", "dropped", res.Dropped)
	}
	return q.finish(ctx, res, nil)
}

// finish records the remainder and, on failure, re-persists it. The failure
// path also covers removals a per-event flush had not written yet.
func (q *Queue) finish(ctx context.Context, res Result, flushErr error) (Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	res.Remaining = len(q.events)
	if flushErr == nil {
		q.logger.Info("events flushed", "delivered", res.Delivered, "remaining", res.Remaining)
		return res, nil
	}

	if err := q.persistLocked(context.WithoutCancel(ctx)); err != nil {
		q.logger.Warn("event backlog not persisted", "error", err)
	}
	q.logger.Warn("flush stopped",
		"delivered", res.Delivered,
		"remaining", res.Remaining,
		"error", flushErr,
	)
	return res, flushErr
}

// persistLocked writes the full backlog, or deletes the record when the
// backlog is empty. Caller must hold q.mu.
func (q *Queue) persistLocked(ctx context.Context) error {
	if len(q.events) == 0 {
		if err := q.store.Delete(ctx, store.KeyEvents); err != nil {
			return fmt.Errorf("delete events: %w", err)
		}
		return nil
	}
	if err := store.PutJSON(ctx, q.store, store.KeyEvents, q.sortedByKeyLocked()); err != nil {
		return fmt.Errorf("persist events: %w", err)
	}
	return nil
}

func (q *Queue) snapshotLocked() []model.Event {
	out := make([]model.Event, 0, len(q.events))
	for _, e := range q.events {
		out = append(out, e)
	}
	model.SortEvents(out)
	return out
}

func (q *Queue) sortedByKeyLocked() []model.Event {
	keys := make([]string, 0, len(q.events))
	for k := range q.events {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]model.Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, q.events[k])
	}
	return out
}
