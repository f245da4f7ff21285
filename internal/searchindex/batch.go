// Package searchindex implements the bulk search-index writer of spec §4.8:
// accumulate index updates across envelopes, flush as a single bulk request
// when a count, byte-size, or idle-time threshold is crossed, and treat any
// bulk-level error as a whole-batch failure.
package searchindex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redhatci/kaijs/internal/log"
	"github.com/redhatci/kaijs/internal/metrics"
	"github.com/redhatci/kaijs/internal/types"
)

const (
	maxPendingUpdates = 100
	maxPendingBytes   = 50 * 1024 * 1024
	idleFlushAfter    = 3 * time.Second
)

// BulkAction is one {action-line, source-line} pair of a bulk request body,
// per spec §4.8's "alternating update/doc lines".
type BulkAction struct {
	DocID           string
	IndexName       string
	Routing         string
	Doc             map[string]any
	Upsert          map[string]any // non-nil for doc_as_upsert=false upsert-only writes
	DocAsUpsert     bool
	RetryOnConflict int
}

// Store issues a single bulk request. Returning a non-nil error, or a
// BulkError, both fail the whole batch — there is no partial commit.
type Store interface {
	Bulk(ctx context.Context, actions []BulkAction) error
}

// BulkError wraps a bulk response whose top-level "errors" flag was true.
type BulkError struct {
	Failed []string // doc ids that failed, when the backend reports them
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("searchindex: bulk request reported errors for %d document(s)", len(e.Failed))
}

// BatchWriter accumulates types.IndexUpdate values across envelopes and
// flushes them as one bulk request to Store, per spec §4.8's three flush
// triggers: pending count, pending byte size, and idle time since the last
// envelope was added.
type BatchWriter struct {
	store  Store
	clock  func() time.Time
	log    *log.Logger
	metric *metrics.Collector

	mu             sync.Mutex
	pending        []BulkAction
	pendingBytes   int
	lastEnvelopeAt time.Time
}

// NewBatchWriter builds a BatchWriter over store. metric may be nil.
func NewBatchWriter(store Store, logger *log.Logger, metric *metrics.Collector) *BatchWriter {
	return &BatchWriter{
		store:  store,
		clock:  func() time.Time { return time.Now().UTC() },
		log:    logger,
		metric: metric,
	}
}

// Add appends one envelope's index updates (typically a parent/child pair)
// to the pending batch, flushing immediately if the count or byte-size
// threshold is now crossed.
func (w *BatchWriter) Add(ctx context.Context, updates []types.IndexUpdate) error {
	w.mu.Lock()
	now := w.clock()
	w.lastEnvelopeAt = now
	for _, u := range updates {
		action := toBulkAction(u)
		w.pending = append(w.pending, action)
		w.pendingBytes += actionSize(action)
	}

	var trigger metrics.IndexFlushTrigger
	switch {
	case len(w.pending) >= maxPendingUpdates:
		trigger = metrics.IndexFlushTriggerCount
	case w.pendingBytes >= maxPendingBytes:
		trigger = metrics.IndexFlushTriggerBytes
	}
	if trigger == "" {
		w.mu.Unlock()
		return nil
	}
	batch := w.takeBatchLocked()
	w.mu.Unlock()

	return w.flush(ctx, batch, trigger)
}

// Idle flushes any pending batch if more than idleFlushAfter has elapsed
// since the last envelope was added. The production loader calls this from
// Run's ticking goroutine, not from the loop; tests call it directly
// with a controlled `now` for determinism, per spec §8.3 scenario S6.
func (w *BatchWriter) Idle(ctx context.Context, now time.Time) error {
	w.mu.Lock()
	if len(w.pending) == 0 || now.Sub(w.lastEnvelopeAt) <= idleFlushAfter {
		w.mu.Unlock()
		return nil
	}
	batch := w.takeBatchLocked()
	w.mu.Unlock()

	return w.flush(ctx, batch, metrics.IndexFlushTriggerIdle)
}

// Flush forces whatever is pending out immediately, regardless of
// thresholds. Used on clean shutdown so no envelope is left un-flushed.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.takeBatchLocked()
	w.mu.Unlock()

	return w.flush(ctx, batch, metrics.IndexFlushTriggerForced)
}

// Run polls Idle on a fixed tick until ctx is cancelled, matching the
// teacher's policy.StreamingPolicy flush-trigger goroutine shape. Besides
// the schema catalog's refresh ticker, this is the loader process's only
// background timer; the serial loop itself only suspends at the explicit
// points named in spec §5. cmd/loader launches this alongside the serial
// loader loop.
func (w *BatchWriter) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.Idle(ctx, now); err != nil && w.log != nil {
				w.log.Error("idle flush failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// takeBatchLocked must be called with w.mu held. It detaches the pending
// batch so the Store round-trip happens outside the lock.
func (w *BatchWriter) takeBatchLocked() []BulkAction {
	batch := w.pending
	w.pending = nil
	w.pendingBytes = 0
	return batch
}

func (w *BatchWriter) flush(ctx context.Context, batch []BulkAction, trigger metrics.IndexFlushTrigger) error {
	if len(batch) == 0 {
		return nil
	}
	if err := w.store.Bulk(ctx, batch); err != nil {
		w.metric.IncIndexFlushFailure()
		if w.log != nil {
			w.log.Error("search index bulk flush failed", map[string]any{
				"batch_size": len(batch),
				"error":      err.Error(),
			})
		}
		return err
	}
	w.metric.IncIndexFlush(trigger)
	return nil
}

func toBulkAction(u types.IndexUpdate) BulkAction {
	return BulkAction{
		DocID:           u.DocID,
		IndexName:       u.IndexName,
		Routing:         u.Routing,
		Doc:             u.Doc,
		Upsert:          u.Upsert,
		DocAsUpsert:     u.DocAsUpsert,
		RetryOnConflict: 10,
	}
}

// actionSize estimates a->wire byte size via its JSON encoding, for the
// 50 MiB pending-bytes flush trigger.
func actionSize(a BulkAction) int {
	n := 0
	if b, err := json.Marshal(a.Doc); err == nil {
		n += len(b)
	}
	if b, err := json.Marshal(a.Upsert); err == nil {
		n += len(b)
	}
	return n
}
