// Package brokertest provides an in-memory broker.Receiver for listener
// unit tests, grounded on the teacher's policy.StubSink stub-with-stats
// pattern.
package brokertest

import (
	"context"
	"sync"

	"github.com/redhatci/kaijs/internal/broker"
)

// Fake is an in-memory broker.Receiver. Queue messages onto it with Push
// before calling Subscribe; Subscribe delivers them in FIFO order and then
// blocks until ctx is canceled (matching a real broker's long-lived
// Subscribe call).
type Fake struct {
	mu       sync.Mutex
	pending  []broker.Message
	acked    []AckRecord
	stats    broker.LinkStats
	closed   bool
}

// AckRecord records one Ack call for test assertions.
type AckRecord struct {
	MsgID    string
	Positive bool
}

// New creates an empty Fake broker.
func New() *Fake {
	return &Fake{stats: broker.LinkStats{OpenLocalLinks: 1, OpenRemoteLinks: 1}}
}

// Push queues a message for delivery on the next Subscribe call.
func (f *Fake) Push(msg broker.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, msg)
	f.stats.Queued++
}

// Subscribe delivers every pending message in order, then blocks until ctx
// is canceled. A handle error is treated as non-fatal (as with the real
// receivers, the drain loop continues past handler errors).
func (f *Fake) Subscribe(ctx context.Context, handle func(ctx context.Context, msg broker.Message, ack broker.Ack) error) error {
	f.mu.Lock()
	queue := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, msg := range queue {
		msg := msg
		ack := func(ctx context.Context, positive bool) error {
			f.mu.Lock()
			f.acked = append(f.acked, AckRecord{MsgID: msg.MsgID, Positive: positive})
			f.mu.Unlock()
			return nil
		}
		if err := handle(ctx, msg, ack); err != nil {
			continue
		}
		f.mu.Lock()
		f.stats.Consumed++
		f.mu.Unlock()
	}

	<-ctx.Done()
	return nil
}

// Acks returns every Ack call observed so far, for test assertions.
func (f *Fake) Acks() []AckRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AckRecord(nil), f.acked...)
}

// Stats returns the current liveness snapshot.
func (f *Fake) Stats() broker.LinkStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Close marks the fake closed.
func (f *Fake) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
