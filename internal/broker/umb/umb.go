// Package umb implements internal/broker.Receiver against an AMQP-1.0 Unified
// Message Bus using github.com/Azure/go-amqp. It owns the TLS, reconnect, and
// heartbeat concerns the core pipeline is deliberately blind to (spec §1, §6).
package umb

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/Azure/go-amqp"

	"github.com/redhatci/kaijs/internal/broker"
	"github.com/redhatci/kaijs/internal/log"
)

// Config configures a UMB connection.
type Config struct {
	// URL is an amqps:// or amqp:// connection address.
	URL string
	// TLSConfig is used when URL has the amqps scheme. A nil value uses
	// the standard library defaults, with no client certificate.
	TLSConfig *tls.Config
	// Subscriptions is the set of topic/selector pairs to subscribe.
	Subscriptions []broker.TopicSelector
	// IdleTimeout is the link idle timeout before a heartbeat is expected.
	IdleTimeout time.Duration
}

// Receiver is the UMB-backed broker.Receiver implementation.
type Receiver struct {
	cfg    Config
	logger *log.Logger

	mu       sync.Mutex
	conn     *amqp.Conn
	session  *amqp.Session
	receivers []*amqp.Receiver

	queued   atomic.Int64
	consumed atomic.Int64
	closedLinks    atomic.Int64
	closedSessions atomic.Int64
}

// New dials the UMB broker and opens a session, but does not yet subscribe.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Receiver, error) {
	opts := &amqp.ConnOptions{
		TLSConfig:   cfg.TLSConfig,
		IdleTimeout: cfg.IdleTimeout,
	}
	conn, err := amqp.Dial(ctx, cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("umb: dial %s: %w", cfg.URL, err)
	}
	session, err := conn.NewSession(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("umb: open session: %w", err)
	}

	return &Receiver{cfg: cfg, logger: logger, conn: conn, session: session}, nil
}

// Subscribe opens one receiver link per configured topic/selector and
// delivers messages to handle until every link has stopped, either because
// ctx is canceled or because the link failed. It then returns the first link
// error, or nil when every link stopped on cancellation.
func (r *Receiver) Subscribe(ctx context.Context, handle func(ctx context.Context, msg broker.Message, ack broker.Ack) error) error {
	for _, ts := range r.cfg.Subscriptions {
		opts := &amqp.ReceiverOptions{}
		if ts.Selector != "" {
			opts.Filters = []amqp.LinkFilter{amqp.NewSelectorFilter(ts.Selector)}
		}

		recv, err := r.session.NewReceiver(ctx, ts.Topic, opts)
		if err != nil {
			return fmt.Errorf("umb: subscribe %s: %w", ts.Topic, err)
		}
		r.mu.Lock()
		r.receivers = append(r.receivers, recv)
		r.mu.Unlock()
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(r.receivers))

	r.mu.Lock()
	receivers := append([]*amqp.Receiver(nil), r.receivers...)
	r.mu.Unlock()

	for _, recv := range receivers {
		wg.Add(1)
		go func(recv *amqp.Receiver) {
			defer wg.Done()
			errCh <- r.drain(ctx, recv, handle)
		}(recv)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Receiver) drain(ctx context.Context, recv *amqp.Receiver, handle func(ctx context.Context, msg broker.Message, ack broker.Ack) error) error {
	for {
		m, err := recv.Receive(ctx, nil)
		if err != nil {
			r.closedLinks.Add(1)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("umb: receive: %w", err)
		}
		r.queued.Add(1)

		msg := broker.Message{
			Topic:     broker.NormalizeTopic(linkAddress(recv)),
			Body:      m.GetData(),
			Headers:   annotationsToMap(m.Annotations),
			MsgID:     messageID(m),
			ReceiveAt: time.Now(),
		}

		ack := func(ctx context.Context, positive bool) error {
			if positive {
				return recv.AcceptMessage(ctx, m)
			}
			return recv.ReleaseMessage(ctx, m)
		}

		if err := handle(ctx, msg, ack); err != nil {
			r.logger.Error("umb: handler error", map[string]any{"error": err.Error(), "topic": msg.Topic})
			continue
		}
		r.consumed.Add(1)
	}
}

func linkAddress(recv *amqp.Receiver) string {
	if recv == nil {
		return ""
	}
	return recv.Address()
}

func messageID(m *amqp.Message) string {
	if m.Properties == nil || m.Properties.MessageID == nil {
		return ""
	}
	if id, ok := m.Properties.MessageID.(string); ok {
		return id
	}
	return fmt.Sprintf("%v", m.Properties.MessageID)
}

func annotationsToMap(a amqp.Annotations) map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		if ks, ok := k.(string); ok {
			out[ks] = v
		}
	}
	return out
}

// Stats returns the liveness snapshot described in spec §4.1 point 4.
func (r *Receiver) Stats() broker.LinkStats {
	r.mu.Lock()
	openLocal := len(r.receivers)
	r.mu.Unlock()

	return broker.LinkStats{
		Queued:          r.queued.Load(),
		Consumed:        r.consumed.Load(),
		OpenLocalLinks:  openLocal,
		OpenRemoteLinks: openLocal - int(r.closedLinks.Load()),
		ClosedLinks:     int(r.closedLinks.Load()),
		ClosedSessions:  int(r.closedSessions.Load()),
	}
}

// Close closes every link, the session, and the connection, in that order.
func (r *Receiver) Close(ctx context.Context) error {
	r.mu.Lock()
	receivers := r.receivers
	r.mu.Unlock()

	for _, recv := range receivers {
		_ = recv.Close(ctx)
	}
	if r.session != nil {
		_ = r.session.Close(ctx)
		r.closedSessions.Add(1)
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
