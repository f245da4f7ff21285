// Package rabbitmq implements internal/broker.Receiver against an AMQP-0.9.1
// RabbitMQ broker using github.com/rabbitmq/amqp091-go. Used for feeds that
// publish over classic AMQP rather than the AMQP-1.0 UMB (spec §1, §6).
package rabbitmq

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/redhatci/kaijs/internal/broker"
	"github.com/redhatci/kaijs/internal/log"
)

// Config configures a RabbitMQ connection. Binding.Selector is unused here —
// AMQP-0.9.1 has no JMS-selector equivalent, so selection is topic-pattern
// only (spec §4.1: "otherwise raw topic subscription").
type Config struct {
	URL       string
	TLSConfig *tls.Config
	Exchange  string
	Bindings  []broker.TopicSelector
	// SASLExternal uses client-certificate authentication (SASL EXTERNAL)
	// instead of a plain username/password when TLSConfig is set, matching
	// UMB-adjacent RabbitMQ deployments.
	SASLExternal bool
}

// Receiver is the RabbitMQ-backed broker.Receiver implementation. Each
// Subscribe call declares a single ephemeral, exclusive, auto-delete queue
// bound to every configured routing pattern — the classic "fan-in" topology
// for a transient listener.
type Receiver struct {
	cfg    Config
	logger *log.Logger

	conn *amqp.Connection
	ch   *amqp.Channel

	queued   atomic.Int64
	consumed atomic.Int64
	closed   atomic.Bool
}

// New dials the broker and opens a channel, then passively checks that the
// configured exchange exists as a durable topic exchange; it does not create
// it and returns an error when it is missing.
func New(cfg Config, logger *log.Logger) (*Receiver, error) {
	var conn *amqp.Connection
	var err error
	switch {
	case cfg.TLSConfig != nil && cfg.SASLExternal:
		conn, err = amqp.DialTLS_ExternalAuth(cfg.URL, cfg.TLSConfig)
	case cfg.TLSConfig != nil:
		conn, err = amqp.DialTLS(cfg.URL, cfg.TLSConfig)
	default:
		conn, err = amqp.Dial(cfg.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclarePassive(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq: exchange %s not found: %w", cfg.Exchange, err)
		}
	}

	return &Receiver{cfg: cfg, logger: logger, conn: conn, ch: ch}, nil
}

// Subscribe declares an exclusive, auto-delete queue, binds it to every
// configured routing pattern, and delivers messages to handle until ctx is
// canceled.
func (r *Receiver) Subscribe(ctx context.Context, handle func(ctx context.Context, msg broker.Message, ack broker.Ack) error) error {
	q, err := r.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}

	for _, b := range r.cfg.Bindings {
		if err := r.ch.QueueBind(q.Name, b.Topic, r.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq: bind %s: %w", b.Topic, err)
		}
	}

	deliveries, err := r.ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				r.closed.Store(true)
				return fmt.Errorf("rabbitmq: delivery channel closed")
			}
			r.queued.Add(1)

			msg := broker.Message{
				Topic:     broker.NormalizeTopic(d.RoutingKey),
				Body:      d.Body,
				Headers:   d.Headers,
				MsgID:     d.MessageId,
				ReceiveAt: time.Now(),
			}

			delivery := d
			ack := func(ctx context.Context, positive bool) error {
				if positive {
					return delivery.Ack(false)
				}
				return delivery.Nack(false, true)
			}

			if err := handle(ctx, msg, ack); err != nil {
				r.logger.Error("rabbitmq: handler error", map[string]any{"error": err.Error(), "topic": msg.Topic})
				continue
			}
			r.consumed.Add(1)
		}
	}
}

// Stats returns the liveness snapshot described in spec §4.1 point 4. AMQP-0.9.1
// has no link/session concept; the closed-link/session fields degrade to
// whether the delivery channel has observed a close.
func (r *Receiver) Stats() broker.LinkStats {
	openLocal := 1
	openRemote := 1
	var closedLinks int
	if r.closed.Load() {
		openRemote = 0
		closedLinks = 1
	}
	return broker.LinkStats{
		Queued:          r.queued.Load(),
		Consumed:        r.consumed.Load(),
		OpenLocalLinks:  openLocal,
		OpenRemoteLinks: openRemote,
		ClosedLinks:     closedLinks,
	}
}

// Close closes the channel and connection.
func (r *Receiver) Close(ctx context.Context) error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
