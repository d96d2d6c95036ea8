package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/event-ticketing/internal/logger"
)

const auditFile = "tickets.log"

// StartAuditConsumer connects to RabbitMQ, declares the issuance and refund
// queues (durable) and appends one line per message to <dir>/tickets.log.
// It reconnects with backoff until ctx is cancelled, then returns ctx.Err().
// Messages that cannot be decoded are rejected without requeue.
func StartAuditConsumer(ctx context.Context, url, dir string, log logger.Logger) error {
	backoff := time.Second
	for {
		conn, err := dial(url, defaultDialTimeout)
		if err != nil {
			log.Warnf(ctx, "audit-consumer: dial failed: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, dir, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf(ctx, "audit-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, dir string, log logger.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warnf(ctx, "audit-consumer: set QoS failed: %v", err)
	}

	type delivery struct {
		queue string
		amqp.Delivery
	}
	merged := make(chan delivery)
	done := make(chan struct{})
	defer close(done)

	for _, q := range []string{TicketsIssuedQueue, ReservationRefundedQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func(q string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case merged <- delivery{queue: q, Delivery: d}:
				case <-done:
					return
				}
			}
		}(q, msgs)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-closed:
			if err == nil {
				return errors.New("channel closed")
			}
			return err
		case d := <-merged:
			if err := handleMessage(d.queue, d.Body, dir); err != nil {
				log.Errorf(ctx, "audit-consumer: handle %s message failed: %v", d.queue, err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(queue string, body []byte, dir string) error {
	var line string
	switch queue {
	case TicketsIssuedQueue:
		var ev TicketsIssuedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("[%s] Tickets issued | reservation_id=%s | user_id=%s | event_id=%s | intent=%s | quantity=%d | total=%d %s | tickets=[%s]\n",
			ev.IssuedAt, ev.ReservationID, ev.UserID, ev.EventID, ev.ExternalIntentID, ev.Quantity,
			ev.AmountCents, strings.ToUpper(ev.Currency), strings.Join(ev.TicketIDs, ","))
	case ReservationRefundedQueue:
		var ev ReservationRefundedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("[%s] Reservation refunded | reservation_id=%s | user_id=%s | event_id=%s | intent=%s | total=%d %s | refund=%s | reason=%s\n",
			ev.RefundedAt, ev.ReservationID, ev.UserID, ev.EventID, ev.ExternalIntentID,
			ev.AmountCents, strings.ToUpper(ev.Currency), ev.RefundRef, ev.Reason)
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, auditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
