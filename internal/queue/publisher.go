package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/event-ticketing/internal/logger"
)

var (
	// ErrBacklogFull is returned when events arrive faster than the broker
	// takes them. The event is dropped.
	ErrBacklogFull = errors.New("rabbitmq: publish backlog full")
	// ErrPublisherClosed is returned after Close.
	ErrPublisherClosed = errors.New("rabbitmq: publisher closed")
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultBacklog     = 256
	sendTimeout        = 5 * time.Second
	// redial is the pause after a failed dial before the next attempt.
	redial = 2 * time.Second
)

type outgoing struct {
	queue string
	body  []byte
}

// Publisher sends domain events to durable RabbitMQ queues. Publish calls
// only enqueue: one background goroutine owns the connection, dials it
// lazily and reopens it after a failure. Callers never wait on the broker,
// and a broker outage only costs the events published while it lasts.
type Publisher struct {
	url         string
	log         logger.Logger
	dialTimeout time.Duration

	out       chan outgoing
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by run
	conn       *amqp.Connection
	ch         *amqp.Channel
	declared   map[string]bool
	nextDialAt time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDialTimeout bounds the TCP connect and AMQP handshake.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithBacklog sets how many events may wait for the broker.
func WithBacklog(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.out = make(chan outgoing, n)
		}
	}
}

// NewPublisher starts the delivery goroutine. Close stops it.
func NewPublisher(url string, log logger.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		url:         url,
		log:         log,
		dialTimeout: defaultDialTimeout,
		out:         make(chan outgoing, defaultBacklog),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		declared:    map[string]bool{},
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

func (p *Publisher) PublishTicketsIssued(ctx context.Context, ev TicketsIssuedEvent) error {
	return p.publish(ctx, TicketsIssuedQueue, ev)
}

func (p *Publisher) PublishReservationRefunded(ctx context.Context, ev ReservationRefundedEvent) error {
	return p.publish(ctx, ReservationRefundedQueue, ev)
}

// publish hands the event to the delivery goroutine without blocking.
func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", queue, err)
	}
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.out <- outgoing{queue: queue, body: body}:
		p.log.Debugf(ctx, "rabbitmq: queued %s (%d bytes)", queue, len(body))
		return nil
	default:
		return fmt.Errorf("%s: %w", queue, ErrBacklogFull)
	}
}

func (p *Publisher) run() {
	defer close(p.stopped)
	defer p.reset()
	for {
		select {
		case <-p.done:
			if n := len(p.out); n > 0 {
				p.log.Warnf(context.Background(), "rabbitmq: publisher closed with %d undelivered events", n)
			}
			return
		case m := <-p.out:
			if err := p.send(m); err != nil {
				p.log.Warnf(context.Background(), "rabbitmq: drop %s event: %v", m.queue, err)
			}
		}
	}
}

func (p *Publisher) send(m outgoing) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	// durable so messages survive broker restarts
	if !p.declared[m.queue] {
		if _, err := ch.QueueDeclare(m.queue, true, false, false, false, nil); err != nil {
			p.reset()
			return fmt.Errorf("declare %s: %w", m.queue, err)
		}
		p.declared[m.queue] = true
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         m.body,
	}
	if err := ch.PublishWithContext(ctx, "", m.queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", m.queue, err)
	}
	return nil
}

// channel returns the open channel, dialing when needed. After a failed
// dial it refuses to redial for a short pause so a dead broker drains the
// backlog quickly instead of costing a dial timeout per event.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if time.Now().Before(p.nextDialAt) {
		return nil, errors.New("rabbitmq unavailable; waiting to redial")
	}
	conn, err := dial(p.url, p.dialTimeout)
	if err != nil {
		p.nextDialAt = time.Now().Add(redial)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.nextDialAt = time.Now().Add(redial)
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.declared = map[string]bool{}
}

// Close stops the delivery goroutine and releases the broker connection.
// Events still queued are dropped.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped
	return nil
}

// dial opens a connection whose TCP connect and AMQP handshake both finish
// within timeout.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	return conn, nil
}
