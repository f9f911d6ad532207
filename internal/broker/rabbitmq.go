// Package broker forwards reservation events to RabbitMQ for downstream consumers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"campspots/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	defaultBuffer  = 512
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, closer, error)

type closer interface {
	Close() error
}

// Publisher writes every reservation event as a persistent JSON message to a
// durable queue on the default exchange.
type Publisher struct {
	url    string
	queue  string
	dial   dialFunc
	events chan *events.Event
	logger *zerolog.Logger

	mu   sync.Mutex
	ch   channel
	conn closer
}

func NewPublisher(url, queue string, logger *zerolog.Logger) *Publisher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Publisher{
		url:    url,
		queue:  queue,
		dial:   dialAMQP,
		events: make(chan *events.Event, defaultBuffer),
		logger: logger,
	}
}

func dialAMQP(url string) (channel, closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	return ch, conn, nil
}

// Subscribe registers the publisher for every reservation event on bus.
func (p *Publisher) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(func(event *events.Event) error {
		select {
		case p.events <- event:
			return nil
		default:
			return fmt.Errorf("rabbitmq publisher buffer full, dropping %s", event.Type)
		}
	})
}

// Start publishes buffered events until ctx is cancelled. A failed publish is
// retried with backoff so events keep their order.
func (p *Publisher) Start(ctx context.Context) {
	defer p.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.events:
			p.publishWithRetry(ctx, event)
		}
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, event *events.Event) {
	backoff := time.Second
	for {
		err := p.Publish(ctx, event)
		if err == nil {
			return
		}
		p.logger.Error().Err(err).Str("event", event.Type).Dur("retry_in", backoff).Msg("rabbitmq: publish failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Publish sends one event, connecting first if needed. The connection is
// dropped on failure and re-established by the next call.
func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.ch.PublishWithContext(pctx, "", p.queue, false, false, buildPublishing(event)); err != nil {
		p.closeLocked()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *Publisher) connectLocked() error {
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.ch, p.conn = ch, conn
	p.logger.Info().Str("queue", p.queue).Msg("rabbitmq: connected")
	return nil
}

func (p *Publisher) closeLocked() {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	if err := errors.Join(errs...); err != nil {
		p.logger.Debug().Err(err).Msg("rabbitmq: close")
	}
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func buildPublishing(event *events.Event) amqp.Publishing {
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ts.UTC(),
		Type:         event.Type,
		Headers:      amqp.Table{"event_type": event.Type},
		Body:         event.Payload,
	}
}
