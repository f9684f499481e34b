// Package rabbitmq publishes order events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/dinein/internal/notify"
)

// Config controls the connection and the circuit breaker guarding publishes.
type Config struct {
	URL            string
	Exchange       string
	PublishTimeout time.Duration

	// Consecutive failures that open the breaker.
	FailureThreshold uint32
	// Probes allowed while half-open.
	MaxRequests uint32
	// Period after which closed-state counts reset.
	Interval time.Duration
	// How long the breaker stays open.
	OpenTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Exchange == "" {
		c.Exchange = "dinein.events"
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var _ notify.Publisher = (*Publisher)(nil)

// Publisher sends events with the event kind as routing key. When the broker
// keeps failing the breaker opens and events are rejected immediately.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	timeout  time.Duration
	cb       *gobreaker.CircuitBreaker[struct{}]

	// Channels must not be used for concurrent publishes.
	mu sync.Mutex
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(cfg Config, lg *zap.Logger) (*Publisher, error) {
	cfg.setDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", cfg.Exchange)
	}

	p := newPublisher(ch, cfg, lg)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, cfg Config, lg *zap.Logger) *Publisher {
	cfg.setDefaults()
	return &Publisher{
		ch:       ch,
		exchange: cfg.Exchange,
		timeout:  cfg.PublishTimeout,
		cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "rabbitmq-publish",
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				lg.Warn("Circuit breaker state changed",
					zap.String("name", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

// Publish implements notify.Publisher.
func (p *Publisher) Publish(ctx context.Context, e notify.Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	body := e.Bytes()

	_, err := p.cb.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		p.mu.Lock()
		defer p.mu.Unlock()
		return struct{}{}, p.ch.PublishWithContext(ctx, p.exchange, string(e.Kind), false, false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    e.OccurredAt,
			Type:         string(e.Kind),
			Body:         body,
		})
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", e.Kind)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
