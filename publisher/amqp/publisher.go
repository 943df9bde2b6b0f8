// Package amqp publishes committed remit events to a RabbitMQ topic
// exchange. Each event is sent as a persistent JSON message routed by
// "<prefix>.<topic>", so consumers can bind to e.g. "remit.batch_*".
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/remit/event"
	"github.com/xraph/remit/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin     = (*Publisher)(nil)
	_ plugin.OnEvent    = (*Publisher)(nil)
	_ plugin.OnShutdown = (*Publisher)(nil)
)

// Defaults for a Publisher.
const (
	DefaultExchange    = "remit.events"
	DefaultRoutePrefix = "remit"
)

// Channel is the subset of *amqp091.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher is a plugin forwarding every event envelope to RabbitMQ.
type Publisher struct {
	ch       Channel
	conn     *amqp091.Connection
	exchange string
	prefix   string
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithExchange sets the topic exchange name.
func WithExchange(name string) Option {
	return func(p *Publisher) { p.exchange = name }
}

// WithRoutePrefix sets the routing key prefix.
func WithRoutePrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = prefix }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New creates a Publisher on an open channel and declares the exchange.
func New(ch Channel, opts ...Option) (*Publisher, error) {
	p := &Publisher{
		ch:       ch,
		exchange: DefaultExchange,
		prefix:   DefaultRoutePrefix,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("remit/amqp: declare exchange %q: %w", p.exchange, err)
	}
	return p, nil
}

// Dial connects to url, opens a channel and returns a Publisher that owns
// both.
func Dial(url string, opts ...Option) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("remit/amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("remit/amqp: open channel: %w", err)
	}
	p, err := New(ch, opts...)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "amqp-publisher" }

// RoutingKey returns the routing key for topic.
func (p *Publisher) RoutingKey(topic event.Topic) string {
	return p.prefix + "." + string(topic)
}

// OnEvent implements plugin.OnEvent.
func (p *Publisher) OnEvent(ctx context.Context, ev event.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("remit/amqp: encode %s: %w", ev.Topic, err)
	}

	key := p.RoutingKey(ev.Topic)
	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    ev.ID.String(),
			Type:         string(ev.Topic),
			Timestamp:    ev.Time,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("remit/amqp: publish %s: %w", key, err)
	}

	p.logger.Debug("remit/amqp: published event",
		"exchange", p.exchange,
		"routing_key", key,
		"event_id", ev.ID.String(),
	)
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	return p.Close()
}

// Close closes the channel, and the connection when the publisher dialed
// it.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
