// Package amqp publishes scheduling progress to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"github.com/yatrik/scheduler/core/events"
	"github.com/yatrik/scheduler/infra/logger"
)

// Config defines the broker connection and exchange.
type Config struct {
	URL           string `json:"url"`
	Exchange      string `json:"exchange"`
	RoutingPrefix string `json:"routing_prefix"`
	Persistent    bool   `json:"persistent"`
}

// SetDefaults fills the exchange name and routing prefix.
func (c *Config) SetDefaults() {
	if c.Exchange == "" {
		c.Exchange = "yatrik.schedule"
	}
	if c.RoutingPrefix == "" {
		c.RoutingPrefix = "schedule"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("amqp: url is required")
	}
	return nil
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

var dial = func(url string) (channel, io.Closer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, conn, nil
}

// ProgressPublisher sends progress envelopes with routing key
// <prefix>.<event>. Consumers bind with patterns such as schedule.slot_*.
type ProgressPublisher struct {
	cfg  Config
	log  logger.Logger
	mu   sync.Mutex
	ch   channel
	conn io.Closer
}

// NewProgressPublisher connects to the broker and declares a durable topic
// exchange.
func NewProgressPublisher(cfg Config) (*ProgressPublisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ch, conn, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	log := logger.New("amqp_progress")
	log.Infof("publishing progress to exchange %s", cfg.Exchange)
	return &ProgressPublisher{cfg: cfg, log: log, ch: ch, conn: conn}, nil
}

// RoutingKey returns the routing key of env.
func (p *ProgressPublisher) RoutingKey(env events.Envelope) string {
	return p.cfg.RoutingPrefix + "." + env.Event
}

// Send publishes env as a JSON message.
func (p *ProgressPublisher) Send(ctx context.Context, env events.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   env.Sent,
		Type:        env.Event,
		Headers:     amqp091.Table{"run_id": env.RunID},
	}
	if p.cfg.Persistent {
		msg.DeliveryMode = amqp091.Persistent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.RoutingKey(env), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *ProgressPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.log.Warnf("close channel: %v", err)
	}
	return p.conn.Close()
}
