// Package queue carries coda events over RabbitMQ. Generation, evaluation
// and evolution events are published to a topic exchange; interaction
// reports from other services are consumed from a work queue and folded
// into virtual learners.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange and queue names
const (
	EventsExchange       = "coda.events"
	InteractionQueueName = "coda.interactions"
)

// Event kinds, used as routing keys on EventsExchange
const (
	KindExerciseGenerated = "exercise.generated"
	KindResponseEvaluated = "response.evaluated"
	KindCodaEvolved       = "coda.evolved"
)

// Envelope wraps every published event
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope encodes payload under a fresh id
func NewEnvelope(kind string, payload any) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Envelope{ID: uuid.New(), Kind: kind, At: time.Now().UTC(), Payload: body}, nil
}

// Connection manages the RabbitMQ connection and reconnects when the
// broker drops it
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection dials url and declares the topology
func NewConnection(url string) (*Connection, error) {
	c := &Connection{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.conn, c.channel = conn, ch
	go c.watch(conn)

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

func declare(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		EventsExchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		InteractionQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(24 * time.Hour / time.Millisecond),
		},
	)
	if err != nil {
		return fmt.Errorf("declare interaction queue: %w", err)
	}
	return nil
}

// watch reconnects with capped exponential backoff after an unexpected close
func (c *Connection) watch(conn *amqp.Connection) {
	amqpErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || amqpErr == nil {
		return
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	slog.Warn("RabbitMQ connection lost, reconnecting", "error", amqpErr, "reconnects", c.reconnects)
	for attempt := range 10 {
		time.Sleep(min(time.Duration(1<<attempt)*time.Second, 30*time.Second))

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", attempt+1)
			continue
		}
		slog.Info("reconnected to RabbitMQ", "attempts", attempt+1)
		return
	}
	slog.Error("giving up reconnecting to RabbitMQ after 10 attempts")
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the channel and connection and stops reconnecting
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected reports whether the connection is open
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Publish sends a persistent JSON message
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch := c.Channel()
	if ch == nil {
		return fmt.Errorf("publish %s: not connected", routingKey)
	}
	return ch.PublishWithContext(ctx, exchange, routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// sanitizeURL drops credentials so the URL can be logged
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	return u.String()
}
