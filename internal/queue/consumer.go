package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// InteractionMessage is an interaction report addressed to a learner
type InteractionMessage struct {
	CodaID      string           `json:"coda_id"`
	Interaction coda.Interaction `json:"interaction"`
}

// InteractionHandler folds one interaction into a learner
type InteractionHandler func(ctx context.Context, codaID string, in coda.Interaction) error

// Consumer consumes interaction reports from InteractionQueueName
type Consumer struct {
	conn       *Connection
	handler    InteractionHandler
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // concurrent workers
	Prefetch int           // unacked deliveries per channel
	Timeout  time.Duration // per message
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1,
		Timeout:  10 * time.Second,
	}
}

// NewConsumer creates a consumer; zero config fields take their defaults
func NewConsumer(conn *Connection, handler InteractionHandler, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// ServiceHandler adapts a coda service to an InteractionHandler
func ServiceHandler(svc *coda.Service) InteractionHandler {
	return func(ctx context.Context, codaID string, in coda.Interaction) error {
		_, err := svc.RecordInteraction(ctx, codaID, in)
		return err
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if ch == nil {
		return errors.New("start consumer: not connected")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		InteractionQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting interaction consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage acks on success, rejects what can never succeed and
// requeues a transient failure once
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var m InteractionMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil || m.CodaID == "" {
		slog.Error("malformed interaction message", "worker_id", workerID, "error", err)
		_ = msg.Reject(false)
		return
	}

	msgCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.handler(msgCtx, m.CodaID, m.Interaction)
	switch {
	case err == nil:
		slog.Debug("interaction recorded",
			"worker_id", workerID,
			"coda_id", m.CodaID,
			"concept_id", m.Interaction.ConceptID,
			"duration", time.Since(start),
		)
		if err := msg.Ack(false); err != nil {
			slog.Error("failed to ack message", "worker_id", workerID, "error", err)
		}

	case permanent(err):
		slog.Warn("dropping interaction", "worker_id", workerID, "coda_id", m.CodaID, "error", err)
		_ = msg.Reject(false)

	default:
		slog.Error("interaction failed",
			"worker_id", workerID,
			"coda_id", m.CodaID,
			"redelivered", msg.Redelivered,
			"error", err,
		)
		_ = msg.Nack(false, !msg.Redelivered)
	}
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrCodaNotFound) ||
		errors.Is(err, domain.ErrNoActiveSession) ||
		errors.Is(err, domain.ErrSessionNotFound)
}

// Stop cancels the workers and waits for in-flight messages
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
