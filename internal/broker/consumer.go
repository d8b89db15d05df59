package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-crm-sync/internal/models"
	"github.com/Guizzs26/go-crm-sync/pkg/metrics"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventHandler receives one decoded sync event. A returned error requeues the delivery once.
type EventHandler func(ctx context.Context, e models.Event) error

// EventConsumer follows the events exchange through its own queue
type EventConsumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	handler    EventHandler
	logger     *slog.Logger
	queue      string
	routingKey string
}

// NewEventConsumer connects and binds queue to routingKey on the events exchange.
// An empty queue name gets a server-named exclusive queue that disappears with the consumer.
func NewEventConsumer(url, queue, routingKey string, handler EventHandler, logger *slog.Logger) (*EventConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// prefetch 1 keeps events in publish order
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare events exchange: %w", err)
	}

	return &EventConsumer{
		conn:       conn,
		channel:    ch,
		handler:    handler,
		logger:     logger,
		queue:      queue,
		routingKey: routingKey,
	}, nil
}

// Listen consumes until ctx ends or the delivery channel closes
func (c *EventConsumer) Listen(ctx context.Context) error {
	durable, exclusive := c.queue != "", c.queue == ""
	q, err := c.channel.QueueDeclare(c.queue, durable, exclusive, exclusive, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, c.routingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, exclusive, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Event consumer is online", "queue", q.Name, "routing_key", c.routingKey)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *EventConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var e models.Event
	if err := json.Unmarshal(d.Body, &e); err != nil {
		metrics.EventsConsumed.WithLabelValues("malformed").Inc()
		c.logger.Error("Failed to unmarshal event", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, e); err != nil {
		// one redelivery, then drop; a broken handler must not spin on the queue
		requeue := !d.Redelivered
		metrics.EventsConsumed.WithLabelValues("error").Inc()
		c.logger.Error("Event handler failed", "run_id", e.RunID, "requeue", requeue, "error", err)
		_ = d.Nack(false, requeue)
		return
	}

	metrics.EventsConsumed.WithLabelValues("success").Inc()
	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to Ack event", "run_id", e.RunID, "error", err)
	}
}

// Close terminates the RabbitMQ resources
func (c *EventConsumer) Close() {
	c.logger.Info("Shutting down event consumer")
	c.channel.Close()
	c.conn.Close()
}
