package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/go-crm-sync/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange = "crm.sync.events"

	confirmTimeout = 10 * time.Second
)

// Message is one sync event as published on crm.sync.events. CorrelationID carries the run id.
type Message struct {
	ID            string
	CorrelationID string
	Body          []byte
	Timestamp     time.Time
}

// RabbitMQClient is the publishing side of the sync event stream
type RabbitMQClient struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *slog.Logger
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	closeOnce  sync.Once
	healthy    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRabbitMQClient connects, declares the durable topic exchange for sync events and
// switches the channel to confirm mode
func NewRabbitMQClient(url string, l *slog.Logger) (*RabbitMQClient, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to declare events exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate Publisher Confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &RabbitMQClient{
		conn:       c,
		channel:    ch,
		logger:     l,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	client.healthy.Store(true)
	metrics.BrokerHealthy.Set(1)

	client.conn.NotifyClose(client.connClosed)
	client.channel.NotifyClose(client.chanClosed)

	go func() {
		select {
		case err := <-client.connClosed:
			client.healthy.Store(false)
			metrics.BrokerHealthy.Set(0)
			l.Warn("RabbitMQ connection closed", "error", err)
		case err := <-client.chanClosed:
			client.healthy.Store(false)
			metrics.BrokerHealthy.Set(0)
			l.Warn("RabbitMQ channel closed", "error", err)
		case <-client.ctx.Done():
			return
		}
	}()
	l.Info("Connected to RabbitMQ", "exchange", EventsExchange)
	return client, nil
}

// Publish sends one sync event under routingKey (sync.<phase>.<level>) and waits for the
// broker confirm, at most confirmTimeout
func (r *RabbitMQClient) Publish(ctx context.Context, routingKey string, msg Message) error {
	if !r.IsHealthy() {
		return fmt.Errorf("broker connection is closed, event %s not published", msg.ID)
	}

	deferred, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			Headers: amqp.Table{
				"run_id": msg.CorrelationID,
			},
			MessageId:     msg.ID,
			CorrelationId: msg.CorrelationID,
			Timestamp:     msg.Timestamp,
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			Body:          msg.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK for event %s of run %s", msg.ID, msg.CorrelationID)
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("no confirm for event %s within %s", msg.ID, confirmTimeout)
	}
}

// Close releases the channel and connection. Events still queued in an EventPublisher
// must be drained before calling it.
func (r *RabbitMQClient) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Closing sync event publisher connection")
		r.cancel()
		if r.channel != nil {
			r.channel.Close()
		}
		if r.conn != nil {
			r.conn.Close()
		}
	})
	return nil
}

// IsHealthy reports whether event publishing is possible; it turns false for good once the
// connection or channel closes
func (r *RabbitMQClient) IsHealthy() bool {
	return r.healthy.Load()
}
