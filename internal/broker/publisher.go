package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/models"
	"github.com/Guizzs26/go-crm-sync/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const DefaultEventBuffer = 1024

// Publisher sends one message to the broker
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg Message) error
}

// EventPublisher forwards sync events to the broker from a background goroutine.
// Emit never blocks: when the buffer is full the event is dropped and counted.
type EventPublisher struct {
	pub    Publisher
	logger *slog.Logger
	queue  chan models.Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewEventPublisher(p Publisher, buffer int, l *slog.Logger) *EventPublisher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	ep := &EventPublisher{
		pub:    p,
		logger: l.With("component", "event_publisher"),
		queue:  make(chan models.Event, buffer),
		done:   make(chan struct{}),
	}
	go ep.loop()
	return ep
}

// Emit queues e for publishing
func (p *EventPublisher) Emit(e models.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case p.queue <- e:
	default:
		metrics.EventsPublished.WithLabelValues("dropped").Inc()
	}
}

func (p *EventPublisher) loop() {
	defer close(p.done)
	for e := range p.queue {
		p.publish(e)
	}
}

func (p *EventPublisher) publish(e models.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		p.logger.Error("Failed to serialize event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout+time.Second)
	defer cancel()

	msg := Message{ID: uuid.NewString(), CorrelationID: e.RunID, Body: body, Timestamp: e.Time}
	if err := p.pub.Publish(ctx, RoutingKey(e), msg); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		p.logger.Warn("Failed to publish sync event", "run_id", e.RunID, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues("sent").Inc()
}

// Close stops accepting events and waits for the queued ones to be published or ctx to end
func (p *EventPublisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher drain interrupted: %w", ctx.Err())
	}
}

// RoutingKey is sync.<phase>.<level>, e.g. sync.companies.error
func RoutingKey(e models.Event) string {
	return fmt.Sprintf("sync.%s.%s", e.Phase, e.Level)
}
