package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/Guizzs26/go-crm-sync/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

type ackRecorder struct {
	acked   int
	nacked  int
	requeue []bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked++; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func TestEventConsumerHandle(t *testing.T) {
	t.Parallel()

	body := []byte(`{"runId":"r1","level":"error","phase":"companies","externalId":7,"message":"boom"}`)

	tests := []struct {
		name        string
		body        []byte
		redelivered bool
		handlerErr  error
		wantAck     int
		wantRequeue []bool
	}{
		{name: "handled", body: body, wantAck: 1},
		{name: "malformed is dropped", body: []byte(`{"runId":`), wantRequeue: []bool{false}},
		{name: "handler error requeues once", body: body, handlerErr: errors.New("disk full"), wantRequeue: []bool{true}},
		{name: "redelivered failure is dropped", body: body, redelivered: true, handlerErr: errors.New("disk full"), wantRequeue: []bool{false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []models.Event
			c := &EventConsumer{
				logger: discard(),
				handler: func(_ context.Context, e models.Event) error {
					got = append(got, e)
					return tt.handlerErr
				},
			}
			ack := &ackRecorder{}
			c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: tt.body, Redelivered: tt.redelivered})

			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, tt.wantRequeue, ack.requeue)
			if tt.wantAck == 1 {
				assert.Equal(t, []models.Event{{RunID: "r1", Level: models.LevelError, Phase: models.PhaseCompanies, ExternalID: 7, Message: "boom"}}, got)
			}
		})
	}
}
