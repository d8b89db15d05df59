package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Guizzs26/go-crm-sync/pkg/infra"

	"github.com/stretchr/testify/assert"
)

type sessionFunc func(ctx context.Context) error

func (f sessionFunc) Listen(ctx context.Context) error { return f(ctx) }
func (f sessionFunc) Close() {}

func TestSuperviseBacksOffWhenSessionsDropAtOnce(t *testing.T) {
	t.Parallel()

	var connects atomic.Int64
	connect := func() (Listener, error) {
		connects.Add(1)
		return sessionFunc(func(context.Context) error { return errors.New("queue bind refused") }), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	b := infra.NewBackoff(10*time.Millisecond, 40*time.Millisecond, 2.0)

	Supervise(ctx, connect, b, time.Second, discard())

	// waits of ~10, 20, 40, 40... leave room for a handful of sessions, not a spin
	assert.GreaterOrEqual(t, connects.Load(), int64(2))
	assert.LessOrEqual(t, connects.Load(), int64(10))
}

func TestSuperviseResetsBackoffAfterStableSession(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := infra.NewBackoff(time.Millisecond, 5*time.Millisecond, 2.0)

	var call int
	connect := func() (Listener, error) {
		call++
		switch call {
		case 1, 2:
			return nil, errors.New("connection refused")
		case 3:
			return sessionFunc(func(context.Context) error {
				time.Sleep(30 * time.Millisecond)
				return errors.New("channel closed")
			}), nil
		default:
			cancel()
			return nil, errors.New("connection refused")
		}
	}

	Supervise(ctx, connect, b, 20*time.Millisecond, discard())

	assert.Equal(t, 4, call)
	// two failed dials, reset by the stable session, then one wait after it and one after the last dial
	assert.Equal(t, 2, b.Attempts())
}

func TestSuperviseStopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var closed atomic.Bool
	listening := make(chan struct{}, 1)
	connect := func() (Listener, error) {
		return &blockingSession{closed: &closed, listening: listening}, nil
	}

	done := make(chan struct{})
	go func() {
		Supervise(ctx, connect, infra.NewBackoff(time.Millisecond, time.Millisecond, 1), time.Second, discard())
		close(done)
	}()
	<-listening
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Supervise did not return after cancel")
	}
	assert.True(t, closed.Load())
}

type blockingSession struct {
	closed    *atomic.Bool
	listening chan struct{}
}

func (s *blockingSession) Listen(ctx context.Context) error {
	s.listening <- struct{}{}
	<-ctx.Done()
	return nil
}

func (s *blockingSession) Close() { s.closed.Store(true) }
