package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-crm-sync/pkg/infra"
)

// Listener is one connected consumer session
type Listener interface {
	Listen(ctx context.Context) error
	Close()
}

// Supervise keeps a consumer connected until ctx ends. The backoff is reset only after a
// session stayed up for stableAfter: a session that drops sooner (refused bind, channel
// closed at once) waits like a failed dial instead of reconnecting in a tight loop.
func Supervise(ctx context.Context, connect func() (Listener, error), b *infra.Backoff, stableAfter time.Duration, l *slog.Logger) {
	for ctx.Err() == nil {
		c, err := connect()
		if err != nil {
			wait := b.Next()
			l.Error("RabbitMQ connection failed, retrying...", "wait_duration", wait, "error", err)
			if !pause(ctx, wait) {
				return
			}
			continue
		}

		started := time.Now()
		err = c.Listen(ctx)
		c.Close()
		if ctx.Err() != nil {
			return
		}

		uptime := time.Since(started)
		if uptime >= stableAfter {
			b.Reset()
		}
		wait := b.Next()
		l.Error("⚠️ Consumer connection lost", "uptime", uptime, "wait_duration", wait, "error", err)
		if !pause(ctx, wait) {
			return
		}
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
