package infra

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff yields exponentially growing delays with ±20% jitter, bounded by [min, max]
type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

func NewBackoff(min, max time.Duration, mult float64) *Backoff {
	if mult < 1 {
		mult = 1
	}
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		current:    min,
	}
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	jitterFactor := rand.Float64()*0.4 - 0.2
	jitter := time.Duration(jitterFactor * float64(b.current))
	wait := max(b.current+jitter, b.minDelay)

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

// NextAfter prefers a server supplied hint (Retry-After) over the computed delay.
// The hint is capped at the max delay; the schedule still advances.
func (b *Backoff) NextAfter(hint time.Duration) time.Duration {
	wait := b.Next()
	if hint <= 0 {
		return wait
	}
	return min(hint, b.maxDelay)
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
