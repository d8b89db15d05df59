package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	b := NewBackoff(100*time.Millisecond, 400*time.Millisecond, 2)

	var waits []time.Duration
	for range 5 {
		waits = append(waits, b.Next())
	}

	for _, w := range waits {
		assert.GreaterOrEqual(t, w, 100*time.Millisecond)
		// max plus 20% jitter
		assert.LessOrEqual(t, w, 480*time.Millisecond)
	}
	assert.Equal(t, 5, b.Attempts())

	b.Reset()
	assert.Equal(t, 0, b.Attempts())
}

func TestBackoffNextAfterHonorsHint(t *testing.T) {
	t.Parallel()

	b := NewBackoff(10*time.Millisecond, time.Second, 2)

	assert.Equal(t, 300*time.Millisecond, b.NextAfter(300*time.Millisecond))
	assert.Equal(t, time.Second, b.NextAfter(5*time.Second))
	assert.Equal(t, 2, b.Attempts())
}
