package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Backoff produces exponentially growing delays with optional jitter. It is
// used by the signaling client's reconnect loop, which retries forever, and
// by Retry for bounded attempts.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool

	attempt int
}

// Next returns the delay to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	mult := b.Multiplier
	if mult <= 1 {
		mult = 2.0
	}

	d := float64(b.Initial)
	for i := 0; i < b.attempt; i++ {
		d *= mult
		if b.Max > 0 && d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	b.attempt++

	delay := time.Duration(d)
	if b.Jitter {
		// up to 25% randomization to avoid synchronized reconnect storms
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Reset restarts the progression after a successful attempt.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Retry runs fn up to maxAttempts times, sleeping per the backoff between
// failures. Context cancellation aborts both the waits and further attempts.
func Retry(ctx context.Context, b Backoff, maxAttempts int, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled during wait: %w", ctx.Err())
		case <-time.After(b.Next()):
		}
	}

	return fmt.Errorf("max attempts (%d) exceeded: %w", maxAttempts, lastErr)
}
