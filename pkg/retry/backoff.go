package retry

import (
	"context"
	"math"
	"time"
)

// Backoff returns the wait after a failed attempt. Attempts count from 1.
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff waits BaseDelay * Multiplier^(attempt-1), capped at
// MaxDelay when it is set
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// LinearBackoff waits BaseDelay + Increment*(attempt-1), capped at MaxDelay
// when it is set. Page retries use it: 30s, 60s, 90s.
type LinearBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Increment time.Duration
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := b.BaseDelay + b.Increment*time.Duration(attempt-1)
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}

// Sleeper blocks for d or until ctx is done. Wait is the production
// implementation.
type Sleeper func(ctx context.Context, d time.Duration) error

// Wait sleeps for delay. It returns ctx.Err() if ctx ends first.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
