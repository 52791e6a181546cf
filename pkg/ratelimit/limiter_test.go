package ratelimit

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func newTestLimiter(clock *fakeClock, hasProxy bool) *Limiter {
	return New(DefaultSettings(), hasProxy, nil,
		WithClock(clock.Now),
		WithSleeper(clock.Sleep),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
}

func TestWindowNeverExceedsMaxRequests(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, false)

	for i := 0; i < 300; i++ {
		limiter.RecordRequest()
		clock.now = clock.now.Add(time.Second)
		assert.LessOrEqual(t, limiter.Stats().InWindow, 75)
	}
	assert.Len(t, limiter.timestamps, 75)
}

func TestWaitIfNeededBlocksUntilOldestExpires(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, false)
	start := clock.now

	for i := 0; i < 75; i++ {
		require.NoError(t, limiter.WaitIfNeeded(context.Background()))
		limiter.RecordRequest()
	}
	oldest := limiter.timestamps[0]

	clock.sleeps = nil
	require.NoError(t, limiter.WaitIfNeeded(context.Background()))

	// window wait followed by the jitter sleep
	require.Len(t, clock.sleeps, 2)
	assert.False(t, clock.now.Before(oldest.Add(660*time.Second+6*time.Second)))
	assert.Greater(t, clock.now.Sub(start), 660*time.Second)
}

func TestWaitIfNeededUnderLimitOnlyJitters(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, false)

	for i := 0; i < 50; i++ {
		require.NoError(t, limiter.WaitIfNeeded(context.Background()))
		limiter.RecordRequest()
	}

	require.Len(t, clock.sleeps, 50)
	for _, d := range clock.sleeps {
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestProxySkipsWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, true)

	for i := 0; i < 200; i++ {
		require.NoError(t, limiter.WaitIfNeeded(context.Background()))
		limiter.RecordRequest()
	}

	require.Len(t, clock.sleeps, 200)
	for _, d := range clock.sleeps {
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestWaitIfNeededHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limiter := New(DefaultSettings(), false, nil)
	assert.ErrorIs(t, limiter.WaitIfNeeded(ctx), context.Canceled)
}

func TestStatsEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, false)

	for i := 0; i < 10; i++ {
		limiter.RecordRequest()
	}
	assert.Equal(t, Stats{InWindow: 10, MaxRequests: 75, Window: 660 * time.Second}, limiter.Stats())

	clock.now = clock.now.Add(661 * time.Second)
	assert.Equal(t, 0, limiter.Stats().InWindow)
}
