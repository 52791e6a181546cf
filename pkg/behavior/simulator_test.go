package behavior

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func newTestSimulator(hasProxy bool) (*Simulator, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	sim := New(DefaultSettings(), hasProxy, nil,
		WithSleeper(sleeper.Sleep),
		WithRand(rand.New(rand.NewPCG(7, 11))),
	)
	return sim, sleeper
}

func TestDelaysStayInRange(t *testing.T) {
	sim, sleeper := newTestSimulator(false)
	ctx := context.Background()

	tests := []struct {
		name  string
		delay func(context.Context) error
		rng   Range
	}{
		{"page", sim.PageDelay, DefaultSettings().Page},
		{"carousel", sim.CarouselDelay, DefaultSettings().Carousel},
		{"highlight tray", sim.HighlightTrayDelay, DefaultSettings().HighlightTray},
		{"highlight switch", sim.HighlightSwitchDelay, DefaultSettings().HighlightSwitch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 25; i++ {
				sleeper.sleeps = nil
				require.NoError(t, tt.delay(ctx))
				require.Len(t, sleeper.sleeps, 1)
				assert.GreaterOrEqual(t, sleeper.sleeps[0], tt.rng.Min)
				assert.LessOrEqual(t, sleeper.sleeps[0], tt.rng.Max)
			}
		})
	}
}

func TestProxyCollapsesDelays(t *testing.T) {
	sim, sleeper := newTestSimulator(true)
	ctx := context.Background()

	require.NoError(t, sim.PageDelay(ctx))
	require.NoError(t, sim.CarouselDelay(ctx))
	require.NoError(t, sim.HighlightTrayDelay(ctx))
	require.NoError(t, sim.HighlightSwitchDelay(ctx))

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		100 * time.Millisecond,
	}, sleeper.sleeps)

	sleeper.sleeps = nil
	for i := 0; i < 200; i++ {
		require.NoError(t, sim.RecordPostProcessed(ctx))
	}
	assert.Empty(t, sleeper.sleeps, "no rests through a proxy")
}

func TestRestBreaks(t *testing.T) {
	sim, sleeper := newTestSimulator(false)
	ctx := context.Background()

	// at most one rest per 50 posts, at least one per 80
	for i := 0; i < 160; i++ {
		require.NoError(t, sim.RecordPostProcessed(ctx))
	}

	assert.GreaterOrEqual(t, len(sleeper.sleeps), 2)
	assert.LessOrEqual(t, len(sleeper.sleeps), 3)
	for _, d := range sleeper.sleeps {
		assert.GreaterOrEqual(t, d, 10*time.Second)
		assert.LessOrEqual(t, d, 30*time.Second)
	}
	assert.GreaterOrEqual(t, sim.nextRestAt, 50)
	assert.LessOrEqual(t, sim.nextRestAt, 80)
}

func TestDelayCancelled(t *testing.T) {
	sim, _ := newTestSimulator(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sim.PageDelay(ctx), context.Canceled)
}
