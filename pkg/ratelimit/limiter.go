package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"igpull/pkg/config"
	"igpull/pkg/logger"
	"igpull/pkg/retry"
)

// Settings configures a Limiter
type Settings struct {
	Window       time.Duration
	MaxRequests  int
	SafetyMargin time.Duration

	// Lambda is the rate of the exponential jitter distribution
	Lambda   float64
	MinDelay time.Duration
	MaxDelay time.Duration

	ProxyMinDelay time.Duration
	ProxyMaxDelay time.Duration
}

// DefaultSettings returns the limits the public endpoints tolerate
func DefaultSettings() Settings {
	return Settings{
		Window:        660 * time.Second,
		MaxRequests:   75,
		SafetyMargin:  6 * time.Second,
		Lambda:        0.3,
		MinDelay:      500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		ProxyMinDelay: 100 * time.Millisecond,
		ProxyMaxDelay: 300 * time.Millisecond,
	}
}

// SettingsFromConfig maps the rate_limit config section
func SettingsFromConfig(cfg config.RateLimitConfig) Settings {
	return Settings{
		Window:        cfg.Window,
		MaxRequests:   cfg.MaxRequests,
		SafetyMargin:  cfg.SafetyMargin,
		Lambda:        cfg.Lambda,
		MinDelay:      cfg.MinDelay,
		MaxDelay:      cfg.MaxDelay,
		ProxyMinDelay: cfg.ProxyMinDelay,
		ProxyMaxDelay: cfg.ProxyMaxDelay,
	}
}

// Stats is a snapshot of the sliding window
type Stats struct {
	InWindow    int
	MaxRequests int
	Window      time.Duration
}

// Option customises a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleeper replaces retry.Wait
func WithSleeper(sleep retry.Sleeper) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithRand sets the jitter source
func WithRand(r *rand.Rand) Option {
	return func(l *Limiter) { l.rng = r }
}

// Limiter is a sliding window request throttle with randomized spacing.
// Without a proxy at most MaxRequests requests are issued per Window; with
// a proxy the window check is skipped and only a short jitter remains.
type Limiter struct {
	settings Settings
	hasProxy bool
	log      logger.Logger
	now      func() time.Time
	sleep    retry.Sleeper

	mu         sync.Mutex
	rng        *rand.Rand
	timestamps []time.Time
}

// New creates a Limiter
func New(settings Settings, hasProxy bool, log logger.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		settings:   settings,
		hasProxy:   hasProxy,
		log:        logger.OrNop(log).WithField("component", "ratelimit"),
		now:        time.Now,
		sleep:      retry.Wait,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		timestamps: make([]time.Time, 0, settings.MaxRequests),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitIfNeeded blocks until the next request may be sent. It only fails
// when ctx is cancelled.
func (l *Limiter) WaitIfNeeded(ctx context.Context) error {
	if !l.hasProxy {
		if wait := l.windowWait(); wait > 0 {
			l.log.WarnWithFields("rate limit approaching, waiting", map[string]interface{}{
				"wait": wait.Round(100 * time.Millisecond).String(),
			})
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	return l.sleep(ctx, l.jitter())
}

// RecordRequest registers a request sent now
func (l *Limiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.timestamps = append(l.timestamps, now)
	l.evict(now)

	// only the newest MaxRequests entries can ever decide a wait
	if extra := len(l.timestamps) - l.settings.MaxRequests; extra > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[extra:]...)
	}
}

// Stats returns the current window occupancy
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())
	return Stats{
		InWindow:    len(l.timestamps),
		MaxRequests: l.settings.MaxRequests,
		Window:      l.settings.Window,
	}
}

func (l *Limiter) windowWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	if len(l.timestamps) < l.settings.MaxRequests {
		return 0
	}

	oldest := l.timestamps[0]
	return oldest.Add(l.settings.Window).Add(l.settings.SafetyMargin).Sub(now)
}

func (l *Limiter) jitter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hasProxy {
		span := l.settings.ProxyMaxDelay - l.settings.ProxyMinDelay
		if span <= 0 {
			return l.settings.ProxyMinDelay
		}
		return l.settings.ProxyMinDelay + time.Duration(l.rng.Int64N(int64(span)+1))
	}

	lambda := l.settings.Lambda
	if lambda <= 0 {
		lambda = DefaultSettings().Lambda
	}
	delay := time.Duration(l.rng.ExpFloat64() / lambda * float64(time.Second))
	return min(max(delay, l.settings.MinDelay), l.settings.MaxDelay)
}

// evict drops timestamps that left the window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.settings.Window)

	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}
