// Package behavior paces the scraper like a person browsing a profile:
// pauses between pages, carousel swipes and highlight taps, plus an
// occasional longer rest. It has no say in request legality; that is the
// rate limiter's job.
package behavior

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"igpull/pkg/config"
	"igpull/pkg/logger"
	"igpull/pkg/retry"
)

// Range is an inclusive duration range
type Range struct {
	Min, Max time.Duration
}

// Settings holds the pacing ranges
type Settings struct {
	Page            Range
	Carousel        Range
	HighlightTray   Range
	HighlightSwitch Range

	Rest         Range
	RestEveryMin int
	RestEveryMax int

	// used instead of the ranges when a proxy is active
	ProxyPage     time.Duration
	ProxyCarousel time.Duration
}

// DefaultSettings returns the standard pacing
func DefaultSettings() Settings {
	return Settings{
		Page:            Range{time.Second, 3 * time.Second},
		Carousel:        Range{200 * time.Millisecond, 500 * time.Millisecond},
		HighlightTray:   Range{1500 * time.Millisecond, 4 * time.Second},
		HighlightSwitch: Range{2 * time.Second, 5 * time.Second},
		Rest:            Range{10 * time.Second, 30 * time.Second},
		RestEveryMin:    50,
		RestEveryMax:    80,
		ProxyPage:       100 * time.Millisecond,
		ProxyCarousel:   50 * time.Millisecond,
	}
}

// SettingsFromConfig maps the behavior config section onto the defaults
func SettingsFromConfig(cfg config.BehaviorConfig) Settings {
	s := DefaultSettings()
	s.Page = Range(cfg.Page)
	s.Carousel = Range(cfg.Carousel)
	s.HighlightTray = Range(cfg.HighlightTray)
	s.HighlightSwitch = Range(cfg.HighlightSwitch)
	s.Rest = Range(cfg.Rest)
	s.RestEveryMin = cfg.RestEveryMin
	s.RestEveryMax = cfg.RestEveryMax
	return s
}

// Simulator injects human-like delays
type Simulator struct {
	settings Settings
	hasProxy bool
	log      logger.Logger
	sleep    retry.Sleeper

	mu             sync.Mutex
	rng            *rand.Rand
	postsSinceRest int
	nextRestAt     int
}

// Option customises a Simulator
type Option func(*Simulator)

// WithSleeper replaces retry.Wait
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Simulator) { s.sleep = sleep }
}

// WithRand sets the random source
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// New creates a Simulator. With a proxy every delay collapses to a short
// fixed value and rests are skipped.
func New(settings Settings, hasProxy bool, log logger.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		settings: settings,
		hasProxy: hasProxy,
		log:      logger.OrNop(log).WithField("component", "behavior"),
		sleep:    retry.Wait,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nextRestAt = s.drawThreshold()
	return s
}

// PageDelay pauses between API pages (scrolling)
func (s *Simulator) PageDelay(ctx context.Context) error {
	return s.pause(ctx, s.settings.Page, s.settings.ProxyPage)
}

// CarouselDelay pauses between items of one post (swiping)
func (s *Simulator) CarouselDelay(ctx context.Context) error {
	return s.pause(ctx, s.settings.Carousel, s.settings.ProxyCarousel)
}

// HighlightTrayDelay pauses before the highlights tray is fetched
func (s *Simulator) HighlightTrayDelay(ctx context.Context) error {
	return s.pause(ctx, s.settings.HighlightTray, s.settings.ProxyPage)
}

// HighlightSwitchDelay pauses between two highlights
func (s *Simulator) HighlightSwitchDelay(ctx context.Context) error {
	return s.pause(ctx, s.settings.HighlightSwitch, s.settings.ProxyPage)
}

// RecordPostProcessed counts a finished post and rests once the current
// threshold is reached. The threshold is redrawn after every rest.
func (s *Simulator) RecordPostProcessed(ctx context.Context) error {
	if s.hasProxy {
		return nil
	}

	s.mu.Lock()
	s.postsSinceRest++
	if s.postsSinceRest < s.nextRestAt {
		s.mu.Unlock()
		return nil
	}
	s.postsSinceRest = 0
	s.nextRestAt = s.drawThreshold()
	rest := s.uniform(s.settings.Rest)
	s.mu.Unlock()

	s.log.InfoWithFields("pausing", map[string]interface{}{
		"duration": rest.Round(time.Second).String(),
	})
	return s.sleep(ctx, rest)
}

func (s *Simulator) pause(ctx context.Context, r Range, proxyDelay time.Duration) error {
	if s.hasProxy {
		return s.sleep(ctx, proxyDelay)
	}

	s.mu.Lock()
	d := s.uniform(r)
	s.mu.Unlock()
	return s.sleep(ctx, d)
}

// uniform draws from r. Caller holds mu.
func (s *Simulator) uniform(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(s.rng.Int64N(int64(r.Max-r.Min)+1))
}

func (s *Simulator) drawThreshold() int {
	lo, hi := s.settings.RestEveryMin, s.settings.RestEveryMax
	if lo <= 0 {
		lo = 1
	}
	if hi <= lo {
		return lo
	}
	return lo + s.rng.IntN(hi-lo+1)
}
