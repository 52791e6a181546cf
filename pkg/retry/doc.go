// Package retry provides backoff strategies and a small retry loop.
//
// The API client computes its transport backoff with ExponentialBackoff,
// the pagination iterator spaces page retries with LinearBackoff, and the
// media downloader wraps each CDN fetch in Do:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return fetch(ctx, url)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ExponentialBackoff{BaseDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2},
//	})
//
// Every wait goes through a Sleeper so callers can substitute a fake clock.
package retry
