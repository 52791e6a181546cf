package instagram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"igpull/pkg/config"
	errs "igpull/pkg/errors"
	"igpull/pkg/logger"
	"igpull/pkg/retry"
	"igpull/pkg/storage"
)

// MediaOptions configures a MediaDownloader
type MediaOptions struct {
	Timeout           time.Duration
	Attempts          int
	RequestsPerSecond float64
	UserAgent         string
	Transport         http.RoundTripper
	Sleep             retry.Sleeper
}

// MediaOptionsFromConfig maps the download config section
func MediaOptionsFromConfig(cfg config.DownloadConfig, userAgent string) MediaOptions {
	return MediaOptions{
		Timeout:           cfg.Timeout,
		Attempts:          cfg.RetryAttempts,
		RequestsPerSecond: cfg.RequestsPerSecond,
		UserAgent:         userAgent,
	}
}

// MediaDownloader fetches photos and videos from the CDN. CDN requests
// carry only a User-Agent and bypass the API rate limiter.
type MediaDownloader struct {
	opts    MediaOptions
	client  *http.Client
	limiter *rate.Limiter
	backoff retry.Backoff
	logger  logger.Logger
}

// NewMediaDownloader creates a MediaDownloader
func NewMediaDownloader(opts MediaOptions, log logger.Logger) *MediaDownloader {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 8
	}
	if opts.UserAgent == "" {
		opts.UserAgent = UserAgent
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &MediaDownloader{
		opts:    opts,
		client:  &http.Client{Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		backoff: &retry.ExponentialBackoff{
			BaseDelay:  1 * time.Second,
			MaxDelay:   30 * time.Second,
			Multiplier: 2,
		},
		logger: logger.OrNop(log).WithField("component", "media"),
	}
}

// Download saves the media at url to path and returns the number of bytes
// written. A failed attempt never leaves a partial file behind.
func (d *MediaDownloader) Download(ctx context.Context, url, path string) (int64, error) {
	var written int64
	var lastErr error

	err := retry.Do(ctx, func(ctx context.Context) error {
		n, err := d.fetch(ctx, url, path)
		if err != nil {
			lastErr = err
			return err
		}
		written = n
		return nil
	}, &retry.Config{
		MaxAttempts: d.opts.Attempts,
		Backoff:     d.backoff,
		// attempt timeouts are retried; only the caller's ctx ends the loop
		RetryIf: func(error) bool { return ctx.Err() == nil },
		Sleep:   d.opts.Sleep,
		Logger:  d.logger,
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if lastErr == nil {
			lastErr = err
		}
		d.logger.WarnWithFields("media download failed", map[string]interface{}{
			"url":   url,
			"path":  path,
			"error": lastErr.Error(),
		})
		return 0, errs.DownloadFailed(url, lastErr)
	}

	d.logger.DebugWithFields("media downloaded", map[string]interface{}{
		"path":  path,
		"bytes": written,
	})
	return written, nil
}

func (d *MediaDownloader) fetch(ctx context.Context, url, path string) (int64, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return storage.WriteFileAtomic(path, resp.Body)
}
