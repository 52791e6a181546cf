// Package pagination walks cursor-paged endpoints one item at a time.
package pagination

import (
	"context"
	"errors"
	"time"

	errs "igpull/pkg/errors"
	"igpull/pkg/logger"
	"igpull/pkg/retry"
)

// Page is one page of results
type Page[T any] struct {
	Items   []T
	HasNext bool
	Cursor  string
}

// PageFetcher returns the page of resourceID that starts at cursor. An
// empty cursor asks for the first page.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, resourceID, cursor string) (Page[T], error)
}

// SessionRefresher resets the transport between page retries
type SessionRefresher interface {
	RefreshSession()
}

// Pacer spaces consecutive page requests
type Pacer interface {
	PageDelay(ctx context.Context) error
}

// Options configures an Iterator. Zero values fall back to defaults.
type Options struct {
	// PageRetries is the number of attempts per page
	PageRetries int
	// PageBackoff is the wait before the first retry, growing linearly
	PageBackoff time.Duration
	Pacer       Pacer
	Session     SessionRefresher
	Sleep       retry.Sleeper
	Logger      logger.Logger
}

const (
	DefaultPageRetries = 3
	DefaultPageBackoff = 30 * time.Second
)

// Iterator yields the items of a paged resource until the limit, the last
// page or an unrecoverable page failure.
type Iterator[T any] struct {
	fetcher    PageFetcher[T]
	resourceID string
	limit      int
	opts       Options
	log        logger.Logger

	buf       []T
	pos       int
	item      T
	cursor    string
	pages     int
	count     int
	done      bool
	truncated bool
	err       error
}

// New creates an Iterator. limit <= 0 means no limit.
func New[T any](fetcher PageFetcher[T], resourceID string, limit int, opts Options) *Iterator[T] {
	if opts.PageRetries <= 0 {
		opts.PageRetries = DefaultPageRetries
	}
	if opts.PageBackoff <= 0 {
		opts.PageBackoff = DefaultPageBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}

	return &Iterator[T]{
		fetcher:    fetcher,
		resourceID: resourceID,
		limit:      limit,
		opts:       opts,
		log: logger.OrNop(opts.Logger).WithFields(map[string]interface{}{
			"component": "pagination",
			"resource":  resourceID,
		}),
	}
}

// Next advances to the next item. It returns false when the sequence is
// over; Err and Truncated tell why.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.limit > 0 && it.count >= it.limit {
		return false
	}

	for it.pos >= len(it.buf) {
		if it.done {
			return false
		}
		if !it.fetch(ctx) {
			return false
		}
	}

	it.item = it.buf[it.pos]
	it.pos++
	it.count++
	return true
}

// Item returns the current item
func (it *Iterator[T]) Item() T {
	return it.item
}

// Err returns the terminal error that ended the sequence, if any
func (it *Iterator[T]) Err() error {
	return it.err
}

// Truncated reports whether the sequence ended because a page kept failing
func (it *Iterator[T]) Truncated() bool {
	return it.truncated
}

// Count returns the number of items yielded so far
func (it *Iterator[T]) Count() int {
	return it.count
}

// Pages returns the number of pages fetched so far
func (it *Iterator[T]) Pages() int {
	return it.pages
}

func (it *Iterator[T]) fetch(ctx context.Context) bool {
	if it.pages > 0 && it.opts.Pacer != nil {
		if err := it.opts.Pacer.PageDelay(ctx); err != nil {
			it.fail(err)
			return false
		}
	}

	cursor := it.cursor
	page, err := retry.DoWithResult(ctx, func(ctx context.Context) (Page[T], error) {
		return it.fetcher.FetchPage(ctx, it.resourceID, cursor)
	}, &retry.Config{
		MaxAttempts: it.opts.PageRetries,
		Backoff: &retry.LinearBackoff{
			BaseDelay: it.opts.PageBackoff,
			Increment: it.opts.PageBackoff,
			MaxDelay:  it.opts.PageBackoff * time.Duration(it.opts.PageRetries),
		},
		RetryIf: retryablePageError,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			it.log.WarnWithFields("page fetch failed, retrying", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": it.opts.PageRetries,
				"wait":         delay.String(),
				"error":        err.Error(),
			})
		},
		Sleep:  it.sleepAndRefresh,
		Logger: it.log,
	})
	if err != nil {
		if retryablePageError(err) {
			it.log.ErrorWithFields("page fetch failed, stopping iteration", map[string]interface{}{
				"attempts": it.opts.PageRetries,
				"yielded":  it.count,
				"error":    err.Error(),
			})
			it.truncated = true
			it.done = true
			return false
		}
		it.fail(err)
		return false
	}

	it.pages++
	it.buf = page.Items
	it.pos = 0
	if !page.HasNext || page.Cursor == "" {
		it.done = true
	}
	it.cursor = page.Cursor

	it.log.DebugWithFields("fetched page", map[string]interface{}{
		"page":     it.pages,
		"items":    len(page.Items),
		"has_next": !it.done,
	})
	return true
}

// sleepAndRefresh waits out the backoff, then starts a fresh session for
// the next attempt
func (it *Iterator[T]) sleepAndRefresh(ctx context.Context, d time.Duration) error {
	if err := it.opts.Sleep(ctx, d); err != nil {
		return err
	}
	if it.opts.Session != nil {
		it.opts.Session.RefreshSession()
	}
	return nil
}

func (it *Iterator[T]) fail(err error) {
	it.err = err
	it.done = true
}

// retryablePageError covers throttling, network failures, server side
// failures and malformed payloads. Missing or private resources are final.
func retryablePageError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch errs.TypeOf(err) {
	case errs.ErrorTypeRateLimit, errs.ErrorTypeTransport, errs.ErrorTypeAPI, errs.ErrorTypeParsing:
		return true
	}
	return false
}
