package scraper

import (
	"context"

	"igpull/pkg/models"
	"igpull/pkg/pagination"
)

// API is the part of the Instagram client the downloader drives
type API interface {
	Posts(userID string, limit int, opts pagination.Options) *pagination.Iterator[models.Post]
	FetchHighlights(ctx context.Context, userID string) ([]models.Highlight, error)
	FetchHighlightItems(ctx context.Context, highlightID string) ([]models.HighlightItem, error)
}

// MediaFetcher downloads one CDN file to path
type MediaFetcher interface {
	Download(ctx context.Context, url, path string) (int64, error)
}

// Pacer spaces requests the way a person browsing the app would
type Pacer interface {
	PageDelay(ctx context.Context) error
	CarouselDelay(ctx context.Context) error
	HighlightTrayDelay(ctx context.Context) error
	HighlightSwitchDelay(ctx context.Context) error
	RecordPostProcessed(ctx context.Context) error
}

// Progress receives per-post (or per-highlight-item) progress
type Progress interface {
	Start(label string, total int)
	Increment()
	Finish()
}

// availability is implemented by transfers that can tell up front
// whether they will run
type availability interface {
	Available() bool
}

type nopPacer struct{}

func (nopPacer) PageDelay(ctx context.Context) error            { return ctx.Err() }
func (nopPacer) CarouselDelay(ctx context.Context) error        { return ctx.Err() }
func (nopPacer) HighlightTrayDelay(ctx context.Context) error   { return ctx.Err() }
func (nopPacer) HighlightSwitchDelay(ctx context.Context) error { return ctx.Err() }
func (nopPacer) RecordPostProcessed(ctx context.Context) error  { return ctx.Err() }

type nopProgress struct{}

func (nopProgress) Start(string, int) {}
func (nopProgress) Increment()        {}
func (nopProgress) Finish()           {}
