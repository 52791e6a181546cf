package scraper

import (
	"context"
	"path/filepath"

	"igpull/pkg/batch"
	"igpull/pkg/models"
	"igpull/pkg/storage"
)

// DownloadHighlights saves every highlight reel of username into
// <OutputDir>/<username>/highlights/<slug>. Highlight titles that slugify
// to the same name get _2, _3, ... suffixes. Needs cookies.
func (d *Downloader) DownloadHighlights(ctx context.Context, username string) (Stats, error) {
	var stats Stats
	log := d.log.WithField("username", username)

	ref, err := d.resolver.ResolveProfile(ctx, username)
	if err != nil {
		return stats, err
	}

	if err := d.pacer.HighlightTrayDelay(ctx); err != nil {
		return stats, err
	}
	highlights, err := d.api.FetchHighlights(ctx, ref.UserID)
	if err != nil {
		return stats, err
	}
	if len(highlights) == 0 {
		log.Info("no highlights found")
		return stats, nil
	}

	total := 0
	for _, h := range highlights {
		total += h.MediaCount
	}
	d.progress.Start(username+" highlights", total)
	defer d.progress.Finish()

	used := make(map[string]bool, len(highlights))
	for _, h := range highlights {
		slug := models.DedupeSlug(h.Slug(), used)
		dir := filepath.Join(d.opts.OutputDir, username, "highlights", slug)
		if err := storage.EnsureDir(dir); err != nil {
			return stats, err
		}
		log.InfoWithFields("downloading highlight", map[string]interface{}{
			"title":       h.Title,
			"slug":        slug,
			"media_count": h.MediaCount,
		})

		if err := d.pacer.HighlightSwitchDelay(ctx); err != nil {
			return stats, err
		}
		items, err := d.api.FetchHighlightItems(ctx, h.ID)
		if err != nil {
			return stats, err
		}

		if err := d.highlightItems(ctx, username, slug, dir, items, &stats); err != nil {
			return stats, err
		}
	}

	log.InfoWithFields("highlights finished", map[string]interface{}{
		"highlights": len(highlights),
		"downloaded": stats.Downloaded,
		"skipped":    stats.Skipped,
		"failed":     stats.Failed,
	})
	return stats, nil
}

func (d *Downloader) highlightItems(ctx context.Context, username, slug, dir string, items []models.HighlightItem, stats *Stats) error {
	owner := username + "_hl_" + slug

	var queue *batch.Queue
	if d.useBatch {
		queue = batch.New(dir, d.transfer, d.log, batch.WithKeyFunc(highlightKey(username)))
		if queue.HasRecoveryFile(owner) {
			result, err := queue.Resume(ctx, owner)
			if err := d.settle(ctx, queue, owner, result, err, stats); err != nil {
				return err
			}
		}
	}

	for _, item := range items {
		if d.ledger.Contains(item.MediaID) {
			stats.Skipped++
			d.progress.Increment()
			continue
		}

		filename := HighlightFilename(username, item)
		path := filepath.Join(dir, filename)
		if d.opts.SkipExisting && batch.Complete(path) {
			stats.Skipped++
			d.progress.Increment()
			continue
		}

		switch {
		case queue != nil:
			queue.Enqueue(item.URL, filename, item.MediaID)
		default:
			if err := d.fetch(ctx, item.URL, path); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				stats.Failed++
				d.log.WarnWithFields("highlight download failed", map[string]interface{}{
					"username": username,
					"media_id": item.MediaID,
					"error":    err.Error(),
				})
			} else {
				stats.Downloaded++
				d.record(item.MediaID)
			}
		}
		d.progress.Increment()
	}

	if queue == nil || queue.Len() == 0 {
		return nil
	}
	result, err := queue.Flush(ctx, owner)
	return d.settle(ctx, queue, owner, result, err, stats)
}
