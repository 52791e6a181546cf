package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"igpull/pkg/archive"
	"igpull/pkg/batch"
	"igpull/pkg/instagram"
	"igpull/pkg/logger"
	"igpull/pkg/metadata"
	"igpull/pkg/models"
	"igpull/pkg/pagination"
	"igpull/pkg/storage"
)

// Options controls where and how media is downloaded
type Options struct {
	// OutputDir holds one directory per profile
	OutputDir string
	// SkipExisting leaves files already on disk alone
	SkipExisting bool
	// UseBatch hands media to the bulk transfer instead of fetching it
	// one file at a time
	UseBatch bool
	// BatchSize is the number of posts per bulk transfer run
	BatchSize int
	// Quiet disables progress output
	Quiet bool
	// SaveMetadata writes a JSON sidecar next to the media of each post
	SaveMetadata bool
	// Pagination tunes page retries; the pacer is filled in
	Pagination pagination.Options
}

// Dependencies are the collaborators of a Downloader. API, Resolver and
// Media are required.
type Dependencies struct {
	API      API
	Resolver instagram.ProfileResolver
	Media    MediaFetcher
	Pacer    Pacer
	Transfer batch.Transfer
	Ledger   *archive.Ledger
	Progress Progress
	Logger   logger.Logger
}

// Stats summarises one profile or highlight run
type Stats struct {
	// Downloaded counts posts (or highlight items) whose media landed
	Downloaded int
	// Skipped counts posts already archived or already on disk
	Skipped int
	// Failed counts media files that could not be downloaded
	Failed int
	// Truncated is set when pagination gave up on a page
	Truncated bool
}

// Downloader walks profiles and saves their media. It runs one profile at
// a time and is not safe for concurrent use.
type Downloader struct {
	opts     Options
	api      API
	resolver instagram.ProfileResolver
	media    MediaFetcher
	pacer    Pacer
	transfer batch.Transfer
	ledger   *archive.Ledger
	progress Progress
	log      logger.Logger

	useBatch bool
}

// New creates a Downloader
func New(opts Options, deps Dependencies) (*Downloader, error) {
	if deps.API == nil || deps.Resolver == nil || deps.Media == nil {
		return nil, fmt.Errorf("downloader needs an API, a profile resolver and a media fetcher")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = batch.DefaultBatchSize
	}

	d := &Downloader{
		opts:     opts,
		api:      deps.API,
		resolver: deps.Resolver,
		media:    deps.Media,
		pacer:    deps.Pacer,
		transfer: deps.Transfer,
		ledger:   deps.Ledger,
		progress: deps.Progress,
		log:      logger.OrNop(deps.Logger).WithField("component", "downloader"),
	}
	if d.pacer == nil {
		d.pacer = nopPacer{}
	}
	if d.progress == nil || opts.Quiet {
		d.progress = nopProgress{}
	}
	if d.ledger == nil {
		d.ledger, _ = archive.Open("")
	}

	d.useBatch = opts.UseBatch && d.transfer != nil
	if a, ok := d.transfer.(availability); ok && d.useBatch && !a.Available() {
		d.log.Warn("bulk transfer tool not found, downloading files one by one")
		d.useBatch = false
	}
	if d.useBatch {
		d.log.Debug("using bulk transfer for downloads")
	}
	return d, nil
}

// UsesBatch reports whether media currently goes through the bulk transfer
func (d *Downloader) UsesBatch() bool {
	return d.useBatch
}

// DownloadProfile saves up to limit posts of username (limit <= 0 means
// all) into <OutputDir>/<username>. Posts already in the ledger are
// skipped. A pending recovery file from an earlier run is finished first.
func (d *Downloader) DownloadProfile(ctx context.Context, username string, limit int) (Stats, error) {
	var stats Stats
	log := d.log.WithField("username", username)

	ref, err := d.resolver.ResolveProfile(ctx, username)
	if err != nil {
		return stats, err
	}
	log.InfoWithFields("profile resolved", map[string]interface{}{
		"user_id":    ref.UserID,
		"post_count": ref.PostCount,
	})

	dir := filepath.Join(d.opts.OutputDir, username)
	if err := storage.EnsureDir(dir); err != nil {
		return stats, err
	}

	total := ref.PostCount
	if limit > 0 && (total == 0 || limit < total) {
		total = limit
	}
	d.progress.Start(username, total)
	defer d.progress.Finish()

	pageOpts := d.opts.Pagination
	pageOpts.Pacer = d.pacer
	it := d.api.Posts(ref.UserID, limit, pageOpts)

	if d.useBatch {
		err = d.profileBatch(ctx, username, dir, it, &stats)
	} else {
		err = d.profileDirect(ctx, username, dir, it, &stats)
	}
	stats.Truncated = it.Truncated()

	log.InfoWithFields("profile finished", map[string]interface{}{
		"downloaded": stats.Downloaded,
		"skipped":    stats.Skipped,
		"failed":     stats.Failed,
		"truncated":  stats.Truncated,
	})
	return stats, err
}

// DownloadProfiles downloads each profile in turn. A failing profile does
// not stop the others; the returned error joins every failure.
func (d *Downloader) DownloadProfiles(ctx context.Context, usernames []string, limit int) (map[string]Stats, error) {
	results := make(map[string]Stats, len(usernames))
	var failures []error

	for _, username := range usernames {
		stats, err := d.DownloadProfile(ctx, username, limit)
		results[username] = stats
		if err == nil {
			continue
		}

		d.log.ErrorWithFields("profile download failed", map[string]interface{}{
			"username": username,
			"error":    err.Error(),
		})
		failures = append(failures, fmt.Errorf("%s: %w", username, err))
		if ctx.Err() != nil {
			break
		}
	}

	return results, errors.Join(failures...)
}

func (d *Downloader) profileDirect(ctx context.Context, username, dir string, it *pagination.Iterator[models.Post], stats *Stats) error {
	for it.Next(ctx) {
		post := it.Item()
		if d.ledger.Contains(post.Shortcode) {
			stats.Skipped++
			d.progress.Increment()
			continue
		}

		downloaded, failed, err := d.downloadPost(ctx, username, dir, post)
		if err != nil {
			return err
		}
		d.writeMetadata(username, dir, post)
		stats.Failed += failed
		switch {
		case downloaded > 0:
			stats.Downloaded++
			// a partly failed post stays out of the ledger so the next run retries it
			if failed == 0 {
				d.record(post.Shortcode)
			}
		case failed == 0:
			stats.Skipped++
		}

		d.progress.Increment()
		if err := d.pacer.RecordPostProcessed(ctx); err != nil {
			return err
		}
	}
	return it.Err()
}

// downloadPost fetches the media of one post, pausing between carousel
// items. Only cancellation is returned as an error.
func (d *Downloader) downloadPost(ctx context.Context, username, dir string, post models.Post) (downloaded, failed int, err error) {
	for i, item := range post.MediaItems() {
		if i > 0 {
			if err := d.pacer.CarouselDelay(ctx); err != nil {
				return downloaded, failed, err
			}
		}

		path := filepath.Join(dir, PostFilename(username, post, item))
		if d.opts.SkipExisting && batch.Complete(path) {
			continue
		}

		if err := d.fetch(ctx, item.URL, path); err != nil {
			if ctx.Err() != nil {
				return downloaded, failed, ctx.Err()
			}
			failed++
			d.log.WarnWithFields("media download failed", map[string]interface{}{
				"username":  username,
				"shortcode": post.Shortcode,
				"error":     err.Error(),
			})
			continue
		}
		downloaded++
	}
	return downloaded, failed, nil
}

func (d *Downloader) profileBatch(ctx context.Context, username, dir string, it *pagination.Iterator[models.Post], stats *Stats) error {
	queue := batch.New(dir, d.transfer, d.log, batch.WithKeyFunc(postKey(username)))

	if queue.HasRecoveryFile(username) {
		result, err := queue.Resume(ctx, username)
		if err := d.settle(ctx, queue, username, result, err, stats); err != nil {
			return err
		}
	}

	var loopErr error
	postsInBatch := 0
	for it.Next(ctx) {
		post := it.Item()
		if d.ledger.Contains(post.Shortcode) {
			stats.Skipped++
			d.progress.Increment()
			continue
		}

		added := 0
		for _, item := range post.MediaItems() {
			filename := PostFilename(username, post, item)
			if d.opts.SkipExisting && batch.Complete(filepath.Join(dir, filename)) {
				continue
			}
			queue.Enqueue(item.URL, filename, post.Shortcode)
			added++
		}
		d.writeMetadata(username, dir, post)
		if added > 0 {
			postsInBatch++
		} else {
			stats.Skipped++
		}

		d.progress.Increment()
		if loopErr = d.pacer.RecordPostProcessed(ctx); loopErr != nil {
			break
		}

		if postsInBatch >= d.opts.BatchSize {
			result, err := queue.Flush(ctx, username)
			if loopErr = d.settle(ctx, queue, username, result, err, stats); loopErr != nil {
				break
			}
			postsInBatch = 0
		}
	}

	// whatever is queued goes to disk as a recovery file even when the
	// walk stopped early
	var flushErr error
	if queue.Len() > 0 {
		result, err := queue.Flush(ctx, username)
		flushErr = d.settle(ctx, queue, username, result, err, stats)
	}

	if loopErr != nil {
		return loopErr
	}
	if err := it.Err(); err != nil {
		return err
	}
	return flushErr
}

// settle books a flush into stats and the ledger. When the bulk transfer
// turns out to be missing, the batch is downloaded directly and later
// batches skip the transfer.
func (d *Downloader) settle(ctx context.Context, queue *batch.Queue, owner string, result batch.Result, err error, stats *Stats) error {
	if errors.Is(err, batch.ErrTransferUnavailable) {
		d.log.Warn("bulk transfer unavailable, downloading batch directly")
		d.useBatch = false
		result, err = d.drainDirect(ctx, queue, owner)
	}

	for _, key := range result.Succeeded {
		// a resumed batch can hold keys an earlier flush already booked
		if !d.ledger.Contains(key) {
			stats.Downloaded++
		}
		d.record(key)
	}
	stats.Failed += result.Failed
	return err
}

// drainDirect downloads the recovery file of owner one file at a time
func (d *Downloader) drainDirect(ctx context.Context, queue *batch.Queue, owner string) (batch.Result, error) {
	items, err := queue.Pending(owner)
	if err != nil || len(items) == 0 {
		return batch.Result{}, err
	}

	for _, item := range items {
		path := filepath.Join(queue.Dir(), item.Filename)
		if batch.Complete(path) {
			continue
		}
		if err := d.fetch(ctx, item.URL, path); err != nil {
			if ctx.Err() != nil {
				return queue.Verify(items), ctx.Err()
			}
			d.log.WarnWithFields("media download failed", map[string]interface{}{
				"owner": owner,
				"key":   item.Key,
				"error": err.Error(),
			})
		}
	}

	result := queue.Verify(items)
	if result.Failed == 0 {
		return result, queue.Discard(owner)
	}
	result.RecoveryFile = queue.RecoveryPath(owner)
	return result, nil
}

// fetch downloads one file directly, dropping the control file of an
// unfinished bulk transfer of the same path
func (d *Downloader) fetch(ctx context.Context, url, path string) error {
	if _, err := d.media.Download(ctx, url, path); err != nil {
		return err
	}
	if err := os.Remove(path + batch.ControlSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.WarnWithFields("failed to remove transfer control file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	return nil
}

// writeMetadata saves the sidecar of post unless one exists
func (d *Downloader) writeMetadata(username, dir string, post models.Post) {
	if !d.opts.SaveMetadata {
		return
	}
	path := metadata.Path(dir, username, post.Shortcode)
	if storage.Exists(path) {
		return
	}

	items := post.MediaItems()
	files := make([]string, 0, len(items))
	for _, item := range items {
		files = append(files, PostFilename(username, post, item))
	}
	if err := metadata.FromPost(username, post, files).Save(path); err != nil {
		d.log.WarnWithFields("failed to write metadata", map[string]interface{}{
			"shortcode": post.Shortcode,
			"error":     err.Error(),
		})
	}
}

func (d *Downloader) record(key string) {
	if err := d.ledger.Add(key); err != nil {
		d.log.WarnWithFields("failed to record download in archive", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
