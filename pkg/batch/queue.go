// Package batch hands media to an external bulk downloader in bounded
// batches and keeps a recovery file for every batch in flight.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"igpull/pkg/logger"
	"igpull/pkg/storage"
)

// DefaultBatchSize is the number of posts queued before a flush. CDN URLs
// expire, so batches are kept small.
const DefaultBatchSize = 50

// ControlSuffix names the file aria2c keeps next to a destination it has
// not finished writing
const ControlSuffix = ".aria2"

// ErrTransferUnavailable is returned by a Transfer whose binary is missing
var ErrTransferUnavailable = errors.New("bulk transfer tool not available")

// Complete reports whether path exists and no transfer is still writing it
func Complete(path string) bool {
	return storage.Exists(path) && !storage.Exists(path+ControlSuffix)
}

// Transfer downloads every block of inputFile into dir. Its return value
// is advisory; the queue checks the destination files itself.
type Transfer interface {
	Run(ctx context.Context, inputFile, dir string) error
}

// Item is one file to download
type Item struct {
	URL      string
	Filename string
	Key      string
}

// Result reports a flush
type Result struct {
	// Succeeded holds the keys whose files are all on disk, in queue order
	Succeeded []string
	// Failed is the number of files missing after the transfer
	Failed int
	// RecoveryFile is the kept recovery file, empty when it was removed
	RecoveryFile string
}

// KeyFunc derives a dedup key from a destination filename
type KeyFunc func(filename string) string

// DefaultKey takes the part of the filename before the first "." and then
// before the first "_"
func DefaultKey(filename string) string {
	key, _, _ := strings.Cut(filename, ".")
	key, _, _ = strings.Cut(key, "_")
	return key
}

// Option customises a Queue
type Option func(*Queue)

// WithKeyFunc sets how Resume recovers keys from filenames
func WithKeyFunc(fn KeyFunc) Option {
	return func(q *Queue) { q.keyFunc = fn }
}

// Queue collects items for one destination directory
type Queue struct {
	dir      string
	transfer Transfer
	keyFunc  KeyFunc
	log      logger.Logger

	mu    sync.Mutex
	items []Item
}

// New creates a Queue that downloads into dir
func New(dir string, transfer Transfer, log logger.Logger, opts ...Option) *Queue {
	q := &Queue{
		dir:      dir,
		transfer: transfer,
		keyFunc:  DefaultKey,
		log:      logger.OrNop(log).WithFields(map[string]interface{}{"component": "batch", "dir": dir}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a file to the pending batch
func (q *Queue) Enqueue(url, filename, key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, Item{URL: url, Filename: filename, Key: key})
}

// Len returns the number of pending files
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Keys returns the distinct keys of the pending files, in queue order
func (q *Queue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uniqueKeys(q.items)
}

// Dir returns the destination directory
func (q *Queue) Dir() string {
	return q.dir
}

// RecoveryPath is the recovery file of owner: <dir>/.<owner>.aria2.txt
func (q *Queue) RecoveryPath(owner string) string {
	return filepath.Join(q.dir, "."+owner+".aria2.txt")
}

// HasRecoveryFile reports whether an unfinished batch of owner is on disk
func (q *Queue) HasRecoveryFile(owner string) bool {
	return storage.Exists(q.RecoveryPath(owner))
}

// Flush downloads the pending batch. The queue is empty afterwards whatever
// the outcome. A missing transfer tool is reported as every file failed
// together with ErrTransferUnavailable.
func (q *Queue) Flush(ctx context.Context, owner string) (Result, error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	if len(items) == 0 {
		return Result{}, nil
	}

	q.log.InfoWithFields("downloading batch", map[string]interface{}{
		"owner": owner,
		"files": len(items),
	})
	return q.run(ctx, owner, items)
}

// Resume re-runs the batch left behind by an interrupted flush of owner.
// It is a no-op when there is no recovery file.
func (q *Queue) Resume(ctx context.Context, owner string) (Result, error) {
	items, err := q.Pending(owner)
	if err != nil || len(items) == 0 {
		return Result{}, err
	}

	q.log.InfoWithFields("found incomplete download, resuming", map[string]interface{}{
		"owner": owner,
		"files": len(items),
	})
	return q.run(ctx, owner, items)
}

// Pending reads the recovery file of owner back into items. Blocks
// without a key line are keyed with the queue's KeyFunc. A recovery file
// without a single usable block is removed.
func (q *Queue) Pending(owner string) ([]Item, error) {
	path := q.RecoveryPath(owner)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open recovery file: %w", err)
	}
	blocks, malformed, err := ParseRecoveryFile(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read recovery file: %w", err)
	}

	if len(malformed) > 0 {
		q.log.WarnWithFields("dropped malformed recovery blocks", map[string]interface{}{
			"owner":     owner,
			"malformed": len(malformed),
			"first":     malformed[0].Error(),
		})
	}

	items := make([]Item, 0, len(blocks))
	for _, b := range blocks {
		if b.Key == "" {
			b.Key = q.keyFunc(b.Filename)
		}
		items = append(items, b)
	}

	if len(items) == 0 {
		_ = os.Remove(path)
	}
	return items, nil
}

// Discard removes the recovery file of owner
func (q *Queue) Discard(owner string) error {
	err := os.Remove(q.RecoveryPath(owner))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove recovery file: %w", err)
	}
	return nil
}

func (q *Queue) run(ctx context.Context, owner string, items []Item) (Result, error) {
	path := q.RecoveryPath(owner)

	if err := storage.EnsureDir(q.dir); err != nil {
		return Result{Failed: len(items)}, err
	}
	if err := storage.WriteBytesAtomic(path, FormatRecoveryFile(items)); err != nil {
		return Result{Failed: len(items)}, fmt.Errorf("failed to write recovery file: %w", err)
	}

	transferErr := q.transfer.Run(ctx, path, q.dir)
	if errors.Is(transferErr, ErrTransferUnavailable) {
		q.log.ErrorWithFields("bulk transfer unavailable", map[string]interface{}{
			"owner":         owner,
			"recovery_file": path,
		})
		return Result{Failed: len(items), RecoveryFile: path}, transferErr
	}
	if transferErr != nil {
		q.log.WarnWithFields("bulk transfer reported an error, checking files", map[string]interface{}{
			"owner": owner,
			"error": transferErr.Error(),
		})
	}

	result := q.Verify(items)
	interrupted := ctx.Err() != nil

	if result.Failed == 0 && !interrupted {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			q.log.WarnWithFields("failed to remove recovery file", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		return result, nil
	}

	result.RecoveryFile = path
	if interrupted {
		q.log.WarnWithFields("batch interrupted, recovery file kept", map[string]interface{}{
			"owner":         owner,
			"failed":        result.Failed,
			"recovery_file": path,
		})
		return result, ctx.Err()
	}
	q.log.WarnWithFields("downloads failed, recovery file kept", map[string]interface{}{
		"owner":         owner,
		"failed":        result.Failed,
		"recovery_file": path,
	})
	return result, nil
}

// Verify checks every destination file in the queue directory. A key
// succeeds when all of its files are Complete.
func (q *Queue) Verify(items []Item) Result {
	missing := make(map[string]bool)
	failed := 0
	for _, item := range items {
		if !Complete(filepath.Join(q.dir, item.Filename)) {
			failed++
			missing[item.Key] = true
		}
	}

	var succeeded []string
	for _, key := range uniqueKeys(items) {
		if !missing[key] {
			succeeded = append(succeeded, key)
		}
	}
	return Result{Succeeded: succeeded, Failed: failed}
}

func uniqueKeys(items []Item) []string {
	seen := make(map[string]bool, len(items))
	keys := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item.Key] {
			continue
		}
		seen[item.Key] = true
		keys = append(keys, item.Key)
	}
	return keys
}
