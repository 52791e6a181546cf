// Package archive keeps the dedup ledger: a text file with one downloaded
// post key (shortcode or highlight media id) per line, in the spirit of
// yt-dlp's --download-archive.
package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Ledger records which keys have been downloaded. A Ledger opened with an
// empty path is disabled: it still deduplicates within the process but
// never touches disk.
type Ledger struct {
	path string

	mu   sync.RWMutex
	keys map[string]bool
}

// Open loads the ledger at path. A missing file is an empty ledger.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, keys: make(map[string]bool)}
	if path == "" {
		return l, nil
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if key := strings.TrimSpace(scanner.Text()); key != "" {
			l.keys[key] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	return l, nil
}

// Contains reports whether key was recorded
func (l *Ledger) Contains(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.keys[key]
}

// Add appends key to the file right away so a crash never loses a
// finished download. The key counts as recorded only once the append
// succeeded. Adding a known key is a no-op.
func (l *Ledger) Add(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.keys[key] {
		return nil
	}
	if l.path == "" {
		l.keys[key] = true
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open archive for append: %w", err)
	}
	if _, err := fmt.Fprintln(file, key); err != nil {
		file.Close()
		return fmt.Errorf("failed to append to archive: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to append to archive: %w", err)
	}
	l.keys[key] = true
	return nil
}

// Len returns the number of recorded keys
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}

// Path returns the backing file, "" when disabled
func (l *Ledger) Path() string {
	return l.path
}

// Enabled reports whether the ledger is persisted
func (l *Ledger) Enabled() bool {
	return l.path != ""
}
