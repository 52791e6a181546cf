// Package metadata writes a JSON sidecar next to the media of each post.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"igpull/pkg/models"
	"igpull/pkg/storage"
)

// PostMetadata is the sidecar of one post
type PostMetadata struct {
	Shortcode string `json:"shortcode"`
	URL       string `json:"url"`
	Typename  string `json:"typename"`
	Owner     string `json:"owner"`
	IsVideo   bool   `json:"is_video"`

	TakenAt      time.Time `json:"taken_at"`
	DownloadedAt time.Time `json:"downloaded_at"`

	Caption       string `json:"caption,omitempty"`
	LikesCount    int    `json:"likes_count"`
	CommentsCount int    `json:"comments_count"`

	// Files are the media file names, relative to the sidecar
	Files []string `json:"files"`
}

// FromPost builds the sidecar of post, whose media was saved as files
func FromPost(username string, post models.Post, files []string) *PostMetadata {
	return &PostMetadata{
		Shortcode:     post.Shortcode,
		URL:           post.URL(),
		Typename:      post.Typename,
		Owner:         username,
		IsVideo:       post.IsVideo,
		TakenAt:       post.Timestamp,
		DownloadedAt:  time.Now(),
		Caption:       post.Caption,
		LikesCount:    post.LikeCount,
		CommentsCount: post.CommentCount,
		Files:         files,
	}
}

// Path returns <dir>/<username>_<shortcode>.json
func Path(dir, username, shortcode string) string {
	return filepath.Join(dir, username+"_"+shortcode+".json")
}

// Save writes the sidecar to path
func (m *PostMetadata) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := storage.WriteBytesAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads a sidecar
func Load(path string) (*PostMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta PostMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// FormattedCaption returns the caption on one line, cut to maxLength runes
func (m *PostMetadata) FormattedCaption(maxLength int) string {
	caption := strings.Join(strings.Fields(m.Caption), " ")
	runes := []rune(caption)
	if maxLength > 3 && len(runes) > maxLength {
		return string(runes[:maxLength-3]) + "..."
	}
	return caption
}

// CleanOrphaned removes the sidecars in dir none of whose media files
// exist any more and returns how many were removed. JSON files that are
// not sidecars are left alone.
func CleanOrphaned(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range matches {
		meta, err := Load(path)
		if err != nil || meta.Shortcode == "" || len(meta.Files) == 0 {
			continue
		}

		orphaned := true
		for _, name := range meta.Files {
			if storage.Exists(filepath.Join(dir, name)) {
				orphaned = false
				break
			}
		}
		if !orphaned {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove orphaned metadata %s: %w", path, err)
		}
		removed++
	}
	return removed, nil
}
