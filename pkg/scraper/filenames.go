package scraper

import (
	"fmt"
	"path/filepath"
	"strings"

	"igpull/pkg/batch"
	"igpull/pkg/models"
)

// PostFilename names a post's media file: {username}_{shortcode}.{ext},
// or {username}_{shortcode}_{index}.{ext} for carousel items
func PostFilename(username string, post models.Post, item models.MediaItem) string {
	if item.Index > 0 {
		return fmt.Sprintf("%s_%s_%d.%s", username, post.Shortcode, item.Index, item.Extension())
	}
	return fmt.Sprintf("%s_%s.%s", username, post.Shortcode, item.Extension())
}

// HighlightFilename names a highlight item: {username}_{media_id}.{ext}
func HighlightFilename(username string, item models.HighlightItem) string {
	return fmt.Sprintf("%s_%s.%s", username, item.MediaID, item.Extension())
}

// postKey recovers the shortcode from a PostFilename for recovery files
// written without key lines. A shortcode that itself ends in _<digits> is
// indistinguishable from a carousel index there.
func postKey(username string) batch.KeyFunc {
	return func(filename string) string {
		key := trimName(username, filename)
		if i := strings.LastIndexByte(key, '_'); i > 0 && isDigits(key[i+1:]) {
			key = key[:i]
		}
		return key
	}
}

// highlightKey recovers the media id from a HighlightFilename
func highlightKey(username string) batch.KeyFunc {
	return func(filename string) string {
		return trimName(username, filename)
	}
}

func trimName(username, filename string) string {
	name := strings.TrimPrefix(filename, username+"_")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
