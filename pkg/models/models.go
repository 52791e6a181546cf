// Package models holds the Instagram domain types and the JSON shapes of
// the endpoints they are decoded from.
package models

import (
	"fmt"
	"time"
)

// GraphQL typenames
const (
	TypenameImage   = "GraphImage"
	TypenameVideo   = "GraphVideo"
	TypenameSidecar = "GraphSidecar"
)

// REST media_type values
const (
	MediaTypePhoto    = 1
	MediaTypeVideo    = 2
	MediaTypeCarousel = 8
)

// Profile is a resolved Instagram account
type Profile struct {
	UserID        string
	Username      string
	FullName      string
	IsPrivate     bool
	PostCount     int
	Biography     string
	ProfilePicURL string
}

// Ref returns the part of the profile the download pipeline needs
func (p Profile) Ref() ProfileRef {
	return ProfileRef{UserID: p.UserID, Username: p.Username, PostCount: p.PostCount}
}

// ProfileRef identifies a profile to paginate
type ProfileRef struct {
	UserID    string
	Username  string
	PostCount int
}

// MediaItem is one photo or video. Index is the 1-based carousel position,
// 0 for single media posts.
type MediaItem struct {
	URL     string
	IsVideo bool
	Index   int
}

// Extension returns the file extension for the item
func (m MediaItem) Extension() string {
	return extension(m.IsVideo)
}

// Post is a feed post with its media
type Post struct {
	Shortcode    string
	Typename     string
	DisplayURL   string
	VideoURL     string
	IsVideo      bool
	Timestamp    time.Time
	Caption      string
	LikeCount    int
	CommentCount int
	Media        []MediaItem
}

// URL returns the public permalink
func (p Post) URL() string {
	return fmt.Sprintf("https://www.instagram.com/p/%s/", p.Shortcode)
}

// IsCarousel reports whether the post holds several media items
func (p Post) IsCarousel() bool {
	return p.Typename == TypenameSidecar
}

// MediaItems returns everything downloadable in the post: the carousel
// children, or the single photo or video.
func (p Post) MediaItems() []MediaItem {
	if len(p.Media) > 0 {
		return p.Media
	}

	url := p.DisplayURL
	if p.IsVideo {
		url = p.VideoURL
	}
	if url == "" {
		return nil
	}
	return []MediaItem{{URL: url, IsVideo: p.IsVideo}}
}

// PostsPage is one page of a profile's feed
type PostsPage struct {
	Posts       []Post
	HasNextPage bool
	EndCursor   string
}

// Highlight is a highlight reel. Items are fetched separately.
type Highlight struct {
	ID         string
	Title      string
	MediaCount int
	Items      []HighlightItem
}

// Slug is the directory name for the highlight
func (h Highlight) Slug() string {
	return Slugify(h.Title)
}

// HighlightItem is one story inside a highlight reel
type HighlightItem struct {
	MediaID   string
	IsVideo   bool
	URL       string
	Timestamp time.Time
}

// Extension returns the file extension for the item
func (h HighlightItem) Extension() string {
	return extension(h.IsVideo)
}

func extension(isVideo bool) string {
	if isVideo {
		return "mp4"
	}
	return "jpg"
}
