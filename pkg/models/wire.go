package models

import (
	"encoding/json"
	"strings"
	"time"
)

// WebProfileResponse is the body of /api/v1/users/web_profile_info/
type WebProfileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Data            Data   `json:"data"`
	Status          string `json:"status"`
}

// GraphQLResponse is the body of /graphql/query for the posts doc
type GraphQLResponse struct {
	Data   Data   `json:"data"`
	Status string `json:"status"`
}

type Data struct {
	User *User `json:"user"`
}

type User struct {
	ID                       string                   `json:"id"`
	Username                 string                   `json:"username"`
	FullName                 string                   `json:"full_name"`
	IsPrivate                bool                     `json:"is_private"`
	Biography                string                   `json:"biography"`
	ProfilePicURL            string                   `json:"profile_pic_url"`
	ProfilePicURLHD          string                   `json:"profile_pic_url_hd"`
	EdgeOwnerToTimelineMedia EdgeOwnerToTimelineMedia `json:"edge_owner_to_timeline_media"`
}

// Profile converts the user object
func (u User) Profile() Profile {
	pic := u.ProfilePicURLHD
	if pic == "" {
		pic = u.ProfilePicURL
	}
	return Profile{
		UserID:        u.ID,
		Username:      u.Username,
		FullName:      u.FullName,
		IsPrivate:     u.IsPrivate,
		PostCount:     u.EdgeOwnerToTimelineMedia.Count,
		Biography:     u.Biography,
		ProfilePicURL: pic,
	}
}

type EdgeOwnerToTimelineMedia struct {
	Count    int      `json:"count"`
	PageInfo PageInfo `json:"page_info"`
	Edges    []Edge   `json:"edges"`
}

// PostsPage converts a GraphQL timeline connection
func (m EdgeOwnerToTimelineMedia) PostsPage() PostsPage {
	posts := make([]Post, 0, len(m.Edges))
	for _, edge := range m.Edges {
		posts = append(posts, edge.Node.Post())
	}
	return PostsPage{
		Posts:       posts,
		HasNextPage: m.PageInfo.HasNextPage,
		EndCursor:   m.PageInfo.EndCursor,
	}
}

type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

type Edge struct {
	Node Node `json:"node"`
}

type EdgeCount struct {
	Count int `json:"count"`
}

type CaptionEdges struct {
	Edges []struct {
		Node struct {
			Text string `json:"text"`
		} `json:"node"`
	} `json:"edges"`
}

type SidecarEdges struct {
	Edges []Edge `json:"edges"`
}

// Node is a GraphQL media node
type Node struct {
	ID                    string       `json:"id"`
	Typename              string       `json:"__typename"`
	Shortcode             string       `json:"shortcode"`
	DisplayURL            string       `json:"display_url"`
	VideoURL              string       `json:"video_url"`
	IsVideo               bool         `json:"is_video"`
	TakenAtTimestamp      int64        `json:"taken_at_timestamp"`
	EdgeMediaToCaption    CaptionEdges `json:"edge_media_to_caption"`
	EdgeSidecarToChildren SidecarEdges `json:"edge_sidecar_to_children"`
	EdgeMediaPreviewLike  EdgeCount    `json:"edge_media_preview_like"`
	EdgeMediaToComment    EdgeCount    `json:"edge_media_to_comment"`
}

// Post converts the node. Carousel children without a URL are dropped.
func (n Node) Post() Post {
	typename := n.Typename
	if typename == "" {
		typename = TypenameImage
	}

	var caption string
	if edges := n.EdgeMediaToCaption.Edges; len(edges) > 0 {
		caption = edges[0].Node.Text
	}

	var media []MediaItem
	for i, edge := range n.EdgeSidecarToChildren.Edges {
		child := edge.Node
		url := child.DisplayURL
		if child.IsVideo {
			url = child.VideoURL
		}
		if url == "" {
			continue
		}
		media = append(media, MediaItem{URL: url, IsVideo: child.IsVideo, Index: i + 1})
	}

	return Post{
		Shortcode:    n.Shortcode,
		Typename:     typename,
		DisplayURL:   n.DisplayURL,
		VideoURL:     n.VideoURL,
		IsVideo:      n.IsVideo,
		Timestamp:    time.Unix(n.TakenAtTimestamp, 0).UTC(),
		Caption:      caption,
		LikeCount:    n.EdgeMediaPreviewLike.Count,
		CommentCount: n.EdgeMediaToComment.Count,
		Media:        media,
	}
}

// FeedResponse is the body of /api/v1/feed/user/{id}/
type FeedResponse struct {
	Items         []FeedItem `json:"items"`
	MoreAvailable bool       `json:"more_available"`
	NextMaxID     string     `json:"next_max_id"`
	Status        string     `json:"status"`
}

// PostsPage converts a REST feed page
func (r FeedResponse) PostsPage() PostsPage {
	posts := make([]Post, 0, len(r.Items))
	for _, item := range r.Items {
		posts = append(posts, item.Post())
	}
	return PostsPage{
		Posts:       posts,
		HasNextPage: r.MoreAvailable,
		EndCursor:   r.NextMaxID,
	}
}

type MediaVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ImageVersions struct {
	Candidates []MediaVersion `json:"candidates"`
}

// FeedItem is a REST media item, also used for carousel children and
// highlight reel items
type FeedItem struct {
	PK             json.Number    `json:"pk"`
	Code           string         `json:"code"`
	TakenAt        int64          `json:"taken_at"`
	MediaType      int            `json:"media_type"`
	Caption        *FeedCaption   `json:"caption"`
	ImageVersions2 ImageVersions  `json:"image_versions2"`
	VideoVersions  []MediaVersion `json:"video_versions"`
	CarouselMedia  []FeedItem     `json:"carousel_media"`
	LikeCount      int            `json:"like_count"`
	CommentCount   int            `json:"comment_count"`
}

type FeedCaption struct {
	Text string `json:"text"`
}

func (i FeedItem) imageURL() string {
	if c := i.ImageVersions2.Candidates; len(c) > 0 {
		return c[0].URL
	}
	return ""
}

func (i FeedItem) videoURL() string {
	if len(i.VideoVersions) > 0 {
		return i.VideoVersions[0].URL
	}
	return ""
}

// bestURL is the first (largest) candidate for the item's media type
func (i FeedItem) bestURL() string {
	if i.MediaType == MediaTypeVideo {
		return i.videoURL()
	}
	return i.imageURL()
}

// Post converts the item
func (i FeedItem) Post() Post {
	isVideo := i.MediaType == MediaTypeVideo

	typename := TypenameImage
	switch i.MediaType {
	case MediaTypeVideo:
		typename = TypenameVideo
	case MediaTypeCarousel:
		typename = TypenameSidecar
	}

	var caption string
	if i.Caption != nil {
		caption = i.Caption.Text
	}

	var videoURL string
	if isVideo {
		videoURL = i.videoURL()
	}

	var media []MediaItem
	for idx, child := range i.CarouselMedia {
		if url := child.bestURL(); url != "" {
			media = append(media, MediaItem{
				URL:     url,
				IsVideo: child.MediaType == MediaTypeVideo,
				Index:   idx + 1,
			})
		}
	}

	return Post{
		Shortcode:    i.Code,
		Typename:     typename,
		DisplayURL:   i.imageURL(),
		VideoURL:     videoURL,
		IsVideo:      isVideo,
		Timestamp:    time.Unix(i.TakenAt, 0).UTC(),
		Caption:      caption,
		LikeCount:    i.LikeCount,
		CommentCount: i.CommentCount,
		Media:        media,
	}
}

// HighlightItem converts a reel item
func (i FeedItem) HighlightItem() HighlightItem {
	return HighlightItem{
		MediaID:   i.PK.String(),
		IsVideo:   i.MediaType == MediaTypeVideo,
		URL:       i.bestURL(),
		Timestamp: time.Unix(i.TakenAt, 0).UTC(),
	}
}

// HighlightsTrayResponse is the body of /api/v1/highlights/{id}/highlights_tray/
type HighlightsTrayResponse struct {
	Tray   []TrayItem `json:"tray"`
	Status string     `json:"status"`
}

type TrayItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	MediaCount int    `json:"media_count"`
}

// Highlight converts the tray entry. The "highlight:" prefix is stripped.
func (t TrayItem) Highlight() Highlight {
	return Highlight{
		ID:         strings.TrimPrefix(t.ID, "highlight:"),
		Title:      t.Title,
		MediaCount: t.MediaCount,
	}
}

// ReelsMediaResponse is the body of /api/v1/feed/reels_media/
type ReelsMediaResponse struct {
	Reels  map[string]Reel `json:"reels"`
	Status string          `json:"status"`
}

type Reel struct {
	ID    string     `json:"id"`
	Items []FeedItem `json:"items"`
}
