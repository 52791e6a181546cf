package instagram

import (
	"context"
	"fmt"

	errs "igpull/pkg/errors"
	"igpull/pkg/models"
	"igpull/pkg/pagination"
)

// FetchProfile looks a user up through the web profile info endpoint. It
// returns (nil, nil) when the endpoint answers without a user so callers
// can fall back to the profile page.
func (c *Client) FetchProfile(ctx context.Context, username string) (*models.Profile, error) {
	var response models.WebProfileResponse
	if err := c.GetJSON(ctx, GetProfileURL(c.opts.BaseURL, username), nil, &response); err != nil {
		return nil, err
	}

	if response.Status != "" && response.Status != "ok" {
		c.logger.DebugWithFields("profile lookup returned non-ok status", map[string]interface{}{
			"username": username,
			"status":   response.Status,
		})
		return nil, nil
	}
	if response.Data.User == nil {
		return nil, nil
	}

	profile := response.Data.User.Profile()
	if profile.Username == "" {
		profile.Username = username
	}
	if profile.IsPrivate {
		return nil, errs.PermissionDenied(fmt.Sprintf("profile %s", username))
	}
	return &profile, nil
}

// FetchPostsPage returns one page of a user's posts. The REST feed is used
// when cookies are loaded, the anonymous GraphQL document otherwise.
func (c *Client) FetchPostsPage(ctx context.Context, userID, cursor string, pageSize int) (models.PostsPage, error) {
	if c.HasCookies() {
		return c.fetchFeedPage(ctx, userID, cursor, pageSize)
	}
	return c.fetchGraphQLPage(ctx, userID, cursor, pageSize)
}

func (c *Client) fetchGraphQLPage(ctx context.Context, userID, cursor string, pageSize int) (models.PostsPage, error) {
	var response models.GraphQLResponse
	err := c.GetJSON(ctx, c.opts.BaseURL+GraphQLEndpoint, GraphQLParams(userID, cursor, pageSize), &response)
	if err != nil {
		return models.PostsPage{}, err
	}
	if response.Data.User == nil {
		return models.PostsPage{}, errs.API(200, "posts response has no user")
	}
	return response.Data.User.EdgeOwnerToTimelineMedia.PostsPage(), nil
}

func (c *Client) fetchFeedPage(ctx context.Context, userID, cursor string, pageSize int) (models.PostsPage, error) {
	var response models.FeedResponse
	err := c.GetJSON(ctx, GetFeedURL(c.opts.BaseURL, userID), FeedParams(cursor, pageSize), &response)
	if err != nil {
		return models.PostsPage{}, err
	}
	return response.PostsPage(), nil
}

// FetchHighlights lists a user's highlight reels. Requires cookies.
func (c *Client) FetchHighlights(ctx context.Context, userID string) ([]models.Highlight, error) {
	if !c.HasCookies() {
		return nil, errs.AuthenticationRequired("Highlights")
	}

	var response models.HighlightsTrayResponse
	if err := c.GetJSON(ctx, GetHighlightsTrayURL(c.opts.BaseURL, userID), nil, &response); err != nil {
		return nil, err
	}

	highlights := make([]models.Highlight, 0, len(response.Tray))
	for _, item := range response.Tray {
		highlights = append(highlights, item.Highlight())
	}
	return highlights, nil
}

// FetchHighlightItems returns the stories of one highlight. Items without
// a media URL are skipped. Requires cookies.
func (c *Client) FetchHighlightItems(ctx context.Context, highlightID string) ([]models.HighlightItem, error) {
	if !c.HasCookies() {
		return nil, errs.AuthenticationRequired("Highlight items")
	}

	var response models.ReelsMediaResponse
	if err := c.GetJSON(ctx, GetReelsMediaURL(c.opts.BaseURL, highlightID), nil, &response); err != nil {
		return nil, err
	}

	reel, ok := response.Reels[HighlightReelID(highlightID)]
	if !ok {
		return nil, nil
	}

	items := make([]models.HighlightItem, 0, len(reel.Items))
	for _, raw := range reel.Items {
		item := raw.HighlightItem()
		if item.URL == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// PostsFetcher adapts the client to pagination.PageFetcher
type PostsFetcher struct {
	Client   *Client
	PageSize int
}

// FetchPage implements pagination.PageFetcher
func (f PostsFetcher) FetchPage(ctx context.Context, userID, cursor string) (pagination.Page[models.Post], error) {
	page, err := f.Client.FetchPostsPage(ctx, userID, cursor, f.PageSize)
	if err != nil {
		return pagination.Page[models.Post]{}, err
	}
	return pagination.Page[models.Post]{
		Items:   page.Posts,
		HasNext: page.HasNextPage,
		Cursor:  page.EndCursor,
	}, nil
}

// Posts returns an iterator over a user's posts
func (c *Client) Posts(userID string, limit int, opts pagination.Options) *pagination.Iterator[models.Post] {
	if opts.Session == nil {
		opts.Session = c
	}
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return pagination.New[models.Post](PostsFetcher{Client: c, PageSize: c.opts.PageSize}, userID, limit, opts)
}
