package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igpull/pkg/errors"
	"igpull/pkg/models"
	"igpull/pkg/pagination"
)

const profileJSON = `{
  "status": "ok",
  "data": {"user": {
    "id": "42", "username": "natgeo", "full_name": "National Geographic",
    "is_private": %t,
    "edge_owner_to_timeline_media": {"count": 3}
  }}
}`

func graphQLPage(cursor string, hasNext bool, shortcodes ...string) string {
	edges := make([]map[string]interface{}, 0, len(shortcodes))
	for _, sc := range shortcodes {
		edges = append(edges, map[string]interface{}{"node": map[string]interface{}{
			"__typename":  "GraphImage",
			"shortcode":   sc,
			"display_url": "https://cdn.example/" + sc + ".jpg",
		}})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{"user": map[string]interface{}{
			"edge_owner_to_timeline_media": map[string]interface{}{
				"count":     3,
				"page_info": map[string]interface{}{"has_next_page": hasNext, "end_cursor": cursor},
				"edges":     edges,
			},
		}},
	})
	return string(body)
}

func newServerClient(t *testing.T, handler http.HandlerFunc, cookies []*http.Cookie) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Options{BaseURL: server.URL, Cookies: cookies, Sleep: (&sleepRecorder{}).sleep}, nil, nil, nil)
}

func TestFetchProfile(t *testing.T) {
	t.Run("public profile", func(t *testing.T) {
		client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, ProfileEndpoint, r.URL.Path)
			assert.Equal(t, "natgeo", r.URL.Query().Get("username"))
			fmt.Fprintf(w, profileJSON, false)
		}, nil)

		profile, err := client.FetchProfile(context.Background(), "natgeo")
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.Equal(t, "42", profile.UserID)
		assert.Equal(t, 3, profile.PostCount)
		assert.Equal(t, "National Geographic", profile.FullName)
	})

	t.Run("private profile", func(t *testing.T) {
		client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, profileJSON, true)
		}, nil)

		_, err := client.FetchProfile(context.Background(), "natgeo")
		assert.True(t, errs.Is(err, errs.ErrorTypePermission))
	})

	t.Run("no user", func(t *testing.T) {
		client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok","data":{"user":null}}`))
		}, nil)

		profile, err := client.FetchProfile(context.Background(), "natgeo")
		assert.NoError(t, err)
		assert.Nil(t, profile)
	})
}

func TestPostsIteratesGraphQLPages(t *testing.T) {
	var afters []string
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, GraphQLEndpoint, r.URL.Path)
		assert.Equal(t, PostsDocID, r.URL.Query().Get("doc_id"))

		var vars map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("variables")), &vars))
		after, _ := vars["after"].(string)
		afters = append(afters, after)

		switch after {
		case "":
			_, _ = w.Write([]byte(graphQLPage("c1", true, "A1", "A2")))
		case "c1":
			_, _ = w.Write([]byte(graphQLPage("", false, "B1")))
		}
	}, nil)

	it := client.Posts("42", 0, pagination.Options{Pacer: noPacer{}})

	var shortcodes []string
	for it.Next(context.Background()) {
		shortcodes = append(shortcodes, it.Item().Shortcode)
	}

	require.NoError(t, it.Err())
	assert.Equal(t, []string{"A1", "A2", "B1"}, shortcodes)
	assert.Equal(t, []string{"", "c1"}, afters)
}

func TestFetchPostsPageMissingUser(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"user":null},"status":"ok"}`))
	}, nil)

	_, err := client.FetchPostsPage(context.Background(), "42", "", 12)
	assert.True(t, errs.Is(err, errs.ErrorTypeAPI))
}

func TestFetchPostsPageUsesFeedWithCookies(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/feed/user/42/", r.URL.Path)
		assert.Equal(t, "12", r.URL.Query().Get("count"))
		assert.Equal(t, "next_1", r.URL.Query().Get("max_id"))
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"more_available": true,
			"next_max_id": "next_2",
			"items": [{
				"pk": 3001, "code": "C1", "media_type": 8, "taken_at": 1700000000,
				"carousel_media": [
					{"media_type": 1, "image_versions2": {"candidates": [{"url": "https://cdn.example/1.jpg"}]}},
					{"media_type": 2, "video_versions": [{"url": "https://cdn.example/2.mp4"}]}
				]
			}]
		}`))
	}, []*http.Cookie{{Name: "sessionid", Value: "abc"}})

	page, err := client.FetchPostsPage(context.Background(), "42", "next_1", 12)
	require.NoError(t, err)

	require.Len(t, page.Posts, 1)
	post := page.Posts[0]
	assert.Equal(t, "C1", post.Shortcode)
	assert.True(t, post.IsCarousel())
	require.Len(t, post.MediaItems(), 2)
	assert.True(t, post.MediaItems()[1].IsVideo)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "next_2", page.EndCursor)
}

func TestHighlightsRequireCookies(t *testing.T) {
	client := New(Options{}, nil, nil, nil)

	_, err := client.FetchHighlights(context.Background(), "42")
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))

	_, err = client.FetchHighlightItems(context.Background(), "1799")
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
}

func TestFetchHighlights(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/highlights/42/highlights_tray/":
			_, _ = w.Write([]byte(`{"status":"ok","tray":[
				{"id":"highlight:1799","title":"Travel","media_count":2},
				{"id":"highlight:1800","title":"Food","media_count":1}
			]}`))
		case "/api/v1/feed/reels_media/":
			assert.Equal(t, "highlight:1799", r.URL.Query().Get("reel_ids"))
			_, _ = w.Write([]byte(`{"status":"ok","reels":{"highlight:1799":{"id":"highlight:1799","items":[
				{"pk":"555","media_type":1,"image_versions2":{"candidates":[{"url":"https://cdn.example/555.jpg"}]}},
				{"pk":"556","media_type":2,"video_versions":[{"url":"https://cdn.example/556.mp4"}]},
				{"pk":"557","media_type":1}
			]}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, []*http.Cookie{{Name: "sessionid", Value: "abc"}})

	highlights, err := client.FetchHighlights(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, highlights, 2)
	assert.Equal(t, "1799", highlights[0].ID)
	assert.Equal(t, "travel", highlights[0].Slug())

	items, err := client.FetchHighlightItems(context.Background(), highlights[0].ID)
	require.NoError(t, err)
	require.Len(t, items, 2, "items without media are skipped")
	assert.Equal(t, []models.HighlightItem{
		{MediaID: "555", URL: "https://cdn.example/555.jpg", Timestamp: items[0].Timestamp},
		{MediaID: "556", URL: "https://cdn.example/556.mp4", IsVideo: true, Timestamp: items[1].Timestamp},
	}, items)
}

type noPacer struct{}

func (noPacer) PageDelay(ctx context.Context) error { return ctx.Err() }
