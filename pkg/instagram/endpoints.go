package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint is the endpoint for profile lookups by username
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// GraphQLEndpoint serves the anonymous posts document
	GraphQLEndpoint = "/graphql/query"

	// PostsDocID is the persisted GraphQL document for a user's posts
	PostsDocID = "7950326061742207"

	// DefaultPageSize is the number of posts requested per page
	DefaultPageSize = 12

	// MaxPageSize is the largest page the endpoints accept
	MaxPageSize = 50

	// AppID is sent as X-IG-App-ID on every API request
	AppID = "936619743392459"

	// UserAgent is the browser the client presents itself as
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// GetProfileURL constructs the URL for fetching a user's profile
func GetProfileURL(base, username string) string {
	params := url.Values{}
	params.Set("username", username)

	return fmt.Sprintf("%s%s?%s", base, ProfileEndpoint, params.Encode())
}

// GetProfilePageURL constructs the public profile page URL for a user
func GetProfilePageURL(base, username string) string {
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", base, username)
}

// GraphQLParams builds the query for one page of a user's posts
func GraphQLParams(userID, after string, pageSize int) url.Values {
	variables := map[string]interface{}{
		"id":    userID,
		"first": clampPageSize(pageSize),
	}
	if after != "" {
		variables["after"] = after
	}
	encoded, _ := json.Marshal(variables)

	params := url.Values{}
	params.Set("doc_id", PostsDocID)
	params.Set("variables", string(encoded))
	return params
}

// GetFeedURL constructs the REST feed URL for a user's posts
func GetFeedURL(base, userID string) string {
	return fmt.Sprintf("%s/api/v1/feed/user/%s/", base, url.PathEscape(userID))
}

// FeedParams builds the query for one REST feed page
func FeedParams(maxID string, pageSize int) url.Values {
	params := url.Values{}
	params.Set("count", strconv.Itoa(clampPageSize(pageSize)))
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	return params
}

// GetHighlightsTrayURL constructs the URL listing a user's highlights
func GetHighlightsTrayURL(base, userID string) string {
	return fmt.Sprintf("%s/api/v1/highlights/%s/highlights_tray/", base, url.PathEscape(userID))
}

// GetReelsMediaURL constructs the URL for the items of one highlight
func GetReelsMediaURL(base, highlightID string) string {
	params := url.Values{}
	params.Set("reel_ids", HighlightReelID(highlightID))
	return fmt.Sprintf("%s/api/v1/feed/reels_media/?%s", base, params.Encode())
}

// HighlightReelID is the reel id the reels endpoints key highlights by
func HighlightReelID(highlightID string) string {
	return "highlight:" + strings.TrimPrefix(highlightID, "highlight:")
}

// GetPostURL constructs the URL for a specific post
func GetPostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Instagram usernames can only contain letters, numbers, periods, and underscores
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername normalises user input: a leading @, a profile URL and
// trailing slashes or spaces are removed
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	for _, prefix := range []string{"https://www.instagram.com/", "https://instagram.com/", "http://www.instagram.com/", "instagram.com/"} {
		username = strings.TrimPrefix(username, prefix)
	}
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
