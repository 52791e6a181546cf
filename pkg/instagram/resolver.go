package instagram

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "igpull/pkg/errors"
	"igpull/pkg/logger"
	"igpull/pkg/models"
)

// ProfileResolver turns a username into the reference the pipeline needs
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, username string) (models.ProfileRef, error)
}

// APIProfileResolver uses the web profile info endpoint
type APIProfileResolver struct {
	Client *Client
}

// ResolveProfile implements ProfileResolver. An answer without a user is
// reported as NotFound.
func (r APIProfileResolver) ResolveProfile(ctx context.Context, username string) (models.ProfileRef, error) {
	profile, err := r.Client.FetchProfile(ctx, username)
	if err != nil {
		return models.ProfileRef{}, err
	}
	if profile == nil || profile.UserID == "" {
		return models.ProfileRef{}, errs.NotFound(fmt.Sprintf("profile %s", username))
	}
	return profile.Ref(), nil
}

var (
	userIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"user_id":"(\d+)"`),
		regexp.MustCompile(`"profilePage_(\d+)"`),
		regexp.MustCompile(`"owner":\{"id":"(\d+)"`),
		regexp.MustCompile(`data-id="(\d+)"`),
	}
	postCountPattern     = regexp.MustCompile(`"edge_owner_to_timeline_media":\{"count":(\d+)`)
	metaPostCountPattern = regexp.MustCompile(`([\d,]+) Posts`)
	privatePattern       = regexp.MustCompile(`"is_private":true`)
)

// HTMLProfileResolver scrapes the public profile page
type HTMLProfileResolver struct {
	Client *Client
}

// ResolveProfile implements ProfileResolver
func (r HTMLProfileResolver) ResolveProfile(ctx context.Context, username string) (models.ProfileRef, error) {
	resp, err := r.Client.Get(ctx, GetProfilePageURL(r.Client.BaseURL(), username), nil)
	if err != nil {
		return models.ProfileRef{}, err
	}
	return ParseProfilePage(username, resp.Body)
}

// ParseProfilePage extracts the user id, post count and private flag from
// the inline scripts and meta tags of a profile page
func ParseProfilePage(username string, body []byte) (models.ProfileRef, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.ProfileRef{}, errs.Parsing(200, "failed to parse profile page", err)
	}

	var scripts strings.Builder
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts.WriteString(s.Text())
		scripts.WriteByte('\n')
	})
	text := scripts.String()

	if privatePattern.MatchString(text) {
		return models.ProfileRef{}, errs.PermissionDenied(fmt.Sprintf("profile %s", username))
	}

	userID := ""
	for _, pattern := range userIDPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			userID = m[1]
			break
		}
	}
	if userID == "" {
		if id, ok := doc.Find("[data-id]").First().Attr("data-id"); ok && isDigits(id) {
			userID = id
		}
	}
	if userID == "" {
		return models.ProfileRef{}, errs.NotFound(fmt.Sprintf("profile %s", username))
	}

	ref := models.ProfileRef{UserID: userID, Username: username}
	if m := postCountPattern.FindStringSubmatch(text); m != nil {
		ref.PostCount, _ = strconv.Atoi(m[1])
	} else {
		doc.Find(`meta[property="og:description"], meta[name="description"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			content, _ := s.Attr("content")
			if m := metaPostCountPattern.FindStringSubmatch(content); m != nil {
				ref.PostCount, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
				return false
			}
			return true
		})
	}
	return ref, nil
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

// FallbackResolver tries each resolver in turn. NotFound and transient
// failures move on to the next one; a private profile ends the search.
type FallbackResolver struct {
	Resolvers []ProfileResolver
	Logger    logger.Logger
}

// ResolveProfile implements ProfileResolver
func (r FallbackResolver) ResolveProfile(ctx context.Context, username string) (models.ProfileRef, error) {
	log := logger.OrNop(r.Logger)

	var lastErr error
	for i, resolver := range r.Resolvers {
		ref, err := resolver.ResolveProfile(ctx, username)
		if err == nil {
			return ref, nil
		}
		if ctx.Err() != nil {
			return models.ProfileRef{}, ctx.Err()
		}

		switch errs.TypeOf(err) {
		case errs.ErrorTypePermission, errs.ErrorTypeAuth:
			return models.ProfileRef{}, err
		}
		lastErr = err

		if i < len(r.Resolvers)-1 {
			log.DebugWithFields("profile lookup failed, trying fallback", map[string]interface{}{
				"username": username,
				"error":    err.Error(),
			})
		}
	}

	if lastErr == nil {
		lastErr = errs.NotFound(fmt.Sprintf("profile %s", username))
	}
	return models.ProfileRef{}, lastErr
}

// NewProfileResolver is the API lookup with the profile page as fallback
func NewProfileResolver(client *Client) ProfileResolver {
	return FallbackResolver{
		Resolvers: []ProfileResolver{
			APIProfileResolver{Client: client},
			HTMLProfileResolver{Client: client},
		},
		Logger: client.logger,
	}
}
