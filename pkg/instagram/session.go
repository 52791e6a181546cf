package instagram

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// RefreshSession drops pooled connections and starts over with a new
// cookie jar: a fresh device id, the default cookies and the
// authentication cookies, if any.
func (c *Client) RefreshSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New never fails with a non-nil list
		panic(err)
	}

	if origin, err := url.Parse(c.opts.BaseURL); err == nil {
		jar.SetCookies(origin, c.sessionCookies())
	}

	c.httpClient = &http.Client{
		Transport: c.opts.NewTransport(),
		Jar:       jar,
	}
	c.sessions++

	if c.sessions > 1 {
		c.logger.DebugWithFields("session refreshed", map[string]interface{}{
			"sessions": c.sessions,
			"cookies":  len(c.opts.Cookies),
		})
	}
}

// Sessions returns how many sessions the client has started
func (c *Client) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}

// sessionCookies are host-scoped to the API origin so that they also
// apply when BaseURL points at a test server
func (c *Client) sessionCookies() []*http.Cookie {
	cookies := []*http.Cookie{
		{Name: "ig_did", Value: uuid.NewString(), Path: "/"},
		{Name: "ig_nrcb", Value: "1", Path: "/"},
	}
	for _, ck := range c.opts.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     "/",
			Secure:   ck.Secure,
			HttpOnly: ck.HttpOnly,
		})
	}
	return cookies
}
