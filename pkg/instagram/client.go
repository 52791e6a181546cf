package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"igpull/pkg/config"
	errs "igpull/pkg/errors"
	"igpull/pkg/logger"
	"igpull/pkg/proxy"
	"igpull/pkg/retry"
)

const (
	// DefaultRetryAfter is used when a 429 carries no usable Retry-After
	DefaultRetryAfter = 300 * time.Second

	// rotatedRetryAfter is the pause before retrying through the next proxy
	rotatedRetryAfter = 1 * time.Second

	bodyPreviewLen = 200
)

// Limiter paces outgoing API requests
type Limiter interface {
	WaitIfNeeded(ctx context.Context) error
	RecordRequest()
}

// Proxies picks the egress proxy for each attempt
type Proxies interface {
	CurrentURL() (*url.URL, error)
	RecordRequest()
	RotateOnError()
	HasMultiple() bool
}

// Options configures a Client
type Options struct {
	// BaseURL defaults to https://www.instagram.com
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	UserAgent   string
	// PageSize is the number of posts per page, 12 by default
	PageSize int
	// Cookies are the authentication cookies, re-applied on every session
	Cookies []*http.Cookie
	// NewTransport builds the transport of each session. The transport
	// should take its proxy from RequestProxy.
	NewTransport func() http.RoundTripper
	Sleep        retry.Sleeper
}

// OptionsFromConfig maps the client config section. Cookies are loaded
// separately.
func OptionsFromConfig(cfg config.ClientConfig) Options {
	return Options{
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		UserAgent:   cfg.UserAgent,
	}
}

// Response is a fully read and decoded HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// JSON decodes the body into v
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errs.Parsing(r.StatusCode, fmt.Sprintf("invalid JSON from %s: %v", r.URL, err), err)
	}
	return nil
}

// Client is the resilient HTTP client for the Instagram web API. Every
// request goes through the rate limiter, is retried on transport failures
// and rate limits, and rotates proxies on throttling.
type Client struct {
	opts     Options
	headers  map[string]string
	limiter  Limiter
	proxies  Proxies
	backoff  retry.Backoff
	sleep    retry.Sleeper
	logger   logger.Logger
	sessions int

	mu         sync.Mutex
	httpClient *http.Client
}

// New creates a Client with a fresh session
func New(opts Options, limiter Limiter, proxies Proxies, log logger.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = UserAgent
	}
	if opts.NewTransport == nil {
		opts.NewTransport = DefaultTransport
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}
	if limiter == nil {
		limiter = noLimiter{}
	}
	if proxies == nil {
		proxies = proxy.New(nil, 0, log)
	}

	c := &Client{
		opts: opts,
		headers: map[string]string{
			"Accept":           "*/*",
			"Accept-Encoding":  "gzip, deflate, br",
			"Accept-Language":  "en-US,en;q=0.9",
			"Origin":           BaseURL,
			"Referer":          BaseURL + "/",
			"User-Agent":       opts.UserAgent,
			"X-Requested-With": "XMLHttpRequest",
			"X-IG-App-ID":      AppID,
		},
		limiter: limiter,
		proxies: proxies,
		backoff: &retry.ExponentialBackoff{
			BaseDelay:  1 * time.Second,
			MaxDelay:   60 * time.Second,
			Multiplier: 2,
		},
		sleep:  opts.Sleep,
		logger: logger.OrNop(log).WithField("component", "instagram"),
	}
	c.RefreshSession()
	return c
}

// BaseURL returns the API origin the client talks to
func (c *Client) BaseURL() string {
	return c.opts.BaseURL
}

// HasCookies reports whether authentication cookies were supplied
func (c *Client) HasCookies() bool {
	return len(c.opts.Cookies) > 0
}

// Execute sends one logical request. Transport failures are retried with
// exponential backoff; 429 responses (and 401s asking to wait) rotate the
// proxy, wait and retry on a fresh session. 404 maps to NotFound and any
// other status >= 400 to an API error without retry.
func (c *Client) Execute(ctx context.Context, method, rawURL string, params url.Values) (*Response, error) {
	if err := c.limiter.WaitIfNeeded(ctx); err != nil {
		return nil, err
	}

	target, err := buildURL(rawURL, params)
	if err != nil {
		return nil, errs.API(0, fmt.Sprintf("invalid url %q: %v", rawURL, err))
	}

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		last := attempt == c.opts.MaxAttempts-1

		resp, err := c.do(ctx, method, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if last {
				c.logger.ErrorWithFields("request failed", map[string]interface{}{
					"method":   method,
					"url":      target,
					"attempts": attempt + 1,
					"error":    err.Error(),
				})
				return nil, errs.TransportExhausted(err)
			}

			wait := c.backoff.NextDelay(attempt + 1)
			c.logger.WarnWithFields("request failed, retrying", map[string]interface{}{
				"method":  method,
				"url":     target,
				"attempt": attempt + 1,
				"wait":    wait.String(),
				"error":   err.Error(),
			})
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		c.limiter.RecordRequest()
		c.proxies.RecordRequest()

		switch {
		case isThrottled(resp):
			c.proxies.RotateOnError()
			retryAfter := c.retryAfter(resp)
			if last {
				c.logger.ErrorWithFields("rate limited, giving up", map[string]interface{}{
					"url":         target,
					"status":      resp.StatusCode,
					"retry_after": retryAfter.String(),
				})
				return nil, errs.RateLimited(resp.StatusCode, retryAfter)
			}

			c.logger.WarnWithFields("rate limited, waiting", map[string]interface{}{
				"url":         target,
				"status":      resp.StatusCode,
				"attempt":     attempt + 1,
				"retry_after": retryAfter.String(),
			})
			if err := c.sleep(ctx, retryAfter); err != nil {
				return nil, err
			}
			c.RefreshSession()
			continue

		case resp.StatusCode == http.StatusNotFound:
			c.logger.DebugWithFields("resource not found", map[string]interface{}{
				"url": target,
			})
			return nil, errs.NotFound(resourceName(target))

		case resp.StatusCode >= 400:
			c.logger.WarnWithFields("unexpected API error", map[string]interface{}{
				"url":    target,
				"status": resp.StatusCode,
			})
			return nil, errs.API(resp.StatusCode, preview(resp.Body))
		}

		return resp, nil
	}

	return nil, errs.API(0, "max retries exceeded")
}

// Get is Execute with GET
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	return c.Execute(ctx, http.MethodGet, rawURL, params)
}

// GetJSON fetches rawURL and decodes the body into target
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, target interface{}) error {
	resp, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := resp.JSON(target); err != nil {
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          resp.URL,
			"status":       resp.StatusCode,
			"body_preview": preview(resp.Body),
		})
		return err
	}
	return nil
}

// do performs a single attempt through the current proxy
func (c *Client) do(ctx context.Context, method, target string) (*Response, error) {
	proxyURL, err := c.proxies.CurrentURL()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, proxyKey{}, proxyURL)

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": method,
		"url":    target,
		"proxy":  proxyURL != nil,
	})

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"url":      target,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        target,
	}, nil
}

// retryAfter is the pause before the next attempt after throttling. With
// several proxies the next one is tried almost at once.
func (c *Client) retryAfter(resp *Response) time.Duration {
	if c.proxies.HasMultiple() {
		return rotatedRetryAfter
	}
	return parseRetryAfter(resp.Header.Get("Retry-After"))
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

func isThrottled(resp *Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusUnauthorized &&
		strings.Contains(strings.ToLower(string(resp.Body)), "wait")
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 {
		return DefaultRetryAfter
	}
	return time.Duration(secs * float64(time.Second))
}

func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for key, values := range params {
			q[key] = values
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func resourceName(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Path
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > bodyPreviewLen {
		return s[:bodyPreviewLen]
	}
	return s
}

type proxyKey struct{}

// RequestProxy returns the proxy Execute chose for req. It is the Proxy
// func of DefaultTransport.
func RequestProxy(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
		return u, nil
	}
	return nil, nil
}

// DefaultTransport is the production transport: pooled connections, the
// per-attempt proxy and no transparent decompression.
func DefaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy: RequestProxy,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

type noLimiter struct{}

func (noLimiter) WaitIfNeeded(ctx context.Context) error { return ctx.Err() }
func (noLimiter) RecordRequest()                         {}
