package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxPayloadSize = 10 * 1024 * 1024 // 10MB

// errNotJSON marks a response whose content type is not JSON. The navigator
// decides whether that means a drifted endpoint or an expired session.
var errNotJSON = errors.New("unexpected content type")

// APIClient fetches listing pages directly, riding on the browser session's
// cookies. Requests are paced by a single conservative limiter: pages are
// walked one at a time and the platform rate-limits aggressive clients.
type APIClient struct {
	httpClient *http.Client
	userAgent  string
	cookies    []*http.Cookie
	limiter    *rate.Limiter
}

// NewAPIClient creates a client for the direct-fetch navigation path.
// requestsPerSecond bounds the page fetch rate; values <= 0 fall back to
// one request per second.
func NewAPIClient(userAgent string, requestsPerSecond float64) *APIClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1.0
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &APIClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects (max 10)")
				}
				return nil
			},
		},
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// SetCookies installs the authenticated session's cookies on all
// subsequent requests.
func (c *APIClient) SetCookies(cookies []*http.Cookie) {
	c.cookies = cookies
}

// GetJSON fetches one listing page and returns its body.
func (c *APIClient) GetJSON(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: HTTP %d fetching %s", ErrSessionInvalid, resp.StatusCode, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "json") {
		return nil, fmt.Errorf("%w: %s", errNotJSON, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
