package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"updraft/internal/debug"
)

// Default configuration values.
const (
	DefaultAPIBaseURL = "https://api.github.com"
	DefaultUserAgent  = "updraft"
	DefaultTimeout    = 30 * time.Second

	// maxJSONResponseBytes caps metadata bodies (10 MB).
	maxJSONResponseBytes = 10 << 20
)

type sourceConfig struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	goos       string
}

// SourceOption configures a ReleaseSource or ManifestSource.
// Options that do not apply to a source are ignored by it.
type SourceOption func(*sourceConfig)

// WithHTTPClient sets a custom HTTP client for metadata requests. A nil
// client keeps the default.
func WithHTTPClient(client *http.Client) SourceOption {
	return func(c *sourceConfig) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) SourceOption {
	return func(c *sourceConfig) {
		if timeout <= 0 {
			return
		}
		client := &http.Client{}
		if c.httpClient != nil {
			copied := *c.httpClient
			client = &copied
		}
		client.Timeout = timeout
		c.httpClient = client
	}
}

// WithBaseURL overrides the release API base URL (tests, GitHub Enterprise).
func WithBaseURL(base string) SourceOption {
	return func(c *sourceConfig) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithToken sets a bearer token for authenticated release API requests.
func WithToken(token string) SourceOption {
	return func(c *sourceConfig) {
		c.token = token
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) SourceOption {
	return func(c *sourceConfig) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithPlatform overrides the operating system used to pick release assets.
func WithPlatform(goos string) SourceOption {
	return func(c *sourceConfig) {
		c.goos = goos
	}
}

func newSourceConfig(goos string, opts []SourceOption) sourceConfig {
	cfg := sourceConfig{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    DefaultAPIBaseURL,
		userAgent:  DefaultUserAgent,
		goos:       goos,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// fetchText performs a GET and returns the body text. A 404 yields found=false
// with no error; any other non-200 status is a fetch error.
func (c sourceConfig) fetchText(ctx context.Context, url string, headers map[string]string) (body string, found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fail(ErrFetch, fmt.Sprintf("create request for %s: %v", url, err), err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	debug.Info("fetching release metadata", "url", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fail(ErrFetch, fmt.Sprintf("fetch %s: %v", url, err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		debug.Warn("no releases found", "url", url)
		return "", false, nil
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return "", false, fail(ErrFetch, "rate limited by release API (status 403)", nil)
	case resp.StatusCode != http.StatusOK:
		return "", false, fail(ErrFetch, fmt.Sprintf("release API returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return "", false, fail(ErrFetch, fmt.Sprintf("read response: %v", err), err)
	}
	return string(data), true, nil
}
