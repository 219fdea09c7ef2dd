package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/rs/zerolog"
)

// RawDataPath is the gateway API path serving the runtime configuration
const RawDataPath = "/api/rawdata"

// maxBodySize bounds the runtime configuration document
const maxBodySize = 32 << 20

// FetchError is returned when the gateway's runtime configuration cannot be
// obtained or is not a JSON object
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config configures a gateway client
type Config struct {
	// URL is the gateway API base URL. RawDataPath is appended unless the
	// URL already ends with it.
	URL string

	// Host overrides the Host header when set
	Host string

	// Timeout bounds a single fetch
	Timeout time.Duration
}

// Client fetches the gateway's runtime configuration
type Client struct {
	url    string
	host   string
	client *http.Client
	logger zerolog.Logger
}

// NewClient creates a gateway client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:  RawDataURL(cfg.URL),
		host: cfg.Host,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithComponent("gateway"),
	}
}

// RawDataURL returns base with RawDataPath appended exactly once
func RawDataURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, RawDataPath) {
		return base
	}
	return base + RawDataPath
}

// URL returns the full URL fetched by the client
func (c *Client) URL() string {
	return c.url
}

// Fetch performs a single GET of the runtime configuration. It does not retry.
func (c *Client) Fetch(ctx context.Context) (*types.Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.host != "" {
		req.Host = c.host
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: c.url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: fmt.Errorf("read body: %w", err)}
	}

	doc, err := types.ParseObject(body)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}

	c.logger.Debug().
		Dur("duration", time.Since(start)).
		Int("bytes", len(body)).
		Int("sections", doc.Len()).
		Msg("Fetched runtime configuration")
	return doc, nil
}
