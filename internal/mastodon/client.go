package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/blackmichael/mastodon-bridge/internal/domain"
)

// APIError is a non-2xx response from a Mastodon server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mastodon API error (status %d): %s", e.StatusCode, e.Body)
}

// Client talks to any Mastodon server; the server and token are supplied per
// call since every bridged user has their own.
type Client struct {
	httpClient *http.Client
	scheme     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithScheme overrides the URL scheme ("https" by default).
func WithScheme(scheme string) Option {
	return func(c *Client) { c.scheme = scheme }
}

// NewClient creates a Mastodon client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		scheme: "https",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HomeTimeline implements domain.MastodonClient.
func (c *Client) HomeTimeline(ctx context.Context, server, accessToken string, limit int) ([]domain.MastodonStatus, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var statuses []domain.MastodonStatus
	if err := c.do(ctx, http.MethodGet, server, "/api/v1/timelines/home", query, accessToken, nil, &statuses); err != nil {
		return nil, fmt.Errorf("home timeline: %w", err)
	}
	return statuses, nil
}

// GetStatus implements domain.MastodonClient.
func (c *Client) GetStatus(ctx context.Context, server, accessToken, id string) (*domain.MastodonStatus, error) {
	var status domain.MastodonStatus
	if err := c.do(ctx, http.MethodGet, server, "/api/v1/statuses/"+url.PathEscape(id), nil, accessToken, nil, &status); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &status, nil
}

// PostStatus implements domain.MastodonClient.
func (c *Client) PostStatus(ctx context.Context, server, accessToken string, status domain.NewStatus) (*domain.MastodonStatus, error) {
	var created domain.MastodonStatus
	if err := c.do(ctx, http.MethodPost, server, "/api/v1/statuses", nil, accessToken, status, &created); err != nil {
		return nil, fmt.Errorf("post status: %w", err)
	}
	return &created, nil
}

func (c *Client) do(ctx context.Context, method, server, path string, query url.Values, accessToken string, body any, result any) error {
	u := url.URL{
		Scheme:   c.scheme,
		Host:     server,
		Path:     path,
		RawQuery: query.Encode(),
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
