// Package getlate implements the ProfileSource port against the Getlate
// posting API.
package getlate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://getlate.dev/api"

// Compile-time interface satisfaction check.
var _ driven.ProfileSource = (*Client)(nil)

// StatusError reports a non-2xx response from the API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("getlate: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// mockProfiles is served when the client runs with a placeholder key.
var mockProfiles = []model.ExternalProfile{
	{ID: "prof-1", Name: "Music Education"},
	{ID: "prof-2", Name: "Culture & Heritage"},
	{ID: "prof-3", Name: "Youth & Sports"},
}

// Client lists profiles from the Getlate API. Responses pass through an
// in-memory HTTP cache; server errors and transport failures are retried
// with exponential backoff until the request context ends.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger

	initialInterval time.Duration
	maxRetries      uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the cached transport, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets the first backoff interval and the retry cap.
func WithRetryPolicy(initial time.Duration, maxRetries uint64) Option {
	return func(c *Client) {
		c.initialInterval = initial
		c.maxRetries = maxRetries
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client for apiKey. An empty baseURL uses DefaultBaseURL.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   30 * time.Second,
		},
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		logger:          slog.Default(),
		initialInterval: 500 * time.Millisecond,
		maxRetries:      3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsMock reports whether the client serves the built-in profile set instead
// of calling the API. Placeholder keys from sample configuration trigger it.
func (c *Client) IsMock() bool {
	return strings.HasPrefix(c.apiKey, "mock-") || strings.HasPrefix(c.apiKey, "your-")
}

type profilesResponse struct {
	Profiles []profileJSON `json:"profiles"`
}

type profileJSON struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// ListProfiles returns every profile visible to the API key.
func (c *Client) ListProfiles(ctx context.Context) ([]model.ExternalProfile, error) {
	if c.IsMock() {
		out := make([]model.ExternalProfile, len(mockProfiles))
		copy(out, mockProfiles)
		return out, nil
	}

	var decoded profilesResponse
	attempt := 0

	op := func() error {
		attempt++
		err := c.fetch(ctx, "/v1/profiles", &decoded)
		if err != nil && !isPermanent(err) {
			c.logger.Warn("getlate request failed, retrying", "attempt", attempt, "error", err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("list getlate profiles: %w", err)
	}

	profiles := make([]model.ExternalProfile, 0, len(decoded.Profiles))
	for _, p := range decoded.Profiles {
		profiles = append(profiles, model.ExternalProfile{ID: p.ID, Name: p.Name})
	}
	return profiles, nil
}

// fetch performs one GET and decodes the JSON body into dst. Errors that a
// retry cannot fix are wrapped with backoff.Permanent.
func (c *Client) fetch(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if resp.StatusCode >= 500 {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
