package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable is returned when the subscriber directory cannot be
// reached or returns garbage. It is fatal for a digest-send run, but
// never for ingestion.
var ErrUnavailable = errors.New("subscriber directory unavailable")

// Subscriber is the read-only projection the directory exposes. The
// pipeline never mutates it; it is fetched fresh per digest run.
type Subscriber struct {
	Email            string   `json:"email"`
	Topics           []string `json:"topics"`
	FreeTextInterest string   `json:"interests"`
	Active           bool     `json:"active"`
	UnsubscribeToken string   `json:"unsubscribe_token"`
}

// HasCriteria reports whether the subscriber declared any matching
// criteria. Without any, the digest falls back to the globally
// top-ranked items.
func (s Subscriber) HasCriteria() bool {
	return len(s.Topics) > 0 || strings.TrimSpace(s.FreeTextInterest) != ""
}

// Client queries the remote subscriber directory, authenticated with a
// shared key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a directory client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type subscribersResponse struct {
	Items []Subscriber `json:"items"`
}

// ActiveSubscribers returns the directory's active subscribers. Any
// transport, status, or decode failure wraps ErrUnavailable.
func (c *Client) ActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	params := url.Values{}
	params.Set("path", "active_subscribers")
	params.Set("key", c.apiKey)

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var result subscribersResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	active := make([]Subscriber, 0, len(result.Items))
	for _, sub := range result.Items {
		if sub.Active && sub.Email != "" {
			active = append(active, sub)
		}
	}
	return active, nil
}
