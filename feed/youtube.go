package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"council-digest/normalize"
)

const defaultYouTubeBaseURL = "https://www.googleapis.com"

// YouTubeClient searches a channel for live and upcoming streams via
// the YouTube Data API.
type YouTubeClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// YouTubeOption configures a YouTubeClient.
type YouTubeOption func(*YouTubeClient)

// WithYouTubeBaseURL sets a custom base URL (for testing).
func WithYouTubeBaseURL(u string) YouTubeOption {
	return func(c *YouTubeClient) {
		c.baseURL = u
	}
}

// WithYouTubeTimeout sets the HTTP client timeout.
func WithYouTubeTimeout(d time.Duration) YouTubeOption {
	return func(c *YouTubeClient) {
		c.httpClient.Timeout = d
	}
}

// WithYouTubeMaxResults caps results per event type.
func WithYouTubeMaxResults(n int) YouTubeOption {
	return func(c *YouTubeClient) {
		c.maxResults = n
	}
}

// NewYouTubeClient creates a YouTube search client.
func NewYouTubeClient(apiKey string, opts ...YouTubeOption) *YouTubeClient {
	c := &YouTubeClient{
		apiKey:     apiKey,
		baseURL:    defaultYouTubeBaseURL,
		maxResults: 25,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type youtubeSearchResponse struct {
	Items []youtubeSearchItem `json:"items"`
}

type youtubeSearchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
	} `json:"snippet"`
}

// Fetch returns raw records for the channel's live and upcoming
// streams. Entries without a video ID are skipped.
func (c *YouTubeClient) Fetch(ctx context.Context, channelID string) ([]normalize.RawRecord, error) {
	var records []normalize.RawRecord
	for _, eventType := range []string{"live", "upcoming"} {
		items, err := c.search(ctx, channelID, eventType)
		if err != nil {
			return nil, fmt.Errorf("search %s streams: %w", eventType, err)
		}

		for _, it := range items {
			if it.ID.VideoID == "" {
				continue
			}

			published := time.Time{}
			if t, err := time.Parse(time.RFC3339, it.Snippet.PublishedAt); err == nil {
				published = t.UTC()
			}

			records = append(records, normalize.RawRecord{
				SourceItemID: it.ID.VideoID,
				Title:        strings.TrimSpace(it.Snippet.Title),
				URL:          "https://www.youtube.com/watch?v=" + it.ID.VideoID,
				Published:    published,
				SummaryHTML:  it.Snippet.Description,
			})
		}
	}
	return records, nil
}

func (c *YouTubeClient) search(ctx context.Context, channelID, eventType string) ([]youtubeSearchItem, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("channelId", channelID)
	params.Set("eventType", eventType)
	params.Set("type", "video")
	params.Set("order", "date")
	params.Set("maxResults", fmt.Sprintf("%d", c.maxResults))
	params.Set("key", c.apiKey)

	reqURL := fmt.Sprintf("%s/youtube/v3/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result youtubeSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Items, nil
}
