package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const defaultMaxExcerptLen = 500

// Scraper extracts a short plain-text excerpt from an article page.
// The collectors use it when a press-mention entry arrives without a
// usable summary.
type Scraper struct {
	httpClient    *http.Client
	maxExcerptLen int
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.httpClient.Timeout = d
	}
}

// WithMaxExcerptLength sets the maximum excerpt length.
func WithMaxExcerptLength(n int) Option {
	return func(s *Scraper) {
		s.maxExcerptLen = n
	}
}

// NewScraper creates an excerpt scraper.
func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		maxExcerptLen: defaultMaxExcerptLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Excerpt fetches the page and returns the leading readable text,
// truncated at a word boundary.
func (s *Scraper) Excerpt(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; council-digest/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) > s.maxExcerptLen {
		cut := strings.LastIndex(text[:s.maxExcerptLen], " ")
		if cut <= 0 {
			cut = s.maxExcerptLen
		}
		text = text[:cut]
	}

	return text, nil
}
