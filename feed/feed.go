package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"council-digest/normalize"
)

const userAgent = "council-digest/1.0"

// RSS and Atom feed XML structures. Both shapes are tried against the
// same document; whichever yields entries wins.

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

type atomDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	ID        string     `xml:"id"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// Client fetches raw records from RSS and Atom feeds, with the
// source-specific link fixups the council sources need.
type Client struct {
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

// WithHTTPClient replaces the HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a feed client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads and parses the feed at feedURL, applying the
// kind-specific link fixups: Granicus entries point at the direct
// download file when one is present, and Google Alerts redirect
// wrappers are resolved to their destination.
func (c *Client) Fetch(ctx context.Context, feedURL, kind string) ([]normalize.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	entries, err := parseEntries(body)
	if err != nil {
		return nil, err
	}

	records := make([]normalize.RawRecord, 0, len(entries))
	for _, e := range entries {
		rec := e

		switch kind {
		case "granicus_rss":
			if dl := ExtractGranicusDownloadURL(rec.SummaryHTML); dl != "" {
				rec.URL = dl
			}
		case "google_alerts":
			rec.URL = c.ResolveGoogleRedirect(ctx, rec.URL)
		}

		records = append(records, rec)
	}
	return records, nil
}

func parseEntries(body []byte) ([]normalize.RawRecord, error) {
	var rss rssDocument
	if err := xml.Unmarshal(body, &rss); err == nil {
		records := make([]normalize.RawRecord, 0, len(rss.Channel.Items))
		for _, item := range rss.Channel.Items {
			records = append(records, normalize.RawRecord{
				SourceItemID: item.GUID,
				Title:        strings.TrimSpace(item.Title),
				URL:          strings.TrimSpace(item.Link),
				Published:    parseFeedTime(item.PubDate),
				SummaryHTML:  item.Description,
			})
		}
		return records, nil
	}

	var atom atomDocument
	if err := xml.Unmarshal(body, &atom); err != nil {
		return nil, fmt.Errorf("parse feed XML: %w", err)
	}

	records := make([]normalize.RawRecord, 0, len(atom.Entries))
	for _, entry := range atom.Entries {
		link := ""
		for _, l := range entry.Links {
			if l.Rel == "alternate" || link == "" {
				link = l.Href
			}
		}

		summary := entry.Summary
		if summary == "" {
			summary = entry.Content
		}

		published := entry.Published
		if published == "" {
			published = entry.Updated
		}

		records = append(records, normalize.RawRecord{
			SourceItemID: entry.ID,
			Title:        strings.TrimSpace(entry.Title),
			URL:          strings.TrimSpace(link),
			Published:    parseFeedTime(published),
			SummaryHTML:  summary,
		})
	}
	return records, nil
}

// feedTimeFormats covers the timestamp styles council feeds actually
// produce.
var feedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

func parseFeedTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, format := range feedTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var granicusDownloadRegex = regexp.MustCompile(`href="(https://[^"]*granicus\.com/DownloadFile\.php[^"]+)"`)

// ExtractGranicusDownloadURL pulls the direct DownloadFile link out of
// a Granicus entry's summary HTML, so the stored URL points at the
// file itself rather than the listing page. Returns "" when no such
// link exists.
func ExtractGranicusDownloadURL(summaryHTML string) string {
	if summaryHTML == "" {
		return ""
	}
	m := granicusDownloadRegex.FindStringSubmatch(summaryHTML)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], "&amp;", "&")
}

// ResolveGoogleRedirect unwraps Google Alerts redirect links. Fast
// path: the destination sits in the url= query parameter. Fallback:
// follow redirects with a bounded GET. On any failure the original
// link is returned unchanged.
func (c *Client) ResolveGoogleRedirect(ctx context.Context, raw string) string {
	if raw == "" {
		return raw
	}

	if strings.HasPrefix(raw, "https://www.google.com/url") {
		if u, err := url.Parse(raw); err == nil {
			if dest := u.Query().Get("url"); dest != "" {
				return dest
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return raw
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return raw
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	return resp.Request.URL.String()
}
