package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"council-digest/normalize"
)

const (
	defaultModel      = "gemini-2.0-flash-lite"
	defaultBaseURL    = "https://generativelanguage.googleapis.com"
	defaultMaxBullets = 5
)

// ErrSummaryUnavailable wraps every failure mode of the summarization
// call. Callers deliver the digest without the prose brief; the
// summary is an enhancement, never a hard dependency.
var ErrSummaryUnavailable = errors.New("summary unavailable")

// Bullet is one line of the brief, citing the 1-based indexes of the
// items it draws on.
type Bullet struct {
	Text    string `json:"text"`
	Sources []int  `json:"sources"`
}

// CitedSource is an input item actually referenced by a bullet.
type CitedSource struct {
	N     int
	Title string
	URL   string
}

// Summary is the generated weekly brief.
type Summary struct {
	Headline string
	Bullets  []Bullet
	Sources  []CitedSource
}

// Summarizer generates a cited brief from digest items using the
// Gemini API.
type Summarizer struct {
	apiKey     string
	model      string
	baseURL    string
	maxBullets int
	httpClient *http.Client
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithModel sets the model to use.
func WithModel(model string) Option {
	return func(s *Summarizer) {
		s.model = model
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(s *Summarizer) {
		s.baseURL = u
	}
}

// WithMaxBullets caps the number of bullets requested.
func WithMaxBullets(n int) Option {
	return func(s *Summarizer) {
		s.maxBullets = n
	}
}

// WithTimeout bounds the API call.
func WithTimeout(d time.Duration) Option {
	return func(s *Summarizer) {
		s.httpClient.Timeout = d
	}
}

// NewSummarizer creates a summarizer.
func NewSummarizer(apiKey string, opts ...Option) *Summarizer {
	s := &Summarizer{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		maxBullets: defaultMaxBullets,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize produces a headline plus cited bullets for the given
// items, tailored to the subscriber's interests when any are given.
// Every failure returns an error wrapping ErrSummaryUnavailable.
func (s *Summarizer) Summarize(ctx context.Context, items []normalize.Item, interests string) (*Summary, error) {
	if len(items) == 0 {
		return &Summary{Headline: "No updates this week."}, nil
	}

	prompt := buildPrompt(items, interests, s.maxBullets)

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrSummaryUnavailable, err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", s.baseURL, s.model, s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSummaryUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSummaryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSummaryUnavailable, resp.StatusCode)
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSummaryUnavailable, err)
	}

	return parseResponse(&geminiResp, items)
}

func buildPrompt(items []normalize.Item, interests string, maxBullets int) string {
	var sources strings.Builder
	for i, it := range items {
		fmt.Fprintf(&sources, "[%d] %s - %s (%s)\n", i+1, it.Title, it.SourceID, it.URL)
	}

	interestLine := ""
	if strings.TrimSpace(interests) != "" {
		interestLine = fmt.Sprintf("Prioritize items relevant to these subscriber interests: %s\n", interests)
	}

	return fmt.Sprintf(`You are summarizing a weekly digest of local council announcements.
Write a short headline and up to %d bullets. Every bullet must cite at
least one source number from the list below. Do not invent facts.
%s
Respond with JSON only, in this exact format:
{"headline": "string", "bullets": [{"text": "string", "sources": [1, 2]}]}

Sources:
%s`, maxBullets, interestLine, sources.String())
}

func parseResponse(resp *geminiResponse, items []normalize.Item) (*Summary, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrSummaryUnavailable)
	}

	text := stripMarkdownCodeBlock(resp.Candidates[0].Content.Parts[0].Text)

	var parsed struct {
		Headline string   `json:"headline"`
		Bullets  []Bullet `json:"bullets"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse summary JSON: %v", ErrSummaryUnavailable, err)
	}

	summary := &Summary{
		Headline: strings.TrimSpace(parsed.Headline),
		Bullets:  parsed.Bullets,
	}

	// Attach only the sources the bullets actually cite.
	cited := make(map[int]bool)
	for _, b := range summary.Bullets {
		for _, n := range b.Sources {
			if n >= 1 && n <= len(items) {
				cited[n] = true
			}
		}
	}
	for i, it := range items {
		if cited[i+1] {
			summary.Sources = append(summary.Sources, CitedSource{
				N:     i + 1,
				Title: it.Title,
				URL:   it.URL,
			})
		}
	}

	return summary, nil
}

var codeBlockRegex = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.+?)\\s*```\\s*$")

func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if matches := codeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return s
}

// Gemini API types

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}
