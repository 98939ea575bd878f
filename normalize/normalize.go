package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrUnusableRecord is returned when a raw record has neither a usable
// URL nor a usable title, leaving nothing to hash or display.
var ErrUnusableRecord = errors.New("record has no usable url or title")

// ErrFiltered is returned when a record fails its source's keyword
// allow-list and is dropped on purpose.
var ErrFiltered = errors.New("record filtered by keyword allow-list")

// Item categories.
const (
	CategoryHearing = "official-hearing"
	CategoryVideo   = "video"
	CategoryPress   = "press-mention"
	CategoryOther   = "other"
)

// RawRecord is the source-agnostic shape collectors hand to the
// normalizer. Each source kind fills in what it has; missing fields are
// tolerated as long as a title or URL survives.
type RawRecord struct {
	SourceItemID string
	Title        string
	URL          string
	Published    time.Time // zero when the source gave no timestamp
	SummaryHTML  string
}

// Source is the per-feed metadata the normalizer needs: who the record
// came from, the category that source declares, and an optional keyword
// allow-list for non-official sources.
type Source struct {
	ID       string
	Category string
	Keywords []string
}

// Item is the canonical, immutable record of one piece of content.
type Item struct {
	SourceID    string
	Title       string
	URL         string
	PublishedAt time.Time
	IngestedAt  time.Time
	Excerpt     string
	Category    string
	ContentHash string
}

// When returns the item's effective timestamp: published time, falling
// back to ingestion time when the source gave none.
func (it Item) When() time.Time {
	if !it.PublishedAt.IsZero() {
		return it.PublishedAt
	}
	return it.IngestedAt
}

// Rule reclassifies an item whose title or excerpt contains one of the
// terms.
type Rule struct {
	Category string
	Terms    []string
}

// Normalizer converts raw records into canonical items.
type Normalizer struct {
	rules       []Rule
	keywordWins bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRules sets content-based reclassification rules.
func WithRules(rules []Rule) Option {
	return func(n *Normalizer) {
		n.rules = rules
	}
}

// WithKeywordPrecedence makes keyword rules override the category the
// source declares. The default trusts the source.
func WithKeywordPrecedence(keywordWins bool) Option {
	return func(n *Normalizer) {
		n.keywordWins = keywordWins
	}
}

// NewNormalizer creates a normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts a raw record into a canonical Item. It returns
// ErrUnusableRecord when the record has nothing to identify it, and
// ErrFiltered when the source's keyword allow-list rejects it.
func (n *Normalizer) Normalize(raw RawRecord, src Source, now time.Time) (*Item, error) {
	title := CollapseWhitespace(StripHTML(raw.Title))
	canonicalURL := CanonicalURL(raw.URL)

	if canonicalURL == "" && title == "" {
		return nil, ErrUnusableRecord
	}

	excerpt := CollapseWhitespace(StripHTML(raw.SummaryHTML))

	if len(src.Keywords) > 0 && !containsAny(title+" "+excerpt, src.Keywords) {
		return nil, ErrFiltered
	}

	category := src.Category
	if matched, ok := n.matchRule(title, excerpt); ok {
		if n.keywordWins || category == "" {
			category = matched
		}
	}
	if category == "" {
		category = CategoryOther
	}

	item := &Item{
		SourceID:    src.ID,
		Title:       title,
		URL:         canonicalURL,
		PublishedAt: raw.Published,
		IngestedAt:  now,
		Excerpt:     excerpt,
		Category:    category,
	}
	item.ContentHash = ContentHash(src.ID, canonicalURL, title, raw.Published)

	return item, nil
}

func (n *Normalizer) matchRule(title, excerpt string) (string, bool) {
	text := strings.ToLower(title + " " + excerpt)
	for _, rule := range n.rules {
		for _, term := range rule.Terms {
			if strings.Contains(text, strings.ToLower(term)) {
				return rule.Category, true
			}
		}
	}
	return "", false
}

func containsAny(text string, keywords []string) bool {
	t := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(t, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// ContentHash derives the dedup key. It hashes a normalized form of the
// source ID plus the canonical URL, or, when no URL exists, the title
// plus the published day. Records differing only in formatting,
// whitespace, or tracking parameters collapse to the same hash.
func ContentHash(sourceID, canonicalURL, title string, published time.Time) string {
	var base string
	if canonicalURL != "" {
		base = normalizeText(sourceID) + "||" + normalizeText(canonicalURL)
	} else {
		day := ""
		if !published.IsZero() {
			day = published.UTC().Format("2006-01-02")
		}
		base = normalizeText(sourceID) + "||" + normalizeText(title) + "||" + day
	}
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// trackingParams are query parameters stripped before hashing so the
// same article shared through different channels dedupes correctly.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
	"ref":    true,
}

// CanonicalURL resolves a raw link to its canonical absolute form:
// tracking query parameters and fragments are dropped, scheme and host
// are lowercased. Unparseable or relative URLs yield "".
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

var (
	brTagRegex   = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlTagRegex = regexp.MustCompile(`<[^>]+>`)
	nonWordRegex = regexp.MustCompile(`[^\w\s./:?=&-]`)
	multiWSRegex = regexp.MustCompile(`\s+`)
)

// StripHTML removes markup and unescapes entities, leaving plain text.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = brTagRegex.ReplaceAllString(s, "\n")
	s = htmlTagRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CollapseWhitespace folds runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(multiWSRegex.ReplaceAllString(s, " "))
}

// normalizeText lowercases, collapses whitespace, and drops punctuation
// so cosmetic differences never change the hash.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = multiWSRegex.ReplaceAllString(s, " ")
	return nonWordRegex.ReplaceAllString(s, "")
}

// ValidCategory reports whether s is one of the item categories.
func ValidCategory(s string) bool {
	switch s {
	case CategoryHearing, CategoryVideo, CategoryPress, CategoryOther:
		return true
	}
	return false
}

// String renders an item for logs.
func (it Item) String() string {
	return fmt.Sprintf("%s: %s (%s)", it.SourceID, it.Title, it.Category)
}
