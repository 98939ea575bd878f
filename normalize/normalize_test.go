package normalize

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func TestHashIgnoresTrackingParams(t *testing.T) {
	n := NewNormalizer()
	src := Source{ID: "council_rss", Category: CategoryHearing}

	r1 := RawRecord{
		Title: "Budget Oversight Hearing",
		URL:   "https://council.example.gov/hearings/42?utm_source=rss&utm_campaign=weekly&fbclid=abc123",
	}
	r2 := RawRecord{
		Title: "Budget   Oversight\tHearing",
		URL:   "https://council.example.gov/hearings/42",
	}

	i1, err := n.Normalize(r1, src, testNow)
	if err != nil {
		t.Fatalf("Normalize r1 failed: %v", err)
	}
	i2, err := n.Normalize(r2, src, testNow)
	if err != nil {
		t.Fatalf("Normalize r2 failed: %v", err)
	}

	if i1.ContentHash != i2.ContentHash {
		t.Errorf("hashes differ for tracking-param variants: %s vs %s", i1.ContentHash, i2.ContentHash)
	}
}

func TestHashFallsBackToTitleAndDay(t *testing.T) {
	n := NewNormalizer()
	src := Source{ID: "council_rss", Category: CategoryHearing}
	published := time.Date(2025, 5, 30, 9, 15, 0, 0, time.UTC)

	r1 := RawRecord{Title: "Committee Markup Session", Published: published}
	r2 := RawRecord{Title: "Committee  Markup   Session", Published: published.Add(4 * time.Hour)}

	i1, err := n.Normalize(r1, src, testNow)
	if err != nil {
		t.Fatalf("Normalize r1 failed: %v", err)
	}
	i2, err := n.Normalize(r2, src, testNow)
	if err != nil {
		t.Fatalf("Normalize r2 failed: %v", err)
	}

	if i1.ContentHash != i2.ContentHash {
		t.Error("same title on the same day should hash identically")
	}

	r3 := RawRecord{Title: "Committee Markup Session", Published: published.AddDate(0, 0, 1)}
	i3, err := n.Normalize(r3, src, testNow)
	if err != nil {
		t.Fatalf("Normalize r3 failed: %v", err)
	}
	if i1.ContentHash == i3.ContentHash {
		t.Error("different published day should change the hash")
	}
}

func TestHashDiffersAcrossSources(t *testing.T) {
	n := NewNormalizer()
	raw := RawRecord{Title: "Council Roundup", URL: "https://news.example.com/roundup"}

	i1, err := n.Normalize(raw, Source{ID: "alerts_a", Category: CategoryPress}, testNow)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	i2, err := n.Normalize(raw, Source{ID: "alerts_b", Category: CategoryPress}, testNow)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if i1.ContentHash == i2.ContentHash {
		t.Error("source id should be part of the dedup key")
	}
}

func TestUnusableRecord(t *testing.T) {
	n := NewNormalizer()
	src := Source{ID: "council_rss", Category: CategoryHearing}

	_, err := n.Normalize(RawRecord{SummaryHTML: "<p>no title, no url</p>"}, src, testNow)
	if !errors.Is(err, ErrUnusableRecord) {
		t.Errorf("expected ErrUnusableRecord, got %v", err)
	}

	// A bare title is enough to keep the record.
	item, err := n.Normalize(RawRecord{Title: "Untitled hearing notice"}, src, testNow)
	if err != nil {
		t.Fatalf("title-only record should normalize: %v", err)
	}
	if item.ContentHash == "" {
		t.Error("content hash missing")
	}
}

func TestKeywordAllowListDropsRecords(t *testing.T) {
	n := NewNormalizer()
	src := Source{ID: "google_alerts", Category: CategoryPress, Keywords: []string{"council", "ordinance"}}

	_, err := n.Normalize(RawRecord{
		Title: "Local bakery wins award",
		URL:   "https://news.example.com/bakery",
	}, src, testNow)
	if !errors.Is(err, ErrFiltered) {
		t.Errorf("expected ErrFiltered, got %v", err)
	}

	item, err := n.Normalize(RawRecord{
		Title: "Council passes new zoning ordinance",
		URL:   "https://news.example.com/zoning",
	}, src, testNow)
	if err != nil {
		t.Fatalf("matching record should pass: %v", err)
	}
	if item.Category != CategoryPress {
		t.Errorf("Category = %q, want %q", item.Category, CategoryPress)
	}
}

func TestReclassifyPolicy(t *testing.T) {
	rules := []Rule{{Category: CategoryHearing, Terms: []string{"hearing", "committee"}}}
	raw := RawRecord{
		Title: "Public hearing on transit funding",
		URL:   "https://news.example.com/transit",
	}
	src := Source{ID: "google_alerts", Category: CategoryPress}

	keywordWins := NewNormalizer(WithRules(rules), WithKeywordPrecedence(true))
	item, err := keywordWins.Normalize(raw, src, testNow)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if item.Category != CategoryHearing {
		t.Errorf("keyword_wins: Category = %q, want %q", item.Category, CategoryHearing)
	}

	sourceWins := NewNormalizer(WithRules(rules), WithKeywordPrecedence(false))
	item, err = sourceWins.Normalize(raw, src, testNow)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if item.Category != CategoryPress {
		t.Errorf("source_wins: Category = %q, want %q", item.Category, CategoryPress)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"tags removed", "<p>Budget <b>hearing</b> today</p>", "Budget hearing today"},
		{"entities unescaped", "Parks &amp; Recreation", "Parks & Recreation"},
		{"br becomes newline", "line one<br/>line two", "line one\nline two"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.input); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"tracking params stripped",
			"https://Example.com/a?utm_source=x&id=7&gclid=z",
			"https://example.com/a?id=7",
		},
		{"fragment dropped", "https://example.com/a#section", "https://example.com/a"},
		{"relative rejected", "/hearings/42", ""},
		{"garbage rejected", "not a url", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalURL(tt.input); got != tt.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestWhenFallsBackToIngestionTime(t *testing.T) {
	item := Item{IngestedAt: testNow}
	if !item.When().Equal(testNow) {
		t.Errorf("When() = %v, want ingestion time %v", item.When(), testNow)
	}

	published := testNow.Add(-48 * time.Hour)
	item.PublishedAt = published
	if !item.When().Equal(published) {
		t.Errorf("When() = %v, want published time %v", item.When(), published)
	}
}
