package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"council-digest/config"
	"council-digest/normalize"
)

var collectNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type fakeFeeds struct {
	records map[string][]normalize.RawRecord
	errs    map[string]error
}

func (f *fakeFeeds) Fetch(ctx context.Context, feedURL, kind string) ([]normalize.RawRecord, error) {
	if err := f.errs[feedURL]; err != nil {
		return nil, err
	}
	return f.records[feedURL], nil
}

type fakeVideos struct {
	records []normalize.RawRecord
}

func (f *fakeVideos) Fetch(ctx context.Context, channelID string) ([]normalize.RawRecord, error) {
	return f.records, nil
}

type fakeExcerpts struct {
	text string
	err  error
}

func (f *fakeExcerpts) Excerpt(ctx context.Context, url string) (string, error) {
	return f.text, f.err
}

type memStore struct {
	mu    sync.Mutex
	items map[string]*normalize.Item
	err   error
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]*normalize.Item)}
}

func (s *memStore) InsertItem(ctx context.Context, item *normalize.Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.items[item.ContentHash]; ok {
		return false, nil
	}
	s.items[item.ContentHash] = item
	return true, nil
}

func record(id, title, url string) normalize.RawRecord {
	return normalize.RawRecord{
		SourceItemID: id,
		Title:        title,
		URL:          url,
		Published:    collectNow.Add(-time.Hour),
	}
}

func TestRunCollectsAllSources(t *testing.T) {
	feeds := &fakeFeeds{records: map[string][]normalize.RawRecord{
		"https://a.example.com/rss": {
			record("1", "Hearing one", "https://a.example.com/1"),
			record("2", "Hearing two", "https://a.example.com/2"),
		},
		"https://b.example.com/rss": {
			record("3", "Press story", "https://b.example.com/3"),
		},
	}}
	store := newMemStore()
	c := New([]config.SourceConfig{
		{ID: "cal", Kind: "rss", URL: "https://a.example.com/rss", Category: normalize.CategoryHearing},
		{ID: "news", Kind: "rss", URL: "https://b.example.com/rss", Category: normalize.CategoryPress},
	}, feeds, nil, nil, normalize.NewNormalizer(), store)

	stats := c.Run(context.Background(), collectNow)

	if stats.Sources != 2 || stats.SourceErrors != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Fetched != 3 || stats.New != 3 {
		t.Errorf("stats = %+v, want 3 fetched and 3 new", stats)
	}
	if len(store.items) != 3 {
		t.Errorf("store has %d items, want 3", len(store.items))
	}
}

func TestRunSourceFailureIsolated(t *testing.T) {
	feeds := &fakeFeeds{
		records: map[string][]normalize.RawRecord{
			"https://ok.example.com/rss": {record("1", "Hearing", "https://ok.example.com/1")},
		},
		errs: map[string]error{
			"https://down.example.com/rss": errors.New("connection refused"),
		},
	}
	store := newMemStore()
	c := New([]config.SourceConfig{
		{ID: "down", Kind: "rss", URL: "https://down.example.com/rss", Category: normalize.CategoryHearing},
		{ID: "ok", Kind: "rss", URL: "https://ok.example.com/rss", Category: normalize.CategoryHearing},
	}, feeds, nil, nil, normalize.NewNormalizer(), store)

	stats := c.Run(context.Background(), collectNow)

	if stats.SourceErrors != 1 {
		t.Errorf("source errors = %d, want 1", stats.SourceErrors)
	}
	if stats.New != 1 {
		t.Errorf("new = %d, the healthy source must still be ingested", stats.New)
	}
}

func TestRunCountsDuplicates(t *testing.T) {
	feeds := &fakeFeeds{records: map[string][]normalize.RawRecord{
		"https://a.example.com/rss": {
			record("1", "Hearing", "https://a.example.com/1"),
			record("1b", "Hearing repost", "https://a.example.com/1?utm_source=feed"),
		},
	}}
	store := newMemStore()
	c := New([]config.SourceConfig{
		{ID: "cal", Kind: "rss", URL: "https://a.example.com/rss", Category: normalize.CategoryHearing},
	}, feeds, nil, nil, normalize.NewNormalizer(), store)

	stats := c.Run(context.Background(), collectNow)

	if stats.New != 1 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v, want tracking-param variant deduplicated", stats)
	}
}

func TestRunCountsFilteredAndUnusable(t *testing.T) {
	feeds := &fakeFeeds{records: map[string][]normalize.RawRecord{
		"https://n.example.com/rss": {
			record("1", "City council passes budget", "https://n.example.com/1"),
			record("2", "Celebrity gossip roundup", "https://n.example.com/2"),
			{SourceItemID: "3"},
		},
	}}
	store := newMemStore()
	c := New([]config.SourceConfig{
		{ID: "news", Kind: "rss", URL: "https://n.example.com/rss",
			Category: normalize.CategoryPress, Keywords: []string{"council"}},
	}, feeds, nil, nil, normalize.NewNormalizer(), store)

	stats := c.Run(context.Background(), collectNow)

	if stats.New != 1 {
		t.Errorf("new = %d, want 1", stats.New)
	}
	if stats.Filtered != 1 {
		t.Errorf("filtered = %d, want the off-topic record dropped", stats.Filtered)
	}
	if stats.Unusable != 1 {
		t.Errorf("unusable = %d, want the empty record counted", stats.Unusable)
	}
}

func TestRunYouTubeSource(t *testing.T) {
	videos := &fakeVideos{records: []normalize.RawRecord{
		record("vid1", "Council session replay", "https://www.youtube.com/watch?v=vid1"),
	}}
	store := newMemStore()
	c := New([]config.SourceConfig{
		{ID: "streams", Kind: "youtube", Channel: "UCcouncil", Category: normalize.CategoryVideo},
	}, &fakeFeeds{}, videos, nil, normalize.NewNormalizer(), store)

	stats := c.Run(context.Background(), collectNow)

	if stats.New != 1 {
		t.Errorf("new = %d, want 1", stats.New)
	}
	for _, item := range store.items {
		if item.Category != normalize.CategoryVideo {
			t.Errorf("category = %q", item.Category)
		}
	}
}

func TestRunYouTubeWithoutFetcher(t *testing.T) {
	store := newMemStore()
	c := New([]config.SourceConfig{
		{ID: "streams", Kind: "youtube", Channel: "UCcouncil", Category: normalize.CategoryVideo},
	}, &fakeFeeds{}, nil, nil, normalize.NewNormalizer(), store)

	stats := c.Run(context.Background(), collectNow)
	if stats.SourceErrors != 1 {
		t.Errorf("source errors = %d, want 1", stats.SourceErrors)
	}
}

func TestRunFillsMissingPressExcerpt(t *testing.T) {
	feeds := &fakeFeeds{records: map[string][]normalize.RawRecord{
		"https://n.example.com/rss": {record("1", "Council story", "https://n.example.com/1")},
	}}
	store := newMemStore()
	excerpts := &fakeExcerpts{text: "The council voted 7-2 on Tuesday."}
	c := New([]config.SourceConfig{
		{ID: "news", Kind: "rss", URL: "https://n.example.com/rss", Category: normalize.CategoryPress},
	}, feeds, nil, excerpts, normalize.NewNormalizer(), store)

	c.Run(context.Background(), collectNow)

	for _, item := range store.items {
		if item.Excerpt != "The council voted 7-2 on Tuesday." {
			t.Errorf("excerpt = %q, want the scraped text", item.Excerpt)
		}
	}
}

func TestRunExcerptFailureIsBestEffort(t *testing.T) {
	feeds := &fakeFeeds{records: map[string][]normalize.RawRecord{
		"https://n.example.com/rss": {record("1", "Council story", "https://n.example.com/1")},
	}}
	store := newMemStore()
	excerpts := &fakeExcerpts{err: errors.New("page timed out")}
	c := New([]config.SourceConfig{
		{ID: "news", Kind: "rss", URL: "https://n.example.com/rss", Category: normalize.CategoryPress},
	}, feeds, nil, excerpts, normalize.NewNormalizer(), store)

	stats := c.Run(context.Background(), collectNow)

	if stats.New != 1 {
		t.Errorf("new = %d, item must still be stored without an excerpt", stats.New)
	}
}
