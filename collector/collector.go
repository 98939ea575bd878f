package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"council-digest/config"
	"council-digest/normalize"
)

// FeedFetcher produces raw records from an RSS/Atom feed URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL, kind string) ([]normalize.RawRecord, error)
}

// VideoFetcher produces raw records from a video channel.
type VideoFetcher interface {
	Fetch(ctx context.Context, channelID string) ([]normalize.RawRecord, error)
}

// ExcerptFetcher fills in a missing excerpt from the article page.
type ExcerptFetcher interface {
	Excerpt(ctx context.Context, url string) (string, error)
}

// Store persists normalized items, dropping already-seen hashes.
type Store interface {
	InsertItem(ctx context.Context, item *normalize.Item) (bool, error)
}

// Stats counts the outcome of one ingestion run.
type Stats struct {
	Sources      int
	SourceErrors int
	Fetched      int
	New          int
	Duplicates   int
	Filtered     int
	Unusable     int
}

// Collector runs ingestion across all configured sources. Sources run
// concurrently; the store's hash uniqueness makes racing inserts safe.
type Collector struct {
	sources    []config.SourceConfig
	feeds      FeedFetcher
	videos     VideoFetcher
	excerpts   ExcerptFetcher
	normalizer *normalize.Normalizer
	store      Store
}

// New creates a collector. The video and excerpt fetchers may be nil
// when no source needs them.
func New(
	sources []config.SourceConfig,
	feeds FeedFetcher,
	videos VideoFetcher,
	excerpts ExcerptFetcher,
	normalizer *normalize.Normalizer,
	store Store,
) *Collector {
	return &Collector{
		sources:    sources,
		feeds:      feeds,
		videos:     videos,
		excerpts:   excerpts,
		normalizer: normalizer,
		store:      store,
	}
}

// Run ingests every configured source once. A failed source is logged
// and skipped; it never aborts the others.
func (c *Collector) Run(ctx context.Context, now time.Time) Stats {
	stats := Stats{Sources: len(c.sources)}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, src := range c.sources {
		wg.Add(1)
		go func(src config.SourceConfig) {
			defer wg.Done()

			srcStats, err := c.collectSource(ctx, src, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.SourceErrors++
				slog.Warn("source collection failed", "source", src.ID, "error", err)
				return
			}
			stats.Fetched += srcStats.Fetched
			stats.New += srcStats.New
			stats.Duplicates += srcStats.Duplicates
			stats.Filtered += srcStats.Filtered
			stats.Unusable += srcStats.Unusable
		}(src)
	}
	wg.Wait()

	slog.Info("ingestion complete", "sources", stats.Sources,
		"source_errors", stats.SourceErrors, "fetched", stats.Fetched,
		"new", stats.New, "duplicates", stats.Duplicates,
		"filtered", stats.Filtered, "unusable", stats.Unusable)
	return stats
}

func (c *Collector) collectSource(ctx context.Context, src config.SourceConfig, now time.Time) (Stats, error) {
	var stats Stats

	var records []normalize.RawRecord
	var err error
	switch src.Kind {
	case "youtube":
		if c.videos == nil {
			return stats, errors.New("no video fetcher configured")
		}
		records, err = c.videos.Fetch(ctx, src.Channel)
	default:
		records, err = c.feeds.Fetch(ctx, src.URL, src.Kind)
	}
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(records)

	meta := normalize.Source{
		ID:       src.ID,
		Category: src.Category,
		Keywords: src.Keywords,
	}

	for _, raw := range records {
		item, err := c.normalizer.Normalize(raw, meta, now)
		switch {
		case errors.Is(err, normalize.ErrUnusableRecord):
			stats.Unusable++
			continue
		case errors.Is(err, normalize.ErrFiltered):
			stats.Filtered++
			continue
		case err != nil:
			slog.Warn("normalize failed", "source", src.ID, "error", err)
			stats.Unusable++
			continue
		}

		// Press mentions often arrive with an empty feed summary;
		// pull a short excerpt from the page itself, best effort.
		if item.Excerpt == "" && item.Category == normalize.CategoryPress && c.excerpts != nil {
			if excerpt, err := c.excerpts.Excerpt(ctx, item.URL); err == nil {
				item.Excerpt = excerpt
			}
		}

		inserted, err := c.store.InsertItem(ctx, item)
		if err != nil {
			slog.Warn("insert failed", "source", src.ID, "hash", item.ContentHash, "error", err)
			continue
		}
		if inserted {
			stats.New++
		} else {
			stats.Duplicates++
		}
	}

	slog.Info("source collected", "source", src.ID, "fetched", stats.Fetched,
		"new", stats.New, "duplicates", stats.Duplicates)
	return stats, nil
}
