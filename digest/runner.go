package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"council-digest/directory"
	"council-digest/normalize"
	"council-digest/ranker"
	"council-digest/summarizer"
)

// Store supplies the window of candidate items.
type Store interface {
	ItemsSince(ctx context.Context, cutoff time.Time) ([]normalize.Item, error)
}

// Directory supplies the active subscribers for a run.
type Directory interface {
	ActiveSubscribers(ctx context.Context) ([]directory.Subscriber, error)
}

// Summarizer turns digest items into a cited prose brief.
type Summarizer interface {
	Summarize(ctx context.Context, items []normalize.Item, interests string) (*summarizer.Summary, error)
}

// Sender renders and transmits one subscriber's digest. The summary is
// nil when summarization was unavailable.
type Sender interface {
	Send(ctx context.Context, sub directory.Subscriber, payload *Payload, summary *summarizer.Summary) error
}

// Notifier receives the run report. Optional.
type Notifier interface {
	NotifyRun(ctx context.Context, stats RunStats)
}

// RunStats summarizes one digest run.
type RunStats struct {
	WindowStart     time.Time
	WindowEnd       time.Time
	TotalCandidates int
	Subscribers     int
	Sent            int
	SendFailures    int
	SummaryFailures int
}

// Runner orchestrates a full digest run: load the window, rank once,
// then assemble, summarize, and send per subscriber. Per-subscriber
// work is independent; one bad recipient never aborts the rest.
type Runner struct {
	store          Store
	dir            Directory
	ranker         *ranker.Ranker
	assembler      *Assembler
	summarizer     Summarizer
	sender         Sender
	notifier       Notifier
	window         time.Duration
	summaryTimeout time.Duration
	summaryItems   int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWindow sets the trailing window length.
func WithWindow(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.window = d
	}
}

// WithSummaryTimeout bounds each summarization call.
func WithSummaryTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.summaryTimeout = d
	}
}

// WithSummaryItems caps how many top-ranked items the summarizer sees.
func WithSummaryItems(n int) RunnerOption {
	return func(r *Runner) {
		r.summaryItems = n
	}
}

// WithNotifier attaches an operator notifier.
func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) {
		r.notifier = n
	}
}

// NewRunner creates a digest runner.
func NewRunner(
	store Store,
	dir Directory,
	rnk *ranker.Ranker,
	assembler *Assembler,
	summ Summarizer,
	sender Sender,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		store:          store,
		dir:            dir,
		ranker:         rnk,
		assembler:      assembler,
		summarizer:     summ,
		sender:         sender,
		window:         7 * 24 * time.Hour,
		summaryTimeout: 60 * time.Second,
		summaryItems:   40,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one digest run at the given instant. It fails only when
// the store or the subscriber directory is unreachable; everything
// else degrades per subscriber.
func (r *Runner) Run(ctx context.Context, now time.Time) (RunStats, error) {
	window := Window{Start: now.Add(-r.window), End: now}
	stats := RunStats{WindowStart: window.Start, WindowEnd: window.End}

	items, err := r.store.ItemsSince(ctx, window.Start)
	if err != nil {
		return stats, fmt.Errorf("load window items: %w", err)
	}

	// The store bounds the window from below; drop anything past its
	// end, such as feed entries announcing a hearing scheduled after
	// this run.
	inWindow := items[:0]
	for _, it := range items {
		if !it.When().After(window.End) {
			inWindow = append(inWindow, it)
		}
	}

	ranked := r.ranker.Rank(inWindow, now)
	stats.TotalCandidates = len(ranked)
	slog.Info("ranked window items", "candidates", len(ranked),
		"window_start", window.Start, "window_end", window.End)

	subs, err := r.dir.ActiveSubscribers(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetch subscribers: %w", err)
	}
	stats.Subscribers = len(subs)

	if len(subs) == 0 {
		slog.Info("no active subscribers, nothing to send")
		r.notify(ctx, stats)
		return stats, nil
	}

	for _, sub := range subs {
		payload := r.assembler.Assemble(sub, ranked, window)
		if len(payload.Items) == 0 {
			slog.Info("empty digest, skipping subscriber", "email", sub.Email)
			continue
		}

		summary := r.summarize(ctx, sub, ranked)
		if summary == nil && r.summarizer != nil {
			stats.SummaryFailures++
		}

		if err := r.sender.Send(ctx, sub, payload, summary); err != nil {
			stats.SendFailures++
			slog.Warn("send failed", "email", sub.Email, "error", err)
			continue
		}
		stats.Sent++
		slog.Info("digest sent", "email", sub.Email, "items", len(payload.Items))
	}

	slog.Info("digest run complete", "sent", stats.Sent,
		"send_failures", stats.SendFailures, "summary_failures", stats.SummaryFailures)
	r.notify(ctx, stats)
	return stats, nil
}

// summarize requests the prose brief for one subscriber with a bounded
// timeout. Failure returns nil; the digest still goes out without it.
func (r *Runner) summarize(ctx context.Context, sub directory.Subscriber, ranked []ranker.RankedItem) *summarizer.Summary {
	if r.summarizer == nil {
		return nil
	}

	top := ranked
	if len(top) > r.summaryItems {
		top = top[:r.summaryItems]
	}
	items := make([]normalize.Item, len(top))
	for i, ri := range top {
		items[i] = ri.Item
	}

	sctx, cancel := context.WithTimeout(ctx, r.summaryTimeout)
	defer cancel()

	summary, err := r.summarizer.Summarize(sctx, items, sub.FreeTextInterest)
	if err != nil {
		if errors.Is(err, summarizer.ErrSummaryUnavailable) {
			slog.Warn("summary unavailable, sending digest without brief",
				"email", sub.Email, "error", err)
		} else {
			slog.Warn("summarize failed", "email", sub.Email, "error", err)
		}
		return nil
	}
	return summary
}

func (r *Runner) notify(ctx context.Context, stats RunStats) {
	if r.notifier != nil {
		r.notifier.NotifyRun(ctx, stats)
	}
}
