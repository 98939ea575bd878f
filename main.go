package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"council-digest/collector"
	"council-digest/config"
	"council-digest/digest"
	"council-digest/directory"
	"council-digest/feed"
	"council-digest/mailer"
	"council-digest/normalize"
	"council-digest/notify"
	"council-digest/ranker"
	"council-digest/scheduler"
	"council-digest/scraper"
	"council-digest/storage"
	"council-digest/summarizer"
)

func main() {
	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	slog.Info("starting council-digest", "sources", len(cfg.Sources))

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Ingestion side.
	feedClient := feed.NewClient()
	var videoClient collector.VideoFetcher
	if cfg.YouTubeAPIKey != "" {
		videoClient = feed.NewYouTubeClient(cfg.YouTubeAPIKey)
	}
	excerptScraper := scraper.NewScraper()

	rules := make([]normalize.Rule, len(cfg.Classify.Rules))
	for i, r := range cfg.Classify.Rules {
		rules[i] = normalize.Rule{Category: r.Category, Terms: r.Terms}
	}
	normalizer := normalize.NewNormalizer(
		normalize.WithRules(rules),
		normalize.WithKeywordPrecedence(cfg.Classify.Policy == "keyword_wins"),
	)

	ingest := collector.New(cfg.Sources, feedClient, videoClient, excerptScraper, normalizer, db)

	// Digest side.
	dirClient := directory.NewClient(
		cfg.Directory.BaseURL,
		cfg.Directory.APIKey,
		directory.WithTimeout(time.Duration(cfg.Directory.TimeoutSecs)*time.Second),
	)
	var dir digest.Directory = dirClient
	if cfg.Email.TestOnly && cfg.Email.TestTo != "" {
		slog.Info("test-only mode enabled", "to", cfg.Email.TestTo)
		dir = testModeDirectory{to: cfg.Email.TestTo}
	}

	var summ digest.Summarizer
	if cfg.Summarizer.APIKey != "" {
		summ = summarizer.NewSummarizer(
			cfg.Summarizer.APIKey,
			summarizer.WithModel(cfg.Summarizer.Model),
			summarizer.WithMaxBullets(cfg.Summarizer.MaxBullets),
			summarizer.WithTimeout(time.Duration(cfg.Summarizer.TimeoutSecs)*time.Second),
		)
	}

	sender := mailer.NewMailer(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
		cfg.Email.FromName,
		cfg.Email.SubjectPrefix,
		cfg.Email.UnsubscribeBase,
	)

	rnk := ranker.NewRanker(
		ranker.WithCategoryWeights(cfg.Ranking.CategoryWeights),
		ranker.WithBoostTerms(cfg.Ranking.BoostTerms, cfg.Ranking.BoostAmount),
		ranker.WithHalfLife(time.Duration(cfg.Ranking.HalfLifeHours)*time.Hour),
	)
	assembler := digest.NewAssembler(
		digest.WithMaxItems(cfg.Digest.MaxItems),
		digest.WithMaxHighlights(cfg.Digest.MaxHighlights),
		digest.WithCategoryOrder(cfg.Digest.CategoryOrder),
	)

	runnerOpts := []digest.RunnerOption{
		digest.WithWindow(time.Duration(cfg.Digest.WindowDays) * 24 * time.Hour),
		digest.WithSummaryTimeout(time.Duration(cfg.Summarizer.TimeoutSecs) * time.Second),
		digest.WithSummaryItems(cfg.Summarizer.MaxItems),
	}

	notifier, err := notify.NewNotifier(cfg.Notify.TelegramToken, cfg.Notify.ChatID)
	if err != nil {
		slog.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	if notifier != nil {
		runnerOpts = append(runnerOpts, digest.WithNotifier(notifier))
	}

	runner := digest.NewRunner(db, dir, rnk, assembler, summ, sender, runnerOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	collectJob := func() {
		stats := ingest.Run(ctx, time.Now().UTC())
		notifier.NotifyIngest(ctx, stats)
	}
	digestJob := func() {
		if _, err := runner.Run(ctx, time.Now().UTC()); err != nil {
			slog.Error("digest run failed", "error", err)
		}
	}

	sched, err := scheduler.NewScheduler(cfg.Schedule.Timezone)
	if err != nil {
		slog.Error("failed to initialize scheduler", "timezone", cfg.Schedule.Timezone, "error", err)
		os.Exit(1)
	}
	if err := sched.Schedule("collect", cfg.Schedule.CollectSpec, collectJob); err != nil {
		slog.Error("failed to schedule collection", "error", err)
		os.Exit(1)
	}
	if err := sched.Schedule("digest", cfg.Schedule.DigestSpec, digestJob); err != nil {
		slog.Error("failed to schedule digest", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()
	slog.Info("scheduled", "collect", cfg.Schedule.CollectSpec,
		"digest", cfg.Schedule.DigestSpec, "timezone", cfg.Schedule.Timezone)

	if cfg.Schedule.RunOnStart {
		collectJob()
		digestJob()
	}

	<-ctx.Done()
	slog.Info("shutting down")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// testModeDirectory routes a whole run to a single address, standing
// in for the real directory when test-only mode is on.
type testModeDirectory struct {
	to string
}

func (d testModeDirectory) ActiveSubscribers(context.Context) ([]directory.Subscriber, error) {
	return []directory.Subscriber{{
		Email:            d.to,
		Active:           true,
		UnsubscribeToken: "TESTTOKEN",
	}}, nil
}
