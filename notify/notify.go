package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"council-digest/collector"
	"council-digest/digest"
)

// Notifier sends short operator reports to a Telegram chat after
// ingestion and digest runs. Failures are logged and swallowed; the
// pipeline never depends on it.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates a notifier, or returns nil when token or chat ID
// are unset so callers can wire it unconditionally.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	return &Notifier{bot: bot, chatID: chatID}, nil
}

// NotifyRun reports the outcome of a digest run.
func (n *Notifier) NotifyRun(_ context.Context, stats digest.RunStats) {
	if n == nil {
		return
	}
	text := fmt.Sprintf(
		"Digest run %s\nCandidates: %d\nSubscribers: %d\nSent: %d\nSend failures: %d\nSummary failures: %d",
		stats.WindowEnd.Format("2006-01-02"),
		stats.TotalCandidates, stats.Subscribers,
		stats.Sent, stats.SendFailures, stats.SummaryFailures,
	)
	n.sendText(text)
}

// NotifyIngest reports the outcome of an ingestion run.
func (n *Notifier) NotifyIngest(_ context.Context, stats collector.Stats) {
	if n == nil {
		return
	}
	text := fmt.Sprintf(
		"Ingestion run\nSources: %d (failed: %d)\nFetched: %d\nNew: %d\nDuplicates: %d\nFiltered: %d\nUnusable: %d",
		stats.Sources, stats.SourceErrors, stats.Fetched,
		stats.New, stats.Duplicates, stats.Filtered, stats.Unusable,
	)
	n.sendText(text)
}

func (n *Notifier) sendText(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		slog.Warn("operator notification failed", "error", err)
	}
}
