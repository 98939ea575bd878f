package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Sources    []SourceConfig   `yaml:"sources"`
	Classify   ClassifyConfig   `yaml:"classify"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Digest     DigestConfig     `yaml:"digest"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Email      EmailConfig      `yaml:"email"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Notify     NotifyConfig     `yaml:"notify"`

	// YouTubeAPIKey is required when any source has kind "youtube".
	YouTubeAPIKey string `yaml:"youtube_api_key"`
	DBPath        string `yaml:"db_path"`
	LogLevel      string `yaml:"log_level"`
}

// SourceConfig declares one feed to collect from.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`     // rss | google_alerts | granicus_rss | youtube
	URL      string `yaml:"url"`      // feed URL for RSS kinds
	Channel  string `yaml:"channel"`  // channel ID for youtube kind
	Category string `yaml:"category"` // declared category for normalized items
	// Keywords is an allow-list for non-official sources. Items matching
	// none of the keywords are dropped during normalization. Empty means
	// keep everything.
	Keywords []string `yaml:"keywords"`
}

// ClassifyConfig controls content-based category reclassification.
type ClassifyConfig struct {
	// Policy decides whether keyword rules may override the category a
	// source declares: "keyword_wins" or "source_wins".
	Policy string         `yaml:"policy"`
	Rules  []ClassifyRule `yaml:"rules"`
}

// ClassifyRule maps matching terms to a category.
type ClassifyRule struct {
	Category string   `yaml:"category"`
	Terms    []string `yaml:"terms"`
}

// RankingConfig controls item scoring.
type RankingConfig struct {
	CategoryWeights map[string]float64 `yaml:"category_weights"`
	BoostTerms      []string           `yaml:"boost_terms"`
	BoostAmount     float64            `yaml:"boost_amount"`
	HalfLifeHours   float64            `yaml:"half_life_hours"`
}

// DigestConfig controls per-subscriber assembly.
type DigestConfig struct {
	WindowDays    int      `yaml:"window_days"`
	MaxItems      int      `yaml:"max_items"`
	MaxHighlights int      `yaml:"max_highlights"`
	CategoryOrder []string `yaml:"category_order"`
}

// DirectoryConfig points at the external subscriber directory.
type DirectoryConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SummarizerConfig controls the optional AI brief.
type SummarizerConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	MaxBullets  int    `yaml:"max_bullets"`
	MaxItems    int    `yaml:"max_items"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmailConfig controls digest delivery.
type EmailConfig struct {
	SMTPHost        string `yaml:"smtp_host"`
	SMTPPort        int    `yaml:"smtp_port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	From            string `yaml:"from"`
	FromName        string `yaml:"from_name"`
	SubjectPrefix   string `yaml:"subject_prefix"`
	UnsubscribeBase string `yaml:"unsubscribe_base"`
	// TestTo routes every digest of a run to a single address when set
	// together with TestOnly.
	TestTo   string `yaml:"test_to"`
	TestOnly bool   `yaml:"test_only"`
}

// ScheduleConfig controls when collection and digest runs happen.
type ScheduleConfig struct {
	CollectSpec string `yaml:"collect_spec"`
	DigestSpec  string `yaml:"digest_spec"`
	Timezone    string `yaml:"timezone"`
	RunOnStart  bool   `yaml:"run_on_start"`
}

// NotifyConfig enables operator run reports over Telegram when both
// fields are set.
type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChatID        int64  `yaml:"chat_id"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from a YAML file, expands ${VAR} references
// from the environment, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarRegex.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("COUNCIL_DIGEST_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.Ranking.CategoryWeights == nil {
		cfg.Ranking.CategoryWeights = map[string]float64{
			"official-hearing": 3.0,
			"video":            2.0,
			"press-mention":    1.5,
			"other":            1.0,
		}
	}
	if cfg.Ranking.BoostAmount == 0 {
		cfg.Ranking.BoostAmount = 2.0
	}
	if cfg.Ranking.HalfLifeHours == 0 {
		cfg.Ranking.HalfLifeHours = 72
	}
	if cfg.Digest.WindowDays == 0 {
		cfg.Digest.WindowDays = 7
	}
	if cfg.Digest.MaxItems == 0 {
		cfg.Digest.MaxItems = 15
	}
	if cfg.Digest.MaxHighlights == 0 {
		cfg.Digest.MaxHighlights = 3
	}
	if len(cfg.Digest.CategoryOrder) == 0 {
		cfg.Digest.CategoryOrder = []string{
			"official-hearing", "video", "press-mention", "other",
		}
	}
	if cfg.Classify.Policy == "" {
		cfg.Classify.Policy = "keyword_wins"
	}
	if cfg.Directory.TimeoutSecs == 0 {
		cfg.Directory.TimeoutSecs = 20
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "gemini-2.0-flash-lite"
	}
	if cfg.Summarizer.MaxBullets == 0 {
		cfg.Summarizer.MaxBullets = 5
	}
	if cfg.Summarizer.MaxItems == 0 {
		cfg.Summarizer.MaxItems = 40
	}
	if cfg.Summarizer.TimeoutSecs == 0 {
		cfg.Summarizer.TimeoutSecs = 60
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Email.SubjectPrefix == "" {
		cfg.Email.SubjectPrefix = "Council Weekly Digest"
	}
	if cfg.Schedule.CollectSpec == "" {
		cfg.Schedule.CollectSpec = "0 */6 * * *"
	}
	if cfg.Schedule.DigestSpec == "" {
		cfg.Schedule.DigestSpec = "0 8 * * MON"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./council-digest.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

var validCategories = map[string]bool{
	"official-hearing": true,
	"video":            true,
	"press-mention":    true,
	"other":            true,
}

func validate(cfg *Config) error {
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool)
	hasYouTube := false
	for i, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		switch src.Kind {
		case "rss", "google_alerts", "granicus_rss":
			if src.URL == "" {
				return fmt.Errorf("source %q: url is required for kind %q", src.ID, src.Kind)
			}
		case "youtube":
			hasYouTube = true
			if src.Channel == "" {
				return fmt.Errorf("source %q: channel is required for kind youtube", src.ID)
			}
		default:
			return fmt.Errorf("source %q: unknown kind %q", src.ID, src.Kind)
		}
		if !validCategories[src.Category] {
			return fmt.Errorf("source %q: invalid category %q", src.ID, src.Category)
		}
	}
	if hasYouTube && cfg.YouTubeAPIKey == "" {
		return fmt.Errorf("youtube_api_key is required when a youtube source is configured")
	}
	switch cfg.Classify.Policy {
	case "keyword_wins", "source_wins":
	default:
		return fmt.Errorf("classify.policy must be keyword_wins or source_wins, got %q", cfg.Classify.Policy)
	}
	for i, rule := range cfg.Classify.Rules {
		if !validCategories[rule.Category] {
			return fmt.Errorf("classify.rules[%d]: invalid category %q", i, rule.Category)
		}
		if len(rule.Terms) == 0 {
			return fmt.Errorf("classify.rules[%d]: at least one term is required", i)
		}
	}
	for _, cat := range cfg.Digest.CategoryOrder {
		if !validCategories[cat] {
			return fmt.Errorf("digest.category_order: invalid category %q", cat)
		}
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Schedule.Timezone, err)
	}
	return nil
}
