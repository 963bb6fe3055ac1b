package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	RedisURL      string `mapstructure:"redis_url"`
	StreamName    string `mapstructure:"stream_name"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	ConsumerName  string `mapstructure:"consumer_name"`

	ScrapeIntervalSeconds int64         `mapstructure:"scrape_interval"`
	ScrapeInterval        time.Duration `mapstructure:"-"`
	PacingSeconds         int64         `mapstructure:"pacing_seconds"`
	Pacing                time.Duration `mapstructure:"-"`

	SourcesFile string `mapstructure:"sources_file"`

	DedupBackend    string        `mapstructure:"dedup_backend"`
	BBoltPath       string        `mapstructure:"bbolt_path"`
	DedupTTLSeconds int64         `mapstructure:"dedup_ttl_seconds"`
	DedupTTL        time.Duration `mapstructure:"-"`

	BlueskyHost         string `mapstructure:"bluesky_host"`
	BlueskyHandle       string `mapstructure:"bluesky_handle"`
	BlueskyPassword     string `mapstructure:"bluesky_password"`
	MastodonServer      string `mapstructure:"mastodon_server"`
	MastodonAccessToken string `mapstructure:"mastodon_access_token"`
	MastodonLanguage    string `mapstructure:"mastodon_language"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "newsrelay")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("stream_name", "news")
	v.SetDefault("consumer_group", "news-bots")
	v.SetDefault("consumer_name", "bot-1")
	v.SetDefault("scrape_interval", 3600) // seconds
	v.SetDefault("pacing_seconds", 60)
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("dedup_backend", "redis")
	v.SetDefault("bbolt_path", "./data/dedup.db")
	v.SetDefault("dedup_ttl_seconds", int64((14*24*time.Hour)/time.Second))
	v.SetDefault("bluesky_host", "https://bsky.social")
	v.SetDefault("mastodon_server", "https://mastodon.social")
	v.SetDefault("mastodon_language", "en")

	// AutomaticEnv only resolves keys viper knows about; credentials have no
	// meaningful default but still need to be registered.
	v.SetDefault("bluesky_handle", "")
	v.SetDefault("bluesky_password", "")
	v.SetDefault("mastodon_access_token", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.StreamName == "" {
		return nil, fmt.Errorf("stream_name must not be empty")
	}
	if cfg.ConsumerGroup == "" || cfg.ConsumerName == "" {
		return nil, fmt.Errorf("consumer_group and consumer_name must not be empty")
	}

	if cfg.ScrapeIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid scrape_interval (must be positive seconds)")
	}
	cfg.ScrapeInterval = time.Duration(cfg.ScrapeIntervalSeconds) * time.Second

	if cfg.PacingSeconds < 0 {
		return nil, fmt.Errorf("invalid pacing_seconds (must not be negative)")
	}
	cfg.Pacing = time.Duration(cfg.PacingSeconds) * time.Second

	if cfg.DedupTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid dedup_ttl_seconds (must be positive seconds)")
	}
	cfg.DedupTTL = time.Duration(cfg.DedupTTLSeconds) * time.Second

	return &cfg, nil
}
