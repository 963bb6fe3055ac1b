package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StreamName != "news" {
		t.Errorf("expected default stream name news, got %q", cfg.StreamName)
	}
	if cfg.ScrapeInterval != time.Hour {
		t.Errorf("expected default scrape interval 1h, got %s", cfg.ScrapeInterval)
	}
	if cfg.Pacing != time.Minute {
		t.Errorf("expected default pacing 1m, got %s", cfg.Pacing)
	}
	if cfg.DedupTTL != 14*24*time.Hour {
		t.Errorf("expected default dedup TTL 14d, got %s", cfg.DedupTTL)
	}
	if cfg.DedupBackend != "redis" {
		t.Errorf("expected default dedup backend redis, got %q", cfg.DedupBackend)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STREAM_NAME", "breaking")
	t.Setenv("PACING_SECONDS", "5")
	t.Setenv("MASTODON_ACCESS_TOKEN", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StreamName != "breaking" {
		t.Errorf("expected stream name from env, got %q", cfg.StreamName)
	}
	if cfg.Pacing != 5*time.Second {
		t.Errorf("expected pacing 5s, got %s", cfg.Pacing)
	}
	if cfg.MastodonAccessToken != "secret" {
		t.Errorf("expected mastodon token from env")
	}
}

func TestLoadRejectsInvalidIntervals(t *testing.T) {
	t.Setenv("SCRAPE_INTERVAL", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero scrape_interval")
	}
}

func TestLoadRejectsNegativePacing(t *testing.T) {
	t.Setenv("PACING_SECONDS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative pacing_seconds")
	}
}
