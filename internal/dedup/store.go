package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newswire-bots/newsrelay/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Package dedup tracks content fingerprints of already-enqueued posts.

// Store maps a content fingerprint to "already handled", with expiry.
// Seen must fail open: a store outage returns "not seen" so a transient
// outage risks a duplicate publish, never a stalled pipeline. Mark failures
// are logged, not escalated.
type Store interface {
	Seen(ctx context.Context, fingerprint string) bool
	Mark(ctx context.Context, fingerprint string, ttl time.Duration)
	Close() error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	CleanupInterval time.Duration
}

const defaultCleanupInterval = 12 * time.Hour

// NewStore creates the configured dedup backend. The redis backend shares
// the producer-side connection; the bbolt backend keeps a local file.
func NewStore(backend, path string, client *redis.Client, opts Options, log logger.Logger) (Store, error) {
	backend = strings.TrimSpace(strings.ToLower(backend))
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	switch backend {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis dedup backend requires a client")
		}
		return &redisStore{client: client, log: log}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt dedup backend requires a path")
		}
		return openBolt(path, opts, log)
	default:
		return nil, fmt.Errorf("unsupported dedup backend %q", backend)
	}
}

type noopStore struct{}

func (noopStore) Seen(context.Context, string) bool           { return false }
func (noopStore) Mark(context.Context, string, time.Duration) {}
func (noopStore) Close() error                                { return nil }
