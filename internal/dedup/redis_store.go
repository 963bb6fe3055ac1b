package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/newswire-bots/newsrelay/internal/logger"
	"github.com/redis/go-redis/v9"
)

// redisStore flags fingerprints as plain keys with a native TTL.
type redisStore struct {
	client *redis.Client
	log    logger.Logger
}

// Seen reports whether the fingerprint is flagged. A lookup failure fails
// open: the pipeline keeps ingesting at the cost of a possible duplicate.
func (r *redisStore) Seen(ctx context.Context, fingerprint string) bool {
	err := r.client.Get(ctx, fingerprint).Err()
	if err == nil {
		return true
	}
	if !errors.Is(err, redis.Nil) {
		r.log.WarnObj("dedup lookup failed, treating as not seen", "dedup_error", map[string]any{
			"fingerprint": fingerprint,
			"error":       err.Error(),
		})
	}
	return false
}

// Mark flags the fingerprint for ttl. Losing the flag only risks a future
// duplicate, so failures are logged and swallowed.
func (r *redisStore) Mark(ctx context.Context, fingerprint string, ttl time.Duration) {
	if err := r.client.Set(ctx, fingerprint, "1", ttl).Err(); err != nil {
		r.log.WarnObj("dedup mark failed", "dedup_error", map[string]any{
			"fingerprint": fingerprint,
			"error":       err.Error(),
		})
	}
}

// Close is a no-op; the shared connection is owned by the queue service.
func (r *redisStore) Close() error { return nil }
