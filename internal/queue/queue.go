package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/newswire-bots/newsrelay/internal/domain"
	"github.com/newswire-bots/newsrelay/internal/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// payloadField is the stream entry field carrying the serialized post.
	payloadField = "data"
	// deadLetterSuffix names the stream receiving permanently failed posts.
	deadLetterSuffix = ":dead"

	connectTimeout = 5 * time.Second
)

// ErrNoData indicates a blocking read returned without a message.
var ErrNoData = errors.New("no new messages in stream")

// Service provides producer and consumer access to a Redis stream. Delivery
// is at-least-once per consumer group; entries are auto-acknowledged on read
// (NOACK), so a consumer crash between read and publish loses that message.
type Service struct {
	client *redis.Client
	log    logger.Logger
}

// New connects to Redis and verifies the connection. A connection failure is
// an unrecoverable startup condition for the caller.
func New(connString string, log logger.Logger) (*Service, error) {
	opts, err := redis.ParseURL(connString)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{client: client, log: log}, nil
}

// Client exposes the underlying connection so the dedup store on the same
// process side can share it.
func (s *Service) Client() *redis.Client { return s.client }

// Close releases the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Publish appends the serialized post to the named stream and reports
// whether the append succeeded. Failures are logged, not escalated; the
// caller decides whether to mark the post as handled.
func (s *Service) Publish(ctx context.Context, stream string, post domain.NewsPost) bool {
	payload, err := json.Marshal(post)
	if err != nil {
		s.log.ErrorObj("failed to serialize post for stream", "queue_error", map[string]any{
			"stream": stream,
			"title":  post.Title,
			"error":  err.Error(),
		})
		return false
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: string(payload)},
	}).Err()
	if err != nil {
		s.log.ErrorObj("failed to publish post to stream", "queue_error", map[string]any{
			"stream": stream,
			"title":  post.Title,
			"error":  err.Error(),
		})
		return false
	}
	return true
}

// CreateGroup creates a consumer group on the stream, creating the stream if
// it does not exist yet. Use IsGroupExists to detect the idempotent-startup
// case where the group was already created.
func (s *Service) CreateGroup(ctx context.Context, stream, group, startID string) error {
	if err := s.client.XGroupCreateMkStream(ctx, stream, group, startID).Err(); err != nil {
		return fmt.Errorf("create group %s for stream %s: %w", group, stream, err)
	}
	return nil
}

// IsGroupExists reports whether the error is Redis' BUSYGROUP reply, i.e.
// the consumer group already exists. Startup treats it as a warning.
func IsGroupExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// ReadNext blocks up to block waiting for the next message delivered to this
// consumer within the group. It returns ErrNoData when the timeout elapses
// without data. A payload that fails to deserialize is surfaced as an error
// for that read; corrupted data will not fix itself on retry.
func (s *Service) ReadNext(ctx context.Context, stream, group, consumer string, block time.Duration) (*domain.NewsPost, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
		NoAck:    true,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}

	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, ErrNoData
	}

	msg := res[0].Messages[0]
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return nil, fmt.Errorf("stream %s entry %s has no %q field", stream, msg.ID, payloadField)
	}

	var post domain.NewsPost
	if err := json.Unmarshal([]byte(raw), &post); err != nil {
		return nil, fmt.Errorf("decode stream %s entry %s: %w", stream, msg.ID, err)
	}
	return &post, nil
}

// DeadLetter appends a permanently failed post to the stream's dead-letter
// sibling so failed publishes are inspectable instead of silently dropped.
func (s *Service) DeadLetter(ctx context.Context, stream string, post domain.NewsPost, reason string) {
	payload, err := json.Marshal(post)
	if err != nil {
		s.log.ErrorObj("failed to serialize post for dead-letter stream", "queue_error", map[string]any{
			"stream": stream + deadLetterSuffix,
			"title":  post.Title,
			"error":  err.Error(),
		})
		return
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream + deadLetterSuffix,
		Values: map[string]any{payloadField: string(payload), "reason": reason},
	}).Err()
	if err != nil {
		s.log.ErrorObj("failed to dead-letter post", "queue_error", map[string]any{
			"stream": stream + deadLetterSuffix,
			"title":  post.Title,
			"error":  err.Error(),
		})
	}
}
