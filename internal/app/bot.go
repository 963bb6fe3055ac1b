package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newswire-bots/newsrelay/internal/config"
	"github.com/newswire-bots/newsrelay/internal/logger"
	"github.com/newswire-bots/newsrelay/internal/queue"
	"github.com/newswire-bots/newsrelay/pkg/publisher"
)

// readBlockTimeout bounds each blocking stream read so the loop observes
// cancellation at iteration boundaries.
const readBlockTimeout = 5 * time.Second

// Bot is the consumer-side runtime. It drains the news stream one message
// at a time into the active platform publisher, pacing between attempts to
// respect platform rate limits.
type Bot struct {
	cfg   *config.Config
	queue *queue.Service
	pub   publisher.Publisher
	log   logger.Logger
}

// NewBot connects to the queue and ensures the consumer group exists. A
// group that already exists is a normal idempotent-startup condition and is
// only logged.
func NewBot(ctx context.Context, cfg *config.Config, pub publisher.Publisher, log logger.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	q, err := queue.New(cfg.RedisURL, log)
	if err != nil {
		return nil, fmt.Errorf("init queue: %w", err)
	}

	if err := q.CreateGroup(ctx, cfg.StreamName, cfg.ConsumerGroup, "0"); err != nil {
		if !queue.IsGroupExists(err) {
			q.Close()
			return nil, err
		}
		log.WarnObj("consumer group already exists", "group", cfg.ConsumerGroup)
	}

	return &Bot{cfg: cfg, queue: q, pub: pub, log: log}, nil
}

// Run drains the stream until the context is cancelled. A single post's
// failure never stops the loop; failed posts are dead-lettered.
func (b *Bot) Run(ctx context.Context) error {
	if b == nil || b.queue == nil {
		return fmt.Errorf("bot is not initialized")
	}
	defer b.queue.Close()

	b.log.InfoObj("consume loop starting", "bot_state", map[string]any{
		"stream":   b.cfg.StreamName,
		"group":    b.cfg.ConsumerGroup,
		"consumer": b.cfg.ConsumerName,
		"pacing":   b.cfg.Pacing.String(),
	})

	for {
		select {
		case <-ctx.Done():
			b.log.InfoObj("consume loop exiting", "reason", ctx.Err())
			return nil
		default:
		}

		post, err := b.queue.ReadNext(ctx, b.cfg.StreamName, b.cfg.ConsumerGroup, b.cfg.ConsumerName, readBlockTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrNoData) || errors.Is(err, context.Canceled) {
				continue
			}
			b.log.ErrorObj("stream read failed", "queue_error", err.Error())
			b.pace(ctx)
			continue
		}

		if err := b.pub.Publish(ctx, *post); err != nil {
			b.log.ErrorObj("publish failed", "publish_error", map[string]any{
				"title": post.Title,
				"error": err.Error(),
			})
			b.queue.DeadLetter(ctx, b.cfg.StreamName, *post, err.Error())
		}

		b.pace(ctx)
	}
}

// pace sleeps the configured interval between publish attempts. It also runs
// after failures so an erroring platform does not turn into a hot loop.
func (b *Bot) pace(ctx context.Context) {
	if b.cfg.Pacing <= 0 {
		return
	}
	timer := time.NewTimer(b.cfg.Pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
