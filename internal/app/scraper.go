package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newswire-bots/newsrelay/internal/config"
	"github.com/newswire-bots/newsrelay/internal/dedup"
	"github.com/newswire-bots/newsrelay/internal/domain"
	"github.com/newswire-bots/newsrelay/internal/logger"
	"github.com/newswire-bots/newsrelay/internal/queue"
	"github.com/newswire-bots/newsrelay/pkg/scrape"
)

// Scraper is the producer-side runtime. It periodically scrapes all
// configured sources, filters the candidates for completeness, dedups them
// by fingerprint, and enqueues the survivors on the news stream.
type Scraper struct {
	cfg     *config.Config
	sources []scrape.Source
	engine  *scrape.Engine
	queue   *queue.Service
	store   dedup.Store
	log     logger.Logger
}

// NewScraper builds a scraper runtime from config.
func NewScraper(cfg *config.Config, log logger.Logger) (*Scraper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	sources, err := scrape.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	sourceIDs := make([]string, 0, len(sources))
	for _, s := range sources {
		sourceIDs = append(sourceIDs, s.ID)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(sourceIDs),
		"ids":   sourceIDs,
	})

	q, err := queue.New(cfg.RedisURL, log)
	if err != nil {
		return nil, fmt.Errorf("init queue: %w", err)
	}

	store, err := dedup.NewStore(cfg.DedupBackend, cfg.BBoltPath, q.Client(), dedup.Options{}, log)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("init dedup store: %w", err)
	}
	log.InfoObj("dedup store initialized", "dedup_config", map[string]any{
		"backend":     cfg.DedupBackend,
		"ttl_seconds": int(cfg.DedupTTL.Seconds()),
	})

	return &Scraper{
		cfg:     cfg,
		sources: sources,
		engine:  scrape.NewEngine(nil),
		queue:   q,
		store:   store,
		log:     log,
	}, nil
}

// Run starts the scrape loop until the context is cancelled.
func (s *Scraper) Run(ctx context.Context) error {
	if s == nil || s.queue == nil {
		return fmt.Errorf("scraper is not initialized")
	}
	defer s.close()

	s.log.InfoObj("scrape loop starting", "scraper_state", map[string]any{
		"sources_count":   len(s.sources),
		"stream":          s.cfg.StreamName,
		"scrape_interval": s.cfg.ScrapeInterval.String(),
	})

	s.runOnce(ctx)

	ticker := time.NewTicker(s.cfg.ScrapeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.InfoObj("scrape loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce scrapes every source concurrently, joins the jobs, and enqueues
// the complete, unseen posts. Source failures are logged and do not abort
// the tick.
func (s *Scraper) runOnce(ctx context.Context) {
	start := time.Now()

	results := make(chan scrapeResult, len(s.sources))
	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func(src scrape.Source) {
			defer wg.Done()
			// Per-source politeness delay before hitting the site.
			select {
			case <-ctx.Done():
				results <- scrapeResult{source: src, err: ctx.Err()}
				return
			case <-time.After(src.RequestDelay()):
			}
			posts, err := s.engine.Fetch(ctx, src)
			results <- scrapeResult{source: src, posts: posts, err: err}
		}(src)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	enqueued := 0
	for res := range results {
		if res.err != nil {
			s.log.ErrorObj("source scrape failed", "scrape_error", map[string]any{
				"source_id": res.source.ID,
				"error":     res.err.Error(),
			})
			continue
		}
		enqueued += s.enqueue(ctx, res)
	}

	s.log.InfoObj("scrape tick completed", "scrape_meta", map[string]any{
		"sources_count": len(s.sources),
		"enqueued":      enqueued,
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
}

// enqueue filters one source's candidates and appends the survivors to the
// stream, marking each fingerprint after a successful append.
func (s *Scraper) enqueue(ctx context.Context, res scrapeResult) int {
	enqueued := 0
	for _, post := range res.posts {
		if !post.IsComplete() {
			continue
		}

		fingerprint := s.cfg.StreamName + ":" + post.Fingerprint()
		if s.store.Seen(ctx, fingerprint) {
			continue
		}

		if s.queue.Publish(ctx, s.cfg.StreamName, post) {
			s.store.Mark(ctx, fingerprint, s.cfg.DedupTTL)
			enqueued++
			s.log.DebugObj("post enqueued", "post_title", post.Title)
		}
	}
	return enqueued
}

// close releases the dedup store and the queue connection, logging failures.
func (s *Scraper) close() {
	if err := s.store.Close(); err != nil {
		s.log.ErrorObj("dedup store close failed", "error", err)
	}
	if err := s.queue.Close(); err != nil {
		s.log.ErrorObj("queue close failed", "error", err)
	}
}

type scrapeResult struct {
	source scrape.Source
	posts  []domain.NewsPost
	err    error
}
