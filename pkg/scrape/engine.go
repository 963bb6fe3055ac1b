package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/newswire-bots/newsrelay/internal/domain"
	"github.com/newswire-bots/newsrelay/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxHTMLBodyBytes = 1 << 20 // 1 MiB
	fetchTimeout     = 15 * time.Second
)

// Engine fetches source pages and extracts NewsPost candidates using the
// source's CSS selectors.
type Engine struct {
	client httpclient.Client
}

// NewEngine constructs an engine with the provided HTTP client (or the
// default retrying one).
func NewEngine(client httpclient.Client) *Engine {
	if client == nil {
		client = httpclient.NewRestyClient(fetchTimeout)
	}
	return &Engine{client: client}
}

// Fetch downloads the source page and extracts candidate posts. Candidates
// may be incomplete; the caller filters on completeness.
func (e *Engine) Fetch(ctx context.Context, src Source) ([]domain.NewsPost, error) {
	resp, err := e.client.Get(ctx, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", src.ID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("source %s returned status %d body: %s", src.ID, resp.StatusCode(), bodySnippet(resp.Body()))
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	return extractPosts(body, src.Selectors)
}

// extractPosts walks every post container in the document and pulls the
// configured fields.
func extractPosts(body []byte, sel Selectors) ([]domain.NewsPost, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var posts []domain.NewsPost
	doc.Find(sel.Post).Each(func(_ int, container *goquery.Selection) {
		var post domain.NewsPost

		if title := container.Find(sel.Title).First(); title.Length() > 0 {
			if href, ok := title.Attr(sel.LinkAttr); ok {
				post.Link = strings.TrimSpace(href)
			}
			if sel.TitleAttr != "" {
				if val, ok := title.Attr(sel.TitleAttr); ok {
					post.Title = strings.TrimSpace(val)
				}
			}
			if post.Title == "" {
				post.Title = strings.TrimSpace(title.Text())
			}
		}
		if sel.Summary != "" {
			if summary := container.Find(sel.Summary).First(); summary.Length() > 0 {
				post.Summary = cleanText(summary.Text())
			}
		}
		if sel.Author != "" {
			if author := container.Find(sel.Author).First(); author.Length() > 0 {
				post.Author = strings.TrimSpace(author.Text())
			}
		}
		if sel.Image != "" && sel.ImageAttr != "" {
			if img := container.Find(sel.Image).First(); img.Length() > 0 {
				if srcAttr, ok := img.Attr(sel.ImageAttr); ok {
					post.Image = strings.TrimSpace(srcAttr)
				}
			}
		}

		posts = append(posts, post)
	})

	return posts, nil
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, " ", " "))
}

func bodySnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
