package mastodon

import (
	"strings"

	"github.com/newswire-bots/newsrelay/internal/domain"
)

// statusBudget is the character budget for a status on mastodon.social.
const statusBudget = 500

// PartialMediaResponse is the subset of the /api/v2/media response we use.
// See: https://docs.joinmastodon.org/methods/media/#v2
type PartialMediaResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// PostStatusRequest is the request made to post a status.
// See: https://docs.joinmastodon.org/methods/statuses/#create
type PostStatusRequest struct {
	Status     string   `json:"status"`
	Language   string   `json:"language"`
	Visibility string   `json:"visibility"`
	MediaIDs   []string `json:"media_ids"`
}

// PartialPostStatusResponse is the subset of the /api/v1/statuses response we use.
type PartialPostStatusResponse struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"created_at"`
	Visibility string `json:"visibility"`
	URI        string `json:"uri"`
	URL        string `json:"url"`
}

// StatusFromPost formats the post into the character budget. Space for the
// trailing link is reserved first so the link is never truncated; the title
// and then the summary greedily fill what remains.
func StatusFromPost(post domain.NewsPost, language string) PostStatusRequest {
	var b strings.Builder

	// One newline separates the text from the link.
	remaining := statusBudget - len(post.Link) - 1
	if remaining < 0 {
		remaining = 0
	}

	title := truncate(post.Title, remaining)
	b.WriteString(title)
	remaining -= len(title)

	if post.Summary != "" && remaining > 1 {
		b.WriteString("\n")
		remaining--
		b.WriteString(truncate(post.Summary, remaining))
	}

	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(post.Link)

	return PostStatusRequest{
		Status:     b.String(),
		Language:   language,
		Visibility: "public",
		MediaIDs:   []string{},
	}
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	for limit > 0 && s[limit]&0xc0 == 0x80 {
		limit--
	}
	return s[:limit]
}
