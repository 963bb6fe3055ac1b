package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain contains core models shared by the scraper and the bot.

// NewsPost is the unit of work flowing through the pipeline. Fields are
// optional at scrape time; empty strings mean absent. The JSON encoding is
// the queue payload format.
type NewsPost struct {
	Image   string `json:"image,omitempty"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	Link    string `json:"link,omitempty"`
	Author  string `json:"author,omitempty"`
}

// IsComplete reports whether the post carries the minimum fields required
// for enqueueing and publishing.
func (p NewsPost) IsComplete() bool {
	return p.Title != "" && p.Summary != "" && p.Link != ""
}

// Fingerprint returns a stable content hash of the post identity, used as
// the dedup key. It is derived from the title only so the same story
// re-scraped with a different image or summary still dedups.
func (p NewsPost) Fingerprint() string {
	sum := sha256.Sum256([]byte(p.Title))
	return hex.EncodeToString(sum[:])
}
