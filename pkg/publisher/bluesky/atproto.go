package bluesky

import (
	"time"

	"github.com/newswire-bots/newsrelay/internal/domain"
)

// Wire types for the AT Protocol endpoints the client consumes. Only the
// fields the relay needs are modeled.

type serverCreateSession struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// BlobRef is the content reference returned by a blob upload.
type BlobRef struct {
	Link string `json:"$link"`
}

// Blob describes an uploaded blob, used as the external card thumbnail.
type Blob struct {
	Type     string  `json:"$type"`
	Ref      BlobRef `json:"ref"`
	MimeType string  `json:"mimeType"`
	Size     int64   `json:"size"`
}

type blobResponse struct {
	Blob Blob `json:"blob"`
}

type externalEmbed struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       *Blob  `json:"thumb,omitempty"`
}

type recordEmbed struct {
	Type     string        `json:"$type"`
	External externalEmbed `json:"external"`
}

type recordBody struct {
	Text      string       `json:"text"`
	CreatedAt string       `json:"createdAt"`
	Embed     *recordEmbed `json:"embed,omitempty"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     recordBody `json:"record"`
}

// newCreateRecord builds a feed post record with an external-link card for
// the news post. The thumbnail is attached later if the blob upload succeeds.
func newCreateRecord(repo string, post domain.NewsPost, createdAt time.Time) createRecordRequest {
	return createRecordRequest{
		Repo:       repo,
		Collection: "app.bsky.feed.post",
		Record: recordBody{
			Text:      post.Title,
			CreatedAt: createdAt.Format(time.RFC3339),
			Embed: &recordEmbed{
				Type: "app.bsky.embed.external",
				External: externalEmbed{
					URI:         post.Link,
					Title:       post.Title,
					Description: post.Summary,
				},
			},
		},
	}
}
