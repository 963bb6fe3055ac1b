package publisher

import (
	"context"

	"github.com/newswire-bots/newsrelay/internal/domain"
)

// Publisher delivers a news post to one social platform. Implementations
// live in platform-specific subpackages (bluesky, mastodon); the bot picks
// one at startup from configuration.
type Publisher interface {
	// Publish posts the NewsPost. A non-essential sub-step failing (e.g. the
	// image attachment) must not abort the text publication; an error means
	// the post did not go out.
	Publish(ctx context.Context, post domain.NewsPost) error
}
