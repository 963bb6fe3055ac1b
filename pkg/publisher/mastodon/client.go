package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newswire-bots/newsrelay/internal/domain"
	"github.com/newswire-bots/newsrelay/internal/logger"
	"github.com/newswire-bots/newsrelay/pkg/httpclient"
)

const (
	mediaPath  = "/api/v2/media"
	statusPath = "/api/v1/statuses"

	requestTimeout = 30 * time.Second
)

// Client publishes news posts as Mastodon statuses with optional media.
// Mastodon access tokens are long-lived, so there is no refresh lifecycle.
type Client struct {
	server      string
	accessToken string
	language    string
	http        *resty.Client
	log         logger.Logger
}

// New builds a client for the given server and access token.
func New(server, accessToken, language string, client *resty.Client, log logger.Logger) *Client {
	if client == nil {
		client = httpclient.NewRestyHTTPClient(requestTimeout)
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Client{
		server:      server,
		accessToken: accessToken,
		language:    language,
		http:        client,
		log:         log,
	}
}

// Publish uploads the post image as media first, then posts the status.
// A media failure downgrades to a warning; the text status still goes out.
func (c *Client) Publish(ctx context.Context, post domain.NewsPost) error {
	status := StatusFromPost(post, c.language)

	if post.Image != "" {
		media, err := c.uploadMedia(ctx, post.Image)
		if err != nil {
			c.log.WarnObj("media upload failed, posting text-only status", "mastodon_media_error", map[string]any{
				"image": post.Image,
				"error": err.Error(),
			})
		} else {
			status.MediaIDs = append(status.MediaIDs, media.ID)
		}
	}

	created, err := c.postStatus(ctx, status)
	if err != nil {
		return err
	}

	c.log.InfoObj("published status on mastodon", "status_url", created.URL)
	return nil
}

// postStatus posts the status request, returning the created status.
func (c *Client) postStatus(ctx context.Context, status PostStatusRequest) (*PartialPostStatusResponse, error) {
	var created PartialPostStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(c.accessToken).
		SetBody(status).
		SetResult(&created).
		Post(c.server + statusPath)
	if err != nil {
		return nil, fmt.Errorf("post status: %w", err)
	}
	if resp.IsError() {
		c.log.DebugObj("mastodon status rejected", "mastodon_response", map[string]any{
			"status": resp.StatusCode(),
			"body":   string(resp.Body()),
		})
		return nil, fmt.Errorf("post status: status %d", resp.StatusCode())
	}

	return &created, nil
}

// uploadMedia fetches the image bytes and uploads them as a multipart file,
// returning the media id to attach to the status.
func (c *Client) uploadMedia(ctx context.Context, imageURL string) (*PartialMediaResponse, error) {
	imgResp, err := c.http.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if imgResp.IsError() {
		return nil, fmt.Errorf("fetch image: status %d", imgResp.StatusCode())
	}

	var media PartialMediaResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.accessToken).
		SetFileReader("file", "image.jpg", bytes.NewReader(imgResp.Body())).
		SetResult(&media).
		Post(c.server + mediaPath)
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("upload media: status %d", resp.StatusCode())
	}

	return &media, nil
}
