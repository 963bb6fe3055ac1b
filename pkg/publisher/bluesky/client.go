package bluesky

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/newswire-bots/newsrelay/internal/domain"
	"github.com/newswire-bots/newsrelay/internal/logger"
	"github.com/newswire-bots/newsrelay/pkg/httpclient"
)

const (
	createSessionPath  = "/xrpc/com.atproto.server.createSession"
	refreshSessionPath = "/xrpc/com.atproto.server.refreshSession"
	uploadBlobPath     = "/xrpc/com.atproto.repo.uploadBlob"
	createRecordPath   = "/xrpc/com.atproto.repo.createRecord"

	requestTimeout = 30 * time.Second
)

// Client publishes news posts as Bluesky feed records with external-link
// cards. It owns the session token and refreshes it lazily before use.
type Client struct {
	host   string
	handle string
	token  Token
	http   *resty.Client
	log    logger.Logger
}

// New establishes a session with the given account credentials. A session
// failure is an unrecoverable startup condition for the caller.
func New(ctx context.Context, host, handle, password string, client *resty.Client, log logger.Logger) (*Client, error) {
	if client == nil {
		client = httpclient.NewRestyHTTPClient(requestTimeout)
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	c := &Client{host: host, handle: handle, http: client, log: log}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(serverCreateSession{Identifier: handle, Password: password}).
		SetResult(&c.token).
		Post(host + createSessionPath)
	if err != nil {
		return nil, fmt.Errorf("create bluesky session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create bluesky session: status %d", resp.StatusCode())
	}

	return c, nil
}

// Publish uploads the post image as a blob (tolerating failure), then
// creates the feed record. The text record goes out even when the image
// sub-step fails.
func (c *Client) Publish(ctx context.Context, post domain.NewsPost) error {
	record := newCreateRecord(c.handle, post, time.Now().UTC())

	if post.Image != "" {
		blob, err := c.uploadImage(ctx, post.Image)
		if err != nil {
			c.log.WarnObj("image upload failed, posting without thumbnail", "bluesky_image_error", map[string]any{
				"image": post.Image,
				"error": err.Error(),
			})
		} else {
			record.Record.Embed.External.Thumb = blob
		}
	}

	if err := c.ensureToken(ctx); err != nil {
		return fmt.Errorf("ensure bluesky token: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(c.token.AccessJwt).
		SetBody(record).
		Post(c.host + createRecordPath)
	if err != nil {
		return fmt.Errorf("post record: %w", err)
	}
	if resp.IsError() {
		c.log.DebugObj("bluesky record rejected", "bluesky_response", map[string]any{
			"status": resp.StatusCode(),
			"body":   string(resp.Body()),
		})
		return fmt.Errorf("post record: status %d", resp.StatusCode())
	}

	c.log.InfoObj("published post on bluesky", "post_title", post.Title)
	return nil
}

// ensureToken refreshes the session token when it is expired or about to
// expire. On refresh failure the previous token stays in place and the
// current publish attempt fails.
func (c *Client) ensureToken(ctx context.Context) error {
	expired, err := c.token.Expired()
	if err != nil {
		return err
	}
	if !expired {
		return nil
	}

	var fresh Token
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(c.token.RefreshJwt).
		SetResult(&fresh).
		Post(c.host + refreshSessionPath)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("refresh session: status %d", resp.StatusCode())
	}

	c.token = fresh
	c.log.DebugObj("bluesky session refreshed", "token", c.token.String())
	return nil
}

// uploadImage fetches the image bytes and uploads them as a blob, returning
// the content reference for the record thumbnail.
func (c *Client) uploadImage(ctx context.Context, imageURL string) (*Blob, error) {
	imgResp, err := c.http.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if imgResp.IsError() {
		return nil, fmt.Errorf("fetch image: status %d", imgResp.StatusCode())
	}

	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	var blobResp blobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetAuthToken(c.token.AccessJwt).
		SetBody(imgResp.Body()).
		SetResult(&blobResp).
		Post(c.host + uploadBlobPath)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("upload blob: status %d", resp.StatusCode())
	}

	return &blobResp.Blob, nil
}
