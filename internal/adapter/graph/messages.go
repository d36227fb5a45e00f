package graph

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pscheid92/pagegate/internal/domain"
)

var (
	_ domain.MessageSender    = (*Client)(nil)
	_ domain.ThreadController = (*Client)(nil)
	_ domain.ProfileFetcher   = (*Client)(nil)
)

// SendMessage posts msg to the Send API on behalf of pageID.
func (c *Client) SendMessage(ctx context.Context, msg domain.OutgoingMessage, pageID string) error {
	token, err := c.pageToken(pageID)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, request{
		endpoint: "send_message",
		method:   http.MethodPost,
		path:     "/me/messages",
		token:    token,
		body:     msg,
	})
	if err != nil {
		return c.softFail(ctx, "send_message", err)
	}
	if !resp.ok() {
		slog.WarnContext(ctx, "Could not send message", "page_id", pageID, "status", resp.Status, "body", resp.bodyForLog())
	}
	return nil
}

type passThreadControlBody struct {
	Recipient   domain.Recipient `json:"recipient"`
	TargetAppID int64            `json:"target_app_id"`
	Metadata    string           `json:"metadata"`
}

// PassThreadControl hands the conversation with recipient to the inbox app.
// The secondary receivers of the page are listed afterwards regardless of
// the outcome; that listing is log-only.
func (c *Client) PassThreadControl(ctx context.Context, recipient domain.Recipient, personaID, pageID string) error {
	token, err := c.pageToken(pageID)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, request{
		endpoint: "pass_thread_control",
		method:   http.MethodPost,
		path:     "/me/pass_thread_control",
		token:    token,
		body: passThreadControlBody{
			Recipient:   recipient,
			TargetAppID: c.cfg.TargetAppID,
			Metadata:    threadControlMetadata,
		},
	})
	if err = c.softFail(ctx, "pass_thread_control", err); err != nil {
		return err
	}

	switch {
	case resp == nil:
	case resp.ok():
		slog.InfoContext(ctx, "Passed thread control", "page_id", pageID, "persona_id", personaID, "target_app_id", c.cfg.TargetAppID, "body", resp.bodyForLog())
	default:
		slog.WarnContext(ctx, "Unable to pass thread control", "page_id", pageID, "persona_id", personaID, "status", resp.Status, "body", resp.bodyForLog())
	}

	c.ListSecondaryReceivers(ctx, pageID)
	return nil
}

// SecondaryReceiver is an app that may take thread control on a page.
type SecondaryReceiver struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListSecondaryReceivers returns the page's secondary receivers, or nil
// when the listing failed for any reason.
func (c *Client) ListSecondaryReceivers(ctx context.Context, pageID string) []SecondaryReceiver {
	token, err := c.pageToken(pageID)
	if err != nil {
		slog.WarnContext(ctx, "Unable to list secondary receivers", "page_id", pageID, "error", err)
		return nil
	}

	resp, err := c.get(ctx, request{
		endpoint: "secondary_receivers",
		path:     "/me/secondary_receivers",
		query:    url.Values{"fields": {"id,name"}},
		token:    token,
	})
	if err != nil {
		slog.WarnContext(ctx, "Unable to list secondary receivers", "page_id", pageID, "error", err)
		return nil
	}
	if !resp.ok() {
		slog.WarnContext(ctx, "Unable to list secondary receivers", "page_id", pageID, "status", resp.Status, "body", resp.bodyForLog())
		return nil
	}

	var payload struct {
		Data []SecondaryReceiver `json:"data"`
	}
	if err := resp.decode(&payload); err != nil {
		slog.WarnContext(ctx, "Unable to list secondary receivers", "page_id", pageID, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Listed secondary receivers", "page_id", pageID, "receivers", payload.Data)
	return payload.Data
}
