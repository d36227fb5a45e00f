package graph

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/pscheid92/pagegate/internal/domain"
	apperrors "github.com/pscheid92/pagegate/internal/platform/errors"
)

// PageResult is the outcome of a per-page provisioning call.
type PageResult struct {
	PageID string
	OK     bool
	Status int
	Err    error

	// Personas is only set by ListPersonas.
	Personas []domain.Persona
}

// forEachPage runs fn once per configured page, concurrently, and returns
// the results in configuration order.
func (c *Client) forEachPage(ctx context.Context, fn func(ctx context.Context, pageID string) PageResult) []PageResult {
	pageIDs := c.credentials.PageIDs()
	results := make([]PageResult, len(pageIDs))

	var wg sync.WaitGroup
	for i, pageID := range pageIDs {
		wg.Go(func() {
			results[i] = fn(ctx, pageID)
			results[i].PageID = pageID
		})
	}
	wg.Wait()
	return results
}

// pageCall performs a page-scoped POST and folds the outcome into a PageResult.
func (c *Client) pageCall(ctx context.Context, pageID string, req request, what string) (PageResult, *response) {
	token, err := c.pageToken(pageID)
	if err != nil {
		slog.ErrorContext(ctx, "Unable to "+what, "page_id", pageID, "error", err)
		return PageResult{Err: err}, nil
	}
	req.token = token

	var resp *response
	if req.method == http.MethodGet {
		resp, err = c.get(ctx, req)
	} else {
		resp, err = c.do(ctx, req)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Unable to "+what, "page_id", pageID, "error", err)
		return PageResult{Err: c.softFail(ctx, req.endpoint, err)}, nil
	}
	if !resp.ok() {
		slog.ErrorContext(ctx, "Unable to "+what, "page_id", pageID, "status", resp.Status, "body", resp.bodyForLog())
		return PageResult{Status: resp.Status}, resp
	}

	slog.InfoContext(ctx, "Request sent", "action", what, "page_id", pageID)
	return PageResult{OK: true, Status: resp.Status}, resp
}

// SetMessengerProfile posts body to the Messenger Profile API of every page.
func (c *Client) SetMessengerProfile(ctx context.Context, body any) []PageResult {
	slog.InfoContext(ctx, "Setting Messenger profile", "app_id", c.cfg.AppID)
	return c.forEachPage(ctx, func(ctx context.Context, pageID string) PageResult {
		res, _ := c.pageCall(ctx, pageID, request{
			endpoint: "messenger_profile",
			method:   http.MethodPost,
			path:     "/me/messenger_profile",
			body:     body,
		}, "set messenger profile")
		return res
	})
}

// SubscribeWebhook points the app's page webhook at the configured callback URL.
// Unlike message sends, a refused or failed subscription is returned as an
// error so provisioning can report it.
func (c *Client) SubscribeWebhook(ctx context.Context, extraFields []string) error {
	fields := joinFields(extraFields)
	slog.InfoContext(ctx, "Setting app callback url", "app_id", c.cfg.AppID, "callback_url", c.cfg.WebhookURL, "fields", fields)

	resp, err := c.do(ctx, request{
		endpoint: "subscriptions",
		method:   http.MethodPost,
		path:     "/" + url.PathEscape(c.cfg.AppID) + "/subscriptions",
		token:    c.cfg.AppAccessToken,
		query: url.Values{
			"object":         {"page"},
			"callback_url":   {c.cfg.WebhookURL},
			"verify_token":   {c.cfg.VerifyToken},
			"fields":         {fields},
			"include_values": {"true"},
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "Unable to subscribe webhook", "error", err)
		return err
	}
	if !resp.ok() {
		slog.ErrorContext(ctx, "Unable to subscribe webhook", "status", resp.Status, "body", resp.bodyForLog())
		return apperrors.PlatformError("webhook subscription refused", resp.Status)
	}

	slog.InfoContext(ctx, "Request sent", "action", "subscribe webhook", "app_id", c.cfg.AppID)
	return nil
}

// SubscribeApp subscribes the app to webhook fields on every page.
func (c *Client) SubscribeApp(ctx context.Context, extraFields []string) []PageResult {
	fields := joinFields(extraFields)
	slog.InfoContext(ctx, "Subscribing app to pages", "app_id", c.cfg.AppID, "page_ids", c.credentials.PageIDs(), "fields", fields)

	return c.forEachPage(ctx, func(ctx context.Context, pageID string) PageResult {
		res, _ := c.pageCall(ctx, pageID, request{
			endpoint: "subscribed_apps",
			method:   http.MethodPost,
			path:     "/" + url.PathEscape(pageID) + "/subscribed_apps",
			query:    url.Values{"subscribed_fields": {fields}},
		}, "subscribe app")
		return res
	})
}

// ListPersonas fetches the personas of every page, once per page.
func (c *Client) ListPersonas(ctx context.Context) []PageResult {
	return c.forEachPage(ctx, func(ctx context.Context, pageID string) PageResult {
		res, resp := c.pageCall(ctx, pageID, request{
			endpoint: "personas",
			method:   http.MethodGet,
			path:     "/me/personas",
		}, "fetch personas")
		if !res.OK {
			return res
		}

		var payload struct {
			Data []domain.Persona `json:"data"`
		}
		if err := resp.decode(&payload); err != nil {
			slog.ErrorContext(ctx, "Unable to fetch personas", "page_id", pageID, "error", err)
			return PageResult{Status: res.Status, Err: err}
		}
		res.Personas = payload.Data
		return res
	})
}

type createPersonaBody struct {
	Name              string `json:"name"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
}

// CreatePersona creates a persona on pageID and returns its id, or "" when
// the platform refused.
func (c *Client) CreatePersona(ctx context.Context, pageID, name, pictureURL string) (string, error) {
	slog.InfoContext(ctx, "Creating persona", "page_id", pageID, "name", name)

	res, resp := c.pageCall(ctx, pageID, request{
		endpoint: "personas",
		method:   http.MethodPost,
		path:     "/me/personas",
		body:     createPersonaBody{Name: name, ProfilePictureURL: pictureURL},
	}, "create persona")
	if res.Err != nil {
		return "", res.Err
	}
	if !res.OK {
		return "", nil
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := resp.decode(&payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}
