package graph

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/pscheid92/pagegate/internal/domain"
)

const profileFields = "first_name,last_name"

// GetUserProfile fetches the public profile of psid. The page recorded in
// ctx (domain.WithPageID) selects the access token; the first configured
// page is used otherwise. Concurrent fetches for the same psid share one
// request. A non-2xx answer yields (nil, nil).
func (c *Client) GetUserProfile(ctx context.Context, psid string) (*domain.Profile, error) {
	pageID, ok := domain.PageIDFromContext(ctx)
	if !ok {
		pageID = c.credentials.DefaultPageID()
	}

	v, err, _ := c.profiles.Do(pageID+"/"+psid, func() (any, error) {
		return c.fetchProfile(ctx, psid, pageID)
	})
	if err != nil {
		return nil, err
	}
	profile, _ := v.(*domain.Profile)
	if profile == nil {
		return nil, nil
	}

	cp := *profile
	return &cp, nil
}

func (c *Client) fetchProfile(ctx context.Context, psid, pageID string) (*domain.Profile, error) {
	token, err := c.pageToken(pageID)
	if err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, request{
		endpoint: "user_profile",
		path:     "/" + url.PathEscape(psid),
		query:    url.Values{"fields": {profileFields}},
		token:    token,
	})
	if err != nil {
		return nil, c.softFail(ctx, "user_profile", err)
	}
	if !resp.ok() {
		slog.WarnContext(ctx, "Could not load profile", "psid", psid, "status", resp.Status, "body", resp.bodyForLog())
		return nil, nil
	}

	var profile domain.Profile
	if err := resp.decode(&profile); err != nil {
		slog.WarnContext(ctx, "Could not load profile", "psid", psid, "error", err)
		return nil, nil
	}
	return &profile, nil
}
