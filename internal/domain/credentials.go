package domain

import (
	"context"
	"maps"
	"slices"
)

// PageCredentials maps page ids to page access tokens. Immutable after construction.
type PageCredentials struct {
	order  []string
	tokens map[string]string
}

// NewPageCredentials builds credentials from page ids and their tokens, in order.
func NewPageCredentials(pageIDs []string, tokens map[string]string) *PageCredentials {
	return &PageCredentials{
		order:  slices.Clone(pageIDs),
		tokens: maps.Clone(tokens),
	}
}

// Token returns the access token for pageID.
func (c *PageCredentials) Token(pageID string) (string, error) {
	token, ok := c.tokens[pageID]
	if !ok || token == "" {
		return "", ErrUnknownPage
	}
	return token, nil
}

// PageIDs returns the configured page ids in configuration order.
func (c *PageCredentials) PageIDs() []string {
	return slices.Clone(c.order)
}

// DefaultPageID returns the first configured page id, or "" when none is set.
func (c *PageCredentials) DefaultPageID() string {
	if len(c.order) == 0 {
		return ""
	}
	return c.order[0]
}

type pageIDKey struct{}

// WithPageID records the page a unit of work belongs to.
func WithPageID(ctx context.Context, pageID string) context.Context {
	return context.WithValue(ctx, pageIDKey{}, pageID)
}

// PageIDFromContext returns the page recorded with WithPageID.
func PageIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(pageIDKey{}).(string)
	return id, ok && id != ""
}
