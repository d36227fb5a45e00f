// Package locale converts platform locale strings (en_US) to language tags
// and carries the sender's tag through a context.
package locale

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

type contextKey struct{}

// Default is used when neither the context nor the session carries a locale.
var Default = language.AmericanEnglish

// Parse converts a platform locale such as "de_DE" into a language tag.
func Parse(s string) (language.Tag, error) {
	return language.Parse(strings.ReplaceAll(s, "_", "-"))
}

// ParseOr parses s and falls back to fallback when s is empty or invalid.
func ParseOr(s string, fallback language.Tag) language.Tag {
	if s == "" {
		return fallback
	}
	tag, err := Parse(s)
	if err != nil {
		return fallback
	}
	return tag
}

// Format renders tag in the platform's underscore notation, e.g. "pt_BR".
func Format(tag language.Tag) string {
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.No {
		return base.String()
	}
	return base.String() + "_" + region.String()
}

// WithTag returns a context carrying tag.
func WithTag(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, contextKey{}, tag)
}

// FromContext returns the tag attached with WithTag, or Default.
func FromContext(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(contextKey{}).(language.Tag); ok {
		return tag
	}
	return Default
}
