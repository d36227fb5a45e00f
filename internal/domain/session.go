package domain

import (
	"context"
	"sync/atomic"
	"time"
)

// Profile is the public profile of a sender as returned by the platform.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Locale    string `json:"locale,omitempty"`
}

// Session is the per-sender conversation state. It is owned by the session
// registry; handlers get a pointer and must tolerate a missing profile, which
// is filled in asynchronously.
type Session struct {
	ID        string
	CreatedAt time.Time

	locale   atomic.Pointer[string]
	profile  atomic.Pointer[Profile]
	lastSeen atomic.Int64
}

// NewSession creates a session for psid using the given default locale.
func NewSession(psid, defaultLocale string, now time.Time) *Session {
	s := &Session{ID: psid, CreatedAt: now}
	s.locale.Store(&defaultLocale)
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Locale returns the locale used for replies to this sender.
func (s *Session) Locale() string {
	return *s.locale.Load()
}

// Profile returns the enriched profile, or nil if it has not been fetched (yet).
func (s *Session) Profile() *Profile {
	return s.profile.Load()
}

// SetProfile swaps in a copy of p. A non-empty profile locale replaces the session locale.
func (s *Session) SetProfile(p Profile) {
	if p.Locale != "" {
		locale := p.Locale
		s.locale.Store(&locale)
	}
	s.profile.Store(&p)
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the time of the last recorded activity.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// SessionProvider resolves the session for a sender, creating it on first contact.
type SessionProvider interface {
	GetOrCreate(ctx context.Context, psid string) *Session
}

// ProfileFetcher loads a sender profile from the platform. A nil profile with a
// nil error means the platform answered but had no profile to give.
type ProfileFetcher interface {
	GetUserProfile(ctx context.Context, psid string) (*Profile, error)
}

// ProfileStore caches fetched profiles outside the process.
type ProfileStore interface {
	GetProfile(ctx context.Context, psid string) (*Profile, error)
	SaveProfile(ctx context.Context, psid string, profile Profile) error
}

// MessageDeduper reports whether a message id was already processed, marking it if not.
type MessageDeduper interface {
	IsDuplicate(ctx context.Context, mid string) (bool, error)
}

// MessageHandler consumes a messaging event that deserves bot handling.
type MessageHandler interface {
	HandleMessage(ctx context.Context, session *Session, event *MessagingEvent) error
}
