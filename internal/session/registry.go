package session

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
	"github.com/pscheid92/pagegate/internal/domain"
)

const defaultEnrichTimeout = 15 * time.Second

// Config controls registry bounds.
type Config struct {
	MaxEntries    int
	TTL           time.Duration
	DefaultLocale string
	// EnrichTimeout bounds one background profile enrichment.
	EnrichTimeout time.Duration
}

// Registry maps PSIDs to sessions. It is safe for concurrent use.
type Registry struct {
	cfg     Config
	clock   clockwork.Clock
	fetcher domain.ProfileFetcher
	store   domain.ProfileStore
	metrics *metrics.SessionMetrics

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	enrichments sync.WaitGroup
}

var _ domain.SessionProvider = (*Registry)(nil)

type Option func(*Registry)

// WithProfileStore consults store before the platform and writes fetched profiles back.
func WithProfileStore(store domain.ProfileStore) Option {
	return func(r *Registry) { r.store = store }
}

func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(cfg Config, fetcher domain.ProfileFetcher, clock clockwork.Clock, opts ...Option) *Registry {
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 1
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = defaultEnrichTimeout
	}

	r := &Registry{
		cfg:     cfg,
		clock:   clock,
		fetcher: fetcher,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for psid, creating it on first contact.
// Only the call that creates the session starts profile enrichment, and it
// never waits for it.
func (r *Registry) GetOrCreate(ctx context.Context, psid string) *domain.Session {
	r.mu.Lock()
	now := r.clock.Now()
	if el, ok := r.entries[psid]; ok {
		s := el.Value.(*domain.Session)
		if !r.expired(s, now) {
			s.Touch(now)
			r.lru.MoveToFront(el)
			r.mu.Unlock()
			return s
		}
		r.removeLocked(el, "expired")
	}

	s := domain.NewSession(psid, r.cfg.DefaultLocale, now)
	r.entries[psid] = r.lru.PushFront(s)
	for r.lru.Len() > r.cfg.MaxEntries {
		r.removeLocked(r.lru.Back(), "capacity")
	}
	size := r.lru.Len()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.Created.Inc()
		r.metrics.Active.Set(float64(size))
	}
	slog.DebugContext(ctx, "Session created", "psid", psid)

	enrichCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.EnrichTimeout)
	r.enrichments.Go(func() {
		defer cancel()
		r.enrich(enrichCtx, s)
	})

	return s
}

// Get returns the live session for psid without refreshing it.
func (r *Registry) Get(psid string) (*domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.entries[psid]
	if !ok {
		return nil, false
	}
	s := el.Value.(*domain.Session)
	if r.expired(s, r.clock.Now()) {
		return nil, false
	}
	return s, true
}

// Len returns the number of held sessions, including expired ones not yet evicted.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// EvictExpired removes idle sessions and returns how many were removed.
func (r *Registry) EvictExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	evicted := 0

	// Walk from the least recently used end; stop at the first live session.
	for el := r.lru.Back(); el != nil; {
		s := el.Value.(*domain.Session)
		if !r.expired(s, now) {
			break
		}
		prev := el.Prev()
		r.removeLocked(el, "expired")
		evicted++
		el = prev
	}

	if r.metrics != nil {
		r.metrics.Active.Set(float64(r.lru.Len()))
	}
	return evicted
}

// StartEvictionTimer periodically evicts expired sessions.
// Returns a stop function that should be called to clean up the goroutine.
func (r *Registry) StartEvictionTimer(interval time.Duration) func() {
	ticker := r.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if evicted := r.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired sessions", "count", evicted, "remaining", r.Len())
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// WaitEnrichment blocks until all started profile enrichments have finished.
func (r *Registry) WaitEnrichment() {
	r.enrichments.Wait()
}

func (r *Registry) expired(s *domain.Session, now time.Time) bool {
	return r.cfg.TTL > 0 && now.Sub(s.LastSeen()) > r.cfg.TTL
}

func (r *Registry) removeLocked(el *list.Element, reason string) {
	s := r.lru.Remove(el).(*domain.Session)
	delete(r.entries, s.ID)
	if r.metrics != nil {
		r.metrics.Evictions.WithLabelValues(reason).Inc()
	}
}

func (r *Registry) enrich(ctx context.Context, s *domain.Session) {
	if r.store != nil {
		profile, err := r.store.GetProfile(ctx, s.ID)
		switch {
		case err == nil && profile != nil:
			s.SetProfile(*profile)
			r.countFetch("store", "hit")
			return
		case err != nil && !errors.Is(err, domain.ErrProfileNotFound):
			slog.WarnContext(ctx, "Profile store lookup failed", "psid", s.ID, "error", err)
			r.countFetch("store", "error")
		default:
			r.countFetch("store", "miss")
		}
	}

	profile, err := r.fetcher.GetUserProfile(ctx, s.ID)
	if err != nil {
		slog.WarnContext(ctx, "Profile enrichment failed", "psid", s.ID, "error", err)
		r.countFetch("platform", "error")
		return
	}
	if profile == nil {
		r.countFetch("platform", "miss")
		return
	}

	s.SetProfile(*profile)
	r.countFetch("platform", "hit")

	if r.store != nil {
		if err := r.store.SaveProfile(ctx, s.ID, *profile); err != nil {
			slog.WarnContext(ctx, "Failed to cache profile", "psid", s.ID, "error", err)
		}
	}
}

func (r *Registry) countFetch(source, result string) {
	if r.metrics != nil {
		r.metrics.ProfileFetches.WithLabelValues(source, result).Inc()
	}
}
