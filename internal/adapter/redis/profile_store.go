package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/pagegate/internal/domain"
)

// ProfileStore caches sender profiles as JSON under profile:<psid>.
type ProfileStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ domain.ProfileStore = (*ProfileStore)(nil)

func NewProfileStore(rdb *goredis.Client, ttl time.Duration) *ProfileStore {
	return &ProfileStore{rdb: rdb, ttl: ttl}
}

// GetProfile returns domain.ErrProfileNotFound on a miss.
func (s *ProfileStore) GetProfile(ctx context.Context, psid string) (*domain.Profile, error) {
	data, err := s.rdb.Get(ctx, profileKey(psid)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) SaveProfile(ctx context.Context, psid string, profile domain.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := s.rdb.Set(ctx, profileKey(psid), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func profileKey(psid string) string {
	return "profile:" + psid
}
