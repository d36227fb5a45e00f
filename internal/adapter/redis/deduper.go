package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/pagegate/internal/domain"
)

// Deduper remembers processed message ids so platform redeliveries are
// handled once.
type Deduper struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ domain.MessageDeduper = (*Deduper)(nil)

func NewDeduper(rdb *goredis.Client, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// IsDuplicate returns true if mid was already seen, false if it is new
// (and marks it).
func (d *Deduper) IsDuplicate(ctx context.Context, mid string) (bool, error) {
	args := goredis.SetArgs{TTL: d.ttl, Mode: "NX"}
	_, err := d.rdb.SetArgs(ctx, midKey(mid), "1", args).Result()
	if errors.Is(err, goredis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to mark message: %w", err)
	}
	return false, nil
}

func midKey(mid string) string {
	return "mid:" + mid
}
