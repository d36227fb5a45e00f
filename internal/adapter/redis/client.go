// Package redis implements the optional Redis backing of the gateway.
//
// Provides ProfileStore (sender profiles shared across replicas) and Deduper
// (processed message ids). Every client carries a metrics hook and a circuit
// breaker hook.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
)

type clientOptions struct {
	metrics *metrics.RedisMetrics
	breaker *metrics.CircuitBreakerMetrics
}

type ClientOption func(*clientOptions)

func WithMetrics(m *metrics.RedisMetrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

func WithBreakerMetrics(m *metrics.CircuitBreakerMetrics) ClientOption {
	return func(o *clientOptions) { o.breaker = m }
}

// NewClient connects to redisURL (e.g. "redis://localhost:6379/0") and
// verifies the connection.
func NewClient(ctx context.Context, redisURL string, opts ...ClientOption) (*goredis.Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	parsed, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(parsed)
	if o.metrics != nil {
		rdb.AddHook(NewMetricsHook(o.metrics))
	}
	rdb.AddHook(NewCircuitBreakerHook(o.breaker))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
