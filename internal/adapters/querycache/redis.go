package querycache

// Package querycache invalidates dependent cached query results when identity
// changes make them stale. Query caches are keyed query:<user_id>:<name>.

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

const queryKeyPrefix = "query:"

var _ ports.QueryInvalidator = (*Redis)(nil)

// Redis invalidates cached query results stored in Redis.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a Redis-backed query invalidator.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// InvalidateUser removes every cached query result scoped to the user.
func (r *Redis) InvalidateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return r.deleteByPattern(ctx, queryKeyPrefix+userID+":*")
}

// InvalidateAll removes every cached query result.
func (r *Redis) InvalidateAll(ctx context.Context) error {
	return r.deleteByPattern(ctx, queryKeyPrefix+"*")
}

func (r *Redis) deleteByPattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %q: %w", pattern, err)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete %q: %w", pattern, err)
	}
	return nil
}
