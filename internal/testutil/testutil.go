package testutil

// Package testutil provides helpers for integration tests against real
// backing services. Tests using these helpers skip when the service is not
// reachable, so the unit suite stays self-contained.

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// SetupTestRedis creates a Redis client for testing. The test is skipped if
// Redis is not available.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("skipping integration test: redis not available at", addr)
	}

	return client
}

// SetupTestDB creates a pgx pool for testing. The test is skipped unless
// TEST_DATABASE_URL is set and reachable.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping integration test: TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal("failed to open test database:", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatal("failed to connect to test database:", err)
	}

	t.Cleanup(pool.Close)
	return pool
}
