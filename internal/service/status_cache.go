package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

// statusKeyPrefix namespaces cache entries per user id and schema version so
// a format change invalidates old entries instead of being misread.
const statusKeyPrefix = "user_status:v2:"

// StatusCache stores a versioned, timestamped authorization status per user
// id in the persistent key-value store and makes trust decisions based on
// entry age.
type StatusCache struct {
	store  ports.KeyValueStore
	clock  Clock
	ttl    time.Duration
	logger *slog.Logger
}

// StatusCacheOptions groups dependencies for NewStatusCache.
type StatusCacheOptions struct {
	Store  ports.KeyValueStore
	Clock  Clock
	TTL    time.Duration
	Logger *slog.Logger
}

// NewStatusCache constructs a StatusCache.
func NewStatusCache(opts StatusCacheOptions) *StatusCache {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCache{
		store:  opts.Store,
		clock:  clock,
		ttl:    opts.TTL,
		logger: logger,
	}
}

// Read returns the cached status for the user, if any. It never fails to the
// caller: malformed or unreadable entries are treated as absent. Expired
// entries are still returned; trust is the caller's decision via Trusted.
func (c *StatusCache) Read(ctx context.Context, userID string) (auth.Status, bool) {
	if userID == "" {
		return auth.Status{}, false
	}

	data, err := c.store.Get(ctx, c.key(userID))
	if err != nil {
		c.logger.DebugContext(ctx, "status cache read failed", "user_id", userID, "error", err)
		return auth.Status{}, false
	}
	if len(data) == 0 {
		return auth.Status{}, false
	}

	var st auth.Status
	if err := json.Unmarshal(data, &st); err != nil {
		c.logger.DebugContext(ctx, "discarding malformed status cache entry", "user_id", userID, "error", err)
		return auth.Status{}, false
	}
	if st.CachedAt.IsZero() {
		// Entries without a timestamp predate the schema; treat as absent.
		return auth.Status{}, false
	}

	return st, true
}

// Write persists the status for the user, stamping CachedAt with the current
// time, and returns the stamped value. Callers never set CachedAt themselves.
func (c *StatusCache) Write(ctx context.Context, userID string, st auth.Status) (auth.Status, error) {
	if userID == "" {
		return st, fmt.Errorf("user id is required")
	}

	st.CachedAt = c.clock.Now()
	data, err := json.Marshal(st)
	if err != nil {
		return st, fmt.Errorf("marshal status: %w", err)
	}

	if err := c.store.Set(ctx, c.key(userID), data); err != nil {
		return st, fmt.Errorf("write status cache: %w", err)
	}
	return st, nil
}

// Trusted reports whether the entry is younger than the configured TTL.
func (c *StatusCache) Trusted(st auth.Status) bool {
	if st.CachedAt.IsZero() {
		return false
	}
	return c.clock.Now().Sub(st.CachedAt) < c.ttl
}

// Invalidate removes the cached status for the user.
func (c *StatusCache) Invalidate(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return c.store.Remove(ctx, c.key(userID))
}

func (c *StatusCache) key(userID string) string {
	return statusKeyPrefix + userID
}
