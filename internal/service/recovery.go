package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/armbareum-beep/grappl-sub006/config"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

// recoveryMarkerKey holds the unix-milli timestamp of the last destructive
// teardown.
const recoveryMarkerKey = "auth_recovery:last_attempt"

// Recovery performs a one-shot teardown of corrupted session/cache state:
// provider sign-out, auth key purge, volatile store clear, and query-cache
// invalidation. A persisted cooldown marker prevents recovery loops.
type Recovery struct {
	mu sync.Mutex

	provider   ports.IdentityProvider
	persistent ports.KeyValueStore
	volatile   ports.VolatileStore
	queries    ports.QueryInvalidator
	cfg        config.RecoveryConfig
	clock      Clock
	logger     *slog.Logger
}

// RecoveryOptions groups dependencies for NewRecovery.
type RecoveryOptions struct {
	Provider   ports.IdentityProvider
	Persistent ports.KeyValueStore
	Volatile   ports.VolatileStore
	Queries    ports.QueryInvalidator
	Config     config.RecoveryConfig
	Clock      Clock
	Logger     *slog.Logger
}

// NewRecovery constructs a Recovery controller.
func NewRecovery(opts RecoveryOptions) *Recovery {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{
		provider:   opts.Provider,
		persistent: opts.Persistent,
		volatile:   opts.Volatile,
		queries:    opts.Queries,
		cfg:        opts.Config,
		clock:      clock,
		logger:     logger,
	}
}

// Recover executes the teardown unless one already ran inside the cooldown
// window, in which case it returns false. Every sub-step is individually
// fault-isolated: a failure in any one step does not prevent the remaining
// steps, and Recover itself never fails.
func (r *Recovery) Recover(ctx context.Context, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if last, ok := r.lastAttempt(ctx); ok && now.Sub(last) < r.cfg.Cooldown {
		r.logger.InfoContext(ctx, "skipping auth recovery inside cooldown window",
			"reason", reason, "last_attempt", last)
		return false
	}

	r.logger.WarnContext(ctx, "performing auth recovery teardown", "reason", reason)

	// Mark first so a crash mid-teardown still honors the cooldown.
	marker := strconv.FormatInt(now.UnixMilli(), 10)
	if err := r.persistent.Set(ctx, recoveryMarkerKey, []byte(marker)); err != nil {
		r.logger.WarnContext(ctx, "recovery marker write failed", "error", err)
	}

	if err := r.provider.SignOut(ctx); err != nil {
		r.logger.WarnContext(ctx, "recovery sign-out failed", "error", err)
	}

	r.purgeAuthKeys(ctx)

	if err := r.volatile.Clear(ctx); err != nil {
		r.logger.WarnContext(ctx, "recovery volatile store clear failed", "error", err)
	}

	if err := r.queries.InvalidateAll(ctx); err != nil {
		r.logger.WarnContext(ctx, "recovery query invalidation failed", "error", err)
	}

	return true
}

// HasStaleAuthKeys reports whether the persistent store contains entries in
// the provider auth namespaces. Used by the bootstrapper to detect leftover
// state when no session exists.
func (r *Recovery) HasStaleAuthKeys(ctx context.Context) bool {
	keys, err := r.persistent.Keys(ctx)
	if err != nil {
		r.logger.DebugContext(ctx, "auth key scan failed", "error", err)
		return false
	}
	for _, k := range keys {
		if k == recoveryMarkerKey {
			continue
		}
		if r.matchesAuthNamespace(k) {
			return true
		}
	}
	return false
}

// purgeAuthKeys removes every persisted key in the configured auth
// namespaces. The recovery marker itself is spared so the cooldown survives.
func (r *Recovery) purgeAuthKeys(ctx context.Context) {
	keys, err := r.persistent.Keys(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "recovery key scan failed", "error", err)
		return
	}
	for _, k := range keys {
		if k == recoveryMarkerKey || !r.matchesAuthNamespace(k) {
			continue
		}
		if err := r.persistent.Remove(ctx, k); err != nil {
			r.logger.WarnContext(ctx, "recovery key removal failed", "key", k, "error", err)
		}
	}
}

func (r *Recovery) matchesAuthNamespace(key string) bool {
	for _, p := range r.cfg.KeyPatterns {
		if p != "" && strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// lastAttempt reads the cooldown marker; unreadable or unparsable markers are
// treated as absent.
func (r *Recovery) lastAttempt(ctx context.Context) (time.Time, bool) {
	data, err := r.persistent.Get(ctx, recoveryMarkerKey)
	if err != nil || len(data) == 0 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
