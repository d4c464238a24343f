package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/armbareum-beep/grappl-sub006/config"
	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

// Outcome is the resolver's result. Success is false only when every attempt
// failed and no cached value existed to fall back on; UsedCache marks values
// served from the cache rather than a fresh query.
type Outcome struct {
	Status    auth.Status
	Success   bool
	UsedCache bool
}

// Resolver computes authorization status from the profile store with bounded
// retries, increasing timeouts, and cache fallback on exhaustion. Resolve
// never returns an error and never leaves the caller waiting beyond the sum
// of the timeout schedule.
type Resolver struct {
	profiles ports.ProfileStore
	cache    *StatusCache
	cfg      config.ResolverConfig
	logger   *slog.Logger

	// Concurrent forced resolutions for the same user collapse into one
	// round of queries.
	group singleflight.Group

	// Injection points for tests.
	afterFunc func(time.Duration, func()) *time.Timer
	sleep     func(ctx context.Context, d time.Duration) error
}

// ResolverOptions groups dependencies for NewResolver.
type ResolverOptions struct {
	Profiles ports.ProfileStore
	Cache    *StatusCache
	Config   config.ResolverConfig
	Logger   *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		profiles:  opts.Profiles,
		cache:     opts.Cache,
		cfg:       opts.Config,
		logger:    logger,
		afterFunc: time.AfterFunc,
		sleep:     sleepCtx,
	}
}

// Resolve returns the authorization status for the user.
//
// With force unset and a trusted cache entry the cached value is returned
// immediately; on an initial load one background forced re-resolution is
// scheduled after the refresh-ahead delay so freshness catches up without
// blocking the caller. Otherwise the profile store is queried per the retry
// schedule, degrading to any cached value (even expired) and finally to a
// default-deny status.
func (r *Resolver) Resolve(ctx context.Context, userID string, initial, force bool) Outcome {
	if userID == "" {
		return Outcome{Status: auth.DefaultDeny()}
	}

	if !force {
		if st, ok := r.cache.Read(ctx, userID); ok && r.cache.Trusted(st) {
			if initial {
				r.scheduleRefreshAhead(userID)
			}
			return Outcome{Status: st, Success: true, UsedCache: true}
		}
	}

	v, _, _ := r.group.Do(userID, func() (interface{}, error) {
		return r.resolveFresh(ctx, userID), nil
	})
	return v.(Outcome)
}

// scheduleRefreshAhead queues exactly one deferred forced resolution for the
// user. The timer outlives the triggering call on purpose; its result lands
// in the cache and is picked up by the next reader.
func (r *Resolver) scheduleRefreshAhead(userID string) {
	r.afterFunc(r.cfg.RefreshAheadDelay, func() {
		r.Resolve(context.Background(), userID, false, true)
	})
}

func (r *Resolver) resolveFresh(ctx context.Context, userID string) Outcome {
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, time.Duration(attempt)*r.cfg.BackoffStep); err != nil {
				break
			}
		}

		timeout := r.cfg.BaseTimeout + time.Duration(attempt)*r.cfg.TimeoutStep
		st, err := r.queryOnce(ctx, userID, timeout)
		if err != nil {
			r.logger.WarnContext(ctx, "authorization query failed",
				"user_id", userID, "attempt", attempt, "timeout", timeout, "error", err)
			continue
		}

		stamped, writeErr := r.cache.Write(ctx, userID, st)
		if writeErr != nil {
			// Cache persistence is best-effort; the fresh value still stands.
			r.logger.WarnContext(ctx, "status cache write failed", "user_id", userID, "error", writeErr)
		}
		return Outcome{Status: stamped, Success: true}
	}

	if st, ok := r.cache.Read(ctx, userID); ok {
		r.logger.WarnContext(ctx, "authorization resolution exhausted, serving cached status",
			"user_id", userID, "cached_at", st.CachedAt)
		return Outcome{Status: st, Success: true, UsedCache: true}
	}

	r.logger.WarnContext(ctx, "authorization resolution exhausted with no cache, denying by default",
		"user_id", userID)
	return Outcome{Status: auth.DefaultDeny(), Success: false}
}

// queryOnce issues the two profile queries in parallel under one timeout.
// Context cancellation cancels both queries outright rather than orphaning
// them.
func (r *Resolver) queryOnce(ctx context.Context, userID string, timeout time.Duration) (auth.Status, error) {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		userRow    *auth.UserProfileRow
		creatorRow *auth.CreatorProfileRow
	)

	g, gctx := errgroup.WithContext(qctx)
	g.Go(func() error {
		row, err := r.profiles.UserProfile(gctx, userID)
		if err != nil {
			return err
		}
		userRow = row
		return nil
	})
	g.Go(func() error {
		row, err := r.profiles.CreatorProfile(gctx, userID)
		if err != nil {
			return err
		}
		creatorRow = row
		return nil
	})
	if err := g.Wait(); err != nil {
		return auth.Status{}, err
	}

	return r.derive(userRow, creatorRow), nil
}

// derive computes the authorization booleans from the raw profile rows.
// Absent rows yield deny-by-default fields.
func (r *Resolver) derive(u *auth.UserProfileRow, c *auth.CreatorProfileRow) auth.Status {
	var st auth.Status

	if u != nil {
		privileged := r.cfg.PrivilegedEmail != "" && strings.EqualFold(u.Email, r.cfg.PrivilegedEmail)
		st.IsAdmin = u.IsAdmin || privileged
		st.IsSubscribed = st.IsAdmin || u.IsSubscriber || u.IsComplimentary
		if u.SubscriptionTier != nil {
			st.SubscriptionTier = auth.Tier(*u.SubscriptionTier)
		}
	}
	if c != nil {
		st.IsCreator = c.Approved
	}

	st.ProfileImageURL = firstNonEmpty(
		derefString(creatorImage(c)),
		derefString(userImage(u)),
		derefString(userAvatar(u)),
	)

	return st
}

func creatorImage(c *auth.CreatorProfileRow) *string {
	if c == nil {
		return nil
	}
	return c.ProfileImage
}

func userImage(u *auth.UserProfileRow) *string {
	if u == nil {
		return nil
	}
	return u.ProfileImageURL
}

func userAvatar(u *auth.UserProfileRow) *string {
	if u == nil {
		return nil
	}
	return u.AvatarURL
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// sleepCtx waits for d or until the context is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
