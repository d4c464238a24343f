package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armbareum-beep/grappl-sub006/config"
	"github.com/armbareum-beep/grappl-sub006/internal/adapters/keyvalue"
	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	mocks "github.com/armbareum-beep/grappl-sub006/internal/mocks/session"
)

type bootFixture struct {
	boot       *Bootstrapper
	manager    *Manager
	provider   *mocks.FakeIdentityProvider
	profiles   *mocks.FakeProfileStore
	persistent *keyvalue.Memory
	clock      *FixedClock

	mu       sync.Mutex
	backstop []func()
}

func newBootFixture(t *testing.T) *bootFixture {
	t.Helper()
	f := &bootFixture{
		provider:   mocks.NewFakeIdentityProvider(),
		profiles:   &mocks.FakeProfileStore{},
		persistent: keyvalue.NewMemory(),
		clock:      NewFixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
	}

	cache := NewStatusCache(StatusCacheOptions{
		Store: f.persistent,
		Clock: f.clock,
		TTL:   30 * time.Minute,
	})
	resolver := NewResolver(ResolverOptions{
		Profiles: f.profiles,
		Cache:    cache,
		Config:   testResolverConfig(),
	})
	f.manager = NewManager(ManagerOptions{
		Resolver: resolver,
		Provider: f.provider,
		Queries:  &mocks.RecordingInvalidator{},
	})
	recovery := NewRecovery(RecoveryOptions{
		Provider:   f.provider,
		Persistent: f.persistent,
		Volatile:   keyvalue.NewMemory(),
		Queries:    &mocks.RecordingInvalidator{},
		Config: config.RecoveryConfig{
			Cooldown:    30 * time.Second,
			KeyPatterns: []string{"sb-", "user_status:"},
		},
		Clock: f.clock,
	})
	f.boot = NewBootstrapper(BootstrapperOptions{
		Provider: f.provider,
		Manager:  f.manager,
		Resolver: resolver,
		Recovery: recovery,
		Config: config.BootstrapConfig{
			SessionTimeout:  100 * time.Millisecond,
			LoadingBackstop: 3 * time.Second,
		},
		Clock: f.clock,
	})
	// Capture the backstop callback instead of arming a real timer.
	f.boot.afterFunc = func(_ time.Duration, fn func()) *time.Timer {
		f.mu.Lock()
		f.backstop = append(f.backstop, fn)
		f.mu.Unlock()
		return time.NewTimer(time.Hour)
	}
	return f
}

// session returns a session whose expiry is relative to the fixture clock.
func (f *bootFixture) session(userID string, ttl time.Duration) *auth.Session {
	return &auth.Session{
		UserID:       userID,
		Email:        userID + "@example.com",
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		IssuedAt:     f.clock.Now().Add(-time.Minute),
		ExpiresAt:    f.clock.Now().Add(ttl),
	}
}

func TestBootstrapper_ValidSessionSetsOptimisticUserThenResolves(t *testing.T) {
	f := newBootFixture(t)
	f.provider.GetSessionFunc = func(context.Context) (*auth.Session, error) {
		return f.session("u1", time.Hour), nil
	}
	f.profiles.UserProfileFunc = func(context.Context, string) (*auth.UserProfileRow, error) {
		return &auth.UserProfileRow{Email: "u1@example.com", IsSubscriber: true}, nil
	}

	f.boot.Run(context.Background())

	view := f.manager.Snapshot()
	require.NotNil(t, view.User)
	assert.Equal(t, "u1", view.User.ID)
	assert.False(t, view.Loading, "the optimistic view never waits on resolution")

	require.Eventually(t, func() bool {
		return f.manager.Snapshot().IsSubscribed
	}, time.Second, 5*time.Millisecond, "background resolution merges into the view")
}

func TestBootstrapper_NoSessionCompletesLoadingSignedOut(t *testing.T) {
	f := newBootFixture(t)

	f.boot.Run(context.Background())

	view := f.manager.Snapshot()
	assert.Nil(t, view.User)
	assert.False(t, view.Loading)
	assert.Zero(t, f.provider.SignOutCalls(), "a clean signed-out start needs no recovery")
}

func TestBootstrapper_SessionFetchErrorTreatedAsNoSession(t *testing.T) {
	f := newBootFixture(t)
	f.provider.GetSessionFunc = func(context.Context) (*auth.Session, error) {
		return nil, errors.New("transport down")
	}

	f.boot.Run(context.Background())

	view := f.manager.Snapshot()
	assert.Nil(t, view.User)
	assert.False(t, view.Loading)
}

func TestBootstrapper_HungSessionFetchIsBounded(t *testing.T) {
	f := newBootFixture(t)
	f.provider.GetSessionFunc = func(ctx context.Context) (*auth.Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	f.boot.Run(context.Background())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "the session fetch is cut off by its timeout")
	assert.False(t, f.manager.Snapshot().Loading)
}

func TestBootstrapper_StaleAuthKeysWithoutSessionTriggerRecovery(t *testing.T) {
	f := newBootFixture(t)
	ctx := context.Background()
	require.NoError(t, f.persistent.Set(ctx, "sb-grappl-auth-token", []byte("orphaned")))

	f.boot.Run(ctx)

	assert.Equal(t, 1, f.provider.SignOutCalls(), "recovery tore down the orphaned state")
	v, err := f.persistent.Get(ctx, "sb-grappl-auth-token")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, f.manager.Snapshot().Loading)
}

func TestBootstrapper_ExpiredSessionRefreshesAndProceeds(t *testing.T) {
	f := newBootFixture(t)
	f.provider.GetSessionFunc = func(context.Context) (*auth.Session, error) {
		return f.session("u1", -time.Minute), nil
	}
	f.provider.RefreshSessionFunc = func(_ context.Context, refreshToken string) (*auth.Session, error) {
		assert.Equal(t, "refresh-u1", refreshToken)
		return f.session("u1", time.Hour), nil
	}

	f.boot.Run(context.Background())

	view := f.manager.Snapshot()
	require.NotNil(t, view.User)
	assert.Equal(t, "u1", view.User.ID)
}

func TestBootstrapper_UnrefreshableExpiredSessionRecoversAndClears(t *testing.T) {
	f := newBootFixture(t)
	f.provider.GetSessionFunc = func(context.Context) (*auth.Session, error) {
		return f.session("u1", -time.Minute), nil
	}
	f.provider.RefreshSessionFunc = func(context.Context, string) (*auth.Session, error) {
		return nil, errors.New("refresh token revoked")
	}

	f.boot.Run(context.Background())

	view := f.manager.Snapshot()
	assert.Nil(t, view.User, "an unrecoverable session resolves to signed out")
	assert.False(t, view.Loading)
	assert.Equal(t, 1, f.provider.SignOutCalls(), "recovery ran for the dead session")
}

func TestBootstrapper_BackstopForcesLoadingDone(t *testing.T) {
	f := newBootFixture(t)
	// A provider that returns a valid session but a resolution that never
	// finishes would normally leave resolution pending; the backstop only
	// guards the loading flag, which the optimistic path already cleared.
	// Here we exercise the raw backstop: fire it against a still-loading view.
	require.True(t, f.manager.Snapshot().Loading)

	f.boot.Run(context.Background())

	f.mu.Lock()
	require.Len(t, f.backstop, 1, "Run arms exactly one backstop timer")
	fire := f.backstop[0]
	f.mu.Unlock()

	fire()
	assert.False(t, f.manager.Snapshot().Loading)
}

func TestBootstrapper_StaleResolutionCannotOverwriteNewerSignIn(t *testing.T) {
	f := newBootFixture(t)
	release := make(chan struct{})
	f.provider.GetSessionFunc = func(context.Context) (*auth.Session, error) {
		return f.session("u1", time.Hour), nil
	}
	f.profiles.UserProfileFunc = func(context.Context, string) (*auth.UserProfileRow, error) {
		<-release
		return &auth.UserProfileRow{Email: "u1@example.com", IsAdmin: true}, nil
	}

	f.boot.Run(context.Background())

	// A newer identity arrives while u1's resolution is still in flight.
	f.manager.SetUserFromSession(mocks.NewValidSession("u2", "u2@example.com"))
	close(release)

	require.Eventually(t, func() bool {
		return f.profiles.UserProfileCalls() >= 1
	}, time.Second, 5*time.Millisecond)

	// Give the stale ApplyStatus a chance to run; it must be discarded.
	time.Sleep(20 * time.Millisecond)
	view := f.manager.Snapshot()
	require.NotNil(t, view.User)
	assert.Equal(t, "u2", view.User.ID)
	assert.False(t, view.IsAdmin, "u1's late result must not grant u2 admin")
}
