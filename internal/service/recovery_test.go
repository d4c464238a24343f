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
	mocks "github.com/armbareum-beep/grappl-sub006/internal/mocks/session"
)

type recoveryFixture struct {
	recovery   *Recovery
	provider   *mocks.FakeIdentityProvider
	persistent *keyvalue.Memory
	volatile   *keyvalue.Memory
	queries    *mocks.RecordingInvalidator
	clock      *FixedClock
}

func newRecoveryFixture(t *testing.T) *recoveryFixture {
	t.Helper()
	f := &recoveryFixture{
		provider:   mocks.NewFakeIdentityProvider(),
		persistent: keyvalue.NewMemory(),
		volatile:   keyvalue.NewMemory(),
		queries:    &mocks.RecordingInvalidator{},
		clock:      NewFixedClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.recovery = NewRecovery(RecoveryOptions{
		Provider:   f.provider,
		Persistent: f.persistent,
		Volatile:   f.volatile,
		Queries:    f.queries,
		Config: config.RecoveryConfig{
			Cooldown:    30 * time.Second,
			KeyPatterns: []string{"sb-", "user_status:"},
		},
		Clock: f.clock,
	})
	return f
}

func TestRecovery_TeardownRunsEverySubStep(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	require.NoError(t, f.persistent.Set(ctx, "sb-grappl-auth-token", []byte("token")))
	require.NoError(t, f.persistent.Set(ctx, "user_status:v2:u1", []byte("{}")))
	require.NoError(t, f.persistent.Set(ctx, "unrelated-key", []byte("keep")))
	require.NoError(t, f.volatile.Set(ctx, "scroll_state", []byte("x")))

	executed := f.recovery.Recover(ctx, "test teardown")
	require.True(t, executed)

	assert.Equal(t, 1, f.provider.SignOutCalls())

	v, err := f.persistent.Get(ctx, "sb-grappl-auth-token")
	require.NoError(t, err)
	assert.Nil(t, v, "auth namespace keys are purged")

	v, err = f.persistent.Get(ctx, "user_status:v2:u1")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = f.persistent.Get(ctx, "unrelated-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), v, "keys outside the auth namespaces survive")

	keys, err := f.volatile.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "volatile store is cleared wholesale")

	assert.Equal(t, 1, f.queries.InvalidateAllCalls())

	marker, err := f.persistent.Get(ctx, recoveryMarkerKey)
	require.NoError(t, err)
	assert.NotEmpty(t, marker, "cooldown marker survives its own purge")
}

func TestRecovery_CooldownSkipsSecondTeardown(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	assert.True(t, f.recovery.Recover(ctx, "first"))
	assert.False(t, f.recovery.Recover(ctx, "second"), "second call inside cooldown is skipped")
	assert.Equal(t, 1, f.provider.SignOutCalls())

	f.clock.Advance(29 * time.Second)
	assert.False(t, f.recovery.Recover(ctx, "still inside window"))

	f.clock.Advance(2 * time.Second)
	assert.True(t, f.recovery.Recover(ctx, "past cooldown"))
	assert.Equal(t, 2, f.provider.SignOutCalls())
}

func TestRecovery_ConcurrentCallersTriggerOneTeardown(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.recovery.Recover(ctx, "concurrent")
		}(i)
	}
	wg.Wait()

	executed := 0
	for _, r := range results {
		if r {
			executed++
		}
	}
	assert.Equal(t, 1, executed, "exactly one destructive teardown per window")
	assert.Equal(t, 1, f.provider.SignOutCalls())
}

func TestRecovery_SubStepFailuresAreIsolated(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	f.provider.SignOutFunc = func(context.Context) error {
		return errors.New("network down")
	}
	f.queries.Err = errors.New("redis down")
	require.NoError(t, f.persistent.Set(ctx, "sb-grappl-auth-token", []byte("token")))

	executed := f.recovery.Recover(ctx, "degraded teardown")
	require.True(t, executed, "failing sub-steps do not abort the teardown")

	v, err := f.persistent.Get(ctx, "sb-grappl-auth-token")
	require.NoError(t, err)
	assert.Nil(t, v, "key purge ran despite the sign-out failure")
	assert.Equal(t, 1, f.queries.InvalidateAllCalls(), "invalidation was attempted")
}

func TestRecovery_UnparsableMarkerTreatedAsAbsent(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	require.NoError(t, f.persistent.Set(ctx, recoveryMarkerKey, []byte("garbage")))

	assert.True(t, f.recovery.Recover(ctx, "corrupt marker"))
}

func TestRecovery_HasStaleAuthKeys(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	assert.False(t, f.recovery.HasStaleAuthKeys(ctx), "empty store has no stale keys")

	require.NoError(t, f.persistent.Set(ctx, recoveryMarkerKey, []byte("1")))
	assert.False(t, f.recovery.HasStaleAuthKeys(ctx), "the marker itself is not a stale auth key")

	require.NoError(t, f.persistent.Set(ctx, "unrelated", []byte("1")))
	assert.False(t, f.recovery.HasStaleAuthKeys(ctx))

	require.NoError(t, f.persistent.Set(ctx, "sb-grappl-auth-token", []byte("1")))
	assert.True(t, f.recovery.HasStaleAuthKeys(ctx))
}
