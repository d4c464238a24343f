package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armbareum-beep/grappl-sub006/internal/testutil"
)

func setupProfileTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id text PRIMARY KEY,
			email text NOT NULL,
			is_admin boolean NOT NULL DEFAULT false,
			is_subscriber boolean NOT NULL DEFAULT false,
			is_complimentary_subscription boolean NOT NULL DEFAULT false,
			subscription_tier text,
			profile_image_url text,
			avatar_url text
		)
	`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS creators (
			id text PRIMARY KEY,
			approved boolean NOT NULL DEFAULT false,
			profile_image text
		)
	`)
	require.NoError(t, err)
}

func insertUser(t *testing.T, pool *pgxpool.Pool, id, email string, admin, subscriber bool, tier *string) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, email, is_admin, is_subscriber, subscription_tier)
		VALUES ($1, $2, $3, $4, $5)
	`, id, email, admin, subscriber, tier)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
}

func TestProfileStore_UserProfile(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	setupProfileTables(t, pool)
	store := NewProfileStore(pool)
	ctx := context.Background()

	tier := "pro"
	id := uuid.NewString()
	insertUser(t, pool, id, "sub@example.com", false, true, &tier)

	row, err := store.UserProfile(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "sub@example.com", row.Email)
	assert.False(t, row.IsAdmin)
	assert.True(t, row.IsSubscriber)
	require.NotNil(t, row.SubscriptionTier)
	assert.Equal(t, "pro", *row.SubscriptionTier)
	assert.Nil(t, row.ProfileImageURL)
	assert.Nil(t, row.AvatarURL)
}

func TestProfileStore_UserProfileAbsent(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	setupProfileTables(t, pool)
	store := NewProfileStore(pool)

	row, err := store.UserProfile(context.Background(), uuid.NewString())
	require.NoError(t, err, "a missing user is not an error")
	assert.Nil(t, row)
}

func TestProfileStore_UserProfileRequiresID(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := NewProfileStore(pool)

	_, err := store.UserProfile(context.Background(), "")
	assert.Error(t, err)
}

func TestProfileStore_CreatorProfile(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	setupProfileTables(t, pool)
	store := NewProfileStore(pool)
	ctx := context.Background()

	id := uuid.NewString()
	img := "https://img.example/c.png"
	_, err := pool.Exec(ctx, `
		INSERT INTO creators (id, approved, profile_image) VALUES ($1, true, $2)
	`, id, img)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM creators WHERE id = $1`, id)
	})

	row, err := store.CreatorProfile(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.Approved)
	require.NotNil(t, row.ProfileImage)
	assert.Equal(t, img, *row.ProfileImage)
}

func TestProfileStore_CreatorProfileAbsent(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	setupProfileTables(t, pool)
	store := NewProfileStore(pool)

	row, err := store.CreatorProfile(context.Background(), uuid.NewString())
	require.NoError(t, err, "non-creators simply have no row")
	assert.Nil(t, row)
}
