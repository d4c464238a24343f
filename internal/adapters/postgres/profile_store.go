package postgres

// Package postgres provides the pgx-backed profile store the resolver reads
// authorization fields from.

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

var _ ports.ProfileStore = (*ProfileStore)(nil)

// ProfileStore reads user and creator profile rows from PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a ProfileStore backed by the given pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// UserProfile returns the user's profile row, or (nil, nil) when absent.
func (s *ProfileStore) UserProfile(ctx context.Context, userID string) (*auth.UserProfileRow, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	var row auth.UserProfileRow
	err := s.pool.QueryRow(ctx, `
		SELECT email, is_admin, is_subscriber, is_complimentary_subscription,
		       subscription_tier, profile_image_url, avatar_url
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&row.Email,
		&row.IsAdmin,
		&row.IsSubscriber,
		&row.IsComplimentary,
		&row.SubscriptionTier,
		&row.ProfileImageURL,
		&row.AvatarURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError("query user profile", err)
	}

	return &row, nil
}

// CreatorProfile returns the user's creator row, or (nil, nil) when absent.
func (s *ProfileStore) CreatorProfile(ctx context.Context, userID string) (*auth.CreatorProfileRow, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	var row auth.CreatorProfileRow
	err := s.pool.QueryRow(ctx, `
		SELECT approved, profile_image
		FROM creators
		WHERE id = $1
	`, userID).Scan(
		&row.Approved,
		&row.ProfileImage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError("query creator profile", err)
	}

	return &row, nil
}

// classifyPgError maps connection-class failures onto the transient sentinel
// so the resolver's retry schedule treats them as retryable.
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code) {
		return fmt.Errorf("%s: %w: %w", op, ports.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
