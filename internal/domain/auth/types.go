package auth

// Package auth contains domain-level types for sessions and authorization
// state. It is pure and free of framework/adapter concerns.

import "time"

// Tier represents a subscription tier.
// Keep string form for easy persistence and comparison.
type Tier string

const (
	TierFree Tier = "free"
)

// Session is the read-only copy of the identity provider's proof that a user
// is currently authenticated. It is created on sign-in, replaced on refresh,
// and destroyed on sign-out or expiry-without-refresh.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session's expiry has passed at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// Status is the derived, cacheable authorization state for one user.
// It is created and overwritten only by the resolver; CachedAt is stamped by
// the status cache on write and must never be set by callers.
type Status struct {
	IsAdmin          bool      `json:"is_admin"`
	IsSubscribed     bool      `json:"is_subscribed"`
	SubscriptionTier Tier      `json:"subscription_tier,omitempty"`
	IsCreator        bool      `json:"is_creator"`
	ProfileImageURL  string    `json:"profile_image_url,omitempty"`
	CachedAt         time.Time `json:"cached_at"`
}

// DefaultDeny returns the hard-coded fail-closed status used when resolution
// exhausts all attempts and no cached value exists.
func DefaultDeny() Status {
	return Status{SubscriptionTier: TierFree}
}

// User is the view model exposed to the UI layer: session identity merged
// with the latest known authorization status. Every authorization field is
// always defined (zero value = deny) so consumers never branch on absence.
type User struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	IsAdmin          bool   `json:"is_admin"`
	IsCreator        bool   `json:"is_creator"`
	IsSubscribed     bool   `json:"is_subscribed"`
	SubscriptionTier Tier   `json:"subscription_tier,omitempty"`
	ProfileImageURL  string `json:"profile_image_url,omitempty"`
}

// View is the externally observable snapshot consumed by the UI layer.
type View struct {
	User         *User
	Loading      bool
	IsAdmin      bool
	IsCreator    bool
	IsSubscribed bool
}

// EventType names an identity-provider auth-state-change event.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedOut      EventType = "SIGNED_OUT"
)

// UserProfileRow is the subset of the users table read by the resolver.
// Pointer fields model nullable columns.
type UserProfileRow struct {
	Email            string
	IsAdmin          bool
	IsSubscriber     bool
	IsComplimentary  bool
	SubscriptionTier *string
	ProfileImageURL  *string
	AvatarURL        *string
}

// CreatorProfileRow is the subset of the creators table read by the resolver.
type CreatorProfileRow struct {
	Approved     bool
	ProfileImage *string
}
