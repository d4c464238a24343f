package ports

// Package ports defines interfaces (hexagonal ports) for the session and
// authorization subsystem. Implementations live in internal/adapters;
// orchestration in internal/service.

import (
	"context"
	"errors"

	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
)

// Sentinel errors crossing the port boundary. Adapters map transport- and
// store-specific failures onto these so the service layer can classify
// without knowing the backend.
var (
	// ErrUnauthorized indicates the provider rejected the credentials or token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable indicates a transient backend failure worth retrying.
	ErrUnavailable = errors.New("backend unavailable")
)

// AuthChangeHandler receives identity-provider auth-state-change events.
// The session is nil for events that carry no session (e.g. SIGNED_OUT).
type AuthChangeHandler func(event auth.EventType, sess *auth.Session)

// OAuthInput carries inputs for initiating a third-party OAuth flow.
type OAuthInput struct {
	Provider    string
	RedirectTo  string
	QueryParams map[string]string
}

// IdentityProvider is the opaque identity service: token issuance, refresh
// and sign-out live behind it. GetSession and RefreshSession return
// (nil, nil) when no session exists; a non-nil error is a transport or
// credential failure, never "no session".
type IdentityProvider interface {
	GetSession(ctx context.Context) (*auth.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password string) (*auth.Session, error)
	BeginOAuth(ctx context.Context, in OAuthInput) (authURL string, err error)
	SignOut(ctx context.Context) error

	// OnAuthStateChange registers a handler for provider events and returns
	// an unsubscribe function.
	OnAuthStateChange(fn AuthChangeHandler) (unsubscribe func())
}

// ProfileStore reads the profile fields authorization status is derived
// from. Both queries return (nil, nil) when no row exists for the user.
type ProfileStore interface {
	UserProfile(ctx context.Context, userID string) (*auth.UserProfileRow, error)
	CreatorProfile(ctx context.Context, userID string) (*auth.CreatorProfileRow, error)
}

// KeyValueStore is durable string-keyed storage with enumerable keys.
// Get returns (nil, nil) when the key is absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// VolatileStore is the session-scoped store that recovery may clear wholesale.
type VolatileStore interface {
	KeyValueStore
	Clear(ctx context.Context) error
}

// QueryInvalidator invalidates dependent cached query results when identity
// changes make them stale.
type QueryInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}
