package session

// Package session contains simple hand-written test doubles for the session
// ports. These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"time"

	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.ProfileStore     = (*FakeProfileStore)(nil)
	_ ports.QueryInvalidator = (*RecordingInvalidator)(nil)
)

// FakeIdentityProvider simulates the identity provider with overridable
// behavior per method and a real event-handler registry so tests can push
// auth-state changes.
type FakeIdentityProvider struct {
	GetSessionFunc         func(ctx context.Context) (*auth.Session, error)
	RefreshSessionFunc     func(ctx context.Context, refreshToken string) (*auth.Session, error)
	SignInWithPasswordFunc func(ctx context.Context, email, password string) (*auth.Session, error)
	SignUpFunc             func(ctx context.Context, email, password string) (*auth.Session, error)
	BeginOAuthFunc         func(ctx context.Context, in ports.OAuthInput) (string, error)
	SignOutFunc            func(ctx context.Context) error

	mu           sync.Mutex
	handlers     []ports.AuthChangeHandler
	signOutCalls int
}

// NewFakeIdentityProvider creates a provider whose every call succeeds with
// zero-value results.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{}
}

func (f *FakeIdentityProvider) GetSession(ctx context.Context) (*auth.Session, error) {
	if f.GetSessionFunc != nil {
		return f.GetSessionFunc(ctx)
	}
	return nil, nil
}

func (f *FakeIdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	if f.RefreshSessionFunc != nil {
		return f.RefreshSessionFunc(ctx, refreshToken)
	}
	return nil, nil
}

func (f *FakeIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	if f.SignInWithPasswordFunc != nil {
		return f.SignInWithPasswordFunc(ctx, email, password)
	}
	return nil, nil
}

func (f *FakeIdentityProvider) SignUp(ctx context.Context, email, password string) (*auth.Session, error) {
	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, email, password)
	}
	return nil, nil
}

func (f *FakeIdentityProvider) BeginOAuth(ctx context.Context, in ports.OAuthInput) (string, error) {
	if f.BeginOAuthFunc != nil {
		return f.BeginOAuthFunc(ctx, in)
	}
	return "https://fake-idp/authorize", nil
}

func (f *FakeIdentityProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	f.mu.Unlock()
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	return nil
}

func (f *FakeIdentityProvider) OnAuthStateChange(fn ports.AuthChangeHandler) func() {
	f.mu.Lock()
	f.handlers = append(f.handlers, fn)
	idx := len(f.handlers) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handlers[idx] = nil
		f.mu.Unlock()
	}
}

// Emit pushes an auth-state change to every subscribed handler.
func (f *FakeIdentityProvider) Emit(event auth.EventType, sess *auth.Session) {
	f.mu.Lock()
	handlers := make([]ports.AuthChangeHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.Unlock()
	for _, fn := range handlers {
		if fn != nil {
			fn(event, sess)
		}
	}
}

// SignOutCalls returns how many times SignOut was invoked.
func (f *FakeIdentityProvider) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

// NewValidSession builds a session expiring one hour from now, for tests.
func NewValidSession(userID, email string) *auth.Session {
	now := time.Now()
	return &auth.Session{
		UserID:       userID,
		Email:        email,
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

// FakeProfileStore simulates the profile store with overridable behavior and
// call counting so tests can assert on query volume.
type FakeProfileStore struct {
	UserProfileFunc    func(ctx context.Context, userID string) (*auth.UserProfileRow, error)
	CreatorProfileFunc func(ctx context.Context, userID string) (*auth.CreatorProfileRow, error)

	mu           sync.Mutex
	userCalls    int
	creatorCalls int
}

func (f *FakeProfileStore) UserProfile(ctx context.Context, userID string) (*auth.UserProfileRow, error) {
	f.mu.Lock()
	f.userCalls++
	f.mu.Unlock()
	if f.UserProfileFunc != nil {
		return f.UserProfileFunc(ctx, userID)
	}
	return nil, nil
}

func (f *FakeProfileStore) CreatorProfile(ctx context.Context, userID string) (*auth.CreatorProfileRow, error) {
	f.mu.Lock()
	f.creatorCalls++
	f.mu.Unlock()
	if f.CreatorProfileFunc != nil {
		return f.CreatorProfileFunc(ctx, userID)
	}
	return nil, nil
}

// UserProfileCalls returns how many times UserProfile was invoked.
func (f *FakeProfileStore) UserProfileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCalls
}

// CreatorProfileCalls returns how many times CreatorProfile was invoked.
func (f *FakeProfileStore) CreatorProfileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creatorCalls
}

// RecordingInvalidator records query-cache invalidations.
type RecordingInvalidator struct {
	mu       sync.Mutex
	userIDs  []string
	allCalls int
	Err      error
}

func (r *RecordingInvalidator) InvalidateUser(_ context.Context, userID string) error {
	r.mu.Lock()
	r.userIDs = append(r.userIDs, userID)
	r.mu.Unlock()
	return r.Err
}

func (r *RecordingInvalidator) InvalidateAll(context.Context) error {
	r.mu.Lock()
	r.allCalls++
	r.mu.Unlock()
	return r.Err
}

// InvalidatedUsers returns the user ids passed to InvalidateUser, in order.
func (r *RecordingInvalidator) InvalidatedUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.userIDs))
	copy(out, r.userIDs)
	return out
}

// InvalidateAllCalls returns how many times InvalidateAll was invoked.
func (r *RecordingInvalidator) InvalidateAllCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allCalls
}
