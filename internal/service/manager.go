package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

// defaultSignOutTimeout bounds the background provider sign-out call so a
// dead network cannot hold resources indefinitely.
const defaultSignOutTimeout = 5 * time.Second

// Manager is the single authoritative holder of the externally observable
// session view. All mutations funnel through it; a monotonic generation
// counter makes late-arriving background results provably discardable.
type Manager struct {
	mu         sync.Mutex
	user       *auth.User
	loading    bool
	generation uint64
	subs       map[string]func(auth.View)

	resolver *Resolver
	provider ports.IdentityProvider
	queries  ports.QueryInvalidator
	logger   *slog.Logger

	signOutTimeout time.Duration
}

// ManagerOptions groups dependencies for NewManager.
type ManagerOptions struct {
	Resolver *Resolver
	Provider ports.IdentityProvider
	Queries  ports.QueryInvalidator
	Logger   *slog.Logger
}

// NewManager constructs a Manager. The view starts loading with no user.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loading:        true,
		subs:           make(map[string]func(auth.View)),
		resolver:       opts.Resolver,
		provider:       opts.Provider,
		queries:        opts.Queries,
		logger:         logger,
		signOutTimeout: defaultSignOutTimeout,
	}
}

// Snapshot returns the current view. The contained User is a copy.
func (m *Manager) Snapshot() auth.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Subscribe registers an observer notified with a snapshot after every view
// change. It returns an unsubscribe function.
func (m *Manager) Subscribe(fn func(auth.View)) func() {
	id := uuid.NewString()
	m.mu.Lock()
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// SetUserFromSession installs an optimistic user view from the raw session:
// authorization fields default to deny and loading completes immediately so
// the UI never blocks on resolution. When the incoming identity matches the
// currently held one the call is a no-op apart from completing loading, and
// the existing generation is returned (no redundant notifications or
// resolutions).
func (m *Manager) SetUserFromSession(sess *auth.Session) (gen uint64, changed bool) {
	if sess == nil || sess.UserID == "" {
		m.ForceLoadingDone()
		m.mu.Lock()
		gen = m.generation
		m.mu.Unlock()
		return gen, false
	}

	m.mu.Lock()
	if m.user != nil && m.user.ID == sess.UserID {
		gen = m.generation
		stillLoading := m.loading
		m.loading = false
		view := m.viewLocked()
		subs := m.subsLocked()
		m.mu.Unlock()
		if stillLoading {
			notify(subs, view)
		}
		return gen, false
	}

	m.generation++
	gen = m.generation
	m.user = &auth.User{ID: sess.UserID, Email: sess.Email}
	m.loading = false
	view := m.viewLocked()
	subs := m.subsLocked()
	m.mu.Unlock()

	notify(subs, view)
	return gen, true
}

// ApplyStatus merges a resolved authorization status into the view. Results
// from a superseded generation or a mismatched identity are discarded: a
// background resolution that completes after a newer event must not leak
// stale privileges.
func (m *Manager) ApplyStatus(gen uint64, userID string, st auth.Status) {
	m.mu.Lock()
	if gen != m.generation || m.user == nil || m.user.ID != userID {
		m.mu.Unlock()
		m.logger.Debug("discarding stale authorization result",
			"user_id", userID, "generation", gen)
		return
	}

	m.user.IsAdmin = st.IsAdmin
	m.user.IsCreator = st.IsCreator
	m.user.IsSubscribed = st.IsSubscribed
	m.user.SubscriptionTier = st.SubscriptionTier
	m.user.ProfileImageURL = st.ProfileImageURL
	view := m.viewLocked()
	subs := m.subsLocked()
	m.mu.Unlock()

	notify(subs, view)
}

// ClearUser transitions to a signed-out view synchronously. Loading completes
// immediately; nothing waits on the network.
func (m *Manager) ClearUser() {
	m.mu.Lock()
	m.generation++
	m.user = nil
	m.loading = false
	view := m.viewLocked()
	subs := m.subsLocked()
	m.mu.Unlock()

	notify(subs, view)
}

// ForceLoadingDone flips loading false if nothing else has. Idempotent; the
// bootstrapper's backstop timer uses it as the absolute ceiling on spinners.
func (m *Manager) ForceLoadingDone() {
	m.mu.Lock()
	if !m.loading {
		m.mu.Unlock()
		return
	}
	m.loading = false
	view := m.viewLocked()
	subs := m.subsLocked()
	m.mu.Unlock()

	m.logger.Warn("loading state forced to complete")
	notify(subs, view)
}

// CurrentUserID returns the held identity, or empty when signed out.
func (m *Manager) CurrentUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

// Generation returns the current generation counter.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// RefreshUser forces a non-cached re-resolution for the current user and
// merges the result. A missing user or a degraded resolution is absorbed
// silently; the optimistic defaults already hold.
func (m *Manager) RefreshUser(ctx context.Context) {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return
	}
	userID := m.user.ID
	gen := m.generation
	m.mu.Unlock()

	outcome := m.resolver.Resolve(ctx, userID, false, true)
	if !outcome.Success {
		m.logger.WarnContext(ctx, "forced refresh degraded to default status", "user_id", userID)
	}
	m.ApplyStatus(gen, userID, outcome.Status)
}

// SignOut clears the view synchronously and fires the provider sign-out in
// the background under its own timeout, so a dead network during sign-out
// can never produce an indefinite spinner. It always completes.
func (m *Manager) SignOut(ctx context.Context) {
	prev := m.CurrentUserID()
	m.ClearUser()

	if prev != "" {
		if err := m.queries.InvalidateUser(ctx, prev); err != nil {
			m.logger.WarnContext(ctx, "query invalidation on sign-out failed", "user_id", prev, "error", err)
		}
	}

	go func() {
		octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.signOutTimeout)
		defer cancel()
		if err := m.provider.SignOut(octx); err != nil {
			m.logger.Warn("provider sign-out failed", "error", err)
		}
	}()
}

// viewLocked derives the snapshot; callers must hold the mutex.
func (m *Manager) viewLocked() auth.View {
	v := auth.View{Loading: m.loading}
	if m.user != nil {
		u := *m.user
		v.User = &u
		v.IsAdmin = u.IsAdmin
		v.IsCreator = u.IsCreator
		v.IsSubscribed = u.IsSubscribed
	}
	return v
}

// subsLocked copies the subscriber list; callers must hold the mutex.
func (m *Manager) subsLocked() []func(auth.View) {
	out := make([]func(auth.View), 0, len(m.subs))
	for _, fn := range m.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(auth.View), view auth.View) {
	for _, fn := range subs {
		fn(view)
	}
}
