package service

import (
	"context"
	"log/slog"

	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

// EventBridge subscribes to the identity provider's auth-state-change stream
// and reduces each event into a manager transition, so provider pushes and
// the cold-start bootstrap converge on one consistent view.
type EventBridge struct {
	manager  *Manager
	resolver *Resolver
	queries  ports.QueryInvalidator
	logger   *slog.Logger
}

// EventBridgeOptions groups dependencies for NewEventBridge.
type EventBridgeOptions struct {
	Manager  *Manager
	Resolver *Resolver
	Queries  ports.QueryInvalidator
	Logger   *slog.Logger
}

// NewEventBridge constructs an EventBridge.
func NewEventBridge(opts EventBridgeOptions) *EventBridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBridge{
		manager:  opts.Manager,
		resolver: opts.Resolver,
		queries:  opts.Queries,
		logger:   logger,
	}
}

// Start subscribes to the provider's event stream for the lifetime of the
// app and returns the unsubscribe function.
func (b *EventBridge) Start(provider ports.IdentityProvider) func() {
	return provider.OnAuthStateChange(b.Handle)
}

// Handle reduces one provider event into a state transition. It never blocks
// on the network: resolution runs in the background and merges through the
// manager's generation check.
func (b *EventBridge) Handle(event auth.EventType, sess *auth.Session) {
	ctx := context.Background()

	switch event {
	case auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventInitialSession:
		if sess == nil || sess.UserID == "" {
			// No user in the event; just make sure loading completes.
			b.manager.ForceLoadingDone()
			return
		}

		if event == auth.EventSignedIn {
			// A new identity invalidates whatever the previous one cached.
			if err := b.queries.InvalidateUser(ctx, sess.UserID); err != nil {
				b.logger.Warn("query invalidation on sign-in failed",
					"user_id", sess.UserID, "error", err)
			}
		}

		gen, _ := b.manager.SetUserFromSession(sess)

		go func() {
			outcome := b.resolver.Resolve(ctx, sess.UserID, false, false)
			if !outcome.Success {
				b.logger.Warn("authorization resolution degraded to default",
					"event", string(event), "user_id", sess.UserID)
			}
			b.manager.ApplyStatus(gen, sess.UserID, outcome.Status)
		}()

	case auth.EventSignedOut:
		prev := b.manager.CurrentUserID()
		if prev == "" {
			// Nothing held: either a provider echo of a locally initiated
			// sign-out or a cold start with no session. Completing loading is
			// all that is left to do; a second clear would only burn a
			// generation and renotify subscribers.
			b.manager.ForceLoadingDone()
			return
		}
		if err := b.queries.InvalidateUser(ctx, prev); err != nil {
			b.logger.Warn("query invalidation on sign-out failed",
				"user_id", prev, "error", err)
		}
		// Synchronous clear: must not wait on any network round trip.
		b.manager.ClearUser()

	default:
		b.logger.Debug("ignoring unhandled auth event", "event", string(event))
	}
}
