package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/armbareum-beep/grappl-sub006/config"
	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

// Bootstrapper orchestrates the cold-start sequence: obtain the current
// session under a bounded timeout, validate expiry, refresh if needed, set an
// optimistic user view immediately, then resolve authorization in the
// background. No failure path leaves the view loading.
type Bootstrapper struct {
	provider ports.IdentityProvider
	manager  *Manager
	resolver *Resolver
	recovery *Recovery
	cfg      config.BootstrapConfig
	clock    Clock
	logger   *slog.Logger

	// Injection point for tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// BootstrapperOptions groups dependencies for NewBootstrapper.
type BootstrapperOptions struct {
	Provider ports.IdentityProvider
	Manager  *Manager
	Resolver *Resolver
	Recovery *Recovery
	Config   config.BootstrapConfig
	Clock    Clock
	Logger   *slog.Logger
}

// NewBootstrapper constructs a Bootstrapper.
func NewBootstrapper(opts BootstrapperOptions) *Bootstrapper {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		provider:  opts.Provider,
		manager:   opts.Manager,
		resolver:  opts.Resolver,
		recovery:  opts.Recovery,
		cfg:       opts.Config,
		clock:     clock,
		logger:    logger,
		afterFunc: time.AfterFunc,
	}
}

// Run executes the bootstrap sequence once. It blocks only until the
// optimistic view is established; authorization resolution continues in the
// background. Run never returns an error: every terminal failure resolves
// into a safe signed-out view.
func (b *Bootstrapper) Run(ctx context.Context) {
	// Absolute backstop against indefinite spinners, armed before anything
	// that can stall.
	backstop := b.afterFunc(b.cfg.LoadingBackstop, b.manager.ForceLoadingDone)
	defer backstop.Stop()

	sess := b.fetchSession(ctx)

	if sess == nil {
		// Leftover provider auth keys without a live session indicate a
		// corrupted persisted state; clean up once, guarded by the cooldown.
		if b.recovery.HasStaleAuthKeys(ctx) {
			b.recovery.Recover(ctx, "stale auth keys without session")
		}
		b.manager.ForceLoadingDone()
		return
	}

	if sess.Expired(b.clock.Now()) {
		refreshed, err := b.provider.RefreshSession(ctx, sess.RefreshToken)
		if err != nil || refreshed == nil {
			// A confirmed-expired, non-refreshable session is unrecoverable
			// locally.
			b.logger.WarnContext(ctx, "expired session could not be refreshed", "error", err)
			b.recovery.Recover(ctx, "expired session refresh failed")
			b.manager.ClearUser()
			return
		}
		sess = refreshed
	}

	gen, _ := b.manager.SetUserFromSession(sess)

	go b.resolveInBackground(context.WithoutCancel(ctx), gen, sess)
}

// fetchSession races GetSession against the configured timeout. A timeout or
// transport failure yields a synthetic no-session result rather than an
// error.
func (b *Bootstrapper) fetchSession(ctx context.Context) *auth.Session {
	sctx, cancel := context.WithTimeout(ctx, b.cfg.SessionTimeout)
	defer cancel()

	sess, err := b.provider.GetSession(sctx)
	if err != nil {
		b.logger.WarnContext(ctx, "session fetch failed, proceeding without session", "error", err)
		return nil
	}
	return sess
}

func (b *Bootstrapper) resolveInBackground(ctx context.Context, gen uint64, sess *auth.Session) {
	outcome := b.resolver.Resolve(ctx, sess.UserID, true, false)
	if !outcome.Success {
		b.logger.WarnContext(ctx, "initial authorization resolution degraded to default",
			"user_id", sess.UserID)
	}
	b.manager.ApplyStatus(gen, sess.UserID, outcome.Status)
}
