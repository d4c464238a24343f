package config

import "time"

// ResolverConfig tunes the authorization resolver's retry/backoff/timeout
// policy and cache trust window.
type ResolverConfig struct {
	// CacheTTL is the maximum age at which a cached status is trusted.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"30m"`

	// MaxAttempts is the number of query rounds before degrading to cache
	// or default-deny.
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"3"`

	// BaseTimeout bounds the first query round; each subsequent round adds
	// TimeoutStep.
	BaseTimeout time.Duration `env:"BASE_TIMEOUT" envDefault:"3s"`
	TimeoutStep time.Duration `env:"TIMEOUT_STEP" envDefault:"1s"`

	// BackoffStep is multiplied by the zero-indexed round number to produce
	// the pre-round wait (no wait on round 0).
	BackoffStep time.Duration `env:"BACKOFF_STEP" envDefault:"200ms"`

	// RefreshAheadDelay schedules the background re-resolution after a
	// trusted cache hit on an initial load.
	RefreshAheadDelay time.Duration `env:"REFRESH_AHEAD_DELAY" envDefault:"1s"`

	// PrivilegedEmail is always treated as admin regardless of profile flags.
	PrivilegedEmail string `env:"PRIVILEGED_EMAIL" envDefault:"armbareum@gmail.com"`
}

// Sanitize applies guardrails to resolver configuration.
func (c *ResolverConfig) Sanitize() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = 3 * time.Second
	}
	if c.TimeoutStep < 0 {
		c.TimeoutStep = 0
	}
	if c.BackoffStep < 0 {
		c.BackoffStep = 0
	}
	if c.RefreshAheadDelay <= 0 {
		c.RefreshAheadDelay = time.Second
	}
}

// RecoveryConfig tunes the corrupt-state recovery controller.
type RecoveryConfig struct {
	// Cooldown is the minimum interval between destructive teardowns.
	Cooldown time.Duration `env:"COOLDOWN" envDefault:"30s"`

	// KeyPatterns are the persisted-key prefixes recovery is permitted to
	// scan-and-delete.
	KeyPatterns []string `env:"KEY_PATTERNS" envSeparator:";" envDefault:"sb-;user_status:;oauth_redirect_path"`
}

// Sanitize applies guardrails to recovery configuration.
func (c *RecoveryConfig) Sanitize() {
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if len(c.KeyPatterns) == 0 {
		c.KeyPatterns = []string{"sb-", "user_status:"}
	}
}

// BootstrapConfig tunes the cold-start sequence.
type BootstrapConfig struct {
	// SessionTimeout bounds the initial GetSession call; a timeout yields a
	// synthetic no-session result.
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"4s"`

	// LoadingBackstop forces the loading flag false if nothing else has,
	// measured from bootstrap start.
	LoadingBackstop time.Duration `env:"LOADING_BACKSTOP" envDefault:"3s"`
}

// Sanitize applies guardrails to bootstrap configuration.
func (c *BootstrapConfig) Sanitize() {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 4 * time.Second
	}
	if c.LoadingBackstop <= 0 {
		c.LoadingBackstop = 3 * time.Second
	}
}

// SessionConfig groups all session-policy configuration.
type SessionConfig struct {
	Resolver  ResolverConfig  `envPrefix:"RESOLVER_"`
	Recovery  RecoveryConfig  `envPrefix:"RECOVERY_"`
	Bootstrap BootstrapConfig `envPrefix:"BOOTSTRAP_"`
}

// Sanitize applies guardrails to all session-policy configuration.
func (c *SessionConfig) Sanitize() {
	c.Resolver.Sanitize()
	c.Recovery.Sanitize()
	c.Bootstrap.Sanitize()
}
