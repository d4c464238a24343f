package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// details on available environment variables:
//   - auth.go: identity provider configuration
//   - session.go: resolver, recovery, and bootstrap policy
//   - database.go: postgres and redis configuration
type AppConfig struct {
	// Identity provider configuration.
	Identity IdentityConfig `envPrefix:"AUTH_"`

	// Session policy configuration.
	Session SessionConfig

	// Profile store (postgres) configuration.
	Postgres DBConfig `envPrefix:"DB_"`

	// Redis configuration for the persistent key-value store and query cache.
	Redis RedisConfig `envPrefix:"REDIS_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment
// variables.
func (c *AppConfig) Sanitize() {
	c.Identity.Sanitize()
	c.Session.Sanitize()
}
