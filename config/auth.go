package config

import "strings"

// IdentityConfig contains identity-provider (GoTrue-compatible) configuration.
type IdentityConfig struct {
	// BaseURL is the provider's auth endpoint root, e.g.
	// https://<project>.supabase.co/auth/v1
	BaseURL string `env:"BASE_URL"`

	// APIKey is the project's public (anon) API key sent with every request.
	APIKey string `env:"API_KEY"`

	// ProjectRef namespaces the persisted session key (sb-<ref>-auth-token).
	ProjectRef string `env:"PROJECT_REF" envDefault:"grappl"`

	// RedirectURL is the post-OAuth landing URL.
	RedirectURL string `env:"REDIRECT_URL" envDefault:"http://localhost:3000/"`

	// VerifyTokens enables remote-JWKS verification of stored access tokens
	// on session load. Requires IssuerURL.
	VerifyTokens bool `env:"VERIFY_TOKENS" envDefault:"false"`

	// IssuerURL is the token issuer used for JWKS discovery when
	// VerifyTokens is set. Defaults to BaseURL when empty.
	IssuerURL string `env:"ISSUER_URL"`
}

// Sanitize applies guardrails to identity configuration.
func (c *IdentityConfig) Sanitize() {
	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if c.IssuerURL == "" {
		c.IssuerURL = c.BaseURL
	}
	if c.VerifyTokens && c.IssuerURL == "" {
		c.VerifyTokens = false
	}
}

// SessionStorageKey returns the key the provider persists its session under.
// The sb- prefix matches the provider's own client libraries so recovery can
// scan-and-delete stale entries by name pattern.
func (c IdentityConfig) SessionStorageKey() string {
	return "sb-" + c.ProjectRef + "-auth-token"
}
