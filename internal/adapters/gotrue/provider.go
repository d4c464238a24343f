package gotrue

// Package gotrue provides an HTTP identity-provider adapter for
// GoTrue-compatible auth services (Supabase auth). Token issuance, refresh,
// and OAuth machinery stay opaque behind the IdentityProvider port; this
// adapter only moves sessions across the wire and persists the current one.

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/armbareum-beep/grappl-sub006/internal/domain/auth"
	"github.com/armbareum-beep/grappl-sub006/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Provider implements the IdentityProvider port against a GoTrue-compatible
// HTTP API. The current session is persisted in the injected key-value store
// under StorageKey so it survives restarts, mirroring the provider's own
// client libraries.
type Provider struct {
	baseURL     string
	apiKey      string
	storageKey  string
	redirectURL string
	httpClient  *http.Client
	store       ports.KeyValueStore
	verifier    *gooidc.IDTokenVerifier
	logger      *slog.Logger

	mu       sync.Mutex
	handlers map[string]ports.AuthChangeHandler
}

// ProviderConfig holds configuration for the GoTrue provider.
type ProviderConfig struct {
	// BaseURL is the auth endpoint root, e.g. https://x.supabase.co/auth/v1.
	BaseURL string
	// APIKey is the public (anon) API key sent with every request.
	APIKey string
	// StorageKey is the persistent-store key holding the current session.
	StorageKey string
	// RedirectURL is the default post-OAuth landing URL.
	RedirectURL string
	// Store persists the current session across restarts.
	Store ports.KeyValueStore
	// VerifyTokens enables remote-JWKS signature verification of stored
	// access tokens on load. Expiry is deliberately not checked here; the
	// bootstrapper owns the expiry/refresh decision.
	VerifyTokens bool
	// IssuerURL overrides BaseURL as the token issuer for verification.
	IssuerURL string

	HTTPClient *http.Client // Optional, defaults to a 30s-timeout client
	Logger     *slog.Logger
}

// NewProvider creates a GoTrue provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.StorageKey == "" {
		return nil, errors.New("storage key is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session store is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		storageKey:  cfg.StorageKey,
		redirectURL: cfg.RedirectURL,
		httpClient:  httpClient,
		store:       cfg.Store,
		logger:      logger,
		handlers:    make(map[string]ports.AuthChangeHandler),
	}

	if cfg.VerifyTokens {
		issuer := cfg.IssuerURL
		if issuer == "" {
			issuer = p.baseURL
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		keySet := gooidc.NewRemoteKeySet(ctx, issuer+"/.well-known/jwks.json")
		p.verifier = gooidc.NewVerifier(issuer, keySet, &gooidc.Config{
			SkipClientIDCheck: true,
			SkipExpiryCheck:   true,
		})
	}

	return p, nil
}

// GetSession loads the persisted session. Absent, corrupt, or unverifiable
// entries yield (nil, nil): no session is a state, not an error.
func (p *Provider) GetSession(ctx context.Context) (*auth.Session, error) {
	data, err := p.store.Get(ctx, p.storageKey)
	if err != nil {
		p.logger.WarnContext(ctx, "session storage read failed", "error", err)
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}

	var sess auth.Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.UserID == "" || sess.AccessToken == "" {
		p.logger.WarnContext(ctx, "discarding corrupt persisted session", "error", err)
		if rmErr := p.store.Remove(ctx, p.storageKey); rmErr != nil {
			p.logger.DebugContext(ctx, "corrupt session removal failed", "error", rmErr)
		}
		return nil, nil
	}

	if p.verifier != nil {
		if _, err := p.verifier.Verify(ctx, sess.AccessToken); err != nil {
			p.logger.WarnContext(ctx, "stored access token failed verification", "error", err)
			return nil, nil
		}
	}

	return &sess, nil
}

// SignInWithPassword exchanges credentials for a session, persists it, and
// emits SIGNED_IN.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	body := map[string]string{
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"password": strings.TrimSpace(password),
	}
	var tr tokenResponse
	if err := p.doJSON(ctx, http.MethodPost, p.baseURL+"/token?grant_type=password", body, "", &tr); err != nil {
		return nil, fmt.Errorf("password sign-in: %w", err)
	}

	sess := tr.toSession(time.Now())
	p.persistSession(ctx, sess)
	p.emit(auth.EventSignedIn, sess)
	return sess, nil
}

// SignUp registers a new user. When the provider requires email confirmation
// no session is issued yet and (nil, nil) is returned.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*auth.Session, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	body := map[string]string{
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"password": strings.TrimSpace(password),
	}
	var tr tokenResponse
	if err := p.doJSON(ctx, http.MethodPost, p.baseURL+"/signup", body, "", &tr); err != nil {
		return nil, fmt.Errorf("sign-up: %w", err)
	}

	if tr.AccessToken == "" {
		return nil, nil
	}

	sess := tr.toSession(time.Now())
	p.persistSession(ctx, sess)
	p.emit(auth.EventSignedIn, sess)
	return sess, nil
}

// RefreshSession exchanges the refresh capability for a new session,
// persists it, and emits TOKEN_REFRESHED.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: %w", ports.ErrUnauthorized)
	}

	body := map[string]string{"refresh_token": refreshToken}
	var tr tokenResponse
	if err := p.doJSON(ctx, http.MethodPost, p.baseURL+"/token?grant_type=refresh_token", body, "", &tr); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	sess := tr.toSession(time.Now())
	p.persistSession(ctx, sess)
	p.emit(auth.EventTokenRefreshed, sess)
	return sess, nil
}

// BeginOAuth builds the provider's authorize URL for a third-party OAuth
// flow. The browser completes the flow; the session lands via the provider's
// redirect machinery.
func (p *Provider) BeginOAuth(_ context.Context, in ports.OAuthInput) (string, error) {
	if in.Provider == "" {
		return "", errors.New("oauth provider is required")
	}

	redirectTo := in.RedirectTo
	if redirectTo == "" {
		redirectTo = p.redirectURL
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	cfg := &oauth2.Config{
		RedirectURL: redirectTo,
		Endpoint:    oauth2.Endpoint{AuthURL: p.baseURL + "/authorize"},
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("provider", in.Provider),
		oauth2.SetAuthURLParam("redirect_to", redirectTo),
	}
	for k, v := range in.QueryParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return cfg.AuthCodeURL(state, opts...), nil
}

// SignOut revokes the session server-side (best-effort), always removes the
// persisted session, and emits SIGNED_OUT. The local teardown happens even
// when the network call fails.
func (p *Provider) SignOut(ctx context.Context) error {
	var bearer string
	if data, err := p.store.Get(ctx, p.storageKey); err == nil && len(data) > 0 {
		var sess auth.Session
		if json.Unmarshal(data, &sess) == nil {
			bearer = sess.AccessToken
		}
	}

	var revokeErr error
	if bearer != "" {
		revokeErr = p.doJSON(ctx, http.MethodPost, p.baseURL+"/logout", nil, bearer, nil)
	}

	if err := p.store.Remove(ctx, p.storageKey); err != nil {
		p.logger.WarnContext(ctx, "persisted session removal failed", "error", err)
	}
	p.emit(auth.EventSignedOut, nil)

	if revokeErr != nil {
		return fmt.Errorf("revoke session: %w", revokeErr)
	}
	return nil
}

// OnAuthStateChange registers a handler for auth events and returns an
// unsubscribe function.
func (p *Provider) OnAuthStateChange(fn ports.AuthChangeHandler) func() {
	id := uuid.NewString()
	p.mu.Lock()
	p.handlers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

// emit delivers an event to every registered handler outside the lock.
func (p *Provider) emit(event auth.EventType, sess *auth.Session) {
	p.mu.Lock()
	handlers := make([]ports.AuthChangeHandler, 0, len(p.handlers))
	for _, fn := range p.handlers {
		handlers = append(handlers, fn)
	}
	p.mu.Unlock()

	for _, fn := range handlers {
		fn(event, sess)
	}
}

func (p *Provider) persistSession(ctx context.Context, sess *auth.Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		p.logger.WarnContext(ctx, "session marshal failed", "error", err)
		return
	}
	if err := p.store.Set(ctx, p.storageKey, data); err != nil {
		// Persistence failures must not abort the sign-in itself.
		p.logger.WarnContext(ctx, "session persistence failed", "error", err)
	}
}

// tokenResponse is the GoTrue token/signup response shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// toSession maps a token response to a domain session, recovering missing
// identity and expiry fields from the access token's claims.
func (tr tokenResponse) toSession(now time.Time) *auth.Session {
	sub, email, exp := claimsFromToken(tr.AccessToken)

	sess := &auth.Session{
		UserID:       tr.User.ID,
		Email:        tr.User.Email,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IssuedAt:     now,
	}
	if sess.UserID == "" {
		sess.UserID = sub
	}
	if sess.Email == "" {
		sess.Email = email
	}

	switch {
	case tr.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		sess.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	case !exp.IsZero():
		sess.ExpiresAt = exp
	default:
		sess.ExpiresAt = now.Add(time.Hour)
	}

	return sess
}

// claimsFromToken extracts sub, email, and exp from a JWT without verifying
// it. Verification, when enabled, happens separately against the remote JWKS.
func claimsFromToken(raw string) (sub, email string, exp time.Time) {
	if raw == "" {
		return "", "", time.Time{}
	}
	parser := jwt.NewParser()
	tok, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", "", time.Time{}
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", time.Time{}
	}
	if s, err := claims.GetSubject(); err == nil {
		sub = s
	}
	if e, ok := claims["email"].(string); ok {
		email = e
	}
	if t, err := claims.GetExpirationTime(); err == nil && t != nil {
		exp = t.Time
	}
	return sub, email, exp
}

// errorResponse is the GoTrue error body shape.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e errorResponse) message() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// doJSON performs one JSON request/response round trip with the provider's
// standard headers and maps HTTP failures onto port sentinels.
func (p *Provider) doJSON(ctx context.Context, method, url string, body any, bearer string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr errorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &apiErr)

		switch {
		case resp.StatusCode == http.StatusUnauthorized,
			resp.StatusCode == http.StatusForbidden,
			resp.StatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ports.ErrUnauthorized, apiErr.message())
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: status %d: %s", ports.ErrUnavailable, resp.StatusCode, apiErr.message())
		default:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, apiErr.message())
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// generateRandomString generates a cryptographically secure URL-safe random
// string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}
