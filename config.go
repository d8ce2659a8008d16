package sessionkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sessionkit/sessionkit/mirror"
	"github.com/sessionkit/sessionkit/token"
)

// AntiCsrfMode selects how cookie-based sessions are protected against
// cross-site request forgery.
type AntiCsrfMode string

const (
	// AntiCsrfNone disables anti-CSRF checks entirely.
	AntiCsrfNone AntiCsrfMode = "NONE"

	// AntiCsrfViaCustomHeader requires a custom header on verification and
	// relies on the browser's same-origin policy. Stateless: nothing extra
	// is minted.
	AntiCsrfViaCustomHeader AntiCsrfMode = "VIA_CUSTOM_HEADER"

	// AntiCsrfViaToken mints a dedicated anti-CSRF token alongside each
	// access token and requires it to be echoed on verification.
	AntiCsrfViaToken AntiCsrfMode = "VIA_TOKEN"
)

// TokenTransferMethod selects how tokens travel between client and server.
type TokenTransferMethod string

const (
	TransferCookie TokenTransferMethod = "cookie"
	TransferHeader TokenTransferMethod = "header"

	// TransferAny accepts either, preferring headers when both are present.
	TransferAny TokenTransferMethod = "any"
)

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// AuditConfig controls the buffered audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull drops events instead of blocking when the buffer is full.
	DropIfFull bool
}

// Config is the full engine configuration. Zero values fall back to the
// defaults documented per field; Validate is called by [Builder.Build].
type Config struct {
	// CookieDomain scopes the session cookies. Empty means host-only.
	CookieDomain string

	// CookieSecure marks session cookies Secure. Required when SameSite is
	// "none".
	CookieSecure bool

	// CookieSameSite is one of "lax", "strict", "none". Defaults to "lax".
	CookieSameSite string

	// AccessTokenPath is the cookie path for the access token. Defaults to "/".
	AccessTokenPath string

	// RefreshTokenPath scopes the refresh cookie to the refresh endpoint so
	// the long-lived credential is not attached to every request.
	// Defaults to "/auth/session/refresh".
	RefreshTokenPath string

	// AntiCsrf defaults to AntiCsrfNone.
	AntiCsrf AntiCsrfMode

	// DefaultTransferMethod applies when a request carries no transfer
	// preference. Defaults to TransferAny.
	DefaultTransferMethod TokenTransferMethod

	// AccessTokenTTL defaults to 1h, RefreshTokenTTL to 100 days.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Token   token.Config
	JWT     mirror.Config
	Metrics MetricsConfig
	Audit   AuditConfig
}

func defaultConfig() Config {
	return Config{
		CookieSameSite:        "lax",
		AccessTokenPath:       "/",
		RefreshTokenPath:      "/auth/session/refresh",
		AntiCsrf:              AntiCsrfNone,
		DefaultTransferMethod: TransferAny,
		AccessTokenTTL:        time.Hour,
		RefreshTokenTTL:       100 * 24 * time.Hour,
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Token.VerifyKeys != nil {
		keys := make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			keys[kid] = append([]byte(nil), key...)
		}
		out.Token.VerifyKeys = keys
	}
	if cfg.Token.SignKey != nil {
		out.Token.SignKey = append([]byte(nil), cfg.Token.SignKey...)
	}
	if cfg.Token.PublicKey != nil {
		out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	}
	return out
}

// applyDefaults fills the documented per-field defaults into zero values.
// Build runs it before Validate so a partially specified Config is usable
// as-is.
func (c *Config) applyDefaults() {
	d := defaultConfig()
	if c.CookieSameSite == "" {
		c.CookieSameSite = d.CookieSameSite
	}
	if c.AccessTokenPath == "" {
		c.AccessTokenPath = d.AccessTokenPath
	}
	if c.RefreshTokenPath == "" {
		c.RefreshTokenPath = d.RefreshTokenPath
	}
	if c.AntiCsrf == "" {
		c.AntiCsrf = d.AntiCsrf
	}
	if c.DefaultTransferMethod == "" {
		c.DefaultTransferMethod = d.DefaultTransferMethod
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = d.AccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = d.RefreshTokenTTL
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = d.Audit.BufferSize
	}
}

// Validate checks cross-field consistency. Token key material is validated
// separately by token.NewCodec.
func (c *Config) Validate() error {
	switch c.AntiCsrf {
	case AntiCsrfNone, AntiCsrfViaCustomHeader, AntiCsrfViaToken:
	default:
		return fmt.Errorf("invalid anti-csrf mode %q", c.AntiCsrf)
	}

	switch c.DefaultTransferMethod {
	case TransferCookie, TransferHeader, TransferAny:
	default:
		return fmt.Errorf("invalid token transfer method %q", c.DefaultTransferMethod)
	}

	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict":
	case "none":
		if !c.CookieSecure {
			return errors.New(`CookieSameSite "none" requires CookieSecure`)
		}
	default:
		return fmt.Errorf("invalid CookieSameSite %q", c.CookieSameSite)
	}

	if c.AccessTokenTTL <= 0 {
		return errors.New("AccessTokenTTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return errors.New("RefreshTokenTTL must exceed AccessTokenTTL")
	}

	if !strings.HasPrefix(c.AccessTokenPath, "/") {
		return errors.New("AccessTokenPath must start with /")
	}
	if !strings.HasPrefix(c.RefreshTokenPath, "/") {
		return errors.New("RefreshTokenPath must start with /")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}

	return nil
}
