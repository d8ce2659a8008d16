package sessionkit

import (
	"time"

	"github.com/sessionkit/sessionkit/claims"
)

// Session is the verified view of a request's session. Engine methods
// return fresh values; a Session is a snapshot, not a live handle.
type Session struct {
	Handle       string
	UserID       string
	RecipeUserID string

	// Payload is the dynamic access-token payload, claims included.
	Payload claims.JSONObject

	AccessToken string

	// RefreshToken and AntiCsrfToken are populated by CreateSession and
	// RefreshSession only; verification never re-issues them.
	RefreshToken  string
	AntiCsrfToken string

	// FrontToken is the unsigned header mirror of identity, expiry, and
	// payload that browser clients read without verifying signatures.
	FrontToken string

	AccessTokenExpiry  time.Time
	RefreshTokenExpiry time.Time

	// Envelope binding material, kept so claim refetches can re-sign the
	// access token without re-decoding it.
	refreshTokenHash string
	antiCsrfHash     string
}

// CreateSessionOptions tunes CreateSession beyond the user ID.
type CreateSessionOptions struct {
	// RecipeUserID defaults to the user ID.
	RecipeUserID string

	// Payload seeds the dynamic access-token payload. Merged after
	// registered claims, so explicit seeds win. Envelope-owned keys are
	// rejected; "sub" and "iss" are allowed as JWT mirror overrides.
	Payload claims.JSONObject

	// SessionData is stored server-side only.
	SessionData claims.JSONObject
}

// VerifyOptions tunes a single VerifySession call.
type VerifyOptions struct {
	// AntiCsrfCheck overrides the mode-derived default. Disabling it is
	// only honoured for requests that cannot be forged (e.g. header-based
	// auth); the middleware sets this automatically.
	AntiCsrfCheck *bool

	// CheckDatabase additionally confirms the session record still exists,
	// catching revocation before access-token expiry.
	CheckDatabase bool

	// ClaimValidators replaces the registry's default validators for this
	// call. Receives the defaults and the already-verified session.
	ClaimValidators func(defaults []claims.Validator, s *Session) []claims.Validator
}

// BoolPtr is a convenience for VerifyOptions.AntiCsrfCheck.
func BoolPtr(v bool) *bool {
	return &v
}
