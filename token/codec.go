package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionkit/sessionkit/claims"
)

// Method selects the signing algorithm for access tokens and the embedded
// JWT mirror.
type Method string

const (
	// MethodEd25519 signs with EdDSA over Curve25519.
	MethodEd25519 Method = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 Method = "hs256"
)

// FormatVersion is the access-token envelope version this codec mints and
// accepts. Older envelopes fail verification with
// [KindUnsupportedVersion]; the client recovers by refreshing, which mints
// a current-version token.
const FormatVersion = 3

const (
	claimVersion       = "vrs"
	claimSessionHandle = "sid"
	claimUserID        = "uid"
	claimRecipeUserID  = "ruid"
	claimRefreshHash   = "rth"
	claimAntiCsrfHash  = "ach"
)

// staticClaimKeys are the envelope-owned top-level keys. They are stripped
// from the dynamic payload on decode and rejected on encode so the claim
// payload can never shadow session identity fields. "sub" and "iss" are
// deliberately absent: they are user-overridable inputs to the JWT mirror
// and travel as ordinary payload keys.
var staticClaimKeys = map[string]struct{}{
	claimVersion:       {},
	claimSessionHandle: {},
	claimUserID:        {},
	claimRecipeUserID:  {},
	claimRefreshHash:   {},
	claimAntiCsrfHash:  {},
	"exp":              {},
	"iat":              {},
}

// IsReservedKey reports whether key is owned by the access-token envelope
// and therefore forbidden in caller-supplied payloads.
func IsReservedKey(key string) bool {
	_, ok := staticClaimKeys[key]
	return ok
}

// AccessPayload is the decoded form of an access token: the session's
// standard fields plus the dynamic claim payload.
type AccessPayload struct {
	SessionHandle string
	UserID        string
	RecipeUserID  string

	// RefreshTokenHash binds the access token to the refresh token that was
	// minted alongside it (base64url SHA-256 of the refresh token).
	RefreshTokenHash string

	// AntiCsrfHash is present only when the anti-CSRF mode is VIA_TOKEN.
	AntiCsrfHash string

	IssuedAt time.Time
	Expiry   time.Time

	Claims claims.JSONObject
}

// Config defines the key material and verification policy for a [Codec].
// Key rotation is the remote core's responsibility: new tokens are always
// signed with the single current key, while VerifyKeys (or Keyfunc) widen
// verification to recently-valid keys so rotation windows do not hard-fail.
type Config struct {
	Method    Method
	SignKey   []byte
	PublicKey []byte // ed25519 verify key; derived from SignKey when empty
	KeyID     string

	// VerifyKeys maps key IDs to verification keys. When set, tokens must
	// carry a known kid header.
	VerifyKeys map[string][]byte

	// Keyfunc, when set, takes precedence over VerifyKeys and resolves
	// verification keys dynamically (the JWKS path used with a remote core).
	Keyfunc jwt.Keyfunc

	Leeway time.Duration

	// Now overrides the verification time source. Nil means time.Now.
	Now func() time.Time
}

// Codec encodes and decodes signed access tokens. It is a pure transform
// over its inputs and key material: no I/O, safe for concurrent use.
type Codec struct {
	config  Config
	signKey any
}

// NewCodec validates the configuration and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	var signKey any
	switch cfg.Method {
	case MethodHS256:
		if len(cfg.SignKey) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
		signKey = cfg.SignKey
	case MethodEd25519:
		if len(cfg.SignKey) == 0 {
			return nil, errors.New("ed25519 requires a signing key")
		}
		parsed, err := parseEdPrivateKey(cfg.SignKey)
		if err != nil {
			return nil, err
		}
		signKey = parsed
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Codec{config: cfg, signKey: signKey}, nil
}

// Encode serializes and signs an access token with the current key. The
// dynamic payload must not contain envelope-owned keys.
func (c *Codec) Encode(p AccessPayload) (string, error) {
	if p.SessionHandle == "" || p.UserID == "" {
		return "", errors.New("access token requires session handle and user id")
	}

	mc := jwt.MapClaims{}
	for key, value := range p.Claims {
		if IsReservedKey(key) {
			return "", fmt.Errorf("payload key %q is reserved", key)
		}
		mc[key] = value
	}

	mc[claimVersion] = FormatVersion
	mc[claimSessionHandle] = p.SessionHandle
	mc[claimUserID] = p.UserID
	if p.RecipeUserID != "" {
		mc[claimRecipeUserID] = p.RecipeUserID
	}
	if p.RefreshTokenHash != "" {
		mc[claimRefreshHash] = p.RefreshTokenHash
	}
	if p.AntiCsrfHash != "" {
		mc[claimAntiCsrfHash] = p.AntiCsrfHash
	}

	issuedAt := p.IssuedAt
	if issuedAt.IsZero() {
		if c.config.Now != nil {
			issuedAt = c.config.Now()
		} else {
			issuedAt = time.Now()
		}
	}
	mc["iat"] = jwt.NewNumericDate(issuedAt)
	mc["exp"] = jwt.NewNumericDate(p.Expiry)

	return c.sign(mc)
}

// SignClaims signs an arbitrary claim set with the current key. The JWT
// mirror uses this to mint its standards-compliant projection of the
// payload.
func (c *Codec) SignClaims(mc jwt.MapClaims) (string, error) {
	return c.sign(mc)
}

func (c *Codec) sign(mc jwt.MapClaims) (string, error) {
	tok := jwt.NewWithClaims(c.method(), mc)
	if c.config.KeyID != "" {
		tok.Header["kid"] = c.config.KeyID
	}
	return tok.SignedString(c.signKey)
}

// Decode verifies signature, expiry, and envelope version, and splits the
// token into standard fields and the dynamic payload. Failures are reported
// as *VerificationError; this is the local no-I/O verification fast path.
func (c *Codec) Decode(tokenStr string) (*AccessPayload, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Now != nil {
		options = append(options, jwt.WithTimeFunc(c.config.Now))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.Parse(tokenStr, c.verifyKeyFor)
	if err != nil {
		return nil, classifyParseError(err)
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, &VerificationError{Kind: KindMalformed, Err: jwt.ErrTokenInvalidClaims}
	}

	version, ok := numericClaim(mc, claimVersion)
	if !ok || int(version) != FormatVersion {
		return nil, &VerificationError{Kind: KindUnsupportedVersion}
	}

	p := &AccessPayload{
		SessionHandle:    stringClaim(mc, claimSessionHandle),
		UserID:           stringClaim(mc, claimUserID),
		RecipeUserID:     stringClaim(mc, claimRecipeUserID),
		RefreshTokenHash: stringClaim(mc, claimRefreshHash),
		AntiCsrfHash:     stringClaim(mc, claimAntiCsrfHash),
		Claims:           claims.JSONObject{},
	}
	if p.SessionHandle == "" || p.UserID == "" {
		return nil, &VerificationError{Kind: KindMalformed, Err: errors.New("missing session identity claims")}
	}
	if p.RecipeUserID == "" {
		p.RecipeUserID = p.UserID
	}

	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		p.Expiry = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		p.IssuedAt = iat.Time
	}

	for key, value := range mc {
		if IsReservedKey(key) {
			continue
		}
		p.Claims[key] = value
	}

	return p, nil
}

func classifyParseError(err error) *VerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &VerificationError{Kind: KindExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &VerificationError{Kind: KindSignatureInvalid, Err: err}
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Unknown kid or unresolved key: indistinguishable from a rotation
		// window, so report it as a signature problem rather than malformed.
		return &VerificationError{Kind: KindSignatureInvalid, Err: err}
	default:
		return &VerificationError{Kind: KindMalformed, Err: err}
	}
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.Method {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) verifyKeyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != c.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if c.config.Keyfunc != nil {
		return c.config.Keyfunc(t)
	}

	if len(c.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := c.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return c.keyBytesToVerifyKey(key)
	}

	if c.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != c.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return c.currentVerifyKey()
}

func (c *Codec) currentVerifyKey() (any, error) {
	switch c.config.Method {
	case MethodHS256:
		return c.config.SignKey, nil
	default:
		if len(c.config.PublicKey) > 0 {
			return parseEdPublicKey(c.config.PublicKey)
		}
		private, ok := c.signKey.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.New("no ed25519 verify key available")
		}
		return private.Public(), nil
	}
}

func (c *Codec) keyBytesToVerifyKey(key []byte) (any, error) {
	switch c.config.Method {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func stringClaim(mc jwt.MapClaims, key string) string {
	v, _ := mc[key].(string)
	return v
}

func numericClaim(mc jwt.MapClaims, key string) (float64, bool) {
	switch v := mc[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
