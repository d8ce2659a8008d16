// Package mirror maintains a standards-compliant JWT projection of the
// access-token payload, stored inside the payload itself so third-party
// services can consume session state without understanding the envelope
// format.
package mirror

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionkit/sessionkit/claims"
	"github.com/sessionkit/sessionkit/token"
)

// MarkerKey records, inside the payload, which property currently holds
// the mirror JWT. It survives configuration changes: when PropertyName is
// renamed, the marker locates and removes the stale copy before the new
// one is attached.
const MarkerKey = "_jwtPName"

const (
	defaultPropertyName = "jwt"
	defaultExpiryOffset = 30 * time.Second
)

type Config struct {
	Enable bool

	// PropertyName is the payload key the signed mirror is stored under.
	// Defaults to "jwt".
	PropertyName string

	// Issuer is the default "iss" claim. A payload-level "iss" string
	// overrides it, as does a payload-level "sub" for the subject.
	Issuer string

	// ExpiryOffset extends the mirror's lifetime past the access token's so
	// a mirror extracted just before expiry remains briefly verifiable.
	// Defaults to 30s.
	ExpiryOffset time.Duration
}

// Builder mints and maintains mirror JWTs. Stateless after construction,
// safe for concurrent use.
type Builder struct {
	config Config
	codec  *token.Codec
}

func New(cfg Config, codec *token.Codec) (*Builder, error) {
	if cfg.PropertyName == "" {
		cfg.PropertyName = defaultPropertyName
	}
	if cfg.ExpiryOffset == 0 {
		cfg.ExpiryOffset = defaultExpiryOffset
	}
	if cfg.ExpiryOffset < 0 {
		return nil, errors.New("mirror expiry offset must not be negative")
	}
	if cfg.PropertyName == MarkerKey || token.IsReservedKey(cfg.PropertyName) {
		return nil, errors.New("mirror property name collides with a reserved key")
	}
	if strings.TrimSpace(cfg.PropertyName) != cfg.PropertyName {
		return nil, errors.New("mirror property name must not contain surrounding whitespace")
	}
	if cfg.Enable && codec == nil {
		return nil, errors.New("mirror requires a signing codec")
	}
	return &Builder{config: cfg, codec: codec}, nil
}

func (b *Builder) Enabled() bool {
	return b.config.Enable
}

// PropertyName returns the payload key the mirror occupies. Defined even
// when the mirror is disabled, so callers can keep the key reserved.
func (b *Builder) PropertyName() string {
	return b.config.PropertyName
}

// Apply returns a copy of payload with the mirror brought up to date: the
// previous mirror (located via the marker) is removed, and when the mirror
// is enabled a freshly signed copy is attached under the configured
// property. With the mirror disabled, a leftover mirror and its marker are
// stripped. The input payload is never mutated.
func (b *Builder) Apply(payload claims.JSONObject, userID string, accessExpiry, now time.Time) (claims.JSONObject, error) {
	out := claims.MergePayload(payload, nil)

	if prev, ok := out[MarkerKey].(string); ok {
		delete(out, prev)
	}
	delete(out, MarkerKey)

	if !b.config.Enable {
		return out, nil
	}

	mc := jwt.MapClaims{}
	for key, value := range out {
		mc[key] = value
	}
	if _, ok := mc["sub"].(string); !ok {
		mc["sub"] = userID
	}
	if _, ok := mc["iss"].(string); !ok && b.config.Issuer != "" {
		mc["iss"] = b.config.Issuer
	}
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(accessExpiry.Add(b.config.ExpiryOffset))

	signed, err := b.codec.SignClaims(mc)
	if err != nil {
		return nil, err
	}

	out[b.config.PropertyName] = signed
	out[MarkerKey] = b.config.PropertyName
	return out, nil
}
