package sessionkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sessionkit/sessionkit/claims"
	"github.com/sessionkit/sessionkit/core"
	"github.com/sessionkit/sessionkit/internal"
	"github.com/sessionkit/sessionkit/mirror"
	"github.com/sessionkit/sessionkit/token"
)

// Engine is the session engine: it mints, verifies, refreshes, and revokes
// sessions against a backing core. Construct it through [Builder.Build];
// after that every method is safe for concurrent use.
type Engine struct {
	config   Config
	core     core.Client
	codec    *token.Codec
	mirror   *mirror.Builder
	registry *claims.Registry
	metrics  *Metrics
	audit    *auditDispatcher
	logger   zerolog.Logger

	ops Operations

	now func() time.Time
}

// CreateSession mints a new session for userID: a session record in the
// core, a signed access token carrying the claim payload, and a rotating
// refresh token.
func (e *Engine) CreateSession(ctx context.Context, userID string, opts CreateSessionOptions) (*Session, error) {
	return e.ops.CreateSession(ctx, userID, opts)
}

// VerifySession checks an access token and returns the session it proves.
// Claim validators run as part of verification; see VerifyOptions for
// anti-CSRF and database-check knobs.
func (e *Engine) VerifySession(ctx context.Context, accessToken, antiCsrfToken string, opts *VerifyOptions) (*Session, error) {
	return e.ops.VerifySession(ctx, accessToken, antiCsrfToken, opts)
}

// RefreshSession spends a refresh token: on success the whole credential
// set is replaced. A reused token revokes the session and returns
// ErrTokenTheftDetected.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	return e.ops.RefreshSession(ctx, refreshToken)
}

// Metrics returns the engine's counter set.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Registry returns the engine's claim registry.
func (e *Engine) Registry() *claims.Registry {
	return e.registry
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Close drains and stops the audit dispatcher. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

func (e *Engine) createSession(ctx context.Context, userID string, opts CreateSessionOptions) (*Session, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	recipeUserID := opts.RecipeUserID
	if recipeUserID == "" {
		recipeUserID = userID
	}
	now := e.now()

	// Registered claims first, then the caller's seed, so an explicit seed
	// wins over a registry fetch.
	payload := claims.JSONObject{}
	for _, claim := range e.registry.Claims() {
		partial, err := claim.Build(ctx, userID, recipeUserID, now)
		if err != nil {
			return nil, fmt.Errorf("build claim %s: %w", claim.Key, err)
		}
		payload = claims.MergePayload(payload, partial)
	}
	if err := e.rejectReservedKeys(opts.Payload); err != nil {
		return nil, err
	}
	payload = claims.MergePayload(payload, opts.Payload)

	accessExpiry := now.Add(e.config.AccessTokenTTL)
	payload, err := e.mirror.Apply(payload, userID, accessExpiry, now)
	if err != nil {
		return nil, err
	}

	created, err := e.core.CreateSession(ctx, core.CreateSessionRequest{
		UserID:             userID,
		RecipeUserID:       recipeUserID,
		AccessTokenPayload: payload,
		SessionData:        opts.SessionData,
		EnableAntiCsrf:     e.config.AntiCsrf == AntiCsrfViaToken,
	})
	if err != nil {
		return nil, err
	}
	if !created.AccessTokenExpiry.IsZero() {
		accessExpiry = created.AccessTokenExpiry
	}

	session, err := e.assembleSession(sessionMaterial{
		handle:             created.SessionHandle,
		userID:             userID,
		recipeUserID:       recipeUserID,
		payload:            payload,
		refreshToken:       created.RefreshToken,
		antiCsrfToken:      created.AntiCsrfToken,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: created.RefreshTokenExpiry,
		issuedAt:           now,
	})
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType:     AuditSessionCreated,
		UserID:        userID,
		SessionHandle: session.Handle,
		Success:       true,
	})
	e.logger.Debug().
		Str("session_handle", session.Handle).
		Str("user_id", userID).
		Msg("session created")

	return session, nil
}

func (e *Engine) verifySession(ctx context.Context, accessToken, antiCsrfToken string, opts *VerifyOptions) (*Session, error) {
	start := e.now()
	if opts == nil {
		opts = &VerifyOptions{}
	}
	if accessToken == "" {
		// Nothing to clear on the client when nothing was presented.
		return nil, &UnauthorisedError{Reason: "no access token"}
	}

	decoded, err := e.codec.Decode(accessToken)
	if err != nil {
		e.metrics.Inc(MetricVerifyFailure)
		return nil, e.mapVerificationError(err)
	}

	antiCsrfCheck := e.config.AntiCsrf == AntiCsrfViaToken
	if opts.AntiCsrfCheck != nil {
		antiCsrfCheck = antiCsrfCheck && *opts.AntiCsrfCheck
	}
	if antiCsrfCheck {
		if decoded.AntiCsrfHash == "" || antiCsrfToken == "" ||
			internal.HashToken(antiCsrfToken) != decoded.AntiCsrfHash {
			e.metrics.Inc(MetricAntiCsrfFailure)
			e.emitAudit(ctx, AuditEvent{
				EventType:     AuditAntiCsrfFailure,
				UserID:        decoded.UserID,
				SessionHandle: decoded.SessionHandle,
			})
			return nil, fmt.Errorf("%w: %w", ErrTryRefreshToken, ErrAntiCsrfCheckFailed)
		}
	}

	if opts.CheckDatabase {
		if _, err := e.core.GetSessionInformation(ctx, decoded.SessionHandle); err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				e.metrics.Inc(MetricVerifyFailure)
				return nil, newUnauthorisedError("session revoked")
			}
			return nil, err
		}
	}

	session := &Session{
		Handle:            decoded.SessionHandle,
		UserID:            decoded.UserID,
		RecipeUserID:      decoded.RecipeUserID,
		Payload:           decoded.Claims,
		AccessToken:       accessToken,
		AccessTokenExpiry: decoded.Expiry,
		FrontToken:        buildFrontToken(decoded.UserID, decoded.Expiry, decoded.Claims),
		refreshTokenHash:  decoded.RefreshTokenHash,
		antiCsrfHash:      decoded.AntiCsrfHash,
	}

	validators := e.registry.DefaultValidators()
	if opts.ClaimValidators != nil {
		validators = opts.ClaimValidators(validators, session)
	}
	if err := e.assertClaims(ctx, session, validators); err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricVerifySuccess)
	e.metrics.Observe(MetricVerifyLatency, e.now().Sub(start))
	return session, nil
}

func (e *Engine) refreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, &UnauthorisedError{Reason: "no refresh token"}
	}

	result, err := e.core.RefreshSession(ctx, refreshToken, e.config.AntiCsrf == AntiCsrfViaToken)
	if err != nil {
		return nil, err
	}
	now := e.now()

	switch result.Status {
	case core.RefreshSuccess:
	case core.RefreshStaleGeneration:
		return nil, e.handleTokenTheft(ctx, result)
	case core.RefreshNotFound:
		e.metrics.Inc(MetricRefreshFailure)
		return nil, newUnauthorisedError("refresh token not recognised")
	default:
		return nil, fmt.Errorf("unexpected refresh status %d", result.Status)
	}

	recipeUserID := result.RecipeUserID
	if recipeUserID == "" {
		recipeUserID = result.UserID
	}
	accessExpiry := result.AccessTokenExpiry
	if accessExpiry.IsZero() {
		accessExpiry = now.Add(e.config.AccessTokenTTL)
	}

	hadMarker := result.AccessTokenPayload[mirror.MarkerKey] != nil
	payload, err := e.mirror.Apply(result.AccessTokenPayload, result.UserID, accessExpiry, now)
	if err != nil {
		return nil, err
	}
	// The mirror (or its removal) lives in the stored payload too, so the
	// next refresh starts from the state we are about to hand out.
	if e.mirror.Enabled() || hadMarker {
		if _, err := e.core.UpdateSessionPayload(ctx, result.SessionHandle, payload); err != nil {
			return nil, err
		}
	}

	session, err := e.assembleSession(sessionMaterial{
		handle:             result.SessionHandle,
		userID:             result.UserID,
		recipeUserID:       recipeUserID,
		payload:            payload,
		refreshToken:       result.RefreshToken,
		antiCsrfToken:      result.AntiCsrfToken,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: result.RefreshTokenExpiry,
		issuedAt:           now,
	})
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType:     AuditSessionRefreshed,
		UserID:        session.UserID,
		SessionHandle: session.Handle,
		Success:       true,
	})
	e.logger.Debug().
		Str("session_handle", session.Handle).
		Str("user_id", session.UserID).
		Msg("session refreshed")

	return session, nil
}

func (e *Engine) handleTokenTheft(ctx context.Context, result *core.RefreshSessionResult) error {
	e.metrics.Inc(MetricTokenTheftDetected)

	// The session is burned either way; a failed revoke is logged but must
	// not mask the theft signal.
	if _, err := e.core.RevokeSession(ctx, result.SessionHandle); err != nil {
		e.logger.Error().
			Err(err).
			Str("session_handle", result.SessionHandle).
			Msg("failed to revoke session after token theft")
	}

	e.emitAudit(ctx, AuditEvent{
		EventType:     AuditTokenTheftDetected,
		UserID:        result.UserID,
		SessionHandle: result.SessionHandle,
	})
	e.logger.Warn().
		Str("session_handle", result.SessionHandle).
		Str("user_id", result.UserID).
		Msg("refresh token reuse detected, session revoked")

	return &TokenTheftDetectedError{
		SessionHandle: result.SessionHandle,
		UserID:        result.UserID,
		RecipeUserID:  result.RecipeUserID,
	}
}

type sessionMaterial struct {
	handle             string
	userID             string
	recipeUserID       string
	payload            claims.JSONObject
	refreshToken       string
	antiCsrfToken      string
	accessTokenExpiry  time.Time
	refreshTokenExpiry time.Time
	issuedAt           time.Time
}

func (e *Engine) assembleSession(m sessionMaterial) (*Session, error) {
	refreshTokenHash := internal.HashToken(m.refreshToken)
	antiCsrfHash := ""
	if m.antiCsrfToken != "" {
		antiCsrfHash = internal.HashToken(m.antiCsrfToken)
	}

	accessToken, err := e.codec.Encode(token.AccessPayload{
		SessionHandle:    m.handle,
		UserID:           m.userID,
		RecipeUserID:     m.recipeUserID,
		RefreshTokenHash: refreshTokenHash,
		AntiCsrfHash:     antiCsrfHash,
		IssuedAt:         m.issuedAt,
		Expiry:           m.accessTokenExpiry,
		Claims:           m.payload,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		Handle:             m.handle,
		UserID:             m.userID,
		RecipeUserID:       m.recipeUserID,
		Payload:            m.payload,
		AccessToken:        accessToken,
		RefreshToken:       m.refreshToken,
		AntiCsrfToken:      m.antiCsrfToken,
		FrontToken:         buildFrontToken(m.userID, m.accessTokenExpiry, m.payload),
		AccessTokenExpiry:  m.accessTokenExpiry,
		RefreshTokenExpiry: m.refreshTokenExpiry,
		refreshTokenHash:   refreshTokenHash,
		antiCsrfHash:       antiCsrfHash,
	}, nil
}

func (e *Engine) mapVerificationError(err error) error {
	var verr *token.VerificationError
	if !errors.As(err, &verr) {
		return err
	}
	switch verr.Kind {
	case token.KindExpired:
		return fmt.Errorf("%w: access token expired", ErrTryRefreshToken)
	case token.KindSignatureInvalid:
		return fmt.Errorf("%w: signature verification failed", ErrTryRefreshToken)
	case token.KindUnsupportedVersion:
		// The refresh token is unaffected by an envelope format bump;
		// refreshing mints a current-version access token.
		return fmt.Errorf("%w: unsupported token format", ErrTryRefreshToken)
	default:
		return newUnauthorisedError("malformed access token")
	}
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	event.Timestamp = e.now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["user_agent"] = ua
	}
	e.audit.Emit(ctx, event)
}

// rejectReservedKeys guards caller-supplied payloads: envelope-owned keys
// would shadow session identity, and the mirror's property and marker
// would let a crafted seed point mirror cleanup at an arbitrary key.
func (e *Engine) rejectReservedKeys(payload claims.JSONObject) error {
	for key := range payload {
		if token.IsReservedKey(key) || key == mirror.MarkerKey || key == e.mirror.PropertyName() {
			return fmt.Errorf("payload key %q is reserved", key)
		}
	}
	return nil
}
