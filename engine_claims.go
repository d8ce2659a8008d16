package sessionkit

import (
	"context"
	"fmt"

	"github.com/sessionkit/sessionkit/claims"
	"github.com/sessionkit/sessionkit/mirror"
	"github.com/sessionkit/sessionkit/token"
)

// assertClaims runs one validation pass: stale claims are refetched first
// (once per claim, regardless of how many validators reference it), then
// every validator judges the refreshed payload, and all failures are
// reported together. Refetched values are persisted through the override
// table and re-signed into the session's access token.
func (e *Engine) assertClaims(ctx context.Context, s *Session, validators []claims.Validator) error {
	now := e.now()
	payload := s.Payload
	refetched := claims.JSONObject{}
	fetched := map[string]bool{}

	for _, v := range validators {
		if v.Claim == nil || v.ShouldRefetch == nil || fetched[v.Claim.Key] {
			continue
		}
		if !v.ShouldRefetch(payload, now) {
			continue
		}
		partial, err := v.Claim.Build(ctx, s.UserID, s.RecipeUserID, now)
		if err != nil {
			return fmt.Errorf("refetch claim %s: %w", v.Claim.Key, err)
		}
		fetched[v.Claim.Key] = true
		if len(partial) == 0 {
			continue
		}
		payload = claims.MergePayload(payload, partial)
		refetched = claims.MergePayload(refetched, partial)
		e.metrics.Inc(MetricClaimRefetch)
	}

	var failures []claims.Failure
	for _, v := range validators {
		if v.Validate == nil {
			continue
		}
		if result := v.Validate(payload); !result.IsValid {
			failures = append(failures, claims.Failure{ID: v.ID, Reason: result.Reason})
		}
	}

	if len(refetched) > 0 {
		found, err := e.ops.MergeIntoAccessTokenPayload(ctx, s.Handle, refetched)
		if err != nil {
			return err
		}
		if payload[mirror.MarkerKey] != nil {
			// The merge op rebuilt the stored mirror against a fresh TTL.
			// The re-signed token is still the outstanding one, so pin the
			// mirror to its expiry and store that same payload, keeping
			// both copies identical.
			payload, err = e.mirror.Apply(payload, s.UserID, s.AccessTokenExpiry, now)
			if err != nil {
				return err
			}
			if found {
				if _, err := e.core.UpdateSessionPayload(ctx, s.Handle, payload); err != nil {
					return err
				}
			}
		}
		accessToken, err := e.codec.Encode(token.AccessPayload{
			SessionHandle:    s.Handle,
			UserID:           s.UserID,
			RecipeUserID:     s.RecipeUserID,
			RefreshTokenHash: s.refreshTokenHash,
			AntiCsrfHash:     s.antiCsrfHash,
			IssuedAt:         now,
			Expiry:           s.AccessTokenExpiry,
			Claims:           payload,
		})
		if err != nil {
			return err
		}
		s.Payload = payload
		s.AccessToken = accessToken
		s.FrontToken = buildFrontToken(s.UserID, s.AccessTokenExpiry, payload)
	}

	if len(failures) > 0 {
		e.metrics.Inc(MetricClaimValidationFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType:     AuditClaimRejected,
			UserID:        s.UserID,
			SessionHandle: s.Handle,
			Error:         (&InvalidClaimsError{Failures: failures}).Error(),
		})
		return &InvalidClaimsError{Failures: failures}
	}
	return nil
}

// FetchAndSetClaim refetches one claim and persists it into the session's
// payload. A claim whose fetcher reports no value leaves the payload
// untouched; the boolean reports whether the session exists.
func (e *Engine) FetchAndSetClaim(ctx context.Context, sessionHandle string, claim *claims.Claim) (bool, error) {
	info, err := e.sessionInfo(ctx, sessionHandle)
	if err != nil || info == nil {
		return false, err
	}

	partial, err := claim.Build(ctx, info.UserID, info.RecipeUserID, e.now())
	if err != nil {
		return false, err
	}
	if len(partial) == 0 {
		return true, nil
	}
	return e.ops.MergeIntoAccessTokenPayload(ctx, sessionHandle, partial)
}

// SetClaimValue stores an explicit value for a claim, bypassing its
// fetcher.
func (e *Engine) SetClaimValue(ctx context.Context, sessionHandle string, claim *claims.Claim, value any) (bool, error) {
	partial := claim.AddToPayload(claims.JSONObject{}, value, e.now())
	return e.ops.MergeIntoAccessTokenPayload(ctx, sessionHandle, partial)
}

// GetClaimValue reads a claim's stored value from the session's payload.
func (e *Engine) GetClaimValue(ctx context.Context, sessionHandle string, claim *claims.Claim) (any, bool, error) {
	info, err := e.sessionInfo(ctx, sessionHandle)
	if err != nil || info == nil {
		return nil, false, err
	}
	value, ok := claim.ValueFromPayload(info.AccessTokenPayload)
	return value, ok, nil
}

// RemoveClaim deletes a claim's entry from the session's payload.
func (e *Engine) RemoveClaim(ctx context.Context, sessionHandle string, claim *claims.Claim) (bool, error) {
	return e.ops.MergeIntoAccessTokenPayload(ctx, sessionHandle, claim.RemovalPartial())
}
