package sessionkit

import (
	"context"
	"errors"

	"github.com/sessionkit/sessionkit/claims"
	"github.com/sessionkit/sessionkit/core"
	"github.com/sessionkit/sessionkit/mirror"
)

// GetSessionInformation returns the durable session record, or
// ErrUnauthorised if no such session exists.
func (e *Engine) GetSessionInformation(ctx context.Context, sessionHandle string) (*core.SessionInformation, error) {
	info, err := e.core.GetSessionInformation(ctx, sessionHandle)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, newUnauthorisedError("session does not exist")
		}
		return nil, err
	}
	return info, nil
}

// UpdateSessionDataInDatabase replaces the server-only data blob. The
// boolean reports whether the session existed.
func (e *Engine) UpdateSessionDataInDatabase(ctx context.Context, sessionHandle string, data claims.JSONObject) (bool, error) {
	return e.core.UpdateSessionData(ctx, sessionHandle, data)
}

// MergeIntoAccessTokenPayload merges a partial into the session's stored
// payload: nil values delete keys, nested objects merge, everything else
// replaces. Clients pick up the result on their next refresh.
func (e *Engine) MergeIntoAccessTokenPayload(ctx context.Context, sessionHandle string, partial claims.JSONObject) (bool, error) {
	return e.ops.MergeIntoAccessTokenPayload(ctx, sessionHandle, partial)
}

func (e *Engine) mergeIntoAccessTokenPayload(ctx context.Context, sessionHandle string, partial claims.JSONObject) (bool, error) {
	if err := e.rejectReservedKeys(partial); err != nil {
		return false, err
	}

	info, err := e.sessionInfo(ctx, sessionHandle)
	if err != nil || info == nil {
		return false, err
	}

	merged := claims.MergePayload(info.AccessTokenPayload, partial)
	merged, err = e.refreshMirror(merged, info.UserID)
	if err != nil {
		return false, err
	}

	return e.storePayload(ctx, sessionHandle, merged)
}

// UpdateAccessTokenPayload replaces the session's custom payload
// wholesale. Envelope fields are untouched, and a mirror that is already
// present survives the replacement, rebuilt over the new payload.
func (e *Engine) UpdateAccessTokenPayload(ctx context.Context, sessionHandle string, payload claims.JSONObject) (bool, error) {
	if err := e.rejectReservedKeys(payload); err != nil {
		return false, err
	}

	info, err := e.sessionInfo(ctx, sessionHandle)
	if err != nil || info == nil {
		return false, err
	}

	next := claims.MergePayload(nil, payload)
	if marker, ok := info.AccessTokenPayload[mirror.MarkerKey].(string); ok {
		next[mirror.MarkerKey] = marker
		if prev, ok := info.AccessTokenPayload[marker]; ok {
			next[marker] = prev
		}
	}
	next, err = e.refreshMirror(next, info.UserID)
	if err != nil {
		return false, err
	}

	return e.storePayload(ctx, sessionHandle, next)
}

// refreshMirror rebuilds (or, when the mirror is disabled, strips) an
// existing mirror in a mutated payload. A payload without a marker is
// returned untouched: a mirror is only ever minted at create or refresh,
// never by a mutation.
func (e *Engine) refreshMirror(payload claims.JSONObject, userID string) (claims.JSONObject, error) {
	if payload[mirror.MarkerKey] == nil {
		return payload, nil
	}
	now := e.now()
	return e.mirror.Apply(payload, userID, now.Add(e.config.AccessTokenTTL), now)
}

func (e *Engine) storePayload(ctx context.Context, sessionHandle string, payload claims.JSONObject) (bool, error) {
	ok, err := e.core.UpdateSessionPayload(ctx, sessionHandle, payload)
	if err != nil {
		return false, err
	}
	if ok {
		e.metrics.Inc(MetricPayloadUpdated)
	}
	return ok, nil
}

// sessionInfo is the nil-on-missing read used by operations that report
// session existence as a boolean rather than an error.
func (e *Engine) sessionInfo(ctx context.Context, sessionHandle string) (*core.SessionInformation, error) {
	info, err := e.core.GetSessionInformation(ctx, sessionHandle)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return info, nil
}
