package sessionkit

import (
	"context"

	"github.com/sessionkit/sessionkit/claims"
)

// Operations is the engine's override table: the primary session
// operations as first-class functions. Engine methods always dispatch
// through this table, so an override intercepts both direct calls and
// internal uses (e.g. claim refetch persisting through
// MergeIntoAccessTokenPayload).
type Operations struct {
	CreateSession  func(ctx context.Context, userID string, opts CreateSessionOptions) (*Session, error)
	VerifySession  func(ctx context.Context, accessToken, antiCsrfToken string, opts *VerifyOptions) (*Session, error)
	RefreshSession func(ctx context.Context, refreshToken string) (*Session, error)
	RevokeSession  func(ctx context.Context, sessionHandle string) (bool, error)

	MergeIntoAccessTokenPayload func(ctx context.Context, sessionHandle string, partial claims.JSONObject) (bool, error)
}

// OverrideFunc decorates the operation table. It receives the table built
// so far (the engine defaults, plus any earlier overrides) and returns the
// table to use; leave fields untouched to keep the underlying behavior.
type OverrideFunc func(base Operations) Operations

func composeOverrides(base Operations, overrides []OverrideFunc) Operations {
	ops := base
	for _, override := range overrides {
		if override == nil {
			continue
		}
		next := override(ops)
		// Nil fields fall through to the previous layer.
		if next.CreateSession == nil {
			next.CreateSession = ops.CreateSession
		}
		if next.VerifySession == nil {
			next.VerifySession = ops.VerifySession
		}
		if next.RefreshSession == nil {
			next.RefreshSession = ops.RefreshSession
		}
		if next.RevokeSession == nil {
			next.RevokeSession = ops.RevokeSession
		}
		if next.MergeIntoAccessTokenPayload == nil {
			next.MergeIntoAccessTokenPayload = ops.MergeIntoAccessTokenPayload
		}
		ops = next
	}
	return ops
}
