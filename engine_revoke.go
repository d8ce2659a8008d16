package sessionkit

import "context"

// RevokeSession deletes a session record. Outstanding access tokens keep
// verifying locally until they expire; pair with VerifyOptions.CheckDatabase
// where immediate revocation matters.
func (e *Engine) RevokeSession(ctx context.Context, sessionHandle string) (bool, error) {
	return e.ops.RevokeSession(ctx, sessionHandle)
}

func (e *Engine) revokeSession(ctx context.Context, sessionHandle string) (bool, error) {
	revoked, err := e.core.RevokeSession(ctx, sessionHandle)
	if err != nil {
		return false, err
	}
	if revoked {
		e.metrics.Inc(MetricSessionRevoked)
		e.emitAudit(ctx, AuditEvent{
			EventType:     AuditSessionRevoked,
			SessionHandle: sessionHandle,
			Success:       true,
		})
	}
	return revoked, nil
}

// RevokeAllSessionsForUser revokes every live session of a user and
// returns the handles it removed.
func (e *Engine) RevokeAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	revoked, err := e.core.RevokeAllSessionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(revoked) > 0 {
		e.metrics.Inc(MetricRevokeAllForUser)
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditSessionRevoked,
			UserID:    userID,
			Success:   true,
			Metadata:  map[string]string{"scope": "all"},
		})
	}
	return revoked, nil
}

// GetAllSessionHandlesForUser lists the user's live session handles.
func (e *Engine) GetAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	return e.core.GetAllSessionHandlesForUser(ctx, userID)
}
