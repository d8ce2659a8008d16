package sessionkit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sessionkit/sessionkit/claims"
)

var (
	// ErrUnauthorised means no usable session: missing, malformed, or
	// revoked credentials. The caller should clear tokens and treat the
	// request as logged out.
	ErrUnauthorised = errors.New("unauthorised")

	// ErrTryRefreshToken means the access token failed verification in a
	// way the refresh flow can repair (expired, or signed by a key this
	// process no longer trusts). Tokens must NOT be cleared.
	ErrTryRefreshToken = errors.New("try refresh token")

	// ErrTokenTheftDetected means an already-rotated refresh token was
	// presented for a live session. The session has been revoked by the
	// time callers see this error.
	ErrTokenTheftDetected = errors.New("token theft detected")

	// ErrInvalidClaims means the session is valid but one or more claim
	// validators rejected its payload.
	ErrInvalidClaims = errors.New("invalid claim")

	// ErrAntiCsrfCheckFailed is the verification-time anti-CSRF failure.
	// Surfaced wrapped in ErrTryRefreshToken; the sentinel exists so
	// transports can log the distinction.
	ErrAntiCsrfCheckFailed = errors.New("anti-csrf check failed")
)

// UnauthorisedError wraps ErrUnauthorised with transport guidance:
// ClearTokens tells HTTP layers whether to expire the session cookies.
type UnauthorisedError struct {
	Reason      string
	ClearTokens bool
}

func newUnauthorisedError(reason string) *UnauthorisedError {
	return &UnauthorisedError{Reason: reason, ClearTokens: true}
}

func (e *UnauthorisedError) Error() string {
	if e.Reason == "" {
		return ErrUnauthorised.Error()
	}
	return fmt.Sprintf("unauthorised: %s", e.Reason)
}

func (e *UnauthorisedError) Is(target error) bool {
	return target == ErrUnauthorised
}

// TokenTheftDetectedError identifies whose session was hit so callers can
// notify the user or feed fraud tooling.
type TokenTheftDetectedError struct {
	SessionHandle string
	UserID        string
	RecipeUserID  string
}

func (e *TokenTheftDetectedError) Error() string {
	return fmt.Sprintf("token theft detected for session %s", e.SessionHandle)
}

func (e *TokenTheftDetectedError) Is(target error) bool {
	return target == ErrTokenTheftDetected
}

// InvalidClaimsError carries every validator failure from one assertion
// pass, in validation order.
type InvalidClaimsError struct {
	Failures []claims.Failure
}

func (e *InvalidClaimsError) Error() string {
	if len(e.Failures) == 0 {
		return ErrInvalidClaims.Error()
	}
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ID
	}
	return fmt.Sprintf("invalid claim: %s", strings.Join(ids, ", "))
}

func (e *InvalidClaimsError) Is(target error) bool {
	return target == ErrInvalidClaims
}
