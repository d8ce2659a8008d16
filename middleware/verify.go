package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	sessionkit "github.com/sessionkit/sessionkit"
	"github.com/sessionkit/sessionkit/claims"
)

type sessionContextKey struct{}

// SessionFromContext returns the session placed by VerifySession. The
// second return is false on unprotected routes and on optional routes
// where no session was presented.
func SessionFromContext(ctx context.Context) (*sessionkit.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*sessionkit.Session)
	return s, ok
}

// Options tunes the VerifySession middleware per route.
type Options struct {
	// Optional lets requests without any access token through with no
	// session in context. Requests that present a bad token still fail.
	Optional bool

	// AntiCsrfCheck forces the token-bound anti-CSRF check off for this
	// route. It can only disable; a nil or true value leaves the engine's
	// configured behaviour in place.
	AntiCsrfCheck *bool

	// CheckDatabase confirms the session record still exists, catching
	// revocation before the access token expires.
	CheckDatabase bool

	// ClaimValidators replaces the registry defaults for this route.
	ClaimValidators func(defaults []claims.Validator, s *sessionkit.Session) []claims.Validator
}

// VerifySession authenticates the request against the engine and, on
// success, stores the session in the request context under
// SessionFromContext's key.
//
// Failure translation:
//
//	401 {"message": "unauthorised"}       no usable session; cookies are
//	                                      expired when the engine says so
//	401 {"message": "try refresh token"}  repairable by the refresh flow;
//	                                      tokens are left alone
//	403 {"message": "invalid claim", "claimValidationErrors": [...]}
func VerifySession(engine *sessionkit.Engine, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeUnauthorised(w, "unauthorised")
				return
			}
			cfg := engine.Config()

			accessToken, via, ok := readAccessToken(r)
			if !ok {
				if opts.Optional {
					next.ServeHTTP(w, r)
					return
				}
				writeUnauthorised(w, "unauthorised")
				return
			}

			// Header-borne tokens cannot be attached by a cross-site
			// form post, so the anti-CSRF check is redundant for them.
			verifyOpts := &sessionkit.VerifyOptions{
				AntiCsrfCheck:   opts.AntiCsrfCheck,
				CheckDatabase:   opts.CheckDatabase,
				ClaimValidators: opts.ClaimValidators,
			}
			if via == sessionkit.TransferHeader {
				verifyOpts.AntiCsrfCheck = sessionkit.BoolPtr(false)
			}

			if via == sessionkit.TransferCookie &&
				cfg.AntiCsrf == sessionkit.AntiCsrfViaCustomHeader &&
				antiCsrfWanted(opts.AntiCsrfCheck) && !hasCustomHeader(r) {
				writeJSON(w, http.StatusUnauthorized, errorBody{Message: "try refresh token"})
				return
			}

			session, err := engine.VerifySession(auditContext(r), accessToken, r.Header.Get(HeaderAntiCsrf), verifyOpts)
			if err != nil {
				writeVerifyError(w, cfg, err)
				return
			}

			// Claim refetches re-sign the access token; push the new one
			// back so the client stops presenting the stale copy.
			if session.AccessToken != accessToken {
				attachAccessToken(w, cfg, session, via)
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func antiCsrfWanted(override *bool) bool {
	return override == nil || *override
}

type errorBody struct {
	Message               string           `json:"message"`
	ClaimValidationErrors []claims.Failure `json:"claimValidationErrors,omitempty"`
}

func writeVerifyError(w http.ResponseWriter, cfg sessionkit.Config, err error) {
	var invalidClaims *sessionkit.InvalidClaimsError
	if errors.As(err, &invalidClaims) {
		writeJSON(w, http.StatusForbidden, errorBody{
			Message:               "invalid claim",
			ClaimValidationErrors: invalidClaims.Failures,
		})
		return
	}

	if errors.Is(err, sessionkit.ErrTryRefreshToken) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "try refresh token"})
		return
	}

	if errors.Is(err, sessionkit.ErrUnauthorised) {
		var unauth *sessionkit.UnauthorisedError
		if errors.As(err, &unauth) && unauth.ClearTokens {
			clearSession(w, cfg)
		}
		writeUnauthorised(w, "unauthorised")
		return
	}

	// Core transport failures are not an authentication verdict.
	writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
}

func writeUnauthorised(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
