package middleware

import (
	"errors"
	"net/http"

	sessionkit "github.com/sessionkit/sessionkit"
)

// RefreshHandler exchanges a refresh token for a rotated token pair. Mount
// it on the route browser SDKs call when they see a try-refresh response.
//
// Requests with cookie-borne refresh tokens must carry a custom header
// whenever anti-CSRF protection is on at all; the refresh endpoint has no
// access token to bind a check to, so header presence is the only signal.
func RefreshHandler(engine *sessionkit.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			writeUnauthorised(w, "unauthorised")
			return
		}
		cfg := engine.Config()

		refreshToken, via, ok := readRefreshToken(r)
		if !ok {
			clearSession(w, cfg)
			writeUnauthorised(w, "unauthorised")
			return
		}

		if via == sessionkit.TransferCookie &&
			cfg.AntiCsrf != sessionkit.AntiCsrfNone && !hasCustomHeader(r) {
			writeUnauthorised(w, "unauthorised")
			return
		}

		session, err := engine.RefreshSession(auditContext(r), refreshToken)
		if err != nil {
			if errors.Is(err, sessionkit.ErrTokenTheftDetected) {
				clearSession(w, cfg)
				writeUnauthorised(w, "token theft detected")
				return
			}
			var unauth *sessionkit.UnauthorisedError
			if errors.As(err, &unauth) {
				if unauth.ClearTokens {
					clearSession(w, cfg)
				}
				writeUnauthorised(w, "unauthorised")
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
			return
		}

		attachSession(w, cfg, session, resolveTransfer(r, cfg, via))
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
		}{Status: "OK"})
	})
}

// AttachCreatedSession writes a freshly created session's tokens onto the
// response, honouring the client's st-auth-mode hint. Call it from login
// handlers after Engine.CreateSession.
func AttachCreatedSession(w http.ResponseWriter, r *http.Request, engine *sessionkit.Engine, s *sessionkit.Session) {
	cfg := engine.Config()
	attachSession(w, cfg, s, resolveTransfer(r, cfg, sessionkit.TransferCookie))
}

// ClearSession expires the session cookies and tells header clients to
// drop their tokens. Call it from logout handlers after Engine revocation.
func ClearSession(w http.ResponseWriter, engine *sessionkit.Engine) {
	clearSession(w, engine.Config())
}
