package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	sessionkit "github.com/sessionkit/sessionkit"
)

// Cookie and header names shared with browser SDKs. Changing any of these
// breaks every already-issued client, so treat them as wire constants.
const (
	CookieAccessToken  = "sAccessToken"
	CookieRefreshToken = "sRefreshToken"

	HeaderAccessToken  = "st-access-token"
	HeaderRefreshToken = "st-refresh-token"
	HeaderAntiCsrf     = "anti-csrf"
	HeaderFrontToken   = "front-token"

	// HeaderAuthMode lets clients pick their transfer method per request.
	HeaderAuthMode = "st-auth-mode"

	// HeaderRid is the custom header browsers cannot attach cross-site
	// without a CORS preflight. Its presence is the VIA_CUSTOM_HEADER
	// anti-CSRF signal.
	HeaderRid = "rid"
)

// readAccessToken pulls the access token from the request, preferring the
// Authorization header so API clients win over stale cookies.
func readAccessToken(r *http.Request) (token string, via sessionkit.TokenTransferMethod, ok bool) {
	if t, found := bearerToken(r.Header.Get("Authorization")); found {
		return t, sessionkit.TransferHeader, true
	}
	if c, err := r.Cookie(CookieAccessToken); err == nil && c.Value != "" {
		return c.Value, sessionkit.TransferCookie, true
	}
	return "", "", false
}

func readRefreshToken(r *http.Request) (token string, via sessionkit.TokenTransferMethod, ok bool) {
	if t := r.Header.Get(HeaderRefreshToken); t != "" {
		return t, sessionkit.TransferHeader, true
	}
	if c, err := r.Cookie(CookieRefreshToken); err == nil && c.Value != "" {
		return c.Value, sessionkit.TransferCookie, true
	}
	return "", "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}

// auditContext annotates the request context with caller identity so the
// engine's audit events carry IP and user agent.
func auditContext(r *http.Request) context.Context {
	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = sessionkit.WithClientIP(ctx, host)
	} else if r.RemoteAddr != "" {
		ctx = sessionkit.WithClientIP(ctx, r.RemoteAddr)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = sessionkit.WithUserAgent(ctx, ua)
	}
	return ctx
}

// hasCustomHeader reports whether the request carries a header a cross-site
// form post could not have attached.
func hasCustomHeader(r *http.Request) bool {
	return r.Header.Get(HeaderRid) != "" || r.Header.Get(HeaderAntiCsrf) != ""
}

// resolveTransfer picks the transfer method for tokens written on the
// response. The client's st-auth-mode hint wins when the config allows it;
// TransferAny otherwise echoes whatever carried the inbound token.
func resolveTransfer(r *http.Request, cfg sessionkit.Config, inbound sessionkit.TokenTransferMethod) sessionkit.TokenTransferMethod {
	allowed := cfg.DefaultTransferMethod

	switch sessionkit.TokenTransferMethod(r.Header.Get(HeaderAuthMode)) {
	case sessionkit.TransferCookie:
		if allowed != sessionkit.TransferHeader {
			return sessionkit.TransferCookie
		}
	case sessionkit.TransferHeader:
		if allowed != sessionkit.TransferCookie {
			return sessionkit.TransferHeader
		}
	}

	if allowed != sessionkit.TransferAny {
		return allowed
	}
	if inbound == sessionkit.TransferHeader {
		return sessionkit.TransferHeader
	}
	return sessionkit.TransferCookie
}

// attachSession writes a full token set onto the response: access and
// refresh tokens via the chosen transfer, the front token always, and the
// anti-CSRF token whenever the session carries one.
func attachSession(w http.ResponseWriter, cfg sessionkit.Config, s *sessionkit.Session, via sessionkit.TokenTransferMethod) {
	if via == sessionkit.TransferHeader {
		w.Header().Set(HeaderAccessToken, s.AccessToken)
		if s.RefreshToken != "" {
			w.Header().Set(HeaderRefreshToken, s.RefreshToken)
		}
	} else {
		http.SetCookie(w, sessionCookie(cfg, CookieAccessToken, s.AccessToken, cfg.AccessTokenPath, s.AccessTokenExpiry))
		if s.RefreshToken != "" {
			http.SetCookie(w, sessionCookie(cfg, CookieRefreshToken, s.RefreshToken, cfg.RefreshTokenPath, s.RefreshTokenExpiry))
		}
	}

	if s.AntiCsrfToken != "" {
		w.Header().Set(HeaderAntiCsrf, s.AntiCsrfToken)
	}
	w.Header().Set(HeaderFrontToken, s.FrontToken)
	exposeHeaders(w)
}

// attachAccessToken rewrites only the access token and front token, used
// when verification re-signed the token after a claim refetch.
func attachAccessToken(w http.ResponseWriter, cfg sessionkit.Config, s *sessionkit.Session, via sessionkit.TokenTransferMethod) {
	if via == sessionkit.TransferHeader {
		w.Header().Set(HeaderAccessToken, s.AccessToken)
	} else {
		http.SetCookie(w, sessionCookie(cfg, CookieAccessToken, s.AccessToken, cfg.AccessTokenPath, s.AccessTokenExpiry))
	}
	w.Header().Set(HeaderFrontToken, s.FrontToken)
	exposeHeaders(w)
}

// clearSession expires both cookies and signals header clients to drop
// their tokens. No anti-CSRF header is written; there is nothing to bind.
func clearSession(w http.ResponseWriter, cfg sessionkit.Config) {
	http.SetCookie(w, sessionCookie(cfg, CookieAccessToken, "", cfg.AccessTokenPath, time.Unix(0, 0)))
	http.SetCookie(w, sessionCookie(cfg, CookieRefreshToken, "", cfg.RefreshTokenPath, time.Unix(0, 0)))
	w.Header().Set(HeaderAccessToken, "")
	w.Header().Set(HeaderRefreshToken, "")
	w.Header().Set(HeaderFrontToken, sessionkit.FrontTokenRemove)
	exposeHeaders(w)
}

func sessionCookie(cfg sessionkit.Config, name, value, path string, expires time.Time) *http.Cookie {
	if path == "" {
		path = "/"
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cfg.CookieDomain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSite(cfg.CookieSameSite),
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func exposeHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Expose-Headers", strings.Join([]string{
		HeaderAccessToken,
		HeaderRefreshToken,
		HeaderAntiCsrf,
		HeaderFrontToken,
	}, ", "))
}
