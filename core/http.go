package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sessionkit/sessionkit/claims"
)

const (
	apiKeyHeader = "api-key"

	statusOK              = "OK"
	statusNotFound        = "NOT_FOUND"
	statusStaleGeneration = "STALE_GENERATION"

	defaultRequestTimeout      = 10 * time.Second
	defaultJWKSRefreshInterval = time.Hour
)

type HTTPConfig struct {
	// BaseURL is the root of the core API, e.g. "https://core.internal:3567".
	BaseURL string

	// APIKey, when set, is sent on every request.
	APIKey string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// JWKSRefreshInterval controls background refresh of the core's signing
	// keys. Defaults to one hour.
	JWKSRefreshInterval time.Duration
}

// HTTPClient talks JSON to a remote session core. Safe for concurrent use.
type HTTPClient struct {
	base   string
	apiKey string
	client *http.Client

	jwksRefresh time.Duration
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("core base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid core base URL: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	refresh := cfg.JWKSRefreshInterval
	if refresh <= 0 {
		refresh = defaultJWKSRefreshInterval
	}

	return &HTTPClient{
		base:        base,
		apiKey:      cfg.APIKey,
		client:      client,
		jwksRefresh: refresh,
	}, nil
}

// Keyfunc fetches the core's JWKS and returns a verification keyfunc that
// refreshes in the background until ctx is cancelled. Wire it into the
// token codec so locally-verified tokens track the core's key rotation.
func (c *HTTPClient) Keyfunc(ctx context.Context) (jwt.Keyfunc, error) {
	jwks, err := keyfunc.Get(c.base+"/.well-known/jwks.json", keyfunc.Options{
		Ctx:               ctx,
		Client:            c.client,
		RefreshInterval:   c.jwksRefresh,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return jwks.Keyfunc, nil
}

type sessionWire struct {
	Status             string            `json:"status"`
	SessionHandle      string            `json:"sessionHandle,omitempty"`
	UserID             string            `json:"userId,omitempty"`
	RecipeUserID       string            `json:"recipeUserId,omitempty"`
	RefreshToken       string            `json:"refreshToken,omitempty"`
	AntiCsrfToken      string            `json:"antiCsrfToken,omitempty"`
	AccessTokenPayload claims.JSONObject `json:"accessTokenPayload,omitempty"`
	SessionData        claims.JSONObject `json:"sessionData,omitempty"`
	AccessTokenExpiry  int64             `json:"accessTokenExpiry,omitempty"`
	RefreshTokenExpiry int64             `json:"refreshTokenExpiry,omitempty"`
	Expiry             int64             `json:"expiry,omitempty"`
	TimeCreated        int64             `json:"timeCreated,omitempty"`
}

func (c *HTTPClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	body := map[string]any{
		"userId":             req.UserID,
		"recipeUserId":       req.RecipeUserID,
		"accessTokenPayload": req.AccessTokenPayload,
		"sessionData":        req.SessionData,
		"enableAntiCsrf":     req.EnableAntiCsrf,
	}

	var out sessionWire
	if err := c.do(ctx, http.MethodPost, "/session", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Status != statusOK {
		return nil, fmt.Errorf("create session: unexpected status %q", out.Status)
	}

	return &CreateSessionResult{
		SessionHandle:      out.SessionHandle,
		RefreshToken:       out.RefreshToken,
		AntiCsrfToken:      out.AntiCsrfToken,
		AccessTokenExpiry:  time.UnixMilli(out.AccessTokenExpiry),
		RefreshTokenExpiry: time.UnixMilli(out.RefreshTokenExpiry),
	}, nil
}

func (c *HTTPClient) RefreshSession(ctx context.Context, refreshToken string, enableAntiCsrf bool) (*RefreshSessionResult, error) {
	body := map[string]any{
		"refreshToken":   refreshToken,
		"enableAntiCsrf": enableAntiCsrf,
	}

	var out sessionWire
	if err := c.do(ctx, http.MethodPost, "/session/refresh", nil, body, &out); err != nil {
		return nil, err
	}

	result := &RefreshSessionResult{
		SessionHandle: out.SessionHandle,
		UserID:        out.UserID,
		RecipeUserID:  out.RecipeUserID,
	}
	switch out.Status {
	case statusOK:
		result.Status = RefreshSuccess
		result.RefreshToken = out.RefreshToken
		result.AntiCsrfToken = out.AntiCsrfToken
		result.AccessTokenPayload = out.AccessTokenPayload
		result.AccessTokenExpiry = time.UnixMilli(out.AccessTokenExpiry)
		result.RefreshTokenExpiry = time.UnixMilli(out.RefreshTokenExpiry)
	case statusStaleGeneration:
		result.Status = RefreshStaleGeneration
	case statusNotFound:
		result.Status = RefreshNotFound
	default:
		return nil, fmt.Errorf("refresh session: unexpected status %q", out.Status)
	}
	return result, nil
}

func (c *HTTPClient) GetSessionInformation(ctx context.Context, sessionHandle string) (*SessionInformation, error) {
	query := url.Values{"sessionHandle": {sessionHandle}}

	var out sessionWire
	if err := c.do(ctx, http.MethodGet, "/session", query, nil, &out); err != nil {
		return nil, err
	}
	switch out.Status {
	case statusOK:
	case statusNotFound:
		return nil, ErrSessionNotFound
	default:
		return nil, fmt.Errorf("get session: unexpected status %q", out.Status)
	}

	return &SessionInformation{
		SessionHandle:         out.SessionHandle,
		UserID:                out.UserID,
		RecipeUserID:          out.RecipeUserID,
		SessionDataInDatabase: out.SessionData,
		AccessTokenPayload:    out.AccessTokenPayload,
		Expiry:                time.UnixMilli(out.Expiry),
		TimeCreated:           time.UnixMilli(out.TimeCreated),
	}, nil
}

func (c *HTTPClient) UpdateSessionData(ctx context.Context, sessionHandle string, data claims.JSONObject) (bool, error) {
	return c.updateSessionField(ctx, "/session/data", sessionHandle, "sessionData", data)
}

func (c *HTTPClient) UpdateSessionPayload(ctx context.Context, sessionHandle string, payload claims.JSONObject) (bool, error) {
	return c.updateSessionField(ctx, "/session/payload", sessionHandle, "accessTokenPayload", payload)
}

func (c *HTTPClient) updateSessionField(ctx context.Context, path, sessionHandle, field string, value claims.JSONObject) (bool, error) {
	body := map[string]any{
		"sessionHandle": sessionHandle,
		field:           value,
	}

	var out sessionWire
	if err := c.do(ctx, http.MethodPut, path, nil, body, &out); err != nil {
		return false, err
	}
	switch out.Status {
	case statusOK:
		return true, nil
	case statusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("update session: unexpected status %q", out.Status)
	}
}

func (c *HTTPClient) RevokeSession(ctx context.Context, sessionHandle string) (bool, error) {
	body := map[string]any{"sessionHandles": []string{sessionHandle}}

	var out struct {
		Status                string   `json:"status"`
		SessionHandlesRevoked []string `json:"sessionHandlesRevoked"`
	}
	if err := c.do(ctx, http.MethodPost, "/session/remove", nil, body, &out); err != nil {
		return false, err
	}
	return len(out.SessionHandlesRevoked) > 0, nil
}

func (c *HTTPClient) RevokeAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	body := map[string]any{"userId": userID}

	var out struct {
		Status                string   `json:"status"`
		SessionHandlesRevoked []string `json:"sessionHandlesRevoked"`
	}
	if err := c.do(ctx, http.MethodPost, "/session/remove", nil, body, &out); err != nil {
		return nil, err
	}
	return out.SessionHandlesRevoked, nil
}

func (c *HTTPClient) GetAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	query := url.Values{"userId": {userID}}

	var out struct {
		Status         string   `json:"status"`
		SessionHandles []string `json:"sessionHandles"`
	}
	if err := c.do(ctx, http.MethodGet, "/session/user", query, nil, &out); err != nil {
		return nil, err
	}
	return out.SessionHandles, nil
}

func (c *HTTPClient) GetUsersOldestFirst(ctx context.Context, limit int, paginationToken string) (*UserPage, error) {
	return c.getUsers(ctx, OrderOldestFirst, limit, paginationToken)
}

func (c *HTTPClient) GetUsersNewestFirst(ctx context.Context, limit int, paginationToken string) (*UserPage, error) {
	return c.getUsers(ctx, OrderNewestFirst, limit, paginationToken)
}

func (c *HTTPClient) getUsers(ctx context.Context, order string, limit int, paginationToken string) (*UserPage, error) {
	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}
	// Decode locally so a malformed cursor fails before any network call.
	if _, err := DecodePaginationToken(paginationToken, order); err != nil {
		return nil, err
	}

	query := url.Values{
		"order": {order},
		"limit": {strconv.Itoa(limit)},
	}
	if paginationToken != "" {
		query.Set("paginationToken", paginationToken)
	}

	var out struct {
		Status string `json:"status"`
		Users  []struct {
			ID         string `json:"id"`
			TimeJoined int64  `json:"timeJoined"`
		} `json:"users"`
		NextPaginationToken string `json:"nextPaginationToken"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", query, nil, &out); err != nil {
		return nil, err
	}

	page := &UserPage{NextPaginationToken: out.NextPaginationToken}
	for _, u := range out.Users {
		page.Users = append(page.Users, User{ID: u.ID, TimeJoined: time.UnixMilli(u.TimeJoined)})
	}
	return page, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("core request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("core request %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
