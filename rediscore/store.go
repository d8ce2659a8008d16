// Package rediscore is a Redis-backed implementation of the core.Client
// contract: a self-contained session core for deployments that do not run
// a separate core service. Refresh rotation is a single Lua
// compare-and-swap, so reuse detection holds under concurrent refreshes.
package rediscore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sessionkit/sessionkit/claims"
	"github.com/sessionkit/sessionkit/core"
	"github.com/sessionkit/sessionkit/internal"
)

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// tell infrastructure trouble apart from session-state outcomes.
var ErrRedisUnavailable = errors.New("redis unavailable")

var errCorruptRecord = errors.New("corrupt session record")

const (
	defaultKeyPrefix  = "sk"
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 100 * 24 * time.Hour
)

type Config struct {
	Redis redis.UniversalClient

	// KeyPrefix namespaces all keys. Defaults to "sk".
	KeyPrefix string

	// AccessTokenTTL bounds access-token validity. Defaults to 1h.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL bounds session lifetime; every successful refresh
	// extends the session by this much. Defaults to 100 days.
	RefreshTokenTTL time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

type Store struct {
	redis      redis.UniversalClient
	prefix     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

var _ core.Client = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if strings.ContainsAny(prefix, " :") {
		return nil, errors.New("key prefix must not contain spaces or colons")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	if refreshTTL < accessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		redis:      cfg.Redis,
		prefix:     prefix,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}, nil
}

func (s *Store) sessionKey(handle string) string {
	return s.prefix + ":sess:" + handle
}

func (s *Store) userKeyPrefix() string {
	return s.prefix + ":user:"
}

func (s *Store) userKey(userID string) string {
	return s.userKeyPrefix() + userID
}

func (s *Store) usersKey() string {
	return s.prefix + ":users"
}

func (s *Store) CreateSession(ctx context.Context, req core.CreateSessionRequest) (*core.CreateSessionResult, error) {
	if req.UserID == "" {
		return nil, errors.New("user id is required")
	}
	recipeUserID := req.RecipeUserID
	if recipeUserID == "" {
		recipeUserID = req.UserID
	}

	handle := internal.NewSessionHandle()
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	refreshToken, err := internal.EncodeRefreshToken(handle, secret)
	if err != nil {
		return nil, err
	}

	antiCsrf := ""
	if req.EnableAntiCsrf {
		antiCsrf = internal.NewAntiCsrfToken()
	}

	payload, err := encodeObject(req.AccessTokenPayload)
	if err != nil {
		return nil, err
	}
	data, err := encodeObject(req.SessionData)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &record{
		Schema:       recordSchemaVersion,
		Handle:       handle,
		UserID:       req.UserID,
		RecipeUserID: recipeUserID,
		RefreshHash:  internal.HashToken(refreshToken),
		AntiCsrf:     antiCsrf,
		Payload:      payload,
		Data:         data,
		CreatedAt:    now.UnixMilli(),
		ExpiresAt:    now.Add(s.refreshTTL).UnixMilli(),
	}
	blob, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(handle), blob, s.refreshTTL)
		pipe.SAdd(ctx, s.userKey(req.UserID), handle)
		pipe.ZAddNX(ctx, s.usersKey(), redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: req.UserID,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return &core.CreateSessionResult{
		SessionHandle:      handle,
		RefreshToken:       refreshToken,
		AntiCsrfToken:      antiCsrf,
		AccessTokenExpiry:  now.Add(s.accessTTL),
		RefreshTokenExpiry: now.Add(s.refreshTTL),
	}, nil
}

func (s *Store) RefreshSession(ctx context.Context, refreshToken string, enableAntiCsrf bool) (*core.RefreshSessionResult, error) {
	handle, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return &core.RefreshSessionResult{Status: core.RefreshNotFound}, nil
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	nextToken, err := internal.EncodeRefreshToken(handle, nextSecret)
	if err != nil {
		return nil, err
	}
	nextAntiCsrf := ""
	if enableAntiCsrf {
		nextAntiCsrf = internal.NewAntiCsrfToken()
	}

	now := s.now()
	raw, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(handle)},
		s.userKeyPrefix(),
		internal.HashToken(refreshToken),
		internal.HashToken(nextToken),
		nextAntiCsrf,
		now.UnixMilli(),
		s.refreshTTL.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	code, blob, err := parseScriptReply(raw)
	if err != nil {
		return nil, err
	}

	switch code {
	case rotateStatusRotated:
		rec, err := decodeRecord(blob)
		if err != nil {
			return nil, errCorruptRecord
		}
		payload, err := decodeObject(rec.Payload)
		if err != nil {
			return nil, errCorruptRecord
		}
		return &core.RefreshSessionResult{
			Status:             core.RefreshSuccess,
			SessionHandle:      rec.Handle,
			UserID:             rec.UserID,
			RecipeUserID:       rec.RecipeUserID,
			RefreshToken:       nextToken,
			AntiCsrfToken:      rec.AntiCsrf,
			AccessTokenPayload: payload,
			AccessTokenExpiry:  now.Add(s.accessTTL),
			RefreshTokenExpiry: time.UnixMilli(rec.ExpiresAt),
		}, nil
	case rotateStatusReused:
		rec, err := decodeRecord(blob)
		if err != nil {
			return nil, errCorruptRecord
		}
		return &core.RefreshSessionResult{
			Status:        core.RefreshStaleGeneration,
			SessionHandle: rec.Handle,
			UserID:        rec.UserID,
			RecipeUserID:  rec.RecipeUserID,
		}, nil
	case rotateStatusNotFound, rotateStatusExpired:
		return &core.RefreshSessionResult{Status: core.RefreshNotFound}, nil
	case rotateStatusCorrupt:
		return nil, errCorruptRecord
	default:
		return nil, fmt.Errorf("%w: unknown rotation status %d", ErrRedisUnavailable, code)
	}
}

func parseScriptReply(raw any) (int64, []byte, error) {
	parts, ok := raw.([]interface{})
	if !ok || len(parts) == 0 {
		return 0, nil, fmt.Errorf("%w: invalid rotation script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("%w: invalid rotation script status", ErrRedisUnavailable)
	}
	if len(parts) < 2 {
		return code, nil, nil
	}
	switch v := parts[1].(type) {
	case string:
		return code, []byte(v), nil
	case []byte:
		return code, v, nil
	default:
		return 0, nil, fmt.Errorf("%w: invalid rotation script payload", ErrRedisUnavailable)
	}
}

func (s *Store) GetSessionInformation(ctx context.Context, sessionHandle string) (*core.SessionInformation, error) {
	blob, err := s.redis.Get(ctx, s.sessionKey(sessionHandle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := decodeRecord(blob)
	if err != nil {
		return nil, errCorruptRecord
	}
	if rec.ExpiresAt <= s.now().UnixMilli() {
		if err := s.deleteSession(ctx, sessionHandle); err != nil {
			return nil, err
		}
		return nil, core.ErrSessionNotFound
	}

	payload, err := decodeObject(rec.Payload)
	if err != nil {
		return nil, errCorruptRecord
	}
	data, err := decodeObject(rec.Data)
	if err != nil {
		return nil, errCorruptRecord
	}

	return &core.SessionInformation{
		SessionHandle:         rec.Handle,
		UserID:                rec.UserID,
		RecipeUserID:          rec.RecipeUserID,
		SessionDataInDatabase: data,
		AccessTokenPayload:    payload,
		Expiry:                time.UnixMilli(rec.ExpiresAt),
		TimeCreated:           time.UnixMilli(rec.CreatedAt),
	}, nil
}

func (s *Store) UpdateSessionData(ctx context.Context, sessionHandle string, data claims.JSONObject) (bool, error) {
	return s.updateField(ctx, sessionHandle, "d", data)
}

func (s *Store) UpdateSessionPayload(ctx context.Context, sessionHandle string, payload claims.JSONObject) (bool, error) {
	return s.updateField(ctx, sessionHandle, "p", payload)
}

func (s *Store) updateField(ctx context.Context, sessionHandle, field string, value claims.JSONObject) (bool, error) {
	encoded, err := encodeObject(value)
	if err != nil {
		return false, err
	}

	res, err := updateFieldLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionHandle)},
		field,
		encoded,
		s.now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, errCorruptRecord
	}
}

func (s *Store) RevokeSession(ctx context.Context, sessionHandle string) (bool, error) {
	existed, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionHandle)},
		s.userKeyPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

func (s *Store) deleteSession(ctx context.Context, sessionHandle string) error {
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(sessionHandle)},
		s.userKeyPrefix(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) RevokeAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	userKey := s.userKey(userID)

	handles, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	pipe := s.redis.TxPipeline()
	delCmds := make([]*redis.IntCmd, len(handles))
	for i, handle := range handles {
		delCmds[i] = pipe.Del(ctx, s.sessionKey(handle))
	}
	pipe.Del(ctx, userKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := make([]string, 0, len(handles))
	for i, cmd := range delCmds {
		if cmd.Val() == 1 {
			revoked = append(revoked, handles[i])
		}
	}
	return revoked, nil
}

func (s *Store) GetAllSessionHandlesForUser(ctx context.Context, userID string) ([]string, error) {
	handles, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(handles) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(handles))
	for i, handle := range handles {
		existsCmds[i] = pipe.Exists(ctx, s.sessionKey(handle))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(handles))
	for i, cmd := range existsCmds {
		if cmd.Val() == 1 {
			live = append(live, handles[i])
		}
	}
	return live, nil
}

func (s *Store) GetUsersOldestFirst(ctx context.Context, limit int, paginationToken string) (*core.UserPage, error) {
	return s.getUsers(ctx, core.OrderOldestFirst, limit, paginationToken)
}

func (s *Store) GetUsersNewestFirst(ctx context.Context, limit int, paginationToken string) (*core.UserPage, error) {
	return s.getUsers(ctx, core.OrderNewestFirst, limit, paginationToken)
}

func (s *Store) getUsers(ctx context.Context, order string, limit int, paginationToken string) (*core.UserPage, error) {
	if err := core.ValidateLimit(limit); err != nil {
		return nil, err
	}
	offset, err := core.DecodePaginationToken(paginationToken, order)
	if err != nil {
		return nil, err
	}

	start := offset
	stop := offset + int64(limit) - 1

	var entries []redis.Z
	if order == core.OrderOldestFirst {
		entries, err = s.redis.ZRangeWithScores(ctx, s.usersKey(), start, stop).Result()
	} else {
		entries, err = s.redis.ZRevRangeWithScores(ctx, s.usersKey(), start, stop).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	page := &core.UserPage{Users: make([]core.User, 0, len(entries))}
	for _, entry := range entries {
		member, _ := entry.Member.(string)
		page.Users = append(page.Users, core.User{
			ID:         member,
			TimeJoined: time.UnixMilli(int64(entry.Score)),
		})
	}
	if len(entries) == limit {
		page.NextPaginationToken = core.EncodePaginationToken(offset+int64(limit), order)
	}
	return page, nil
}
